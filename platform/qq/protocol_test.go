package qq

import (
	"testing"

	"github.com/LivelyChat/api/config"
)

func chats() []config.ChatConfig {
	return []config.ChatConfig{
		{ID: "12345678"},
		{ID: "private:42"},
	}
}

func groupEvent() messageEvent {
	ev := messageEvent{
		Time:        1700000000,
		MessageType: "group",
		MessageID:   987,
		RawMessage:  "hello",
		Message:     []any{map[string]any{"type": "text", "data": map[string]any{"text": "hello"}}},
		GroupID:     12345678,
		UserID:      42,
	}
	ev.Sender.UserID = 42
	ev.Sender.Nickname = "John Doe"
	ev.Sender.Card = "JD"
	ev.Sender.Role = "admin"
	return ev
}

func TestNormalizeGroupMessage(t *testing.T) {
	msg, ok := normalize(groupEvent(), chats())
	if !ok {
		t.Fatal("configured group message was dropped")
	}
	if msg.ID != "987" || msg.Content != "hello" || msg.Timestamp != 1700000000 {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if msg.Platform != "qq" || msg.ChatID != "12345678" {
		t.Fatalf("unexpected routing: %s/%s", msg.Platform, msg.ChatID)
	}
	if msg.Sender.ID != "42" || msg.Sender.Username != "John Doe" || msg.Sender.Nickname != "JD" {
		t.Fatalf("unexpected sender: %+v", msg.Sender)
	}
	if msg.Sender.Role != "admin" {
		t.Fatalf("group sender must carry role, got %q", msg.Sender.Role)
	}
	if msg.Sender.Avatar != "https://q.qlogo.cn/headimg_dl?dst_uin=42&spec=640" {
		t.Fatalf("unexpected avatar: %s", msg.Sender.Avatar)
	}
	if len(msg.Elements) != 1 {
		t.Fatalf("elements must pass through, got %+v", msg.Elements)
	}
}

func TestNormalizeUnconfiguredGroupDropped(t *testing.T) {
	ev := groupEvent()
	ev.GroupID = 555
	if _, ok := normalize(ev, chats()); ok {
		t.Fatal("unconfigured group must be dropped")
	}
}

func TestNormalizePrivateMessage(t *testing.T) {
	ev := groupEvent()
	ev.MessageType = "private"
	ev.GroupID = 0

	msg, ok := normalize(ev, chats())
	if !ok {
		t.Fatal("configured private message was dropped")
	}
	if msg.ChatID != "private:42" {
		t.Fatalf("unexpected chat id %q", msg.ChatID)
	}
	if msg.Sender.Role != "" {
		t.Fatalf("private sender must not carry role, got %q", msg.Sender.Role)
	}
}

func TestNormalizeUnconfiguredPrivateDropped(t *testing.T) {
	ev := groupEvent()
	ev.MessageType = "private"
	ev.UserID = 7
	if _, ok := normalize(ev, chats()); ok {
		t.Fatal("unconfigured private chat must be dropped")
	}
}
