package qq

import (
	"context"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/LivelyChat/api/config"
	"github.com/LivelyChat/api/message"
	"github.com/LivelyChat/api/testutil"
)

func startAdapter(t *testing.T, s *testutil.OneBotServer, received chan message.Message) *Adapter {
	t.Helper()
	u, err := url.Parse(s.WSURL())
	if err != nil {
		t.Fatalf("parse mock url: %v", err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatalf("parse mock port: %v", err)
	}
	cfg := config.PlatformConfig{
		Protocol: "ws",
		Host:     u.Hostname(),
		Port:     port,
		Chats:    []config.ChatConfig{{ID: "12345678"}},
	}
	receive := func(_ context.Context, msg message.Message) error {
		received <- msg
		return nil
	}
	a := New(cfg, receive)
	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = a.Connect(ctx)
	}()
	t.Cleanup(func() {
		_ = a.Close()
		cancel()
		<-done
	})
	s.WaitForConnection(t)
	return a
}

func TestAdapterRelaysMessageEvents(t *testing.T) {
	s := testutil.NewOneBotServer(t)
	received := make(chan message.Message, 1)
	startAdapter(t, s, received)

	s.PushEvent(t, map[string]any{
		"post_type":    "message",
		"message_type": "group",
		"time":         1700000000,
		"message_id":   321,
		"raw_message":  "hello from qq",
		"message":      []any{map[string]any{"type": "text", "data": map[string]any{"text": "hello from qq"}}},
		"group_id":     12345678,
		"user_id":      42,
		"sender": map[string]any{
			"user_id":  42,
			"nickname": "John Doe",
			"card":     "JD",
			"role":     "member",
		},
	})

	select {
	case msg := <-received:
		if msg.Platform != "qq" || msg.ChatID != "12345678" {
			t.Fatalf("unexpected routing: %+v", msg)
		}
		if msg.Content != "hello from qq" || msg.Sender.ID != "42" {
			t.Fatalf("unexpected message: %+v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("message event never reached receive callback")
	}
}

func TestAdapterIgnoresUnconfiguredChats(t *testing.T) {
	s := testutil.NewOneBotServer(t)
	received := make(chan message.Message, 1)
	a := startAdapter(t, s, received)

	s.PushEvent(t, map[string]any{
		"post_type":    "message",
		"message_type": "group",
		"time":         1700000000,
		"message_id":   1,
		"raw_message":  "noise",
		"group_id":     999,
		"user_id":      42,
		"sender":       map[string]any{"user_id": 42, "nickname": "n"},
	})

	// A follow-up side query proves the noisy event was already processed.
	if _, err := a.GroupInfo(t.Context(), "12345678"); err != nil {
		t.Fatalf("group info after event: %v", err)
	}
	select {
	case msg := <-received:
		t.Fatalf("unconfigured chat must be dropped, got %+v", msg)
	default:
	}
}

func TestAdapterGroupInfo(t *testing.T) {
	s := testutil.NewOneBotServer(t)
	received := make(chan message.Message, 1)
	a := startAdapter(t, s, received)

	g, err := a.GroupInfo(t.Context(), "12345678")
	if err != nil {
		t.Fatalf("group info: %v", err)
	}
	if g.ID != "12345678" || g.Name != "Test Group" || g.MemberCount != 42 {
		t.Fatalf("unexpected group: %+v", g)
	}
	if g.Avatar != "http://p.qlogo.cn/gh/12345678/12345678/640" {
		t.Fatalf("unexpected avatar: %s", g.Avatar)
	}
}

func TestAdapterGroupInfoValidation(t *testing.T) {
	a := New(config.PlatformConfig{Host: "localhost", Port: 1}, func(context.Context, message.Message) error { return nil })
	if _, err := a.GroupInfo(t.Context(), "not-a-number"); err == nil {
		t.Fatal("expected error for non-numeric group id")
	}
	if _, err := a.GroupInfo(t.Context(), "123"); err != ErrNotConnected {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}
