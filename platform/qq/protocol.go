package qq

import (
	"encoding/json"
	"strconv"

	"github.com/LivelyChat/api/config"
	"github.com/LivelyChat/api/message"
)

// actionRequest is a OneBot v11 API call. Echo correlates the response.
type actionRequest struct {
	Action string         `json:"action"`
	Params map[string]any `json:"params"`
	Echo   string         `json:"echo"`
}

type actionResponse struct {
	Status  string          `json:"status"`
	Retcode int             `json:"retcode"`
	Data    json.RawMessage `json:"data"`
	Echo    string          `json:"echo"`
}

// messageEvent is a OneBot v11 message event, covering the group and
// private fields this adapter reads.
type messageEvent struct {
	Time        int64  `json:"time"`
	MessageType string `json:"message_type"` // "group" | "private"
	MessageID   int64  `json:"message_id"`
	RawMessage  string `json:"raw_message"`
	Message     []any  `json:"message"`
	GroupID     int64  `json:"group_id"`
	UserID      int64  `json:"user_id"`
	Sender      struct {
		UserID   int64  `json:"user_id"`
		Nickname string `json:"nickname"`
		Card     string `json:"card"`
		Role     string `json:"role"`
	} `json:"sender"`
}

func userAvatarURL(userID int64) string {
	return "https://q.qlogo.cn/headimg_dl?dst_uin=" + strconv.FormatInt(userID, 10) + "&spec=640"
}

func groupAvatarURL(groupID string) string {
	return "http://p.qlogo.cn/gh/" + groupID + "/" + groupID + "/640"
}

func chatConfigured(chats []config.ChatConfig, id string) bool {
	for _, c := range chats {
		if c.ID == id {
			return true
		}
	}
	return false
}

// normalize maps a OneBot message event onto the relay's Message shape.
// Events for chats that are not configured are discarded (ok=false);
// the relay never sees them. Group senders carry their group role,
// private chats use the "private:<user_id>" chat ID convention.
func normalize(ev messageEvent, chats []config.ChatConfig) (message.Message, bool) {
	msg := message.Message{
		ID:        strconv.FormatInt(ev.MessageID, 10),
		Content:   ev.RawMessage,
		Elements:  ev.Message,
		Timestamp: ev.Time,
		Sender: message.Sender{
			ID:       strconv.FormatInt(ev.Sender.UserID, 10),
			Avatar:   userAvatarURL(ev.Sender.UserID),
			Username: ev.Sender.Nickname,
			Nickname: ev.Sender.Card,
		},
		Platform: "qq",
	}

	switch ev.MessageType {
	case "group":
		chatID := strconv.FormatInt(ev.GroupID, 10)
		if !chatConfigured(chats, chatID) {
			return message.Message{}, false
		}
		msg.ChatID = chatID
		msg.Sender.Role = ev.Sender.Role
	default:
		chatID := "private:" + strconv.FormatInt(ev.UserID, 10)
		if !chatConfigured(chats, chatID) {
			return message.Message{}, false
		}
		msg.ChatID = chatID
	}
	return msg, true
}
