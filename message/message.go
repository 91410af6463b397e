// Package message defines the normalized chat message model shared by
// platform adapters, the persistence layer, and the HTTP/realtime APIs.
package message

// Sender identifies the author of a message on its home platform.
type Sender struct {
	ID       string `json:"id" bson:"id"`
	Avatar   string `json:"avatar" bson:"avatar"`
	Username string `json:"username" bson:"username"`
	Nickname string `json:"nickname" bson:"nickname"`
	Role     string `json:"role,omitempty" bson:"role,omitempty"`
}

// Message is a normalized chat message. IDs are platform-native and only
// meaningful within (platform, chatId); the tuple (platform, chatId, id)
// identifies a message, though duplicates are accepted on write.
// Elements carries platform-specific rich content and is passed through
// uninterpreted.
type Message struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	Elements  []any  `json:"elements"`
	Timestamp int64  `json:"timestamp"` // epoch seconds
	Sender    Sender `json:"sender"`
	ChatID    string `json:"chatId"`
	Platform  string `json:"platform"`
}

// List is a page of messages plus the total count matching the filters.
type List struct {
	Total    int64     `json:"total"`
	Messages []Message `json:"messages"`
}

// Truncate shortens s to at most length runes for log display, replacing
// the tail with "..." when it does not fit. The stored and broadcast
// message content is never truncated.
func Truncate(s string, length int) string {
	r := []rune(s)
	if len(r) <= length {
		return s
	}
	if length <= 3 {
		return string(r[:length])
	}
	return string(r[:length-3]) + "..."
}
