package store

import (
	"time"

	"github.com/LivelyChat/api/message"
)

// document is the stored shape of a message: payload at the top level,
// routing fields under metadata, timestamp as a BSON datetime.
type document struct {
	ID        string    `bson:"id"`
	Content   string    `bson:"content"`
	Elements  []any     `bson:"elements"`
	Metadata  metadata  `bson:"metadata"`
	Timestamp time.Time `bson:"timestamp"`
}

type metadata struct {
	Sender   message.Sender `bson:"sender"`
	ChatID   string         `bson:"chatId"`
	Platform string         `bson:"platform"`
}

func secondsToTime(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

func timeToSeconds(t time.Time) int64 {
	return t.Unix()
}

func toDocument(m message.Message) document {
	return document{
		ID:        m.ID,
		Content:   m.Content,
		Elements:  m.Elements,
		Metadata:  metadata{Sender: m.Sender, ChatID: m.ChatID, Platform: m.Platform},
		Timestamp: secondsToTime(m.Timestamp),
	}
}

func fromDocument(d document) message.Message {
	return message.Message{
		ID:        d.ID,
		Content:   d.Content,
		Elements:  d.Elements,
		Timestamp: timeToSeconds(d.Timestamp),
		Sender:    d.Metadata.Sender,
		ChatID:    d.Metadata.ChatID,
		Platform:  d.Metadata.Platform,
	}
}
