package store

import (
	"reflect"
	"testing"

	"github.com/LivelyChat/api/message"
)

func sampleMessage() message.Message {
	return message.Message{
		ID:        "1",
		Content:   "hi",
		Elements:  []any{map[string]any{"type": "text"}},
		Timestamp: 1700000000,
		Sender: message.Sender{
			ID:       "42",
			Avatar:   "https://example.com/a.jpg",
			Username: "John Doe",
			Nickname: "JD",
			Role:     "admin",
		},
		ChatID:   "g1",
		Platform: "qq",
	}
}

func TestDocumentRoundTrip(t *testing.T) {
	in := sampleMessage()
	out := fromDocument(toDocument(in))
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("round trip mismatch:\n in=%+v\nout=%+v", in, out)
	}
}

func TestTimestampRoundTripLossless(t *testing.T) {
	for _, sec := range []int64{0, 1, 1633072800, 1700000000, 4102444800} {
		if got := timeToSeconds(secondsToTime(sec)); got != sec {
			t.Errorf("timestamp %d round-tripped to %d", sec, got)
		}
	}
}

func TestDocumentShape(t *testing.T) {
	d := toDocument(sampleMessage())
	if d.Metadata.Platform != "qq" || d.Metadata.ChatID != "g1" {
		t.Errorf("routing fields not under metadata: %+v", d.Metadata)
	}
	if d.Metadata.Sender.ID != "42" {
		t.Errorf("sender not under metadata: %+v", d.Metadata.Sender)
	}
	if d.Timestamp.Unix() != 1700000000 {
		t.Errorf("timestamp not a datetime of the epoch seconds: %v", d.Timestamp)
	}
}
