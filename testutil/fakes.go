// Package testutil provides shared fakes for package tests: an
// in-memory message store implementing the relay and HTTP interfaces,
// a recording broadcaster, and a mock OneBot websocket endpoint.
package testutil

import (
	"context"
	"sort"
	"sync"

	"github.com/LivelyChat/api/message"
	"github.com/LivelyChat/api/store"
)

// FakeStore is an in-memory stand-in for the Mongo store. Its Messages
// implementation mirrors the adapter's query semantics: total ignores
// Before, the page honors every filter, newest first.
type FakeStore struct {
	mu      sync.Mutex
	saved   []message.Message
	SaveErr error
	PingErr error
}

func NewFakeStore() *FakeStore { return &FakeStore{} }

func (f *FakeStore) SaveMessage(_ context.Context, msg message.Message) error {
	if f.SaveErr != nil {
		return f.SaveErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, msg)
	return nil
}

func (f *FakeStore) Messages(_ context.Context, q store.Query) (message.List, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var matching []message.Message
	for _, m := range f.saved {
		if q.Platform != "" && m.Platform != q.Platform {
			continue
		}
		if q.ChatID != "" && m.ChatID != q.ChatID {
			continue
		}
		matching = append(matching, m)
	}
	total := int64(len(matching))

	var page []message.Message
	for _, m := range matching {
		if q.Before > 0 && m.Timestamp >= q.Before {
			continue
		}
		page = append(page, m)
	}
	sort.SliceStable(page, func(i, j int) bool { return page[i].Timestamp > page[j].Timestamp })
	if int64(len(page)) > q.Limit {
		page = page[:q.Limit]
	}
	if page == nil {
		page = []message.Message{}
	}
	return message.List{Total: total, Messages: page}, nil
}

func (f *FakeStore) CountMessages(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.saved)), nil
}

func (f *FakeStore) Ping(context.Context) error { return f.PingErr }

// Saved returns a copy of everything stored so far.
func (f *FakeStore) Saved() []message.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]message.Message, len(f.saved))
	copy(out, f.saved)
	return out
}

// FakeHub records broadcasts instead of delivering them.
type FakeHub struct {
	mu         sync.Mutex
	broadcasts []Broadcast
}

// Broadcast is one recorded fan-out call.
type Broadcast struct {
	Platform string
	ChatID   string
	Message  message.Message
}

func NewFakeHub() *FakeHub { return &FakeHub{} }

func (f *FakeHub) Broadcast(platform, chatID string, msg message.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcasts = append(f.broadcasts, Broadcast{Platform: platform, ChatID: chatID, Message: msg})
}

// Broadcasts returns a copy of the recorded fan-out calls.
func (f *FakeHub) Broadcasts() []Broadcast {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Broadcast, len(f.broadcasts))
	copy(out, f.broadcasts)
	return out
}
