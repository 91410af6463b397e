// Package relay is the ingestion/broadcast orchestrator: every message,
// whether submitted over HTTP or delivered by a platform adapter, goes
// through Receive, which persists it and fans it out to the chat's room.
package relay

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/LivelyChat/api/message"
	"github.com/LivelyChat/api/telemetry"
)

// Saver is the slice of the message store the orchestrator needs.
type Saver interface {
	SaveMessage(ctx context.Context, msg message.Message) error
}

// Broadcaster fans a message out to the live subscribers of one chat.
type Broadcaster interface {
	Broadcast(platform, chatID string, msg message.Message)
}

// Relay sequences persist-then-broadcast. It holds no state of its own.
type Relay struct {
	store Saver
	hub   Broadcaster
}

// New wires the orchestrator to its collaborators.
func New(store Saver, hub Broadcaster) *Relay {
	return &Relay{store: store, hub: hub}
}

// Receive persists msg and then broadcasts it to room platform/chatId.
// A persistence failure aborts the operation before any broadcast; a
// broadcast is best-effort and never rolled back. Per chat, broadcast
// order follows the order persists complete.
func (r *Relay) Receive(ctx context.Context, msg message.Message) error {
	ctx, span := telemetry.StartSpan(ctx, "relay", "relay.receive")
	defer span.End()
	telemetry.CountReceived(msg.Platform)

	var saveErr error
	telemetry.TimeFunc(telemetry.PersistDuration, func() {
		saveErr = r.store.SaveMessage(ctx, msg)
	})
	if saveErr != nil {
		if telemetry.PersistFailures != nil {
			telemetry.PersistFailures.Inc()
		}
		telemetry.RecordError(span, saveErr)
		return fmt.Errorf("persist message: %w", saveErr)
	}
	if telemetry.MessagesPersisted != nil {
		telemetry.MessagesPersisted.Inc()
	}

	r.hub.Broadcast(msg.Platform, msg.ChatID, msg)

	telemetry.LoggerWithCorr(ctx).Info("received message",
		slog.String("chat", msg.Platform+"/"+msg.ChatID),
		slog.String("content", message.Truncate(msg.Content, 65)),
		slog.String("component", "relay"))
	telemetry.SetSpanSuccess(span)
	return nil
}
