// Package platform defines the adapter capability implemented once per
// supported chat platform. Adapters own their wire protocol and
// reconnection policy, filter inbound traffic to the configured chats,
// and hand normalized messages to the relay callback.
package platform

import (
	"context"
	"log/slog"

	"github.com/LivelyChat/api/message"
)

// ReceiveFunc accepts a normalized inbound message. Adapters call it
// only for chats they are configured to relay.
type ReceiveFunc func(ctx context.Context, msg message.Message) error

// Adapter is one platform integration. Connect blocks until the
// adapter gives up or ctx is cancelled; Close releases the connection.
type Adapter interface {
	Name() string
	Connect(ctx context.Context) error
	Close() error
}

// Group is platform-reported chat metadata, currently served by the qq
// adapter's group info side query.
type Group struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Avatar      string `json:"avatar"`
	MemberCount int    `json:"memberCount"`
}

// Set is the adapter registry keyed by platform name.
type Set map[string]Adapter

// StartAll runs every adapter's Connect in its own goroutine. A
// platform that cannot connect is logged and skipped; it never takes
// the relay down.
func (s Set) StartAll(ctx context.Context) {
	for name, a := range s {
		go func(name string, a Adapter) {
			if err := a.Connect(ctx); err != nil && ctx.Err() == nil {
				slog.Error("platform adapter stopped", slog.String("platform", name), slog.Any("err", err))
			}
		}(name, a)
	}
}

// CloseAll closes every adapter, for shutdown.
func (s Set) CloseAll() {
	for name, a := range s {
		if err := a.Close(); err != nil {
			slog.Warn("platform adapter close failed", slog.String("platform", name), slog.Any("err", err))
		}
	}
}
