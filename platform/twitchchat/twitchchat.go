// Package twitchchat relays Twitch channels over IRC. A chat's ID is
// the lower-cased channel name.
package twitchchat

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/LivelyChat/api/config"
	"github.com/LivelyChat/api/message"
	"github.com/LivelyChat/api/platform"
)

// Adapter is the Twitch IRC adapter. Reconnection is handled by the
// IRC client itself.
type Adapter struct {
	cfg     config.PlatformConfig
	receive platform.ReceiveFunc
	client  *twitch.Client
}

// New builds the adapter from the twitch platform config. With no
// username/oauth configured the client connects anonymously, which is
// enough for reading chat.
func New(cfg config.PlatformConfig, receive platform.ReceiveFunc) *Adapter {
	var client *twitch.Client
	if cfg.Username != "" && cfg.OAuth != "" {
		client = twitch.NewClient(cfg.Username, cfg.OAuth)
	} else {
		client = twitch.NewAnonymousClient()
	}
	return &Adapter{cfg: cfg, receive: receive, client: client}
}

// Name implements platform.Adapter.
func (a *Adapter) Name() string { return "twitch" }

// Connect joins the configured channels and blocks on the IRC
// connection until Close or ctx cancellation.
func (a *Adapter) Connect(ctx context.Context) error {
	a.client.OnPrivateMessage(func(msg twitch.PrivateMessage) {
		a.handleMessage(ctx, msg)
	})
	a.client.OnConnect(func() {
		slog.Info("connected to twitch", slog.Any("channels", a.channels()))
	})

	for _, ch := range a.channels() {
		a.client.Join(ch)
	}

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		_ = a.client.Disconnect()
		close(done)
	}()

	err := a.client.Connect()
	if ctx.Err() != nil {
		<-done
		return ctx.Err()
	}
	if err != nil {
		return fmt.Errorf("twitch connect: %w", err)
	}
	return nil
}

// Close implements platform.Adapter.
func (a *Adapter) Close() error {
	return a.client.Disconnect()
}

func (a *Adapter) channels() []string {
	out := make([]string, 0, len(a.cfg.Chats))
	for _, c := range a.cfg.Chats {
		out = append(out, strings.ToLower(c.ID))
	}
	sort.Strings(out)
	return out
}

func (a *Adapter) handleMessage(ctx context.Context, pm twitch.PrivateMessage) {
	chatID := strings.ToLower(strings.TrimPrefix(pm.Channel, "#"))
	if !a.configured(chatID) {
		return
	}
	msg := normalize(pm, chatID)
	if err := a.receive(ctx, msg); err != nil {
		slog.Error("twitch message not relayed", slog.String("chat", chatID), slog.Any("err", err))
	}
}

func (a *Adapter) configured(chatID string) bool {
	for _, c := range a.cfg.Chats {
		if strings.ToLower(c.ID) == chatID {
			return true
		}
	}
	return false
}

// normalize maps an IRC PRIVMSG onto the relay's Message shape. Twitch
// has no avatar in the IRC tags, so the sender avatar is left empty;
// the broadcaster/moderator badge becomes the role.
func normalize(pm twitch.PrivateMessage, chatID string) message.Message {
	ts := pm.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	return message.Message{
		ID:        pm.ID,
		Content:   pm.Message,
		Elements:  []any{},
		Timestamp: ts.Unix(),
		Sender: message.Sender{
			ID:       pm.User.ID,
			Username: pm.User.DisplayName,
			Nickname: pm.User.Name,
			Role:     roleFromBadges(pm.User.Badges),
		},
		ChatID:   chatID,
		Platform: "twitch",
	}
}

func roleFromBadges(badges map[string]int) string {
	switch {
	case badges["broadcaster"] > 0:
		return "broadcaster"
	case badges["moderator"] > 0:
		return "moderator"
	case badges["vip"] > 0:
		return "vip"
	default:
		return ""
	}
}
