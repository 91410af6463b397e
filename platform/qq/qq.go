// Package qq relays QQ chats through a OneBot v11 websocket endpoint
// (e.g. NapCat). It normalizes group and private message events and
// answers group metadata queries over the same connection using
// echo-correlated action calls.
package qq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/LivelyChat/api/config"
	"github.com/LivelyChat/api/platform"
)

const (
	reconnectAttempts = 10
	reconnectDelay    = 5 * time.Second
	actionTimeout     = 10 * time.Second
)

// ErrNotConnected is returned by side queries while the websocket link
// is down.
var ErrNotConnected = errors.New("qq: not connected")

// Adapter is the OneBot v11 websocket adapter.
type Adapter struct {
	cfg     config.PlatformConfig
	receive platform.ReceiveFunc
	url     string

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[string]chan actionResponse

	writeMu sync.Mutex // gorilla allows one concurrent writer

	closed    chan struct{}
	closeOnce sync.Once
}

// New builds the adapter from the qq platform config.
func New(cfg config.PlatformConfig, receive platform.ReceiveFunc) *Adapter {
	scheme := "ws"
	if cfg.Protocol == "wss" {
		scheme = "wss"
	}
	return &Adapter{
		cfg:     cfg,
		receive: receive,
		url:     fmt.Sprintf("%s://%s:%d", scheme, cfg.Host, cfg.Port),
		pending: make(map[string]chan actionResponse),
		closed:  make(chan struct{}),
	}
}

// Name implements platform.Adapter.
func (a *Adapter) Name() string { return "qq" }

// Connect dials the OneBot endpoint and serves the connection until
// Close or ctx cancellation, reconnecting with a fixed delay for up to
// reconnectAttempts consecutive failures. A completed connection resets
// the attempt counter.
func (a *Adapter) Connect(ctx context.Context) error {
	attempts := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-a.closed:
			return nil
		default:
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, a.url, nil)
		if err != nil {
			attempts++
			slog.Warn("qq connect failed", slog.String("url", a.url), slog.Int("attempt", attempts), slog.Any("err", err))
			if attempts >= reconnectAttempts {
				return fmt.Errorf("qq: giving up after %d attempts: %w", attempts, err)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-a.closed:
				return nil
			case <-time.After(reconnectDelay):
			}
			continue
		}

		attempts = 0
		a.setConn(conn)
		slog.Info("connected to qq", slog.String("url", a.url))
		a.readLoop(ctx, conn)
		a.setConn(nil)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-a.closed:
			return nil
		case <-time.After(reconnectDelay):
		}
	}
}

// Close tears the connection down and stops reconnecting.
func (a *Adapter) Close() error {
	a.closeOnce.Do(func() {
		close(a.closed)
		a.mu.Lock()
		conn := a.conn
		a.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
	})
	return nil
}

func (a *Adapter) setConn(conn *websocket.Conn) {
	a.mu.Lock()
	old := a.conn
	a.conn = conn
	var orphaned []chan actionResponse
	if conn == nil {
		for _, ch := range a.pending {
			orphaned = append(orphaned, ch)
		}
		a.pending = make(map[string]chan actionResponse)
	}
	a.mu.Unlock()
	if old != nil && conn != nil {
		_ = old.Close()
	}
	for _, ch := range orphaned {
		close(ch)
	}
}

func (a *Adapter) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				slog.Warn("qq connection lost", slog.Any("err", err))
			}
			return
		}
		a.dispatch(ctx, data)
	}
}

// dispatch routes one inbound frame: action responses carry an echo,
// everything else is an event.
func (a *Adapter) dispatch(ctx context.Context, data []byte) {
	var probe struct {
		Echo     string `json:"echo"`
		PostType string `json:"post_type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		slog.Debug("qq: dropping malformed frame", slog.Any("err", err))
		return
	}

	if probe.Echo != "" {
		var resp actionResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			return
		}
		a.mu.Lock()
		ch, ok := a.pending[probe.Echo]
		delete(a.pending, probe.Echo)
		a.mu.Unlock()
		if ok {
			ch <- resp
			close(ch)
		}
		return
	}

	if probe.PostType == "message" {
		var ev messageEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			slog.Debug("qq: dropping malformed message event", slog.Any("err", err))
			return
		}
		a.handleMessage(ctx, ev)
	}
}

func (a *Adapter) handleMessage(ctx context.Context, ev messageEvent) {
	msg, ok := normalize(ev, a.cfg.Chats)
	if !ok {
		return
	}
	if err := a.receive(ctx, msg); err != nil {
		slog.Error("qq message not relayed", slog.String("chat", msg.ChatID), slog.Any("err", err))
	}
}

// GroupInfo answers the group metadata side query via get_group_info.
func (a *Adapter) GroupInfo(ctx context.Context, groupID string) (platform.Group, error) {
	gid, err := strconv.ParseInt(groupID, 10, 64)
	if err != nil {
		return platform.Group{}, fmt.Errorf("qq: invalid group id %q", groupID)
	}
	resp, err := a.call(ctx, "get_group_info", map[string]any{"group_id": gid})
	if err != nil {
		return platform.Group{}, err
	}
	var info struct {
		GroupID     int64  `json:"group_id"`
		GroupName   string `json:"group_name"`
		MemberCount int    `json:"member_count"`
	}
	if err := json.Unmarshal(resp.Data, &info); err != nil {
		return platform.Group{}, fmt.Errorf("qq: decode group info: %w", err)
	}
	id := strconv.FormatInt(info.GroupID, 10)
	return platform.Group{
		ID:          id,
		Name:        info.GroupName,
		Avatar:      groupAvatarURL(id),
		MemberCount: info.MemberCount,
	}, nil
}

// call sends an echo-correlated action and waits for its response.
func (a *Adapter) call(ctx context.Context, action string, params map[string]any) (actionResponse, error) {
	a.mu.Lock()
	conn := a.conn
	if conn == nil {
		a.mu.Unlock()
		return actionResponse{}, ErrNotConnected
	}
	echo := uuid.New().String()
	ch := make(chan actionResponse, 1)
	a.pending[echo] = ch
	a.mu.Unlock()

	req := actionRequest{Action: action, Params: params, Echo: echo}
	a.writeMu.Lock()
	err := conn.WriteJSON(req)
	a.writeMu.Unlock()
	if err != nil {
		a.forget(echo)
		return actionResponse{}, fmt.Errorf("qq: send %s: %w", action, err)
	}

	timer := time.NewTimer(actionTimeout)
	defer timer.Stop()
	select {
	case resp, ok := <-ch:
		if !ok {
			return actionResponse{}, ErrNotConnected
		}
		if resp.Retcode != 0 {
			return actionResponse{}, fmt.Errorf("qq: %s failed: retcode %d", action, resp.Retcode)
		}
		return resp, nil
	case <-timer.C:
		a.forget(echo)
		return actionResponse{}, fmt.Errorf("qq: %s timed out", action)
	case <-ctx.Done():
		a.forget(echo)
		return actionResponse{}, ctx.Err()
	}
}

func (a *Adapter) forget(echo string) {
	a.mu.Lock()
	delete(a.pending, echo)
	a.mu.Unlock()
}
