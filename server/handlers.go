// Package server exposes the HTTP API: message submission, paginated
// history queries, the qq group side query, the overview aggregate, the
// generated OpenAPI document, and the websocket entry into the realtime
// hub, plus the operational health/readiness/metrics endpoints.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/LivelyChat/api/access"
	"github.com/LivelyChat/api/config"
	"github.com/LivelyChat/api/message"
	"github.com/LivelyChat/api/platform"
	"github.com/LivelyChat/api/store"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// MessageStore is the slice of the persistence adapter the read path needs.
type MessageStore interface {
	Messages(ctx context.Context, q store.Query) (message.List, error)
	CountMessages(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
}

// Receiver is the ingestion entry point (the relay orchestrator).
type Receiver interface {
	Receive(ctx context.Context, msg message.Message) error
}

// GroupQuerier answers the qq group info side query.
type GroupQuerier interface {
	GroupInfo(ctx context.Context, groupID string) (platform.Group, error)
}

// Deps carries the collaborators handlers need. Groups is nil when the
// qq platform is not configured.
type Deps struct {
	Cfg    *config.Config
	Store  MessageStore
	Relay  Receiver
	Hub    http.Handler
	Groups GroupQuerier
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	deps Deps
}

// NewHandlers creates a Handlers instance with the given dependencies.
func NewHandlers(deps Deps) *Handlers {
	return &Handlers{deps: deps}
}

// Overview is the process-wide aggregate served at /.
type Overview struct {
	ChatCount    int   `json:"chatCount"`
	MessageCount int64 `json:"messageCount"`
}

// newMessageRequest mirrors the submission body with pointer fields so
// validation can tell a missing key from a zero value. Unknown keys are
// ignored, not rejected.
type newMessageRequest struct {
	ID        *string        `json:"id"`
	Content   *string        `json:"content"`
	Elements  *[]any         `json:"elements"`
	Timestamp *int64         `json:"timestamp"`
	Sender    *senderRequest `json:"sender"`
	ChatID    *string        `json:"chatId"`
	Platform  *string        `json:"platform"`
}

type senderRequest struct {
	ID       *string `json:"id"`
	Avatar   *string `json:"avatar"`
	Username *string `json:"username"`
	Nickname *string `json:"nickname"`
	Role     *string `json:"role"`
}

func (r newMessageRequest) validate() error {
	switch {
	case r.ID == nil || *r.ID == "":
		return errors.New("id is required")
	case r.Content == nil:
		return errors.New("content is required")
	case r.Elements == nil:
		return errors.New("elements is required")
	case r.Timestamp == nil:
		return errors.New("timestamp is required")
	case *r.Timestamp < 0:
		return errors.New("timestamp must not be negative")
	case r.Sender == nil:
		return errors.New("sender is required")
	case r.Sender.ID == nil || *r.Sender.ID == "":
		return errors.New("sender.id is required")
	case r.Sender.Avatar == nil:
		return errors.New("sender.avatar is required")
	case r.Sender.Username == nil:
		return errors.New("sender.username is required")
	case r.Sender.Nickname == nil:
		return errors.New("sender.nickname is required")
	case r.ChatID == nil || *r.ChatID == "":
		return errors.New("chatId is required")
	case r.Platform == nil || *r.Platform == "":
		return errors.New("platform is required")
	}
	return nil
}

// message converts a validated request. Call validate first.
func (r newMessageRequest) message() message.Message {
	elems := *r.Elements
	if elems == nil {
		elems = []any{}
	}
	msg := message.Message{
		ID:        *r.ID,
		Content:   *r.Content,
		Elements:  elems,
		Timestamp: *r.Timestamp,
		Sender: message.Sender{
			ID:       *r.Sender.ID,
			Avatar:   *r.Sender.Avatar,
			Username: *r.Sender.Username,
			Nickname: *r.Sender.Nickname,
		},
		ChatID:   *r.ChatID,
		Platform: strings.ToLower(*r.Platform),
	}
	if r.Sender.Role != nil {
		msg.Sender.Role = *r.Sender.Role
	}
	return msg
}

// HandleNewMessage accepts a message submission and runs it through the
// relay. Every message field except sender.role must be present; unknown
// keys are stripped. The submission path carries no access-control gate;
// platform adapters have already filtered their chats and HTTP callers
// are trusted to address configured chats.
func (h *Handlers) HandleNewMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req newMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed message body")
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.deps.Relay.Receive(r.Context(), req.message()); err != nil {
		slog.Error("message ingestion failed", slog.Any("err", err), slog.String("component", "http"))
		writeError(w, http.StatusInternalServerError, "failed to store message")
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// HandleMessages serves the paginated history query. platform is
// lower-cased server-side; chat may be a chat ID or alias.
func (h *Handlers) HandleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	q := r.URL.Query()
	plat := strings.ToLower(q.Get("platform"))
	chat := q.Get("chat")
	if plat == "" || chat == "" {
		writeError(w, http.StatusBadRequest, "platform and chat are required")
		return
	}

	limit, err := parseBoundedIntQuery(r, "limit", defaultLimit, 1, maxLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	before, err := parseOptionalIntQuery(r, "before")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if before < 0 {
		writeError(w, http.StatusBadRequest, "before must be positive")
		return
	}

	cc, err := access.Validate(h.deps.Cfg, plat, chat, q.Get("secret"))
	if err != nil {
		writeError(w, access.StatusCode(err), err.Error())
		return
	}

	list, err := h.deps.Store.Messages(r.Context(), store.Query{
		Platform: plat,
		ChatID:   cc.ID,
		Limit:    int64(limit),
		Before:   before,
	})
	if err != nil {
		slog.Error("message query failed", slog.Any("err", err), slog.String("component", "http"))
		writeError(w, http.StatusInternalServerError, "failed to query messages")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleQqGroup serves GET /qq/group/{groupId}: configured-chat and
// secret checks first, then the live platform query.
func (h *Handlers) HandleQqGroup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	groupID := strings.TrimPrefix(r.URL.Path, "/qq/group/")
	if groupID == "" || strings.Contains(groupID, "/") {
		writeError(w, http.StatusNotFound, "Chat not found")
		return
	}
	cc, err := access.Validate(h.deps.Cfg, "qq", groupID, r.URL.Query().Get("secret"))
	if err != nil {
		writeError(w, access.StatusCode(err), err.Error())
		return
	}
	if h.deps.Groups == nil {
		writeError(w, http.StatusBadGateway, "qq adapter unavailable")
		return
	}
	group, err := h.deps.Groups.GroupInfo(r.Context(), cc.ID)
	if err != nil {
		slog.Error("qq group query failed", slog.String("group", cc.ID), slog.Any("err", err), slog.String("component", "http"))
		writeError(w, http.StatusBadGateway, "failed to query group info")
		return
	}
	writeJSON(w, http.StatusOK, group)
}

// HandleOverview serves the aggregate at /. The root pattern also
// catches unmatched paths, which get a JSON 404.
func (h *Handlers) HandleOverview(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	count, err := h.deps.Store.CountMessages(r.Context())
	if err != nil {
		slog.Error("message count failed", slog.Any("err", err), slog.String("component", "http"))
		writeError(w, http.StatusInternalServerError, "failed to count messages")
		return
	}
	writeJSON(w, http.StatusOK, Overview{
		ChatCount:    h.deps.Cfg.ChatCount(),
		MessageCount: count,
	})
}

// HandleHealthz reports process liveness.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz reports readiness: the store must be reachable.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unreachable")
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
