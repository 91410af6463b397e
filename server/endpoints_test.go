package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/LivelyChat/api/config"
	"github.com/LivelyChat/api/message"
	"github.com/LivelyChat/api/relay"
	"github.com/LivelyChat/api/testutil"
)

func testConfig() *config.Config {
	return &config.Config{
		HTTPAddr: ":3000",
		Platforms: map[string]config.PlatformConfig{
			"qq": {
				Chats: []config.ChatConfig{
					{ID: "g1"},
					{ID: "g2", Secret: "s3cr3t", Aliases: []string{"general"}},
				},
			},
		},
	}
}

type env struct {
	store   *testutil.FakeStore
	hub     *testutil.FakeHub
	handler http.Handler
}

func newTestEnv(t *testing.T) *env {
	t.Helper()
	st := testutil.NewFakeStore()
	hub := testutil.NewFakeHub()
	deps := Deps{
		Cfg:   testConfig(),
		Store: st,
		Relay: relay.New(st, hub),
	}
	return &env{store: st, hub: hub, handler: NewMux(deps)}
}

func (e *env) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

const sampleBody = `{
	"id": "1",
	"content": "hi",
	"elements": [],
	"timestamp": 1700000000,
	"sender": {"id": "42", "avatar": "https://example.com/a.jpg", "username": "John Doe", "nickname": "JD"},
	"chatId": "g1",
	"platform": "qq"
}`

func TestSubmitThenQueryScenario(t *testing.T) {
	e := newTestEnv(t)

	rr := e.do(t, http.MethodPost, "/messages/new", sampleBody)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d, body=%s", rr.Code, rr.Body.String())
	}
	if rr.Body.Len() != 0 {
		t.Fatalf("expected empty body, got %q", rr.Body.String())
	}
	if len(e.hub.Broadcasts()) != 1 {
		t.Fatalf("expected one broadcast, got %d", len(e.hub.Broadcasts()))
	}

	rr = e.do(t, http.MethodGet, "/messages?platform=qq&chat=g1", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body=%s", rr.Code, rr.Body.String())
	}
	var list message.List
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if list.Total != 1 || len(list.Messages) != 1 {
		t.Fatalf("expected total=1 with one message, got %+v", list)
	}
	got := list.Messages[0]
	if got.ID != "1" || got.Content != "hi" || got.Timestamp != 1700000000 {
		t.Fatalf("unexpected message: %+v", got)
	}
}

func TestSubmitStripsUnknownFields(t *testing.T) {
	e := newTestEnv(t)
	body := strings.TrimSuffix(strings.TrimSpace(sampleBody), "}") + `, "extra": "ignored", "nested": {"x": 1}}`
	rr := e.do(t, http.MethodPost, "/messages/new", body)
	if rr.Code != http.StatusCreated {
		t.Fatalf("unknown fields must be stripped, got %d, body=%s", rr.Code, rr.Body.String())
	}
	saved := e.store.Saved()
	if len(saved) != 1 || saved[0].ID != "1" {
		t.Fatalf("expected one stored message, got %+v", saved)
	}
}

func TestSubmitRequiresFullSchema(t *testing.T) {
	e := newTestEnv(t)

	full := map[string]any{
		"id":        "1",
		"content":   "hi",
		"elements":  []any{},
		"timestamp": 1700000000,
		"sender": map[string]any{
			"id": "42", "avatar": "https://example.com/a.jpg",
			"username": "John Doe", "nickname": "JD",
		},
		"chatId":   "g1",
		"platform": "qq",
	}
	for _, missing := range []string{"id", "content", "elements", "timestamp", "sender", "chatId", "platform"} {
		body := make(map[string]any, len(full))
		for k, v := range full {
			if k != missing {
				body[k] = v
			}
		}
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		if rr := e.do(t, http.MethodPost, "/messages/new", string(data)); rr.Code != http.StatusBadRequest {
			t.Errorf("missing %s: expected 400, got %d", missing, rr.Code)
		}
	}
	for _, missing := range []string{"id", "avatar", "username", "nickname"} {
		sender := map[string]any{}
		for k, v := range full["sender"].(map[string]any) {
			if k != missing {
				sender[k] = v
			}
		}
		body := make(map[string]any, len(full))
		for k, v := range full {
			body[k] = v
		}
		body["sender"] = sender
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		if rr := e.do(t, http.MethodPost, "/messages/new", string(data)); rr.Code != http.StatusBadRequest {
			t.Errorf("missing sender.%s: expected 400, got %d", missing, rr.Code)
		}
	}
	if len(e.store.Saved()) != 0 {
		t.Fatal("incomplete submissions must not be stored")
	}
}

func TestSubmitAcceptsEmptyContent(t *testing.T) {
	e := newTestEnv(t)
	body := `{
		"id": "1", "content": "", "elements": [], "timestamp": 0,
		"sender": {"id": "42", "avatar": "", "username": "", "nickname": ""},
		"chatId": "g1", "platform": "qq"
	}`
	if rr := e.do(t, http.MethodPost, "/messages/new", body); rr.Code != http.StatusCreated {
		t.Fatalf("present-but-empty fields must pass, got %d, body=%s", rr.Code, rr.Body.String())
	}
}

func TestSubmitMalformedBody(t *testing.T) {
	e := newTestEnv(t)
	rr := e.do(t, http.MethodPost, "/messages/new", `{"id": 5}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	rr = e.do(t, http.MethodPost, "/messages/new", `{"content": "no ids"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing fields, got %d", rr.Code)
	}
	if len(e.store.Saved()) != 0 {
		t.Fatal("malformed submissions must not be stored")
	}
}

func TestQueryValidation(t *testing.T) {
	e := newTestEnv(t)

	for _, target := range []string{
		"/messages",
		"/messages?platform=qq",
		"/messages?chat=g1",
		"/messages?platform=qq&chat=g1&limit=0",
		"/messages?platform=qq&chat=g1&limit=101",
		"/messages?platform=qq&chat=g1&limit=abc",
		"/messages?platform=qq&chat=g1&before=abc",
		"/messages?platform=qq&chat=g1&before=-5",
	} {
		if rr := e.do(t, http.MethodGet, target, ""); rr.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", target, rr.Code)
		}
	}
}

func TestQueryAccessControl(t *testing.T) {
	e := newTestEnv(t)

	rr := e.do(t, http.MethodGet, "/messages?platform=qq&chat=unknown", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	var body struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &body)
	if body.Error != "Chat not found" {
		t.Fatalf("unexpected error message %q", body.Error)
	}

	rr = e.do(t, http.MethodGet, "/messages?platform=qq&chat=g2&secret=wrong", "")
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
	rr = e.do(t, http.MethodGet, "/messages?platform=qq&chat=g2&secret=s3cr3t", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 with correct secret, got %d", rr.Code)
	}
}

func TestQueryResolvesAliasAndLowercasesPlatform(t *testing.T) {
	e := newTestEnv(t)

	msg := message.Message{ID: "9", Content: "x", Elements: []any{}, Timestamp: 10, Sender: message.Sender{ID: "1"}, ChatID: "g2", Platform: "qq"}
	if err := e.store.SaveMessage(t.Context(), msg); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	rr := e.do(t, http.MethodGet, "/messages?platform=QQ&chat=general&secret=s3cr3t", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body=%s", rr.Code, rr.Body.String())
	}
	var list message.List
	_ = json.Unmarshal(rr.Body.Bytes(), &list)
	if list.Total != 1 {
		t.Fatalf("alias did not resolve to g2: %+v", list)
	}
}

func TestQueryBeforeAndLimit(t *testing.T) {
	e := newTestEnv(t)
	for i := int64(1); i <= 5; i++ {
		msg := message.Message{ID: "m", Content: "c", Elements: []any{}, Timestamp: 1000 + i, Sender: message.Sender{ID: "1"}, ChatID: "g1", Platform: "qq"}
		if err := e.store.SaveMessage(t.Context(), msg); err != nil {
			t.Fatalf("seed store: %v", err)
		}
	}

	rr := e.do(t, http.MethodGet, "/messages?platform=qq&chat=g1&limit=2&before=1004", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var list message.List
	_ = json.Unmarshal(rr.Body.Bytes(), &list)
	if list.Total != 5 {
		t.Fatalf("total must ignore before: got %d", list.Total)
	}
	if len(list.Messages) != 2 {
		t.Fatalf("limit not honored: %d messages", len(list.Messages))
	}
	if list.Messages[0].Timestamp != 1003 || list.Messages[1].Timestamp != 1002 {
		t.Fatalf("expected newest-first strictly before 1004, got %+v", list.Messages)
	}
}

func TestOverview(t *testing.T) {
	e := newTestEnv(t)
	msg := message.Message{ID: "1", Elements: []any{}, Timestamp: 1, Sender: message.Sender{ID: "1"}, ChatID: "g1", Platform: "qq"}
	_ = e.store.SaveMessage(t.Context(), msg)

	rr := e.do(t, http.MethodGet, "/", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var ov Overview
	if err := json.Unmarshal(rr.Body.Bytes(), &ov); err != nil {
		t.Fatalf("decode overview: %v", err)
	}
	if ov.ChatCount != 2 || ov.MessageCount != 1 {
		t.Fatalf("unexpected overview: %+v", ov)
	}
}

func TestUnmatchedPathIsJSON404(t *testing.T) {
	e := newTestEnv(t)
	rr := e.do(t, http.MethodGet, "/nope", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected JSON error, got %q", ct)
	}
}

func TestHealthz(t *testing.T) {
	e := newTestEnv(t)
	rr := e.do(t, http.MethodGet, "/healthz", "")
	if rr.Code != http.StatusOK || rr.Body.String() != "ok" {
		t.Fatalf("healthz: %d %q", rr.Code, rr.Body.String())
	}
}

func TestCORSHeaders(t *testing.T) {
	e := newTestEnv(t)
	rr := e.do(t, http.MethodOptions, "/messages", "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204 preflight, got %d", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("missing permissive CORS header")
	}
}

func TestCorrelationIDEchoed(t *testing.T) {
	e := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Correlation-ID", "abc-123")
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	if rr.Header().Get("X-Correlation-ID") != "abc-123" {
		t.Fatal("correlation id not echoed")
	}
}
