package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// OneBotServer is a mock OneBot v11 websocket endpoint. It answers
// get_group_info actions with configurable data and can push arbitrary
// events to the connected adapter.
type OneBotServer struct {
	*httptest.Server
	GroupName   string
	MemberCount int

	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns []*websocket.Conn
}

// NewOneBotServer starts the mock endpoint. It is closed via t.Cleanup.
func NewOneBotServer(t *testing.T) *OneBotServer {
	t.Helper()
	s := &OneBotServer{GroupName: "Test Group", MemberCount: 42}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// WSURL returns the ws:// form of the server URL.
func (s *OneBotServer) WSURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func (s *OneBotServer) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.conns = append(s.conns, conn)
	s.mu.Unlock()

	for {
		var req struct {
			Action string         `json:"action"`
			Params map[string]any `json:"params"`
			Echo   string         `json:"echo"`
		}
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		if req.Action != "get_group_info" {
			_ = conn.WriteJSON(map[string]any{"status": "failed", "retcode": 1404, "echo": req.Echo})
			continue
		}
		gid, _ := req.Params["group_id"].(float64)
		_ = conn.WriteJSON(map[string]any{
			"status":  "ok",
			"retcode": 0,
			"echo":    req.Echo,
			"data": map[string]any{
				"group_id":     int64(gid),
				"group_name":   s.GroupName,
				"member_count": s.MemberCount,
			},
		})
	}
}

// PushEvent sends an event frame to every connected adapter.
func (s *OneBotServer) PushEvent(t *testing.T, event any) {
	t.Helper()
	data, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.conns) == 0 {
		t.Fatal("no adapter connected to mock onebot server")
	}
	for _, c := range s.conns {
		if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
			t.Fatalf("push event: %v", err)
		}
	}
}

// WaitForConnection blocks until an adapter has connected.
func (s *OneBotServer) WaitForConnection(t *testing.T) {
	t.Helper()
	for i := 0; i < 200; i++ {
		s.mu.Lock()
		n := len(s.conns)
		s.mu.Unlock()
		if n > 0 {
			return
		}
		sleep()
	}
	t.Fatal("adapter never connected to mock onebot server")
}

func sleep() { time.Sleep(10 * time.Millisecond) }
