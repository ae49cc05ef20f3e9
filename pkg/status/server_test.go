package status

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"

	"github.com/voicelink/go-voicelink/pkg/connection"
	"github.com/voicelink/go-voicelink/pkg/session"
)

// fakeSession feeds the server canned state and a real event bus.
type fakeSession struct {
	bus *session.EventBus
}

func newFakeSession() *fakeSession {
	return &fakeSession{bus: session.NewEventBus()}
}

func (f *fakeSession) Snapshot() session.Snapshot {
	return session.Snapshot{
		SessionID:    "test-session",
		SessionState: "active",
		Connection:   connection.Status{State: connection.StateConnected},
	}
}

func (f *fakeSession) Subscribe() (<-chan session.Event, func()) {
	return f.bus.Subscribe()
}

func newTestServer() (*Server, *fakeSession) {
	sess := newFakeSession()
	stats := func() Stats {
		return Stats{
			Connection: connection.Stats{MessagesSent: 7},
		}
	}
	return NewServer(":0", sess, stats, nil), sess
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer()

	req := httptest.NewRequest("GET", "/health", nil)
	resp, err := s.App().Test(req)
	if err != nil {
		t.Fatalf("Request error: %v", err)
	}

	if resp.StatusCode != 200 {
		t.Errorf("Status = %d, want 200", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "ok") {
		t.Errorf("Body should report ok: %s", body)
	}
}

func TestState(t *testing.T) {
	s, _ := newTestServer()

	req := httptest.NewRequest("GET", "/state", nil)
	resp, err := s.App().Test(req)
	if err != nil {
		t.Fatalf("Request error: %v", err)
	}

	if resp.StatusCode != 200 {
		t.Errorf("Status = %d, want 200", resp.StatusCode)
	}

	var snap session.Snapshot
	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &snap); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if snap.SessionID != "test-session" {
		t.Errorf("SessionID = %q, want test-session", snap.SessionID)
	}
	if snap.SessionState != "active" {
		t.Errorf("SessionState = %q, want active", snap.SessionState)
	}
}

func TestStats(t *testing.T) {
	s, _ := newTestServer()

	req := httptest.NewRequest("GET", "/stats", nil)
	resp, err := s.App().Test(req)
	if err != nil {
		t.Fatalf("Request error: %v", err)
	}

	if resp.StatusCode != 200 {
		t.Errorf("Status = %d, want 200", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "messages_sent") {
		t.Errorf("Body should contain connection counters: %s", body)
	}
}

func TestStats_NilFunc(t *testing.T) {
	s := NewServer(":0", newFakeSession(), nil, nil)

	req := httptest.NewRequest("GET", "/stats", nil)
	resp, err := s.App().Test(req)
	if err != nil {
		t.Fatalf("Request error: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("Status = %d, want 200", resp.StatusCode)
	}
}

func TestEventsWS_RequiresUpgrade(t *testing.T) {
	s, _ := newTestServer()

	req := httptest.NewRequest("GET", "/ws/events", nil)
	resp, err := s.App().Test(req)
	if err != nil {
		t.Fatalf("Request error: %v", err)
	}

	if resp.StatusCode != fiber.StatusUpgradeRequired {
		t.Errorf("Status = %d, want 426", resp.StatusCode)
	}
}

func TestEventsWS_Stream(t *testing.T) {
	sess := newFakeSession()
	s := NewServer(":18090", sess, nil, nil)

	s.StartAsync()
	defer s.Shutdown()
	time.Sleep(100 * time.Millisecond)

	ws, _, err := websocket.DefaultDialer.Dial("ws://localhost:18090/ws/events", nil)
	if err != nil {
		t.Fatalf("WebSocket dial error: %v", err)
	}
	defer ws.Close()

	// First message is the current snapshot
	var snap session.Snapshot
	if err := ws.ReadJSON(&snap); err != nil {
		t.Fatalf("Read snapshot failed: %v", err)
	}
	if snap.SessionID != "test-session" {
		t.Errorf("SessionID = %q, want test-session", snap.SessionID)
	}

	// Published events are streamed
	sess.bus.Publish(session.Event{Kind: session.EventResponse, Text: "hi"})

	var ev session.Event
	ws.SetReadDeadline(time.Now().Add(time.Second))
	if err := ws.ReadJSON(&ev); err != nil {
		t.Fatalf("Read event failed: %v", err)
	}
	if ev.Kind != session.EventResponse || ev.Text != "hi" {
		t.Errorf("Event = %+v, want response/hi", ev)
	}
}
