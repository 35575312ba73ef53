package wsmux

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// mockWSServer mirrors the pack's usual httptest+gorilla websocket test
// harness: handler runs once per accepted connection.
func mockWSServer(t *testing.T, handler func(*websocket.Conn)) *httptest.Server {
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		handler(conn)
	}))
	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

// testPolicy is a minimal ChannelPolicy that decodes frames as fakeEvents
// and records every event that survives the dispatch-time filter, so a
// test can assert on what actually made it through dispatch.
type testPolicy struct {
	url       string
	lifecycle Lifecycle

	mu         sync.Mutex
	dispatched []RawEvent
}

func (p *testPolicy) URL() string { return p.url }

func (p *testPolicy) BuildSubscription(g *Group) (any, error) {
	return map[string]any{"keys": g.Keys()}, nil
}

func (p *testPolicy) ParseFrame(data []byte) ([]RawEvent, error) {
	raw, err := ParseFrame[fakeEvent](data)
	if err != nil {
		return nil, err
	}
	out := make([]RawEvent, 0, len(raw))
	for _, e := range raw {
		out = append(out, e)
	}
	return out, nil
}

func (p *testPolicy) Dispatch(g *Group, events []RawEvent, filter FilterFunc) {
	filtered := filter(events)
	p.mu.Lock()
	p.dispatched = append(p.dispatched, filtered...)
	p.mu.Unlock()
}

func (p *testPolicy) Lifecycle() Lifecycle { return p.lifecycle }

func (p *testPolicy) snapshot() []RawEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]RawEvent, len(p.dispatched))
	copy(out, p.dispatched)
	return out
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestManager_AddSubscriptions_DialsAndDispatchesMatchingEvents(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		conn.WriteJSON(fakeEvent{Key_: "a", Kind_: "tick"})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	policy := &testPolicy{url: wsURL(server)}
	registry := NewGroupRegistry(0, sequentialIDs())
	mgr := NewManager(registry, policy, Options{
		ReconnectAndCleanupInterval: time.Hour,
		Dialer:                      websocket.DefaultDialer,
	}, nil)
	defer mgr.ClearState()

	mgr.AddSubscriptions(context.Background(), []string{"a"})

	waitFor(t, time.Second, func() bool { return len(policy.snapshot()) == 1 })

	events := policy.snapshot()
	if events[0].Key() != "a" {
		t.Errorf("dispatched event key = %q, want a", events[0].Key())
	}
}

func TestManager_AddSubscriptions_FiltersEventsForRemovedKeys(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		conn.WriteJSON(fakeEvent{Key_: "a", Kind_: "tick"})
		conn.WriteJSON(fakeEvent{Key_: "b", Kind_: "tick"})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	policy := &testPolicy{url: wsURL(server)}
	registry := NewGroupRegistry(0, sequentialIDs())
	mgr := NewManager(registry, policy, Options{
		ReconnectAndCleanupInterval: time.Hour,
		Dialer:                      websocket.DefaultDialer,
	}, nil)
	defer mgr.ClearState()

	mgr.AddSubscriptions(context.Background(), []string{"a", "b"})
	registry.RemoveKeys([]string{"b"}, nil)

	waitFor(t, time.Second, func() bool { return len(policy.snapshot()) >= 1 })
	time.Sleep(50 * time.Millisecond) // let any in-flight "b" frame settle

	for _, e := range policy.snapshot() {
		if e.Key() == "b" {
			t.Error("expected events for removed key b to be filtered out")
		}
	}
}

func TestManager_ClearState_ClosesSocketsAndRunsCleanup(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	var cleaned bool
	policy := &testPolicy{url: wsURL(server)}
	registry := NewGroupRegistry(0, sequentialIDs())
	mgr := NewManager(registry, policy, Options{
		ReconnectAndCleanupInterval: time.Hour,
		Dialer:                      websocket.DefaultDialer,
	}, func() { cleaned = true })

	mgr.AddSubscriptions(context.Background(), []string{"a"})
	waitFor(t, time.Second, func() bool {
		g, ok := registry.FindGroupByID("g1")
		return ok && g.Status() == StatusAlive
	})

	mgr.ClearState()

	if !cleaned {
		t.Error("expected cleanup hook to run after ClearState")
	}
	if len(registry.Snapshot()) != 0 {
		t.Error("expected registry to be empty after ClearState")
	}
}

func TestManager_Dial_ReportsErrorForUnknownGroup(t *testing.T) {
	var gotErr error
	policy := &testPolicy{
		url:       "ws://127.0.0.1:0",
		lifecycle: Lifecycle{OnError: func(err error) { gotErr = err }},
	}
	registry := NewGroupRegistry(0, sequentialIDs())
	mgr := NewManager(registry, policy, Options{ReconnectAndCleanupInterval: time.Hour}, nil)
	defer mgr.ClearState()

	mgr.dial(context.Background(), "nonexistent")

	if gotErr == nil {
		t.Error("expected Lifecycle.OnError to fire for a dial against an unknown group")
	}
}
