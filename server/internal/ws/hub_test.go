package ws_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/obsidianstack/aggregator/pkg/lamport"
	"github.com/obsidianstack/aggregator/pkg/reading"
	"github.com/obsidianstack/aggregator/server/internal/store"
	wsHub "github.com/obsidianstack/aggregator/server/internal/ws"
)

const testInterval = 20 * time.Millisecond

// --- helpers ----------------------------------------------------------------

func newStore(ids ...string) *store.Store {
	st := store.New()
	for i, id := range ids {
		st.Upsert(id, reading.FromPairs("id", id, "air_temp", "13.3"), uint64(i+1))
	}
	return st
}

// startHub starts a test HTTP server with the hub as its handler.
// The hub's Run loop is started with a cancellable context.
// Returns the ws:// URL, the hub, and a cleanup function.
func startHub(t *testing.T, st *store.Store, clock *lamport.Clock) (wsURL string, hub *wsHub.Hub, cancel func()) {
	t.Helper()

	hub = wsHub.New(st, clock, nil, testInterval)
	ctx, cancelFn := context.WithCancel(context.Background())

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeHTTP))
	go hub.Run(ctx)

	t.Cleanup(func() {
		cancelFn()
		srv.Close()
	})

	wsURL = "ws" + strings.TrimPrefix(srv.URL, "http")
	return wsURL, hub, cancelFn
}

// dial connects a WebSocket client to wsURL and returns the connection.
func dial(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readMessage reads one message from conn with a short deadline and decodes it.
func readMessage(t *testing.T, conn *websocket.Conn) wsHub.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	var m wsHub.Message
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal: %v (raw %s)", err, raw)
	}
	return m
}

// --- tests ------------------------------------------------------------------

func TestHub_Connect_ReceivesImmediateReadings(t *testing.T) {
	wsURL, _, _ := startHub(t, newStore("S1"), lamport.New(7))

	m := readMessage(t, dial(t, wsURL))
	if m.Event != wsHub.EventReadings {
		t.Errorf("event: got %q, want %q", m.Event, wsHub.EventReadings)
	}
	if m.Data.GeneratedAt == "" {
		t.Error("generated_at: missing")
	}
	if m.Data.Clock != 7 {
		t.Errorf("clock: got %d, want 7", m.Data.Clock)
	}
	if len(m.Data.Readings) != 1 {
		t.Fatalf("readings: got %d, want 1", len(m.Data.Readings))
	}
	r, err := reading.Unmarshal(m.Data.Readings[0])
	if err != nil {
		t.Fatalf("decode reading: %v", err)
	}
	if !r.Equal(reading.FromPairs("id", "S1", "air_temp", "13.3")) {
		t.Errorf("reading: got %v", r)
	}
}

func TestHub_ReadingsSortedByID(t *testing.T) {
	wsURL, _, _ := startHub(t, newStore("c", "a", "b"), lamport.New(0))

	m := readMessage(t, dial(t, wsURL))
	if len(m.Data.Readings) != 3 {
		t.Fatalf("readings: got %d, want 3", len(m.Data.Readings))
	}
	for i, want := range []string{"a", "b", "c"} {
		r, _ := reading.Unmarshal(m.Data.Readings[i])
		if r.ID() != want {
			t.Errorf("readings[%d]: got %q, want %q", i, r.ID(), want)
		}
	}
}

func TestHub_EmptyStore_EmptyReadings(t *testing.T) {
	wsURL, _, _ := startHub(t, newStore(), lamport.New(0))
	conn := dial(t, wsURL)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), `"readings":[]`) {
		t.Errorf("empty store should encode readings as []: %s", raw)
	}
}

func TestHub_DoesNotAdvanceClock(t *testing.T) {
	clock := lamport.New(3)
	wsURL, _, _ := startHub(t, newStore("S1"), clock)
	conn := dial(t, wsURL)
	for i := 0; i < 3; i++ {
		readMessage(t, conn)
	}
	if got := clock.Current(); got != 3 {
		t.Errorf("clock after streaming: got %d, want 3", got)
	}
}

func TestHub_CountClients_MultipleClients(t *testing.T) {
	wsURL, hub, _ := startHub(t, newStore(), lamport.New(0))

	for i := 0; i < 3; i++ {
		conn := dial(t, wsURL)
		readMessage(t, conn) // consume initial message
	}

	time.Sleep(10 * time.Millisecond)
	if n := hub.Count(); n != 3 {
		t.Errorf("Count: got %d, want 3", n)
	}
}

func TestHub_CountClients_DecreasesOnDisconnect(t *testing.T) {
	wsURL, hub, _ := startHub(t, newStore(), lamport.New(0))

	conn := dial(t, wsURL)
	readMessage(t, conn)
	time.Sleep(10 * time.Millisecond)

	if n := hub.Count(); n != 1 {
		t.Errorf("Count before disconnect: got %d, want 1", n)
	}

	conn.Close()
	time.Sleep(50 * time.Millisecond) // let readPump detect the close

	if n := hub.Count(); n != 0 {
		t.Errorf("Count after disconnect: got %d, want 0", n)
	}
}

func TestHub_ReceivesBroadcastOnTick(t *testing.T) {
	st := newStore()
	wsURL, _, _ := startHub(t, st, lamport.New(0))

	conn := dial(t, wsURL)
	readMessage(t, conn) // consume immediate message (empty store)

	st.Upsert("new-source", reading.FromPairs("id", "new-source"), 1)

	// A tick may already be queued from before the upsert; wait for the
	// first message that includes it.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		m := readMessage(t, conn)
		if len(m.Data.Readings) == 1 {
			r, _ := reading.Unmarshal(m.Data.Readings[0])
			if r.ID() != "new-source" {
				t.Errorf("id: got %q, want new-source", r.ID())
			}
			return
		}
	}
	t.Fatal("no broadcast carried the new reading")
}

func TestHub_CancelContextClosesConnections(t *testing.T) {
	wsURL, hub, cancel := startHub(t, newStore(), lamport.New(0))

	conn := dial(t, wsURL)
	readMessage(t, conn)
	time.Sleep(10 * time.Millisecond)

	cancel()

	time.Sleep(50 * time.Millisecond)
	if n := hub.Count(); n != 0 {
		t.Errorf("Count after cancel: got %d, want 0", n)
	}
}

func TestHub_NonWebSocketRequest_Returns400(t *testing.T) {
	hub := wsHub.New(newStore(), lamport.New(0), nil, testInterval)
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeHTTP))
	defer srv.Close()

	// Plain HTTP GET without upgrade headers.
	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", resp.StatusCode)
	}
}

func TestBuildSnapshot_NilClock(t *testing.T) {
	s := wsHub.BuildSnapshot(newStore("S1"), nil, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), 0)
	if s.Clock != 0 {
		t.Errorf("clock: got %d, want 0", s.Clock)
	}
	if s.GeneratedAt != "2026-01-02T03:04:05Z" {
		t.Errorf("generated_at: got %q", s.GeneratedAt)
	}
}

func TestBuildSnapshot_SkipsExpiredUnswept(t *testing.T) {
	t0 := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	now := t0
	st := store.NewWithClock(func() time.Time { return now })
	st.Upsert("old", reading.FromPairs("id", "old"), 1)
	now = t0.Add(20 * time.Second)
	st.Upsert("new", reading.FromPairs("id", "new"), 2)
	now = t0.Add(31 * time.Second)

	s := wsHub.BuildSnapshot(st, nil, now, 30*time.Second)
	if len(s.Readings) != 1 || string(s.Readings[0]) != `{"id":"new"}` {
		t.Fatalf("readings: got %s, want only new", s.Readings)
	}
	if st.Len() != 2 {
		t.Errorf("snapshot mutated the store: len %d", st.Len())
	}

	if got := wsHub.BuildSnapshot(st, nil, now, 0); len(got.Readings) != 2 {
		t.Errorf("zero expiry: got %d readings, want 2", len(got.Readings))
	}
}
