package api_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/obsidianstack/aggregator/pkg/lamport"
	"github.com/obsidianstack/aggregator/pkg/reading"
	"github.com/obsidianstack/aggregator/server/internal/api"
	"github.com/obsidianstack/aggregator/server/internal/metrics"
	"github.com/obsidianstack/aggregator/server/internal/store"
)

// --- test helpers -----------------------------------------------------------

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store *store.Store
	clock *lamport.Clock
	now   time.Time
}

func newFixture() *fixture {
	f := &fixture{clock: lamport.New(0), now: t0}
	f.store = store.NewWithClock(func() time.Time { return f.now })
	return f
}

func (f *fixture) put(id string, kv ...string) {
	r := reading.FromPairs(append([]string{"id", id}, kv...)...)
	f.store.Upsert(id, r, f.clock.Advance())
}

func (f *fixture) handler() http.Handler {
	return api.New(api.Options{
		Store:  f.store,
		Clock:  f.clock,
		Expiry: func() time.Duration { return 30 * time.Second },
		Now:    func() time.Time { return f.now },
	})
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON: %v (body: %s)", err, rr.Body.String())
	}
}

// --- /api/v1/health ---------------------------------------------------------

func TestHealth_EmptyStore(t *testing.T) {
	f := newFixture()
	rr := get(t, f.handler(), "/api/v1/health")

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp api.HealthResponse
	decode(t, rr, &resp)

	if resp.Status != "empty" {
		t.Errorf("status: got %q, want empty", resp.Status)
	}
	if resp.RecordCount != 0 {
		t.Errorf("record_count: got %d, want 0", resp.RecordCount)
	}
	if resp.Expiry != "30s" {
		t.Errorf("expiry: got %q, want 30s", resp.Expiry)
	}
}

func TestHealth_FreshnessCounts(t *testing.T) {
	f := newFixture()
	f.put("old")
	f.now = t0.Add(10 * time.Second)
	f.put("mid")
	f.now = t0.Add(20 * time.Second)
	f.put("new")
	f.now = t0.Add(26 * time.Second)
	// ages: old 26s (expiring), mid 16s (aging), new 6s (fresh)

	rr := get(t, f.handler(), "/api/v1/health")
	var resp api.HealthResponse
	decode(t, rr, &resp)

	if resp.Status != "ok" {
		t.Errorf("status: got %q, want ok", resp.Status)
	}
	if resp.RecordCount != 3 {
		t.Errorf("record_count: got %d, want 3", resp.RecordCount)
	}
	if resp.FreshCount != 1 || resp.AgingCount != 1 || resp.ExpiringCount != 1 {
		t.Errorf("counts: got fresh=%d aging=%d expiring=%d, want 1/1/1",
			resp.FreshCount, resp.AgingCount, resp.ExpiringCount)
	}
	if resp.Clock != 3 {
		t.Errorf("clock: got %d, want 3", resp.Clock)
	}
}

func TestHealth_DoesNotAdvanceClock(t *testing.T) {
	f := newFixture()
	f.put("S1")
	h := f.handler()
	for i := 0; i < 3; i++ {
		get(t, h, "/api/v1/health")
		get(t, h, "/api/v1/readings")
	}
	if got := f.clock.Current(); got != 1 {
		t.Errorf("clock after admin reads: got %d, want 1", got)
	}
}

func TestHealth_MethodNotAllowed(t *testing.T) {
	f := newFixture()
	rr := httptest.NewRecorder()
	f.handler().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/health", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", rr.Code)
	}
}

// --- /api/v1/readings -------------------------------------------------------

func TestListReadings_Empty(t *testing.T) {
	f := newFixture()
	rr := get(t, f.handler(), "/api/v1/readings")

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	if body := strings.TrimSpace(rr.Body.String()); body != "[]" {
		t.Errorf("body: got %s, want []", body)
	}
}

func TestListReadings_SortedByID(t *testing.T) {
	f := newFixture()
	f.put("S3")
	f.put("S1")
	f.put("S2")

	var out []api.RecordResponse
	decode(t, get(t, f.handler(), "/api/v1/readings"), &out)

	if len(out) != 3 {
		t.Fatalf("len: got %d, want 3", len(out))
	}
	for i, want := range []string{"S1", "S2", "S3"} {
		if out[i].ID != want {
			t.Errorf("out[%d].ID: got %q, want %q", i, out[i].ID, want)
		}
	}
}

func TestListReadings_FieldsPresent(t *testing.T) {
	f := newFixture()
	f.put("S1", "name", "Adelaide", "air_temp", "13.3")
	f.now = t0.Add(4 * time.Second)

	var out []map[string]interface{}
	decode(t, get(t, f.handler(), "/api/v1/readings"), &out)
	if len(out) != 1 {
		t.Fatalf("len: got %d, want 1", len(out))
	}
	for _, field := range []string{"id", "clock", "last_seen", "age_seconds", "state", "reading"} {
		if _, ok := out[0][field]; !ok {
			t.Errorf("missing field %q", field)
		}
	}
	if out[0]["age_seconds"].(float64) != 4 {
		t.Errorf("age_seconds: got %v, want 4", out[0]["age_seconds"])
	}
	if out[0]["last_seen"] != "2026-03-01T12:00:00Z" {
		t.Errorf("last_seen: got %v", out[0]["last_seen"])
	}
	attrs, ok := out[0]["reading"].(map[string]interface{})
	if !ok {
		t.Fatalf("reading: got %T, want object", out[0]["reading"])
	}
	if attrs["name"] != "Adelaide" || attrs["air_temp"] != "13.3" {
		t.Errorf("reading attributes: got %v", attrs)
	}
}

func TestGetReading_Found(t *testing.T) {
	f := newFixture()
	f.put("S1", "name", "Adelaide")

	rr := get(t, f.handler(), "/api/v1/readings/S1")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp api.RecordResponse
	decode(t, rr, &resp)
	if resp.ID != "S1" {
		t.Errorf("id: got %q, want S1", resp.ID)
	}
	if resp.State != "fresh" {
		t.Errorf("state: got %q, want fresh", resp.State)
	}
	r, err := reading.Unmarshal(resp.Reading)
	if err != nil {
		t.Fatalf("reading: %v", err)
	}
	if v, _ := r.Get("name"); v != "Adelaide" {
		t.Errorf("name: got %q, want Adelaide", v)
	}
}

func TestGetReading_NotFound(t *testing.T) {
	f := newFixture()
	rr := get(t, f.handler(), "/api/v1/readings/missing")
	if rr.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", rr.Code)
	}
}

func TestGetReading_BarePathLists(t *testing.T) {
	f := newFixture()
	f.put("S1")
	var out []api.RecordResponse
	decode(t, get(t, f.handler(), "/api/v1/readings/"), &out)
	if len(out) != 1 {
		t.Errorf("len: got %d, want 1", len(out))
	}
}

// --- /metrics ---------------------------------------------------------------

func TestMetrics_Mounted(t *testing.T) {
	f := newFixture()
	f.put("S1")
	m := metrics.New(f.store.Len, f.clock.Current)
	h := api.New(api.Options{Store: f.store, Clock: f.clock, Metrics: m.Handler()})

	rr := get(t, h, "/metrics")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "aggregator_records 1") {
		t.Errorf("exposition missing aggregator_records 1:\n%s", rr.Body.String())
	}
}

func TestMetrics_NotMountedWithoutHandler(t *testing.T) {
	f := newFixture()
	rr := get(t, f.handler(), "/metrics")
	if rr.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", rr.Code)
	}
}

func TestContentTypeJSON(t *testing.T) {
	f := newFixture()
	h := f.handler()
	for _, path := range []string{"/api/v1/health", "/api/v1/readings", "/api/v1/readings/x"} {
		rr := get(t, h, path)
		if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("%s Content-Type: got %q, want application/json", path, ct)
		}
	}
}

func TestReadings_HideExpiredUnswept(t *testing.T) {
	f := newFixture()
	f.put("stale")
	f.now = t0.Add(20 * time.Second)
	f.put("live")
	f.now = t0.Add(31 * time.Second)
	h := f.handler()

	var list []api.RecordResponse
	rr := get(t, h, "/api/v1/readings")
	decode(t, rr, &list)
	if len(list) != 1 || list[0].ID != "live" {
		t.Fatalf("list: got %+v, want only live", list)
	}

	if rr := get(t, h, "/api/v1/readings/stale"); rr.Code != http.StatusNotFound {
		t.Errorf("expired record: got %d, want 404", rr.Code)
	}

	var health api.HealthResponse
	decode(t, get(t, h, "/api/v1/health"), &health)
	if health.RecordCount != 1 {
		t.Errorf("record_count: got %d, want 1", health.RecordCount)
	}
	if f.store.Len() != 2 {
		t.Errorf("admin reads evicted records: len %d", f.store.Len())
	}
}
