package api

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/obsidianstack/aggregator/pkg/lamport"
	"github.com/obsidianstack/aggregator/pkg/reading"
	"github.com/obsidianstack/aggregator/server/internal/store"
)

// Options wires the handler to the server context. Expiry reports the live
// expiry threshold; Metrics, if set, is mounted at /metrics.
type Options struct {
	Store   *store.Store
	Clock   *lamport.Clock
	Expiry  func() time.Duration
	Metrics http.Handler
	Now     func() time.Time
}

// Handler is the HTTP handler for the admin endpoints.
type Handler struct {
	store  *store.Store
	clock  *lamport.Clock
	expiry func() time.Duration
	now    func() time.Time
	mux    *http.ServeMux
}

// New creates a Handler and registers all routes.
func New(opts Options) http.Handler {
	h := &Handler{
		store:  opts.Store,
		clock:  opts.Clock,
		expiry: opts.Expiry,
		now:    opts.Now,
		mux:    http.NewServeMux(),
	}
	if h.now == nil {
		h.now = time.Now
	}
	if h.expiry == nil {
		h.expiry = func() time.Duration { return 0 }
	}

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/readings", h.listReadings)
	h.mux.HandleFunc("/api/v1/readings/", h.getReading) // subtree, extracts {id}
	if opts.Metrics != nil {
		h.mux.Handle("/metrics", opts.Metrics)
	}

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health: record count, clock and freshness counts.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	now := h.now()
	records := h.live(now)
	resp := HealthResponse{
		Status:      "ok",
		RecordCount: len(records),
		Clock:       h.clock.Current(),
		Expiry:      h.expiry().String(),
	}
	if len(records) == 0 {
		resp.Status = "empty"
	}

	for _, rec := range records {
		switch freshness(now.Sub(rec.UpdatedAt), h.expiry()) {
		case stateFresh:
			resp.FreshCount++
		case stateAging:
			resp.AgingCount++
		default:
			resp.ExpiringCount++
		}
	}
	jsonResp(w, http.StatusOK, resp)
}

// listReadings returns GET /api/v1/readings: every stored record, by id.
func (h *Handler) listReadings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	now := h.now()
	records := h.live(now)
	out := make([]RecordResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, h.toRecordResponse(rec, now))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	jsonResp(w, http.StatusOK, out)
}

// getReading returns GET /api/v1/readings/{id}.
func (h *Handler) getReading(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/v1/readings/")
	if id == "" {
		h.listReadings(w, r)
		return
	}

	now := h.now()
	rec, ok := h.store.Get(id)
	if !ok || rec.Expired(now, h.expiry()) {
		jsonErr(w, http.StatusNotFound, "reading not found")
		return
	}
	jsonResp(w, http.StatusOK, h.toRecordResponse(rec, now))
}

// --- helpers ----------------------------------------------------------------

// live returns the records that have not passed the expiry threshold, swept
// or not.
func (h *Handler) live(now time.Time) []store.Record {
	expiry := h.expiry()
	records := h.store.Records()
	out := records[:0]
	for _, rec := range records {
		if !rec.Expired(now, expiry) {
			out = append(out, rec)
		}
	}
	return out
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

const (
	stateFresh    = "fresh"
	stateAging    = "aging"
	stateExpiring = "expiring"
)

// freshness classifies a record by how much of its lifetime is used up:
// under half is fresh, under 80% is aging, the rest is expiring.
func freshness(age, expiry time.Duration) string {
	if expiry <= 0 {
		return stateFresh
	}
	switch {
	case age < expiry/2:
		return stateFresh
	case age < expiry*4/5:
		return stateAging
	default:
		return stateExpiring
	}
}

func (h *Handler) toRecordResponse(rec store.Record, now time.Time) RecordResponse {
	age := now.Sub(rec.UpdatedAt)
	if age < 0 {
		age = 0
	}
	return RecordResponse{
		ID:         rec.Reading.ID(),
		Clock:      rec.Clock,
		LastSeen:   rec.UpdatedAt.UTC().Format(time.RFC3339),
		AgeSeconds: age.Seconds(),
		State:      freshness(age, h.expiry()),
		Reading:    json.RawMessage(reading.Marshal(rec.Reading)),
	}
}
