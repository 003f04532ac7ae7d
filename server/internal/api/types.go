package api

import "encoding/json"

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	Status        string `json:"status"`
	RecordCount   int    `json:"record_count"`
	Clock         uint64 `json:"clock"`
	Expiry        string `json:"expiry"`
	FreshCount    int    `json:"fresh_count"`
	AgingCount    int    `json:"aging_count"`
	ExpiringCount int    `json:"expiring_count"`
}

// RecordResponse is one record in GET /api/v1/readings or
// GET /api/v1/readings/{id}.
type RecordResponse struct {
	ID         string          `json:"id"`
	Clock      uint64          `json:"clock"`
	LastSeen   string          `json:"last_seen"` // RFC3339
	AgeSeconds float64         `json:"age_seconds"`
	State      string          `json:"state"`
	Reading    json.RawMessage `json:"reading"`
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
