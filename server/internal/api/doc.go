// Package api implements the aggregator's admin HTTP API.
//
// New(opts) returns an http.Handler that serves:
//
//	GET /api/v1/health          record count, current clock, freshness counts
//	GET /api/v1/readings        every live record ([]RecordResponse)
//	GET /api/v1/readings/{id}   a single record; 404 if unknown or expired
//	GET /metrics                Prometheus exposition, when Options.Metrics is set
//
// All /api endpoints respond with Content-Type: application/json and return
// 405 for non-GET methods. They read the store directly and never advance
// the Lamport clock, so they are invisible to publishers and readers.
//
// Records older than the expiry threshold are hidden even before the sweeper
// removes them.
//
// A record's state is fresh below half its expiry, aging below 80%, and
// expiring after that.
package api
