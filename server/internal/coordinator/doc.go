// Package coordinator interprets publish (PUT) and fetch (GET) requests and
// drives the Lamport clock, record store, sweeper and snapshot file.
//
// Coordinator is the server context: main builds one, owning the clock and
// store, and every connection handler goes through it.
//
// PUT: Lamport-Clock (absent = 0) and Content-Length are read from the
// headers. A bad clock value or a missing, non-positive or oversized length
// is 400. Exactly Content-Length body bytes are read and decoded; an
// undecodable body or a missing/empty "id" is 500. Otherwise the clock is
// merged with the sender's value, the reading is upserted, the store is
// persisted synchronously, and the response is 201 (new identity) or 200
// (replaced) with the post-merge clock.
//
// GET: the clock advances, expired records are swept inline, and the
// response is 404 for an empty store or 200 with the JSON array of readings.
//
// Anything else is 400. Error responses carry the current clock without
// advancing it. A connection that drops mid-request is closed without a
// response and without touching shared state.
package coordinator
