// Package ws implements the WebSocket hub for the aggregator's live stream.
//
// Hub manages a set of connected clients and broadcasts the aggregated
// readings to all of them on a configurable interval (default 5s).
//
// New(store, clock, expiry, interval) creates a Hub. Records past the expiry
// threshold are left out of every broadcast, swept or not.
// Hub.Run(ctx) starts the broadcast ticker; it blocks until ctx is cancelled,
// then closes all active connections.
// Hub.ServeHTTP upgrades an HTTP connection to WebSocket, sends the current
// readings immediately on connect, then streams updates on each tick.
//
// Message format sent to clients:
//
//	{
//	  "event": "readings",
//	  "data":  { "clock": 12, "generated_at": "...", "readings": [ {...}, ... ] }
//	}
//
// Streaming is read-only: the Lamport clock is reported, never advanced.
// The upgrader accepts all origins. Apply CORS restrictions at the reverse
// proxy level. The endpoint is mounted at /ws/stream by the server.
package ws
