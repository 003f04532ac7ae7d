// Package shipper publishes the agent's reading to the aggregator.
//
// Each attempt opens a fresh TCP connection, advances the agent's Lamport
// clock, sends a PUT carrying the JSON-encoded reading, reads the response
// and merges the aggregator's clock into the local one.
//
// Publish retries dial and I/O failures on a constant backoff
// (cenkalti/backoff, default every 2s) until it succeeds, max_attempts is
// reached, or the context is cancelled. 4xx and 5xx responses are permanent
// and returned as *StatusError without retrying.
//
// Run drives Publish from the data file: once at start, on every change
// reported by source.Watch, and every refresh_interval so the record does not
// expire on the aggregator.
//
// The dialFn field is injectable for testing.
package shipper
