// Package client talks to the aggregator on behalf of the reader CLI.
//
// Fetch sends one GET over a fresh TCP connection, stamping it with the
// reader's Lamport clock and merging the aggregator's clock from the
// response. Watch subscribes to the admin WebSocket stream and hands each
// decoded message to a callback.
package client
