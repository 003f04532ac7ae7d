// Package lamport implements the Lamport logical clock shared by the
// aggregator server, the publishing agent and the reader.
//
// A Clock is a single non-negative counter that never decreases:
//   - Advance() increments it for a locally originated event
//   - Merge(remote) sets it to max(current, remote)+1 when a message carrying
//     a peer's clock value is accepted
//   - Current() reads it without mutation
//
// All three are lock-free and safe for concurrent use. The zero value is a
// clock at 0, ready to use.
package lamport
