// Package listener runs the aggregator's TCP accept loop.
//
// Each accepted connection is handed to a ConnHandler on its own goroutine.
// A weighted semaphore caps the number of in-flight connections; once the
// cap is reached Serve stops accepting until a slot frees. Every connection
// gets a read deadline and a uuid for log correlation.
//
// Serve returns when ctx is cancelled, after closing the listener and waiting
// for in-flight handlers to finish.
package listener
