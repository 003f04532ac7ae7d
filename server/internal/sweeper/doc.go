// Package sweeper evicts records that have outlived the expiry threshold and
// re-persists the store whenever an eviction pass removed something.
//
// Sweep runs one pass. Run calls Sweep on a ticker (default every 2s); the
// request coordinator also calls Sweep inline before serving every fetch, so
// the ticker is only a backstop. Threshold and interval can be changed while
// running (config hot reload).
package sweeper
