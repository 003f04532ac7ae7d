// Package present formats aggregator responses for a terminal.
package present
