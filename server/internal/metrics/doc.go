// Package metrics exposes aggregator counters and gauges through
// prometheus/client_golang on a private registry.
//
//	aggregator_requests_total{method,code}       every response written; method is PUT, GET or other
//	aggregator_publishes_total{result}           created | replaced
//	aggregator_evictions_total                   records removed by expiry
//	aggregator_snapshot_saves_total{result}      ok | error
//	aggregator_active_connections                connections being served
//	aggregator_records                           records currently held
//	aggregator_lamport_clock                     current clock value
//
// Every method is safe to call on a nil *Metrics, so components can be built
// without instrumentation in tests.
package metrics
