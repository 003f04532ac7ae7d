// Package config loads the server-side configuration from the `server:` section
// of config.yaml (the `agent:` key is ignored by the server binary).
//
// Config fields:
//   - Port                 aggregator protocol port (default 4567)
//   - MaxConnections       concurrent connection ceiling (default 256)
//   - ReadTimeout          per-connection deadline (default 30s)
//   - MaxBodyBytes         largest accepted publish body (default 1 MiB)
//   - HTTPPort             admin API, /metrics and stream; 0 disables (default 8080)
//   - Store.Path           snapshot file (default server_data.json)
//   - Store.Expiry         record lifetime without a publish (default 30s)
//   - Store.SweepInterval  background eviction period (default 2s)
//   - Stream.Interval      WebSocket broadcast period (default 5s)
//
// Load(path) applies defaults before unmarshalling, then validates. Watch
// reloads the file on change and hands the store timings (Live) to the
// caller when they move. Other edits are logged as needing a restart.
package config
