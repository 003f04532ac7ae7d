// Package config loads and watches the agent configuration file (config.yaml).
//
// Top-level types:
//   - Config{Agent}: the `agent:` section parsed from YAML
//   - AgentConfig: server_endpoint, data_file, retry_interval, max_attempts,
//     refresh_interval, dial_timeout, watch
//
// Load(path) reads the YAML file, applies defaults (2s retry, unlimited
// attempts, 15s refresh, 5s dial timeout, watch on), then validates.
// FromArgs(endpoint, dataFile) builds the same Config from command-line
// arguments.
//
// Watch(ctx, path, onChange) uses fsnotify to detect file changes and calls
// onChange with the newly parsed Config. It re-adds the watch after each
// event so atomic-save editors (vim, VS Code) keep being tracked.
package config
