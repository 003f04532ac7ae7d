package config

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Live holds the settings a running server applies without a restart.
type Live struct {
	Expiry        time.Duration
	SweepInterval time.Duration
}

// Live returns the reloadable part of c.
func (c *Config) Live() Live {
	return Live{
		Expiry:        c.Server.Store.Expiry,
		SweepInterval: c.Server.Store.SweepInterval,
	}
}

// RestartRequired returns the keys whose value differs between c and next
// but are only read at startup.
func (c *Config) RestartRequired(next *Config) []string {
	a, b := c.Server, next.Server
	var keys []string
	if a.Port != b.Port {
		keys = append(keys, "server.port")
	}
	if a.HTTPPort != b.HTTPPort {
		keys = append(keys, "server.http_port")
	}
	if a.MaxConnections != b.MaxConnections {
		keys = append(keys, "server.max_connections")
	}
	if a.ReadTimeout != b.ReadTimeout {
		keys = append(keys, "server.read_timeout")
	}
	if a.MaxBodyBytes != b.MaxBodyBytes {
		keys = append(keys, "server.max_body_bytes")
	}
	if a.Store.Path != b.Store.Path {
		keys = append(keys, "server.store.path")
	}
	if a.Stream.Interval != b.Stream.Interval {
		keys = append(keys, "server.stream.interval")
	}
	return keys
}

// Watch reloads path whenever it changes and compares the result with the
// running configuration, starting from current. onChange is called only when
// the expiry or sweep interval moved. Edits to startup-only keys are logged
// as needing a restart and otherwise ignored. A file that fails to load or
// validate leaves everything as it was. Watch runs until ctx is cancelled.
func Watch(ctx context.Context, path string, current *Config, onChange func(Live)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}

	active := *current
	slog.Info("config: watching for changes", "path", path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Editors often save via rename, so Create counts as a change too.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			// Re-add the file in case an atomic save replaced the inode.
			_ = watcher.Add(path)

			// A truncated file is a save in progress.
			if fi, err := os.Stat(path); err == nil && fi.Size() == 0 {
				continue
			}

			next, err := Load(path)
			if err != nil {
				slog.Error("config: reload failed, keeping previous config",
					"path", path, "err", err)
				continue
			}

			if keys := active.RestartRequired(next); len(keys) > 0 {
				slog.Warn("config: changes need a restart to take effect",
					"path", path, "keys", keys)
			}

			live := next.Live()
			if live == active.Live() {
				continue
			}
			active.Server.Store.Expiry = live.Expiry
			active.Server.Store.SweepInterval = live.SweepInterval
			slog.Info("config: reloaded", "path", path,
				"expiry", live.Expiry, "sweep_interval", live.SweepInterval)
			onChange(live)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "err", err)
		}
	}
}
