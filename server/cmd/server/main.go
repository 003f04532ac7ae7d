package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/obsidianstack/aggregator/pkg/lamport"
	"github.com/obsidianstack/aggregator/server/internal/api"
	"github.com/obsidianstack/aggregator/server/internal/config"
	"github.com/obsidianstack/aggregator/server/internal/coordinator"
	"github.com/obsidianstack/aggregator/server/internal/listener"
	"github.com/obsidianstack/aggregator/server/internal/metrics"
	"github.com/obsidianstack/aggregator/server/internal/snapshot"
	"github.com/obsidianstack/aggregator/server/internal/store"
	"github.com/obsidianstack/aggregator/server/internal/sweeper"
	"github.com/obsidianstack/aggregator/server/internal/ws"
)

func main() {
	configPath := flag.String("config", "", "path to config file; built-in defaults when empty")
	port := flag.Int("port", 0, "aggregator port; overrides server.port")
	logLevel := flag.String("log-level", "info", "debug | info | warn | error")
	flag.Parse()

	// Positional form: server [port]
	if *port == 0 && flag.NArg() > 0 {
		fmt.Sscanf(flag.Arg(0), "%d", port) //nolint:errcheck
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(*logLevel)}))
	slog.SetDefault(logger)

	slog.Info("aggregator-server starting", "config", *configPath)

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			slog.Error("failed to load config", "err", err)
			os.Exit(1)
		}
	}
	if *port != 0 {
		cfg.Server.Port = *port
		if err := config.Validate(cfg); err != nil {
			slog.Error("invalid port override", "err", err)
			os.Exit(1)
		}
	}

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"http_port", cfg.Server.HTTPPort,
		"store_path", cfg.Server.Store.Path,
		"expiry", cfg.Server.Store.Expiry,
		"sweep_interval", cfg.Server.Store.SweepInterval,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Server context: clock, store, persistence, expiry.
	clock := lamport.New(0)
	st := store.New()
	m := metrics.New(st.Len, clock.Current)
	file := snapshot.NewFile(cfg.Server.Store.Path)
	sw := sweeper.New(st, file, m, cfg.Server.Store.Expiry, cfg.Server.Store.SweepInterval)

	coord := coordinator.New(coordinator.Options{
		Clock:     clock,
		Store:     st,
		Persister: file,
		Expirer:   sw,
		Metrics:   m,
		MaxBody:   cfg.Server.MaxBodyBytes,
	})

	// Restore before accepting connections. A bad snapshot is not fatal.
	saved, err := file.Load()
	if err != nil {
		slog.Error("snapshot load failed, starting empty", "path", file.Path(), "err", err)
	} else {
		slog.Info("snapshot restored", "path", file.Path(), "records", coord.Restore(saved))
	}

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.Port))
	if err != nil {
		slog.Error("failed to listen on aggregator port",
			"port", cfg.Server.Port, "err", err)
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)

	srv := listener.New(coord, listener.Options{
		MaxConnections: cfg.Server.MaxConnections,
		ReadTimeout:    cfg.Server.ReadTimeout,
		Metrics:        m,
	})
	g.Go(func() error { return srv.Serve(gctx, lis) })

	g.Go(func() error {
		sw.Run(gctx)
		return nil
	})

	if *configPath != "" {
		g.Go(func() error {
			err := config.Watch(gctx, *configPath, cfg, func(live config.Live) {
				sw.SetThreshold(live.Expiry)
				sw.SetInterval(live.SweepInterval)
			})
			if err != nil {
				slog.Warn("config watch disabled", "err", err)
			}
			return nil
		})
	}

	// Admin HTTP server: REST API, metrics and WebSocket stream.
	if cfg.Server.HTTPPort != 0 {
		hub := ws.New(st, clock, sw.Threshold, cfg.Server.Stream.Interval)
		g.Go(func() error {
			hub.Run(gctx)
			return nil
		})

		httpMux := http.NewServeMux()
		httpMux.Handle("/", api.New(api.Options{
			Store:   st,
			Clock:   clock,
			Expiry:  sw.Threshold,
			Metrics: m.Handler(),
		}))
		httpMux.Handle("/ws/stream", hub)

		httpSrv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
			Handler:           httpMux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("HTTP server stopped", "err", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			return httpSrv.Shutdown(context.Background())
		})
	}

	if err := g.Wait(); err != nil {
		slog.Error("aggregator-server stopped with error", "err", err)
		os.Exit(1)
	}
	slog.Info("aggregator-server stopped")
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
