package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/obsidianstack/aggregator/agent/internal/config"
	"github.com/obsidianstack/aggregator/agent/internal/shipper"
	"github.com/obsidianstack/aggregator/agent/internal/source"
)

func main() {
	configPath := flag.String("config", "", "path to config file (alternative to positional arguments)")
	once := flag.Bool("once", false, "publish the data file once and exit")
	logLevel := flag.String("log-level", "info", "debug | info | warn | error")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(),
			"usage: %s [flags] <host:port> <datafile>\n       %s [flags] -config config.yaml\n",
			os.Args[0], os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(*logLevel)}))
	slog.SetDefault(logger)

	var (
		cfg *config.Config
		err error
	)
	switch {
	case *configPath != "":
		cfg, err = config.Load(*configPath)
	case flag.NArg() == 2:
		cfg, err = config.FromArgs(flag.Arg(0), flag.Arg(1))
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	slog.Info("aggregator-agent starting",
		"server_endpoint", cfg.Agent.ServerEndpoint,
		"data_file", cfg.Agent.DataFile,
		"retry_interval", cfg.Agent.RetryInterval,
		"refresh_interval", cfg.Agent.RefreshInterval,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	ship := shipper.New(cfg.Agent)

	if *once {
		r, err := source.ParseFile(cfg.Agent.DataFile)
		if err != nil {
			slog.Error("cannot read data file", "err", err)
			os.Exit(1)
		}
		resp, err := ship.Publish(ctx, r)
		if err != nil {
			slog.Error("publish failed", "err", err)
			os.Exit(1)
		}
		fmt.Println(resp.StatusLine())
		return
	}

	ship.Run(ctx, cfg.Agent.DataFile)
	slog.Info("aggregator-agent shutting down")
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
