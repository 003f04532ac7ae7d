package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/obsidianstack/aggregator/pkg/wire"
	"github.com/obsidianstack/aggregator/reader/internal/client"
	"github.com/obsidianstack/aggregator/reader/internal/present"
)

const (
	fetchUsage   = "fetch <host:port | http://host:port/path>"
	fetchShort   = "Fetch the aggregated readings once"
	fetchExample = "reader fetch localhost:4567\nreader fetch http://localhost:4567/weather.json"

	watchUsage   = "watch <ws://host:port/ws/stream>"
	watchShort   = "Print every snapshot pushed by the aggregator's live stream"
	watchExample = "reader watch ws://localhost:8080/ws/stream"
)

// newRootCmd builds the command tree.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "reader",
		Short:        "Read the aggregated view from an aggregator",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Usage()
		},
	}
	root.AddCommand(newFetchCmd(), newWatchCmd())
	return root
}

func newFetchCmd() *cobra.Command {
	var failOnError bool
	cmd := &cobra.Command{
		Use:     fetchUsage,
		Short:   fetchShort,
		Example: fetchExample,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := client.ParseTarget(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			resp, err := client.New().Fetch(ctx, target)
			if err != nil {
				return err
			}
			if err := present.Response(cmd.OutOrStdout(), resp); err != nil {
				return err
			}
			if failOnError && resp.Status >= 400 {
				return &statusError{resp: resp}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&failOnError, "fail", false, "exit non-zero on a 4xx or 5xx response")
	return cmd
}

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:     watchUsage,
		Short:   watchShort,
		Example: watchExample,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			out := cmd.OutOrStdout()
			return client.Watch(ctx, args[0], func(m client.StreamMessage) error {
				return present.Stream(out, m.Clock, m.GeneratedAt, m.Readings)
			})
		},
	}
}

type statusError struct {
	resp *wire.Response
}

func (e *statusError) Error() string {
	return "aggregator responded " + e.resp.StatusLine()
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
