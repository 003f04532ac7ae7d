package shipper

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/obsidianstack/aggregator/agent/internal/config"
	"github.com/obsidianstack/aggregator/agent/internal/source"
	"github.com/obsidianstack/aggregator/pkg/lamport"
	"github.com/obsidianstack/aggregator/pkg/reading"
	"github.com/obsidianstack/aggregator/pkg/wire"
)

// ioTimeout bounds one request/response exchange on an open connection.
const ioTimeout = 10 * time.Second

// StatusError is a non-2xx response from the aggregator. It is never retried.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("shipper: aggregator responded %d: %s", e.Status, e.Body)
}

// Shipper publishes readings to the aggregator, one connection per attempt.
type Shipper struct {
	cfg    config.AgentConfig
	clock  *lamport.Clock
	dialFn dialFunc // injectable for tests
}

// dialFunc opens a connection to the aggregator.
type dialFunc func(ctx context.Context, endpoint string) (net.Conn, error)

// New creates a Shipper using the given agent config.
func New(cfg config.AgentConfig) *Shipper {
	d := &net.Dialer{Timeout: cfg.DialTimeout}
	return &Shipper{
		cfg:   cfg,
		clock: lamport.New(0),
		dialFn: func(ctx context.Context, endpoint string) (net.Conn, error) {
			return d.DialContext(ctx, "tcp", endpoint)
		},
	}
}

// Clock returns the agent's Lamport clock.
func (s *Shipper) Clock() *lamport.Clock { return s.clock }

// Publish sends r as a PUT and returns the aggregator's response. Dial and
// I/O failures are retried every RetryInterval until MaxAttempts is reached
// (0 means until ctx is cancelled). A 4xx or 5xx response ends the retry loop
// with a *StatusError.
func (s *Shipper) Publish(ctx context.Context, r reading.Reading) (*wire.Response, error) {
	if err := reading.Validate(r); err != nil {
		return nil, err
	}
	body := reading.Marshal(r)
	id := r.ID()

	op := func() (*wire.Response, error) {
		resp, err := s.send(ctx, body)
		if err != nil {
			return nil, err
		}
		if resp.Status >= 400 {
			return nil, backoff.Permanent(&StatusError{Status: resp.Status, Body: string(resp.Body)})
		}
		return resp, nil
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(backoff.NewConstantBackOff(s.cfg.RetryInterval)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, wait time.Duration) {
			slog.Warn("shipper: publish failed, will retry",
				"endpoint", s.cfg.ServerEndpoint,
				"id", id,
				"err", err,
				"retry_in", wait)
		}),
	}
	if s.cfg.MaxAttempts > 0 {
		opts = append(opts, backoff.WithMaxTries(uint(s.cfg.MaxAttempts)))
	}

	resp, err := backoff.Retry(ctx, op, opts...)
	if err != nil {
		return nil, err
	}
	slog.Info("shipper: reading delivered",
		"id", id, "status", resp.Status, "clock", s.clock.Current())
	return resp, nil
}

// send performs one attempt: dial, advance, write the request, read the
// response and merge its clock.
func (s *Shipper) send(ctx context.Context, body []byte) (*wire.Response, error) {
	conn, err := s.dialFn(ctx, s.cfg.ServerEndpoint)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", s.cfg.ServerEndpoint, err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(ioTimeout)) //nolint:errcheck

	clock := s.clock.Advance()
	if err := wire.WriteRequest(conn, wire.MethodPut, wire.DefaultPath, clock, wire.ContentTypeJSON, body); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}
	resp, err := wire.ReadResponse(bufio.NewReader(conn))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	s.clock.Merge(resp.Clock)
	return resp, nil
}

// Run publishes the reading in path on start, whenever the file changes (if
// watching is enabled) and every RefreshInterval (if non-zero). Triggers that
// arrive while a publish is in progress coalesce into one. Run blocks until
// ctx is cancelled.
func (s *Shipper) Run(ctx context.Context, path string) {
	trigger := make(chan struct{}, 1)
	notify := func() {
		select {
		case trigger <- struct{}{}:
		default:
		}
	}
	notify()

	if s.cfg.Watch {
		go func() {
			if err := source.Watch(ctx, path, notify); err != nil {
				slog.Warn("shipper: data file watch disabled", "path", path, "err", err)
			}
		}()
	}

	var refresh <-chan time.Time
	if s.cfg.RefreshInterval > 0 {
		t := time.NewTicker(s.cfg.RefreshInterval)
		defer t.Stop()
		refresh = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-trigger:
		case <-refresh:
		}
		s.publishFile(ctx, path)
	}
}

func (s *Shipper) publishFile(ctx context.Context, path string) {
	r, err := source.ParseFile(path)
	if err != nil {
		slog.Error("shipper: cannot read data file", "path", path, "err", err)
		return
	}
	if _, err := s.Publish(ctx, r); err != nil && ctx.Err() == nil {
		slog.Error("shipper: publish abandoned", "id", r.ID(), "err", err)
	}
}
