package listener

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/obsidianstack/aggregator/server/internal/coordinator"
	"github.com/obsidianstack/aggregator/server/internal/metrics"
)

// Default values for Options.
const (
	DefaultMaxConnections = 256
	DefaultReadTimeout    = 30 * time.Second
)

// ConnHandler serves a single connection and closes it.
type ConnHandler interface {
	ServeConn(ctx context.Context, conn net.Conn)
}

// Options configures a Server.
type Options struct {
	MaxConnections int
	ReadTimeout    time.Duration
	Metrics        *metrics.Metrics
}

// Server accepts connections on a net.Listener.
type Server struct {
	handler ConnHandler
	sem     *semaphore.Weighted
	timeout time.Duration
	metrics *metrics.Metrics
	wg      sync.WaitGroup
}

// New returns a Server that dispatches connections to h.
func New(h ConnHandler, opts Options) *Server {
	limit := opts.MaxConnections
	if limit <= 0 {
		limit = DefaultMaxConnections
	}
	timeout := opts.ReadTimeout
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}
	return &Server{
		handler: h,
		sem:     semaphore.NewWeighted(int64(limit)),
		timeout: timeout,
		metrics: opts.Metrics,
	}
}

// Serve accepts connections on lis until ctx is cancelled or lis fails. It
// always closes lis and waits for in-flight handlers before returning. A nil
// error means ctx was cancelled.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	stop := context.AfterFunc(ctx, func() { lis.Close() })
	defer stop()
	defer s.wg.Wait()
	defer lis.Close()

	slog.Info("listener: accepting connections", "addr", lis.Addr().String())

	for {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			return nil
		}
		conn, err := lis.Accept()
		if err != nil {
			s.sem.Release(1)
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				slog.Warn("listener: accept timeout", "err", err)
				continue
			}
			return err
		}

		s.wg.Add(1)
		go s.serve(ctx, conn)
	}
}

func (s *Server) serve(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer s.sem.Release(1)

	s.metrics.ConnOpened()
	defer s.metrics.ConnClosed()

	id := uuid.NewString()
	if err := conn.SetDeadline(time.Now().Add(s.timeout)); err != nil {
		slog.Debug("listener: set deadline failed", "conn_id", id, "err", err)
	}
	// Shutdown expires the deadline so idle connections unblock now.
	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })
	defer stop()
	s.handler.ServeConn(coordinator.WithConnID(ctx, id), conn)
}
