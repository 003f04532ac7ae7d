package coordinator

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"

	"github.com/obsidianstack/aggregator/pkg/lamport"
	"github.com/obsidianstack/aggregator/pkg/reading"
	"github.com/obsidianstack/aggregator/pkg/wire"
	"github.com/obsidianstack/aggregator/server/internal/metrics"
	"github.com/obsidianstack/aggregator/server/internal/snapshot"
	"github.com/obsidianstack/aggregator/server/internal/store"
)

// DefaultMaxBody bounds the body a publisher may declare.
const DefaultMaxBody = 1 << 20

// Response bodies for the non-success statuses.
const (
	msgMissingLength = "Missing or invalid Content-Length."
	msgBodyTooLarge  = "Content-Length exceeds the configured limit."
	msgBadClock      = "Invalid Lamport-Clock."
	msgBadMethod     = "Unsupported request."
	msgBadReading    = "Invalid JSON or missing 'id'."
	msgNoData        = "No readings available."
)

// Persister writes the store to durable storage.
type Persister interface {
	SaveFrom(src snapshot.Source) error
}

// Expirer runs one inline eviction pass.
type Expirer interface {
	Sweep() int
}

// Options configures a Coordinator. Zero fields take defaults; Persister,
// Expirer and Metrics may be nil.
type Options struct {
	Clock     *lamport.Clock
	Store     *store.Store
	Persister Persister
	Expirer   Expirer
	Metrics   *metrics.Metrics
	MaxBody   int64
}

// Coordinator handles aggregator requests.
type Coordinator struct {
	clock   *lamport.Clock
	store   *store.Store
	persist Persister
	expire  Expirer
	metrics *metrics.Metrics
	maxBody int64
}

// New builds a Coordinator from opts.
func New(opts Options) *Coordinator {
	c := &Coordinator{
		clock:   opts.Clock,
		store:   opts.Store,
		persist: opts.Persister,
		expire:  opts.Expirer,
		metrics: opts.Metrics,
		maxBody: opts.MaxBody,
	}
	if c.clock == nil {
		c.clock = lamport.New(0)
	}
	if c.store == nil {
		c.store = store.New()
	}
	if c.maxBody <= 0 {
		c.maxBody = DefaultMaxBody
	}
	return c
}

// Clock returns the coordinator's Lamport clock.
func (c *Coordinator) Clock() *lamport.Clock { return c.clock }

// Store returns the coordinator's record store.
func (c *Coordinator) Store() *store.Store { return c.store }

// Restore loads readings into the store at startup, before any connection
// is served. Clock values are not persisted, so each restored record is
// stamped with a fresh local clock value.
func (c *Coordinator) Restore(readings []reading.Reading) int {
	n := 0
	for _, r := range readings {
		id := r.ID()
		if id == "" {
			continue
		}
		c.store.Upsert(id, r, c.clock.Advance())
		n++
	}
	return n
}

// ServeConn reads one request from conn, writes the response and closes
// the connection.
func (c *Coordinator) ServeConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	log := slog.With("remote", conn.RemoteAddr().String())
	if id, ok := ConnID(ctx); ok {
		log = log.With("conn_id", id)
	}

	br := bufio.NewReader(conn)
	resp, err := c.serve(br)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			log.Debug("coordinator: connection closed before request completed")
		} else {
			log.Debug("coordinator: transport error", "err", err)
		}
		return
	}
	if err := resp.Write(conn); err != nil {
		log.Debug("coordinator: write response failed", "err", err)
	}
}

// serve parses a request from br and produces its response. A non-nil error
// is a transport failure: no response should be written.
func (c *Coordinator) serve(br *bufio.Reader) (*wire.Response, error) {
	req, err := wire.ReadRequest(br)
	if err != nil {
		if errors.Is(err, wire.ErrMalformed) {
			return c.reject("", http.StatusBadRequest, msgBadMethod), nil
		}
		return nil, err
	}
	return c.Handle(req, br)
}

// Handle produces the response for req. For a PUT the body is read from
// body. The returned error is non-nil only when body could not be read in
// full.
func (c *Coordinator) Handle(req *wire.Request, body io.Reader) (*wire.Response, error) {
	switch req.Method {
	case wire.MethodPut:
		return c.publish(req, body)
	case wire.MethodGet:
		return c.fetch(), nil
	default:
		return c.reject(req.Method, http.StatusBadRequest, msgBadMethod), nil
	}
}

func (c *Coordinator) publish(req *wire.Request, body io.Reader) (*wire.Response, error) {
	remote, err := req.Clock()
	if err != nil {
		return c.reject(req.Method, http.StatusBadRequest, msgBadClock), nil
	}
	n, err := req.ContentLength()
	if err != nil || n <= 0 {
		return c.reject(req.Method, http.StatusBadRequest, msgMissingLength), nil
	}
	if n > c.maxBody {
		return c.reject(req.Method, http.StatusBadRequest, msgBodyTooLarge), nil
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(body, buf); err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	r, err := reading.Unmarshal(buf)
	if err == nil {
		err = reading.Validate(r)
	}
	if err != nil {
		slog.Debug("coordinator: rejected reading", "err", err)
		return c.reject(req.Method, http.StatusInternalServerError, msgBadReading), nil
	}

	clock := c.clock.Merge(remote)
	id := r.ID()
	_, created := c.store.Upsert(id, r, clock)
	c.save()

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.metrics.Publish(created)
	c.metrics.Request(req.Method, status)
	slog.Debug("coordinator: reading accepted", "id", id, "clock", clock, "created", created)

	return &wire.Response{Status: status, Clock: clock}, nil
}

func (c *Coordinator) fetch() *wire.Response {
	clock := c.clock.Advance()
	if c.expire != nil {
		c.expire.Sweep()
	}

	readings := c.store.Snapshot()
	if len(readings) == 0 {
		c.metrics.Request(wire.MethodGet, http.StatusNotFound)
		return &wire.Response{
			Status:      http.StatusNotFound,
			Clock:       clock,
			ContentType: wire.ContentTypeText,
			Body:        []byte(msgNoData),
		}
	}

	c.metrics.Request(wire.MethodGet, http.StatusOK)
	return &wire.Response{
		Status:      http.StatusOK,
		Clock:       clock,
		ContentType: wire.ContentTypeJSON,
		Body:        reading.MarshalArray(readings),
	}
}

// save persists the store. Failures are logged and counted; the in-memory
// store stays authoritative.
func (c *Coordinator) save() {
	if c.persist == nil {
		return
	}
	err := c.persist.SaveFrom(c.store)
	c.metrics.Saved(err)
	if err != nil {
		slog.Error("coordinator: persist failed", "err", err)
	}
}

func (c *Coordinator) reject(method string, status int, msg string) *wire.Response {
	c.metrics.Request(method, status)
	return &wire.Response{
		Status:      status,
		Clock:       c.clock.Current(),
		ContentType: wire.ContentTypeText,
		Body:        []byte(msg),
	}
}
