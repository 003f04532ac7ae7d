package client

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/obsidianstack/aggregator/pkg/lamport"
	"github.com/obsidianstack/aggregator/pkg/wire"
)

// DefaultTimeout bounds one fetch, dial included.
const DefaultTimeout = 10 * time.Second

// Target is where a fetch is sent.
type Target struct {
	Addr string // host:port
	Path string
}

// ParseTarget accepts host:port or an http URL. A missing port means 80, a
// missing path means wire.DefaultPath.
func ParseTarget(s string) (Target, error) {
	raw := s
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Target{}, fmt.Errorf("client: target %q: %w", s, err)
	}
	switch u.Scheme {
	case "http", "https":
	default:
		return Target{}, fmt.Errorf("client: target %q: unsupported scheme %q", s, u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return Target{}, fmt.Errorf("client: target %q: missing host", s)
	}
	port := u.Port()
	if port == "" {
		port = "80"
	}
	path := u.Path
	if path == "" {
		path = wire.DefaultPath
	}
	return Target{Addr: net.JoinHostPort(host, port), Path: path}, nil
}

// Client fetches readings from an aggregator.
type Client struct {
	clock   *lamport.Clock
	timeout time.Duration
	dialer  net.Dialer
}

// New returns a Client with its own Lamport clock starting at 0.
func New() *Client {
	return &Client{clock: lamport.New(0), timeout: DefaultTimeout}
}

// Clock returns the reader's Lamport clock.
func (c *Client) Clock() *lamport.Clock { return c.clock }

// Fetch sends a GET to t and returns the parsed response. The response
// clock is merged even for non-200 statuses.
func (c *Client) Fetch(ctx context.Context, t Target) (*wire.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	conn, err := c.dialer.DialContext(ctx, "tcp", t.Addr)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", t.Addr, err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline) //nolint:errcheck
	}

	clock := c.clock.Advance()
	if err := wire.WriteRequest(conn, wire.MethodGet, t.Path, clock, "", nil); err != nil {
		return nil, fmt.Errorf("client: write request: %w", err)
	}
	resp, err := wire.ReadResponse(bufio.NewReader(conn))
	if err != nil {
		return nil, fmt.Errorf("client: read response: %w", err)
	}
	c.clock.Merge(resp.Clock)
	return resp, nil
}
