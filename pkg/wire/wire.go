package wire

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"

	"github.com/obsidianstack/aggregator/pkg/lamport"
)

// Header names used by the protocol.
const (
	HeaderClock         = "Lamport-Clock"
	HeaderContentLength = "Content-Length"
	HeaderContentType   = "Content-Type"

	ContentTypeJSON = "application/json"
	ContentTypeText = "text/plain"

	// Proto is written on every status line for compatibility with HTTP
	// tooling.
	Proto = "HTTP/1.1"

	// DefaultPath is the resource path used by the bundled clients.
	DefaultPath = "/weather.json"
)

// Request methods understood by the aggregator.
const (
	MethodPut = "PUT"
	MethodGet = "GET"
)

// ErrMalformed marks framing errors: an unparsable request or status line,
// or a header value that does not have the required form.
var ErrMalformed = errors.New("wire: malformed message")

// Request is a parsed request line plus headers. The body, if any, follows
// on the reader passed to ReadRequest.
type Request struct {
	Method string
	Path   string
	Proto  string
	Header textproto.MIMEHeader
}

// Clock returns the sender's Lamport-Clock header. A missing header reads as
// 0; a present header that is not a non-negative integer is ErrMalformed.
func (r *Request) Clock() (uint64, error) {
	return clockHeader(r.Header)
}

// ContentLength returns the declared body length. A missing or non-numeric
// header is ErrMalformed.
func (r *Request) ContentLength() (int64, error) {
	v := r.Header.Get(HeaderContentLength)
	if v == "" {
		return 0, fmt.Errorf("%w: missing %s", ErrMalformed, HeaderContentLength)
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q", ErrMalformed, HeaderContentLength, v)
	}
	return n, nil
}

// ReadRequest reads a request line and its headers from br. io.EOF is
// returned unchanged when the peer closed the connection before sending
// anything.
func ReadRequest(br *bufio.Reader) (*Request, error) {
	tp := textproto.NewReader(br)
	line, err := tp.ReadLine()
	if err != nil {
		return nil, err
	}
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: empty request line", ErrMalformed)
	}
	req := &Request{Method: strings.ToUpper(fields[0])}
	if len(fields) > 1 {
		req.Path = fields[1]
	}
	if len(fields) > 2 {
		req.Proto = fields[2]
	}

	hdr, err := tp.ReadMIMEHeader()
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, headerError(err)
	}
	if hdr == nil {
		hdr = textproto.MIMEHeader{}
	}
	req.Header = hdr
	return req, nil
}

// WriteRequest writes a request with the given clock value and body. The
// Content-Length header is always sent for a non-empty body.
func WriteRequest(w io.Writer, method, path string, clock uint64, contentType string, body []byte) error {
	if path == "" {
		path = DefaultPath
	}
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%s %s %s\r\n", method, path, Proto)
	fmt.Fprintf(bw, "%s: %d\r\n", HeaderClock, clock)
	if len(body) > 0 {
		if contentType != "" {
			fmt.Fprintf(bw, "%s: %s\r\n", HeaderContentType, contentType)
		}
		fmt.Fprintf(bw, "%s: %d\r\n", HeaderContentLength, len(body))
	}
	bw.WriteString("\r\n")
	bw.Write(body)
	return bw.Flush()
}

// Response is a status, the aggregator's clock value, and an optional body.
type Response struct {
	Status      int
	Clock       uint64
	ContentType string
	Body        []byte
}

// Reason returns the reason phrase for r.Status.
func (r *Response) Reason() string {
	return http.StatusText(r.Status)
}

// StatusLine returns e.g. "HTTP/1.1 201 Created".
func (r *Response) StatusLine() string {
	return fmt.Sprintf("%s %d %s", Proto, r.Status, r.Reason())
}

// Write serialises r to w.
func (r *Response) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)
	bw.WriteString(r.StatusLine())
	bw.WriteString("\r\n")
	fmt.Fprintf(bw, "%s: %d\r\n", HeaderClock, r.Clock)
	if len(r.Body) > 0 && r.ContentType != "" {
		fmt.Fprintf(bw, "%s: %s\r\n", HeaderContentType, r.ContentType)
	}
	fmt.Fprintf(bw, "%s: %d\r\n", HeaderContentLength, len(r.Body))
	bw.WriteString("\r\n")
	bw.Write(r.Body)
	return bw.Flush()
}

// ReadResponse parses a response from br. The body is read up to the
// declared Content-Length, or to EOF when the header is absent.
func ReadResponse(br *bufio.Reader) (*Response, error) {
	tp := textproto.NewReader(br)
	line, err := tp.ReadLine()
	if err != nil {
		return nil, err
	}
	fields := strings.SplitN(line, " ", 3)
	if len(fields) < 2 {
		return nil, fmt.Errorf("%w: status line %q", ErrMalformed, line)
	}
	code, err := strconv.Atoi(fields[1])
	if err != nil {
		return nil, fmt.Errorf("%w: status code %q", ErrMalformed, fields[1])
	}

	hdr, err := tp.ReadMIMEHeader()
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, headerError(err)
	}
	resp := &Response{Status: code, ContentType: hdr.Get(HeaderContentType)}
	if resp.Clock, err = clockHeader(hdr); err != nil {
		return nil, err
	}

	if v := hdr.Get(HeaderContentLength); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: %s %q", ErrMalformed, HeaderContentLength, v)
		}
		resp.Body = make([]byte, n)
		if _, err := io.ReadFull(br, resp.Body); err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		return resp, nil
	}
	if resp.Body, err = io.ReadAll(br); err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return resp, nil
}

// headerError marks syntax errors as ErrMalformed and passes transport
// failures through unchanged.
func headerError(err error) error {
	var perr textproto.ProtocolError
	if errors.As(err, &perr) {
		return fmt.Errorf("%w: headers: %v", ErrMalformed, err)
	}
	return fmt.Errorf("headers: %w", err)
}

func clockHeader(h textproto.MIMEHeader) (uint64, error) {
	v := strings.TrimSpace(h.Get(HeaderClock))
	if v == "" {
		return 0, nil
	}
	c, err := lamport.Parse(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q", ErrMalformed, HeaderClock, v)
	}
	return c, nil
}
