package wire

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reader(s string) *bufio.Reader {
	return bufio.NewReader(strings.NewReader(s))
}

func TestReadRequest_Put(t *testing.T) {
	br := reader("PUT /weather.json HTTP/1.1\r\nLamport-Clock: 7\r\ncontent-length: 5\r\n\r\nhello")
	req, err := ReadRequest(br)
	require.NoError(t, err)

	assert.Equal(t, MethodPut, req.Method)
	assert.Equal(t, "/weather.json", req.Path)
	assert.Equal(t, "HTTP/1.1", req.Proto)

	clock, err := req.Clock()
	require.NoError(t, err)
	assert.Equal(t, uint64(7), clock)

	n, err := req.ContentLength()
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	body, err := io.ReadAll(br)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))
}

func TestReadRequest_BareMethod(t *testing.T) {
	req, err := ReadRequest(reader("get\n\n"))
	require.NoError(t, err)
	assert.Equal(t, MethodGet, req.Method)
	clock, err := req.Clock()
	require.NoError(t, err)
	assert.Zero(t, clock, "missing Lamport-Clock reads as 0")
}

func TestReadRequest_EOF(t *testing.T) {
	_, err := ReadRequest(reader(""))
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadRequest_EmptyLine(t *testing.T) {
	_, err := ReadRequest(reader("\r\n\r\n"))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestRequest_BadHeaders(t *testing.T) {
	req, err := ReadRequest(reader("PUT / HTTP/1.1\r\nLamport-Clock: -3\r\nContent-Length: abc\r\n\r\n"))
	require.NoError(t, err)

	_, err = req.Clock()
	assert.ErrorIs(t, err, ErrMalformed)
	_, err = req.ContentLength()
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestReadRequest_MalformedHeaderLine(t *testing.T) {
	_, err := ReadRequest(reader("PUT / HTTP/1.1\r\nno colon here\r\n\r\n"))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestReadRequest_TransportErrorInHeaders(t *testing.T) {
	errTimeout := errors.New("i/o timeout")
	br := bufio.NewReader(io.MultiReader(
		strings.NewReader("PUT / HTTP/1.1\r\nLamport-Clock: 1\r\n"),
		iotest.ErrReader(errTimeout),
	))
	_, err := ReadRequest(br)
	require.Error(t, err)
	assert.ErrorIs(t, err, errTimeout)
	assert.NotErrorIs(t, err, ErrMalformed)
}

func TestRequest_MissingContentLength(t *testing.T) {
	req, err := ReadRequest(reader("PUT / HTTP/1.1\r\n\r\n"))
	require.NoError(t, err)
	_, err = req.ContentLength()
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestWriteRequest_ParsesBack(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteRequest(&buf, MethodPut, "", 3, ContentTypeJSON, []byte(`{"id":"S1"}`)))

	br := bufio.NewReader(&buf)
	req, err := ReadRequest(br)
	require.NoError(t, err)
	assert.Equal(t, DefaultPath, req.Path)
	assert.Equal(t, ContentTypeJSON, req.Header.Get(HeaderContentType))
	n, err := req.ContentLength()
	require.NoError(t, err)
	assert.Equal(t, int64(11), n)
}

func TestResponse_WriteAndRead(t *testing.T) {
	var buf bytes.Buffer
	in := &Response{Status: 200, Clock: 12, ContentType: ContentTypeJSON, Body: []byte(`[{"id":"S1"}]`)}
	require.NoError(t, in.Write(&buf))
	assert.True(t, strings.HasPrefix(buf.String(), "HTTP/1.1 200 OK\r\nLamport-Clock: 12\r\n"))

	out, err := ReadResponse(bufio.NewReader(&buf))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestResponse_NoBody(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&Response{Status: 201, Clock: 1}).Write(&buf))
	assert.Equal(t, "HTTP/1.1 201 Created\r\nLamport-Clock: 1\r\nContent-Length: 0\r\n\r\n", buf.String())
}

func TestReadResponse_BodyToEOF(t *testing.T) {
	resp, err := ReadResponse(reader("HTTP/1.1 404 Not Found\r\n\r\nNo readings available."))
	require.NoError(t, err)
	assert.Equal(t, 404, resp.Status)
	assert.Zero(t, resp.Clock)
	assert.Equal(t, "No readings available.", string(resp.Body))
}

func TestReadResponse_BadStatusLine(t *testing.T) {
	_, err := ReadResponse(reader("garbage\r\n\r\n"))
	assert.ErrorIs(t, err, ErrMalformed)
}
