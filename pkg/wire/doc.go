// Package wire implements the line-oriented request/response framing spoken
// between content sources, readers and the aggregator.
//
// Request:
//
//	PUT /weather.json HTTP/1.1
//	Lamport-Clock: 3
//	Content-Length: 24
//
//	{"id":"S1","temp":"25"}
//
// Response:
//
//	HTTP/1.1 201 Created
//	Lamport-Clock: 4
//	Content-Length: 0
//
// ReadRequest parses only the request line and headers; the caller reads the
// body (exactly Content-Length bytes) from the same bufio.Reader. Header
// names are canonicalised with net/textproto.
package wire
