// Package reading defines the Reading type exchanged between content sources,
// the aggregator and readers, and its JSON codec.
//
// A Reading is a flat, ordered set of string attributes. The attribute named
// IdentityKey ("id") names the publishing source and is the aggregator's
// primary key; the store interprets nothing else.
//
// Wire forms:
//
//	{"id":"S1","temp":"25"}                 Marshal / Unmarshal
//	[{"id":"S1",...},{"id":"S2",...}]       MarshalArray / UnmarshalArray
//
// Decoding walks the document with github.com/buger/jsonparser so attribute
// order is preserved. Numbers and booleans are kept as their literal text;
// nested objects and arrays are kept as their raw JSON text so they survive a
// round trip unchanged.
package reading
