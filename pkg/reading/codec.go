package reading

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/buger/jsonparser"
)

var (
	// ErrInvalid is returned when a document is not a JSON object (or an
	// array of objects, for UnmarshalArray).
	ErrInvalid = errors.New("reading: invalid encoding")

	// ErrMissingIdentity is returned by Validate when the identity attribute
	// is absent or empty.
	ErrMissingIdentity = errors.New("reading: missing identity attribute")
)

// Validate checks that r carries a non-empty identity.
func Validate(r Reading) error {
	if r.ID() == "" {
		return ErrMissingIdentity
	}
	return nil
}

// Marshal encodes r as a JSON object with string values, in attribute order.
func Marshal(r Reading) []byte {
	var buf bytes.Buffer
	writeObject(&buf, r)
	return buf.Bytes()
}

// MarshalArray encodes rs as a JSON array of objects.
func MarshalArray(rs []Reading) []byte {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, r := range rs {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeObject(&buf, r)
	}
	buf.WriteByte(']')
	return buf.Bytes()
}

func writeObject(buf *bytes.Buffer, r Reading) {
	buf.WriteByte('{')
	for i, a := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeString(buf, a.Key)
		buf.WriteByte(':')
		writeString(buf, a.Value)
	}
	buf.WriteByte('}')
}

func writeString(buf *bytes.Buffer, s string) {
	b, _ := json.Marshal(s) // a string always marshals
	buf.Write(b)
}

// Unmarshal decodes a single JSON object into a Reading. It does not check
// for the identity attribute; see Validate.
func Unmarshal(data []byte) (Reading, error) {
	if !json.Valid(data) {
		return nil, fmt.Errorf("%w: not valid JSON", ErrInvalid)
	}
	return decodeObject(data)
}

// UnmarshalArray decodes a JSON array of objects. A document holding only
// whitespace decodes to an empty slice.
func UnmarshalArray(data []byte) ([]Reading, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}
	if !json.Valid(data) || data[0] != '[' {
		return nil, fmt.Errorf("%w: want a JSON array", ErrInvalid)
	}

	var (
		out  []Reading
		ierr error
	)
	_, err := jsonparser.ArrayEach(data, func(value []byte, dt jsonparser.ValueType, _ int, err error) {
		if ierr != nil {
			return
		}
		if err != nil {
			ierr = err
			return
		}
		if dt != jsonparser.Object {
			ierr = fmt.Errorf("%w: array element %d is %s, want object", ErrInvalid, len(out), dt)
			return
		}
		r, err := decodeObject(value)
		if err != nil {
			ierr = err
			return
		}
		out = append(out, r)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if ierr != nil {
		return nil, ierr
	}
	return out, nil
}

// decodeObject walks a JSON object that has already been validated.
func decodeObject(data []byte) (Reading, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return nil, fmt.Errorf("%w: want a JSON object", ErrInvalid)
	}

	r := Reading{}
	err := jsonparser.ObjectEach(data, func(key, value []byte, dt jsonparser.ValueType, _ int) error {
		// ObjectEach hands over keys already unescaped.
		k := string(key)
		var (
			v   string
			err error
		)
		switch dt {
		case jsonparser.String:
			v, err = jsonparser.ParseString(value)
			if err != nil {
				return fmt.Errorf("value of %q: %w", k, err)
			}
		case jsonparser.Null:
			v = ""
		default:
			// numbers, booleans, nested objects and arrays keep their literal text
			v = string(value)
		}
		r.Set(k, v)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return r, nil
}
