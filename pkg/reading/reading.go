package reading

// IdentityKey is the attribute that names the source of a Reading.
const IdentityKey = "id"

// Attribute is one key/value pair of a Reading.
type Attribute struct {
	Key   string
	Value string
}

// Reading is an ordered set of string attributes. Keys are unique.
type Reading []Attribute

// FromPairs builds a Reading from alternating key, value arguments.
// A trailing key without a value is ignored.
func FromPairs(kv ...string) Reading {
	r := make(Reading, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		r.Set(kv[i], kv[i+1])
	}
	return r
}

// Get returns the value stored under key.
func (r Reading) Get(key string) (string, bool) {
	for _, a := range r {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}

// ID returns the identity attribute, or "" if it is absent.
func (r Reading) ID() string {
	v, _ := r.Get(IdentityKey)
	return v
}

// Set stores value under key, replacing an existing value in place so the
// attribute keeps its original position.
func (r *Reading) Set(key, value string) {
	for i := range *r {
		if (*r)[i].Key == key {
			(*r)[i].Value = value
			return
		}
	}
	*r = append(*r, Attribute{Key: key, Value: value})
}

// Clone returns a copy that shares no memory with r.
func (r Reading) Clone() Reading {
	if r == nil {
		return nil
	}
	out := make(Reading, len(r))
	copy(out, r)
	return out
}

// Map returns the attributes as an unordered map.
func (r Reading) Map() map[string]string {
	m := make(map[string]string, len(r))
	for _, a := range r {
		m[a.Key] = a.Value
	}
	return m
}

// Equal reports whether r and o hold the same attribute set, ignoring order.
func (r Reading) Equal(o Reading) bool {
	if len(r) != len(o) {
		return false
	}
	for _, a := range r {
		v, ok := o.Get(a.Key)
		if !ok || v != a.Value {
			return false
		}
	}
	return true
}
