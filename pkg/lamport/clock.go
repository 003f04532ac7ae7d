package lamport

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync/atomic"
)

// Max is the largest value the clock holds. It saturates there instead of
// wrapping to zero.
const Max uint64 = math.MaxUint64

// ErrOutOfRange is returned by Parse for values a merge could not advance
// past.
var ErrOutOfRange = errors.New("lamport: clock value out of range")

// Clock is a Lamport logical clock.
type Clock struct {
	v atomic.Uint64
}

// New returns a Clock starting at start.
func New(start uint64) *Clock {
	c := &Clock{}
	c.v.Store(start)
	return c
}

// Advance increments the clock by one and returns the new value. At Max
// the clock stays put.
func (c *Clock) Advance() uint64 {
	for {
		cur := c.v.Load()
		if cur == Max {
			return cur
		}
		if c.v.CompareAndSwap(cur, cur+1) {
			return cur + 1
		}
	}
}

// Merge folds a remote clock value into c, setting it to
// max(current, remote)+1, and returns the new value.
func (c *Clock) Merge(remote uint64) uint64 {
	for {
		cur := c.v.Load()
		next := max(cur, remote)
		if next < Max {
			next++
		}
		if c.v.CompareAndSwap(cur, next) {
			return next
		}
	}
}

// Current returns the clock value without changing it.
func (c *Clock) Current() uint64 {
	return c.v.Load()
}

// String returns the base 10 representation of the current value.
func (c *Clock) String() string {
	return strconv.FormatUint(c.Current(), 10)
}

// Parse reads a clock value from its header text form. Negative or
// non-numeric values are rejected, as is Max.
func Parse(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, err
	}
	if v >= Max {
		return 0, fmt.Errorf("%w: %d", ErrOutOfRange, v)
	}
	return v, nil
}
