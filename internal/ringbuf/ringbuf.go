// Package ringbuf provides Series, a fixed-capacity FIFO window of float64
// values. Pushing into a full Series evicts the oldest value, so memory stays
// constant no matter how long the input stream runs.
package ringbuf

import "errors"

// ErrInvalidCapacity is returned by New when capacity is below 1.
var ErrInvalidCapacity = errors.New("ringbuf: capacity must be >= 1")

// Series is a bounded ring of float64 values, oldest first.
// It is not safe for concurrent use; one owner drives it.
type Series struct {
	buf   []float64
	head  int // index of the oldest value
	count int
}

// New creates a Series holding at most capacity values.
func New(capacity int) (*Series, error) {
	if capacity < 1 {
		return nil, ErrInvalidCapacity
	}
	return &Series{buf: make([]float64, capacity)}, nil
}

// Push appends v, evicting the oldest value when the Series is full.
func (s *Series) Push(v float64) {
	n := len(s.buf)
	if s.count < n {
		s.buf[(s.head+s.count)%n] = v
		s.count++
		return
	}
	s.buf[s.head] = v
	s.head = (s.head + 1) % n
}

// Len returns the number of values currently held.
func (s *Series) Len() int { return s.count }

// Cap returns the fixed capacity.
func (s *Series) Cap() int { return len(s.buf) }

// IsFull reports whether Len() == Cap().
func (s *Series) IsFull() bool { return s.count == len(s.buf) }

// At returns the i-th value, 0 being the oldest. It panics if i is out of range.
func (s *Series) At(i int) float64 {
	if i < 0 || i >= s.count {
		panic("ringbuf: index out of range")
	}
	return s.buf[(s.head+i)%len(s.buf)]
}

// Last returns the newest value and false when the Series is empty.
func (s *Series) Last() (float64, bool) {
	if s.count == 0 {
		return 0, false
	}
	return s.At(s.count - 1), true
}

// Snapshot returns a copy of the held values, oldest first.
func (s *Series) Snapshot() []float64 {
	out := make([]float64, s.count)
	for i := range out {
		out[i] = s.buf[(s.head+i)%len(s.buf)]
	}
	return out
}

// Clear empties the Series. Capacity is kept.
func (s *Series) Clear() {
	s.head = 0
	s.count = 0
}

// Restore replaces the contents with values, keeping only the newest Cap()
// of them when values is longer than the capacity.
func (s *Series) Restore(values []float64) {
	s.Clear()
	if len(values) > len(s.buf) {
		values = values[len(values)-len(s.buf):]
	}
	for _, v := range values {
		s.Push(v)
	}
}
