package indicator

import (
	"signal-systemv1/internal/ringbuf"

	"github.com/moznion/go-optional"
)

// stage is one level of the pipeline: a bounded window and the reduction
// applied every time a push leaves the window full.
type stage struct {
	values  *ringbuf.Series
	weights *ringbuf.Series // nil unless the kind is volume-weighted
	reduce  reducer
}

func newStage(size int, weighted bool, reduce reducer) (*stage, error) {
	values, err := ringbuf.New(size)
	if err != nil {
		return nil, err
	}
	st := &stage{values: values, reduce: reduce}
	if weighted {
		if st.weights, err = ringbuf.New(size); err != nil {
			return nil, err
		}
	}
	return st, nil
}

// push appends v with weight w and returns the reduction once the window is full.
func (s *stage) push(v, w float64) optional.Option[float64] {
	s.values.Push(v)
	if s.weights != nil {
		s.weights.Push(w)
	}
	if !s.values.IsFull() {
		return optional.None[float64]()
	}
	out, ok := s.reduce(s.values, s.weights)
	if !ok {
		return optional.None[float64]()
	}
	return optional.Some(out)
}

func (s *stage) clear() {
	s.values.Clear()
	if s.weights != nil {
		s.weights.Clear()
	}
}

func (s *stage) restore(values, weights []float64) {
	s.values.Restore(values)
	if s.weights != nil {
		s.weights.Restore(weights)
	}
}

func (s *stage) contents() (values, weights []float64) {
	values = s.values.Snapshot()
	if s.weights != nil {
		weights = s.weights.Snapshot()
	}
	return values, weights
}
