package ringbuf

import (
	"errors"
	"reflect"
	"testing"
)

func TestSeries_InvalidCapacity(t *testing.T) {
	for _, c := range []int{0, -1} {
		s, err := New(c)
		if !errors.Is(err, ErrInvalidCapacity) {
			t.Fatalf("New(%d): expected ErrInvalidCapacity, got %v", c, err)
		}
		if s != nil {
			t.Fatalf("New(%d): expected nil series", c)
		}
	}
}

func TestSeries_BasicPush(t *testing.T) {
	s, err := New(3)
	if err != nil {
		t.Fatal(err)
	}

	if _, ok := s.Last(); ok {
		t.Fatal("Last on empty series should return false")
	}

	s.Push(1)
	s.Push(2)
	if s.Len() != 2 || s.IsFull() {
		t.Fatalf("expected len=2 not full, got len=%d full=%v", s.Len(), s.IsFull())
	}

	s.Push(3)
	if !s.IsFull() {
		t.Fatal("series should be full after 3 pushes")
	}
	if got := s.Snapshot(); !reflect.DeepEqual(got, []float64{1, 2, 3}) {
		t.Fatalf("unexpected snapshot %v", got)
	}
	if v, _ := s.Last(); v != 3 {
		t.Fatalf("expected last=3, got %v", v)
	}
}

func TestSeries_EvictsOldest(t *testing.T) {
	for capacity := 1; capacity <= 8; capacity++ {
		s, _ := New(capacity)
		total := capacity*3 + 1
		for i := 0; i < total; i++ {
			s.Push(float64(i))
		}

		if s.Len() != capacity {
			t.Fatalf("cap=%d: expected len=%d, got %d", capacity, capacity, s.Len())
		}
		got := s.Snapshot()
		for i, v := range got {
			want := float64(total - capacity + i)
			if v != want {
				t.Fatalf("cap=%d: snapshot[%d]=%v, want %v", capacity, i, v, want)
			}
		}
	}
}

func TestSeries_SnapshotIsCopy(t *testing.T) {
	s, _ := New(2)
	s.Push(1)
	s.Push(2)

	snap := s.Snapshot()
	snap[0] = 99
	if s.At(0) != 1 {
		t.Fatalf("mutating snapshot changed series: At(0)=%v", s.At(0))
	}
}

func TestSeries_Clear(t *testing.T) {
	s, _ := New(2)
	s.Push(1)
	s.Push(2)
	s.Push(3)
	s.Clear()

	if s.Len() != 0 || s.IsFull() {
		t.Fatalf("expected empty after clear, len=%d", s.Len())
	}
	if s.Cap() != 2 {
		t.Fatalf("clear should keep capacity, got %d", s.Cap())
	}

	s.Push(7)
	if got := s.Snapshot(); !reflect.DeepEqual(got, []float64{7}) {
		t.Fatalf("unexpected snapshot after clear %v", got)
	}
}

func TestSeries_Restore(t *testing.T) {
	s, _ := New(3)
	s.Push(42)
	s.Restore([]float64{1, 2, 3, 4, 5})

	if got := s.Snapshot(); !reflect.DeepEqual(got, []float64{3, 4, 5}) {
		t.Fatalf("restore should keep newest values, got %v", got)
	}

	s.Restore(nil)
	if s.Len() != 0 {
		t.Fatalf("restore(nil) should empty series, len=%d", s.Len())
	}
}

func TestSeries_AtOutOfRangePanics(t *testing.T) {
	s, _ := New(2)
	s.Push(1)

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for out-of-range index")
		}
	}()
	s.At(1)
}
