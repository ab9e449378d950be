package logging

import (
	"slices"
	"testing"

	"pgregory.net/rapid"
)

func TestRingBufferOrder(t *testing.T) {
	rb := NewRingBuffer[int](3)

	if got := rb.ReadAll(); got != nil {
		t.Errorf("expected nil for empty buffer, got %v", got)
	}

	rb.Write(1, 2)
	if got := rb.ReadAll(); !slices.Equal(got, []int{1, 2}) {
		t.Errorf("expected [1 2], got %v", got)
	}

	rb.Write(3, 4, 5)
	if got := rb.ReadAll(); !slices.Equal(got, []int{3, 4, 5}) {
		t.Errorf("expected [3 4 5], got %v", got)
	}
	if got := rb.Last(2); !slices.Equal(got, []int{4, 5}) {
		t.Errorf("expected [4 5], got %v", got)
	}
	if rb.Count() != 3 {
		t.Errorf("expected count 3, got %d", rb.Count())
	}

	rb.Reset()
	if rb.Count() != 0 || rb.ReadAll() != nil {
		t.Error("expected empty buffer after reset")
	}
}

func TestRingBufferMinimumCapacity(t *testing.T) {
	rb := NewRingBuffer[string](0)
	rb.Write("a", "b")
	if got := rb.ReadAll(); !slices.Equal(got, []string{"b"}) {
		t.Errorf("expected [b], got %v", got)
	}
}

// The buffer always holds the most recent min(n, capacity) writes in order.
func TestRingBufferKeepsNewest(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		capacity := rapid.IntRange(1, 50).Draw(t, "capacity")
		values := rapid.SliceOf(rapid.Int()).Draw(t, "values")

		rb := NewRingBuffer[int](capacity)
		for _, v := range values {
			rb.Write(v)
		}

		want := values
		if len(want) > capacity {
			want = want[len(want)-capacity:]
		}
		got := rb.ReadAll()
		if len(want) == 0 {
			if got != nil {
				t.Fatalf("expected nil, got %v", got)
			}
			return
		}
		if !slices.Equal(got, want) {
			t.Fatalf("expected %v, got %v", want, got)
		}

		n := rapid.IntRange(0, capacity+2).Draw(t, "n")
		last := rb.Last(n)
		expect := min(n, len(want))
		if len(last) != expect {
			t.Fatalf("Last(%d) returned %d values, want %d", n, len(last), expect)
		}
		if expect > 0 && !slices.Equal(last, want[len(want)-expect:]) {
			t.Fatalf("Last(%d) = %v, want suffix of %v", n, last, want)
		}
	})
}
