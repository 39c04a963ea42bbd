package capture

import (
	"sync"
	"testing"
)

func TestNewRingValidation(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		wantErr  bool
	}{
		{"power of two", 128, false},
		{"minimum", 1, false},
		{"large power of two", 1 << 16, false},
		{"zero", 0, true},
		{"negative", -4, true},
		{"not a power of two", 100, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRing(tt.capacity)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewRing(%d) error = %v, wantErr %v", tt.capacity, err, tt.wantErr)
			}
		})
	}
}

func TestRingPutGetOrder(t *testing.T) {
	r, err := NewRing(8)
	if err != nil {
		t.Fatal(err)
	}

	if _, ok := r.Get(); ok {
		t.Fatal("Get on empty ring returned a value")
	}

	for ts := uint32(100); ts < 105; ts++ {
		r.Put(ts)
	}
	if got := r.Len(); got != 5 {
		t.Errorf("Len() = %d, want 5", got)
	}

	for want := uint32(100); want < 105; want++ {
		got, ok := r.Get()
		if !ok || got != want {
			t.Fatalf("Get() = (%d, %v), want (%d, true)", got, ok, want)
		}
	}
	if _, ok := r.Get(); ok {
		t.Error("drained ring still returned a value")
	}
}

// Filling past capacity must overwrite the oldest unread entries and
// leave the newest ones readable in order.
func TestRingOverflowKeepsNewest(t *testing.T) {
	r, err := NewRing(8)
	if err != nil {
		t.Fatal(err)
	}

	for ts := uint32(0); ts < 12; ts++ {
		r.Put(ts)
	}

	if got := r.Len(); got != 8 {
		t.Errorf("Len() after overflow = %d, want 8", got)
	}

	// Entries 0..3 were overwritten; 4..11 survive.
	for want := uint32(4); want < 12; want++ {
		got, ok := r.Get()
		if !ok || got != want {
			t.Fatalf("Get() = (%d, %v), want (%d, true)", got, ok, want)
		}
	}
}

func TestRingWrapsManyTimes(t *testing.T) {
	r, err := NewRing(4)
	if err != nil {
		t.Fatal(err)
	}

	// Interleave puts and gets so the cursors travel far past the
	// capacity and the masked indexing is exercised across wraps.
	next := uint32(0)
	for round := 0; round < 100; round++ {
		for i := 0; i < 3; i++ {
			r.Put(uint32(round*3 + i))
		}
		for i := 0; i < 3; i++ {
			got, ok := r.Get()
			if !ok || got != next {
				t.Fatalf("round %d: Get() = (%d, %v), want (%d, true)", round, got, ok, next)
			}
			next++
		}
	}
}

// One writer goroutine and one reader goroutine running concurrently
// must hand over every value in order as long as the writer never laps
// the reader.
func TestRingConcurrentWriterReader(t *testing.T) {
	const n = 10000
	r, err := NewRing(1 << 15) // larger than n, so no overwrites
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ts := uint32(0); ts < n; ts++ {
			r.Put(ts)
		}
	}()

	got := make([]uint32, 0, n)
	for len(got) < n {
		if v, ok := r.Get(); ok {
			got = append(got, v)
		}
	}
	wg.Wait()

	for i, v := range got {
		if v != uint32(i) {
			t.Fatalf("value[%d] = %d, want %d", i, v, i)
		}
	}
}
