package client

import (
	"testing"
	"time"
)

// fixedRand returns a constant jitter factor so delay math is exact.
type fixedRand struct{ v float64 }

func (f fixedRand) Float64() float64 { return f.v }

func TestBackoffDoublesToCap(t *testing.T) {
	// Jitter factor 1.0 leaves the raw delay untouched.
	b := newBackoff(100*time.Millisecond, time.Second, 0, fixedRand{1})

	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		time.Second,
		time.Second,
	}
	for i, w := range want {
		d, ok := b.Next()
		if !ok {
			t.Fatalf("Next() exhausted at attempt %d with unlimited attempts", i)
		}
		if d != w {
			t.Errorf("attempt %d: delay = %v, want %v", i, d, w)
		}
	}
}

func TestBackoffJitterBounds(t *testing.T) {
	// Real randomness: every delay must land in [raw/2, raw].
	b := newBackoff(80*time.Millisecond, 2*time.Second, 0, nil)

	raw := 80 * time.Millisecond
	for i := 0; i < 12; i++ {
		d, ok := b.Next()
		if !ok {
			t.Fatalf("unexpected exhaustion at attempt %d", i)
		}
		if d < raw/2 || d > raw {
			t.Errorf("attempt %d: delay %v outside [%v, %v]", i, d, raw/2, raw)
		}
		if raw < 2*time.Second {
			raw *= 2
			if raw > 2*time.Second {
				raw = 2 * time.Second
			}
		}
	}
}

func TestBackoffExhaustion(t *testing.T) {
	b := newBackoff(time.Millisecond, time.Second, 3, fixedRand{1})

	for i := 0; i < 3; i++ {
		if _, ok := b.Next(); !ok {
			t.Fatalf("Next() exhausted after %d attempts, budget is 3", i)
		}
	}
	if _, ok := b.Next(); ok {
		t.Fatal("Next() still producing delays past the attempt budget")
	}
	if got := b.Attempts(); got != 3 {
		t.Errorf("Attempts() = %d, want 3", got)
	}
}

func TestBackoffReset(t *testing.T) {
	b := newBackoff(50*time.Millisecond, time.Second, 2, fixedRand{1})

	b.Next()
	b.Next()
	if _, ok := b.Next(); ok {
		t.Fatal("expected exhaustion before reset")
	}

	b.Reset()
	d, ok := b.Next()
	if !ok {
		t.Fatal("Next() exhausted immediately after Reset")
	}
	if d != 50*time.Millisecond {
		t.Errorf("first delay after Reset = %v, want 50ms", d)
	}
}

func TestBackoffOverflowClampsToMax(t *testing.T) {
	b := newBackoff(time.Hour, 2*time.Hour, 0, fixedRand{1})

	// Enough doublings to overflow int64 nanoseconds if unguarded.
	var last time.Duration
	for i := 0; i < 70; i++ {
		d, ok := b.Next()
		if !ok {
			t.Fatalf("unexpected exhaustion at attempt %d", i)
		}
		if d < 0 || d > 2*time.Hour {
			t.Fatalf("attempt %d: delay %v escaped the cap", i, d)
		}
		last = d
	}
	if last != 2*time.Hour {
		t.Errorf("steady-state delay = %v, want the 2h cap", last)
	}
}
