package timeutil

import (
	"testing"
	"time"
)

func TestRealClockNow(t *testing.T) {
	c := RealClock{}
	before := time.Now()
	got := c.Now()
	after := time.Now()

	if got.Before(before) || got.After(after) {
		t.Errorf("RealClock.Now() = %v, want between %v and %v", got, before, after)
	}
}

func TestMockClockNow(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewMockClock(base)

	if got := c.Now(); !got.Equal(base) {
		t.Errorf("Now() = %v, want %v", got, base)
	}
}

func TestMockClockSet(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewMockClock(base)

	later := base.Add(2 * time.Hour)
	c.Set(later)
	if got := c.Now(); !got.Equal(later) {
		t.Errorf("Now() after Set = %v, want %v", got, later)
	}
}

func TestMockClockAdvance(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewMockClock(base)

	c.Advance(90 * time.Minute)
	want := base.Add(90 * time.Minute)
	if got := c.Now(); !got.Equal(want) {
		t.Errorf("Now() after Advance = %v, want %v", got, want)
	}
}

func TestMockClockSince(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewMockClock(base)
	c.Advance(45 * time.Second)

	if got := c.Since(base); got != 45*time.Second {
		t.Errorf("Since(base) = %v, want 45s", got)
	}
}
