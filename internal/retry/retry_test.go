package retry

import (
	"errors"
	"testing"
	"time"
)

func TestMain(m *testing.M) {
	sleepFunc = func(time.Duration) {}
	m.Run()
}

func TestFixedSucceedsFirstTry(t *testing.T) {
	calls := 0
	err := Fixed(3, 100*time.Millisecond).Do(nil, func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestFixedExhaustsAttempts(t *testing.T) {
	want := errors.New("boom")
	calls := 0
	err := Fixed(3, 10*time.Millisecond).Do(nil, func() error {
		calls++
		return want
	})
	if err != want {
		t.Fatalf("expected %v, got %v", want, err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestDoStopsOnNonTransientError(t *testing.T) {
	permanent := errors.New("permanent")
	calls := 0
	err := Fixed(5, time.Millisecond).Do(func(error) bool { return false }, func() error {
		calls++
		return permanent
	})
	if err != permanent {
		t.Fatalf("expected %v, got %v", permanent, err)
	}
	if calls != 1 {
		t.Fatalf("expected to stop after first attempt, got %d calls", calls)
	}
}

func TestScheduleNextClampsToLastDelay(t *testing.T) {
	p := Schedule(time.Second, 2*time.Second, 5*time.Second)
	if got := p.Next(0); got != time.Second {
		t.Fatalf("attempt 0: got %v", got)
	}
	if got := p.Next(2); got != 5*time.Second {
		t.Fatalf("attempt 2: got %v", got)
	}
	if got := p.Next(100); got != 5*time.Second {
		t.Fatalf("attempt 100 should clamp to last delay, got %v", got)
	}
}

func TestScheduleNextEmptyIsZero(t *testing.T) {
	if got := (Policy{}).Next(0); got != 0 {
		t.Fatalf("expected 0, got %v", got)
	}
}
