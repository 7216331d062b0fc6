package gateway

import (
	"testing"
	"time"
)

func steady(base, max time.Duration) *retryDelay {
	r := newRetryDelay(base, max)
	r.exp.RandomizationFactor = 0
	return r
}

func TestRetryDelayGrowsAndCaps(t *testing.T) {
	r := steady(time.Second, 10*time.Second)
	now := time.Now()

	want := []time.Duration{1, 2, 4, 8, 10, 10}
	for i, w := range want {
		if got := r.next(now); got != w*time.Second {
			t.Fatalf("attempt %d: got %v, want %v", i, got, w*time.Second)
		}
	}
	if r.attempt != len(want) {
		t.Errorf("attempt = %d, want %d", r.attempt, len(want))
	}
}

func TestRetryDelayJitter(t *testing.T) {
	r := newRetryDelay(time.Second, time.Minute)
	for range 20 {
		r.exp.Reset()
		got := r.next(time.Now())
		if got < 500*time.Millisecond || got > 1501*time.Millisecond {
			t.Fatalf("got %v, want within 50%% of 1s", got)
		}
	}
}

func TestRetryDelayResetsAfterStableConnection(t *testing.T) {
	r := steady(time.Second, time.Minute)
	now := time.Now()
	r.next(now)
	r.next(now)

	r.markConnected(now)
	if got := r.next(now.Add(2 * stableAfter)); got != time.Second {
		t.Fatalf("got %v after stable connection, want 1s", got)
	}

	r.next(now)
	r.markConnected(now)
	if got := r.next(now.Add(time.Second)); got != 4*time.Second {
		t.Fatalf("got %v after short connection, want 4s", got)
	}
}

func TestRetryDelayNeverStops(t *testing.T) {
	r := steady(time.Millisecond, 2*time.Millisecond)
	for i := range 1000 {
		if got := r.next(time.Now()); got <= 0 {
			t.Fatalf("attempt %d: got %v", i, got)
		}
	}
}

func TestRetryDelayDefaults(t *testing.T) {
	r := newRetryDelay(0, 0)
	if r.exp.InitialInterval != time.Second || r.exp.MaxInterval != time.Second {
		t.Fatalf("unexpected defaults: base=%v max=%v", r.exp.InitialInterval, r.exp.MaxInterval)
	}
}
