package api

import (
	"testing"
	"time"
)

func TestBackoffGrowth(t *testing.T) {
	base := 100 * time.Millisecond
	max := time.Hour

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
	}

	for _, tc := range cases {
		got := Backoff(tc.attempt, base, 0, max, nil)
		if got != tc.want {
			t.Errorf("attempt %d: expected %v, got %v", tc.attempt, tc.want, got)
		}
	}
}

func TestBackoffCap(t *testing.T) {
	base := time.Second
	max := 5 * time.Second

	if got := Backoff(10, base, 0, max, nil); got != max {
		t.Errorf("expected cap %v, got %v", max, got)
	}
	// Very high attempt counts must not overflow past the cap
	if got := Backoff(500, base, 0, max, nil); got != max {
		t.Errorf("expected cap %v for huge attempt, got %v", max, got)
	}
}

func TestBackoffJitterRange(t *testing.T) {
	base := time.Second
	max := time.Hour
	const jitterFrac = 0.25

	// rnd at the extremes bounds the jitter range
	low := Backoff(2, base, jitterFrac, max, func() float64 { return 0 })
	high := Backoff(2, base, jitterFrac, max, func() float64 { return 0.999999 })

	if low != 2*time.Second {
		t.Errorf("zero jitter draw should give bare delay, got %v", low)
	}
	wantMax := 2*time.Second + time.Duration(jitterFrac*float64(2*time.Second))
	if high < low || high > wantMax {
		t.Errorf("jittered delay %v outside [%v, %v]", high, low, wantMax)
	}
}

func TestBackoffDegenerateInputs(t *testing.T) {
	if got := Backoff(0, time.Second, 0, time.Minute, nil); got != time.Second {
		t.Errorf("attempt below 1 should clamp to first attempt, got %v", got)
	}
	if got := Backoff(3, 0, 0, time.Minute, nil); got != 0 {
		t.Errorf("zero base should give zero delay, got %v", got)
	}
}
