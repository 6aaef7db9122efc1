package waittime

import (
	"testing"
	"time"
)

func TestEstimate_EmptyQueueIsZero(t *testing.T) {
	for servers := 1; servers <= 5; servers++ {
		if got := Estimate(nil, servers); got != 0 {
			t.Fatalf("servers=%d: expected 0, got %d", servers, got)
		}
	}
}

func TestEstimate_UniformLoadMatchesBlocks(t *testing.T) {
	cases := []struct {
		d       float64
		n, s    int
		wantMin int
	}{
		{d: 20, n: 2, s: 2, wantMin: 20},
		{d: 20, n: 4, s: 2, wantMin: 40},
		{d: 15, n: 6, s: 3, wantMin: 30},
		{d: 30, n: 3, s: 1, wantMin: 90},
		{d: 25, n: 0, s: 4, wantMin: 0},
	}
	for _, tc := range cases {
		if got := Estimate(Uniform(tc.d, tc.n), tc.s); got != tc.wantMin {
			t.Fatalf("Estimate(%v x %d, %d) = %d, want %d", tc.d, tc.n, tc.s, got, tc.wantMin)
		}
	}
}

func TestEstimate_SoonestServerWins(t *testing.T) {
	// Three 20 minute jobs on two servers: server 0 runs jobs 1 and 3, server 1 frees at 20.
	if got := Estimate([]float64{20, 20, 20}, 2); got != 20 {
		t.Fatalf("expected 20, got %d", got)
	}
	// Uneven jobs go to whichever server frees first.
	if got := Estimate([]float64{30, 10, 10, 10}, 2); got != 30 {
		t.Fatalf("expected 30, got %d", got)
	}
}

func TestEstimate_ZeroServersSaturatesToOne(t *testing.T) {
	if got := Estimate([]float64{10, 10}, 0); got != 20 {
		t.Fatalf("expected 20, got %d", got)
	}
	if got := Estimate([]float64{10}, -3); got != 10 {
		t.Fatalf("expected 10, got %d", got)
	}
}

func TestEstimate_RoundsUpFractions(t *testing.T) {
	if got := Estimate([]float64{12.2}, 1); got != 13 {
		t.Fatalf("expected 13, got %d", got)
	}
}

func TestRemaining(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	cases := []struct {
		started time.Time
		want    float64
	}{
		{started: now.Add(-5 * time.Minute), want: 15},
		{started: now.Add(-20 * time.Minute), want: 0},
		{started: now.Add(-45 * time.Minute), want: 0},
		{started: now.Add(5 * time.Minute), want: 20},
	}
	for _, tc := range cases {
		if got := Remaining(20, tc.started, now); got != tc.want {
			t.Fatalf("Remaining(started %s) = %v, want %v", tc.started.Format(time.Kitchen), got, tc.want)
		}
	}
}
