// Package waittime predicts when the next server frees up for a shop with several
// interchangeable servers.
package waittime

import (
	"math"
	"time"
)

// Estimate returns the minutes until a new job can start when jobs (durations in minutes,
// arrival order) are handed to the earliest available of servers identical servers.
// Ties go to the lowest server index. servers below 1 is treated as 1.
func Estimate(jobs []float64, servers int) int {
	if servers < 1 {
		servers = 1
	}
	availableAt := make([]float64, servers)
	for _, d := range jobs {
		if d < 0 {
			d = 0
		}
		availableAt[earliest(availableAt)] += d
	}
	return int(math.Ceil(availableAt[earliest(availableAt)]))
}

func earliest(availableAt []float64) int {
	idx := 0
	for i := 1; i < len(availableAt); i++ {
		if availableAt[i] < availableAt[idx] {
			idx = i
		}
	}
	return idx
}

// Uniform returns n jobs of d minutes each.
func Uniform(d float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	jobs := make([]float64, n)
	for i := range jobs {
		jobs[i] = d
	}
	return jobs
}

// Remaining is the unfinished part of a slot of slotMinutes that started at startedAt.
// A job that has run past its slot contributes nothing.
func Remaining(slotMinutes int, startedAt, now time.Time) float64 {
	elapsed := now.Sub(startedAt).Minutes()
	if elapsed < 0 {
		elapsed = 0
	}
	return math.Max(0, float64(slotMinutes)-elapsed)
}
