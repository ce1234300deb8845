// Package metrics collects per-run statistics and reports them to the log,
// a stat file, Redis and a Prometheus Pushgateway.
package metrics

import (
	"math"
	"sync"
)

// Accumulator keeps a running mean and variance of observed values.
// It is safe for concurrent use.
type Accumulator struct {
	mu   sync.Mutex
	n    int64
	mean float64
	m2   float64
}

// Add records one observation.
func (a *Accumulator) Add(x float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.n++
	delta := x - a.mean
	a.mean += delta / float64(a.n)
	a.m2 += delta * (x - a.mean)
}

// Count returns the number of observations.
func (a *Accumulator) Count() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.n
}

// Mean returns the arithmetic mean, or 0 before any observation.
func (a *Accumulator) Mean() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mean
}

// StdDev returns the sample standard deviation (n-1 denominator).
// It is 0 for fewer than two observations.
func (a *Accumulator) StdDev() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.n < 2 {
		return 0
	}
	return math.Sqrt(a.m2 / float64(a.n-1))
}

// Stat is a mean/stddev pair.
type Stat struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std"`
}

// Snapshot returns the current mean and standard deviation.
func (a *Accumulator) Snapshot() Stat {
	return Stat{Mean: a.Mean(), StdDev: a.StdDev()}
}
