package conceal

import "sync"

// progressReporter delivers monotonically non-decreasing progress to an
// observer at a throttled cadence: intermediate values are reported only
// when progress has advanced by at least minProgressStep, so a per-frame
// caller does not flood the observer. Finish always delivers 1.0.
type progressReporter struct {
	fn   func(float64)
	mu   sync.Mutex
	last float64
}

const minProgressStep = 0.01

func newProgressReporter(fn func(float64)) *progressReporter {
	return &progressReporter{fn: fn}
}

// Report delivers fraction if it advances progress enough. Values are
// clamped to [0,1]; non-increasing values are dropped, so the observer
// sequence is always monotone even when the video and finalize phases
// race.
func (r *progressReporter) Report(fraction float64) {
	if r == nil || r.fn == nil {
		return
	}
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}

	r.mu.Lock()
	if fraction < 1 && fraction-r.last < minProgressStep {
		r.mu.Unlock()
		return
	}
	if fraction <= r.last {
		r.mu.Unlock()
		return
	}
	r.last = fraction
	r.mu.Unlock()

	r.fn(fraction)
}

// Finish reports terminal progress.
func (r *progressReporter) Finish() {
	r.Report(1)
}
