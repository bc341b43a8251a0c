// Segment-driven simulation loop.
package clock

import (
	"log/slog"
	"time"
)

// Runner drives the simulation forward one segment at a time.
type Runner struct {
	Segment  uint64        // Current segment counter (monotonic, never resets)
	Speed    float64       // Multiplier: 1.0 = real-time, 0 = paused
	Interval time.Duration // Base wall-clock duration of one segment
	Running  bool

	// Callbacks — populated during setup.
	OnSegment func(segment uint64) // Every segment
	OnDay     func(segment uint64) // At the start of each new sim-day
}

// NewRunner creates a runner with default settings.
func NewRunner() *Runner {
	return &Runner{
		Speed:    1.0,
		Interval: time.Second,
	}
}

// Run starts the loop. Blocks until Stop() is called.
func (r *Runner) Run() {
	r.Running = true
	slog.Info("clock runner started", "segment", r.Segment, "speed", r.Speed)

	for r.Running {
		if r.Speed <= 0 {
			// Paused — sleep briefly and check again.
			time.Sleep(100 * time.Millisecond)
			continue
		}

		start := time.Now()

		r.step()

		// Sleep for the remainder of the segment interval, adjusted for speed.
		elapsed := time.Since(start)
		target := time.Duration(float64(r.Interval) / r.Speed)
		if elapsed < target {
			time.Sleep(target - elapsed)
		}
	}

	slog.Info("clock runner stopped", "segment", r.Segment)
}

// Stop halts the loop.
func (r *Runner) Stop() {
	r.Running = false
}

// step advances the clock by one segment.
func (r *Runner) step() {
	r.Segment++

	if r.OnSegment != nil {
		r.OnSegment(r.Segment)
	}

	if r.Segment%SegmentsPerDay == 0 && r.OnDay != nil {
		r.OnDay(r.Segment)
	}
}
