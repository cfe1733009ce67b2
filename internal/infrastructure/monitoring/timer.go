package monitoring

import "time"

// Timer measures a process run's duration.
type Timer struct {
	start   time.Time
	metrics *Metrics
	running bool
}

// NewTimer creates a new timer
func NewTimer(metrics *Metrics) *Timer {
	return &Timer{
		start:   time.Now(),
		metrics: metrics,
	}
}

// Running marks the run as having entered the running state.
func (t *Timer) Running() {
	if t.running {
		return
	}
	t.running = true
	t.metrics.RecordRunStarted()
}

// Stop stops the timer and records the terminal state.
func (t *Timer) Stop(state string) time.Duration {
	duration := time.Since(t.start)
	t.metrics.RecordRunFinished(state, duration, t.running)
	return duration
}
