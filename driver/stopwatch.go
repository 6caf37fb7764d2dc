package driver

import "time"

// Stopwatch gates how often throttled packets are allowed out.
type Stopwatch struct {
	started time.Time
}

func NewStopwatch() Stopwatch {
	return Stopwatch{started: time.Now()}
}

func (s *Stopwatch) Elapsed() time.Duration {
	return time.Since(s.started)
}

func (s *Stopwatch) Restart() {
	s.started = time.Now()
}

// CompareAndRestart restarts the stopwatch and reports true when at least
// interval has elapsed since the previous restart.
func (s *Stopwatch) CompareAndRestart(interval time.Duration) bool {

	if time.Since(s.started) < interval {
		return false
	}

	s.started = time.Now()
	return true
}
