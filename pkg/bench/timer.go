package bench

import "time"

// Stopwatch measures the wall-clock duration of a single benchmark run.
// The zero value is ready to use.
type Stopwatch struct {
	start   time.Time
	elapsed time.Duration
	running bool
}

func NewStopwatch() *Stopwatch {
	return &Stopwatch{}
}

func (s *Stopwatch) Start() {
	s.start = time.Now()
	s.running = true
}

func (s *Stopwatch) Stop() time.Duration {
	if s.running {
		s.elapsed = time.Since(s.start)
		s.running = false
	}
	return s.elapsed
}

func (s *Stopwatch) Elapsed() time.Duration {
	if s.running {
		return time.Since(s.start)
	}
	return s.elapsed
}

func (s *Stopwatch) Seconds() float64 {
	return s.Elapsed().Seconds()
}

// Time runs fn and returns how long it took. The duration is valid even
// when fn returns an error, so failed runs can still be logged.
func Time(fn func() error) (time.Duration, error) {
	sw := NewStopwatch()
	sw.Start()
	err := fn()
	return sw.Stop(), err
}
