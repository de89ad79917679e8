package util

import (
	"sync"
	"time"
)

type Stopwatch struct {
	mu      sync.Mutex
	running bool
	started time.Time
	elapsed time.Duration
}

func (s *Stopwatch) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.started = time.Now()
	s.running = true
}

func (s *Stopwatch) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.elapsed += time.Since(s.started)
	s.running = false
}

func (s *Stopwatch) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Stopwatch) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.elapsed
	if s.running {
		e += time.Since(s.started)
	}
	return e
}

func (s *Stopwatch) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.elapsed = time.Duration(0)
}
