package main

import (
	"sync"

	"github.com/italolelis/resumable_downloader/internal/downloader"
)

// pauseSet hands out one pause signal per download and fans an interrupt out
// to all of them, so --pause-after on one file leaves the others running.
type pauseSet struct {
	mu          sync.Mutex
	interrupted bool
	signals     []*downloader.PauseSignal
}

// next replaces the current signals with n fresh ones. After an interrupt the
// new signals are returned already fired.
func (s *pauseSet) next(n int) []*downloader.PauseSignal {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.signals = make([]*downloader.PauseSignal, n)
	for i := range s.signals {
		s.signals[i] = downloader.NewPauseSignal()
		if s.interrupted {
			s.signals[i].Pause()
		}
	}

	return s.signals
}

// interrupt fires every current signal and reports whether this was the
// first interrupt.
func (s *pauseSet) interrupt() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	first := !s.interrupted
	s.interrupted = true

	for _, sig := range s.signals {
		sig.Pause()
	}

	return first
}

func (s *pauseSet) Interrupted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.interrupted
}
