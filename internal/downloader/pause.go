package downloader

import "sync"

// PauseSignal asks a running session to stop at the next chunk boundary.
// A signal fires once; pass a fresh one (or nil) to resume.
type PauseSignal struct {
	once sync.Once
	ch   chan struct{}
}

func NewPauseSignal() *PauseSignal {
	return &PauseSignal{ch: make(chan struct{})}
}

// Pause fires the signal. Calling it more than once is safe.
func (p *PauseSignal) Pause() {
	p.once.Do(func() { close(p.ch) })
}

// Requested reports whether Pause was called. A nil signal never fires.
func (p *PauseSignal) Requested() bool {
	if p == nil {
		return false
	}

	select {
	case <-p.ch:
		return true
	default:
		return false
	}
}

// Done is closed once Pause is called.
func (p *PauseSignal) Done() <-chan struct{} {
	return p.ch
}
