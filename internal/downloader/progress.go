package downloader

// Status is the lifecycle state of a Session.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Progress is a snapshot derived from a session. It is never fed back into
// the session.
type Progress struct {
	SessionID        string
	Name             string
	Status           Status
	BytesTransferred int64
	TotalSize        int64
	Percent          float64
	Err              error
}

// Done reports whether the session reached a state without an active loop.
func (p Progress) Done() bool {
	return p.Status != StatusRunning
}

func percent(committed, total int64, status Status) float64 {
	if total == 0 {
		if status == StatusCompleted {
			return 100
		}

		return 0
	}

	return float64(committed) / float64(total) * 100
}

// Observer is notified after every chunk commit and every status transition.
// Notifications are delivered synchronously from the goroutine driving the
// session, in order.
type Observer interface {
	OnProgress(p Progress)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(p Progress)

func (f ObserverFunc) OnProgress(p Progress) {
	f(p)
}
