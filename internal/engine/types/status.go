package types

import (
	"sync"
	"sync/atomic"
	"time"
)

// Status is the small enumerated session status surfaced to the user
type Status string

const (
	StatusIdle        Status = "idle"
	StatusLaunching   Status = "launching"
	StatusWaiting     Status = "waiting"
	StatusDownloading Status = "downloading"
	StatusInstalling  Status = "installing"
	StatusDone        Status = "done"
	StatusStopped     Status = "stopped"
	StatusError       Status = "error"
)

// Terminal reports whether the status ends a session
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusStopped || s == StatusError
}

// TrackerState is the background tracker's state machine position
type TrackerState string

const (
	TrackerIdle             TrackerState = "idle"
	TrackerLaunching        TrackerState = "launching"
	TrackerWaitingForSignal TrackerState = "waiting_for_signal"
	TrackerTracking         TrackerState = "tracking"
	TrackerPendingFinish    TrackerState = "pending_finish"
	TrackerComplete         TrackerState = "complete"
	TrackerError            TrackerState = "error"
	TrackerStopped          TrackerState = "stopped"
)

// Terminal reports whether the tracker can no longer make progress
func (s TrackerState) Terminal() bool {
	return s == TrackerComplete || s == TrackerError || s == TrackerStopped
}

// Status maps the tracker state onto the user-facing status set
func (s TrackerState) Status() Status {
	switch s {
	case TrackerLaunching:
		return StatusLaunching
	case TrackerWaitingForSignal:
		return StatusWaiting
	case TrackerTracking:
		return StatusDownloading
	case TrackerPendingFinish:
		return StatusInstalling
	case TrackerComplete:
		return StatusDone
	case TrackerError:
		return StatusError
	case TrackerStopped:
		return StatusStopped
	default:
		return StatusIdle
	}
}

// ProgressState is the published, lock-free snapshot the UI polls.
// Only the owning session goroutine writes to it.
type ProgressState struct {
	ID         string
	Downloaded atomic.Int64
	TotalSize  atomic.Int64
	StartTime  time.Time

	mu      sync.Mutex
	status  Status
	message string
	err     error
}

// NewProgressState creates a state in the idle status
func NewProgressState(id string, totalSize int64) *ProgressState {
	ps := &ProgressState{
		ID:        id,
		StartTime: time.Now(),
		status:    StatusIdle,
	}
	ps.TotalSize.Store(totalSize)
	return ps
}

// SetStatus records a status change together with its message
func (ps *ProgressState) SetStatus(s Status, message string) {
	ps.mu.Lock()
	ps.status = s
	if message != "" {
		ps.message = message
	}
	ps.mu.Unlock()
}

// SetError moves the state to StatusError
func (ps *ProgressState) SetError(err error) {
	ps.mu.Lock()
	ps.status = StatusError
	ps.err = err
	if err != nil {
		ps.message = err.Error()
	}
	ps.mu.Unlock()
}

// Status returns the current status and its latest message
func (ps *ProgressState) Status() (Status, string) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.status, ps.message
}

// Err returns the error recorded by SetError, if any
func (ps *ProgressState) Err() error {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.err
}

// Advance raises Downloaded to n, never lowering it
func (ps *ProgressState) Advance(n int64) {
	for {
		cur := ps.Downloaded.Load()
		if n <= cur {
			return
		}
		if ps.Downloaded.CompareAndSwap(cur, n) {
			return
		}
	}
}

// Fraction returns Downloaded/TotalSize clamped to [0, 1]
func (ps *ProgressState) Fraction() float64 {
	total := ps.TotalSize.Load()
	if total <= 0 {
		return 0
	}
	f := float64(ps.Downloaded.Load()) / float64(total)
	if f > 1 {
		return 1
	}
	return f
}

// Snapshot is a copy of a session's state for display
type Snapshot struct {
	ID         string  `json:"id"`
	Flow       string  `json:"flow"`
	Status     Status  `json:"status"`
	Message    string  `json:"message"`
	Downloaded int64   `json:"downloaded"`
	Total      int64   `json:"total"`
	Progress   float64 `json:"progress"` // 0-1
}

// Snapshot copies the state for display
func (ps *ProgressState) Snapshot(flow string) Snapshot {
	status, msg := ps.Status()
	return Snapshot{
		ID:         ps.ID,
		Flow:       flow,
		Status:     status,
		Message:    msg,
		Downloaded: ps.Downloaded.Load(),
		Total:      ps.TotalSize.Load(),
		Progress:   ps.Fraction(),
	}
}
