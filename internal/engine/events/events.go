package events

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/sideassist/sideassist/internal/engine/types"
)

// StatusMsg reports a session status transition
type StatusMsg struct {
	SessionID string
	Status    types.Status
	Message   string
}

// ProgressMsg represents a progress update for the whole session
type ProgressMsg struct {
	SessionID  string
	Downloaded int64
	Total      int64
	Item       string // File currently transferring, empty for the background tracker
}

// LogMsg carries one console line
type LogMsg struct {
	SessionID string
	Line      string
}

// TrackerStateMsg is emitted on every tracker state machine transition
type TrackerStateMsg struct {
	SessionID string
	From      types.TrackerState
	To        types.TrackerState
}

// BatchClosedMsg is sent when a batch of requests is handed to the executor
type BatchClosedMsg struct {
	SessionID string
	Tasks     int
	Bytes     int64
}

// SessionCompleteMsg signals that a session finished successfully
type SessionCompleteMsg struct {
	SessionID string
	Flow      string
	Elapsed   time.Duration
	Total     int64
}

// SessionErrorMsg signals that a session ended with an error
type SessionErrorMsg struct {
	SessionID string
	Flow      string
	Err       error
}

func (m SessionErrorMsg) MarshalJSON() ([]byte, error) {
	type encoded struct {
		SessionID string `json:"SessionID"`
		Flow      string `json:"Flow,omitempty"`
		Err       string `json:"Err,omitempty"`
	}

	out := encoded{SessionID: m.SessionID, Flow: m.Flow}
	if m.Err != nil {
		out.Err = m.Err.Error()
	}
	return json.Marshal(out)
}

func (m *SessionErrorMsg) UnmarshalJSON(data []byte) error {
	var aux struct {
		SessionID string `json:"SessionID"`
		Flow      string `json:"Flow"`
		Err       string `json:"Err"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	m.SessionID = aux.SessionID
	m.Flow = aux.Flow
	m.Err = nil
	if aux.Err != "" {
		m.Err = errors.New(aux.Err)
	}
	return nil
}

// PromptMsg asks the UI layer for a decision. The UI must send exactly one
// index on Reply; -1 means dismissed.
type PromptMsg struct {
	Title   string
	Message string
	Options []string
	Reply   chan<- int
}

// Publish sends msg without blocking. Dropped progress is fine: consumers
// can always read the latest ProgressState.
func Publish(ch chan<- any, msg any) bool {
	if ch == nil {
		return false
	}
	select {
	case ch <- msg:
		return true
	default:
		return false
	}
}
