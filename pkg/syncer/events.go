package syncer

import "github.com/eapp-tools/dirsync/pkg/planner"

// State is the session lifecycle state.
type State string

const (
	StateIdle      State = "idle"
	StateScanning  State = "scanning"
	StatePlanning  State = "planning"
	StateApplying  State = "applying"
	StateCompleted State = "completed"
	StateCancelled State = "cancelled"
	StateFailed    State = "failed"
)

// Terminal reports whether no further state change can happen.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateFailed
}

// Status is the per-action execution status.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
)

// EventType discriminates session events.
type EventType string

const (
	EventStateChanged   EventType = "state_changed"
	EventActionStarted  EventType = "action_started"
	EventActionProgress EventType = "action_progress"
	EventActionDone     EventType = "action_done"
	EventActionFailed   EventType = "action_failed"
)

// Event is one entry in the session's ordered event stream. State
// events carry State; action events carry the plan index, the action
// and, for progress, monotonically increasing byte counts.
type Event struct {
	Type       EventType
	State      State
	Index      int
	Action     planner.Action
	BytesDone  int64
	BytesTotal int64
	Err        error
}

// ActionRecord is a read-only snapshot of one action's runtime state.
type ActionRecord struct {
	Action    planner.Action
	Status    Status
	BytesDone int64
	Err       error
}
