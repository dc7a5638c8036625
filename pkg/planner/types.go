package planner

import "time"

// ActionKind identifies the planned operation for one path.
type ActionKind string

const (
	ActionCreate  ActionKind = "create"
	ActionReplace ActionKind = "replace"
	ActionDelete  ActionKind = "delete"
	ActionKeep    ActionKind = "keep"
)

// Action is a single planned filesystem operation.
type Action struct {
	Kind   ActionKind
	Path   string // slash-separated, relative to both roots
	Size   int64  // source size for file create/replace, 0 otherwise
	IsDir  bool
	Reason string
}

// Transfers reports whether the action moves file content.
func (a Action) Transfers() bool {
	return !a.IsDir && (a.Kind == ActionCreate || a.Kind == ActionReplace)
}

// Plan is the ordered action sequence for one sync session.
//
// Ordering invariants: deletions forced by a file/directory type change
// come first (deepest paths first), then creates, replaces and keeps in
// ascending path order (so directories precede their contents), then
// remaining deletions in descending path order (so contents precede
// their directories).
type Plan struct {
	Actions []Action

	// Aggregates for progress weighting and summaries.
	TotalBytes int64 // bytes to be copied
	TotalFiles int   // file create/replace count
	Creates    int
	Replaces   int
	Deletes    int
	Keeps      int
}

// Actionable reports whether the plan contains any non-keep action.
func (p *Plan) Actionable() bool {
	return p.Creates > 0 || p.Replaces > 0 || p.Deletes > 0
}

// Options configures classification.
type Options struct {
	// AllowDelete permits delete actions for paths present only in the
	// target. Deletions forced by a type change are always emitted.
	AllowDelete bool

	// ModTimeWindow is the tolerance within which two modification
	// times are considered equal. Zero means DefaultModTimeWindow.
	ModTimeWindow time.Duration
}

// DefaultModTimeWindow covers coarse filesystem timestamp granularity
// (FAT stores modification times in 2 second steps).
const DefaultModTimeWindow = 2 * time.Second

// ClassifyError reports an internal inconsistency while building a plan.
// It should not occur for well-formed inventories.
type ClassifyError struct {
	Path string
	Msg  string
}

func (e *ClassifyError) Error() string {
	return "classify " + e.Path + ": " + e.Msg
}
