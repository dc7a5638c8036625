package syncer

import (
	"time"

	"github.com/google/uuid"
)

// Failure records one path that could not be scanned or applied.
type Failure struct {
	Path string
	Op   string // "scan source", "scan target", or the action kind
	Err  error
}

// Report is the final outcome of one sync session. Created counts both
// files and directories created.
type Report struct {
	SessionID uuid.UUID
	Source    string
	Target    string
	StartedAt time.Time
	Duration  time.Duration

	Created     int
	Replaced    int
	Deleted     int
	Kept        int
	Pruned      int
	BytesCopied int64

	Failed    []Failure
	Cancelled bool
}

// Success reports a run with zero failures and no cancellation.
func (r *Report) Success() bool {
	return len(r.Failed) == 0 && !r.Cancelled
}
