package syncer

import (
	"time"

	"github.com/eapp-tools/dirsync/pkg/executor"
	"github.com/eapp-tools/dirsync/pkg/planner"
)

// DefaultConcurrency is the number of concurrent file transfers.
// Transfers overlap I/O latency; more than a handful just saturates the
// disk.
const DefaultConcurrency = 3

// Policy is the externally supplied configuration for one sync session.
// The engine consumes it; it never reads or writes configuration itself.
type Policy struct {
	// AllowDelete permits deletion of target entries missing from the
	// source. Off by default.
	AllowDelete bool

	// IgnorePatterns excludes matching entries from both inventories
	// before classification. Doublestar globs against slash-separated
	// relative paths; a trailing slash marks a directory pattern.
	IgnorePatterns []string

	// PruneEmptyDirs removes directories left empty by deletions,
	// bottom-up, after all deletions ran.
	PruneEmptyDirs bool

	// ChunkThreshold is the file size at or above which copies run
	// chunk by chunk. Zero means executor.DefaultChunkThreshold.
	ChunkThreshold int64

	// ChunkSize bounds the copy buffer for chunked transfers. Zero
	// means executor.DefaultChunkSize.
	ChunkSize int64

	// ModTimeWindow is the timestamp-equality tolerance used by
	// classification. Zero means planner.DefaultModTimeWindow.
	ModTimeWindow time.Duration

	// Concurrency bounds parallel file transfers. Zero means
	// DefaultConcurrency.
	Concurrency int

	// BandwidthLimit throttles copies to this many bytes per second.
	// Zero means unlimited.
	BandwidthLimit int64
}

// DefaultPolicy returns the policy with all defaults filled in.
func DefaultPolicy() Policy {
	return Policy{
		ChunkThreshold: executor.DefaultChunkThreshold,
		ModTimeWindow:  planner.DefaultModTimeWindow,
		Concurrency:    DefaultConcurrency,
	}
}

func (p Policy) concurrency() int {
	if p.Concurrency <= 0 {
		return DefaultConcurrency
	}
	return p.Concurrency
}
