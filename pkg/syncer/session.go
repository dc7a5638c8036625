// Package syncer orchestrates a directory sync session: it scans both
// roots, classifies the difference into a plan, applies the plan with a
// bounded worker pool and reports progress through a single ordered
// event stream.
package syncer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/eapp-tools/dirsync/pkg/executor"
	"github.com/eapp-tools/dirsync/pkg/logger"
	"github.com/eapp-tools/dirsync/pkg/planner"
	"github.com/eapp-tools/dirsync/pkg/scanner"
)

// ErrNotIdle is returned when Run is called on a session that already
// ran. Sessions are single-use; plan again for a retry, since the
// filesystem may have changed.
var ErrNotIdle = errors.New("sync session already started")

// Session owns the runtime state of one sync run. All mutation happens
// inside Run; observers get immutable snapshots or events.
type Session struct {
	id     uuid.UUID
	source string
	target string
	policy Policy
	log    logger.Logger

	mu      sync.Mutex
	state   State
	plan    *planner.Plan
	actions []actionState

	events        chan Event
	consuming     atomic.Bool
	cancelRequest atomic.Bool
	cancelRun     context.CancelFunc

	bytesCopied atomic.Int64
}

type actionState struct {
	status    Status
	bytesDone int64
	err       error
}

// New creates an idle session for the given roots.
func New(source, target string, pol Policy, log logger.Logger) *Session {
	if log == nil {
		log = logger.Nop()
	}
	return &Session{
		id:     uuid.New(),
		source: source,
		target: target,
		policy: pol,
		log:    log,
		state:  StateIdle,
		events: make(chan Event, 1024),
	}
}

// ID returns the session identifier.
func (s *Session) ID() uuid.UUID { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Events returns the session's event stream. The channel is closed when
// Run returns. A consumer that subscribes must keep draining; once
// subscribed, emission blocks on a full buffer rather than dropping
// events. Without a subscriber events are discarded.
func (s *Session) Events() <-chan Event {
	s.consuming.Store(true)
	return s.events
}

// Cancel requests cooperative cancellation. It is observed between
// directory visits while scanning, between actions while applying, and
// between chunks of a large transfer. Safe to call from any goroutine,
// any number of times.
func (s *Session) Cancel() {
	s.cancelRequest.Store(true)
	s.mu.Lock()
	cancel := s.cancelRun
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Snapshot returns a copy of the per-action runtime state. Empty until
// planning finished.
func (s *Session) Snapshot() []ActionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.plan == nil {
		return nil
	}
	records := make([]ActionRecord, len(s.plan.Actions))
	for i, act := range s.plan.Actions {
		records[i] = ActionRecord{
			Action:    act,
			Status:    s.actions[i].status,
			BytesDone: s.actions[i].bytesDone,
			Err:       s.actions[i].err,
		}
	}
	return records
}

// Plan scans both roots and classifies them without applying anything.
// Useful for dry runs; the returned inventories let callers inspect
// what was scanned.
func Plan(ctx context.Context, source, target string, pol Policy) (*planner.Plan, *scanner.Inventory, *scanner.Inventory, error) {
	srcInv, dstInv, err := scanBoth(ctx, source, target, pol.IgnorePatterns)
	if err != nil {
		return nil, nil, nil, err
	}
	plan, err := planner.Classify(srcInv, dstInv, planner.Options{
		AllowDelete:   pol.AllowDelete,
		ModTimeWindow: pol.ModTimeWindow,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return plan, srcInv, dstInv, nil
}

// Run executes the whole session: Scanning, Planning, Applying and one
// of the terminal states. It returns the final report; the error is
// non-nil only for session-level failures (unreadable root, classify
// inconsistency), never for per-action failures or cancellation.
func (s *Session) Run(ctx context.Context) (*Report, error) {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return nil, ErrNotIdle
	}
	s.state = StateScanning
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRun = cancel
	s.mu.Unlock()

	defer cancel()
	defer close(s.events)

	start := time.Now()
	report := &Report{
		SessionID: s.id,
		Source:    s.source,
		Target:    s.target,
		StartedAt: start,
	}

	// Scanning.
	s.emit(Event{Type: EventStateChanged, State: StateScanning})
	s.log.Debug("scanning %s and %s", s.source, s.target)

	srcInv, dstInv, err := scanBoth(runCtx, s.source, s.target, s.policy.IgnorePatterns)
	if s.cancelled(runCtx) {
		return s.finish(report, start, true, 0)
	}
	if err != nil {
		s.setState(StateFailed)
		return nil, err
	}
	for _, issue := range srcInv.Issues {
		report.Failed = append(report.Failed, Failure{Path: issue.Path, Op: "scan source", Err: issue.Err})
	}
	for _, issue := range dstInv.Issues {
		report.Failed = append(report.Failed, Failure{Path: issue.Path, Op: "scan target", Err: issue.Err})
	}

	// Planning.
	s.setState(StatePlanning)
	plan, err := planner.Classify(srcInv, dstInv, planner.Options{
		AllowDelete:   s.policy.AllowDelete,
		ModTimeWindow: s.policy.ModTimeWindow,
	})
	if err != nil {
		s.setState(StateFailed)
		return nil, err
	}

	s.mu.Lock()
	s.plan = plan
	s.actions = make([]actionState, len(plan.Actions))
	for i := range s.actions {
		s.actions[i].status = StatusPending
	}
	s.mu.Unlock()

	s.log.Info("plan: %d creates, %d replaces, %d deletes, %d unchanged",
		plan.Creates, plan.Replaces, plan.Deletes, plan.Keeps)

	if !plan.Actionable() {
		s.tallyKeeps(plan)
		return s.finish(report, start, false, 0)
	}

	// Applying.
	s.setState(StateApplying)
	exec := executor.New(srcInv.Root, dstInv.Root, executor.Options{
		ChunkThreshold: s.policy.ChunkThreshold,
		ChunkSize:      s.policy.ChunkSize,
		Limiter:        s.limiter(),
	})

	deletesRan := s.apply(runCtx, exec, plan)

	pruned := 0
	if s.policy.PruneEmptyDirs && s.policy.AllowDelete && deletesRan > 0 && !s.cancelled(runCtx) {
		// Only target-side directories are candidates; directories the
		// source still has were just created or kept on purpose.
		var candidates []string
		for _, dir := range dstInv.Dirs() {
			if _, inSource := srcInv.Entries[dir]; !inSource {
				candidates = append(candidates, dir)
			}
		}
		pruned, _ = exec.Prune(runCtx, candidates)
		if pruned > 0 {
			s.log.Info("pruned %d empty directories", pruned)
		}
	}

	return s.finish(report, start, s.cancelled(runCtx), pruned)
}

// apply walks the plan in order. Directory creates and deletions run
// inline so plan ordering (parent before child, child before parent)
// holds; file transfers go to the bounded pool. A dispatched transfer
// never races a sequential action on a path beneath it because the
// sequential action completed before the transfer was dispatched.
// Returns the number of successful deletions.
func (s *Session) apply(ctx context.Context, exec *executor.Executor, plan *planner.Plan) int {
	sem := make(chan struct{}, s.policy.concurrency())
	var wg sync.WaitGroup
	var deletesRan atomic.Int64

	for idx, act := range plan.Actions {
		if s.cancelled(ctx) {
			break
		}

		switch {
		case act.Kind == planner.ActionKeep:
			s.startAction(idx, act)
			s.finishAction(idx, act, nil)

		case act.Transfers():
			wg.Add(1)
			sem <- struct{}{}
			go func(idx int, act planner.Action) {
				defer wg.Done()
				defer func() { <-sem }()

				if s.cancelled(ctx) {
					return
				}
				s.startAction(idx, act)
				err := exec.Apply(ctx, act, func(done, total int64) {
					s.progressAction(idx, act, done, total)
				})
				s.finishAction(idx, act, err)
			}(idx, act)

		default:
			s.startAction(idx, act)
			err := exec.Apply(ctx, act, nil)
			s.finishAction(idx, act, err)
			if act.Kind == planner.ActionDelete && err == nil {
				deletesRan.Add(1)
			}
		}
	}

	wg.Wait()
	return int(deletesRan.Load())
}

func (s *Session) finish(report *Report, start time.Time, cancelled bool, pruned int) (*Report, error) {
	s.mu.Lock()
	if s.plan != nil {
		for i, act := range s.plan.Actions {
			st := s.actions[i]
			switch st.status {
			case StatusDone:
				switch act.Kind {
				case planner.ActionCreate:
					report.Created++
				case planner.ActionReplace:
					report.Replaced++
				case planner.ActionDelete:
					report.Deleted++
				case planner.ActionKeep:
					report.Kept++
				}
			case StatusFailed:
				report.Failed = append(report.Failed, Failure{Path: act.Path, Op: string(act.Kind), Err: st.err})
			}
		}
	}
	s.mu.Unlock()

	report.Pruned = pruned
	report.BytesCopied = s.bytesCopied.Load()
	report.Cancelled = cancelled
	report.Duration = time.Since(start)

	if cancelled {
		s.setState(StateCancelled)
	} else {
		s.setState(StateCompleted)
	}
	return report, nil
}

// tallyKeeps marks every keep action done for an otherwise empty plan.
func (s *Session) tallyKeeps(plan *planner.Plan) {
	for idx, act := range plan.Actions {
		if act.Kind == planner.ActionKeep {
			s.startAction(idx, act)
			s.finishAction(idx, act, nil)
		}
	}
}

func (s *Session) limiter() *rate.Limiter {
	if s.policy.BandwidthLimit <= 0 {
		return nil
	}
	burst := int64(executor.DefaultChunkSize)
	if s.policy.ChunkSize > 0 {
		burst = s.policy.ChunkSize
	}
	return rate.NewLimiter(rate.Limit(s.policy.BandwidthLimit), int(burst))
}

func (s *Session) cancelled(ctx context.Context) bool {
	return ctx.Err() != nil || s.cancelRequest.Load()
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	s.emit(Event{Type: EventStateChanged, State: state})
}

func (s *Session) startAction(idx int, act planner.Action) {
	s.mu.Lock()
	s.actions[idx].status = StatusInProgress
	s.mu.Unlock()
	s.emit(Event{Type: EventActionStarted, Index: idx, Action: act, BytesTotal: act.Size})
}

func (s *Session) progressAction(idx int, act planner.Action, done, total int64) {
	s.mu.Lock()
	s.actions[idx].bytesDone = done
	s.mu.Unlock()
	s.emit(Event{Type: EventActionProgress, Index: idx, Action: act, BytesDone: done, BytesTotal: total})
}

func (s *Session) finishAction(idx int, act planner.Action, err error) {
	switch {
	case err == nil:
		s.mu.Lock()
		s.actions[idx].status = StatusDone
		s.actions[idx].bytesDone = act.Size
		s.mu.Unlock()
		if act.Transfers() {
			s.bytesCopied.Add(act.Size)
		}
		s.emit(Event{Type: EventActionDone, Index: idx, Action: act, BytesDone: act.Size, BytesTotal: act.Size})

	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		// Rolled back by the executor; stays pending so the final
		// report does not count it either way.
		s.mu.Lock()
		s.actions[idx].status = StatusPending
		s.actions[idx].bytesDone = 0
		s.mu.Unlock()

	default:
		s.mu.Lock()
		s.actions[idx].status = StatusFailed
		s.actions[idx].err = err
		s.mu.Unlock()
		s.log.Error("%s %s: %v", act.Kind, act.Path, err)
		s.emit(Event{Type: EventActionFailed, Index: idx, Action: act, Err: err})
	}
}

func (s *Session) emit(ev Event) {
	if !s.consuming.Load() {
		return
	}
	s.events <- ev
}

func scanBoth(ctx context.Context, source, target string, ignores []string) (*scanner.Inventory, *scanner.Inventory, error) {
	sc := scanner.New(ignores)

	var (
		srcInv, dstInv *scanner.Inventory
		srcErr, dstErr error
		wg             sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		srcInv, srcErr = sc.Scan(ctx, source)
	}()
	go func() {
		defer wg.Done()
		dstInv, dstErr = sc.Scan(ctx, target)
	}()
	wg.Wait()

	if srcErr != nil {
		return nil, nil, srcErr
	}
	if dstErr != nil {
		return nil, nil, dstErr
	}
	return srcInv, dstInv, nil
}
