// Package executor performs the physical filesystem operations for
// planned sync actions: chunked file copies with progress reporting and
// cooperative cancellation, directory creation and safe deletion.
package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"syscall"

	"golang.org/x/time/rate"

	"github.com/eapp-tools/dirsync/pkg/planner"
)

const (
	// DefaultChunkThreshold is the size at or above which files are
	// copied chunk by chunk so that cancellation and progress work
	// mid-transfer.
	DefaultChunkThreshold = 128 << 20

	// DefaultChunkSize bounds the copy buffer.
	DefaultChunkSize = 8 << 20
)

// TransferError reports a failed filesystem operation for one action.
type TransferError struct {
	Path string
	Op   string
	Err  error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// Progress receives monotonically increasing byte counts during one
// transfer. Callbacks happen on the goroutine running the transfer.
type Progress func(done, total int64)

// Options configures an Executor.
type Options struct {
	ChunkThreshold int64         // 0 means DefaultChunkThreshold
	ChunkSize      int64         // 0 means DefaultChunkSize
	Limiter        *rate.Limiter // optional bandwidth limit, applied per chunk
}

// Executor applies actions against a source and target root.
type Executor struct {
	srcRoot        string
	dstRoot        string
	chunkThreshold int64
	chunkSize      int64
	limiter        *rate.Limiter
}

// New creates an executor for the given roots.
func New(srcRoot, dstRoot string, opts Options) *Executor {
	e := &Executor{
		srcRoot:        srcRoot,
		dstRoot:        dstRoot,
		chunkThreshold: opts.ChunkThreshold,
		chunkSize:      opts.ChunkSize,
		limiter:        opts.Limiter,
	}
	if e.chunkThreshold <= 0 {
		e.chunkThreshold = DefaultChunkThreshold
	}
	if e.chunkSize <= 0 {
		e.chunkSize = DefaultChunkSize
	}
	return e
}

// Apply executes one action. Keep actions are no-ops. A cancelled
// context surfaces as the context's error so callers can tell
// cancellation apart from transfer failures; any partially written
// destination file is removed before returning.
func (e *Executor) Apply(ctx context.Context, act planner.Action, progress Progress) error {
	switch act.Kind {
	case planner.ActionCreate, planner.ActionReplace:
		if act.IsDir {
			return e.mkdir(act.Path)
		}
		return e.copyFile(ctx, act.Path, progress)
	case planner.ActionDelete:
		return e.remove(act)
	case planner.ActionKeep:
		return nil
	default:
		return &TransferError{Path: act.Path, Op: string(act.Kind), Err: errors.New("unknown action kind")}
	}
}

func (e *Executor) mkdir(rel string) error {
	dst := e.dstPath(rel)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return &TransferError{Path: rel, Op: "mkdir", Err: err}
	}
	return nil
}

func (e *Executor) copyFile(ctx context.Context, rel string, progress Progress) error {
	src := e.srcPath(rel)
	dst := e.dstPath(rel)

	in, err := os.Open(src)
	if err != nil {
		return &TransferError{Path: rel, Op: "open", Err: err}
	}
	defer in.Close()

	fi, err := in.Stat()
	if err != nil {
		return &TransferError{Path: rel, Op: "stat", Err: err}
	}
	total := fi.Size()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return &TransferError{Path: rel, Op: "mkdir", Err: err}
	}

	out, err := os.Create(dst)
	if err != nil {
		return &TransferError{Path: rel, Op: "create", Err: err}
	}

	// Throttled copies always go through the chunk loop so the limiter
	// is applied in bounded steps.
	if total >= e.chunkThreshold || e.limiter != nil {
		err = e.copyChunks(ctx, in, out, total, rel, progress)
	} else {
		err = e.copyWhole(in, out, total, rel, progress)
	}
	if err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}

	if err := out.Close(); err != nil {
		os.Remove(dst)
		return &TransferError{Path: rel, Op: "close", Err: err}
	}

	// The copy carries the source's permission bits and modification
	// time; without the mtime an immediate re-sync would replan the
	// same file as changed.
	if err := os.Chmod(dst, fi.Mode().Perm()); err != nil {
		return &TransferError{Path: rel, Op: "chmod", Err: err}
	}
	if err := os.Chtimes(dst, fi.ModTime(), fi.ModTime()); err != nil {
		return &TransferError{Path: rel, Op: "chtimes", Err: err}
	}

	return nil
}

func (e *Executor) copyWhole(in io.Reader, out io.Writer, total int64, rel string, progress Progress) error {
	if _, err := io.Copy(out, in); err != nil {
		return &TransferError{Path: rel, Op: "copy", Err: err}
	}
	if progress != nil {
		progress(total, total)
	}
	return nil
}

func (e *Executor) copyChunks(ctx context.Context, in io.Reader, out io.Writer, total int64, rel string, progress Progress) error {
	buf := make([]byte, e.chunkSize)
	var done int64

	for {
		// Cancellation is observed between chunks, never mid-write.
		if err := ctx.Err(); err != nil {
			return err
		}

		n, rerr := in.Read(buf)
		if n > 0 {
			if e.limiter != nil {
				if err := e.limiter.WaitN(ctx, n); err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					return &TransferError{Path: rel, Op: "throttle", Err: err}
				}
			}
			if _, werr := out.Write(buf[:n]); werr != nil {
				return &TransferError{Path: rel, Op: "write", Err: werr}
			}
			done += int64(n)
			if progress != nil {
				progress(done, total)
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return &TransferError{Path: rel, Op: "read", Err: rerr}
		}
	}
}

func (e *Executor) remove(act planner.Action) error {
	dst := e.dstPath(act.Path)

	err := os.Remove(dst)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, fs.ErrNotExist):
		// Already satisfied.
		return nil
	case act.IsDir && isNotEmpty(err):
		// A directory still holding entries (ignored files, failed
		// deletions) is left in place.
		return nil
	default:
		return &TransferError{Path: act.Path, Op: "remove", Err: err}
	}
}

// Prune removes now-empty directories bottom-up. dirs holds relative
// target directory paths in any order; non-empty and already-missing
// directories are skipped silently. Returns the number removed.
func (e *Executor) Prune(ctx context.Context, dirs []string) (int, error) {
	sorted := make([]string, len(dirs))
	copy(sorted, dirs)
	sort.Sort(sort.Reverse(sort.StringSlice(sorted)))

	pruned := 0
	for _, rel := range sorted {
		if err := ctx.Err(); err != nil {
			return pruned, err
		}
		if err := os.Remove(e.dstPath(rel)); err == nil {
			pruned++
		}
	}
	return pruned, nil
}

func (e *Executor) srcPath(rel string) string {
	return filepath.Join(e.srcRoot, filepath.FromSlash(rel))
}

func (e *Executor) dstPath(rel string) string {
	return filepath.Join(e.dstRoot, filepath.FromSlash(rel))
}

func isNotEmpty(err error) bool {
	return errors.Is(err, syscall.ENOTEMPTY) || errors.Is(err, syscall.EEXIST)
}
