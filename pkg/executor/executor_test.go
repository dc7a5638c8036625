package executor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/eapp-tools/dirsync/pkg/planner"
)

func newTestExecutor(t *testing.T, opts Options) (*Executor, string, string) {
	t.Helper()
	src := t.TempDir()
	dst := t.TempDir()
	return New(src, dst, opts), src, dst
}

func writeSrc(t *testing.T, root, rel string, content []byte) {
	t.Helper()
	abs := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, content, 0o644))
}

func TestApplyCreateFile(t *testing.T) {
	e, src, dst := newTestExecutor(t, Options{})
	writeSrc(t, src, "dir/f.txt", []byte("content"))

	mtime := time.Date(2025, 3, 1, 8, 30, 0, 0, time.UTC)
	srcFile := filepath.Join(src, "dir", "f.txt")
	require.NoError(t, os.Chmod(srcFile, 0o600))
	require.NoError(t, os.Chtimes(srcFile, mtime, mtime))

	err := e.Apply(context.Background(), planner.Action{Kind: planner.ActionCreate, Path: "dir/f.txt"}, nil)
	require.NoError(t, err)

	got, err := os.ReadFile(filepath.Join(dst, "dir", "f.txt"))
	require.NoError(t, err)
	assert.Equal(t, []byte("content"), got)

	fi, err := os.Stat(filepath.Join(dst, "dir", "f.txt"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), fi.Mode().Perm())
	assert.WithinDuration(t, mtime, fi.ModTime(), time.Second)
}

func TestApplyReplaceOverwrites(t *testing.T) {
	e, src, dst := newTestExecutor(t, Options{})
	writeSrc(t, src, "f", []byte("new"))
	require.NoError(t, os.WriteFile(filepath.Join(dst, "f"), []byte("old and longer"), 0o644))

	err := e.Apply(context.Background(), planner.Action{Kind: planner.ActionReplace, Path: "f"}, nil)
	require.NoError(t, err)

	got, err := os.ReadFile(filepath.Join(dst, "f"))
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), got)
}

func TestApplyWholeCopyProgress(t *testing.T) {
	e, src, _ := newTestExecutor(t, Options{ChunkThreshold: 1 << 20})
	writeSrc(t, src, "small", []byte("tiny"))

	var calls [][2]int64
	err := e.Apply(context.Background(), planner.Action{Kind: planner.ActionCreate, Path: "small"}, func(done, total int64) {
		calls = append(calls, [2]int64{done, total})
	})
	require.NoError(t, err)

	// A file below the threshold reports completion once.
	assert.Equal(t, [][2]int64{{4, 4}}, calls)
}

func TestApplyChunkedCopyProgress(t *testing.T) {
	e, src, dst := newTestExecutor(t, Options{ChunkThreshold: 8, ChunkSize: 4})
	content := []byte("0123456789")
	writeSrc(t, src, "big", content)

	var calls [][2]int64
	err := e.Apply(context.Background(), planner.Action{Kind: planner.ActionCreate, Path: "big"}, func(done, total int64) {
		calls = append(calls, [2]int64{done, total})
	})
	require.NoError(t, err)

	assert.Equal(t, [][2]int64{{4, 10}, {8, 10}, {10, 10}}, calls)

	got, err := os.ReadFile(filepath.Join(dst, "big"))
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestApplyChunkedCancelRemovesPartial(t *testing.T) {
	e, src, dst := newTestExecutor(t, Options{ChunkThreshold: 8, ChunkSize: 4})
	writeSrc(t, src, "big", []byte("0123456789abcdef"))

	ctx, cancel := context.WithCancel(context.Background())
	err := e.Apply(ctx, planner.Action{Kind: planner.ActionCreate, Path: "big"}, func(done, total int64) {
		if done >= 4 {
			cancel()
		}
	})
	assert.ErrorIs(t, err, context.Canceled)

	_, statErr := os.Stat(filepath.Join(dst, "big"))
	assert.True(t, os.IsNotExist(statErr), "partial destination must be removed")
}

func TestApplyCopyMissingSource(t *testing.T) {
	e, _, _ := newTestExecutor(t, Options{})

	err := e.Apply(context.Background(), planner.Action{Kind: planner.ActionCreate, Path: "ghost"}, nil)

	var terr *TransferError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "open", terr.Op)
	assert.Equal(t, "ghost", terr.Path)
}

func TestApplyBandwidthLimit(t *testing.T) {
	// 32 bytes at 64 B/s with a 16 byte burst needs roughly 250ms for
	// the second half.
	limiter := rate.NewLimiter(64, 16)
	e, src, _ := newTestExecutor(t, Options{ChunkThreshold: 1 << 20, ChunkSize: 16, Limiter: limiter})
	writeSrc(t, src, "f", make([]byte, 32))

	start := time.Now()
	err := e.Apply(context.Background(), planner.Action{Kind: planner.ActionCreate, Path: "f"}, nil)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
}

func TestApplyMkdir(t *testing.T) {
	e, _, dst := newTestExecutor(t, Options{})

	act := planner.Action{Kind: planner.ActionCreate, Path: "a/b/c", IsDir: true}
	require.NoError(t, e.Apply(context.Background(), act, nil))

	fi, err := os.Stat(filepath.Join(dst, "a", "b", "c"))
	require.NoError(t, err)
	assert.True(t, fi.IsDir())

	// Repeating is a no-op.
	require.NoError(t, e.Apply(context.Background(), act, nil))
}

func TestApplyDelete(t *testing.T) {
	e, _, dst := newTestExecutor(t, Options{})
	require.NoError(t, os.WriteFile(filepath.Join(dst, "gone"), []byte("x"), 0o644))

	act := planner.Action{Kind: planner.ActionDelete, Path: "gone"}
	require.NoError(t, e.Apply(context.Background(), act, nil))
	_, err := os.Stat(filepath.Join(dst, "gone"))
	assert.True(t, os.IsNotExist(err))

	// Deleting an already-missing path succeeds.
	require.NoError(t, e.Apply(context.Background(), act, nil))
}

func TestApplyDeleteNonEmptyDirTolerated(t *testing.T) {
	e, _, dst := newTestExecutor(t, Options{})
	require.NoError(t, os.MkdirAll(filepath.Join(dst, "d"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dst, "d", "leftover"), []byte("x"), 0o644))

	err := e.Apply(context.Background(), planner.Action{Kind: planner.ActionDelete, Path: "d", IsDir: true}, nil)
	require.NoError(t, err)

	fi, statErr := os.Stat(filepath.Join(dst, "d"))
	require.NoError(t, statErr)
	assert.True(t, fi.IsDir())
}

func TestApplyKeepIsNoop(t *testing.T) {
	e, _, _ := newTestExecutor(t, Options{})
	assert.NoError(t, e.Apply(context.Background(), planner.Action{Kind: planner.ActionKeep, Path: "f"}, nil))
}

func TestPrune(t *testing.T) {
	e, _, dst := newTestExecutor(t, Options{})
	require.NoError(t, os.MkdirAll(filepath.Join(dst, "a", "b", "c"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dst, "full"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dst, "full", "f"), []byte("x"), 0o644))

	// Unordered input; pruning must still remove children first.
	pruned, err := e.Prune(context.Background(), []string{"a", "full", "a/b/c", "missing", "a/b"})
	require.NoError(t, err)
	assert.Equal(t, 3, pruned)

	_, statErr := os.Stat(filepath.Join(dst, "a"))
	assert.True(t, os.IsNotExist(statErr))
	_, statErr = os.Stat(filepath.Join(dst, "full"))
	assert.NoError(t, statErr)
}
