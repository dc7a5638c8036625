package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitTriggersOnWrite(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub"), 0o755))

	w, err := New(root, []string{"sub"}, 50*time.Millisecond)
	require.NoError(t, err)
	defer w.Close()

	errCh := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		errCh <- w.Wait(ctx)
	}()

	// Give the wait loop a moment to start, then touch a watched dir.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "new.txt"), []byte("x"), 0o644))

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not trigger")
	}
}

func TestWaitDebouncesBursts(t *testing.T) {
	root := t.TempDir()

	w, err := New(root, nil, 200*time.Millisecond)
	require.NoError(t, err)
	defer w.Close()

	errCh := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		errCh <- w.Wait(ctx)
	}()

	time.Sleep(100 * time.Millisecond)
	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(root, "f.txt"), []byte{byte(i)}, 0o644))
		time.Sleep(50 * time.Millisecond)
	}

	select {
	case err := <-errCh:
		require.NoError(t, err)
		// The trigger settles only after the burst stops.
		assert.GreaterOrEqual(t, time.Since(start), 300*time.Millisecond)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not trigger")
	}
}

func TestWaitCancelled(t *testing.T) {
	w, err := New(t.TempDir(), nil, 0)
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, w.Wait(ctx), context.Canceled)
}

func TestNewSkipsVanishedDirs(t *testing.T) {
	root := t.TempDir()

	w, err := New(root, []string{"gone"}, 0)
	require.NoError(t, err)
	w.Close()
}

func TestNewMissingRoot(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "absent"), nil, 0)
	assert.Error(t, err)
}
