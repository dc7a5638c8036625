package tui

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eapp-tools/dirsync/pkg/planner"
	"github.com/eapp-tools/dirsync/pkg/syncer"
)

func newIdleModel() model {
	sess := syncer.New("/src", "/dst", syncer.DefaultPolicy(), nil)
	return newModel(sess, sess.Events())
}

func TestConsumeProgressAccounting(t *testing.T) {
	m := newIdleModel()
	act := planner.Action{Kind: planner.ActionCreate, Path: "big", Size: 100}

	m.consume(syncer.Event{Type: syncer.EventActionStarted, Index: 0, Action: act})
	assert.Equal(t, "big", m.current[0])

	m.consume(syncer.Event{Type: syncer.EventActionProgress, Index: 0, Action: act, BytesDone: 40, BytesTotal: 100})
	m.consume(syncer.Event{Type: syncer.EventActionProgress, Index: 0, Action: act, BytesDone: 70, BytesTotal: 100})
	assert.Equal(t, int64(70), m.bytesDone)

	m.consume(syncer.Event{Type: syncer.EventActionDone, Index: 0, Action: act, BytesDone: 100})
	assert.Equal(t, int64(100), m.bytesDone)
	assert.Equal(t, 1, m.doneOps)
	assert.NotContains(t, m.current, 0)
}

func TestConsumeFailureCountsAsDone(t *testing.T) {
	m := newIdleModel()
	act := planner.Action{Kind: planner.ActionCreate, Path: "f", Size: 10}

	m.consume(syncer.Event{Type: syncer.EventActionStarted, Index: 0, Action: act})
	m.consume(syncer.Event{Type: syncer.EventActionFailed, Index: 0, Action: act})

	assert.Equal(t, 1, m.failed)
	assert.Equal(t, 1, m.doneOps)
	assert.Empty(t, m.current)
}

func TestViewByState(t *testing.T) {
	m := newIdleModel()
	assert.Empty(t, m.View())

	m.consume(syncer.Event{Type: syncer.EventStateChanged, State: syncer.StateScanning})
	assert.Contains(t, m.View(), "Scanning")

	m.consume(syncer.Event{Type: syncer.EventStateChanged, State: syncer.StateApplying})
	m.consume(syncer.Event{Type: syncer.EventActionStarted, Index: 0,
		Action: planner.Action{Kind: planner.ActionCreate, Path: "dir/f.txt", Size: 5}})

	view := m.View()
	assert.Contains(t, view, "Applying")
	assert.Contains(t, view, "dir/f.txt")
}

func TestUpdateKeyCancels(t *testing.T) {
	m := newIdleModel()

	m.consume(syncer.Event{Type: syncer.EventStateChanged, State: syncer.StateApplying})

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	got, ok := updated.(model)
	require.True(t, ok)

	assert.True(t, got.cancelling)
	assert.Contains(t, got.View(), "Cancelling")
}

func TestSortedValues(t *testing.T) {
	vals := sortedValues(map[int]string{3: "c", 1: "a", 2: "b"})
	assert.Equal(t, []string{"a", "b", "c"}, vals)
}
