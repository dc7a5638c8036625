// Package tui renders live sync progress for interactive terminals. It
// consumes the session's event stream; it never mutates session state
// beyond requesting cancellation.
package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/eapp-tools/dirsync/pkg/planner"
	"github.com/eapp-tools/dirsync/pkg/syncer"
)

var (
	stateStyle = lipgloss.NewStyle().Bold(true)
	pathStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	dimStyle   = lipgloss.NewStyle().Faint(true)
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

type eventMsg syncer.Event

type streamClosedMsg struct{}

type model struct {
	session *syncer.Session
	events  <-chan syncer.Event

	bar   progress.Model
	width int

	state      syncer.State
	current    map[int]string // in-flight transfer paths by plan index
	perAction  map[int]int64
	bytesDone  int64
	bytesTotal int64
	doneOps    int
	totalOps   int
	failed     int
	cancelling bool
}

func newModel(sess *syncer.Session, events <-chan syncer.Event) model {
	return model{
		session:   sess,
		events:    events,
		bar:       progress.New(progress.WithDefaultGradient()),
		state:     syncer.StateIdle,
		current:   make(map[int]string),
		perAction: make(map[int]int64),
	}
}

// Run displays progress until the session's event stream closes. The
// events channel must be the one obtained from sess.Events() before the
// session started.
func Run(sess *syncer.Session, events <-chan syncer.Event) error {
	p := tea.NewProgram(newModel(sess, events))
	_, err := p.Run()
	return err
}

func (m model) Init() tea.Cmd {
	return waitEvent(m.events)
}

func waitEvent(ch <-chan syncer.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return streamClosedMsg{}
		}
		return eventMsg(ev)
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			// Cancel and keep draining so the final report settles.
			m.cancelling = true
			m.session.Cancel()
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = msg.Width - 10
		if m.bar.Width > 72 {
			m.bar.Width = 72
		}
		return m, nil

	case eventMsg:
		m.consume(syncer.Event(msg))
		return m, waitEvent(m.events)

	case streamClosedMsg:
		return m, tea.Quit
	}

	return m, nil
}

func (m *model) consume(ev syncer.Event) {
	switch ev.Type {
	case syncer.EventStateChanged:
		m.state = ev.State
		if ev.State == syncer.StateApplying {
			// The plan is final once applying starts; size the
			// aggregate bar from a snapshot.
			for _, rec := range m.session.Snapshot() {
				if rec.Action.Transfers() {
					m.bytesTotal += rec.Action.Size
				}
				if rec.Action.Kind != planner.ActionKeep {
					m.totalOps++
				}
			}
		}

	case syncer.EventActionStarted:
		if ev.Action.Transfers() {
			m.current[ev.Index] = ev.Action.Path
		}

	case syncer.EventActionProgress:
		m.addBytes(ev.Index, ev.BytesDone)

	case syncer.EventActionDone:
		if ev.Action.Transfers() {
			m.addBytes(ev.Index, ev.Action.Size)
		}
		delete(m.current, ev.Index)
		if ev.Action.Kind != planner.ActionKeep {
			m.doneOps++
		}

	case syncer.EventActionFailed:
		delete(m.current, ev.Index)
		m.failed++
		m.doneOps++
	}
}

func (m *model) addBytes(idx int, done int64) {
	m.bytesDone += done - m.perAction[idx]
	m.perAction[idx] = done
}

func (m model) View() string {
	var b strings.Builder

	switch m.state {
	case syncer.StateScanning:
		b.WriteString(stateStyle.Render("Scanning") + dimStyle.Render(" source and target trees…") + "\n")
	case syncer.StatePlanning:
		b.WriteString(stateStyle.Render("Planning") + "\n")
	case syncer.StateApplying:
		label := "Applying"
		if m.cancelling {
			label = "Cancelling"
		}
		fmt.Fprintf(&b, "%s %s\n", stateStyle.Render(label),
			dimStyle.Render(fmt.Sprintf("%d/%d operations", m.doneOps, m.totalOps)))

		if m.bytesTotal > 0 {
			frac := float64(m.bytesDone) / float64(m.bytesTotal)
			b.WriteString(m.bar.ViewAs(frac) + "\n")
			fmt.Fprintf(&b, "%s\n", dimStyle.Render(fmt.Sprintf("%s / %s",
				humanize.IBytes(uint64(m.bytesDone)), humanize.IBytes(uint64(m.bytesTotal)))))
		}

		for _, path := range sortedValues(m.current) {
			fmt.Fprintf(&b, "  %s %s\n", dimStyle.Render("→"), pathStyle.Render(path))
		}
		if m.failed > 0 {
			b.WriteString(failStyle.Render(fmt.Sprintf("%d failed", m.failed)) + "\n")
		}
	default:
		return ""
	}

	return b.String()
}

func sortedValues(m map[int]string) []string {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	vals := make([]string, len(keys))
	for i, k := range keys {
		vals[i] = m[k]
	}
	return vals
}
