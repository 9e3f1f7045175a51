// Package tui is the kiosk's terminal front-end.
//
// The model never touches launcher state directly: every key press becomes a
// closure submitted to the kiosk loop, and the reply carries a fresh snapshot.
// Activity from other front-ends arrives through the event hub.
package tui

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/ranortv/internal/events"
	"github.com/mattjoyce/ranortv/internal/kiosk"
	"github.com/mattjoyce/ranortv/internal/nav"
)

const (
	maxEventLog  = 50
	tickInterval = time.Second
)

// --- Message types ---

type snapshotMsg struct {
	snap kiosk.Snapshot
	err  error
}

type refreshMsg struct {
	applied int
	snap    kiosk.Snapshot
	err     error
}

type eventMsg events.Event

type tickMsg time.Time

// loopClosedMsg reports that the kiosk loop stopped under the model.
type loopClosedMsg struct{}

// Model is the BubbleTea model for the kiosk screen.
type Model struct {
	ctx  context.Context
	loop *kiosk.Loop
	sub  <-chan events.Event

	width  int
	height int

	snap     kiosk.Snapshot
	eventLog []events.Event
	status   string
	failed   bool

	keys     KeyMap
	help     help.Model
	theme    Theme
	activity Activity
	now      func() time.Time
}

// New creates a kiosk model. sub may be nil when no hub is wired.
func New(ctx context.Context, loop *kiosk.Loop, sub <-chan events.Event) Model {
	return Model{
		ctx:   kiosk.WithSource(ctx, "tui"),
		loop:  loop,
		sub:   sub,
		keys:  DefaultKeyMap(),
		help:  help.New(),
		theme: NewDefaultTheme(),
		now:   time.Now,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.loadSnapshot(),
		waitForEvent(m.sub),
		tea.Tick(tickInterval, func(t time.Time) tea.Msg { return tickMsg(t) }),
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width

	case snapshotMsg:
		m.applySnapshot(msg.snap)
		if msg.err != nil {
			m.setError(msg.err)
		}

	case refreshMsg:
		m.applySnapshot(msg.snap)
		if msg.err != nil {
			m.setError(msg.err)
		} else {
			m.setStatus(fmt.Sprintf("Store refreshed (%d apps)", msg.applied))
		}

	case eventMsg:
		e := events.Event(msg)
		m.eventLog = append([]events.Event{e}, m.eventLog...)
		if len(m.eventLog) > maxEventLog {
			m.eventLog = m.eventLog[:maxEventLog]
		}
		m.activity.OnEvent(m.now())
		m.applyEvent(e)
		// Other front-ends may have moved the cursor or changed the catalog.
		return m, tea.Batch(waitForEvent(m.sub), m.loadSnapshot())

	case tickMsg:
		m.activity.Decay(m.now())
		return m, tea.Tick(tickInterval, func(t time.Time) tea.Msg { return tickMsg(t) })

	case loopClosedMsg:
		return m, tea.Quit
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	case key.Matches(msg, m.keys.Refresh):
		return m, m.refreshStore()
	}

	ev, ok := m.eventFor(msg)
	if !ok {
		return m, nil
	}
	if ev.Kind == nav.Select {
		m.status = ""
		m.failed = false
	}
	return m, m.navigate(ev)
}

// eventFor maps a key to a navigation event.
func (m Model) eventFor(msg tea.KeyMsg) (nav.Event, bool) {
	switch {
	case key.Matches(msg, m.keys.Left):
		return nav.Event{Kind: nav.Left}, true
	case key.Matches(msg, m.keys.Right):
		return nav.Event{Kind: nav.Right}, true
	case key.Matches(msg, m.keys.Up):
		return nav.Event{Kind: nav.Up}, true
	case key.Matches(msg, m.keys.Down):
		return nav.Event{Kind: nav.Down}, true
	case key.Matches(msg, m.keys.Select):
		return nav.Event{Kind: nav.Select}, true
	case key.Matches(msg, m.keys.NextTab):
		return nav.SwitchTo(cycleTab(m.snap.Nav.Tab, 1)), true
	case key.Matches(msg, m.keys.PrevTab):
		return nav.SwitchTo(cycleTab(m.snap.Nav.Tab, -1)), true
	case key.Matches(msg, m.keys.Featured):
		return nav.SwitchTo(nav.TabFeatured), true
	case key.Matches(msg, m.keys.Installed):
		return nav.SwitchTo(nav.TabInstalled), true
	case key.Matches(msg, m.keys.Store):
		return nav.SwitchTo(nav.TabStore), true
	}
	return nav.Event{}, false
}

func cycleTab(current nav.Tab, step int) nav.Tab {
	idx := 0
	for i, t := range nav.Tabs {
		if t == current {
			idx = i
			break
		}
	}
	n := len(nav.Tabs)
	return nav.Tabs[((idx+step)%n+n)%n]
}

// applySnapshot keeps the newest snapshot. Replies to concurrent commands can
// arrive out of order.
func (m *Model) applySnapshot(snap kiosk.Snapshot) {
	if snap.Rev < m.snap.Rev {
		return
	}
	m.snap = snap
}

// applyEvent turns launch activity into the status line.
func (m *Model) applyEvent(e events.Event) {
	var data map[string]any
	_ = json.Unmarshal(e.Data, &data)
	str := func(k string) string {
		v, _ := data[k].(string)
		return v
	}

	switch e.Type {
	case events.BuiltinOpened:
		m.setStatus(fmt.Sprintf("Opened %s", str("name")))
	case events.LaunchSpawned:
		pid := 0
		if h, ok := data["handle"].(map[string]any); ok {
			if p, ok := h["pid"].(float64); ok {
				pid = int(p)
			}
		}
		m.setStatus(fmt.Sprintf("Launched %s (pid %d)", str("app_id"), pid))
	case events.LaunchFailed:
		m.status = fmt.Sprintf("Launch of %s failed: %s", str("app_id"), str("reason"))
		m.failed = true
	}
}

func (m *Model) setStatus(s string) {
	m.status = s
	m.failed = false
}

func (m *Model) setError(err error) {
	m.status = err.Error()
	m.failed = true
}

// --- Commands ---

func (m Model) loadSnapshot() tea.Cmd {
	ctx, loop := m.ctx, m.loop
	return func() tea.Msg {
		snap, err := kiosk.Query(ctx, loop, func(s *kiosk.Session) (kiosk.Snapshot, error) {
			return s.Snapshot(), nil
		})
		if err != nil {
			return loopClosedMsg{}
		}
		return snapshotMsg{snap: snap}
	}
}

func (m Model) navigate(ev nav.Event) tea.Cmd {
	ctx, loop := m.ctx, m.loop
	return func() tea.Msg {
		var navErr error
		snap, err := kiosk.Query(ctx, loop, func(s *kiosk.Session) (kiosk.Snapshot, error) {
			_, navErr = s.Navigate(ctx, ev)
			return s.Snapshot(), nil
		})
		if err != nil {
			return loopClosedMsg{}
		}
		return snapshotMsg{snap: snap, err: navErr}
	}
}

func (m Model) refreshStore() tea.Cmd {
	ctx, loop := m.ctx, m.loop
	return func() tea.Msg {
		var (
			applied    int
			refreshErr error
		)
		snap, err := kiosk.Query(ctx, loop, func(s *kiosk.Session) (kiosk.Snapshot, error) {
			applied, refreshErr = s.RefreshStore(ctx)
			return s.Snapshot(), nil
		})
		if err != nil {
			return loopClosedMsg{}
		}
		return refreshMsg{applied: applied, snap: snap, err: refreshErr}
	}
}

// waitForEvent blocks on the hub subscription. A nil channel never delivers.
func waitForEvent(sub <-chan events.Event) tea.Cmd {
	if sub == nil {
		return nil
	}
	return func() tea.Msg {
		e, ok := <-sub
		if !ok {
			return nil
		}
		return eventMsg(e)
	}
}
