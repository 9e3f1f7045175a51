// Package nav tracks the current tab and per-tab focus and turns Select into a
// launch request.
package nav

import (
	"context"
	"fmt"

	"github.com/mattjoyce/ranortv/internal/catalog"
)

// Source exposes view bounds and entries. *catalog.Catalog satisfies it.
type Source interface {
	ViewLen(v catalog.View) int
	ViewAt(v catalog.View, i int) (catalog.App, bool)
}

// Launcher receives the app ID resolved by Select.
type Launcher interface {
	Launch(ctx context.Context, appID string) error
}

// LauncherFunc adapts a function to Launcher.
type LauncherFunc func(ctx context.Context, appID string) error

func (f LauncherFunc) Launch(ctx context.Context, appID string) error { return f(ctx, appID) }

// State is a read-only copy of the machine.
type State struct {
	Tab   Tab         `json:"tab"`
	Focus map[Tab]int `json:"focus"`
}

// Current returns the focus index of the current tab.
func (s State) Current() int { return s.Focus[s.Tab] }

// Machine is the navigation state. The zero value starts on Featured with
// every focus at 0. It is not safe for concurrent use.
type Machine struct {
	tab   Tab
	focus [3]int
}

func New() *Machine { return &Machine{tab: TabFeatured} }

// Handle applies ev. Focus indices are clamped against src before the event
// runs so a view that shrank since the last event never yields a stale index.
// Only Select has a side effect, and only when the focused slot holds an app.
func (m *Machine) Handle(ctx context.Context, ev Event, src Source, l Launcher) error {
	m.Sync(src)

	switch ev.Kind {
	case Left:
		m.focus[m.tab] = max(0, m.focus[m.tab]-1)
	case Right:
		n := src.ViewLen(m.tab)
		if n > 0 {
			m.focus[m.tab] = min(n-1, m.focus[m.tab]+1)
		}
	case Up, Down:
		// Single-row layout: accepted, no movement.
	case SwitchTab:
		if !validTab(ev.Tab) {
			return fmt.Errorf("switch tab: unknown tab %v", ev.Tab)
		}
		m.tab = ev.Tab
	case Focus:
		if !validTab(ev.Tab) {
			return fmt.Errorf("focus: unknown tab %v", ev.Tab)
		}
		m.tab = ev.Tab
		m.focus[m.tab] = clamp(ev.Index, src.ViewLen(m.tab))
	case Select:
		app, ok := src.ViewAt(m.tab, m.focus[m.tab])
		if !ok {
			return nil
		}
		return l.Launch(ctx, app.ID)
	default:
		return fmt.Errorf("unhandled navigation event %v", ev.Kind)
	}
	return nil
}

// Sync clamps every tab's focus into the bounds of its view.
func (m *Machine) Sync(src Source) {
	for _, tab := range Tabs {
		m.focus[tab] = clamp(m.focus[tab], src.ViewLen(tab))
	}
}

// Tab returns the current tab.
func (m *Machine) Tab() Tab { return m.tab }

// FocusOf returns the focus index of tab.
func (m *Machine) FocusOf(tab Tab) int {
	if !validTab(tab) {
		return 0
	}
	return m.focus[tab]
}

// Focused returns the app under the cursor on the current tab.
func (m *Machine) Focused(src Source) (catalog.App, bool) {
	return src.ViewAt(m.tab, m.focus[m.tab])
}

// State returns a snapshot.
func (m *Machine) State() State {
	s := State{Tab: m.tab, Focus: make(map[Tab]int, len(Tabs))}
	for _, tab := range Tabs {
		s.Focus[tab] = m.focus[tab]
	}
	return s
}

func validTab(t Tab) bool { return t >= TabFeatured && t <= TabStore }

func clamp(i, n int) int {
	if n <= 0 || i < 0 {
		return 0
	}
	return min(i, n-1)
}
