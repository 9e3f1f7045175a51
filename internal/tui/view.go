package tui

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/ranortv/internal/catalog"
	"github.com/mattjoyce/ranortv/internal/events"
	"github.com/mattjoyce/ranortv/internal/nav"
)

const (
	tileWidth     = 22
	visibleEvents = 5
)

var tabTitles = map[nav.Tab]string{
	nav.TabFeatured:  "Featured",
	nav.TabInstalled: "Installed",
	nav.TabStore:     "Store",
}

func (m Model) View() string {
	if m.width == 0 {
		return "Starting RanorTV..."
	}

	parts := []string{
		m.renderHeader(),
		m.renderTiles(),
		m.renderDetail(),
	}
	if m.status != "" {
		style := m.theme.StatusOK
		if m.failed {
			style = m.theme.StatusFailed
		}
		parts = append(parts, style.Render(" "+m.status))
	}
	parts = append(parts, m.renderEvents(), m.help.View(m.keys))

	return lipgloss.NewStyle().Margin(1, 2).Render(
		lipgloss.JoinVertical(lipgloss.Left, parts...),
	)
}

func (m Model) renderHeader() string {
	tabs := make([]string, 0, len(nav.Tabs))
	for _, t := range nav.Tabs {
		label := fmt.Sprintf("%s (%d)", tabTitles[t], len(m.snap.View(t)))
		if t == m.snap.Nav.Tab {
			tabs = append(tabs, m.theme.ActiveTab.Render(label))
		} else {
			tabs = append(tabs, m.theme.Tab.Render(label))
		}
	}

	title := m.theme.Title.Render("RANORTV")
	activity := m.activity.Render(m.theme)
	clock := m.theme.Dim.Render(m.now().Format("15:04"))

	left := lipgloss.JoinHorizontal(lipgloss.Center, title, " ", strings.Join(tabs, " "))
	right := activity + " " + clock
	pad := max(1, m.innerWidth()-lipgloss.Width(left)-lipgloss.Width(right))

	return m.theme.Border.Width(m.innerWidth()).Render(left + strings.Repeat(" ", pad) + right)
}

func (m Model) renderTiles() string {
	apps := m.snap.View(m.snap.Nav.Tab)
	if len(apps) == 0 {
		msg := "Nothing here yet."
		if m.snap.Nav.Tab == nav.TabStore {
			msg = "The store is empty. Press r to refresh."
		}
		return m.theme.Dim.Render("  " + msg)
	}

	perRow := max(1, m.innerWidth()/(tileWidth+2))
	focus := m.snap.Nav.Current()

	var rows []string
	for start := 0; start < len(apps); start += perRow {
		end := min(start+perRow, len(apps))
		tiles := make([]string, 0, end-start)
		for i := start; i < end; i++ {
			tiles = append(tiles, m.renderTile(apps[i], i == focus))
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, tiles...))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func (m Model) renderTile(app catalog.App, focused bool) string {
	style := m.theme.Tile
	name := app.Name
	if focused {
		style = m.theme.Focused
		name = m.theme.Highlight.Render(name)
	}
	meta := app.Category
	if app.Version != "" {
		meta = strings.TrimSpace(meta + " v" + app.Version)
	}
	return style.Width(tileWidth).Render(
		lipgloss.JoinVertical(lipgloss.Left, name, m.theme.Dim.Render(truncate(meta, tileWidth-2))),
	)
}

func (m Model) renderDetail() string {
	apps := m.snap.View(m.snap.Nav.Tab)
	focus := m.snap.Nav.Current()
	if focus < 0 || focus >= len(apps) {
		return ""
	}
	app := apps[focus]

	target := app.Target.String()
	if !app.Installed {
		target = "not installed"
	}
	lines := []string{
		m.theme.Title.Render(app.Name) + m.theme.Dim.Render(" "+app.ID),
		" " + app.Description,
		m.theme.Dim.Render(" " + target),
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m Model) renderEvents() string {
	if len(m.eventLog) == 0 {
		return ""
	}
	var lines []string
	for i, e := range m.eventLog {
		if i >= visibleEvents {
			break
		}
		lines = append(lines, m.formatEvent(e))
	}
	return lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n"))
}

func (m Model) formatEvent(e events.Event) string {
	ts := m.theme.Dim.Render(e.At.Format("15:04:05"))

	typeStyle := m.theme.Dim
	switch e.Type {
	case events.LaunchSpawned, events.BuiltinOpened:
		typeStyle = m.theme.StatusOK
	case events.LaunchFailed:
		typeStyle = m.theme.StatusFailed
	case events.CatalogRefreshed:
		typeStyle = m.theme.Highlight
	}
	return fmt.Sprintf("%s %s %s", ts, typeStyle.Render(fmt.Sprintf("%-18s", e.Type)), eventDesc(e))
}

func eventDesc(e events.Event) string {
	data := make(map[string]any)
	_ = json.Unmarshal(e.Data, &data)

	var parts []string
	for _, k := range []string{"app_id", "event", "source", "reason"} {
		if v, ok := data[k].(string); ok && v != "" {
			parts = append(parts, v)
		}
	}
	if applied, ok := data["applied"].(float64); ok {
		parts = append(parts, fmt.Sprintf("%d applied", int(applied)))
	}
	if len(parts) == 0 {
		return truncate(string(e.Data), 60)
	}
	return strings.Join(parts, " ")
}

func (m Model) innerWidth() int {
	return max(tileWidth, m.width-4)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
