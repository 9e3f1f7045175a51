package nav

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mattjoyce/ranortv/internal/catalog"
)

// Tab is one of the navigable sections. Tabs share their names with the
// catalog views they display.
type Tab = catalog.View

const (
	TabFeatured  = catalog.ViewFeatured
	TabInstalled = catalog.ViewInstalled
	TabStore     = catalog.ViewStore
)

// Tabs lists every tab in display order.
var Tabs = catalog.Views

// Kind is the closed set of input events.
type Kind int

const (
	Left Kind = iota + 1
	Right
	Up
	Down
	Select
	SwitchTab
	Focus
)

func (k Kind) String() string {
	switch k {
	case Left:
		return "left"
	case Right:
		return "right"
	case Up:
		return "up"
	case Down:
		return "down"
	case Select:
		return "select"
	case SwitchTab:
		return "tab"
	case Focus:
		return "focus"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Event is one input. Tab is used by SwitchTab and Focus; Index only by Focus.
type Event struct {
	Kind  Kind
	Tab   Tab
	Index int
}

func (e Event) String() string {
	switch e.Kind {
	case SwitchTab:
		return "tab:" + e.Tab.String()
	case Focus:
		return fmt.Sprintf("focus:%s:%d", e.Tab, e.Index)
	default:
		return e.Kind.String()
	}
}

// Convenience constructors.
func SwitchTo(tab Tab) Event           { return Event{Kind: SwitchTab, Tab: tab} }
func FocusAt(tab Tab, index int) Event { return Event{Kind: Focus, Tab: tab, Index: index} }

// ParseEvent decodes the textual form used by the API and CLI:
// "left", "right", "up", "down", "select" (or "enter"), "tab:<view>" and
// "focus:<view>:<index>".
func ParseEvent(s string) (Event, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	head, rest, _ := strings.Cut(s, ":")

	switch head {
	case "left":
		return Event{Kind: Left}, nil
	case "right":
		return Event{Kind: Right}, nil
	case "up":
		return Event{Kind: Up}, nil
	case "down":
		return Event{Kind: Down}, nil
	case "select", "enter":
		return Event{Kind: Select}, nil
	case "tab":
		tab, err := catalog.ParseView(rest)
		if err != nil {
			return Event{}, fmt.Errorf("parse event %q: %w", s, err)
		}
		return SwitchTo(tab), nil
	case "focus":
		view, idx, ok := strings.Cut(rest, ":")
		if !ok {
			return Event{}, fmt.Errorf("parse event %q: want focus:<tab>:<index>", s)
		}
		tab, err := catalog.ParseView(view)
		if err != nil {
			return Event{}, fmt.Errorf("parse event %q: %w", s, err)
		}
		n, err := strconv.Atoi(idx)
		if err != nil {
			return Event{}, fmt.Errorf("parse event %q: index: %w", s, err)
		}
		return FocusAt(tab, n), nil
	default:
		return Event{}, fmt.Errorf("unknown navigation event %q", s)
	}
}
