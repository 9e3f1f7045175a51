package tui

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/ranortv/internal/events"
	"github.com/mattjoyce/ranortv/internal/kiosk"
)

// Run drives the kiosk screen until the user quits or ctx ends.
func Run(ctx context.Context, loop *kiosk.Loop, hub *events.Hub) error {
	var sub <-chan events.Event
	if hub != nil {
		ch, cancel := hub.Subscribe()
		defer cancel()
		sub = ch
	}

	p := tea.NewProgram(New(ctx, loop, sub), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("run tui: %w", err)
	}
	return nil
}
