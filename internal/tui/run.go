package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	orchestration "github.com/avosel/visage-core/core"
)

// Run starts the avatar session and blocks in the terminal client until the
// user quits. The session is torn down before returning.
func Run(ctx context.Context, orchestrator *orchestration.Orchestrator, cfg orchestration.SessionConfig) error {
	model := NewModel(orchestrator)

	if err := orchestrator.Start(ctx, cfg, model.StartOptions()...); err != nil {
		return err
	}

	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	_, runErr := program.Run()

	orchestrator.Shutdown(context.Background())
	return runErr
}
