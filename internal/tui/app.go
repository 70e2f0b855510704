package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Iron-Ham/workchain/internal/work"
)

// Run shows the model until the chain finishes, the user quits or ctx is
// done. It returns the last snapshot list seen.
func Run(ctx context.Context, m Model) ([]work.TaskRun, error) {
	program := tea.NewProgram(m, tea.WithContext(ctx))
	final, err := program.Run()
	if err != nil && ctx.Err() == nil {
		return nil, fmt.Errorf("status view: %w", err)
	}
	if fm, ok := final.(Model); ok {
		return fm.Tasks(), nil
	}
	return m.Tasks(), nil
}
