package tui

import (
	"fmt"
	"strings"

	"github.com/Iron-Ham/workchain/internal/tui/styles"
	"github.com/Iron-Ham/workchain/internal/work"
)

// Finished reports whether list is non-empty and every TaskRun is terminal.
func Finished(list []work.TaskRun) bool {
	if len(list) == 0 {
		return false
	}
	for _, tr := range list {
		if !tr.State.IsTerminal() {
			return false
		}
	}
	return true
}

// stateIcon returns a one-character marker for terminal and waiting states.
func stateIcon(s work.State) string {
	switch s {
	case work.StateSucceeded:
		return "✓"
	case work.StateFailed:
		return "✗"
	case work.StateCancelled:
		return "⊘"
	case work.StateEnqueued:
		return "•"
	default:
		return "·"
	}
}

// RenderTasks renders one line per TaskRun. running is drawn in place of the
// icon for RUNNING rows, so callers can pass a spinner frame.
func RenderTasks(list []work.TaskRun, running string) string {
	if len(list) == 0 {
		return styles.Muted.Render("no task runs")
	}

	var b strings.Builder
	for i, tr := range list {
		if i > 0 {
			b.WriteString("\n")
		}
		icon := stateIcon(tr.State)
		if tr.State == work.StateRunning && running != "" {
			icon = running
		}
		color := styles.StateColor(tr.State)
		fmt.Fprintf(&b, "%s %2d  %-10s %s",
			styles.Primary.Foreground(color).Render(icon),
			tr.Index,
			tr.TypeID,
			styles.State(tr.State))
		if tr.Attempts > 1 {
			b.WriteString(styles.Muted.Render(fmt.Sprintf(" attempts=%d", tr.Attempts)))
		}
		if tr.Error != "" && tr.State == work.StateFailed {
			b.WriteString(" " + styles.Error.Render(tr.Error))
		}
		if uri := tr.Output.String("image_uri"); uri != "" && tr.HasTag("OUTPUT") {
			b.WriteString(" " + styles.Secondary.Render(uri))
		}
	}
	return b.String()
}

// Summary renders counts per state, e.g. "2 succeeded, 1 running".
func Summary(list []work.TaskRun) string {
	order := []work.State{
		work.StateSucceeded, work.StateRunning, work.StateEnqueued,
		work.StateBlocked, work.StateFailed, work.StateCancelled,
	}
	counts := make(map[work.State]int)
	for _, tr := range list {
		counts[tr.State]++
	}

	var parts []string
	for _, s := range order {
		if n := counts[s]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, strings.ToLower(s.String())))
		}
	}
	if len(parts) == 0 {
		return "empty"
	}
	return strings.Join(parts, ", ")
}
