package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/kimhsiao/taskin/backend/internal/models"
)

const (
	accentColor = "#7D56F4"
	mutedColor  = "#888888"
	okColor     = "#04B575"
	warnColor   = "#FFB86C"
	errColor    = "#FF5F87"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color(accentColor)).
			Padding(0, 1)
	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(mutedColor)).
			Width(16)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color(okColor))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color(warnColor))
	errorStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(errColor))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(mutedColor))
)

func printTitle(w io.Writer, title string) {
	fmt.Fprintln(w, titleStyle.Render(title))
}

func printField(w io.Writer, label string, value interface{}) {
	fmt.Fprintf(w, "%s %v\n", labelStyle.Render(label), value)
}

func priorityStyle(p models.Priority) lipgloss.Style {
	switch p {
	case models.PriorityHigh:
		return errorStyle
	case models.PriorityMedium:
		return warnStyle
	default:
		return mutedStyle
	}
}

// taskLine renders one task as a checklist row.
func taskLine(t *models.Task) string {
	box := "[ ]"
	switch t.Status {
	case models.StatusDone:
		box = okStyle.Render("[x]")
	case models.StatusInProgress:
		box = warnStyle.Render("[~]")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s  %s  %s", box, t.DueDate, priorityStyle(t.Priority).Render(string(t.Priority)), t.Title)
	if t.IsRecurring {
		b.WriteString(mutedStyle.Render(" (" + string(t.RecurrencePattern) + ")"))
	}
	b.WriteString(mutedStyle.Render("  " + string(t.ID)))
	return b.String()
}
