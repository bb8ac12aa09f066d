// Package components provides reusable TUI components.
package components

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// CircuitRow is one remote domain's limiter and breaker state.
type CircuitRow struct {
	Domain   string
	Status   string // closed, open or half-open
	Failures int
	Tokens   float64
	Pending  int
	InFlight int
	RetryIn  time.Duration
}

// CircuitsComponent renders per-domain circuit and queue state.
type CircuitsComponent struct {
	rows []CircuitRow
}

// NewCircuitsComponent creates a new circuits component.
func NewCircuitsComponent() *CircuitsComponent {
	return &CircuitsComponent{rows: make([]CircuitRow, 0)}
}

// Update replaces the rows.
func (c *CircuitsComponent) Update(rows []CircuitRow) {
	c.rows = rows
}

// Open returns the number of open circuits.
func (c *CircuitsComponent) Open() int {
	n := 0
	for _, r := range c.rows {
		if r.Status == "open" {
			n++
		}
	}
	return n
}

// View renders the circuits component.
func (c *CircuitsComponent) View() string {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	closedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")).Bold(true)
	openStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)
	halfStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B")).Bold(true)

	result := headerStyle.Render("DOMAINS")
	result += "\n\n"

	if len(c.rows) == 0 {
		return result + dimStyle.Render("  No requests made yet...")
	}

	result += fmt.Sprintf("  %-22s  %-11s  %5s  %6s  %7s  %s\n",
		"Domain", "Circuit", "Fails", "Tokens", "Queue", "Retry")
	result += dimStyle.Render("  "+strings.Repeat("─", 66)) + "\n"

	for _, row := range c.rows {
		icon, style := "●", closedStyle
		switch row.Status {
		case "open":
			icon, style = "○", openStyle
		case "half-open":
			icon, style = "◐", halfStyle
		}

		retry := "-"
		if row.RetryIn > 0 {
			retry = row.RetryIn.Round(time.Second).String()
		}

		result += fmt.Sprintf("  %-22s  %s  %5d  %6.1f  %3d/%-3d  %s\n",
			truncate(row.Domain, 22),
			style.Render(fmt.Sprintf("%-11s", icon+" "+row.Status)),
			row.Failures,
			row.Tokens,
			row.Pending,
			row.InFlight,
			retry,
		)
	}

	return result
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
