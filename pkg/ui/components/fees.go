package components

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/fd1az/satsend/internal/asset"
)

// TierRow is one fee tier. Values come pre-calculated from the fee service.
type TierRow struct {
	Name          string
	FeeRate       float64 // sat/vB
	EstimatedSats int64
	Blocks        int
}

// FeesComponent renders the fee tiers.
type FeesComponent struct {
	rows       []TierRow
	source     string
	defaulted  bool
	computedAt time.Time
}

// NewFeesComponent creates a new fees component.
func NewFeesComponent() *FeesComponent {
	return &FeesComponent{rows: make([]TierRow, 0, 3)}
}

// Update replaces the tiers and where they came from.
func (f *FeesComponent) Update(rows []TierRow, source string, defaulted bool, computedAt time.Time) {
	f.rows = rows
	f.source = source
	f.defaulted = defaulted
	f.computedAt = computedAt
}

// View renders the fees component.
func (f *FeesComponent) View() string {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	warnStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
	valueStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF")).Bold(true)

	result := headerStyle.Render("FEE TIERS")
	result += "\n\n"

	if len(f.rows) == 0 {
		return result + dimStyle.Render("  Waiting for fee estimates...")
	}

	result += fmt.Sprintf("  %-10s  %10s  %14s  %8s\n", "Tier", "Rate", "Est. fee", "Target")
	result += dimStyle.Render("  "+strings.Repeat("─", 48)) + "\n"

	for _, row := range f.rows {
		result += fmt.Sprintf("  %-10s  %s  %14s  %8s\n",
			row.Name,
			valueStyle.Render(fmt.Sprintf("%10s", fmt.Sprintf("%.1f sat/vB", row.FeeRate))),
			asset.Amount(row.EstimatedSats).FormatSats(),
			fmt.Sprintf("%d blk", row.Blocks),
		)
	}

	result += "\n"
	source := fmt.Sprintf("  Source: %s", f.source)
	if !f.computedAt.IsZero() {
		source += fmt.Sprintf(" (%s)", f.computedAt.Format("15:04:05"))
	}
	result += dimStyle.Render(source) + "\n"
	if f.defaulted {
		result += warnStyle.Render("  Estimates unavailable, using static defaults") + "\n"
	}

	return result
}
