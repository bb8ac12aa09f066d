package components

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/fd1az/satsend/internal/asset"
)

// BalanceRow is one watched address.
type BalanceRow struct {
	Address     string
	Confirmed   int64
	Unconfirmed int64
	UTXOs       int
	LastPoll    time.Time
	Failing     bool
	LastError   string
}

// BalancesComponent renders the watched addresses with scrolling.
type BalancesComponent struct {
	rows         []BalanceRow
	maxVisible   int
	scrollOffset int
}

// NewBalancesComponent creates a new balances component.
func NewBalancesComponent(maxVisible int) *BalancesComponent {
	return &BalancesComponent{
		rows:       make([]BalanceRow, 0),
		maxVisible: maxVisible,
	}
}

// Update replaces the rows, keeping the scroll position in range.
func (b *BalancesComponent) Update(rows []BalanceRow) {
	b.rows = rows
	b.clampScroll()
}

// ScrollUp moves the view up by one row.
func (b *BalancesComponent) ScrollUp() {
	if b.scrollOffset > 0 {
		b.scrollOffset--
	}
}

// ScrollDown moves the view down by one row.
func (b *BalancesComponent) ScrollDown() {
	b.scrollOffset++
	b.clampScroll()
}

func (b *BalancesComponent) clampScroll() {
	maxOffset := len(b.rows) - b.maxVisible
	if maxOffset < 0 {
		maxOffset = 0
	}
	if b.scrollOffset > maxOffset {
		b.scrollOffset = maxOffset
	}
}

// View renders the balances component.
func (b *BalancesComponent) View() string {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	okStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	pendingStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
	failStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))

	result := headerStyle.Render(fmt.Sprintf("WATCHED ADDRESSES (%d)", len(b.rows)))
	result += "\n\n"

	if len(b.rows) == 0 {
		return result + dimStyle.Render("  No addresses watched. Use -watch addr1,addr2")
	}

	end := b.scrollOffset + b.maxVisible
	if end > len(b.rows) {
		end = len(b.rows)
	}

	for _, row := range b.rows[b.scrollOffset:end] {
		status := okStyle.Render("●")
		if row.Failing {
			status = failStyle.Render("✗")
		}

		line := fmt.Sprintf("  %s %-20s  %18s", status, shortAddress(row.Address), asset.Amount(row.Confirmed).FormatSats())
		if row.Unconfirmed != 0 {
			line += pendingStyle.Render(fmt.Sprintf("  %+d unconfirmed", row.Unconfirmed))
		}
		if !row.LastPoll.IsZero() {
			line += dimStyle.Render(fmt.Sprintf("  %d utxo  %s", row.UTXOs, row.LastPoll.Format("15:04:05")))
		}
		result += line + "\n"

		if row.Failing && row.LastError != "" {
			result += failStyle.Render("      "+truncate(row.LastError, 60)) + "\n"
		}
	}

	if len(b.rows) > b.maxVisible {
		result += dimStyle.Render(fmt.Sprintf("  %d-%d of %d  ↑↓ scroll", b.scrollOffset+1, end, len(b.rows))) + "\n"
	}

	return result
}

// shortAddress keeps the first and last characters of long addresses.
func shortAddress(addr string) string {
	if len(addr) <= 20 {
		return addr
	}
	return addr[:9] + "…" + addr[len(addr)-8:]
}
