package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/fd1az/satsend/internal/asset"
)

// SendView is the pipeline draft as the dashboard shows it.
type SendView struct {
	Mode       string
	Stage      string
	Recipient  string
	AmountSats int64
	FeeSats    int64
	FeeRate    float64
	Inputs     int
	ChangeSats int64
	DustFolded bool
	TxID       string
	Simulated  bool
	ErrStage   string
	ErrMessage string
	ErrGroup   string // validation or network
}

var pipelineStages = []string{
	"draft",
	"validating_inputs",
	"selecting_coins",
	"awaiting_signature",
	"broadcasting",
	"confirmed",
}

// SendComponent renders the send pipeline progress.
type SendComponent struct {
	view SendView
}

// NewSendComponent creates a new send component.
func NewSendComponent() *SendComponent {
	return &SendComponent{view: SendView{Stage: "draft"}}
}

// Update replaces the draft view.
func (s *SendComponent) Update(v SendView) {
	s.view = v
}

// View renders the send component.
func (s *SendComponent) View() string {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	doneStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	currentStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF")).Bold(true)
	errorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)

	v := s.view

	title := "SEND PIPELINE"
	if v.Mode != "" {
		title += fmt.Sprintf(" [%s]", v.Mode)
	}
	result := headerStyle.Render(title)
	result += "\n\n"

	current := stageIndex(v.Stage)
	if v.Stage == "failed" {
		current = stageIndex(v.ErrStage)
	}

	parts := make([]string, 0, len(pipelineStages))
	for i, stage := range pipelineStages {
		label := strings.ReplaceAll(stage, "_", " ")
		switch {
		case v.Stage == "failed" && i == current:
			parts = append(parts, errorStyle.Render("✗ "+label))
		case i == current:
			parts = append(parts, currentStyle.Render("▶ "+label))
		case i < current:
			parts = append(parts, doneStyle.Render("✓ "+label))
		default:
			parts = append(parts, dimStyle.Render("· "+label))
		}
	}
	result += "  " + strings.Join(parts, dimStyle.Render(" → ")) + "\n\n"

	if v.Recipient != "" {
		result += fmt.Sprintf("  To:     %s\n", v.Recipient)
		result += fmt.Sprintf("  Amount: %s (%s)\n", asset.Amount(v.AmountSats).FormatSats(), asset.Amount(v.AmountSats))
	}
	if v.Inputs > 0 {
		fee := fmt.Sprintf("  Fee:    %s at %.1f sat/vB, %d input(s)", asset.Amount(v.FeeSats).FormatSats(), v.FeeRate, v.Inputs)
		if v.DustFolded {
			fee += dimStyle.Render(" (dust change added to fee)")
		}
		result += fee + "\n"
		result += fmt.Sprintf("  Change: %s\n", asset.Amount(v.ChangeSats).FormatSats())
	}

	if v.TxID != "" {
		txLine := "  Last tx: " + v.TxID
		if v.Simulated {
			txLine += " (simulated)"
		}
		result += doneStyle.Render(txLine) + "\n"
	}

	if v.Stage == "failed" {
		result += errorStyle.Render(fmt.Sprintf("  Failed in %s [%s]: %s", v.ErrStage, v.ErrGroup, v.ErrMessage)) + "\n"
	}

	if v.Recipient == "" && v.TxID == "" && v.Stage == "draft" {
		result += dimStyle.Render("  No transaction in progress") + "\n"
	}

	return result
}

func stageIndex(stage string) int {
	for i, s := range pipelineStages {
		if s == stage {
			return i
		}
	}
	return 0
}
