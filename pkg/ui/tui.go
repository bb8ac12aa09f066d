// Package ui provides the Bubble Tea status dashboard.
package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	feesDomain "github.com/fd1az/satsend/business/fees/domain"
	monitorDomain "github.com/fd1az/satsend/business/monitor/domain"
	sendDomain "github.com/fd1az/satsend/business/send/domain"
	"github.com/fd1az/satsend/internal/asset"
	"github.com/fd1az/satsend/internal/resilient"
	"github.com/fd1az/satsend/pkg/ui/components"
)

// StartupStep represents a step in the startup process.
type StartupStep struct {
	Name   string
	Status string // "pending", "connecting", "done", "failed"
}

// Phase represents the current UI phase.
type Phase string

const (
	PhaseWelcome   Phase = "welcome"   // Initial welcome screen
	PhaseStartup   Phase = "startup"   // Loading modules
	PhaseDashboard Phase = "dashboard" // Main dashboard
)

// WelcomeDuration is how long the welcome screen shows before auto-advancing.
const WelcomeDuration = 2 * time.Second

// RefreshInterval is how often the dashboard pulls a new snapshot.
const RefreshInterval = 2 * time.Second

const fetchTimeout = 10 * time.Second

var startupOrder = []string{"config", "network", "fees", "send", "monitor"}

// ErrorEntry represents an error with timestamp.
type ErrorEntry struct {
	Message   string
	Timestamp time.Time
}

// Model is the main Bubble Tea model for the TUI.
type Model struct {
	source  Source
	keys    KeyMap
	help    help.Model
	spinner spinner.Model

	// Components
	circuits *components.CircuitsComponent
	fees     *components.FeesComponent
	balances *components.BalancesComponent
	send     *components.SendComponent

	// Phase state
	phase        Phase
	welcomeStart time.Time

	// State
	ready        bool
	quitting     bool
	width        int
	height       int
	network      string
	lastUpdate   time.Time
	lastFetch    time.Time
	fetching     bool
	errors       []ErrorEntry // Persistent error panel (last 3)
	activityFeed []string     // Recent activity messages

	// Startup state
	startupSteps map[string]*StartupStep
	startupTime  time.Time
}

// New creates a new TUI model that pulls its state from source.
func New(source Source) Model {
	now := time.Now()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(ColorWarning)

	return Model{
		source:       source,
		keys:         DefaultKeyMap(),
		help:         help.New(),
		spinner:      sp,
		circuits:     components.NewCircuitsComponent(),
		fees:         components.NewFeesComponent(),
		balances:     components.NewBalancesComponent(8),
		send:         components.NewSendComponent(),
		phase:        PhaseWelcome,
		welcomeStart: now,
		errors:       make([]ErrorEntry, 0, 3),
		activityFeed: make([]string, 0, 8),
		startupSteps: map[string]*StartupStep{
			"config":  {Name: "Loading configuration", Status: "pending"},
			"network": {Name: "Registering block explorers", Status: "pending"},
			"fees":    {Name: "Warming fee estimates", Status: "pending"},
			"send":    {Name: "Preparing send pipeline", Status: "pending"},
			"monitor": {Name: "Watching addresses", Status: "pending"},
		},
		startupTime: now,
	}
}

// Init initializes the TUI model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(tickCmd(), m.spinner.Tick)
}

// tickCmd returns a command that sends a tick every 100ms for smooth animations.
func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg{}
	})
}

func fetchCmd(src Source) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()
		return SnapshotMsg{Snapshot: src.Snapshot(ctx)}
	}
}

// refreshCmd forces an immediate poll of every watched address before
// pulling the snapshot.
func refreshCmd(src Source) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()
		src.Refresh(ctx)
		return SnapshotMsg{Snapshot: src.Snapshot(ctx)}
	}
}

func resetCmd(src Source) tea.Cmd {
	return func() tea.Msg {
		return CircuitsResetMsg{Domains: src.ResetCircuits()}
	}
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		// Always allow quit
		if key.Matches(msg, m.keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
		// During welcome phase, any other key skips to startup
		if m.phase == PhaseWelcome {
			m.startModules()
			return m, nil
		}
		switch {
		case key.Matches(msg, m.keys.Reset):
			if m.source != nil {
				return m, resetCmd(m.source)
			}
		case key.Matches(msg, m.keys.Refresh):
			if m.source != nil && !m.fetching {
				m.fetching = true
				m.lastFetch = time.Now()
				return m, refreshCmd(m.source)
			}
		case key.Matches(msg, m.keys.ClearErrors):
			m.errors = nil
		case key.Matches(msg, m.keys.Up):
			m.balances.ScrollUp()
		case key.Matches(msg, m.keys.Down):
			m.balances.ScrollDown()
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.ready = true

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case TickMsg:
		// Check if welcome timeout has elapsed
		if m.phase == PhaseWelcome && time.Since(m.welcomeStart) >= WelcomeDuration {
			m.startModules()
		}
		if m.phase == PhaseDashboard && time.Since(m.lastFetch) >= RefreshInterval {
			cmd := m.fetch()
			return m, tea.Batch(tickCmd(), cmd)
		}
		return m, tickCmd()

	case SnapshotMsg:
		m.fetching = false
		m.apply(msg.Snapshot)

	case StageMsg:
		ev := msg.Event
		m.addActivity(fmt.Sprintf("send: %s → %s", ev.From, ev.To))
		if ev.Result != nil {
			m.addActivity(fmt.Sprintf("broadcast %s", ev.Result.TxID))
		}
		if ev.Err != nil {
			m.addError(ev.Err.Error())
		}
		cmd := m.fetch()
		return m, cmd

	case BalanceMsg:
		s := msg.Snapshot
		if !s.LastIncreaseAt.IsZero() && s.LastIncreaseAt.Equal(s.LastPollAt) {
			m.addActivity(fmt.Sprintf("incoming funds on %s, balance %s",
				s.Address, asset.Amount(s.TotalSats()).FormatSats()))
		}
		if s.ConsecutiveFailures == 1 && s.LastError != nil {
			m.addError(fmt.Sprintf("%s: %v", s.Address, s.LastError))
		}

	case CircuitsResetMsg:
		if len(msg.Domains) == 0 {
			m.addActivity("no open circuits to reset")
			return m, nil
		}
		m.addActivity("circuit reset: " + strings.Join(msg.Domains, ", "))
		cmd := m.fetch()
		return m, cmd

	case ErrorMsg:
		m.addError(msg.Error.Error())

	case LogMsg:
		m.addActivity(fmt.Sprintf("%s: %s", msg.Level, msg.Message))

	case StartupMsg:
		if step, ok := m.startupSteps[msg.Step]; ok {
			step.Status = msg.Status
		}
		if msg.Status == "failed" && msg.Message != "" {
			m.addError(msg.Message)
		}
		if m.phase == PhaseStartup && m.startupComplete() {
			m.phase = PhaseDashboard
			cmd := m.fetch()
			return m, cmd
		}
	}

	return m, nil
}

// startModules leaves the welcome screen.
func (m *Model) startModules() {
	m.phase = PhaseStartup
	m.startupTime = time.Now()
	// Trigger callback directly (don't use Send() from within Update)
	if OnStartModules != nil {
		go OnStartModules()
	}
}

// fetch pulls a snapshot unless one is already on its way.
func (m *Model) fetch() tea.Cmd {
	if m.source == nil || m.fetching {
		return nil
	}
	m.fetching = true
	m.lastFetch = time.Now()
	return fetchCmd(m.source)
}

func (m *Model) startupComplete() bool {
	for _, step := range m.startupSteps {
		if step.Status != "done" {
			return false
		}
	}
	return true
}

func (m *Model) apply(s Snapshot) {
	m.network = s.Network
	m.circuits.Update(circuitRows(s.Domains, s.TakenAt))
	if s.Tiers != nil {
		m.fees.Update(tierRows(*s.Tiers), s.Tiers.Source, s.Tiers.Defaulted, s.Tiers.ComputedAt)
	}
	m.balances.Update(balanceRows(s.Balances))
	m.send.Update(sendView(s.Mode, s.Send))
	m.lastUpdate = s.TakenAt
}

func circuitRows(statuses []resilient.Status, now time.Time) []components.CircuitRow {
	rows := make([]components.CircuitRow, 0, len(statuses))
	for _, st := range statuses {
		row := components.CircuitRow{
			Domain:   st.Domain,
			Status:   string(st.Circuit.Status()),
			Failures: st.Circuit.ConsecutiveFailures,
			Tokens:   st.Limiter.Tokens,
			Pending:  st.Limiter.Pending,
			InFlight: st.Limiter.InFlight,
		}
		if st.Circuit.IsOpen && st.Circuit.NextAttemptTime.After(now) {
			row.RetryIn = st.Circuit.NextAttemptTime.Sub(now)
		}
		rows = append(rows, row)
	}
	return rows
}

func tierRows(t feesDomain.Tiers) []components.TierRow {
	rows := make([]components.TierRow, 0, 3)
	for _, tier := range t.All() {
		rows = append(rows, components.TierRow{
			Name:          string(tier.ID),
			FeeRate:       tier.FeeRate,
			EstimatedSats: tier.EstimatedSats,
			Blocks:        tier.EstimatedConfirmationBlocks,
		})
	}
	return rows
}

func balanceRows(snaps []monitorDomain.Snapshot) []components.BalanceRow {
	rows := make([]components.BalanceRow, 0, len(snaps))
	for _, s := range snaps {
		row := components.BalanceRow{
			Address:     s.Address,
			Confirmed:   s.ConfirmedSats,
			Unconfirmed: s.UnconfirmedSats,
			UTXOs:       s.UTXOCount,
			LastPoll:    s.LastPollAt,
			Failing:     s.ConsecutiveFailures > 0,
		}
		if s.LastError != nil {
			row.LastError = s.LastError.Error()
		}
		rows = append(rows, row)
	}
	return rows
}

func sendView(mode sendDomain.ExecutionMode, st sendDomain.State) components.SendView {
	v := components.SendView{
		Mode:       string(mode),
		Stage:      string(st.Stage),
		Recipient:  st.Recipient,
		AmountSats: st.AmountSats,
		FeeSats:    st.FeeSats,
		FeeRate:    st.FeeTier.FeeRate,
		Inputs:     len(st.SelectedUTXOs),
		ChangeSats: st.ChangeSats,
		DustFolded: st.DustFolded,
	}
	if st.LastResult != nil {
		v.TxID = st.LastResult.TxID
		v.Simulated = st.LastResult.Simulated
	}
	if st.LastError != nil {
		v.ErrStage = string(st.LastError.Stage)
		v.ErrMessage = st.LastError.Err.Error()
		v.ErrGroup = string(st.LastError.Category)
	}
	return v
}

func (m *Model) addError(msg string) {
	m.errors = append(m.errors, ErrorEntry{Message: msg, Timestamp: time.Now()})
	if len(m.errors) > 3 {
		m.errors = m.errors[len(m.errors)-3:]
	}
}

// addActivity keeps the last 6 activity lines.
func (m *Model) addActivity(message string) {
	line := fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), message)
	m.activityFeed = append(m.activityFeed, line)
	if len(m.activityFeed) > 6 {
		m.activityFeed = m.activityFeed[len(m.activityFeed)-6:]
	}
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return "\n  Goodbye!\n\n"
	}

	switch m.phase {
	case PhaseWelcome:
		return m.renderWelcomeScreen()
	case PhaseStartup:
		return m.renderStartupScreen()
	}

	var b strings.Builder

	title := TitleStyle.Render(" ₿ satsend ")
	b.WriteString(title)
	b.WriteString("\n\n")

	b.WriteString(m.renderStatusBar())
	b.WriteString("\n\n")

	// Left: remote domains and fees. Right: balances and the send pipeline.
	leftCol := m.circuits.View() + "\n" + m.fees.View()
	rightCol := m.balances.View() + "\n" + m.send.View()

	width := m.width
	if width == 0 {
		width = 120
	}
	if width > 150 {
		left := BoxStyle.Width(width/2 - 2).Render(leftCol)
		right := BoxStyle.Width(width/2 - 2).Render(rightCol)
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, left, right))
	} else {
		b.WriteString(BoxStyle.Width(width - 4).Render(leftCol))
		b.WriteString("\n")
		b.WriteString(BoxStyle.Width(width - 4).Render(rightCol))
	}

	b.WriteString("\n\n")
	b.WriteString(m.renderActivityFeed())
	b.WriteString("\n")

	// Persistent error panel (show last 3 errors)
	if len(m.errors) > 0 {
		errorStyle := lipgloss.NewStyle().Foreground(ColorDanger)
		errorHeader := lipgloss.NewStyle().Bold(true).Foreground(ColorDanger)
		mutedError := lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF"))

		b.WriteString(errorHeader.Render("ERRORS"))
		b.WriteString(mutedError.Render(" (e: clear)"))
		b.WriteString("\n")
		for _, err := range m.errors {
			ago := time.Since(err.Timestamp).Round(time.Second)
			b.WriteString(errorStyle.Render(fmt.Sprintf("  • %s ", err.Message)))
			b.WriteString(mutedError.Render(fmt.Sprintf("(%s ago)", ago)))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	b.WriteString(HelpStyle.Render(m.help.View(m.keys)))

	return b.String()
}

// renderActivityFeed renders the recent activity feed.
func (m Model) renderActivityFeed() string {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary)
	mutedStyle := lipgloss.NewStyle().Foreground(ColorMuted)
	fundsStyle := lipgloss.NewStyle().Foreground(ColorSecondary)

	var sb strings.Builder
	sb.WriteString(headerStyle.Render("ACTIVITY"))
	sb.WriteString("\n")

	if len(m.activityFeed) == 0 {
		sb.WriteString(mutedStyle.Render("  Nothing yet..."))
		sb.WriteString("\n")
		return sb.String()
	}

	for _, activity := range m.activityFeed {
		if strings.Contains(activity, "incoming funds") || strings.Contains(activity, "broadcast") {
			sb.WriteString(fundsStyle.Render("  " + activity))
		} else {
			sb.WriteString(mutedStyle.Render("  " + activity))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// renderWelcomeScreen renders the animated welcome screen.
func (m Model) renderWelcomeScreen() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorPrimary)

	goldStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorWarning)

	mutedStyle := lipgloss.NewStyle().
		Foreground(ColorMuted)

	greenStyle := lipgloss.NewStyle().
		Foreground(ColorSecondary)

	// Animated dots based on time
	elapsed := time.Since(m.welcomeStart)
	dotCount := int(elapsed.Milliseconds()/300) % 4
	dots := strings.Repeat(".", dotCount)

	var sb strings.Builder

	sb.WriteString("\n\n\n\n")

	logo := `
   ███████╗ █████╗ ████████╗███████╗███████╗███╗   ██╗██████╗
   ██╔════╝██╔══██╗╚══██╔══╝██╔════╝██╔════╝████╗  ██║██╔══██╗
   ███████╗███████║   ██║   ███████╗█████╗  ██╔██╗ ██║██║  ██║
   ╚════██║██╔══██║   ██║   ╚════██║██╔══╝  ██║╚██╗██║██║  ██║
   ███████║██║  ██║   ██║   ███████║███████╗██║ ╚████║██████╔╝
   ╚══════╝╚═╝  ╚═╝   ╚═╝   ╚══════╝╚══════╝╚═╝  ╚═══╝╚═════╝
`
	sb.WriteString(titleStyle.Render(logo))
	sb.WriteString("\n")

	sb.WriteString(mutedStyle.Render("            R E S I L I E N T   B I T C O I N   S E N D"))
	sb.WriteString("\n\n\n")

	sb.WriteString(goldStyle.Render("                    ₿  stack sats, send sats  ₿"))
	sb.WriteString("\n\n\n")

	sb.WriteString(greenStyle.Render(fmt.Sprintf("                         Initializing%s", dots)))
	sb.WriteString("\n\n")

	sb.WriteString(mutedStyle.Render("                  Press any key to skip, or wait..."))
	sb.WriteString("\n")

	return sb.String()
}

// renderStartupScreen renders the loading/startup screen.
func (m Model) renderStartupScreen() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorPrimary).
		MarginBottom(1)

	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FFFFFF"))

	mutedStyle := lipgloss.NewStyle().Foreground(ColorMuted)
	successStyle := lipgloss.NewStyle().Foreground(ColorSecondary)
	connectingStyle := lipgloss.NewStyle().Foreground(ColorWarning)
	failedStyle := lipgloss.NewStyle().Foreground(ColorDanger)

	var sb strings.Builder

	sb.WriteString("\n\n")
	sb.WriteString(titleStyle.Render("  ₿ satsend"))
	sb.WriteString("\n\n")
	sb.WriteString(headerStyle.Render("  Starting up..."))
	sb.WriteString("\n\n")

	for _, name := range startupOrder {
		step, ok := m.startupSteps[name]
		if !ok {
			continue
		}

		var icon, statusText string
		var style lipgloss.Style

		switch step.Status {
		case "done":
			icon = "✓"
			statusText = "Ready"
			style = successStyle
		case "connecting":
			icon = m.spinner.View()
			statusText = "Starting..."
			style = connectingStyle
		case "failed":
			icon = "✗"
			statusText = "Failed"
			style = failedStyle
		default:
			icon = "○"
			statusText = "Pending"
			style = mutedStyle
		}

		sb.WriteString(fmt.Sprintf("  %s %s %s\n",
			style.Render(icon),
			mutedStyle.Render(step.Name),
			style.Render(statusText),
		))
	}

	sb.WriteString("\n")
	elapsed := time.Since(m.startupTime).Round(time.Second)
	sb.WriteString(mutedStyle.Render(fmt.Sprintf("  Elapsed: %s", elapsed)))
	sb.WriteString("\n")

	for _, err := range m.errors {
		sb.WriteString(failedStyle.Render("  " + err.Message))
		sb.WriteString("\n")
	}

	return sb.String()
}

func (m Model) renderStatusBar() string {
	var parts []string

	if m.fetching {
		parts = append(parts, StatusReconnecting.Render("⟳ Refreshing"))
	}

	if m.network != "" {
		parts = append(parts, "Network: "+m.network)
	}

	if open := m.circuits.Open(); open > 0 {
		parts = append(parts, StatusDisconnected.Render(fmt.Sprintf("○ %d circuit(s) open", open)))
	} else {
		parts = append(parts, StatusConnected.Render("● all circuits closed"))
	}

	if !m.lastUpdate.IsZero() {
		ago := time.Since(m.lastUpdate).Round(time.Second)
		parts = append(parts, MutedValue.Render(fmt.Sprintf("Updated: %s ago", ago)))
	}

	return strings.Join(parts, "  │  ")
}

// Program holds the Bubble Tea program instance for external access.
var Program *tea.Program

// OnStartModules is called when the welcome screen completes and modules should start.
// This is set by main.go to signal when to begin loading modules.
var OnStartModules func()

// Run starts the Bubble Tea program.
func Run(source Source) error {
	Program = tea.NewProgram(New(source), tea.WithAltScreen())
	_, err := Program.Run()
	return err
}

// Send sends a message to the running program.
func Send(msg tea.Msg) {
	if Program != nil {
		Program.Send(msg)
	}
}
