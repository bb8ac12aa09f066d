package ui

import (
	monitorDomain "github.com/fd1az/satsend/business/monitor/domain"
	sendDomain "github.com/fd1az/satsend/business/send/domain"
)

// Message types for TUI updates

// SnapshotMsg carries a fresh pull of every component's state.
type SnapshotMsg struct {
	Snapshot Snapshot
}

// StageMsg is sent on every send pipeline transition.
type StageMsg struct {
	Event sendDomain.StageEvent
}

// BalanceMsg is sent when a watched address is polled.
type BalanceMsg struct {
	Snapshot monitorDomain.Snapshot
}

// CircuitsResetMsg reports the domains whose circuits were force-closed.
type CircuitsResetMsg struct {
	Domains []string
}

// ErrorMsg is sent when an error occurs.
type ErrorMsg struct {
	Error error
}

// TickMsg is sent periodically for UI updates.
type TickMsg struct{}

// LogMsg is sent to display a log message in the UI.
type LogMsg struct {
	Level   string // "info", "warn", "error"
	Message string
}

// StartupMsg is sent during application startup to show progress.
type StartupMsg struct {
	Step    string // config, network, fees, send or monitor
	Status  string // "connecting", "done", "failed"
	Message string
}
