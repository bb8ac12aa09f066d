package ui

import (
	"context"
	"time"

	feesDomain "github.com/fd1az/satsend/business/fees/domain"
	monitorDomain "github.com/fd1az/satsend/business/monitor/domain"
	sendDomain "github.com/fd1az/satsend/business/send/domain"
	"github.com/fd1az/satsend/internal/resilient"
)

// Snapshot is everything the dashboard renders, read in one pull.
type Snapshot struct {
	Network  string
	Mode     sendDomain.ExecutionMode
	Domains  []resilient.Status
	Tiers    *feesDomain.Tiers
	Balances []monitorDomain.Snapshot
	Send     sendDomain.State
	TakenAt  time.Time
}

// Source is polled by the dashboard. Snapshot may block on network I/O and
// is always called off the UI goroutine.
type Source interface {
	Snapshot(ctx context.Context) Snapshot
	ResetCircuits() []string
	Refresh(ctx context.Context)
}
