package main

import (
	"context"
	"time"

	feesApp "github.com/fd1az/satsend/business/fees/app"
	monitorApp "github.com/fd1az/satsend/business/monitor/app"
	networkApp "github.com/fd1az/satsend/business/network/app"
	sendApp "github.com/fd1az/satsend/business/send/app"
	"github.com/fd1az/satsend/internal/logger"
	"github.com/fd1az/satsend/internal/resilient"
	"github.com/fd1az/satsend/pkg/ui"
)

// dashboardSource reads every component's snapshot API for the TUI.
type dashboardSource struct {
	gateway   *networkApp.Gateway
	resilient *resilient.Client
	fees      *feesApp.Service
	monitor   *monitorApp.Monitor
	pipeline  *sendApp.Pipeline
	logger    logger.LoggerInterface
}

var _ ui.Source = (*dashboardSource)(nil)

func (d *dashboardSource) Snapshot(ctx context.Context) ui.Snapshot {
	tiers := d.fees.GetTiers(ctx)
	return ui.Snapshot{
		Network:  string(d.gateway.Network()),
		Mode:     d.pipeline.Mode(),
		Domains:  d.resilient.Statuses(),
		Tiers:    &tiers,
		Balances: d.monitor.Snapshots(),
		Send:     d.pipeline.Snapshot(),
		TakenAt:  time.Now(),
	}
}

func (d *dashboardSource) ResetCircuits() []string {
	return d.resilient.ResetOpenCircuits()
}

func (d *dashboardSource) Refresh(ctx context.Context) {
	if err := d.monitor.Foreground(ctx); err != nil {
		d.logger.Debug(ctx, "foreground poll interrupted", "error", err)
	}
}

// forwardEvents pushes pipeline transitions and balance polls into the
// running program until ctx is done.
func (d *dashboardSource) forwardEvents(ctx context.Context) {
	stages, stopStages := d.pipeline.Subscribe()
	balances, stopBalances := d.monitor.Subscribe()

	go func() {
		defer stopStages()
		defer stopBalances()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-stages:
				if !ok {
					return
				}
				ui.Send(ui.StageMsg{Event: ev})
			case snap, ok := <-balances:
				if !ok {
					return
				}
				ui.Send(ui.BalanceMsg{Snapshot: snap})
			}
		}
	}()
}
