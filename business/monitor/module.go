// Package monitor implements the address balance monitor bounded context.
package monitor

import (
	"context"

	"github.com/fd1az/satsend/business/monitor/app"
	monitorDI "github.com/fd1az/satsend/business/monitor/di"
	"github.com/fd1az/satsend/business/monitor/infra/balance"
	"github.com/fd1az/satsend/business/monitor/infra/mempoolws"
	networkDI "github.com/fd1az/satsend/business/network/di"
	networkDomain "github.com/fd1az/satsend/business/network/domain"
	"github.com/fd1az/satsend/internal/config"
	"github.com/fd1az/satsend/internal/di"
	"github.com/fd1az/satsend/internal/logger"
	"github.com/fd1az/satsend/internal/monolith"
)

// Module implements the monitor bounded context.
type Module struct{}

// RegisterServices registers the refresher, the push client and the monitor.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, monitorDI.Refresher, func(sr di.ServiceRegistry) *balance.Refresher {
		log := sr.Get("logger").(logger.LoggerInterface)
		return balance.NewRefresher(networkDI.GetGateway(sr), log)
	})

	di.RegisterToken(c, monitorDI.Push, func(sr di.ServiceRegistry) *mempoolws.Client {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		if !cfg.Monitor.PushEnabled || cfg.Endpoints.WebSocketURL == "" {
			return nil
		}

		gw := networkDI.GetGateway(sr)
		client, err := mempoolws.NewClient(networkDomain.PushURL(gw.Network(), cfg.Endpoints.WebSocketURL), log)
		if err != nil {
			panic("failed to create push client: " + err.Error())
		}
		return client
	})

	di.RegisterToken(c, monitorDI.Monitor, func(sr di.ServiceRegistry) *app.Monitor {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		opts := []app.Option{
			app.WithInterval(cfg.Monitor.Interval),
			app.WithRetry(cfg.Monitor.RetryAttempts, cfg.Monitor.RetryDelay),
			app.WithRefresher(monitorDI.GetRefresher(sr)),
			app.WithLogger(log),
		}
		push := monitorDI.GetPush(sr)
		if push != nil {
			opts = append(opts, app.WithPushSource(push))
		}

		mon := app.NewMonitor(networkDI.GetGateway(sr), opts...)
		if push != nil {
			push.OnHint(mon.Hint)
		}
		return mon
	})

	return nil
}

// Startup connects the push channel and watches the configured addresses.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	cfg := mono.Config()
	mon := monitorDI.GetMonitor(mono.Services())

	if push := monitorDI.GetPush(mono.Services()); push != nil {
		push.Start(ctx)
	}

	for _, address := range cfg.Monitor.Addresses {
		if err := mon.Watch(address); err != nil {
			return err
		}
	}

	mono.Logger().Info(ctx, "monitor module started",
		"addresses", len(cfg.Monitor.Addresses),
		"interval", cfg.Monitor.Interval,
		"push", cfg.Monitor.PushEnabled)
	return nil
}

// Shutdown stops polling and closes the push channel.
func (m *Module) Shutdown(mono monolith.Monolith) {
	monitorDI.GetMonitor(mono.Services()).Stop()
	if push := monitorDI.GetPush(mono.Services()); push != nil {
		push.Close()
	}
}
