// Package network implements the Bitcoin network gateway bounded context.
package network

import (
	"context"

	"github.com/fd1az/satsend/business/network/app"
	networkDI "github.com/fd1az/satsend/business/network/di"
	"github.com/fd1az/satsend/business/network/domain"
	"github.com/fd1az/satsend/business/network/infra/esplora"
	"github.com/fd1az/satsend/internal/config"
	"github.com/fd1az/satsend/internal/di"
	"github.com/fd1az/satsend/internal/logger"
	"github.com/fd1az/satsend/internal/monolith"
	"github.com/fd1az/satsend/internal/resilient"
)

// Module implements the network bounded context.
type Module struct{}

// RegisterServices registers the explorers and the gateway.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, networkDI.Explorers, func(sr di.ServiceRegistry) []app.Explorer {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		net, err := domain.ParseNetwork(cfg.Network.Name)
		if err != nil {
			panic(err.Error())
		}

		endpoints := domain.DefaultEndpoints(net, cfg.Endpoints.MempoolURL, cfg.Endpoints.EsploraURL, cfg.Endpoints.Timeout)
		explorers := make([]app.Explorer, 0, len(endpoints))
		for _, ep := range endpoints {
			client, err := esplora.New(ep, log)
			if err != nil {
				panic("failed to create explorer client: " + err.Error())
			}
			explorers = append(explorers, client)
		}
		return explorers
	})

	di.RegisterToken(c, networkDI.Gateway, func(sr di.ServiceRegistry) *app.Gateway {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		rc := sr.Get("resilient").(*resilient.Client)

		net, _ := domain.ParseNetwork(cfg.Network.Name)
		return app.NewGateway(net, rc, log, networkDI.GetExplorers(sr)...)
	})

	return nil
}

// Startup logs the endpoint order.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	gw := networkDI.GetGateway(mono.Services())
	for i, ep := range gw.Endpoints() {
		mono.Logger().Info(ctx, "explorer endpoint", "priority", i, "name", ep.Name, "url", ep.BaseURL)
	}
	mono.Logger().Info(ctx, "network module started", "network", gw.Network())
	return nil
}
