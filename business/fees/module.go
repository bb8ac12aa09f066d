// Package fees implements the fee estimation bounded context.
package fees

import (
	"context"

	"github.com/fd1az/satsend/business/fees/app"
	feesDI "github.com/fd1az/satsend/business/fees/di"
	networkDI "github.com/fd1az/satsend/business/network/di"
	"github.com/fd1az/satsend/internal/config"
	"github.com/fd1az/satsend/internal/di"
	"github.com/fd1az/satsend/internal/logger"
	"github.com/fd1az/satsend/internal/monolith"
)

// Module implements the fees bounded context.
type Module struct{}

// RegisterServices registers the fee service.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, feesDI.FeeService, func(sr di.ServiceRegistry) *app.Service {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		return app.NewService(networkDI.GetGateway(sr), cfg.Fees.CacheTTL, log)
	})
	return nil
}

// Startup warms the tier cache in the background.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	svc := feesDI.GetFeeService(mono.Services())
	log := mono.Logger()

	go func() {
		tiers := svc.GetTiers(ctx)
		log.Info(ctx, "fee tiers ready",
			"source", tiers.Source,
			"standard", tiers.Standard.FeeRate,
			"defaulted", tiers.Defaulted)
	}()

	log.Info(ctx, "fees module started")
	return nil
}
