// Package send implements the send transaction bounded context.
package send

import (
	"context"

	feesDI "github.com/fd1az/satsend/business/fees/di"
	networkDI "github.com/fd1az/satsend/business/network/di"
	"github.com/fd1az/satsend/business/send/app"
	sendDI "github.com/fd1az/satsend/business/send/di"
	"github.com/fd1az/satsend/business/send/domain"
	"github.com/fd1az/satsend/business/send/infra/signer"
	"github.com/fd1az/satsend/internal/config"
	"github.com/fd1az/satsend/internal/di"
	"github.com/fd1az/satsend/internal/logger"
	"github.com/fd1az/satsend/internal/monolith"
)

// Module implements the send bounded context.
type Module struct{}

// RegisterServices registers the signer and the pipeline.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, sendDI.Signer, func(sr di.ServiceRegistry) app.Signer {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		s, err := signer.ParseCommand(log, cfg.Send.SignerCommand)
		if err != nil {
			panic("failed to create signer: " + err.Error())
		}
		return s
	})

	di.RegisterToken(c, sendDI.Pipeline, func(sr di.ServiceRegistry) *app.Pipeline {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		mode, err := domain.ParseExecutionMode(cfg.Send.ExecutionMode)
		if err != nil {
			panic(err.Error())
		}

		policy := domain.DefaultSelectionPolicy()
		if cfg.Send.MaxInputs > 0 {
			policy.MaxInputs = cfg.Send.MaxInputs
		}

		return app.NewPipeline(
			networkDI.GetGateway(sr),
			feesDI.GetFeeService(sr),
			sendDI.GetSigner(sr),
			app.WithExecutionMode(mode),
			app.WithSelectionPolicy(policy),
			app.WithLogger(log),
		)
	})

	return nil
}

// Startup logs the execution mode.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	p := sendDI.GetPipeline(mono.Services())
	if _, ok := sendDI.GetSigner(mono.Services()).(signer.Unavailable); ok && p.Mode() == domain.Live {
		mono.Logger().Warn(ctx, "no signer configured, live sends will fail at signing")
	}
	mono.Logger().Info(ctx, "send module started", "mode", p.Mode())
	return nil
}
