package app

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/satsend/business/network/domain"
	"github.com/fd1az/satsend/internal/apperror"
	"github.com/fd1az/satsend/internal/logger"
	"github.com/fd1az/satsend/internal/resilient"
)

// Gateway fronts the explorers in priority order. Each call goes through the
// resilient client keyed by the explorer's domain: the primary is retried up
// to the attempt bound, then the next explorer is tried.
type Gateway struct {
	network   domain.Network
	explorers []Explorer
	rc        *resilient.Client
	logger    logger.LoggerInterface
	tracer    trace.Tracer

	fallbacks metric.Int64Counter
}

// NewGateway creates a Gateway. explorers are tried in the given order.
func NewGateway(network domain.Network, rc *resilient.Client, log logger.LoggerInterface, explorers ...Explorer) *Gateway {
	g := &Gateway{
		network:   network,
		explorers: explorers,
		rc:        rc,
		logger:    log,
		tracer:    otel.Tracer("satsend/network"),
	}

	meter := otel.Meter("satsend/network")
	g.fallbacks, _ = meter.Int64Counter("gateway_fallback_total",
		metric.WithDescription("Requests served by a lower-priority explorer"),
		metric.WithUnit("{request}"),
	)

	return g
}

// Network returns the configured network.
func (g *Gateway) Network() domain.Network {
	return g.network
}

// Endpoints returns the explorer endpoints in priority order.
func (g *Gateway) Endpoints() []domain.Endpoint {
	out := make([]domain.Endpoint, len(g.explorers))
	for i, ex := range g.explorers {
		out[i] = ex.Endpoint()
	}
	return out
}

// GetUTXOs returns the unspent outputs of address. Results are never cached.
func (g *Gateway) GetUTXOs(ctx context.Context, address string) ([]domain.UTXO, error) {
	return firstSuccess(ctx, g, "utxos", func(ctx context.Context, ex Explorer) ([]domain.UTXO, error) {
		return ex.UTXOs(ctx, address)
	})
}

// GetBalance returns the balance of address.
func (g *Gateway) GetBalance(ctx context.Context, address string) (domain.Balance, error) {
	return firstSuccess(ctx, g, "balance", func(ctx context.Context, ex Explorer) (domain.Balance, error) {
		return ex.Balance(ctx, address)
	})
}

// GetFeeEstimates never fails: when every explorer is down it returns the
// static defaults for the network, marked Defaulted.
func (g *Gateway) GetFeeEstimates(ctx context.Context) domain.FeeEstimates {
	est, err := firstSuccess(ctx, g, "fee_estimates", func(ctx context.Context, ex Explorer) (domain.FeeEstimates, error) {
		est, err := ex.FeeEstimates(ctx)
		if err == nil && len(est.Rates) == 0 {
			err = apperror.New(apperror.CodeMalformedResponse,
				apperror.WithDomain(ex.Endpoint().Domain()),
				apperror.WithContext("empty fee estimates"))
		}
		return est, err
	})
	if err != nil {
		g.logger.Warn(ctx, "fee estimates unavailable, using defaults", "network", g.network, "error", err)
		return domain.DefaultFeeEstimates(g.network)
	}
	return est
}

// Broadcast submits a signed transaction and returns its txid. A response
// that does not look like a txid is logged and returned as-is.
func (g *Gateway) Broadcast(ctx context.Context, txHex string) (string, error) {
	txHex = strings.TrimSpace(txHex)
	if txHex == "" {
		return "", apperror.Validation(apperror.CodeRequiredField, "transaction hex is empty")
	}

	txid, err := firstSuccess(ctx, g, "broadcast", func(ctx context.Context, ex Explorer) (string, error) {
		txid, err := ex.Broadcast(ctx, txHex)
		if err != nil && isClientError(err) {
			return "", apperror.New(apperror.CodeBroadcastRejected,
				apperror.WithDomain(ex.Endpoint().Domain()),
				apperror.WithUpstreamStatus(apperror.UpstreamStatus(err)),
				apperror.WithCause(err),
			)
		}
		return strings.TrimSpace(txid), err
	})
	if err != nil {
		return "", err
	}

	if !domain.IsTxID(txid) {
		g.logger.Warn(ctx, "broadcast returned an unexpected txid", "txid", txid)
	}
	return txid, nil
}

// GetTransaction returns the confirmation status of txid.
func (g *Gateway) GetTransaction(ctx context.Context, txid string) (domain.Transaction, error) {
	return firstSuccess(ctx, g, "transaction", func(ctx context.Context, ex Explorer) (domain.Transaction, error) {
		tx, err := ex.Transaction(ctx, txid)
		if err != nil && apperror.UpstreamStatus(err) == http.StatusNotFound {
			return tx, apperror.NotFound(apperror.CodeTransactionNotFound, txid)
		}
		return tx, err
	})
}

// firstSuccess runs call against each explorer in order and returns the first
// success. Answers that are final regardless of the endpoint (client errors,
// caller cancellation) stop the walk.
func firstSuccess[T any](ctx context.Context, g *Gateway, op string, call func(context.Context, Explorer) (T, error)) (T, error) {
	var zero T

	ctx, span := g.tracer.Start(ctx, "gateway."+op,
		trace.WithAttributes(attribute.String("network", string(g.network))),
	)
	defer span.End()

	if len(g.explorers) == 0 {
		err := apperror.New(apperror.CodeConfigurationError, apperror.WithContext("no explorers configured"))
		span.RecordError(err)
		return zero, err
	}

	var errs []error
	for i, ex := range g.explorers {
		ep := ex.Endpoint()
		v, err := resilient.Execute(ctx, g.rc, ep.Domain(), func(ctx context.Context) (T, error) {
			return call(ctx, ex)
		})
		if err == nil {
			span.SetAttributes(attribute.String("endpoint", ep.Name))
			if i > 0 {
				g.fallbacks.Add(ctx, 1, metric.WithAttributes(
					attribute.String("op", op),
					attribute.String("endpoint", ep.Name),
				))
				g.logger.Info(ctx, "served by fallback endpoint", "op", op, "endpoint", ep.Name)
			}
			return v, nil
		}

		if ctx.Err() != nil || isFinal(err) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return zero, err
		}

		g.logger.Warn(ctx, "endpoint failed", "op", op, "endpoint", ep.Name, "error", err)
		errs = append(errs, err)
	}

	err := apperror.New(apperror.CodeAllEndpointsFailed,
		apperror.WithContext(op),
		apperror.WithCause(errors.Join(errs...)),
	)
	span.RecordError(err)
	span.SetStatus(codes.Error, "all endpoints failed")
	return zero, err
}

func isClientError(err error) bool {
	status := apperror.UpstreamStatus(err)
	return status >= 400 && status < 500 && status != http.StatusTooManyRequests
}

func isFinal(err error) bool {
	return isClientError(err) ||
		apperror.HasCode(err, apperror.CodeBroadcastRejected) ||
		apperror.HasCode(err, apperror.CodeTransactionNotFound) ||
		apperror.HasCode(err, apperror.CodeRequiredField)
}
