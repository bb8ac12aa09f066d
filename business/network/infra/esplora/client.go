// Package esplora talks to esplora-compatible block explorers
// (blockstream.info and mempool.space).
package esplora

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/satsend/business/network/domain"
	"github.com/fd1az/satsend/internal/httpclient"
	"github.com/fd1az/satsend/internal/logger"
)

const (
	tracerName = "satsend/network/esplora"
	userAgent  = "satsend"
)

// Client is a single-attempt explorer client. It implements app.Explorer.
type Client struct {
	endpoint domain.Endpoint
	client   httpclient.Client
	logger   logger.LoggerInterface
	tracer   trace.Tracer
	now      func() time.Time
}

// New creates a Client for endpoint.
func New(endpoint domain.Endpoint, log logger.LoggerInterface) (*Client, error) {
	tracer := otel.Tracer(tracerName)

	client, err := httpclient.NewInstrumentedClient(
		httpclient.WithProviderName(endpoint.Name),
		httpclient.WithBaseURL(endpoint.BaseURL),
		httpclient.WithRequestTimeout(endpoint.Timeout),
		httpclient.WithHeaders(map[string]string{"User-Agent": userAgent}),
		httpclient.WithTraceOptions(tracer, httpclient.TraceRequest),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http client for %s: %w", endpoint.Name, err)
	}

	return &Client{
		endpoint: endpoint,
		client:   client,
		logger:   log,
		tracer:   tracer,
		now:      time.Now,
	}, nil
}

// Endpoint returns the endpoint this client talks to.
func (c *Client) Endpoint() domain.Endpoint {
	return c.endpoint
}

func (c *Client) request(label string) httpclient.Request {
	return c.client.NewRequestWithOptions(
		httpclient.WithLabels(httpclient.NewLabel("endpoint", label)),
		httpclient.WithResponseErrorHandler(httpclient.StatusErrorHandler(c.endpoint.Domain())),
	)
}

// UTXOs lists the unspent outputs of address.
func (c *Client) UTXOs(ctx context.Context, address string) ([]domain.UTXO, error) {
	ctx, span := c.tracer.Start(ctx, "esplora.utxos", trace.WithAttributes(
		attribute.String("endpoint", c.endpoint.Name),
	))
	defer span.End()

	var result []utxoResponse
	if _, err := c.request("utxo").
		SetResult(&result).
		Get(ctx, "/address/"+url.PathEscape(address)+"/utxo"); err != nil {
		return nil, err
	}

	utxos := make([]domain.UTXO, 0, len(result))
	for _, u := range result {
		utxos = append(utxos, u.toDomain())
	}
	span.SetAttributes(attribute.Int("utxos", len(utxos)))
	return utxos, nil
}

// FeeEstimates uses /v1/fees/recommended on mempool.space and /fee-estimates
// elsewhere.
func (c *Client) FeeEstimates(ctx context.Context) (domain.FeeEstimates, error) {
	ctx, span := c.tracer.Start(ctx, "esplora.fee_estimates", trace.WithAttributes(
		attribute.String("endpoint", c.endpoint.Name),
	))
	defer span.End()

	var rates map[int]float64
	if c.endpoint.Provider == domain.ProviderMempool {
		var result recommendedFees
		if _, err := c.request("fees_recommended").SetResult(&result).Get(ctx, "/v1/fees/recommended"); err != nil {
			return domain.FeeEstimates{}, err
		}
		rates = result.rates()
	} else {
		var result feeEstimates
		if _, err := c.request("fee_estimates").SetResult(&result).Get(ctx, "/fee-estimates"); err != nil {
			return domain.FeeEstimates{}, err
		}
		rates = result.rates()
	}

	return domain.FeeEstimates{
		Rates:     rates,
		Source:    c.endpoint.Name,
		FetchedAt: c.now(),
	}, nil
}

// Broadcast posts the raw transaction hex and returns the txid from the body.
func (c *Client) Broadcast(ctx context.Context, txHex string) (string, error) {
	ctx, span := c.tracer.Start(ctx, "esplora.broadcast", trace.WithAttributes(
		attribute.String("endpoint", c.endpoint.Name),
	))
	defer span.End()

	resp, err := c.request("tx_broadcast").SetTextBody(txHex).Post(ctx, "/tx")
	if err != nil {
		return "", err
	}

	txid := strings.TrimSpace(resp.String())
	span.SetAttributes(attribute.String("txid", txid))
	c.logger.Info(ctx, "transaction broadcast", "endpoint", c.endpoint.Name, "txid", txid)
	return txid, nil
}

// Transaction fetches txid.
func (c *Client) Transaction(ctx context.Context, txid string) (domain.Transaction, error) {
	ctx, span := c.tracer.Start(ctx, "esplora.transaction", trace.WithAttributes(
		attribute.String("endpoint", c.endpoint.Name),
		attribute.String("txid", txid),
	))
	defer span.End()

	var result txResponse
	if _, err := c.request("tx").SetResult(&result).Get(ctx, "/tx/"+url.PathEscape(txid)); err != nil {
		return domain.Transaction{}, err
	}
	return result.toDomain(), nil
}

// Balance fetches the chain and mempool stats for address.
func (c *Client) Balance(ctx context.Context, address string) (domain.Balance, error) {
	ctx, span := c.tracer.Start(ctx, "esplora.balance", trace.WithAttributes(
		attribute.String("endpoint", c.endpoint.Name),
	))
	defer span.End()

	var result addressResponse
	if _, err := c.request("address").SetResult(&result).Get(ctx, "/address/"+url.PathEscape(address)); err != nil {
		return domain.Balance{}, err
	}

	bal := result.toDomain()
	if bal.Address == "" {
		bal.Address = address
	}
	return bal, nil
}
