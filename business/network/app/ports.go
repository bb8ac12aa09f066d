// Package app contains the Bitcoin network gateway and its port definitions.
package app

import (
	"context"

	"github.com/fd1az/satsend/business/network/domain"
)

// Explorer is one block explorer API. Implementations do a single attempt;
// retries, rate limiting and circuit breaking belong to the Gateway.
type Explorer interface {
	Endpoint() domain.Endpoint
	UTXOs(ctx context.Context, address string) ([]domain.UTXO, error)
	FeeEstimates(ctx context.Context) (domain.FeeEstimates, error)
	Broadcast(ctx context.Context, txHex string) (string, error)
	Transaction(ctx context.Context, txid string) (domain.Transaction, error)
	Balance(ctx context.Context, address string) (domain.Balance, error)
}
