// Package app contains the send pipeline and its port definitions.
package app

import (
	"context"

	feesDomain "github.com/fd1az/satsend/business/fees/domain"
	networkDomain "github.com/fd1az/satsend/business/network/domain"
)

// Gateway is the subset of the network gateway the pipeline needs.
type Gateway interface {
	Network() networkDomain.Network
	GetUTXOs(ctx context.Context, address string) ([]networkDomain.UTXO, error)
	Broadcast(ctx context.Context, txHex string) (string, error)
}

// FeeService resolves a tier name, or a custom rate, to a fee tier.
type FeeService interface {
	Resolve(ctx context.Context, id feesDomain.TierID, customRate float64) (feesDomain.Tier, error)
}

// SignRequest is everything an external signer needs to build and sign the
// transaction. Keys never enter this process.
type SignRequest struct {
	Network       networkDomain.Network `json:"network"`
	Recipient     string                `json:"recipient"`
	AmountSats    int64                 `json:"amount_sats"`
	FeeRate       float64               `json:"fee_rate"`
	FeeSats       int64                 `json:"fee_sats"`
	ChangeAddress string                `json:"change_address"`
	ChangeSats    int64                 `json:"change_sats"`
	UTXOs         []SignInput           `json:"utxos"`
}

// SignInput is one input to spend.
type SignInput struct {
	TxID  string `json:"txid"`
	Vout  uint32 `json:"vout"`
	Value int64  `json:"value"`
}

// Signer signs and serializes a transaction, returning its hex.
type Signer interface {
	Sign(ctx context.Context, req SignRequest) (string, error)
}
