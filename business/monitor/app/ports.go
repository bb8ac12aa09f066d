// Package app contains the balance monitor and its port definitions.
package app

import (
	"context"

	"github.com/fd1az/satsend/business/monitor/domain"
	networkDomain "github.com/fd1az/satsend/business/network/domain"
)

// UTXOSource lists an address's unspent outputs.
type UTXOSource interface {
	GetUTXOs(ctx context.Context, address string) ([]networkDomain.UTXO, error)
}

// Refresher is told when a watched address received funds.
type Refresher interface {
	Refresh(ctx context.Context, snap domain.Snapshot) error
}

// PushSource subscribes to server-side notifications for the watched set.
type PushSource interface {
	Track(ctx context.Context, addresses []string) error
}
