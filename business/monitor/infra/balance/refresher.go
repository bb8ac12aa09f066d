// Package balance refreshes a wallet's view of an address through the
// network gateway.
package balance

import (
	"context"
	"sync"

	monitorDomain "github.com/fd1az/satsend/business/monitor/domain"
	networkDomain "github.com/fd1az/satsend/business/network/domain"
	"github.com/fd1az/satsend/internal/logger"
)

// Source returns an address's chain and mempool totals.
type Source interface {
	GetBalance(ctx context.Context, address string) (networkDomain.Balance, error)
}

// Refresher reloads the full balance of an address after the monitor saw
// funds arrive, and keeps the latest result per address.
type Refresher struct {
	source Source
	logger logger.LoggerInterface

	mu       sync.RWMutex
	balances map[string]networkDomain.Balance
}

func NewRefresher(source Source, log logger.LoggerInterface) *Refresher {
	return &Refresher{
		source:   source,
		logger:   log,
		balances: make(map[string]networkDomain.Balance),
	}
}

// Refresh implements app.Refresher.
func (r *Refresher) Refresh(ctx context.Context, snap monitorDomain.Snapshot) error {
	b, err := r.source.GetBalance(ctx, snap.Address)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.balances[snap.Address] = b
	r.mu.Unlock()

	r.logger.Info(ctx, "wallet refreshed",
		"address", b.Address,
		"confirmed_sats", b.ConfirmedSats,
		"unconfirmed_sats", b.UnconfirmedSats,
		"tx_count", b.TxCount)
	return nil
}

// Balance returns the last refreshed balance of address.
func (r *Refresher) Balance(address string) (networkDomain.Balance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.balances[address]
	return b, ok
}
