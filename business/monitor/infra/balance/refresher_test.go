package balance

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	monitorDomain "github.com/fd1az/satsend/business/monitor/domain"
	networkDomain "github.com/fd1az/satsend/business/network/domain"
	"github.com/fd1az/satsend/internal/logger"
)

type stubSource struct {
	balance networkDomain.Balance
	err     error
}

func (s stubSource) GetBalance(_ context.Context, address string) (networkDomain.Balance, error) {
	b := s.balance
	b.Address = address
	return b, s.err
}

func TestRefresher_StoresLatestBalance(t *testing.T) {
	r := NewRefresher(stubSource{balance: networkDomain.Balance{ConfirmedSats: 3500, UnconfirmedSats: 700, TxCount: 4}}, logger.Nop())

	require.NoError(t, r.Refresh(context.Background(), monitorDomain.Snapshot{Address: "tb1qabc"}))

	b, ok := r.Balance("tb1qabc")
	require.True(t, ok)
	assert.Equal(t, int64(4200), b.TotalSats())
	assert.Equal(t, int64(4), b.TxCount)
}

func TestRefresher_PropagatesError(t *testing.T) {
	r := NewRefresher(stubSource{err: errors.New("down")}, logger.Nop())

	err := r.Refresh(context.Background(), monitorDomain.Snapshot{Address: "tb1qabc"})
	assert.Error(t, err)

	_, ok := r.Balance("tb1qabc")
	assert.False(t, ok)
}
