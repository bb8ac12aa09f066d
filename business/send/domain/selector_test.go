package domain

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	networkDomain "github.com/fd1az/satsend/business/network/domain"
	"github.com/fd1az/satsend/internal/apperror"
)

func utxo(vout uint32, value int64, confirmed bool) networkDomain.UTXO {
	return networkDomain.UTXO{
		TxID:      "4a5e1e4baab89f3a32518a88c31bc87f618f76673e2cc77ab2127b7afdeda33b",
		Vout:      vout,
		Value:     value,
		Confirmed: confirmed,
	}
}

func TestEstimateFee(t *testing.T) {
	assert.Equal(t, int64(180), EstimateVBytes(1))
	assert.Equal(t, int64(248), EstimateVBytes(2))
	assert.Equal(t, int64(1800), EstimateFee(1, 10))
	assert.Equal(t, int64(2480), EstimateFee(2, 10))
	assert.Equal(t, int64(273), EstimateFee(2, 1.1))
}

func TestOrderCoins_ConfirmedThenLargest(t *testing.T) {
	ordered := OrderCoins([]networkDomain.UTXO{
		utxo(0, 500, false),
		utxo(1, 1000, true),
		utxo(2, 9000, false),
		utxo(3, 3000, true),
	})

	got := make([]uint32, len(ordered))
	for i, u := range ordered {
		got[i] = u.Vout
	}
	assert.Equal(t, []uint32{3, 1, 2, 0}, got)
}

func TestSelectCoins_StandardTierScenario(t *testing.T) {
	sel, err := SelectCoins([]networkDomain.UTXO{
		utxo(0, 2000, true),
		utxo(1, 1500, true),
		utxo(2, 50000, false),
	}, 1000, 10, DefaultSelectionPolicy())

	require.NoError(t, err)
	assert.GreaterOrEqual(t, sel.TotalSats, int64(2800))
	assert.GreaterOrEqual(t, sel.TotalSats, 1000+sel.FeeSats)
	assert.Equal(t, sel.TotalSats, 1000+sel.FeeSats+sel.ChangeSats)
	for _, u := range sel.Selected {
		assert.True(t, u.Confirmed, "confirmed coins cover the target and are preferred")
	}
}

func TestSelectCoins_FeeGrowsWithInputs(t *testing.T) {
	sel, err := SelectCoins([]networkDomain.UTXO{
		utxo(0, 2000, true),
		utxo(1, 2000, true),
		utxo(2, 2000, true),
	}, 2000, 5, DefaultSelectionPolicy())

	require.NoError(t, err)
	require.Len(t, sel.Selected, 2)
	assert.Equal(t, EstimateFee(2, 5), sel.FeeSats)
	assert.Equal(t, int64(4000-2000-1240), sel.ChangeSats)
}

func TestSelectCoins_DustChangeFoldedIntoFee(t *testing.T) {
	// 1 input at 10 sat/vB costs 1800; 3000 - 1000 - 1800 = 200 sats of change.
	sel, err := SelectCoins([]networkDomain.UTXO{utxo(0, 3000, true)}, 1000, 10, DefaultSelectionPolicy())

	require.NoError(t, err)
	assert.True(t, sel.DustFolded)
	assert.Zero(t, sel.ChangeSats)
	assert.Equal(t, int64(2000), sel.FeeSats)
	assert.Equal(t, sel.TotalSats, 1000+sel.FeeSats)
}

func TestSelectCoins_InsufficientFunds(t *testing.T) {
	_, err := SelectCoins([]networkDomain.UTXO{utxo(0, 900, true)}, 1000, 1, DefaultSelectionPolicy())

	require.Error(t, err)
	assert.Equal(t, apperror.KindInsufficientFunds, apperror.KindOf(err))
	assert.Equal(t, apperror.CategoryValidation, apperror.CategoryOf(err))
}

func TestSelectCoins_FeeMakesItInsufficient(t *testing.T) {
	_, err := SelectCoins([]networkDomain.UTXO{utxo(0, 2500, true)}, 1000, 10, DefaultSelectionPolicy())
	assert.True(t, apperror.HasCode(err, apperror.CodeInsufficientFunds))
}

func TestSelectCoins_MaxInputs(t *testing.T) {
	var utxos []networkDomain.UTXO
	for i := range 5 {
		utxos = append(utxos, utxo(uint32(i), 1000, true))
	}

	_, err := SelectCoins(utxos, 4000, 1, SelectionPolicy{MaxInputs: 3})

	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeInsufficientFunds))
	assert.Contains(t, err.Error(), "3 inputs")
}

func TestSelectCoins_DustPayment(t *testing.T) {
	_, err := SelectCoins([]networkDomain.UTXO{utxo(0, 100000, true)}, 300, 1, DefaultSelectionPolicy())
	assert.Equal(t, apperror.KindDustOutput, apperror.KindOf(err))
}

func TestSelectCoins_InvalidAmount(t *testing.T) {
	_, err := SelectCoins([]networkDomain.UTXO{utxo(0, 100000, true)}, 0, 1, DefaultSelectionPolicy())
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidAmount))
}

func TestSelectCoins_CoversWheneverFundsSuffice(t *testing.T) {
	rates := []float64{1, 2.5, 10, 37}
	for _, rate := range rates {
		for n := 1; n <= 6; n++ {
			t.Run(fmt.Sprintf("rate=%v/n=%d", rate, n), func(t *testing.T) {
				var utxos []networkDomain.UTXO
				var total int64
				for i := range n {
					v := int64(3000 * (i + 1))
					utxos = append(utxos, utxo(uint32(i), v, i%2 == 0))
					total += v
				}
				amount := int64(1000)
				if total < amount+EstimateFee(n, rate) {
					t.Skip("not enough funds for this combination")
				}

				sel, err := SelectCoins(utxos, amount, rate, DefaultSelectionPolicy())
				require.NoError(t, err)
				assert.GreaterOrEqual(t, sel.TotalSats, amount+EstimateFee(len(sel.Selected), rate))
				assert.Equal(t, sel.TotalSats, amount+sel.FeeSats+sel.ChangeSats)
			})
		}
	}

	_, err := SelectCoins([]networkDomain.UTXO{utxo(0, 600, true)}, 1000, 1, DefaultSelectionPolicy())
	assert.True(t, apperror.HasCode(err, apperror.CodeInsufficientFunds))
}

func TestParseExecutionMode(t *testing.T) {
	m, err := ParseExecutionMode("")
	require.NoError(t, err)
	assert.Equal(t, Live, m)

	m, err = ParseExecutionMode("simulate_failure")
	require.NoError(t, err)
	assert.Equal(t, SimulateFailure, m)

	_, err = ParseExecutionMode("test-bypass")
	assert.Error(t, err)
}
