package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	networkDomain "github.com/fd1az/satsend/business/network/domain"
)

func estimates(rates map[int]float64) networkDomain.FeeEstimates {
	return networkDomain.FeeEstimates{Rates: rates, Source: "test"}
}

func TestEstimateSats(t *testing.T) {
	assert.Equal(t, int64(1800), EstimateSats(10, AssumedTxVBytes))
	assert.Equal(t, int64(216), EstimateSats(1.2, AssumedTxVBytes))
	assert.Equal(t, int64(738), EstimateSats(4.1, AssumedTxVBytes))
	assert.Equal(t, int64(1), EstimateSats(0.001, AssumedTxVBytes))
}

func TestBuildTiers_Buckets(t *testing.T) {
	now := time.Now()
	tiers := BuildTiers(networkDomain.Mainnet, estimates(map[int]float64{
		1: 30, 3: 25, 6: 15, 144: 4, 1008: 1,
	}), now)

	assert.Equal(t, 30.0, tiers.Express.FeeRate)
	assert.Equal(t, 15.0, tiers.Standard.FeeRate)
	assert.Equal(t, 4.0, tiers.Economy.FeeRate)
	assert.Equal(t, int64(2700), tiers.Standard.EstimatedSats)
	assert.Equal(t, ExpressTarget, tiers.Express.EstimatedConfirmationBlocks)
	assert.Equal(t, "test", tiers.Source)
	assert.False(t, tiers.Defaulted)
}

func TestBuildTiers_StandardUsesNearestTargetWithinSixBlocks(t *testing.T) {
	tiers := BuildTiers(networkDomain.Mainnet, estimates(map[int]float64{
		1: 30, 2: 28, 5: 18, 10: 12, 144: 3,
	}), time.Now())

	assert.Equal(t, 18.0, tiers.Standard.FeeRate)
}

func TestBuildTiers_EconomyFallsBackToSlowestTarget(t *testing.T) {
	tiers := BuildTiers(networkDomain.Mainnet, estimates(map[int]float64{
		1: 30, 6: 15, 25: 8,
	}), time.Now())

	assert.Equal(t, 8.0, tiers.Economy.FeeRate)
}

func TestBuildTiers_Monotonic(t *testing.T) {
	tests := []struct {
		name  string
		rates map[int]float64
	}{
		{"ordered", map[int]float64{1: 50, 6: 20, 144: 5}},
		{"all equal", map[int]float64{1: 7, 6: 7, 144: 7}},
		{"inverted", map[int]float64{1: 2, 6: 10, 144: 40}},
		{"partially inverted", map[int]float64{1: 12, 6: 30, 144: 1}},
		{"single target", map[int]float64{6: 9}},
		{"fractional", map[int]float64{1: 1.5, 6: 1.01, 144: 1.2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tiers := BuildTiers(networkDomain.Mainnet, estimates(tt.rates), time.Now())
			assert.LessOrEqual(t, tiers.Economy.FeeRate, tiers.Standard.FeeRate)
			assert.LessOrEqual(t, tiers.Standard.FeeRate, tiers.Express.FeeRate)
			assert.LessOrEqual(t, tiers.Economy.EstimatedSats, tiers.Standard.EstimatedSats)
			assert.LessOrEqual(t, tiers.Standard.EstimatedSats, tiers.Express.EstimatedSats)
		})
	}
}

func TestBuildTiers_EmptyUsesDefaults(t *testing.T) {
	tiers := BuildTiers(networkDomain.Testnet, networkDomain.FeeEstimates{}, time.Now())

	assert.True(t, tiers.Defaulted)
	assert.Equal(t, 1.0, tiers.Economy.FeeRate)
	assert.Equal(t, 2.0, tiers.Standard.FeeRate)
	assert.Equal(t, 5.0, tiers.Express.FeeRate)
}

func TestDefaultTiers(t *testing.T) {
	mainnet := DefaultTiers(networkDomain.Mainnet, time.Now())
	assert.Equal(t, []float64{5, 20, 50}, []float64{
		mainnet.Economy.FeeRate, mainnet.Standard.FeeRate, mainnet.Express.FeeRate,
	})

	testnet := DefaultTiers(networkDomain.Testnet, time.Now())
	assert.Equal(t, []float64{1, 2, 5}, []float64{
		testnet.Economy.FeeRate, testnet.Standard.FeeRate, testnet.Express.FeeRate,
	})
}

func TestParseTierID(t *testing.T) {
	id, err := ParseTierID("standard")
	require.NoError(t, err)
	assert.Equal(t, Standard, id)

	_, err = ParseTierID("turbo")
	assert.Error(t, err)
}
