// Package domain contains the fee tier model.
package domain

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	networkDomain "github.com/fd1az/satsend/business/network/domain"
)

// AssumedTxVBytes is the size used to estimate absolute fees before the
// transaction is built: one P2WPKH input, two outputs.
const AssumedTxVBytes = 180

// TierID names a fee tier.
type TierID string

const (
	Economy  TierID = "economy"
	Standard TierID = "standard"
	Express  TierID = "express"
	Custom   TierID = "custom"
)

// ParseTierID validates a tier name.
func ParseTierID(s string) (TierID, error) {
	switch id := TierID(s); id {
	case Economy, Standard, Express, Custom:
		return id, nil
	default:
		return "", fmt.Errorf("unknown fee tier %q", s)
	}
}

// Confirmation targets for the named tiers.
const (
	ExpressTarget  = 1
	StandardTarget = 6
	EconomyTarget  = 144
)

// Tier is a fee rate with its estimated cost for an assumed-size transaction.
type Tier struct {
	ID                          TierID
	FeeRate                     float64 // sat/vB
	EstimatedSats               int64
	EstimatedConfirmationBlocks int
}

// NewTier builds a tier for rate.
func NewTier(id TierID, rate float64, blocks int) Tier {
	return Tier{
		ID:                          id,
		FeeRate:                     rate,
		EstimatedSats:               EstimateSats(rate, AssumedTxVBytes),
		EstimatedConfirmationBlocks: blocks,
	}
}

// EstimateSats returns ceil(vbytes × rate).
func EstimateSats(rate float64, vbytes int64) int64 {
	return decimal.NewFromFloat(rate).
		Mul(decimal.NewFromInt(vbytes)).
		Ceil().
		IntPart()
}

// Tiers is the set of named tiers derived from one estimate refresh.
// Economy.FeeRate <= Standard.FeeRate <= Express.FeeRate always holds.
type Tiers struct {
	Economy    Tier
	Standard   Tier
	Express    Tier
	Source     string
	Defaulted  bool
	ComputedAt time.Time
}

// All returns the tiers from cheapest to fastest.
func (t Tiers) All() []Tier {
	return []Tier{t.Economy, t.Standard, t.Express}
}

// Get returns the named tier.
func (t Tiers) Get(id TierID) (Tier, bool) {
	switch id {
	case Economy:
		return t.Economy, true
	case Standard:
		return t.Standard, true
	case Express:
		return t.Express, true
	default:
		return Tier{}, false
	}
}

// DefaultTiers are used when no estimates are available.
func DefaultTiers(n networkDomain.Network, now time.Time) Tiers {
	economy, standard, express := 5.0, 20.0, 50.0
	if n == networkDomain.Testnet {
		economy, standard, express = 1, 2, 5
	}
	return Tiers{
		Economy:    NewTier(Economy, economy, EconomyTarget),
		Standard:   NewTier(Standard, standard, StandardTarget),
		Express:    NewTier(Express, express, ExpressTarget),
		Source:     "static-defaults",
		Defaulted:  true,
		ComputedAt: now,
	}
}

// BuildTiers buckets raw estimates into tiers. Express takes the fastest
// target, standard the slowest target within 6 blocks, economy the fastest
// target at or beyond 144 blocks. The three rates are then ordered so an
// inverted source can never yield an economy tier dearer than express.
func BuildTiers(n networkDomain.Network, est networkDomain.FeeEstimates, now time.Time) Tiers {
	targets := est.Targets()
	if len(targets) == 0 {
		return DefaultTiers(n, now)
	}

	express := est.Rates[targets[0]]

	standard := est.Rates[targets[0]]
	for _, t := range targets {
		if t > StandardTarget {
			break
		}
		standard = est.Rates[t]
	}

	economy := est.Rates[targets[len(targets)-1]]
	for _, t := range targets {
		if t >= EconomyTarget {
			economy = est.Rates[t]
			break
		}
	}

	rates := []float64{economy, standard, express}
	sort.Float64s(rates)

	return Tiers{
		Economy:    NewTier(Economy, rates[0], EconomyTarget),
		Standard:   NewTier(Standard, rates[1], StandardTarget),
		Express:    NewTier(Express, rates[2], ExpressTarget),
		Source:     est.Source,
		Defaulted:  est.Defaulted,
		ComputedAt: now,
	}
}
