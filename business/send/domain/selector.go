package domain

import (
	"fmt"
	"sort"

	feesDomain "github.com/fd1az/satsend/business/fees/domain"
	networkDomain "github.com/fd1az/satsend/business/network/domain"
	"github.com/fd1az/satsend/internal/apperror"
)

// Size model for P2WPKH spends: the first input plus two outputs is 180 vB,
// each further input adds 68 vB.
const (
	BaseTxVBytes  = feesDomain.AssumedTxVBytes
	InputVBytes   = 68
	DustThreshold = 546
)

// SelectionPolicy bounds coin selection.
type SelectionPolicy struct {
	MaxInputs     int
	DustThreshold int64
}

// DefaultSelectionPolicy allows 100 inputs and uses the 546 sat dust limit.
func DefaultSelectionPolicy() SelectionPolicy {
	return SelectionPolicy{MaxInputs: 100, DustThreshold: DustThreshold}
}

// Selection is the outcome of SelectCoins.
type Selection struct {
	Selected   []networkDomain.UTXO
	TotalSats  int64
	FeeSats    int64
	ChangeSats int64
	DustFolded bool // change below dust was added to the fee
}

// EstimateVBytes returns the size of a transaction spending n inputs.
func EstimateVBytes(n int) int64 {
	if n < 1 {
		n = 1
	}
	return BaseTxVBytes + InputVBytes*int64(n-1)
}

// EstimateFee returns ceil(vsize(n) × rate).
func EstimateFee(n int, rate float64) int64 {
	return feesDomain.EstimateSats(rate, EstimateVBytes(n))
}

// OrderCoins returns utxos confirmed first, then largest value first. Ties
// fall back to the outpoint so the order is deterministic.
func OrderCoins(utxos []networkDomain.UTXO) []networkDomain.UTXO {
	out := append([]networkDomain.UTXO(nil), utxos...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Confirmed != b.Confirmed {
			return a.Confirmed
		}
		if a.Value != b.Value {
			return a.Value > b.Value
		}
		return a.Outpoint() < b.Outpoint()
	})
	return out
}

// SelectCoins picks inputs covering amount plus the fee for the inputs
// picked so far. Positive change below the dust threshold is folded into the
// fee instead of creating an output.
func SelectCoins(utxos []networkDomain.UTXO, amount int64, feeRate float64, policy SelectionPolicy) (Selection, error) {
	if policy.MaxInputs <= 0 {
		policy.MaxInputs = DefaultSelectionPolicy().MaxInputs
	}
	if policy.DustThreshold <= 0 {
		policy.DustThreshold = DustThreshold
	}

	if amount <= 0 {
		return Selection{}, apperror.Validation(apperror.CodeInvalidAmount, fmt.Sprintf("amount %d sats", amount))
	}
	if amount < policy.DustThreshold {
		return Selection{}, apperror.Validation(apperror.CodeDustOutput,
			fmt.Sprintf("amount %d sats is below the %d sat dust threshold", amount, policy.DustThreshold))
	}
	if feeRate <= 0 {
		return Selection{}, apperror.Validation(apperror.CodeInvalidInput, fmt.Sprintf("fee rate %v sat/vB", feeRate))
	}

	var (
		sel Selection
		fee int64
	)
	for _, u := range OrderCoins(utxos) {
		if u.Value <= 0 {
			continue
		}
		if len(sel.Selected) == policy.MaxInputs {
			return Selection{}, apperror.New(apperror.CodeInsufficientFunds,
				apperror.WithContext(fmt.Sprintf("target not reached within %d inputs", policy.MaxInputs)))
		}

		sel.Selected = append(sel.Selected, u)
		sel.TotalSats += u.Value
		fee = EstimateFee(len(sel.Selected), feeRate)

		if sel.TotalSats >= amount+fee {
			sel.FeeSats = fee
			sel.ChangeSats = sel.TotalSats - amount - fee
			if sel.ChangeSats > 0 && sel.ChangeSats < policy.DustThreshold {
				sel.FeeSats += sel.ChangeSats
				sel.ChangeSats = 0
				sel.DustFolded = true
			}
			return sel, nil
		}
	}

	return Selection{}, apperror.New(apperror.CodeInsufficientFunds,
		apperror.WithContext(fmt.Sprintf("have %d sats, need %d plus fee", sel.TotalSats, amount)))
}
