package domain

import (
	"regexp"
	"sort"
	"strconv"
	"time"
)

// UTXO is an unspent output. Values are in satoshis.
type UTXO struct {
	TxID        string
	Vout        uint32
	Value       int64
	Confirmed   bool
	BlockHeight *int64
}

// Outpoint returns txid:vout.
func (u UTXO) Outpoint() string {
	return u.TxID + ":" + strconv.FormatUint(uint64(u.Vout), 10)
}

// FeeEstimates maps a confirmation target in blocks to a fee rate in sat/vB.
type FeeEstimates struct {
	Rates     map[int]float64
	Source    string
	Defaulted bool
	FetchedAt time.Time
}

// Targets returns the confirmation targets in ascending order.
func (f FeeEstimates) Targets() []int {
	out := make([]int, 0, len(f.Rates))
	for t := range f.Rates {
		out = append(out, t)
	}
	sort.Ints(out)
	return out
}

// DefaultFeeEstimates is used when no endpoint can be reached.
func DefaultFeeEstimates(n Network) FeeEstimates {
	rates := map[int]float64{1: 50, 6: 20, 144: 5}
	if n == Testnet {
		rates = map[int]float64{1: 5, 6: 2, 144: 1}
	}
	return FeeEstimates{
		Rates:     rates,
		Source:    "static-defaults",
		Defaulted: true,
		FetchedAt: time.Now(),
	}
}

// Transaction is the confirmation view of a broadcast transaction.
type Transaction struct {
	TxID        string
	Confirmed   bool
	BlockHeight *int64
	BlockTime   *time.Time
	FeeSats     int64
	VSize       int64
}

// Balance is an address balance split by confirmation.
type Balance struct {
	Address         string
	ConfirmedSats   int64
	UnconfirmedSats int64
	TxCount         int64
}

// TotalSats is confirmed plus unconfirmed.
func (b Balance) TotalSats() int64 {
	return b.ConfirmedSats + b.UnconfirmedSats
}

var txidPattern = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)

// IsTxID reports whether s looks like a transaction id.
func IsTxID(s string) bool {
	return txidPattern.MatchString(s)
}
