package esplora

import (
	"strconv"
	"time"

	"github.com/fd1az/satsend/business/network/domain"
)

// txStatus is the confirmation block shared by utxo and tx responses.
type txStatus struct {
	Confirmed   bool   `json:"confirmed"`
	BlockHeight *int64 `json:"block_height,omitempty"`
	BlockHash   string `json:"block_hash,omitempty"`
	BlockTime   *int64 `json:"block_time,omitempty"`
}

// utxoResponse is one element of GET /address/:addr/utxo.
type utxoResponse struct {
	TxID   string   `json:"txid"`
	Vout   uint32   `json:"vout"`
	Value  int64    `json:"value"`
	Status txStatus `json:"status"`
}

func (u utxoResponse) toDomain() domain.UTXO {
	return domain.UTXO{
		TxID:        u.TxID,
		Vout:        u.Vout,
		Value:       u.Value,
		Confirmed:   u.Status.Confirmed,
		BlockHeight: u.Status.BlockHeight,
	}
}

// txResponse is GET /tx/:txid.
type txResponse struct {
	TxID   string   `json:"txid"`
	Weight int64    `json:"weight"`
	Fee    int64    `json:"fee"`
	Status txStatus `json:"status"`
}

func (t txResponse) toDomain() domain.Transaction {
	tx := domain.Transaction{
		TxID:        t.TxID,
		Confirmed:   t.Status.Confirmed,
		BlockHeight: t.Status.BlockHeight,
		FeeSats:     t.Fee,
		VSize:       (t.Weight + 3) / 4,
	}
	if t.Status.BlockTime != nil {
		bt := time.Unix(*t.Status.BlockTime, 0).UTC()
		tx.BlockTime = &bt
	}
	return tx
}

// chainStats is the funded/spent summary in GET /address/:addr.
type chainStats struct {
	FundedTxoSum int64 `json:"funded_txo_sum"`
	SpentTxoSum  int64 `json:"spent_txo_sum"`
	TxCount      int64 `json:"tx_count"`
}

// addressResponse is GET /address/:addr.
type addressResponse struct {
	Address      string     `json:"address"`
	ChainStats   chainStats `json:"chain_stats"`
	MempoolStats chainStats `json:"mempool_stats"`
}

func (a addressResponse) toDomain() domain.Balance {
	return domain.Balance{
		Address:         a.Address,
		ConfirmedSats:   a.ChainStats.FundedTxoSum - a.ChainStats.SpentTxoSum,
		UnconfirmedSats: a.MempoolStats.FundedTxoSum - a.MempoolStats.SpentTxoSum,
		TxCount:         a.ChainStats.TxCount + a.MempoolStats.TxCount,
	}
}

// recommendedFees is mempool.space GET /v1/fees/recommended.
type recommendedFees struct {
	FastestFee  float64 `json:"fastestFee"`
	HalfHourFee float64 `json:"halfHourFee"`
	HourFee     float64 `json:"hourFee"`
	EconomyFee  float64 `json:"economyFee"`
	MinimumFee  float64 `json:"minimumFee"`
}

func (r recommendedFees) rates() map[int]float64 {
	out := make(map[int]float64, 5)
	add := func(target int, rate float64) {
		if rate > 0 {
			out[target] = rate
		}
	}
	add(1, r.FastestFee)
	add(3, r.HalfHourFee)
	add(6, r.HourFee)
	add(144, r.EconomyFee)
	add(1008, r.MinimumFee)
	return out
}

// feeEstimates is esplora GET /fee-estimates: target blocks to sat/vB.
type feeEstimates map[string]float64

func (f feeEstimates) rates() map[int]float64 {
	out := make(map[int]float64, len(f))
	for k, v := range f {
		target, err := strconv.Atoi(k)
		if err != nil || target <= 0 || v <= 0 {
			continue
		}
		out[target] = v
	}
	return out
}
