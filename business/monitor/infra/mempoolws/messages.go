package mempoolws

import "encoding/json"

// trackRequest subscribes to transactions touching any of the addresses.
// An empty list clears the subscription.
type trackRequest struct {
	TrackAddresses []string `json:"track-addresses"`
}

// addressActivity is one address's entry in a multi-address push.
type addressActivity struct {
	Mempool   []json.RawMessage `json:"mempool"`
	Confirmed []json.RawMessage `json:"confirmed"`
	Removed   []json.RawMessage `json:"removed"`
}

func (a addressActivity) empty() bool {
	return len(a.Mempool) == 0 && len(a.Confirmed) == 0 && len(a.Removed) == 0
}

// pushMessage is the subset of mempool.space push frames the tracker
// understands. Other keys (blocks, stats, conversions) are ignored.
type pushMessage struct {
	MultiAddress       map[string]addressActivity `json:"multi-address-transactions"`
	AddressTxs         []json.RawMessage          `json:"address-transactions"`
	BlockTxs           []json.RawMessage          `json:"block-transactions"`
	TrackAddressesResp json.RawMessage            `json:"track-addresses"`
	Error              string                     `json:"track-addresses-error"`
}
