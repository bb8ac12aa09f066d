// Package domain contains the Bitcoin network value types shared by every
// context that talks to a block explorer.
package domain

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
)

// Network identifies the Bitcoin network.
type Network string

const (
	Mainnet Network = "mainnet"
	Testnet Network = "testnet"
)

// ParseNetwork validates a configured network name.
func ParseNetwork(s string) (Network, error) {
	switch Network(strings.ToLower(strings.TrimSpace(s))) {
	case Mainnet:
		return Mainnet, nil
	case Testnet:
		return Testnet, nil
	default:
		return "", fmt.Errorf("unknown bitcoin network %q", s)
	}
}

// Params returns the chain parameters used for address decoding.
func (n Network) Params() *chaincfg.Params {
	if n == Testnet {
		return &chaincfg.TestNet3Params
	}
	return &chaincfg.MainNetParams
}

// APIPrefix is the explorer REST path prefix for the network.
func (n Network) APIPrefix() string {
	if n == Testnet {
		return "/testnet/api"
	}
	return "/api"
}

// Provider names the explorer API dialect.
type Provider string

const (
	ProviderMempool Provider = "mempool" // mempool.space, esplora plus /v1 extensions
	ProviderEsplora Provider = "esplora" // blockstream.info
)

// Endpoint is one explorer API root.
type Endpoint struct {
	Name     string
	BaseURL  string
	Timeout  time.Duration
	Provider Provider
}

// Domain is the key used for rate limiting and circuit breaking.
func (e Endpoint) Domain() string {
	u, err := url.Parse(e.BaseURL)
	if err != nil || u.Host == "" {
		return e.BaseURL
	}
	return u.Host
}

// DefaultEndpoints returns mempool.space then blockstream.info for n.
func DefaultEndpoints(n Network, mempoolHost, esploraHost string, timeout time.Duration) []Endpoint {
	return []Endpoint{
		{
			Name:     "mempool.space",
			BaseURL:  strings.TrimSuffix(mempoolHost, "/") + n.APIPrefix(),
			Timeout:  timeout,
			Provider: ProviderMempool,
		},
		{
			Name:     "blockstream.info",
			BaseURL:  strings.TrimSuffix(esploraHost, "/") + n.APIPrefix(),
			Timeout:  timeout,
			Provider: ProviderEsplora,
		},
	}
}

// PushURL is the mempool.space WebSocket endpoint on host for n.
func PushURL(n Network, host string) string {
	return strings.TrimSuffix(host, "/") + n.APIPrefix() + "/v1/ws"
}
