package ratelimit

import (
	"fmt"
	"math"
)

// DefaultDomain is the config key used for domains without their own entry.
const DefaultDomain = "default"

// DomainConfig bounds the request rate towards one remote domain.
type DomainConfig struct {
	Domain            string
	RequestsPerSecond float64
	BurstLimit        int
	QueueLimit        int
}

// Profile names a set of DomainConfigs selected at startup.
type Profile string

const (
	ProfileProduction  Profile = "production"
	ProfileDevelopment Profile = "development"
	ProfileEmergency   Profile = "emergency"
)

// emergencyFactor is how much stricter emergency is than production.
const emergencyFactor = 4

var production = []DomainConfig{
	{Domain: "mempool.space", RequestsPerSecond: 2, BurstLimit: 5, QueueLimit: 25},
	{Domain: "blockstream.info", RequestsPerSecond: 1, BurstLimit: 3, QueueLimit: 25},
	{Domain: DefaultDomain, RequestsPerSecond: 1, BurstLimit: 2, QueueLimit: 10},
}

var development = []DomainConfig{
	{Domain: "mempool.space", RequestsPerSecond: 5, BurstLimit: 10, QueueLimit: 50},
	{Domain: "blockstream.info", RequestsPerSecond: 3, BurstLimit: 6, QueueLimit: 50},
	{Domain: DefaultDomain, RequestsPerSecond: 2, BurstLimit: 5, QueueLimit: 20},
}

// Configs returns the per-domain configs of p keyed by domain.
func Configs(p Profile) (map[string]DomainConfig, error) {
	var base []DomainConfig
	switch p {
	case ProfileProduction, "":
		base = production
	case ProfileDevelopment:
		base = development
	case ProfileEmergency:
		base = make([]DomainConfig, len(production))
		for i, c := range production {
			base[i] = restrict(c, emergencyFactor)
		}
	default:
		return nil, fmt.Errorf("unknown rate limit profile %q", p)
	}

	out := make(map[string]DomainConfig, len(base))
	for _, c := range base {
		out[c.Domain] = c
	}
	return out, nil
}

func restrict(c DomainConfig, factor int) DomainConfig {
	return DomainConfig{
		Domain:            c.Domain,
		RequestsPerSecond: c.RequestsPerSecond / float64(factor),
		BurstLimit:        max(1, int(math.Floor(float64(c.BurstLimit)/float64(factor)))),
		QueueLimit:        max(1, int(math.Floor(float64(c.QueueLimit)/float64(factor)))),
	}
}
