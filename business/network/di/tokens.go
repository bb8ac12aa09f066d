// Package di contains dependency injection tokens for the network context.
package di

import (
	"github.com/fd1az/satsend/business/network/app"
	"github.com/fd1az/satsend/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Gateway = di.NewToken[*app.Gateway]("network.Gateway")
)

// Private dependency tokens - internal to network module
var (
	Explorers = di.NewToken[[]app.Explorer]("network:explorers")
)

func GetGateway(c di.ServiceRegistry) *app.Gateway {
	return di.GetToken(c, Gateway)
}

func GetExplorers(c di.ServiceRegistry) []app.Explorer {
	return di.GetToken(c, Explorers)
}
