// Package di contains dependency injection tokens for the fees context.
package di

import (
	"github.com/fd1az/satsend/business/fees/app"
	"github.com/fd1az/satsend/internal/di"
)

// Public service tokens - exposed to other modules
var (
	FeeService = di.NewToken[*app.Service]("fees.FeeService")
)

func GetFeeService(c di.ServiceRegistry) *app.Service {
	return di.GetToken(c, FeeService)
}
