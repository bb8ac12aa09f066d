// Package di contains dependency injection tokens for the send context.
package di

import (
	"github.com/fd1az/satsend/business/send/app"
	"github.com/fd1az/satsend/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Pipeline = di.NewToken[*app.Pipeline]("send.Pipeline")
)

// Private dependency tokens - internal to send module
var (
	Signer = di.NewToken[app.Signer]("send:signer")
)

func GetPipeline(c di.ServiceRegistry) *app.Pipeline {
	return di.GetToken(c, Pipeline)
}

func GetSigner(c di.ServiceRegistry) app.Signer {
	return di.GetToken(c, Signer)
}
