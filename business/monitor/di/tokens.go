// Package di contains dependency injection tokens for the monitor context.
package di

import (
	"github.com/fd1az/satsend/business/monitor/app"
	"github.com/fd1az/satsend/business/monitor/infra/balance"
	"github.com/fd1az/satsend/business/monitor/infra/mempoolws"
	"github.com/fd1az/satsend/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Monitor   = di.NewToken[*app.Monitor]("monitor.Monitor")
	Refresher = di.NewToken[*balance.Refresher]("monitor.Refresher")
)

// Private tokens - internal to the monitor module
var (
	Push = di.NewToken[*mempoolws.Client]("monitor.push")
)

func GetMonitor(c di.ServiceRegistry) *app.Monitor {
	return di.GetToken(c, Monitor)
}

func GetRefresher(c di.ServiceRegistry) *balance.Refresher {
	return di.GetToken(c, Refresher)
}

func GetPush(c di.ServiceRegistry) *mempoolws.Client {
	return di.GetToken(c, Push)
}
