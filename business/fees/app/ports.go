// Package app contains the fee estimation service and its port definitions.
package app

import (
	"context"

	networkDomain "github.com/fd1az/satsend/business/network/domain"
)

// EstimateSource provides raw fee estimates. GetFeeEstimates must not fail;
// it degrades to network defaults instead.
type EstimateSource interface {
	Network() networkDomain.Network
	GetFeeEstimates(ctx context.Context) networkDomain.FeeEstimates
}
