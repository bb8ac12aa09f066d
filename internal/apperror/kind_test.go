package apperror

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"deadline", context.DeadlineExceeded, true},
		{"cancelled", context.Canceled, false},
		{"dial_refused", &net.OpError{Op: "dial", Err: errors.New("connection refused")}, true},
		{"http_503", HTTP("mempool.space", 503, "busy"), true},
		{"http_500", HTTP("mempool.space", 500, ""), true},
		{"http_429", HTTP("mempool.space", 429, "slow down"), true},
		{"http_400", HTTP("mempool.space", 400, "bad request"), false},
		{"http_404", HTTP("mempool.space", 404, ""), false},
		{"invalid_address", New(CodeInvalidAddress), false},
		{"insufficient_funds", New(CodeInsufficientFunds), false},
		{"circuit_open", New(CodeCircuitOpen), false},
		{"wrapped_timeout", New(CodeNetworkTimeout, WithCause(context.DeadlineExceeded)), true},
		{"plain", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindHTTPError, KindOf(HTTP("blockstream.info", 502, "")))
	assert.Equal(t, KindHTTPError, KindOf(HTTP("blockstream.info", 429, "")))
	assert.Equal(t, KindQueueFull, KindOf(New(CodeQueueFull)))
	assert.Equal(t, KindNetworkTimeout, KindOf(fmt.Errorf("attempt: %w", context.DeadlineExceeded)))
	assert.Equal(t, KindNetworkTimeout, KindOf(New(CodeInternalError, WithCause(context.DeadlineExceeded))))
	assert.Equal(t, KindUnknown, KindOf(errors.New("boom")))
}

func TestCategoryOf(t *testing.T) {
	assert.Equal(t, CategoryValidation, CategoryOf(New(CodeInvalidAddress)))
	assert.Equal(t, CategoryValidation, CategoryOf(New(CodeInsufficientFunds)))
	assert.Equal(t, CategoryValidation, CategoryOf(New(CodeDustOutput)))
	assert.Equal(t, CategoryValidation, CategoryOf(New(CodeInvalidAmount)))
	assert.Equal(t, CategoryNetwork, CategoryOf(New(CodeCircuitOpen)))
	assert.Equal(t, CategoryNetwork, CategoryOf(HTTP("mempool.space", 503, "")))
	assert.Equal(t, CategoryNetwork, CategoryOf(New(CodeSigningFailed)))
}

func TestHasCode(t *testing.T) {
	err := fmt.Errorf("select: %w", New(CodeInsufficientFunds, WithContext("need 2800")))
	assert.True(t, HasCode(err, CodeInsufficientFunds))
	assert.False(t, HasCode(err, CodeDustOutput))
	assert.Equal(t, CodeInsufficientFunds, GetCode(err))
}
