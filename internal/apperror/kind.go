package apperror

import (
	"context"
	"errors"
	"net"
	"net/http"
	"syscall"
)

// Kind is the coarse classification used for retry decisions and user-facing categories.
type Kind string

const (
	KindNetworkTimeout     Kind = "NetworkTimeout"
	KindNetworkUnreachable Kind = "NetworkUnreachable"
	KindHTTPError          Kind = "HttpError"
	KindCircuitOpen        Kind = "CircuitOpen"
	KindQueueFull          Kind = "QueueFull"
	KindInvalidAddress     Kind = "InvalidAddress"
	KindInsufficientFunds  Kind = "InsufficientFunds"
	KindDustOutput         Kind = "DustOutput"
	KindBroadcastRejected  Kind = "BroadcastRejected"
	KindSigningFailed      Kind = "SigningFailed"
	KindUnknown            Kind = "Unknown"
)

// Category is what the user gets to see.
type Category string

const (
	CategoryValidation Category = "validation"
	CategoryNetwork    Category = "network"
)

var codeKinds = map[Code]Kind{
	CodeNetworkTimeout:     KindNetworkTimeout,
	CodeServiceTimeout:     KindNetworkTimeout,
	CodeNetworkUnreachable: KindNetworkUnreachable,
	CodeServiceUnavailable: KindNetworkUnreachable,
	CodeAllEndpointsFailed: KindNetworkUnreachable,
	CodeHTTPError:          KindHTTPError,
	CodeRateLimitExceeded:  KindHTTPError,
	CodeCircuitOpen:        KindCircuitOpen,
	CodeQueueFull:          KindQueueFull,
	CodeInvalidAddress:     KindInvalidAddress,
	CodeInsufficientFunds:  KindInsufficientFunds,
	CodeDustOutput:         KindDustOutput,
	CodeBroadcastRejected:  KindBroadcastRejected,
	CodeSigningFailed:      KindSigningFailed,
}

// Kind returns the classification of the error code.
func (e *AppError) Kind() Kind {
	if k, ok := codeKinds[e.Code]; ok {
		return k
	}
	return KindUnknown
}

// KindOf classifies any error, including raw transport errors.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		if k := appErr.Kind(); k != KindUnknown {
			return k
		}
		if appErr.cause != nil {
			return KindOf(appErr.cause)
		}
		return KindUnknown
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindNetworkTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindNetworkTimeout
	}

	var opErr *net.OpError
	var dnsErr *net.DNSError
	if errors.As(err, &opErr) || errors.As(err, &dnsErr) ||
		errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return KindNetworkUnreachable
	}

	return KindUnknown
}

// UpstreamStatus returns the remote HTTP status carried by err, or 0.
func UpstreamStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Upstream
	}
	return 0
}

// IsRetryable reports whether err is transient: timeouts, unreachable endpoints,
// 5xx and 429 responses. Cancellation is never retryable.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	switch KindOf(err) {
	case KindNetworkTimeout, KindNetworkUnreachable:
		return true
	case KindHTTPError:
		status := UpstreamStatus(err)
		return status == http.StatusTooManyRequests || status >= 500
	default:
		return false
	}
}

// CategoryOf maps an error to the category shown to the user.
func CategoryOf(err error) Category {
	switch KindOf(err) {
	case KindInvalidAddress, KindInsufficientFunds, KindDustOutput:
		return CategoryValidation
	}
	switch GetCode(err) {
	case CodeInvalidAmount, CodeInvalidInput, CodeRequiredField, CodeUnknownFeeTier, CodeValidationError:
		return CategoryValidation
	}
	return CategoryNetwork
}
