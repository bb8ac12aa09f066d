package apperror

// Code represents a unique error code for the application
type Code string

// General error codes
const (
	// General validation
	CodeRequiredField   Code = "REQUIRED_FIELD"
	CodeInvalidInput    Code = "INVALID_INPUT"
	CodeInvalidFormat   Code = "INVALID_FORMAT"
	CodeInvalidState    Code = "INVALID_STATE"
	CodeNotFound        Code = "NOT_FOUND"
	CodeValidationError Code = "VALIDATION_ERROR"

	// Configuration
	CodeConfigurationError Code = "CONFIGURATION_ERROR"

	// External service errors
	CodeExternalServiceError Code = "EXTERNAL_SERVICE_ERROR"
	CodeServiceTimeout       Code = "SERVICE_TIMEOUT"
	CodeServiceUnavailable   Code = "SERVICE_UNAVAILABLE"
	CodeRateLimitExceeded    Code = "RATE_LIMIT_EXCEEDED"

	// System errors
	CodeInternalError Code = "INTERNAL_ERROR"
	CodeUnknownError  Code = "UNKNOWN_ERROR"
	CodeCancelled     Code = "CANCELLED"
)

// Network access error codes
const (
	CodeNetworkTimeout     Code = "NETWORK_TIMEOUT"
	CodeNetworkUnreachable Code = "NETWORK_UNREACHABLE"
	CodeHTTPError          Code = "HTTP_ERROR"
	CodeAllEndpointsFailed Code = "ALL_ENDPOINTS_FAILED"
	CodeMalformedResponse  Code = "MALFORMED_RESPONSE"
	CodePushUnavailable    Code = "PUSH_UNAVAILABLE"

	// Resilience layer
	CodeCircuitOpen Code = "CIRCUIT_OPEN"
	CodeQueueFull   Code = "QUEUE_FULL"
)

// Send pipeline error codes
const (
	CodeInvalidAddress      Code = "INVALID_ADDRESS"
	CodeInvalidAmount       Code = "INVALID_AMOUNT"
	CodeInsufficientFunds   Code = "INSUFFICIENT_FUNDS"
	CodeDustOutput          Code = "DUST_OUTPUT"
	CodeBroadcastRejected   Code = "BROADCAST_REJECTED"
	CodeBroadcastInFlight   Code = "BROADCAST_IN_FLIGHT"
	CodeSigningFailed       Code = "SIGNING_FAILED"
	CodeUnknownFeeTier      Code = "UNKNOWN_FEE_TIER"
	CodePipelineFailed      Code = "PIPELINE_FAILED"
	CodeSimulatedFailure    Code = "SIMULATED_FAILURE"
	CodeTransactionNotFound Code = "TRANSACTION_NOT_FOUND"
)
