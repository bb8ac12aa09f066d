package apperror

// messages maps error codes to human-readable messages
var messages = map[Code]string{
	// General validation
	CodeRequiredField:   "Required field is missing",
	CodeInvalidInput:    "Invalid input provided",
	CodeInvalidFormat:   "Invalid data format",
	CodeInvalidState:    "Invalid state for this operation",
	CodeNotFound:        "Resource not found",
	CodeValidationError: "Validation error",

	// Configuration
	CodeConfigurationError: "Configuration error",

	// External service errors
	CodeExternalServiceError: "External service error",
	CodeServiceTimeout:       "Service request timeout",
	CodeServiceUnavailable:   "Service temporarily unavailable",
	CodeRateLimitExceeded:    "Rate limit exceeded",

	// System errors
	CodeInternalError: "Internal server error",
	CodeUnknownError:  "An unknown error occurred",
	CodeCancelled:     "Operation cancelled",

	// Network access
	CodeNetworkTimeout:     "Network request timed out",
	CodeNetworkUnreachable: "Network endpoint unreachable",
	CodeHTTPError:          "Unexpected HTTP status from endpoint",
	CodeAllEndpointsFailed: "All network endpoints failed",
	CodeMalformedResponse:  "Malformed response from endpoint",

	// Resilience layer
	CodeCircuitOpen: "Circuit breaker is open",
	CodeQueueFull:   "Request queue is full",

	// Send pipeline
	CodeInvalidAddress:      "Invalid Bitcoin address",
	CodeInvalidAmount:       "Invalid amount",
	CodeInsufficientFunds:   "Insufficient funds",
	CodeDustOutput:          "Output is below the dust threshold",
	CodeBroadcastRejected:   "Transaction rejected by the network",
	CodeBroadcastInFlight:   "A broadcast is already in progress",
	CodeSigningFailed:       "Failed to sign transaction",
	CodeUnknownFeeTier:      "Unknown fee tier",
	CodePipelineFailed:      "Send pipeline is in a failed state",
	CodeSimulatedFailure:    "Simulated failure",
	CodeTransactionNotFound: "Transaction not found",
}
