// Package domain contains the send pipeline state model and coin selection.
package domain

import (
	"time"

	feesDomain "github.com/fd1az/satsend/business/fees/domain"
	networkDomain "github.com/fd1az/satsend/business/network/domain"
	"github.com/fd1az/satsend/internal/apperror"
)

// Stage is a pipeline state.
type Stage string

const (
	Draft             Stage = "draft"
	ValidatingInputs  Stage = "validating_inputs"
	SelectingCoins    Stage = "selecting_coins"
	AwaitingSignature Stage = "awaiting_signature"
	Broadcasting      Stage = "broadcasting"
	Confirmed         Stage = "confirmed"
	Failed            Stage = "failed"
)

// Busy reports whether the stage belongs to an operation in progress.
func (s Stage) Busy() bool {
	switch s {
	case ValidatingInputs, SelectingCoins, Broadcasting:
		return true
	}
	return false
}

// ExecutionMode selects whether signing and broadcast are real.
type ExecutionMode string

const (
	Live            ExecutionMode = "live"
	SimulateSuccess ExecutionMode = "simulate_success"
	SimulateFailure ExecutionMode = "simulate_failure"
)

// ParseExecutionMode validates a configured mode. Empty means Live.
func ParseExecutionMode(s string) (ExecutionMode, error) {
	switch m := ExecutionMode(s); m {
	case "":
		return Live, nil
	case Live, SimulateSuccess, SimulateFailure:
		return m, nil
	default:
		return "", apperror.Validation(apperror.CodeInvalidInput, "execution mode "+s)
	}
}

// SendRequest is a user's send intent.
type SendRequest struct {
	SourceAddress string
	Recipient     string
	AmountSats    int64
	FeeTier       feesDomain.TierID
	CustomFeeRate float64 // sat/vB, used when FeeTier is custom
	ChangeAddress string  // defaults to SourceAddress
}

// State is the transaction draft owned by one pipeline.
type State struct {
	SourceAddress string
	Recipient     string
	AmountSats    int64
	FeeTier       feesDomain.Tier
	SelectedUTXOs []networkDomain.UTXO
	ChangeAddress string
	ChangeSats    int64
	FeeSats       int64
	DustFolded    bool
	Stage         Stage
	LastError     *StageError
	LastResult    *TransactionResult
}

// SelectedSats sums the selected inputs.
func (s State) SelectedSats() int64 {
	var sum int64
	for _, u := range s.SelectedUTXOs {
		sum += u.Value
	}
	return sum
}

// Clone returns a deep copy safe to hand to observers.
func (s State) Clone() State {
	out := s
	if s.SelectedUTXOs != nil {
		out.SelectedUTXOs = append([]networkDomain.UTXO(nil), s.SelectedUTXOs...)
	}
	if s.LastError != nil {
		e := *s.LastError
		out.LastError = &e
	}
	if s.LastResult != nil {
		r := *s.LastResult
		out.LastResult = &r
	}
	return out
}

// TransactionResult is the terminal success artifact.
type TransactionResult struct {
	TxID        string
	BroadcastAt time.Time
	AmountSats  int64
	FeeSats     int64
	Simulated   bool
}

// StageEvent is published on every stage transition.
type StageEvent struct {
	From   Stage
	To     Stage
	At     time.Time
	Err    *StageError
	Result *TransactionResult
}

// StageError is a classified failure, recording the stage it happened in.
type StageError struct {
	Stage    Stage
	Kind     apperror.Kind
	Category apperror.Category
	Code     apperror.Code
	Err      error
}

// Classify wraps err with its kind and user-facing category.
func Classify(stage Stage, err error) *StageError {
	return &StageError{
		Stage:    stage,
		Kind:     apperror.KindOf(err),
		Category: apperror.CategoryOf(err),
		Code:     apperror.GetCode(err),
		Err:      err,
	}
}

func (e *StageError) Error() string {
	return string(e.Stage) + ": " + e.Err.Error()
}

func (e *StageError) Unwrap() error {
	return e.Err
}
