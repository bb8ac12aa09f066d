package app

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	feesDomain "github.com/fd1az/satsend/business/fees/domain"
	networkDomain "github.com/fd1az/satsend/business/network/domain"
	"github.com/fd1az/satsend/business/send/domain"
	"github.com/fd1az/satsend/internal/apperror"
	"github.com/fd1az/satsend/internal/logger"
)

// ErrBroadcastInFlight is returned by Confirm while another Confirm on the
// same pipeline has not finished.
var ErrBroadcastInFlight = apperror.New(apperror.CodeBroadcastInFlight)

const subscriberBuffer = 32

// Pipeline drives one transaction draft from intent to broadcast. All
// methods are safe for concurrent use; at most one Prepare or Confirm runs
// at a time.
type Pipeline struct {
	gateway Gateway
	fees    FeeService
	signer  Signer
	mode    domain.ExecutionMode
	policy  domain.SelectionPolicy
	logger  logger.LoggerInterface
	tracer  trace.Tracer
	now     func() time.Time

	mu      sync.Mutex
	state   domain.State
	gen     uint64
	busy    string // "prepare" or "confirm" while an operation runs
	cancel  context.CancelFunc
	done    chan struct{} // closed when the running operation returns
	subs    map[int]chan domain.StageEvent
	nextSub int

	outcomes metric.Int64Counter
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithExecutionMode selects live or simulated signing and broadcast.
func WithExecutionMode(m domain.ExecutionMode) Option {
	return func(p *Pipeline) { p.mode = m }
}

// WithSelectionPolicy overrides the coin selection bounds.
func WithSelectionPolicy(policy domain.SelectionPolicy) Option {
	return func(p *Pipeline) { p.policy = policy }
}

// WithLogger sets the logger.
func WithLogger(l logger.LoggerInterface) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// NewPipeline creates a Pipeline in the Draft stage.
func NewPipeline(gateway Gateway, fees FeeService, signer Signer, opts ...Option) *Pipeline {
	p := &Pipeline{
		gateway: gateway,
		fees:    fees,
		signer:  signer,
		mode:    domain.Live,
		policy:  domain.DefaultSelectionPolicy(),
		logger:  logger.Nop(),
		tracer:  otel.Tracer("satsend/send"),
		now:     time.Now,
		state:   domain.State{Stage: domain.Draft},
		subs:    make(map[int]chan domain.StageEvent),
	}
	for _, opt := range opts {
		opt(p)
	}

	meter := otel.Meter("satsend/send")
	p.outcomes, _ = meter.Int64Counter("send_outcomes_total",
		metric.WithDescription("Pipeline runs by terminal stage"),
		metric.WithUnit("{transaction}"),
	)

	return p
}

// Mode returns the execution mode.
func (p *Pipeline) Mode() domain.ExecutionMode {
	return p.mode
}

// Snapshot returns a copy of the current draft.
func (p *Pipeline) Snapshot() domain.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.Clone()
}

// Subscribe returns a channel of stage transitions and a function that ends
// the subscription. Events are dropped for subscribers that fall behind.
func (p *Pipeline) Subscribe() (<-chan domain.StageEvent, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.nextSub
	p.nextSub++
	ch := make(chan domain.StageEvent, subscriberBuffer)
	p.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			delete(p.subs, id)
			close(ch)
		})
	}
}

// Cancel aborts the running Prepare or Confirm, which then returns the draft
// to Draft. It does nothing when no operation is running; use Reset to
// discard a prepared draft.
func (p *Pipeline) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
	}
}

// Reset discards the draft, including a Failed one, and returns to Draft.
// A running operation is cancelled, its results are ignored, and Reset
// returns only after it has finished, so a new operation never overlaps it.
func (p *Pipeline) Reset() {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.gen++
	p.setLocked(domain.State{Stage: domain.Draft}, nil, nil)
	done := p.done
	p.mu.Unlock()

	if done != nil {
		<-done
	}
}

// Send runs Prepare then Confirm.
func (p *Pipeline) Send(ctx context.Context, req domain.SendRequest) (domain.TransactionResult, error) {
	if _, err := p.Prepare(ctx, req); err != nil {
		return domain.TransactionResult{}, err
	}
	return p.Confirm(ctx)
}

// Prepare validates req, fetches fresh UTXOs and selects coins. On success
// the draft waits in AwaitingSignature.
func (p *Pipeline) Prepare(ctx context.Context, req domain.SendRequest) (domain.State, error) {
	opCtx, gen, err := p.begin(ctx, "prepare", func(s domain.Stage) bool {
		return s == domain.Draft || s == domain.Confirmed
	})
	if err != nil {
		return domain.State{}, err
	}
	defer p.end()

	opCtx, span := p.tracer.Start(opCtx, "send.prepare", trace.WithAttributes(
		attribute.String("mode", string(p.mode)),
		attribute.Int64("amount_sats", req.AmountSats),
	))
	defer span.End()

	if req.FeeTier == "" {
		req.FeeTier = feesDomain.Standard
	}
	if req.ChangeAddress == "" {
		req.ChangeAddress = req.SourceAddress
	}

	p.transition(gen, domain.ValidatingInputs, func(s *domain.State) {
		*s = domain.State{
			SourceAddress: req.SourceAddress,
			Recipient:     req.Recipient,
			AmountSats:    req.AmountSats,
			ChangeAddress: req.ChangeAddress,
			LastResult:    s.LastResult,
		}
	})

	utxos, err := p.validate(opCtx, req)
	if err != nil {
		return domain.State{}, p.fail(opCtx, span, gen, domain.ValidatingInputs, err)
	}

	p.transition(gen, domain.SelectingCoins, nil)

	tier, err := p.fees.Resolve(opCtx, req.FeeTier, req.CustomFeeRate)
	if err != nil {
		return domain.State{}, p.fail(opCtx, span, gen, domain.SelectingCoins, err)
	}

	sel, err := domain.SelectCoins(utxos, req.AmountSats, tier.FeeRate, p.policy)
	if err != nil {
		return domain.State{}, p.fail(opCtx, span, gen, domain.SelectingCoins, err)
	}

	p.transition(gen, domain.AwaitingSignature, func(s *domain.State) {
		s.FeeTier = tier
		s.SelectedUTXOs = sel.Selected
		s.FeeSats = sel.FeeSats
		s.ChangeSats = sel.ChangeSats
		s.DustFolded = sel.DustFolded
	})

	span.SetAttributes(
		attribute.Int("inputs", len(sel.Selected)),
		attribute.Int64("fee_sats", sel.FeeSats),
	)
	p.logger.Info(opCtx, "send prepared",
		"recipient", req.Recipient,
		"amount_sats", req.AmountSats,
		"tier", tier.ID,
		"fee_sats", sel.FeeSats,
		"inputs", len(sel.Selected),
		"change_sats", sel.ChangeSats)

	return p.Snapshot(), nil
}

func (p *Pipeline) validate(ctx context.Context, req domain.SendRequest) ([]networkDomain.UTXO, error) {
	params := p.gateway.Network().Params()

	for _, a := range []struct{ role, addr string }{
		{"recipient", req.Recipient},
		{"source", req.SourceAddress},
		{"change", req.ChangeAddress},
	} {
		addr, err := btcutil.DecodeAddress(strings.TrimSpace(a.addr), params)
		if err != nil {
			return nil, apperror.New(apperror.CodeInvalidAddress,
				apperror.WithContext(fmt.Sprintf("%s address %q", a.role, a.addr)),
				apperror.WithCause(err))
		}
		if !addr.IsForNet(params) {
			return nil, apperror.Validation(apperror.CodeInvalidAddress,
				fmt.Sprintf("%s address %q is not a %s address", a.role, a.addr, p.gateway.Network()))
		}
	}

	if req.AmountSats <= 0 {
		return nil, apperror.Validation(apperror.CodeInvalidAmount, fmt.Sprintf("amount %d sats", req.AmountSats))
	}

	utxos, err := p.gateway.GetUTXOs(ctx, req.SourceAddress)
	if err != nil {
		return nil, err
	}

	var balance int64
	for _, u := range utxos {
		balance += u.Value
	}
	if req.AmountSats > balance {
		return nil, apperror.New(apperror.CodeInsufficientFunds,
			apperror.WithContext(fmt.Sprintf("amount %d sats exceeds balance %d sats", req.AmountSats, balance)))
	}

	return utxos, nil
}

// Confirm signs and broadcasts the prepared draft. A second Confirm while the
// first is running gets ErrBroadcastInFlight and never reaches the network.
func (p *Pipeline) Confirm(ctx context.Context) (domain.TransactionResult, error) {
	opCtx, gen, err := p.begin(ctx, "confirm", func(s domain.Stage) bool {
		return s == domain.AwaitingSignature
	})
	if err != nil {
		return domain.TransactionResult{}, err
	}
	defer p.end()

	draft := p.Snapshot()

	opCtx, span := p.tracer.Start(opCtx, "send.confirm", trace.WithAttributes(
		attribute.String("mode", string(p.mode)),
		attribute.Int64("amount_sats", draft.AmountSats),
	))
	defer span.End()

	var txHex string
	if p.mode == domain.Live {
		txHex, err = p.sign(opCtx, draft)
		if err != nil {
			return domain.TransactionResult{}, p.fail(opCtx, span, gen, domain.AwaitingSignature, err)
		}
	}

	p.transition(gen, domain.Broadcasting, nil)

	var txid string
	switch p.mode {
	case domain.SimulateSuccess:
		txid = simulatedTxID(draft, p.now())
	case domain.SimulateFailure:
		err = apperror.New(apperror.CodeSimulatedFailure, apperror.WithContext("simulated broadcast failure"))
	default:
		txid, err = p.gateway.Broadcast(opCtx, txHex)
	}
	if err != nil {
		return domain.TransactionResult{}, p.fail(opCtx, span, gen, domain.Broadcasting, err)
	}

	result := domain.TransactionResult{
		TxID:        txid,
		BroadcastAt: p.now(),
		AmountSats:  draft.AmountSats,
		FeeSats:     draft.FeeSats,
		Simulated:   p.mode != domain.Live,
	}

	p.mu.Lock()
	if p.gen == gen {
		p.setLocked(domain.State{Stage: domain.Confirmed, LastResult: &result}, nil, &result)
	}
	p.mu.Unlock()

	p.outcomes.Add(opCtx, 1, metric.WithAttributes(
		attribute.String("stage", string(domain.Confirmed)),
		attribute.String("mode", string(p.mode)),
	))
	span.SetAttributes(attribute.String("txid", txid))
	span.SetStatus(codes.Ok, "")
	p.logger.Info(opCtx, "transaction broadcast", "txid", txid, "mode", p.mode)

	return result, nil
}

func (p *Pipeline) sign(ctx context.Context, draft domain.State) (string, error) {
	req := SignRequest{
		Network:       p.gateway.Network(),
		Recipient:     draft.Recipient,
		AmountSats:    draft.AmountSats,
		FeeRate:       draft.FeeTier.FeeRate,
		FeeSats:       draft.FeeSats,
		ChangeAddress: draft.ChangeAddress,
		ChangeSats:    draft.ChangeSats,
	}
	for _, u := range draft.SelectedUTXOs {
		req.UTXOs = append(req.UTXOs, SignInput{TxID: u.TxID, Vout: u.Vout, Value: u.Value})
	}

	txHex, err := p.signer.Sign(ctx, req)
	if err != nil {
		if ctx.Err() != nil || apperror.HasCode(err, apperror.CodeSigningFailed) {
			return "", err
		}
		return "", apperror.New(apperror.CodeSigningFailed, apperror.WithCause(err))
	}

	txHex = strings.TrimSpace(txHex)
	if err := checkSigned(txHex, draft.SelectedUTXOs); err != nil {
		return "", err
	}
	return txHex, nil
}

// checkSigned decodes the signed transaction and verifies that it spends
// only the selected outpoints.
func checkSigned(txHex string, selected []networkDomain.UTXO) error {
	raw, err := hex.DecodeString(txHex)
	if err != nil {
		return apperror.New(apperror.CodeSigningFailed,
			apperror.WithContext("signer returned invalid hex"), apperror.WithCause(err))
	}

	var tx wire.MsgTx
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return apperror.New(apperror.CodeSigningFailed,
			apperror.WithContext("signer returned an undecodable transaction"), apperror.WithCause(err))
	}

	allowed := make(map[string]struct{}, len(selected))
	for _, u := range selected {
		allowed[u.Outpoint()] = struct{}{}
	}
	for _, in := range tx.TxIn {
		if _, ok := allowed[in.PreviousOutPoint.String()]; !ok {
			return apperror.New(apperror.CodeSigningFailed,
				apperror.WithContext("signed transaction spends unselected input "+in.PreviousOutPoint.String()))
		}
	}
	return nil
}

func simulatedTxID(draft domain.State, at time.Time) string {
	seed := fmt.Sprintf("%s|%d|%d|%d", draft.Recipient, draft.AmountSats, draft.FeeSats, at.UnixNano())
	return chainhash.DoubleHashH([]byte(seed)).String()
}

// begin claims the pipeline for one operation.
func (p *Pipeline) begin(ctx context.Context, op string, allowed func(domain.Stage) bool) (context.Context, uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.busy != "" {
		if op == "confirm" && p.busy == "confirm" {
			return nil, 0, ErrBroadcastInFlight
		}
		return nil, 0, apperror.New(apperror.CodeInvalidState,
			apperror.WithContext(p.busy+" in progress"))
	}
	if !allowed(p.state.Stage) {
		return nil, 0, apperror.New(apperror.CodeInvalidState,
			apperror.WithContext(fmt.Sprintf("cannot %s from stage %s", op, p.state.Stage)))
	}

	opCtx, cancel := context.WithCancel(ctx)
	p.gen++
	p.busy = op
	p.cancel = cancel
	p.done = make(chan struct{})
	return opCtx, p.gen, nil
}

// end releases the operation slot. Operations are exclusive, so the slot is
// released even when Reset superseded the operation.
func (p *Pipeline) end() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	if p.done != nil {
		close(p.done)
		p.done = nil
	}
	p.busy = ""
}

// transition moves to stage unless the operation was superseded by Reset.
func (p *Pipeline) transition(gen uint64, to domain.Stage, mutate func(*domain.State)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gen != gen {
		return
	}
	next := p.state.Clone()
	if mutate != nil {
		mutate(&next)
	}
	next.Stage = to
	p.setLocked(next, nil, nil)
}

// fail records err against stage. A cancelled operation returns the draft to
// Draft instead of Failed.
func (p *Pipeline) fail(ctx context.Context, span trace.Span, gen uint64, stage domain.Stage, err error) error {
	if ctx.Err() != nil {
		if stage == domain.Broadcasting {
			p.logger.Warn(ctx, "broadcast cancelled, the transaction may still propagate", "error", err)
		}
		if !apperror.HasCode(err, apperror.CodeCancelled) {
			err = apperror.New(apperror.CodeCancelled, apperror.WithContext(string(stage)), apperror.WithCause(err))
		}
		p.mu.Lock()
		if p.gen == gen {
			p.setLocked(domain.State{Stage: domain.Draft, LastResult: p.state.LastResult}, nil, nil)
		}
		p.mu.Unlock()
		span.RecordError(err)
		span.SetStatus(codes.Error, "cancelled")
		return err
	}

	stageErr := domain.Classify(stage, err)

	p.mu.Lock()
	if p.gen == gen {
		next := p.state.Clone()
		next.Stage = domain.Failed
		next.LastError = stageErr
		p.setLocked(next, stageErr, nil)
	}
	p.mu.Unlock()

	p.outcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("stage", string(domain.Failed)),
		attribute.String("mode", string(p.mode)),
		attribute.String("category", string(stageErr.Category)),
	))
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	p.logger.Warn(ctx, "send failed",
		"stage", stage,
		"kind", stageErr.Kind,
		"category", stageErr.Category,
		"error", err)

	return stageErr
}

// setLocked replaces the state and notifies subscribers. p.mu must be held.
func (p *Pipeline) setLocked(next domain.State, stageErr *domain.StageError, result *domain.TransactionResult) {
	ev := domain.StageEvent{
		From:   p.state.Stage,
		To:     next.Stage,
		At:     p.now(),
		Err:    stageErr,
		Result: result,
	}
	p.state = next

	for _, ch := range p.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
