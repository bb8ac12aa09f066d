package app

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	feesDomain "github.com/fd1az/satsend/business/fees/domain"
	networkDomain "github.com/fd1az/satsend/business/network/domain"
	"github.com/fd1az/satsend/business/send/domain"
	"github.com/fd1az/satsend/internal/apperror"
)

const (
	walletAddress  = "tb1qunjkws5z3jxgh268c840kytl5622fwzf35k068"
	otherAddress   = "tb1qw508d6qejxtdg4y5r3zarvary0c5xw7kxpjzsx"
	mainnetAddress = "bc1qar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq"
	fundingTxID    = "4a5e1e4baab89f3a32518a88c31bc87f618f76673e2cc77ab2127b7afdeda33b"
	broadcastTxID  = "0e3e2357e806b6cdb1f70b54c3a3a17b6714ee1f0e68bebb44a74b1efd512098"
)

type fakeGateway struct {
	utxos        []networkDomain.UTXO
	utxoErr      error
	blockUTXOs   bool
	broadcastErr error
	gate         chan struct{}
	drain        chan struct{} // a cancelled broadcast returns only once closed

	mu         sync.Mutex
	broadcasts int
	active     int
	maxActive  int
	lastHex    string
}

func (g *fakeGateway) Network() networkDomain.Network { return networkDomain.Testnet }

func (g *fakeGateway) GetUTXOs(ctx context.Context, _ string) ([]networkDomain.UTXO, error) {
	if g.blockUTXOs {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return g.utxos, g.utxoErr
}

func (g *fakeGateway) Broadcast(ctx context.Context, txHex string) (string, error) {
	g.mu.Lock()
	g.broadcasts++
	g.active++
	g.maxActive = max(g.maxActive, g.active)
	g.lastHex = txHex
	g.mu.Unlock()
	defer func() {
		g.mu.Lock()
		g.active--
		g.mu.Unlock()
	}()

	if g.gate != nil {
		select {
		case <-g.gate:
		case <-ctx.Done():
			if g.drain != nil {
				<-g.drain
			}
			return "", ctx.Err()
		}
	}
	if g.broadcastErr != nil {
		return "", g.broadcastErr
	}
	return broadcastTxID, nil
}

func (g *fakeGateway) peakBroadcasts() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.maxActive
}

func (g *fakeGateway) broadcastCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.broadcasts
}

type fakeFees struct{}

func (fakeFees) Resolve(_ context.Context, id feesDomain.TierID, custom float64) (feesDomain.Tier, error) {
	switch id {
	case feesDomain.Economy:
		return feesDomain.NewTier(id, 2, feesDomain.EconomyTarget), nil
	case feesDomain.Standard:
		return feesDomain.NewTier(id, 10, feesDomain.StandardTarget), nil
	case feesDomain.Express:
		return feesDomain.NewTier(id, 25, feesDomain.ExpressTarget), nil
	case feesDomain.Custom:
		return feesDomain.NewTier(id, custom, 0), nil
	}
	return feesDomain.Tier{}, apperror.Validation(apperror.CodeUnknownFeeTier, string(id))
}

type fakeSigner struct {
	calls atomic.Int32
	err   error
	extra bool // spend an input that was not selected
}

func (s *fakeSigner) Sign(_ context.Context, req SignRequest) (string, error) {
	s.calls.Add(1)
	if s.err != nil {
		return "", s.err
	}

	tx := wire.NewMsgTx(2)
	for _, in := range req.UTXOs {
		h, err := chainhash.NewHashFromStr(in.TxID)
		if err != nil {
			return "", err
		}
		tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(h, in.Vout), nil, nil))
	}
	if s.extra {
		tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&chainhash.Hash{1}, 7), nil, nil))
	}
	tx.AddTxOut(wire.NewTxOut(req.AmountSats, append([]byte{0x00, 0x14}, make([]byte, 20)...)))

	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf.Bytes()), nil
}

func walletUTXOs() []networkDomain.UTXO {
	return []networkDomain.UTXO{
		{TxID: fundingTxID, Vout: 0, Value: 2000, Confirmed: true},
		{TxID: fundingTxID, Vout: 1, Value: 1500, Confirmed: true},
		{TxID: fundingTxID, Vout: 2, Value: 50000, Confirmed: false},
	}
}

func sendRequest() domain.SendRequest {
	return domain.SendRequest{
		SourceAddress: walletAddress,
		Recipient:     walletAddress,
		AmountSats:    1000,
		FeeTier:       feesDomain.Standard,
	}
}

func drain(ch <-chan domain.StageEvent) []domain.Stage {
	var stages []domain.Stage
	for {
		select {
		case ev := <-ch:
			stages = append(stages, ev.To)
		default:
			return stages
		}
	}
}

func TestPipeline_PrepareReachesAwaitingSignature(t *testing.T) {
	gw := &fakeGateway{utxos: walletUTXOs()}
	p := NewPipeline(gw, fakeFees{}, &fakeSigner{})
	events, unsubscribe := p.Subscribe()
	defer unsubscribe()

	state, err := p.Prepare(context.Background(), sendRequest())

	require.NoError(t, err)
	assert.Equal(t, domain.AwaitingSignature, state.Stage)
	assert.GreaterOrEqual(t, state.SelectedSats(), int64(2800))
	assert.GreaterOrEqual(t, state.SelectedSats(), state.AmountSats+state.FeeSats)
	assert.Equal(t, 10.0, state.FeeTier.FeeRate)
	assert.Equal(t, walletAddress, state.ChangeAddress)
	assert.Equal(t, []domain.Stage{
		domain.ValidatingInputs,
		domain.SelectingCoins,
		domain.AwaitingSignature,
	}, drain(events))
}

func TestPipeline_SendConfirms(t *testing.T) {
	gw := &fakeGateway{utxos: walletUTXOs()}
	signer := &fakeSigner{}
	p := NewPipeline(gw, fakeFees{}, signer)

	result, err := p.Send(context.Background(), sendRequest())

	require.NoError(t, err)
	assert.Equal(t, broadcastTxID, result.TxID)
	assert.False(t, result.Simulated)
	assert.Equal(t, int32(1), signer.calls.Load())
	assert.Equal(t, 1, gw.broadcastCount())

	snap := p.Snapshot()
	assert.Equal(t, domain.Confirmed, snap.Stage)
	assert.Empty(t, snap.SelectedUTXOs)
	require.NotNil(t, snap.LastResult)
	assert.Equal(t, broadcastTxID, snap.LastResult.TxID)

	// a confirmed pipeline accepts the next send
	_, err = p.Prepare(context.Background(), sendRequest())
	require.NoError(t, err)
}

func TestPipeline_ConcurrentConfirmBroadcastsOnce(t *testing.T) {
	gw := &fakeGateway{utxos: walletUTXOs(), gate: make(chan struct{})}
	p := NewPipeline(gw, fakeFees{}, &fakeSigner{})

	_, err := p.Prepare(context.Background(), sendRequest())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := p.Confirm(context.Background())
		done <- err
	}()

	require.Eventually(t, func() bool {
		return p.Snapshot().Stage == domain.Broadcasting
	}, time.Second, time.Millisecond)

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Confirm(context.Background())
			assert.ErrorIs(t, err, ErrBroadcastInFlight)
		}()
	}
	wg.Wait()

	close(gw.gate)
	require.NoError(t, <-done)
	assert.Equal(t, 1, gw.broadcastCount())
	assert.Equal(t, domain.Confirmed, p.Snapshot().Stage)
}

func TestPipeline_InvalidAddressFailsUntilReset(t *testing.T) {
	p := NewPipeline(&fakeGateway{utxos: walletUTXOs()}, fakeFees{}, &fakeSigner{})

	req := sendRequest()
	req.Recipient = mainnetAddress
	_, err := p.Prepare(context.Background(), req)

	require.Error(t, err)
	var stageErr *domain.StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, domain.ValidatingInputs, stageErr.Stage)
	assert.Equal(t, apperror.KindInvalidAddress, stageErr.Kind)
	assert.Equal(t, apperror.CategoryValidation, stageErr.Category)

	snap := p.Snapshot()
	assert.Equal(t, domain.Failed, snap.Stage)
	require.NotNil(t, snap.LastError)
	assert.Equal(t, apperror.KindInvalidAddress, snap.LastError.Kind)

	_, err = p.Prepare(context.Background(), sendRequest())
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidState))

	p.Reset()
	assert.Equal(t, domain.Draft, p.Snapshot().Stage)

	_, err = p.Prepare(context.Background(), sendRequest())
	require.NoError(t, err)
}

func TestPipeline_ValidationFailures(t *testing.T) {
	tests := []struct {
		name string
		req  func(r *domain.SendRequest)
		utxo []networkDomain.UTXO
		code apperror.Code
	}{
		{"garbage recipient", func(r *domain.SendRequest) { r.Recipient = "not-an-address" }, walletUTXOs(), apperror.CodeInvalidAddress},
		{"zero amount", func(r *domain.SendRequest) { r.AmountSats = 0 }, walletUTXOs(), apperror.CodeInvalidAmount},
		{"exceeds balance", func(r *domain.SendRequest) { r.AmountSats = 60000 }, walletUTXOs(), apperror.CodeInsufficientFunds},
		{"fee exceeds balance", func(r *domain.SendRequest) { r.AmountSats = 1000 }, []networkDomain.UTXO{
			{TxID: fundingTxID, Value: 2500, Confirmed: true},
		}, apperror.CodeInsufficientFunds},
		{"dust payment", func(r *domain.SendRequest) { r.AmountSats = 100 }, walletUTXOs(), apperror.CodeDustOutput},
		{"unknown tier", func(r *domain.SendRequest) { r.FeeTier = "turbo" }, walletUTXOs(), apperror.CodeUnknownFeeTier},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPipeline(&fakeGateway{utxos: tt.utxo}, fakeFees{}, &fakeSigner{})
			req := sendRequest()
			tt.req(&req)

			_, err := p.Prepare(context.Background(), req)

			require.Error(t, err)
			assert.True(t, apperror.HasCode(err, tt.code), "got %v", err)
			assert.Equal(t, apperror.CategoryValidation, apperror.CategoryOf(err))
			assert.Equal(t, domain.Failed, p.Snapshot().Stage)
		})
	}
}

func TestPipeline_NetworkFailureIsClassified(t *testing.T) {
	gw := &fakeGateway{utxoErr: apperror.New(apperror.CodeAllEndpointsFailed)}
	p := NewPipeline(gw, fakeFees{}, &fakeSigner{})

	_, err := p.Prepare(context.Background(), sendRequest())

	require.Error(t, err)
	assert.Equal(t, apperror.CategoryNetwork, apperror.CategoryOf(err))
	assert.Equal(t, apperror.KindNetworkUnreachable, p.Snapshot().LastError.Kind)
}

func TestPipeline_BroadcastRejected(t *testing.T) {
	gw := &fakeGateway{
		utxos:        walletUTXOs(),
		broadcastErr: apperror.New(apperror.CodeBroadcastRejected, apperror.WithUpstreamStatus(400)),
	}
	p := NewPipeline(gw, fakeFees{}, &fakeSigner{})

	_, err := p.Send(context.Background(), sendRequest())

	require.Error(t, err)
	snap := p.Snapshot()
	assert.Equal(t, domain.Failed, snap.Stage)
	assert.Equal(t, domain.Broadcasting, snap.LastError.Stage)
	assert.Equal(t, apperror.KindBroadcastRejected, snap.LastError.Kind)
}

func TestPipeline_SigningFailures(t *testing.T) {
	t.Run("signer error", func(t *testing.T) {
		gw := &fakeGateway{utxos: walletUTXOs()}
		p := NewPipeline(gw, fakeFees{}, &fakeSigner{err: errors.New("device locked")})

		_, err := p.Send(context.Background(), sendRequest())

		require.Error(t, err)
		assert.Equal(t, apperror.KindSigningFailed, apperror.KindOf(err))
		assert.Equal(t, domain.AwaitingSignature, p.Snapshot().LastError.Stage)
		assert.Zero(t, gw.broadcastCount())
	})

	t.Run("unselected input", func(t *testing.T) {
		gw := &fakeGateway{utxos: walletUTXOs()}
		p := NewPipeline(gw, fakeFees{}, &fakeSigner{extra: true})

		_, err := p.Send(context.Background(), sendRequest())

		require.Error(t, err)
		assert.Equal(t, apperror.KindSigningFailed, apperror.KindOf(err))
		assert.Zero(t, gw.broadcastCount())
	})
}

func TestPipeline_SimulatedModesUseSameStages(t *testing.T) {
	want := []domain.Stage{
		domain.ValidatingInputs,
		domain.SelectingCoins,
		domain.AwaitingSignature,
		domain.Broadcasting,
	}

	t.Run("success", func(t *testing.T) {
		gw := &fakeGateway{utxos: walletUTXOs()}
		signer := &fakeSigner{}
		p := NewPipeline(gw, fakeFees{}, signer, WithExecutionMode(domain.SimulateSuccess))
		events, unsubscribe := p.Subscribe()
		defer unsubscribe()

		result, err := p.Send(context.Background(), sendRequest())

		require.NoError(t, err)
		assert.True(t, result.Simulated)
		assert.True(t, networkDomain.IsTxID(result.TxID))
		assert.Zero(t, signer.calls.Load())
		assert.Zero(t, gw.broadcastCount())
		assert.Equal(t, append(want, domain.Confirmed), drain(events))
	})

	t.Run("failure", func(t *testing.T) {
		gw := &fakeGateway{utxos: walletUTXOs()}
		p := NewPipeline(gw, fakeFees{}, &fakeSigner{}, WithExecutionMode(domain.SimulateFailure))
		events, unsubscribe := p.Subscribe()
		defer unsubscribe()

		_, err := p.Send(context.Background(), sendRequest())

		require.Error(t, err)
		assert.True(t, apperror.HasCode(err, apperror.CodeSimulatedFailure))
		assert.Zero(t, gw.broadcastCount())
		assert.Equal(t, append(want, domain.Failed), drain(events))
	})
}

func TestPipeline_CancelReturnsToDraft(t *testing.T) {
	gw := &fakeGateway{blockUTXOs: true}
	p := NewPipeline(gw, fakeFees{}, &fakeSigner{})

	done := make(chan error, 1)
	go func() {
		_, err := p.Prepare(context.Background(), sendRequest())
		done <- err
	}()

	require.Eventually(t, func() bool {
		return p.Snapshot().Stage == domain.ValidatingInputs
	}, time.Second, time.Millisecond)

	p.Cancel()

	err := <-done
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeCancelled))
	assert.Equal(t, domain.Draft, p.Snapshot().Stage)
}

func TestPipeline_CancelWhenIdleKeepsPreparedDraft(t *testing.T) {
	p := NewPipeline(&fakeGateway{utxos: walletUTXOs()}, fakeFees{}, &fakeSigner{})

	_, err := p.Prepare(context.Background(), sendRequest())
	require.NoError(t, err)

	p.Cancel()

	snap := p.Snapshot()
	assert.Equal(t, domain.AwaitingSignature, snap.Stage)
	assert.NotEmpty(t, snap.SelectedUTXOs)

	p.Reset()
	assert.Equal(t, domain.Draft, p.Snapshot().Stage)
}

func TestPipeline_ResetWaitsForSupersededBroadcast(t *testing.T) {
	gw := &fakeGateway{
		utxos: walletUTXOs(),
		gate:  make(chan struct{}),
		drain: make(chan struct{}),
	}
	p := NewPipeline(gw, fakeFees{}, &fakeSigner{})

	_, err := p.Prepare(context.Background(), sendRequest())
	require.NoError(t, err)

	confirmed := make(chan error, 1)
	go func() {
		_, err := p.Confirm(context.Background())
		confirmed <- err
	}()
	require.Eventually(t, func() bool {
		return gw.broadcastCount() == 1
	}, time.Second, time.Millisecond)

	reset := make(chan struct{})
	go func() {
		p.Reset()
		close(reset)
	}()

	// the cancelled broadcast is still draining, so the slot stays taken
	require.Eventually(t, func() bool {
		return p.Snapshot().Stage == domain.Draft
	}, time.Second, time.Millisecond)
	_, err = p.Prepare(context.Background(), sendRequest())
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidState))
	select {
	case <-reset:
		t.Fatal("Reset returned before the superseded broadcast finished")
	case <-time.After(20 * time.Millisecond):
	}

	close(gw.drain)
	<-reset
	err = <-confirmed
	assert.True(t, apperror.HasCode(err, apperror.CodeCancelled))
	assert.Equal(t, domain.Draft, p.Snapshot().Stage)

	close(gw.gate)
	result, err := p.Send(context.Background(), sendRequest())
	require.NoError(t, err)
	assert.Equal(t, broadcastTxID, result.TxID)
	assert.Equal(t, 2, gw.broadcastCount())
	assert.Equal(t, 1, gw.peakBroadcasts())
}

func TestPipeline_ConfirmRequiresPreparedDraft(t *testing.T) {
	p := NewPipeline(&fakeGateway{}, fakeFees{}, &fakeSigner{})

	_, err := p.Confirm(context.Background())

	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidState))
	assert.Equal(t, domain.Draft, p.Snapshot().Stage)
}
