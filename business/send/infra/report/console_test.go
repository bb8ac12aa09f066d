package report_test

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	feesDomain "github.com/fd1az/satsend/business/fees/domain"
	networkDomain "github.com/fd1az/satsend/business/network/domain"
	"github.com/fd1az/satsend/business/send/domain"
	"github.com/fd1az/satsend/business/send/infra/report"
	"github.com/fd1az/satsend/internal/apperror"
)

func TestConsoleReporter_Follow(t *testing.T) {
	var buf bytes.Buffer
	r := report.NewConsoleReporter(&buf)

	at := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)
	events := make(chan domain.StageEvent, 2)
	events <- domain.StageEvent{From: domain.Draft, To: domain.ValidatingInputs, At: at}
	events <- domain.StageEvent{From: domain.ValidatingInputs, To: domain.SelectingCoins, At: at}
	close(events)

	r.Follow(events)

	assert.Equal(t,
		"[12:30:00] draft -> validating_inputs\n[12:30:00] validating_inputs -> selecting_coins\n",
		buf.String())
}

func TestConsoleReporter_Prepared(t *testing.T) {
	var buf bytes.Buffer
	r := report.NewConsoleReporter(&buf)

	r.Prepared(domain.State{
		SourceAddress: "tb1qsource",
		Recipient:     "tb1qrecipient",
		AmountSats:    15000,
		FeeTier:       feesDomain.NewTier(feesDomain.Standard, 2, feesDomain.StandardTarget),
		SelectedUTXOs: []networkDomain.UTXO{{TxID: "aa", Vout: 0, Value: 20000, Confirmed: true}},
		ChangeAddress: "tb1qsource",
		ChangeSats:    4640,
		FeeSats:       360,
		Stage:         domain.AwaitingSignature,
	})

	out := buf.String()
	assert.Contains(t, out, "0.00015000 BTC (15,000 sats)")
	assert.Contains(t, out, "standard (2.0 sat/vB)")
	assert.Contains(t, out, "1 (20,000 sats)")
	assert.Contains(t, out, "4,640 sats to tb1qsource")
}

func TestConsoleReporter_Receipt(t *testing.T) {
	var buf bytes.Buffer
	r := report.NewConsoleReporter(&buf)

	r.Receipt(domain.TransactionResult{
		TxID:        "ab12",
		BroadcastAt: time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC),
		AmountSats:  15000,
		FeeSats:     360,
		Simulated:   true,
	})

	out := buf.String()
	assert.Contains(t, out, "(SIMULATED)")
	assert.Contains(t, out, "TxID:           ab12")
	assert.Contains(t, out, "2024-05-01T12:30:00Z")
}

func TestConsoleReporter_Failure(t *testing.T) {
	var buf bytes.Buffer
	r := report.NewConsoleReporter(&buf)

	err := domain.Classify(domain.SelectingCoins, apperror.New(apperror.CodeInsufficientFunds))
	r.Failure(err)
	assert.Contains(t, buf.String(), "SEND FAILED in selecting_coins [validation]")

	buf.Reset()
	r.Failure(errors.New("boom"))
	assert.Equal(t, "\nSEND FAILED: boom\n", buf.String())
}
