// Package report renders send pipeline progress for the terminal.
package report

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fd1az/satsend/business/send/domain"
	"github.com/fd1az/satsend/internal/asset"
)

const rule = "================================================================================"
const thinRule = "--------------------------------------------------------------------------------"

// ConsoleReporter prints stage transitions, the prepared draft and the
// final receipt for CLI sends.
type ConsoleReporter struct {
	out io.Writer
	now func() time.Time
}

// NewConsoleReporter creates a ConsoleReporter writing to out, or stdout
// when out is nil.
func NewConsoleReporter(out io.Writer) *ConsoleReporter {
	if out == nil {
		out = os.Stdout
	}
	return &ConsoleReporter{out: out, now: time.Now}
}

// Follow prints every event until the channel is closed.
func (r *ConsoleReporter) Follow(events <-chan domain.StageEvent) {
	for ev := range events {
		r.Stage(ev)
	}
}

// Stage prints one transition.
func (r *ConsoleReporter) Stage(ev domain.StageEvent) {
	at := ev.At
	if at.IsZero() {
		at = r.now()
	}
	fmt.Fprintf(r.out, "[%s] %s -> %s\n", at.Format("15:04:05"), ev.From, ev.To)
}

// Prepared prints the draft awaiting signature.
func (r *ConsoleReporter) Prepared(s domain.State) {
	fmt.Fprintln(r.out, "")
	fmt.Fprintln(r.out, rule)
	fmt.Fprintln(r.out, "TRANSACTION DRAFT")
	fmt.Fprintln(r.out, rule)
	fmt.Fprintf(r.out, "From:           %s\n", s.SourceAddress)
	fmt.Fprintf(r.out, "To:             %s\n", s.Recipient)
	fmt.Fprintf(r.out, "Amount:         %s (%s)\n", asset.Amount(s.AmountSats), asset.Amount(s.AmountSats).FormatSats())
	fmt.Fprintln(r.out, thinRule)
	fmt.Fprintf(r.out, "Fee tier:       %s (%.1f sat/vB)\n", s.FeeTier.ID, s.FeeTier.FeeRate)
	fmt.Fprintf(r.out, "Fee:            %s\n", asset.Amount(s.FeeSats).FormatSats())
	fmt.Fprintf(r.out, "Inputs:         %d (%s)\n", len(s.SelectedUTXOs), asset.Amount(s.SelectedSats()).FormatSats())
	if s.DustFolded {
		fmt.Fprintln(r.out, "Change:         none (dust added to fee)")
	} else {
		fmt.Fprintf(r.out, "Change:         %s to %s\n", asset.Amount(s.ChangeSats).FormatSats(), s.ChangeAddress)
	}
	fmt.Fprintln(r.out, rule)
}

// Receipt prints a successful broadcast.
func (r *ConsoleReporter) Receipt(res domain.TransactionResult) {
	fmt.Fprintln(r.out, "")
	if res.Simulated {
		fmt.Fprintln(r.out, "TRANSACTION BROADCAST (SIMULATED)")
	} else {
		fmt.Fprintln(r.out, "TRANSACTION BROADCAST")
	}
	fmt.Fprintln(r.out, thinRule)
	fmt.Fprintf(r.out, "TxID:           %s\n", res.TxID)
	fmt.Fprintf(r.out, "Amount:         %s\n", asset.Amount(res.AmountSats))
	fmt.Fprintf(r.out, "Fee:            %s\n", asset.Amount(res.FeeSats).FormatSats())
	fmt.Fprintf(r.out, "Broadcast at:   %s\n", res.BroadcastAt.Format(time.RFC3339))
}

// Failure prints a classified pipeline error.
func (r *ConsoleReporter) Failure(err error) {
	fmt.Fprintln(r.out, "")
	var stageErr *domain.StageError
	if errors.As(err, &stageErr) {
		fmt.Fprintf(r.out, "SEND FAILED in %s [%s]\n", stageErr.Stage, stageErr.Category)
		fmt.Fprintf(r.out, "  %v\n", stageErr.Err)
		return
	}
	fmt.Fprintf(r.out, "SEND FAILED: %v\n", err)
}
