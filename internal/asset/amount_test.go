package asset_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/fd1az/satsend/internal/asset"
)

func TestAmount_Basic(t *testing.T) {
	// 1 BTC = 1e8 sats
	oneBTC := asset.Amount(asset.SatsPerBTC)

	if oneBTC.IsZero() {
		t.Error("expected non-zero amount")
	}

	d := oneBTC.ToDecimal()
	if !d.Equal(decimal.NewFromInt(1)) {
		t.Errorf("expected 1, got %s", d.String())
	}

	if oneBTC.String() != "1.00000000 BTC" {
		t.Errorf("expected '1.00000000 BTC', got '%s'", oneBTC.String())
	}
}

func TestAmount_FormatSats(t *testing.T) {
	tests := []struct {
		in   asset.Amount
		want string
	}{
		{0, "0 sats"},
		{546, "546 sats"},
		{1234567, "1,234,567 sats"},
		{-1000, "-1,000 sats"},
	}

	for _, tt := range tests {
		if got := tt.in.FormatSats(); got != tt.want {
			t.Errorf("FormatSats(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want asset.Amount
	}{
		{"1000", 1000},
		{"1_000 sats", 1000},
		{"546sat", 546},
		{"0.0015", 150000},
		{"0.0015 BTC", 150000},
		{"1btc", 100000000},
		{"0.00000001", 1},
	}

	for _, tt := range tests {
		got, err := asset.Parse(tt.in)
		if err != nil {
			t.Errorf("Parse(%q) error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Parse(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		in   string
		want error
	}{
		{"abc", asset.ErrInvalidAmount},
		{"12.5 sats", asset.ErrInvalidAmount},
		{"-5", asset.ErrNegativeAmount},
		{"-0.1btc", asset.ErrNegativeAmount},
		{"0.000000001", asset.ErrTooManyDecimals},
	}

	for _, tt := range tests {
		_, err := asset.Parse(tt.in)
		if !errors.Is(err, tt.want) {
			t.Errorf("Parse(%q) error = %v, want %v", tt.in, err, tt.want)
		}
	}
}
