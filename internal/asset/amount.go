// Package asset models bitcoin amounts. The core uses integer satoshis;
// decimal.Decimal is only used at boundaries (UI, parsing, display).
package asset

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Decimals is the number of decimal places in one BTC.
const Decimals = 8

// SatsPerBTC is the number of satoshis in one BTC.
const SatsPerBTC = 100_000_000

// Common errors
var (
	ErrNegativeAmount  = errors.New("asset: negative amount")
	ErrTooManyDecimals = errors.New("asset: too many decimal places for BTC")
	ErrInvalidAmount   = errors.New("asset: invalid amount")
)

// Amount is a quantity of bitcoin in satoshis.
type Amount int64

// Sats returns the raw satoshi value.
func (a Amount) Sats() int64 {
	return int64(a)
}

// IsZero returns true if the amount is zero.
func (a Amount) IsZero() bool {
	return a == 0
}

// ToDecimal converts the amount to BTC.
// This is a BOUNDARY function - use only for UI/display, not calculations.
func (a Amount) ToDecimal() decimal.Decimal {
	return decimal.New(int64(a), -Decimals)
}

// String returns the amount in BTC with all eight places, e.g. "0.00012345 BTC".
func (a Amount) String() string {
	return a.ToDecimal().StringFixed(Decimals) + " BTC"
}

// FormatSats renders the amount as satoshis with thousands separators.
func (a Amount) FormatSats() string {
	n := int64(a)
	sign := ""
	if n < 0 {
		sign = "-"
		n = -n
	}

	digits := fmt.Sprintf("%d", n)
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return sign + b.String() + " sats"
}

// ParseBTC creates an Amount from a BTC decimal string such as "0.0015".
func ParseBTC(s string) (Amount, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return FromDecimal(d)
}

// FromDecimal converts a BTC value to satoshis. It refuses negative values
// and values finer than one satoshi.
func FromDecimal(d decimal.Decimal) (Amount, error) {
	if d.IsNegative() {
		return 0, ErrNegativeAmount
	}
	if d.Exponent() < -Decimals && !d.Equal(d.Truncate(Decimals)) {
		return 0, ErrTooManyDecimals
	}
	return Amount(d.Shift(Decimals).IntPart()), nil
}

// Parse reads user input in either unit. A "btc" suffix or a decimal point
// means BTC; a "sat"/"sats" suffix or a bare integer means satoshis.
func Parse(s string) (Amount, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.ReplaceAll(v, "_", "")

	switch {
	case strings.HasSuffix(v, "btc"):
		return ParseBTC(strings.TrimSpace(strings.TrimSuffix(v, "btc")))
	case strings.HasSuffix(v, "sats"):
		v = strings.TrimSpace(strings.TrimSuffix(v, "sats"))
	case strings.HasSuffix(v, "sat"):
		v = strings.TrimSpace(strings.TrimSuffix(v, "sat"))
	case strings.Contains(v, "."):
		return ParseBTC(v)
	}

	d, err := decimal.NewFromString(v)
	if err != nil || !d.IsInteger() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if d.IsNegative() {
		return 0, ErrNegativeAmount
	}
	return Amount(d.IntPart()), nil
}
