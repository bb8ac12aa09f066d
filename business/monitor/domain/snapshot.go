// Package domain holds the balance monitor's value types.
package domain

import (
	"time"

	networkDomain "github.com/fd1az/satsend/business/network/domain"
)

// Snapshot is what the monitor knows about one watched address.
type Snapshot struct {
	Address             string
	ConfirmedSats       int64
	UnconfirmedSats     int64
	UTXOCount           int
	Polls               int
	Seen                bool // at least one successful poll
	LastPollAt          time.Time
	LastIncreaseAt      time.Time
	ConsecutiveFailures int
	Suppressed          bool
	LastError           error
}

// TotalSats is confirmed plus unconfirmed.
func (s Snapshot) TotalSats() int64 {
	return s.ConfirmedSats + s.UnconfirmedSats
}

// Observation is the outcome of a successful poll.
type Observation struct {
	ConfirmedSats   int64
	UnconfirmedSats int64
	UTXOCount       int
}

// Observe sums an address's UTXO set.
func Observe(utxos []networkDomain.UTXO) Observation {
	var o Observation
	for _, u := range utxos {
		if u.Confirmed {
			o.ConfirmedSats += u.Value
		} else {
			o.UnconfirmedSats += u.Value
		}
	}
	o.UTXOCount = len(utxos)
	return o
}

// Apply records a successful poll and reports whether the balance grew. The
// first successful poll is a baseline and never counts as an increase.
func (s *Snapshot) Apply(o Observation, at time.Time) bool {
	prev, seen := s.TotalSats(), s.Seen

	s.ConfirmedSats = o.ConfirmedSats
	s.UnconfirmedSats = o.UnconfirmedSats
	s.UTXOCount = o.UTXOCount
	s.Polls++
	s.Seen = true
	s.LastPollAt = at
	s.ConsecutiveFailures = 0
	s.Suppressed = false
	s.LastError = nil

	increased := seen && s.TotalSats() > prev
	if increased {
		s.LastIncreaseAt = at
	}
	return increased
}

// Fail records a failed poll. It reports whether the failure should be
// surfaced: only the first failure after a success is, later ones are
// suppressed until the next success.
func (s *Snapshot) Fail(err error, at time.Time) bool {
	s.Polls++
	s.LastPollAt = at
	s.ConsecutiveFailures++
	s.LastError = err

	if s.Suppressed {
		return false
	}
	s.Suppressed = true
	return true
}
