// Package ledger maintains the mutable record of open position legs and
// aggregate session profit/loss. It is written by the order executor on
// fills and closes, and by the streaming price feed on every matching tick.
package ledger

import (
	"sync"

	"shortvol-trader/internal/models"
)

// Ledger tracks open legs and session P/L. All methods are safe for
// concurrent use; the price stream and the strategy tick touch it from
// different goroutines.
type Ledger struct {
	mu         sync.RWMutex
	legs       []*models.Leg
	sessionPnL float64
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{}
}

// Append records a newly filled leg.
func (l *Ledger) Append(leg models.Leg) {
	l.mu.Lock()
	defer l.mu.Unlock()
	stored := leg
	l.legs = append(l.legs, &stored)
	l.recomputeLocked()
}

// Remove drops the leg with the given symbol. It is called when a close
// order is submitted for the leg, not when the close fill confirms.
func (l *Ledger) Remove(symbol string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, leg := range l.legs {
		if leg.Symbol == symbol {
			l.legs = append(l.legs[:i], l.legs[i+1:]...)
			l.recomputeLocked()
			return true
		}
	}
	return false
}

// ApplyTick updates the leg matching the instrument token with a fresh
// last price, recomputes its P/L and the session total. Returns true when
// a leg matched.
func (l *Ledger) ApplyTick(token uint32, ltp float64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	matched := false
	for _, leg := range l.legs {
		if leg.Token == token {
			leg.LTP = ltp
			leg.PnL = legPnL(leg, ltp)
			matched = true
		}
	}
	if matched {
		l.recomputeLocked()
	}
	return matched
}

func legPnL(leg *models.Leg, ltp float64) float64 {
	return (ltp - leg.Entry) * float64(leg.Quantity) * leg.Side.Multiplier()
}

// recomputeLocked resums session P/L over open legs. O(open legs) per
// tick, acceptable at the configured leg ceiling.
func (l *Ledger) recomputeLocked() {
	total := 0.0
	for _, leg := range l.legs {
		total += leg.PnL
	}
	l.sessionPnL = total
}

// SessionPnL returns the current aggregate P/L over open legs.
func (l *Ledger) SessionPnL() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.sessionPnL
}

// Count returns the number of open legs.
func (l *Ledger) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.legs)
}

// Snapshot returns a copy of the open legs, safe to iterate while closes
// mutate the live collection.
func (l *Ledger) Snapshot() []models.Leg {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]models.Leg, len(l.legs))
	for i, leg := range l.legs {
		out[i] = *leg
	}
	return out
}

// Find returns a copy of the leg with the given symbol.
func (l *Ledger) Find(symbol string) (models.Leg, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, leg := range l.legs {
		if leg.Symbol == symbol {
			return *leg, true
		}
	}
	return models.Leg{}, false
}
