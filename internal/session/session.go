// Package session holds the shared runtime state of a trading session:
// reference prices, the live option chain snapshot, the open-leg ledger,
// strategy run counters and the bounded event log. A single Session is
// created at startup and passed explicitly to every component; there is no
// ambient global.
package session

import (
	"math"
	"sync"
	"time"

	"shortvol-trader/internal/config"
	"shortvol-trader/internal/ledger"
	"shortvol-trader/internal/models"
	"shortvol-trader/pkg/utils"
)

// Session is the single logical owner of shared mutable trading state.
// The streaming feed writes it continuously; both strategies read it once
// per tick. Reads may be at most one tick stale, never torn.
type Session struct {
	cfg    *config.Config
	Ledger *ledger.Ledger

	mu             sync.RWMutex
	spot           float64
	vix            float64
	ivRank         float64
	chain          []*models.ContractQuote
	activeStrategy string
	rollCount      int

	events *EventLog
}

// New creates a session around the given configuration.
func New(cfg *config.Config) *Session {
	return &Session{
		cfg:    cfg,
		Ledger: ledger.New(),
		events: NewEventLog(maxEvents),
	}
}

// Config returns the session configuration.
func (s *Session) Config() *config.Config { return s.cfg }

// SetSpot updates the strike-universe reference price.
func (s *Session) SetSpot(v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spot = v
}

// Spot returns the current underlying reference price.
func (s *Session) Spot() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.spot
}

// SetVIX updates the reference volatility index level and rederives the
// volatility rank against the configured 52-week range.
func (s *Session) SetVIX(v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vix = v

	low := s.cfg.Strategy.VIX52WeekLow
	high := s.cfg.Strategy.VIX52WeekHigh
	if high > low {
		s.ivRank = round1((v - low) / (high - low) * 100)
	}
}

// VIX returns the current reference volatility index level.
func (s *Session) VIX() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.vix
}

// IVRank returns the volatility index level normalized to 0-100 against
// the configured 52-week low/high.
func (s *Session) IVRank() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ivRank
}

// ReplaceChain installs a freshly scanned chain snapshot.
func (s *Session) ReplaceChain(chain []*models.ContractQuote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chain = chain
}

// Chain returns a copy of the current chain snapshot in ranked order.
func (s *Session) Chain() []models.ContractQuote {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ContractQuote, len(s.chain))
	for i, q := range s.chain {
		out[i] = *q
	}
	return out
}

// FindQuote returns a copy of the chain entry for a symbol.
func (s *Session) FindQuote(symbol string) (models.ContractQuote, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, q := range s.chain {
		if q.Symbol == symbol {
			return *q, true
		}
	}
	return models.ContractQuote{}, false
}

// UpdateQuote mutates the chain entry for an instrument token in place,
// as a whole-record update under the session lock. Returns false when the
// token is not in the current chain.
func (s *Session) UpdateQuote(token uint32, update func(*models.ContractQuote)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, q := range s.chain {
		if q.Token == token {
			update(q)
			return true
		}
	}
	return false
}

// ActiveStrategy returns the name of the running strategy, or "".
func (s *Session) ActiveStrategy() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeStrategy
}

// SetActiveStrategy records which strategy owns the session.
func (s *Session) SetActiveStrategy(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeStrategy = name
}

// RollCount returns the rolls consumed by the current strategy run.
func (s *Session) RollCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rollCount
}

// IncrementRolls consumes one roll from the budget and returns the new count.
func (s *Session) IncrementRolls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollCount++
	return s.rollCount
}

// ResetRolls clears the roll counter at the end of a strategy run.
func (s *Session) ResetRolls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollCount = 0
}

// TargetHit reports whether session P/L has reached the profit target.
func (s *Session) TargetHit() bool {
	return s.Ledger.SessionPnL() >= s.cfg.Target()
}

// StopLossHit reports whether session P/L has breached the stop loss.
func (s *Session) StopLossHit() bool {
	return s.Ledger.SessionPnL() <= -s.cfg.StopLoss()
}

// IsMarketHours reports whether the strategy trading window is open.
func (s *Session) IsMarketHours() bool {
	return utils.InTradingWindow(time.Now())
}

// Log appends an entry to the bounded session event log.
func (s *Session) Log(text string, severity models.EventSeverity) {
	s.events.Add(models.Event{
		Sender:   "ENGINE",
		Text:     text,
		Severity: severity,
		Time:     time.Now(),
	})
}

// Events returns the most recent n event log entries in time order.
func (s *Session) Events(n int) []models.Event {
	return s.events.Last(n)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
