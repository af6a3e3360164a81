package session

import (
	"math"

	"shortvol-trader/internal/models"
)

const (
	snapshotChainRows = 20
	snapshotEventRows = 50
)

// Snapshot is the point-in-time view of session state handed to the
// external API/UI layer.
type Snapshot struct {
	Spot           float64
	VIX            float64
	IVRank         float64
	SessionPnL     float64
	PnLPercent     float64
	Target         float64
	StopLoss       float64
	ActiveStrategy string
	RollCount      int
	MarketOpen     bool
	Legs           []models.Leg
	Chain          []models.ContractQuote
	Events         []models.Event
}

// Snapshot captures the current session state. The chain is truncated to
// the top-ranked rows and the event log to its most recent entries.
func (s *Session) Snapshot() Snapshot {
	chain := s.Chain()
	if len(chain) > snapshotChainRows {
		chain = chain[:snapshotChainRows]
	}

	pnl := s.Ledger.SessionPnL()
	capital := s.cfg.Trading.Capital
	pnlPct := 0.0
	if capital > 0 {
		pnlPct = math.Round(pnl/capital*100*1000) / 1000
	}

	return Snapshot{
		Spot:           s.Spot(),
		VIX:            math.Round(s.VIX()*100) / 100,
		IVRank:         s.IVRank(),
		SessionPnL:     math.Round(pnl*100) / 100,
		PnLPercent:     pnlPct,
		Target:         math.Round(s.cfg.Target()),
		StopLoss:       math.Round(s.cfg.StopLoss()),
		ActiveStrategy: s.ActiveStrategy(),
		RollCount:      s.RollCount(),
		MarketOpen:     s.IsMarketHours(),
		Legs:           s.Ledger.Snapshot(),
		Chain:          chain,
		Events:         s.Events(snapshotEventRows),
	}
}
