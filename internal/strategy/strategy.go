// Package strategy implements the automated short-volatility strategies
// driven by the engine's 1-second tick.
package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"shortvol-trader/internal/broker"
	"shortvol-trader/internal/config"
	domainerrors "shortvol-trader/internal/errors"
	"shortvol-trader/internal/executor"
	"shortvol-trader/internal/ledger"
	"shortvol-trader/internal/models"
	"shortvol-trader/internal/scanner"
	"shortvol-trader/internal/session"
	"shortvol-trader/pkg/utils"
)

// State is the run state of a strategy instance.
type State string

const (
	StateIdle     State = "IDLE"
	StateEntering State = "ENTERING"
	StateActive   State = "ACTIVE"
	StateRolling  State = "ROLLING"
	StateExiting  State = "EXITING"
)

// Strategy is the contract both variants implement. Tick is invoked once
// per second by the scheduler; the scheduler guards market hours and
// broker connectivity, so Tick itself assumes a live session.
type Strategy interface {
	Tick(ctx context.Context) error
	Reset()
	Name() string
	State() State
}

// Deps bundles what a strategy needs to act. Rescan is supplied by the
// engine and dispatches a full chain refresh off the tick path; in tests
// it can run synchronously.
type Deps struct {
	Cfg     *config.Config
	Sess    *session.Session
	Broker  broker.Broker
	Scanner *scanner.Scanner
	Exec    *executor.Executor
	Ledger  *ledger.Ledger
	Logger  zerolog.Logger
	Rescan  func(ctx context.Context)

	// Pause between sequential leg submissions. Defaults to time.Sleep.
	Pause func(time.Duration)
}

// New constructs a strategy by name.
func New(name string, deps Deps) (Strategy, error) {
	if deps.Pause == nil {
		deps.Pause = time.Sleep
	}
	switch name {
	case CreditSpreadName:
		return NewCreditSpread(deps), nil
	case IronCondorName:
		return NewIronCondor(deps), nil
	default:
		return nil, fmt.Errorf("%w: %s", domainerrors.ErrUnknownStrategy, name)
	}
}

// base holds the per-tick bookkeeping both variants share.
type base struct {
	deps      Deps
	state     State
	tickCount int
}

func newBase(deps Deps) base {
	return base{deps: deps, state: StateIdle}
}

// checkExits applies the session target and stop-loss checks. They take
// precedence over all other per-tick logic. Returns true when the run
// terminated this tick.
func (b *base) checkExits(ctx context.Context, reset func()) bool {
	sess := b.deps.Sess

	if sess.TargetHit() {
		pnl := b.deps.Ledger.SessionPnL()
		sess.Log(fmt.Sprintf("TARGET HIT | PnL: %s | Closing all.", utils.FormatPnL(pnl)), models.EventTrade)
		b.exitAll(ctx, reset)
		return true
	}

	if sess.StopLossHit() {
		pnl := b.deps.Ledger.SessionPnL()
		sess.Log(fmt.Sprintf("STOP LOSS | PnL: %s | Closing all.", utils.FormatPnL(pnl)), models.EventAlert)
		b.exitAll(ctx, reset)
		return true
	}

	return false
}

func (b *base) exitAll(ctx context.Context, reset func()) {
	b.state = StateExiting
	if err := b.deps.Exec.CloseAll(ctx); err != nil {
		b.deps.Logger.Error().Err(err).Msg("close-all reported a failed leg")
	}
	b.deps.Sess.SetActiveStrategy("")
	reset()
}

// maybeRescan dispatches a full chain refresh on every Nth tick. The
// refresh never runs inline on the tick path.
func (b *base) maybeRescan(ctx context.Context) {
	b.tickCount++
	if b.deps.Rescan == nil {
		return
	}
	if n := b.deps.Cfg.Scanner.RescanTicks; n > 0 && b.tickCount%n == 0 {
		b.deps.Rescan(ctx)
	}
}

// quoteLTP fetches a single contract's last price, falling back to a
// token value when the quote call fails so the entry flow can proceed.
func (b *base) quoteLTP(ctx context.Context, symbol string) float64 {
	if q, ok := b.deps.Sess.FindQuote(symbol); ok {
		return q.LTP
	}
	quotes, err := b.deps.Broker.GetQuotes(ctx, []string{"NFO:" + symbol})
	if err == nil {
		if q, ok := quotes["NFO:"+symbol]; ok {
			return q.LTP
		}
	}
	b.deps.Logger.Warn().Str("symbol", symbol).Msg("quote unavailable, using fallback premium")
	return 5.0
}

// lookupToken resolves a streaming token, tolerating failure: a zero
// token only means the leg will not receive live tick updates.
func (b *base) lookupToken(ctx context.Context, symbol string) uint32 {
	token, err := b.deps.Broker.LookupToken(ctx, symbol, models.NFO)
	if err != nil {
		b.deps.Logger.Warn().Err(err).Str("symbol", symbol).Msg("token lookup failed for new leg")
		return 0
	}
	return token
}
