// Package engine drives the trading session: a 1-second scheduler that
// advances the active strategy, publishes telemetry snapshots and keeps
// the live feed healthy.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"shortvol-trader/internal/broker"
	"shortvol-trader/internal/config"
	domainerrors "shortvol-trader/internal/errors"
	"shortvol-trader/internal/executor"
	"shortvol-trader/internal/models"
	"shortvol-trader/internal/performance"
	"shortvol-trader/internal/resilience"
	"shortvol-trader/internal/scanner"
	"shortvol-trader/internal/session"
	"shortvol-trader/internal/store"
	"shortvol-trader/internal/strategy"
	"shortvol-trader/internal/stream"
)

// markEveryTicks is the cadence of session P/L marks into the journal.
const markEveryTicks = 60

// Engine owns the scheduler and the component graph for one trading
// session.
type Engine struct {
	cfg     *config.Config
	sess    *session.Session
	broker  broker.Broker
	feed    *stream.Feed
	scanner *scanner.Scanner
	exec    *executor.Executor
	journal store.Journal
	pool    *performance.WorkerPool
	breaker *resilience.Breaker
	logger  zerolog.Logger

	mu       sync.Mutex
	active   strategy.Strategy
	tick     int
	scanning atomic.Bool

	// OnSnapshot, when set, receives a session snapshot once per second
	// for the external API/UI layer.
	OnSnapshot func(session.Snapshot)
}

// New wires an engine from its components.
func New(cfg *config.Config, sess *session.Session, b broker.Broker, feed *stream.Feed,
	sc *scanner.Scanner, exec *executor.Executor, journal store.Journal, logger zerolog.Logger) *Engine {
	if journal == nil {
		journal = store.NopJournal{}
	}
	return &Engine{
		cfg:     cfg,
		sess:    sess,
		broker:  b,
		feed:    feed,
		scanner: sc,
		exec:    exec,
		journal: journal,
		pool:    performance.NewWorkerPool(4),
		breaker: resilience.New(resilience.DefaultConfig()),
		logger:  logger.With().Str("component", "engine").Logger(),
	}
}

// Run starts the feed and the 1-second driver, blocking until the context
// is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	e.pool.Start()
	defer e.pool.Stop()

	if err := e.feed.Start(ctx); err != nil {
		return fmt.Errorf("starting feed: %w", err)
	}
	defer e.feed.Stop()

	e.logger.Info().Str("mode", e.cfg.Trading.Mode).Msg("engine running")

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info().Msg("engine stopping")
			return ctx.Err()
		case <-ticker.C:
			e.step(ctx)
		}
	}
}

// step advances one scheduler tick: strategy, telemetry, connectivity.
// A panic in strategy logic is confined to this tick.
func (e *Engine) step(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error().Interface("panic", r).Msg("tick panicked, continuing")
		}
	}()

	e.tick++

	e.strategyTick(ctx)
	e.telemetryTick(ctx)
	e.connectivityTick()
}

// strategyTick advances the active strategy. It is a no-op outside market
// hours or before broker connectivity is established.
func (e *Engine) strategyTick(ctx context.Context) {
	e.mu.Lock()
	active := e.active
	e.mu.Unlock()

	if active == nil {
		return
	}
	if !e.sess.IsMarketHours() || !e.broker.IsAuthenticated() || !e.feed.Connected() {
		return
	}

	if err := active.Tick(ctx); err != nil {
		e.logger.Warn().Err(err).Str("strategy", active.Name()).Msg("strategy tick reported an error")
	}

	// A terminated run cleared the session's active-strategy marker.
	if e.sess.ActiveStrategy() == "" {
		e.mu.Lock()
		e.active = nil
		e.mu.Unlock()
	}
}

// telemetryTick publishes a snapshot and journals a periodic P/L mark.
func (e *Engine) telemetryTick(ctx context.Context) {
	if e.OnSnapshot != nil {
		e.OnSnapshot(e.sess.Snapshot())
	}

	if e.tick%markEveryTicks == 0 {
		mark := store.MarkRecord{
			Timestamp:  time.Now(),
			SessionPnL: e.sess.Ledger.SessionPnL(),
			OpenLegs:   e.sess.Ledger.Count(),
		}
		if err := e.journal.RecordMark(ctx, mark); err != nil {
			e.logger.Warn().Err(err).Msg("journal mark failed")
		}
	}
}

// connectivityTick watches the feed; the ticker reconnects itself, this
// only surfaces a prolonged outage in the event log.
func (e *Engine) connectivityTick() {
	if !e.feed.Connected() && e.tick%markEveryTicks == 0 {
		e.sess.Log("Live feed disconnected, reconnect in progress.", models.EventAlert)
	}
}

// StartStrategy activates the named strategy. Only one strategy runs at a
// time.
func (e *Engine) StartStrategy(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.active != nil {
		return fmt.Errorf("%w: %s", domainerrors.ErrStrategyActive, e.active.Name())
	}

	s, err := strategy.New(name, strategy.Deps{
		Cfg:     e.cfg,
		Sess:    e.sess,
		Broker:  e.broker,
		Scanner: e.scanner,
		Exec:    e.exec,
		Ledger:  e.sess.Ledger,
		Logger:  e.logger,
		Rescan:  e.dispatchRescan,
	})
	if err != nil {
		return err
	}

	e.active = s
	e.sess.SetActiveStrategy(name)
	e.sess.Log(fmt.Sprintf("Strategy %s activated.", name), models.EventInfo)
	e.logger.Info().Str("strategy", name).Msg("strategy activated")
	return nil
}

// StopAll flattens every open leg and deactivates the running strategy.
func (e *Engine) StopAll(ctx context.Context) error {
	e.mu.Lock()
	active := e.active
	e.active = nil
	e.mu.Unlock()

	err := e.exec.CloseAll(ctx)

	if active != nil {
		active.Reset()
	}
	e.sess.SetActiveStrategy("")
	e.sess.Log("Manual stop: all positions closed, strategy deactivated.", models.EventTrade)
	return err
}

// dispatchRescan submits a full chain refresh to the worker pool. At most
// one rescan is in flight; an overlapping request is skipped rather than
// queued so a slow broker cannot pile up scans.
func (e *Engine) dispatchRescan(ctx context.Context) {
	if !e.scanning.CompareAndSwap(false, true) {
		return
	}

	submitted := e.pool.Submit(func() {
		defer e.scanning.Store(false)

		err := e.breaker.Execute(ctx, func() error {
			chain, err := e.scanner.Scan(ctx)
			if err != nil {
				return err
			}
			e.sess.ReplaceChain(chain)
			e.feed.TrackChain(chain)
			return nil
		})
		if errors.Is(err, resilience.ErrOpen) {
			e.logger.Debug().Msg("rescan skipped, quote circuit open")
			return
		}
		if err != nil {
			e.logger.Warn().Err(err).Msg("chain rescan failed, keeping previous snapshot")
		}
	})
	if !submitted {
		e.scanning.Store(false)
	}
}
