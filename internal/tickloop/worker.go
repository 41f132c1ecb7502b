// Package tickloop implements the worker's state machine, scheduling, and
// lifecycle hooks (C7): NEW → INITIALIZED → RUNNING → WORKING ⇄ SLEEPING →
// STOPPING → EXITED, with a re-entrancy guard and grid-aligned wake
// scheduling.
package tickloop

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"ladder-mm/internal/budget"
	"ladder-mm/internal/book"
	"ladder-mm/internal/config"
	"ladder-mm/internal/gateway"
	"ladder-mm/internal/oracle"
	"ladder-mm/internal/proposal"
	"ladder-mm/internal/reconciler"
	"ladder-mm/pkg/types"
)

// State is one node of the worker's lifecycle state machine.
type State int

const (
	StateNew State = iota
	StateInitialized
	StateRunning
	StateWorking
	StateSleeping
	StateStopping
	StateExited
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateInitialized:
		return "INITIALIZED"
	case StateRunning:
		return "RUNNING"
	case StateWorking:
		return "WORKING"
	case StateSleeping:
		return "SLEEPING"
	case StateStopping:
		return "STOPPING"
	case StateExited:
		return "EXITED"
	default:
		return "UNKNOWN"
	}
}

// Gateway is the subset of the gateway client façade the tick loop drives
// directly (the reconciler uses a narrower view of the same interface).
type Gateway interface {
	reconciler.Gateway
	GetMarket(ctx context.Context, r gateway.Route, name string) (types.Market, error)
	GetOrderBook(ctx context.Context, r gateway.Route, marketID string) (types.RawOrderBook, error)
	GetTicker(ctx context.Context, r gateway.Route, marketID string) (types.Ticker, error)
	GetBalances(ctx context.Context, r gateway.Route, ownerAddress string, tokenIDs []string) (types.Balances, error)
	GetOrders(ctx context.Context, r gateway.Route, marketID, ownerAddress string, status types.OrderStatus) (map[string]types.VenueOrder, error)
	DeleteAllOrders(ctx context.Context, r gateway.Route, marketID, ownerAddress string) (map[string]types.CancelAck, error)
	PostMarketWithdraw(ctx context.Context, r gateway.Route, marketID, ownerAddress string) error
}

// TickEvent is the per-tick observability record described in SPEC_FULL.md
// §3 — a supplemented addition with no feedback into the worker itself.
type TickEvent struct {
	WorkerID       string
	Timestamp      time.Time
	State          State
	RefPrice       decimal.Decimal
	ProposedCount  int
	PlacedCount    int
	CancelledCount int
	Err            string
}

// Worker drives one market's quoting loop end to end.
type Worker struct {
	cfg    config.WorkerConfig
	route  gateway.Route
	gw     Gateway
	logger *slog.Logger
	events chan<- TickEvent

	market  types.Market
	tracker *reconciler.Tracker

	balances     cache[types.Balances]
	ticker       cache[types.Ticker]
	openOrders   cache[map[string]types.VenueOrder]
	filledOrders cache[map[string]types.VenueOrder]

	state atomic.Int32
	busy  atomic.Bool
	canRun atomic.Bool

	refreshAt atomic.Int64 // unix millis

	mu         sync.Mutex
	tickCancel context.CancelFunc
	tickWG     sync.WaitGroup
}

// New creates a worker in state NEW.
func New(cfg config.WorkerConfig, gw Gateway, logger *slog.Logger, events chan<- TickEvent) *Worker {
	w := &Worker{
		cfg: cfg,
		route: gateway.Route{
			Chain:     cfg.Chain,
			Network:   cfg.Network,
			Connector: cfg.Connector,
		},
		gw:      gw,
		logger:  logger.With("component", "worker", "worker_id", cfg.ID),
		events:  events,
		tracker: reconciler.NewTracker(),
	}
	w.state.Store(int32(StateNew))
	return w
}

// State returns the worker's current lifecycle state.
func (w *Worker) State() State {
	return State(w.state.Load())
}

func (w *Worker) setState(s State) {
	w.state.Store(int32(s))
}

// Initialize fetches the market, optionally cancels all existing orders
// and/or performs a market withdraw (per configuration), then arms the
// first wake time.
func (w *Worker) Initialize(ctx context.Context) error {
	w.logger.Debug("initialize: start")
	defer w.logger.Debug("initialize: end")

	market, err := w.gw.GetMarket(ctx, w.route, w.cfg.Market)
	if err != nil {
		return fmt.Errorf("initialize: get market: %w", err)
	}
	w.market = market

	if w.cfg.Strategy.CancelAllOrdersOnStart {
		if _, err := w.gw.DeleteAllOrders(ctx, w.route, w.market.ID, w.cfg.Wallet); err != nil {
			w.logger.Warn("cancel-all on start failed", "error", err)
		}
	}
	if w.cfg.Strategy.WithdrawMarketOnStart {
		if err := w.gw.PostMarketWithdraw(ctx, w.route, w.market.ID, w.cfg.Wallet); err != nil {
			w.logger.Warn("market withdraw on start failed", "error", err)
		}
	}

	w.refreshAt.Store(nowMillis() + waitingTime(w.cfg.Strategy.TickIntervalMs))
	w.canRun.Store(true)
	w.setState(StateInitialized)
	return nil
}

// Start runs the scheduling loop: while canRun, launch and await one tick
// whenever not busy and the grid-aligned wake time has arrived; otherwise
// yield briefly.
func (w *Worker) Start(ctx context.Context) error {
	w.setState(StateRunning)

	const yieldInterval = 20 * time.Millisecond
	for w.canRun.Load() {
		if w.busy.Load() || nowMillis() < w.refreshAt.Load() {
			select {
			case <-ctx.Done():
				w.canRun.Store(false)
			case <-time.After(yieldInterval):
			}
			continue
		}
		w.runTick(ctx)
	}

	w.doExit(ctx)
	return nil
}

// Stop clears canRun, cancels the in-flight tick cooperatively and awaits
// it, optionally runs cancel-all/withdraw, then exits. If no tick is in
// flight, cancelling is a harmless no-op (see DESIGN.md open question 3).
func (w *Worker) Stop(ctx context.Context) {
	w.setState(StateStopping)
	w.canRun.Store(false)

	w.mu.Lock()
	cancel := w.tickCancel
	w.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	w.tickWG.Wait()

	w.doExit(ctx)
}

func (w *Worker) doExit(ctx context.Context) {
	if w.State() == StateExited {
		return
	}

	if w.cfg.Strategy.CancelAllOrdersOnStop {
		if _, err := w.gw.DeleteAllOrders(ctx, w.route, w.market.ID, w.cfg.Wallet); err != nil {
			w.logger.Warn("cancel-all on stop failed", "error", err)
		}
	}
	if w.cfg.Strategy.WithdrawMarketOnStop {
		if err := w.gw.PostMarketWithdraw(ctx, w.route, w.market.ID, w.cfg.Wallet); err != nil {
			w.logger.Warn("market withdraw on stop failed", "error", err)
		}
	}

	w.canRun.Store(false)
	w.setState(StateExited)
}

// runTick executes exactly one tick under the isBusy guard, re-arms the
// wake schedule and clears isBusy in its finalizer regardless of outcome.
func (w *Worker) runTick(ctx context.Context) {
	w.busy.Store(true)
	w.setState(StateWorking)
	w.tickWG.Add(1)

	tickCtx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.tickCancel = cancel
	w.mu.Unlock()

	event := TickEvent{WorkerID: w.cfg.ID, Timestamp: time.Now()}

	defer func() {
		cancel()
		w.mu.Lock()
		w.tickCancel = nil
		w.mu.Unlock()

		w.refreshAt.Store(nowMillis() + waitingTime(w.cfg.Strategy.TickIntervalMs))
		w.busy.Store(false)
		w.setState(StateSleeping)
		w.tickWG.Done()

		event.State = w.State()
		w.emit(event)

		// run_only_once: after a successful tick the stop flag is cleared
		// synchronously here, so Start's loop condition observes termination
		// on its very next check and then runs doExit (DESIGN.md open
		// question 2). A failed tick leaves the loop running.
		if w.cfg.Strategy.RunOnlyOnce && event.Err == "" {
			w.canRun.Store(false)
		}
	}()

	if err := w.onTick(tickCtx, &event); err != nil {
		w.logger.Error("tick failed", "error", err)
		event.Err = err.Error()
	}
}

func (w *Worker) emit(event TickEvent) {
	if w.events == nil {
		return
	}
	select {
	case w.events <- event:
	default:
		w.logger.Warn("status channel full, dropping tick event")
	}
}

// onTick is the ordered body of one tick: optional withdraw, forced
// refresh of open/filled orders and balances, cancel-stale, build, adjust,
// place. No suspension happens inside build/adjust — only at gateway calls.
func (w *Worker) onTick(ctx context.Context, event *TickEvent) error {
	w.logger.Debug("tick: start")
	defer w.logger.Debug("tick: end")

	if w.cfg.Strategy.WithdrawMarketOnTick {
		if err := w.gw.PostMarketWithdraw(ctx, w.route, w.market.ID, w.cfg.Wallet); err != nil {
			w.logger.Warn("market withdraw on tick failed", "error", err)
		}
	}

	openOrders, err := w.openOrders.get(true, func() (map[string]types.VenueOrder, error) {
		return w.gw.GetOrders(ctx, w.route, w.market.ID, w.cfg.Wallet, types.OrderStatusOpen)
	})
	if err != nil {
		return fmt.Errorf("refresh open orders: %w", err)
	}

	if _, err := w.filledOrders.get(true, func() (map[string]types.VenueOrder, error) {
		return w.gw.GetOrders(ctx, w.route, w.market.ID, w.cfg.Wallet, types.OrderStatusFilled)
	}); err != nil {
		return fmt.Errorf("refresh filled orders: %w", err)
	}

	balances, err := w.balances.get(true, func() (types.Balances, error) {
		return w.gw.GetBalances(ctx, w.route, w.cfg.Wallet, []string{types.NativeTokenID, w.market.Base.ID, w.market.Quote.ID})
	})
	if err != nil {
		return fmt.Errorf("refresh balances: %w", err)
	}

	openIDs := make([]string, 0, len(openOrders))
	for id := range openOrders {
		openIDs = append(openIDs, id)
	}

	cancelled, err := reconciler.CancelStale(ctx, w.gw, w.tracker, openIDs, w.market.ID, w.cfg.Wallet, w.logger)
	if err != nil {
		w.logger.Warn("cancel-stale failed", "error", err)
	}
	event.CancelledCount = cancelled

	if w.cfg.Strategy.CancelDuplicateOrders {
		dupes := reconciler.DuplicateIDs(mapValues(openOrders))
		if len(dupes) > 0 {
			if _, err := w.gw.DeleteOrders(ctx, dupes, w.market.ID, w.cfg.Wallet); err != nil {
				w.logger.Warn("cancel-duplicates failed", "error", err)
			}
		}
	}

	raw, err := w.gw.GetOrderBook(ctx, w.route, w.market.ID)
	if err != nil {
		return fmt.Errorf("get order book: %w", err)
	}
	normalized, err := book.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse order book: %w", err)
	}

	refPrice, err := w.computeReferencePrice(ctx, normalized)
	if err != nil {
		return fmt.Errorf("reference price: %w", err)
	}
	event.RefPrice = refPrice

	orderType := types.OrderType(w.cfg.Strategy.OrderType)
	if orderType == "" {
		orderType = types.OrderTypeLimit
	}

	candidates := proposal.Build(normalized, refPrice, w.market, w.market.ID, w.cfg.Strategy.Layers, orderType, w.logger)
	event.ProposedCount = len(candidates)

	baseFree := balances.Tokens[w.market.Base.ID].Free
	quoteFree := balances.Tokens[w.market.Quote.ID].Free
	adjusted := budget.Adjust(candidates, baseFree, quoteFree)
	event.PlacedCount = len(adjusted)

	if err := reconciler.PlaceProposal(ctx, w.gw, w.tracker, w.route, adjusted, w.cfg.Wallet, w.logger); err != nil {
		return fmt.Errorf("place proposal: %w", err)
	}

	return nil
}

// computeReferencePrice fetches whatever the configured strategy needs and
// delegates to the oracle package. The order book is fetched/parsed exactly
// once per tick in onTick and passed in here for MIDDLE, rather than
// re-fetched, so the price and the proposal it feeds are computed from the
// same snapshot.
func (w *Worker) computeReferencePrice(ctx context.Context, normalized types.OrderBookSnapshot) (decimal.Decimal, error) {
	in := oracle.Inputs{}

	switch w.cfg.Strategy.PriceStrategy {
	case config.PriceStrategyTicker:
		ticker, err := w.ticker.get(true, func() (types.Ticker, error) {
			return w.gw.GetTicker(ctx, w.route, w.market.ID)
		})
		if err != nil {
			return decimal.Zero, fmt.Errorf("get ticker: %w", err)
		}
		in.Ticker = ticker
	case config.PriceStrategyLastFill:
		filled, err := w.filledOrders.get(false, func() (map[string]types.VenueOrder, error) {
			return w.gw.GetOrders(ctx, w.route, w.market.ID, w.cfg.Wallet, types.OrderStatusFilled)
		})
		if err != nil {
			return decimal.Zero, fmt.Errorf("get filled orders: %w", err)
		}
		if o, ok := mostRecentFill(filled); ok {
			in.HasLastFill = true
			in.LastFillPrice = o.Price
		}
	case config.PriceStrategyMiddle:
		in.Book = normalized

		// MIDDLE's fallback chain ends at TICKER, so the ticker must be
		// available even if the configured sub-strategy never needs it.
		ticker, err := w.ticker.get(true, func() (types.Ticker, error) {
			return w.gw.GetTicker(ctx, w.route, w.market.ID)
		})
		if err == nil {
			in.Ticker = ticker
		}
	}

	return oracle.Compute(in, w.cfg.Strategy.PriceStrategy, w.cfg.Strategy.MiddlePriceStrategy)
}

func mostRecentFill(filled map[string]types.VenueOrder) (types.VenueOrder, bool) {
	var best types.VenueOrder
	found := false
	for _, o := range filled {
		if !found || o.Filled.After(best.Filled) {
			best = o
			found = true
		}
	}
	return best, found
}

func mapValues(m map[string]types.VenueOrder) []types.VenueOrder {
	out := make([]types.VenueOrder, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}

// waitingTime implements the grid-aligned wake rule: interval - (now mod
// interval), so ticks line up on a global boundary regardless of when the
// worker started.
func waitingTime(intervalMs int64) int64 {
	return waitingTimeAt(nowMillis(), intervalMs)
}

func waitingTimeAt(nowMs, intervalMs int64) int64 {
	if intervalMs <= 0 {
		return 0
	}
	return intervalMs - (nowMs % intervalMs)
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
