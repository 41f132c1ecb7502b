package tickloop

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/shopspring/decimal"

	"ladder-mm/internal/config"
	"ladder-mm/internal/gateway"
	"ladder-mm/pkg/types"
)

// S6: tick_interval=1000ms, now=…345ms → next wake delay = 655ms.
func TestWaitingTimeScenarioS6(t *testing.T) {
	t.Parallel()

	got := waitingTimeAt(12345, 1000)
	if got != 655 {
		t.Errorf("waitingTimeAt(12345, 1000) = %d, want 655", got)
	}
}

func TestWaitingTimeAlignsToGridBoundary(t *testing.T) {
	t.Parallel()

	now := int64(12345)
	delay := waitingTimeAt(now, 1000)
	if (now+delay)%1000 != 0 {
		t.Errorf("now+delay = %d, not aligned to 1000ms grid", now+delay)
	}
}

func TestWaitingTimeZeroIntervalIsImmediate(t *testing.T) {
	t.Parallel()

	if got := waitingTimeAt(999, 0); got != 0 {
		t.Errorf("waitingTimeAt with zero interval = %d, want 0", got)
	}
}

func TestStateStringCoversAllValues(t *testing.T) {
	t.Parallel()

	states := []State{StateNew, StateInitialized, StateRunning, StateWorking, StateSleeping, StateStopping, StateExited}
	seen := make(map[string]bool)
	for _, s := range states {
		str := s.String()
		if str == "UNKNOWN" {
			t.Errorf("state %d stringified as UNKNOWN", s)
		}
		seen[str] = true
	}
	if len(seen) != len(states) {
		t.Errorf("expected %d distinct state strings, got %d", len(states), len(seen))
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeGateway implements Gateway with call counters, so tests can assert on
// the number of times the worker hits each endpoint per tick.
type fakeGateway struct {
	market types.Market
	book   types.RawOrderBook
	ticker types.Ticker

	openOrders   map[string]types.VenueOrder
	filledOrders map[string]types.VenueOrder
	balances     types.Balances

	placedReply map[string]types.PlacedOrder

	getOrderBookCalls int
	postOrdersCalls   int
	deleteOrdersCalls int
}

func (f *fakeGateway) GetMarket(ctx context.Context, r gateway.Route, name string) (types.Market, error) {
	return f.market, nil
}

func (f *fakeGateway) GetOrderBook(ctx context.Context, r gateway.Route, marketID string) (types.RawOrderBook, error) {
	f.getOrderBookCalls++
	return f.book, nil
}

func (f *fakeGateway) GetTicker(ctx context.Context, r gateway.Route, marketID string) (types.Ticker, error) {
	return f.ticker, nil
}

func (f *fakeGateway) GetBalances(ctx context.Context, r gateway.Route, ownerAddress string, tokenIDs []string) (types.Balances, error) {
	return f.balances, nil
}

func (f *fakeGateway) GetOrders(ctx context.Context, r gateway.Route, marketID, ownerAddress string, status types.OrderStatus) (map[string]types.VenueOrder, error) {
	if status == types.OrderStatusFilled {
		return f.filledOrders, nil
	}
	return f.openOrders, nil
}

func (f *fakeGateway) DeleteAllOrders(ctx context.Context, r gateway.Route, marketID, ownerAddress string) (map[string]types.CancelAck, error) {
	return nil, nil
}

func (f *fakeGateway) PostMarketWithdraw(ctx context.Context, r gateway.Route, marketID, ownerAddress string) error {
	return nil
}

func (f *fakeGateway) DeleteOrders(ctx context.Context, ids []string, marketID, ownerAddress string) (map[string]types.CancelAck, error) {
	f.deleteOrdersCalls++
	acks := make(map[string]types.CancelAck, len(ids))
	for _, id := range ids {
		acks[id] = types.CancelAck{ID: id, Success: true}
	}
	return acks, nil
}

func (f *fakeGateway) PostOrders(ctx context.Context, r gateway.Route, orders []types.WireOrder) (map[string]types.PlacedOrder, error) {
	f.postOrdersCalls++
	return f.placedReply, nil
}

func newTestWorker(t *testing.T, fg *fakeGateway, cfg config.WorkerConfig) *Worker {
	t.Helper()
	events := make(chan TickEvent, 4)
	w := New(cfg, fg, testLogger(), events)
	if err := w.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return w
}

// Exercises onTick's full ordered sequence (cancel-stale -> price -> build ->
// adjust -> place) against a fake gateway, and guards the single-fetch
// invariant: the order book must be fetched exactly once per tick, even
// under the MIDDLE strategy where both the oracle and the proposal builder
// consume it.
func TestOnTickSingleFetchFullSequence(t *testing.T) {
	t.Parallel()

	fg := &fakeGateway{
		market: types.Market{
			ID:                    "m1",
			Base:                  types.Token{ID: "base"},
			Quote:                 types.Token{ID: "quote"},
			MinimumPriceIncrement: decimal.RequireFromString("0.01"),
			MinimumOrderSize:      decimal.RequireFromString("0.01"),
		},
		book: types.RawOrderBook{
			Bids: []types.RawPriceLevel{{Price: "10", Amount: "5"}},
			Asks: []types.RawPriceLevel{{Price: "12", Amount: "5"}},
		},
		ticker:       types.Ticker{Price: decimal.RequireFromString("11")},
		openOrders:   map[string]types.VenueOrder{},
		filledOrders: map[string]types.VenueOrder{},
		balances: types.Balances{Tokens: map[string]types.TokenBalance{
			"base":  {Free: decimal.RequireFromString("1000")},
			"quote": {Free: decimal.RequireFromString("1000")},
		}},
	}

	cfg := config.WorkerConfig{
		ID:     "w1",
		Wallet: "0x000000000000000000000000000000000000AA",
		Strategy: config.StrategyConfig{
			TickIntervalMs:      1000,
			PriceStrategy:       config.PriceStrategyMiddle,
			MiddlePriceStrategy: config.MiddlePriceSAP,
			OrderType:           "LIMIT",
			Layers: []config.Layer{{
				Bid: config.LayerSide{Quantity: 1, SpreadPercentage: 1, MaxLiquidityInDollars: 50},
				Ask: config.LayerSide{Quantity: 1, SpreadPercentage: 1, MaxLiquidityInDollars: 50},
			}},
		},
	}

	w := newTestWorker(t, fg, cfg)

	// Tick 1: nothing open yet, places v1. tracked={v1}, currentlyTracked={v1}.
	fg.placedReply = map[string]types.PlacedOrder{"v1": {ID: "v1", ClientID: "1"}}
	event1 := &TickEvent{}
	if err := w.onTick(context.Background(), event1); err != nil {
		t.Fatalf("tick 1 onTick: %v", err)
	}
	if event1.CancelledCount != 0 {
		t.Errorf("tick 1 CancelledCount = %d, want 0", event1.CancelledCount)
	}

	// Tick 2: v1 now shows open on the venue, places v2. tracked={v1,v2},
	// currentlyTracked={v2}. v1 is not yet stale because currentlyTracked
	// only changes starting from this tick's own placement.
	fg.openOrders = map[string]types.VenueOrder{"v1": {ID: "v1", ClientID: "1"}}
	fg.placedReply = map[string]types.PlacedOrder{"v2": {ID: "v2", ClientID: "1"}}
	event2 := &TickEvent{}
	if err := w.onTick(context.Background(), event2); err != nil {
		t.Fatalf("tick 2 onTick: %v", err)
	}
	if event2.CancelledCount != 0 {
		t.Errorf("tick 2 CancelledCount = %d, want 0", event2.CancelledCount)
	}

	// Tick 3: both v1 and v2 still show open; v1 is now stale (tracked, open,
	// but dropped from currentlyTracked since tick 2's placement), so it must
	// be cancelled before the next proposal goes out.
	fg.openOrders = map[string]types.VenueOrder{
		"v1": {ID: "v1", ClientID: "1"},
		"v2": {ID: "v2", ClientID: "1"},
	}
	fg.placedReply = map[string]types.PlacedOrder{"v3": {ID: "v3", ClientID: "1"}}
	event3 := &TickEvent{}
	if err := w.onTick(context.Background(), event3); err != nil {
		t.Fatalf("tick 3 onTick: %v", err)
	}

	if fg.getOrderBookCalls != 3 {
		t.Errorf("GetOrderBook called %d times across 3 ticks, want exactly 3 (one per tick)", fg.getOrderBookCalls)
	}
	if fg.deleteOrdersCalls != 1 {
		t.Errorf("DeleteOrders called %d times, want 1 (tick 3's stale cancel)", fg.deleteOrdersCalls)
	}
	if event3.CancelledCount != 1 {
		t.Errorf("tick 3 CancelledCount = %d, want 1", event3.CancelledCount)
	}
	if event3.RefPrice.Sign() <= 0 {
		t.Errorf("RefPrice = %s, want a positive reference price", event3.RefPrice)
	}
	if event3.ProposedCount == 0 {
		t.Error("expected at least one proposed order")
	}
	if fg.postOrdersCalls != 3 {
		t.Errorf("PostOrders called %d times, want 3 (one per tick)", fg.postOrdersCalls)
	}
	if event3.PlacedCount == 0 {
		t.Error("expected at least one placed order")
	}
}

// An empty book under the default MIDDLE strategy must fail the tick rather
// than silently falling back to TICKER (see DESIGN.md's VWAP ambiguity
// resolution).
func TestOnTickFailsWithEmptyBookAndDefaultMiddleStrategy(t *testing.T) {
	t.Parallel()

	fg := &fakeGateway{
		market:       types.Market{ID: "m1", Base: types.Token{ID: "base"}, Quote: types.Token{ID: "quote"}},
		ticker:       types.Ticker{Price: decimal.RequireFromString("9")},
		openOrders:   map[string]types.VenueOrder{},
		filledOrders: map[string]types.VenueOrder{},
		balances:     types.Balances{Tokens: map[string]types.TokenBalance{}},
	}

	cfg := config.WorkerConfig{
		ID:     "w1",
		Wallet: "0x000000000000000000000000000000000000AA",
		Strategy: config.StrategyConfig{
			TickIntervalMs: 1000,
			PriceStrategy:  config.PriceStrategyMiddle,
			OrderType:      "LIMIT",
			Layers:         []config.Layer{{}},
		},
	}

	w := newTestWorker(t, fg, cfg)

	event := &TickEvent{}
	if err := w.onTick(context.Background(), event); err == nil {
		t.Fatal("expected onTick to fail on an empty book with the default MIDDLE strategy")
	}
	if fg.getOrderBookCalls != 1 {
		t.Errorf("GetOrderBook called %d times, want exactly 1", fg.getOrderBookCalls)
	}
}
