package book

import (
	"testing"

	"github.com/shopspring/decimal"

	"ladder-mm/pkg/types"
)

func TestParseSortsBidsDescendingAsksAscending(t *testing.T) {
	t.Parallel()

	raw := types.RawOrderBook{
		MarketID: "m1",
		Bids: []types.RawPriceLevel{
			{Price: "9.5", Amount: "1"},
			{Price: "10", Amount: "1"},
			{Price: "9.9", Amount: "1"},
		},
		Asks: []types.RawPriceLevel{
			{Price: "12.1", Amount: "1"},
			{Price: "12", Amount: "1"},
			{Price: "12.5", Amount: "1"},
		},
	}

	snapshot, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	wantBids := []string{"10", "9.9", "9.5"}
	for i, want := range wantBids {
		if got := snapshot.Bids[i].Price.String(); got != want {
			t.Errorf("bid[%d] = %s, want %s", i, got, want)
		}
	}

	wantAsks := []string{"12", "12.1", "12.5"}
	for i, want := range wantAsks {
		if got := snapshot.Asks[i].Price.String(); got != want {
			t.Errorf("ask[%d] = %s, want %s", i, got, want)
		}
	}
}

func TestParseRejectsMalformedPrice(t *testing.T) {
	t.Parallel()

	raw := types.RawOrderBook{
		Bids: []types.RawPriceLevel{{Price: "not-a-number", Amount: "1"}},
	}
	if _, err := Parse(raw); err == nil {
		t.Fatal("expected error for malformed price")
	}
}

func TestParseThenRawIsIdempotent(t *testing.T) {
	t.Parallel()

	raw := types.RawOrderBook{
		Bids: []types.RawPriceLevel{{Price: "10", Amount: "2"}, {Price: "9.9", Amount: "1"}},
		Asks: []types.RawPriceLevel{{Price: "12", Amount: "3"}},
	}

	snapshot, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	reparsed, err := Parse(Raw(snapshot))
	if err != nil {
		t.Fatalf("Parse(Raw(snapshot)): %v", err)
	}

	if len(reparsed.Bids) != len(snapshot.Bids) || len(reparsed.Asks) != len(snapshot.Asks) {
		t.Fatalf("round trip changed level counts")
	}
	for i := range snapshot.Bids {
		if !reparsed.Bids[i].Price.Equal(snapshot.Bids[i].Price) {
			t.Errorf("bid[%d] price drifted: %s vs %s", i, reparsed.Bids[i].Price, snapshot.Bids[i].Price)
		}
	}
}

func TestBestBidAskEmptyBook(t *testing.T) {
	t.Parallel()

	snapshot := types.OrderBookSnapshot{}
	if !snapshot.BestBid().IsZero() {
		t.Errorf("BestBid on empty book = %s, want 0", snapshot.BestBid())
	}
	infinity := decimal.NewFromInt(1).Shift(30)
	if got := snapshot.BestAsk(infinity); !got.Equal(infinity) {
		t.Errorf("BestAsk on empty book = %s, want sentinel %s", got, infinity)
	}
}
