package types

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestOrderBookSnapshotBestBidEmptyIsZero(t *testing.T) {
	t.Parallel()

	s := OrderBookSnapshot{}
	if !s.BestBid().IsZero() {
		t.Errorf("BestBid on empty book = %s, want 0", s.BestBid())
	}
}

func TestOrderBookSnapshotBestBidReturnsTopLevel(t *testing.T) {
	t.Parallel()

	s := OrderBookSnapshot{Bids: []PriceLevel{
		{Price: decimal.NewFromInt(10)},
		{Price: decimal.NewFromInt(9)},
	}}
	if got := s.BestBid(); !got.Equal(decimal.NewFromInt(10)) {
		t.Errorf("BestBid = %s, want 10", got)
	}
}

func TestOrderBookSnapshotBestAskDefaultsToInfinityWhenEmpty(t *testing.T) {
	t.Parallel()

	infinity := decimal.NewFromInt(1).Shift(30)
	s := OrderBookSnapshot{}
	if got := s.BestAsk(infinity); !got.Equal(infinity) {
		t.Errorf("BestAsk on empty book = %s, want sentinel %s", got, infinity)
	}
}

func TestForeignClientIDIsReserved(t *testing.T) {
	t.Parallel()

	if ForeignClientID != "0" {
		t.Errorf("ForeignClientID = %q, want \"0\"", ForeignClientID)
	}
}
