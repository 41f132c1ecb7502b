// Package book normalizes a venue's raw order book into the two sorted
// sequences the rest of the worker operates on.
package book

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"ladder-mm/pkg/types"
)

// Parse converts an unordered raw book into a normalized snapshot: bids
// sorted descending by price, asks sorted ascending by price. Pure, no I/O.
func Parse(raw types.RawOrderBook) (types.OrderBookSnapshot, error) {
	bids, err := parseLevels(raw.Bids)
	if err != nil {
		return types.OrderBookSnapshot{}, fmt.Errorf("parse bids: %w", err)
	}
	asks, err := parseLevels(raw.Asks)
	if err != nil {
		return types.OrderBookSnapshot{}, fmt.Errorf("parse asks: %w", err)
	}

	sort.Slice(bids, func(i, j int) bool { return bids[i].Price.GreaterThan(bids[j].Price) })
	sort.Slice(asks, func(i, j int) bool { return asks[i].Price.LessThan(asks[j].Price) })

	return types.OrderBookSnapshot{Bids: bids, Asks: asks}, nil
}

func parseLevels(raw []types.RawPriceLevel) ([]types.PriceLevel, error) {
	levels := make([]types.PriceLevel, 0, len(raw))
	for _, r := range raw {
		price, err := decimal.NewFromString(r.Price)
		if err != nil {
			return nil, fmt.Errorf("price %q: %w", r.Price, err)
		}
		amount, err := decimal.NewFromString(r.Amount)
		if err != nil {
			return nil, fmt.Errorf("amount %q: %w", r.Amount, err)
		}
		levels = append(levels, types.PriceLevel{Price: price, Amount: amount})
	}
	return levels, nil
}

// Raw converts a normalized snapshot back into the wire shape, used to
// verify that Parse is idempotent under the {price, amount} projection.
func Raw(snapshot types.OrderBookSnapshot) types.RawOrderBook {
	raw := types.RawOrderBook{
		Bids: make([]types.RawPriceLevel, len(snapshot.Bids)),
		Asks: make([]types.RawPriceLevel, len(snapshot.Asks)),
	}
	for i, l := range snapshot.Bids {
		raw.Bids[i] = types.RawPriceLevel{Price: l.Price.String(), Amount: l.Amount.String()}
	}
	for i, l := range snapshot.Asks {
		raw.Asks[i] = types.RawPriceLevel{Price: l.Price.String(), Amount: l.Amount.String()}
	}
	return raw
}
