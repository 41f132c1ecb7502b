// Package proposal builds the layered ladder of candidate limit orders
// around a reference price.
package proposal

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/shopspring/decimal"

	"ladder-mm/internal/config"
	"ladder-mm/pkg/types"
)

var hundred = decimal.NewFromInt(100)

// infinity stands in for "no asks on the book" when clamping the bid
// reference price; it must compare greater than any real price.
var infinity = decimal.NewFromInt(1).Shift(30)

// Build generates the layered ladder for one tick. Client ids are assigned
// by a monotonically-increasing counter starting at 1, bids before asks in
// layer declaration order. The returned slice is ordered
// [bids from all layers..., asks from all layers...].
func Build(
	book types.OrderBookSnapshot,
	refPrice decimal.Decimal,
	market types.Market,
	marketID string,
	layers []config.Layer,
	orderType types.OrderType,
	logger *slog.Logger,
) []types.ProposedOrder {
	bestBid := book.BestBid()
	bestAsk := book.BestAsk(infinity)

	clientID := 1
	var bids, asks []types.ProposedOrder

	for index, layer := range layers {
		layerNum := index + 1

		if orders, ok := buildSide(types.BUY, layer.Bid, refPrice, bestAsk, market, marketID, orderType, &clientID, logger, layerNum); ok {
			bids = append(bids, orders...)
		}
	}

	for index, layer := range layers {
		layerNum := index + 1

		if orders, ok := buildSide(types.SELL, layer.Ask, refPrice, bestBid, market, marketID, orderType, &clientID, logger, layerNum); ok {
			asks = append(asks, orders...)
		}
	}

	out := make([]types.ProposedOrder, 0, len(bids)+len(asks))
	out = append(out, bids...)
	out = append(out, asks...)
	return out
}

func buildSide(
	side types.Side,
	layer config.LayerSide,
	refPrice, clampPrice decimal.Decimal,
	market types.Market,
	marketID string,
	orderType types.OrderType,
	clientID *int,
	logger *slog.Logger,
	layerNum int,
) ([]types.ProposedOrder, bool) {
	quantity := layer.Quantity
	spread := decimal.NewFromFloat(layer.SpreadPercentage)
	maxLiquidity := decimal.NewFromFloat(layer.MaxLiquidityInDollars)

	var price decimal.Decimal
	if side == types.BUY {
		// B = ((100 - spread) / 100) * min(refPrice, bestAsk)
		price = hundred.Sub(spread).Div(hundred).Mul(decimal.Min(refPrice, clampPrice))
	} else {
		// A = ((100 + spread) / 100) * max(refPrice, bestBid)
		price = hundred.Add(spread).Div(hundred).Mul(decimal.Max(refPrice, clampPrice))
	}

	var size decimal.Decimal
	if quantity > 0 {
		size = maxLiquidity.Div(price).Div(decimal.NewFromInt(int64(quantity)))
	}

	if price.LessThan(market.MinimumPriceIncrement) {
		logger.Warn("skipping layer: price too low", "layer", layerNum, "side", side, "price", price.String())
		return nil, false
	}
	if size.LessThan(market.MinimumOrderSize) {
		logger.Warn("skipping layer: size too low", "layer", layerNum, "side", side, "size", size.String())
		return nil, false
	}

	orders := make([]types.ProposedOrder, 0, quantity)
	for i := 0; i < quantity; i++ {
		orders = append(orders, types.ProposedOrder{
			ClientID: strconv.Itoa(*clientID),
			MarketID: marketID,
			Side:     side,
			Type:     orderType,
			Price:    price,
			Amount:   size,
		})
		*clientID++
	}
	return orders, true
}

// ValidateBestOf checks invariant 3 (§8): bids never price above best ask,
// asks never price below best bid, at the time of computation. Exposed for
// tests; the builder itself enforces this via the min/max clamp.
func ValidateBestOf(orders []types.ProposedOrder, bestBid, bestAsk decimal.Decimal) error {
	for _, o := range orders {
		switch o.Side {
		case types.BUY:
			if o.Price.GreaterThan(bestAsk) {
				return fmt.Errorf("bid %s prices above best ask %s", o.Price, bestAsk)
			}
		case types.SELL:
			if o.Price.LessThan(bestBid) {
				return fmt.Errorf("ask %s prices below best bid %s", o.Price, bestBid)
			}
		}
	}
	return nil
}
