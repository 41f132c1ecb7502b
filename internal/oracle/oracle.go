// Package oracle implements the reference-price pipeline: TICKER, LAST_FILL,
// and the MIDDLE strategies (SAP/WAP/VWAP) with VWAP's fallback chain.
package oracle

import (
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"ladder-mm/internal/config"
	"ladder-mm/pkg/types"
)

// VWAPThreshold is the percentage of top-of-book levels (by count, ceiling)
// kept on each side before outlier trimming in the VWAP calculation.
const VWAPThreshold = 30

// Inputs bundles everything the oracle may need to produce a reference
// price; which fields are actually read depends on the configured strategy.
type Inputs struct {
	Book          types.OrderBookSnapshot
	Ticker        types.Ticker
	HasLastFill   bool
	LastFillPrice decimal.Decimal
}

// Compute dispatches on priceStrategy (and, for MIDDLE, middleStrategy) and
// returns a positive reference price or a descriptive error. Strategy
// dispatch is total: every accepted config value maps to defined behavior.
func Compute(in Inputs, priceStrategy config.PriceStrategy, middleStrategy config.MiddlePriceStrategy) (decimal.Decimal, error) {
	var price decimal.Decimal
	var err error

	switch priceStrategy {
	case config.PriceStrategyTicker:
		price, err = tickerPrice(in)
	case config.PriceStrategyMiddle:
		price, err = middlePrice(in, middleStrategy)
	case config.PriceStrategyLastFill:
		price, err = lastFillPrice(in)
	default:
		return decimal.Zero, fmt.Errorf("unrecognized price strategy %q", priceStrategy)
	}
	if err != nil {
		return decimal.Zero, err
	}

	if price.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("invalid price: %s", price.String())
	}
	return price, nil
}

func tickerPrice(in Inputs) (decimal.Decimal, error) {
	return in.Ticker.Price, nil
}

func lastFillPrice(in Inputs) (decimal.Decimal, error) {
	if !in.HasLastFill {
		return decimal.Zero, fmt.Errorf("no filled order to derive last-fill price from")
	}
	return in.LastFillPrice, nil
}

// middlePrice dispatches to the configured sub-strategy; if none is
// configured, it attempts VWAP, then WAP, then SAP, then TICKER, swallowing
// each sub-strategy's own failure.
func middlePrice(in Inputs, strategy config.MiddlePriceStrategy) (decimal.Decimal, error) {
	switch strategy {
	case config.MiddlePriceSAP:
		return sap(in.Book), nil
	case config.MiddlePriceWAP:
		return wap(in.Book), nil
	case config.MiddlePriceVWAP:
		return vwap(in.Book)
	case "":
		// VWAP resolves to a definitive answer (including zero) whenever it
		// runs without error; a clean zero is not grounds to fall through to
		// WAP/SAP/TICKER, it commits and lets Compute's price.Sign() <= 0
		// check fail the tick. Only an actual VWAP error continues the chain.
		if price, err := vwap(in.Book); err == nil {
			return price, nil
		}
		if price := wap(in.Book); price.Sign() > 0 {
			return price, nil
		}
		if price := sap(in.Book); price.Sign() > 0 {
			return price, nil
		}
		return tickerPrice(in)
	default:
		return decimal.Zero, fmt.Errorf("unrecognized middle price strategy %q", strategy)
	}
}

// sap is the Simple Average Price: (bestBid + bestAsk) / 2, treating a
// missing side as zero.
func sap(book types.OrderBookSnapshot) decimal.Decimal {
	var bestBid, bestAsk decimal.Decimal
	if len(book.Bids) > 0 {
		bestBid = book.Bids[0].Price
	}
	if len(book.Asks) > 0 {
		bestAsk = book.Asks[0].Price
	}
	return bestBid.Add(bestAsk).Div(decimal.NewFromInt(2))
}

// wap is the Weighted Average Price: (bestAsk*askVol + bestBid*bidVol) /
// (askVol + bidVol), or zero if the volume sum is zero.
func wap(book types.OrderBookSnapshot) decimal.Decimal {
	var bestBidPrice, bestBidAmount, bestAskPrice, bestAskAmount decimal.Decimal
	if len(book.Bids) > 0 {
		bestBidPrice = book.Bids[0].Price
		bestBidAmount = book.Bids[0].Amount
	}
	if len(book.Asks) > 0 {
		bestAskPrice = book.Asks[0].Price
		bestAskAmount = book.Asks[0].Amount
	}

	denom := bestAskAmount.Add(bestBidAmount)
	if denom.Sign() <= 0 {
		return decimal.Zero
	}
	numer := bestAskPrice.Mul(bestAskAmount).Add(bestBidPrice.Mul(bestBidAmount))
	return numer.Div(denom)
}

// vwap trims each side to its top VWAPThreshold% of levels, removes
// outliers by quartile, concatenates bids and asks, and returns the final
// element of the running cumsum(amount*price)/cumsum(amount) series.
//
// Per the concurrency model, this inner stage is the one place binary
// floats are permitted (percentile/cumsum), with the result converted back
// to decimal before returning.
func vwap(book types.OrderBookSnapshot) (decimal.Decimal, error) {
	bids, asks := splitPercentage(book.Bids, book.Asks)

	if len(bids) > 0 {
		bids = removeOutliers(bids, types.BUY)
	}
	if len(asks) > 0 {
		asks = removeOutliers(asks, types.SELL)
	}

	combined := make([]types.PriceLevel, 0, len(bids)+len(asks))
	combined = append(combined, bids...)
	combined = append(combined, asks...)

	if len(combined) == 0 {
		// Matches the original worker's _calculate_middle_price: an empty
		// trimmed book is a defined zero result, not an exception.
		return decimal.Zero, nil
	}

	series := cumulativeVWAP(combined)
	return decimal.NewFromFloat(series[len(series)-1]), nil
}

// splitPercentage keeps the top ceil(VWAPThreshold% * len) levels of each
// side (levels are already sorted best-first by the normalizer).
func splitPercentage(bids, asks []types.PriceLevel) ([]types.PriceLevel, []types.PriceLevel) {
	bidCount := int(math.Ceil(VWAPThreshold / 100.0 * float64(len(bids))))
	askCount := int(math.Ceil(VWAPThreshold / 100.0 * float64(len(asks))))
	if bidCount > len(bids) {
		bidCount = len(bids)
	}
	if askCount > len(asks) {
		askCount = len(asks)
	}
	return bids[:bidCount], asks[:askCount]
}

// removeOutliers keeps asks priced below 1.5*Q75 and bids priced above
// 0.5*Q25, where Q25/Q75 are the 25th/75th percentile of the side's prices.
func removeOutliers(levels []types.PriceLevel, side types.Side) []types.PriceLevel {
	prices := make([]float64, len(levels))
	for i, l := range levels {
		prices[i] = l.Price.InexactFloat64()
	}

	q25, q75 := percentile(prices, 25), percentile(prices, 75)
	maxThreshold := q75 * 1.5
	minThreshold := q25 * 0.5

	filtered := make([]types.PriceLevel, 0, len(levels))
	for _, l := range levels {
		p := l.Price.InexactFloat64()
		switch side {
		case types.SELL:
			if p < maxThreshold {
				filtered = append(filtered, l)
			}
		case types.BUY:
			if p > minThreshold {
				filtered = append(filtered, l)
			}
		}
	}
	return filtered
}

// percentile computes the p-th percentile of values using linear
// interpolation between closest ranks, matching numpy.percentile's default.
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	if len(sorted) == 1 {
		return sorted[0]
	}

	rank := p / 100.0 * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}
	frac := rank - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}

// cumulativeVWAP returns, for each prefix of book, cumsum(amount*price) /
// cumsum(amount) — the running VWAP series whose last element is the
// reported price.
func cumulativeVWAP(book []types.PriceLevel) []float64 {
	series := make([]float64, len(book))
	var cumAmountPrice, cumAmount float64
	for i, l := range book {
		price := l.Price.InexactFloat64()
		amount := l.Amount.InexactFloat64()
		cumAmountPrice += amount * price
		cumAmount += amount
		if cumAmount == 0 {
			series[i] = 0
			continue
		}
		series[i] = cumAmountPrice / cumAmount
	}
	return series
}
