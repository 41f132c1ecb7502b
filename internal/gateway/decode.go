package gateway

import (
	"fmt"

	"github.com/shopspring/decimal"

	"ladder-mm/pkg/types"
)

func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

func decodeTokenBalance(free, locked, unsettled string) (types.TokenBalance, error) {
	f, err := parseDecimal(free)
	if err != nil {
		return types.TokenBalance{}, fmt.Errorf("free: %w", err)
	}
	l, err := parseDecimal(locked)
	if err != nil {
		return types.TokenBalance{}, fmt.Errorf("lockedInOrders: %w", err)
	}
	u, err := parseDecimal(unsettled)
	if err != nil {
		return types.TokenBalance{}, fmt.Errorf("unsettled: %w", err)
	}
	return types.TokenBalance{Free: f, LockedInOrders: l, Unsettled: u}, nil
}

func decodeMarket(id, name string, base, quote types.Token, minPriceIncrement, minOrderSize string) (types.Market, error) {
	priceIncrement, err := parseDecimal(minPriceIncrement)
	if err != nil {
		return types.Market{}, fmt.Errorf("minimumPriceIncrement: %w", err)
	}
	orderSize, err := parseDecimal(minOrderSize)
	if err != nil {
		return types.Market{}, fmt.Errorf("minimumOrderSize: %w", err)
	}
	return types.Market{
		ID:                    id,
		Name:                  name,
		Base:                  base,
		Quote:                 quote,
		MinimumPriceIncrement: priceIncrement,
		MinimumOrderSize:      orderSize,
	}, nil
}
