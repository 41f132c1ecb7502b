// Package budget filters a proposal down to what free balances afford,
// walking it in order and admitting orders greedily.
package budget

import (
	"github.com/shopspring/decimal"

	"ladder-mm/pkg/types"
)

// Adjust walks candidates in order, admitting a prefix-filtered subset that
// fits within freeBase/freeQuote. Order is preserved; rejected orders are
// dropped silently, matching §4.5.
//
// The BUY branch intentionally compares quote balance against the order's
// base amount rather than its notional (amount*price) — this reproduces the
// upstream worker's observed behavior rather than "fixing" it; see
// DESIGN.md open question 1.
func Adjust(candidates []types.ProposedOrder, freeBase, freeQuote decimal.Decimal) []types.ProposedOrder {
	adjusted := make([]types.ProposedOrder, 0, len(candidates))

	for _, order := range candidates {
		switch order.Side {
		case types.BUY:
			if freeQuote.GreaterThan(order.Amount) {
				freeQuote = freeQuote.Sub(order.Amount)
				adjusted = append(adjusted, order)
			}
		case types.SELL:
			if freeBase.GreaterThan(order.Amount) {
				freeBase = freeBase.Sub(order.Amount)
				adjusted = append(adjusted, order)
			}
		}
	}

	return adjusted
}
