package budget

import (
	"testing"

	"github.com/shopspring/decimal"

	"ladder-mm/pkg/types"
)

func order(side types.Side, amount, price string) types.ProposedOrder {
	return types.ProposedOrder{
		Side:   side,
		Amount: decimal.RequireFromString(amount),
		Price:  decimal.RequireFromString(price),
	}
}

// S4: proposal [BUY 5@9, BUY 5@8, SELL 3@12]; free quote=7, free base=4 →
// admits [BUY 5@9, SELL 3@12].
func TestAdjustScenarioS4(t *testing.T) {
	t.Parallel()

	candidates := []types.ProposedOrder{
		order(types.BUY, "5", "9"),
		order(types.BUY, "5", "8"),
		order(types.SELL, "3", "12"),
	}

	got := Adjust(candidates, decimal.RequireFromString("4"), decimal.RequireFromString("7"))
	if len(got) != 2 {
		t.Fatalf("got %d orders, want 2: %+v", len(got), got)
	}
	if got[0].Side != types.BUY || !got[0].Amount.Equal(decimal.RequireFromString("5")) {
		t.Errorf("first admitted order = %+v, want BUY 5", got[0])
	}
	if got[1].Side != types.SELL || !got[1].Amount.Equal(decimal.RequireFromString("3")) {
		t.Errorf("second admitted order = %+v, want SELL 3", got[1])
	}
}

func TestAdjustComparesQuoteBalanceAgainstBaseAmountNotNotional(t *testing.T) {
	t.Parallel()

	// Notional (amount*price) for this order is 5*100=500, far beyond the
	// free quote of 7 — but the adjuster deliberately compares the free
	// quote balance against the order's base amount, not its notional.
	candidates := []types.ProposedOrder{order(types.BUY, "5", "100")}

	got := Adjust(candidates, decimal.Zero, decimal.RequireFromString("7"))
	if len(got) != 1 {
		t.Fatalf("expected the quirky comparison to admit this order, got %d orders", len(got))
	}
}

func TestAdjustPreservesInputOrder(t *testing.T) {
	t.Parallel()

	candidates := []types.ProposedOrder{
		order(types.SELL, "1", "12"),
		order(types.BUY, "1", "9"),
	}
	got := Adjust(candidates, decimal.RequireFromString("10"), decimal.RequireFromString("10"))
	if len(got) != 2 || got[0].Side != types.SELL || got[1].Side != types.BUY {
		t.Fatalf("order not preserved: %+v", got)
	}
}
