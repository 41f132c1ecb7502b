// Package reconciler tracks which venue orders this worker placed and
// cancels the ones it no longer wants, without ever touching foreign orders.
package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"ladder-mm/internal/gateway"
	"ladder-mm/pkg/types"
)

// Gateway is the subset of the gateway client facade the reconciler needs.
type Gateway interface {
	DeleteOrders(ctx context.Context, ids []string, marketID, ownerAddress string) (map[string]types.CancelAck, error)
	PostOrders(ctx context.Context, r gateway.Route, orders []types.WireOrder) (map[string]types.PlacedOrder, error)
}

// Tracker holds the worker-local tracking sets described in the data model:
// currentlyTrackedIds (latest successful placement) and trackedIds
// (cumulative union since worker start). Not safe for concurrent use from
// multiple goroutines; the tick loop guarantees single-threaded access.
type Tracker struct {
	currentlyTracked map[string]struct{}
	tracked          map[string]struct{}
}

// NewTracker returns an empty tracker, as at worker start.
func NewTracker() *Tracker {
	return &Tracker{
		currentlyTracked: make(map[string]struct{}),
		tracked:          make(map[string]struct{}),
	}
}

// CurrentlyTracked returns a snapshot of the currently-tracked id set.
func (t *Tracker) CurrentlyTracked() map[string]struct{} {
	out := make(map[string]struct{}, len(t.currentlyTracked))
	for id := range t.currentlyTracked {
		out[id] = struct{}{}
	}
	return out
}

// Tracked returns a snapshot of the cumulative tracked id set.
func (t *Tracker) Tracked() map[string]struct{} {
	out := make(map[string]struct{}, len(t.tracked))
	for id := range t.tracked {
		out[id] = struct{}{}
	}
	return out
}

// CancelStale computes toCancel = trackedIds ∩ openIds − currentlyTrackedIds
// and submits deleteOrders if the set is non-empty. Foreign orders (never
// tracked) are never included.
func CancelStale(ctx context.Context, gw Gateway, tracker *Tracker, openIDs []string, marketID, ownerAddress string, logger *slog.Logger) (int, error) {
	open := make(map[string]struct{}, len(openIDs))
	for _, id := range openIDs {
		open[id] = struct{}{}
	}

	var toCancel []string
	for id := range tracker.tracked {
		if _, isOpen := open[id]; !isOpen {
			continue
		}
		if _, current := tracker.currentlyTracked[id]; current {
			continue
		}
		toCancel = append(toCancel, id)
	}

	if len(toCancel) == 0 {
		logger.Debug("no stale orders to cancel")
		return 0, nil
	}

	sort.Strings(toCancel)
	if _, err := gw.DeleteOrders(ctx, toCancel, marketID, ownerAddress); err != nil {
		return 0, fmt.Errorf("cancel stale orders: %w", err)
	}
	logger.Info("cancelled stale orders", "count", len(toCancel), "ids", toCancel)
	return len(toCancel), nil
}

// PlaceProposal submits the adjusted proposal via postOrders. On success,
// currentlyTrackedIds is replaced with the response's keys and they are
// appended to trackedIds. On an empty proposal, no call is issued and
// currentlyTrackedIds is left untouched, so stale orders are still
// cancelled on the next tick.
func PlaceProposal(ctx context.Context, gw Gateway, tracker *Tracker, r gateway.Route, proposal []types.ProposedOrder, ownerAddress string, logger *slog.Logger) error {
	if len(proposal) == 0 {
		logger.Warn("no order was defined for placement/replacement, skipping")
		return nil
	}

	wire := make([]types.WireOrder, len(proposal))
	for i, o := range proposal {
		wire[i] = types.WireOrder{
			ClientID:     o.ClientID,
			MarketID:     o.MarketID,
			OwnerAddress: ownerAddress,
			Side:         o.Side,
			Price:        o.Price.String(),
			Amount:       o.Amount.String(),
			Type:         o.Type,
		}
	}

	placed, err := gw.PostOrders(ctx, r, wire)
	if err != nil {
		return fmt.Errorf("place proposal: %w", err)
	}

	current := make(map[string]struct{}, len(placed))
	for id := range placed {
		current[id] = struct{}{}
		tracker.tracked[id] = struct{}{}
	}
	tracker.currentlyTracked = current

	logger.Info("orders placed", "count", len(placed))
	return nil
}

// DuplicateIDs groups open orders by ClientID (skipping the reserved "0"),
// and within each group returns every id but the last after sorting by
// venue id — the auxiliary duplicate scan, not invoked automatically by the
// tick loop (see DESIGN.md open question 4).
func DuplicateIDs(openOrders []types.VenueOrder) []string {
	groups := make(map[string][]types.VenueOrder)
	for _, o := range openOrders {
		if o.ClientID == types.ForeignClientID {
			continue
		}
		groups[o.ClientID] = append(groups[o.ClientID], o)
	}

	var duplicates []string
	// Deterministic iteration: sort group keys so callers (and tests) see a
	// stable order.
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		orders := groups[k]
		sort.Slice(orders, func(i, j int) bool { return orders[i].ID < orders[j].ID })
		for _, o := range orders[:len(orders)-1] {
			duplicates = append(duplicates, o.ID)
		}
	}
	return duplicates
}
