package reconciler

import (
	"context"
	"log/slog"
	"os"
	"sort"
	"testing"

	"ladder-mm/internal/gateway"
	"ladder-mm/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeGateway struct {
	cancelledIDs []string
	postedOrders []types.WireOrder
	placedReply  map[string]types.PlacedOrder
}

func (f *fakeGateway) DeleteOrders(ctx context.Context, ids []string, marketID, ownerAddress string) (map[string]types.CancelAck, error) {
	f.cancelledIDs = append(f.cancelledIDs, ids...)
	acks := make(map[string]types.CancelAck, len(ids))
	for _, id := range ids {
		acks[id] = types.CancelAck{ID: id, Success: true}
	}
	return acks, nil
}

func (f *fakeGateway) PostOrders(ctx context.Context, r gateway.Route, orders []types.WireOrder) (map[string]types.PlacedOrder, error) {
	f.postedOrders = append(f.postedOrders, orders...)
	return f.placedReply, nil
}

// S5: trackedIds={A,B,C}, currentlyTrackedIds={B}, venue open={A,B,D} →
// cancel request carries {A} only.
func TestCancelStaleScenarioS5(t *testing.T) {
	t.Parallel()

	tracker := NewTracker()
	tracker.tracked = map[string]struct{}{"A": {}, "B": {}, "C": {}}
	tracker.currentlyTracked = map[string]struct{}{"B": {}}

	fg := &fakeGateway{}
	cancelled, err := CancelStale(context.Background(), fg, tracker, []string{"A", "B", "D"}, "m1", "0xowner", testLogger())
	if err != nil {
		t.Fatalf("CancelStale: %v", err)
	}
	if cancelled != 1 {
		t.Errorf("cancelled count = %d, want 1", cancelled)
	}

	if len(fg.cancelledIDs) != 1 || fg.cancelledIDs[0] != "A" {
		t.Errorf("cancelled = %v, want [A]", fg.cancelledIDs)
	}
}

func TestCancelStaleNoOpWhenNothingStale(t *testing.T) {
	t.Parallel()

	tracker := NewTracker()
	tracker.tracked = map[string]struct{}{"A": {}}
	tracker.currentlyTracked = map[string]struct{}{"A": {}}

	fg := &fakeGateway{}
	if _, err := CancelStale(context.Background(), fg, tracker, []string{"A"}, "m1", "0xowner", testLogger()); err != nil {
		t.Fatalf("CancelStale: %v", err)
	}
	if len(fg.cancelledIDs) != 0 {
		t.Errorf("expected no cancellation, got %v", fg.cancelledIDs)
	}
}

func TestPlaceProposalUpdatesTrackerOnSuccess(t *testing.T) {
	t.Parallel()

	tracker := NewTracker()
	fg := &fakeGateway{placedReply: map[string]types.PlacedOrder{
		"v1": {ID: "v1", ClientID: "1"},
		"v2": {ID: "v2", ClientID: "2"},
	}}

	proposal := []types.ProposedOrder{
		{ClientID: "1", MarketID: "m1", Side: types.BUY},
		{ClientID: "2", MarketID: "m1", Side: types.SELL},
	}

	if err := PlaceProposal(context.Background(), fg, tracker, gateway.Route{}, proposal, "0xowner", testLogger()); err != nil {
		t.Fatalf("PlaceProposal: %v", err)
	}

	current := tracker.CurrentlyTracked()
	if _, ok := current["v1"]; !ok {
		t.Error("expected v1 to be currently tracked")
	}
	if _, ok := current["v2"]; !ok {
		t.Error("expected v2 to be currently tracked")
	}

	tracked := tracker.Tracked()
	if len(tracked) != 2 {
		t.Errorf("tracked set = %v, want 2 entries", tracked)
	}
}

func TestPlaceProposalSkipsGatewayCallWhenEmpty(t *testing.T) {
	t.Parallel()

	tracker := NewTracker()
	tracker.currentlyTracked = map[string]struct{}{"stale": {}}
	fg := &fakeGateway{}

	if err := PlaceProposal(context.Background(), fg, tracker, gateway.Route{}, nil, "0xowner", testLogger()); err != nil {
		t.Fatalf("PlaceProposal: %v", err)
	}
	if len(fg.postedOrders) != 0 {
		t.Error("expected no gateway call for empty proposal")
	}
	if _, ok := tracker.currentlyTracked["stale"]; !ok {
		t.Error("currentlyTracked should be left untouched on empty proposal")
	}
}

func TestDuplicateIDsSkipsForeignAndKeepsLatest(t *testing.T) {
	t.Parallel()

	orders := []types.VenueOrder{
		{ID: "v1", ClientID: "1"},
		{ID: "v2", ClientID: "1"},
		{ID: "v3", ClientID: types.ForeignClientID},
		{ID: "v4", ClientID: "2"},
	}

	got := DuplicateIDs(orders)
	sort.Strings(got)
	if len(got) != 1 || got[0] != "v1" {
		t.Errorf("DuplicateIDs = %v, want [v1]", got)
	}
}
