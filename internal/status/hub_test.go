package status

import (
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"ladder-mm/internal/tickloop"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// BroadcastTick must carry every TickEvent field onto the wire, including
// cancelledCount, through to connected clients.
func TestBroadcastTickIncludesCancelledCount(t *testing.T) {
	t.Parallel()

	hub := NewHub(testLogger())

	event := tickloop.TickEvent{
		WorkerID:       "ladder-1",
		Timestamp:      time.Now(),
		State:          tickloop.StateWorking,
		RefPrice:       decimal.RequireFromString("11.2"),
		ProposedCount:  4,
		PlacedCount:    3,
		CancelledCount: 2,
	}
	hub.BroadcastTick(event)

	select {
	case data := <-hub.broadcast:
		var wire wireEvent
		if err := json.Unmarshal(data, &wire); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if wire.CancelledCount != 2 {
			t.Errorf("cancelledCount = %d, want 2", wire.CancelledCount)
		}
		if wire.PlacedCount != 3 || wire.ProposedCount != 4 {
			t.Errorf("placedCount/proposedCount = %d/%d, want 3/4", wire.PlacedCount, wire.ProposedCount)
		}
		if wire.WorkerID != "ladder-1" || wire.State != "WORKING" {
			t.Errorf("workerId/state = %s/%s, want ladder-1/WORKING", wire.WorkerID, wire.State)
		}
	default:
		t.Fatal("expected a broadcast message")
	}
}
