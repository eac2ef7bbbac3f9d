package diff

import (
	"testing"
	"time"

	"github.com/YuriAllexei/polypolypoly-sub000/pkg/types"
)

func TestOrdersCancelsLevelsNotInDesired(t *testing.T) {
	current := []types.TrackedOrder{
		{OrderID: "o1", Price: 0.40, OriginalSize: 100},
	}
	cancels, places := Orders(current, nil, "up-token")

	if len(cancels) != 1 || cancels[0] != "o1" {
		t.Fatalf("cancels = %v, want [o1]", cancels)
	}
	if len(places) != 0 {
		t.Fatalf("places = %v, want none", places)
	}
}

func TestOrdersPlacesNewLevelsNotCurrentlyResting(t *testing.T) {
	desired := []types.Quote{
		{Price: 0.40, Size: 100, Side: types.BUY},
	}
	cancels, places := Orders(nil, desired, "up-token")

	if len(cancels) != 0 {
		t.Fatalf("cancels = %v, want none", cancels)
	}
	if len(places) != 1 || places[0].Price != 0.40 || places[0].Size != 100 {
		t.Fatalf("places = %+v, want one 100@0.40", places)
	}
}

func TestOrdersSkipsPlacementBelowMinSize(t *testing.T) {
	desired := []types.Quote{
		{Price: 0.40, Size: types.MinOrderSize - 1, Side: types.BUY},
	}
	_, places := Orders(nil, desired, "up-token")
	if len(places) != 0 {
		t.Fatalf("places = %+v, want none (below MinOrderSize)", places)
	}
}

func TestOrdersWithinToleranceMakesNoChange(t *testing.T) {
	current := []types.TrackedOrder{
		{OrderID: "o1", Price: 0.40, OriginalSize: 100},
	}
	desired := []types.Quote{
		{Price: 0.40, Size: 100.5, Side: types.BUY},
	}
	cancels, places := Orders(current, desired, "up-token")
	if len(cancels) != 0 || len(places) != 0 {
		t.Fatalf("cancels=%v places=%+v, want no change (within tolerance)", cancels, places)
	}
}

func TestOrdersGrowsExistingLevelByPlacingAdditional(t *testing.T) {
	current := []types.TrackedOrder{
		{OrderID: "o1", Price: 0.40, OriginalSize: 50},
	}
	desired := []types.Quote{
		{Price: 0.40, Size: 100, Side: types.BUY},
	}
	cancels, places := Orders(current, desired, "up-token")
	if len(cancels) != 0 {
		t.Fatalf("cancels = %v, want none (growing a level keeps the resting order)", cancels)
	}
	if len(places) != 1 || places[0].Size != 50 {
		t.Fatalf("places = %+v, want one additional 50", places)
	}
}

func TestOrdersShrinksLevelKeepingOldestForQueuePriority(t *testing.T) {
	now := time.Now()
	current := []types.TrackedOrder{
		{OrderID: "old", Price: 0.40, OriginalSize: 60, CreatedAt: now.Add(-time.Hour)},
		{OrderID: "new", Price: 0.40, OriginalSize: 60, CreatedAt: now},
	}
	desired := []types.Quote{
		{Price: 0.40, Size: 60, Side: types.BUY},
	}
	cancels, places := Orders(current, desired, "up-token")

	if len(cancels) != 1 || cancels[0] != "new" {
		t.Fatalf("cancels = %v, want [new] (oldest order must be kept for queue priority)", cancels)
	}
	if len(places) != 0 {
		t.Fatalf("places = %+v, want none (60 remaining matches desired exactly)", places)
	}
}

func TestOrdersDuplicatePriceQuoteKeepsLargerSize(t *testing.T) {
	desired := []types.Quote{
		{Price: 0.40, Size: 10, Side: types.BUY},
		{Price: 0.40, Size: 50, Side: types.BUY},
	}
	_, places := Orders(nil, desired, "up-token")
	if len(places) != 1 || places[0].Size != 50 {
		t.Fatalf("places = %+v, want single placement of size 50 (larger duplicate wins)", places)
	}
}

func TestOrdersReplacesFullyStaleLadder(t *testing.T) {
	current := []types.TrackedOrder{
		{OrderID: "a", Price: 0.50, OriginalSize: 100},
		{OrderID: "b", Price: 0.49, OriginalSize: 100},
		{OrderID: "c", Price: 0.48, OriginalSize: 100},
	}
	desired := []types.Quote{
		{Price: 0.54, Size: 100, Side: types.BUY},
		{Price: 0.53, Size: 100, Side: types.BUY},
		{Price: 0.52, Size: 100, Side: types.BUY},
	}
	cancels, places := Orders(current, desired, "up-token")

	if len(cancels) != 3 {
		t.Fatalf("cancels = %v, want all three stale orders", cancels)
	}
	if len(places) != 3 {
		t.Fatalf("places = %+v, want all three new levels", places)
	}
}

func TestOrdersPartialTrimKeepsOldestAndPlacesRemainder(t *testing.T) {
	base := time.Unix(1000, 0)
	current := []types.TrackedOrder{
		{OrderID: "o-1000", Price: 0.49, OriginalSize: 100, CreatedAt: base},
		{OrderID: "o-1001", Price: 0.49, OriginalSize: 100, CreatedAt: base.Add(time.Second)},
		{OrderID: "o-1002", Price: 0.49, OriginalSize: 100, CreatedAt: base.Add(2 * time.Second)},
	}
	desired := []types.Quote{
		{Price: 0.49, Size: 140, Side: types.BUY},
	}
	cancels, places := Orders(current, desired, "up-token")

	if len(cancels) != 2 {
		t.Fatalf("cancels = %v, want the two newest orders", cancels)
	}
	for _, id := range cancels {
		if id == "o-1000" {
			t.Fatal("the oldest order holds queue priority and must never be cancelled here")
		}
	}
	if len(places) != 1 || places[0].Size != 40 {
		t.Fatalf("places = %+v, want a single 40-share remainder at 0.49", places)
	}
}

func TestOrdersAppliedOutputIsAFixedPoint(t *testing.T) {
	base := time.Unix(1000, 0)
	current := []types.TrackedOrder{
		{OrderID: "o1", Price: 0.50, OriginalSize: 100, CreatedAt: base},
	}
	desired := []types.Quote{
		{Price: 0.52, Size: 100, Side: types.BUY},
	}
	cancels, places := Orders(current, desired, "up-token")

	// Apply the diff: cancelled orders vanish, placements become resting orders.
	cancelled := make(map[string]bool, len(cancels))
	for _, id := range cancels {
		cancelled[id] = true
	}
	var next []types.TrackedOrder
	for _, o := range current {
		if !cancelled[o.OrderID] {
			next = append(next, o)
		}
	}
	for i, p := range places {
		next = append(next, types.TrackedOrder{
			OrderID:      "placed-" + string(rune('a'+i)),
			Price:        p.Price,
			OriginalSize: p.Size,
			CreatedAt:    base.Add(time.Minute),
		})
	}

	cancels2, places2 := Orders(next, desired, "up-token")
	if len(cancels2) != 0 || len(places2) != 0 {
		t.Fatalf("diff of the applied state should be empty, got cancels=%v places=%+v", cancels2, places2)
	}
}
