package inventory_test

import (
	"testing"
	"time"

	"VendorWatch/internal/event"
	"VendorWatch/internal/inventory"
	"VendorWatch/internal/observability"
)

func newManager(t *testing.T) *inventory.Manager {
	t.Helper()
	return inventory.NewManager(observability.NewLogger("test"))
}

func change(itemID string, changeType event.ChangeType, bagNum int) event.ItemChange {
	return event.ItemChange{
		ItemID:    itemID,
		BaseID:    event.ExtractBaseID(itemID),
		BagNum:    bagNum,
		PageID:    102,
		SlotID:    1,
		Timestamp: time.Now(),
		Type:      changeType,
	}
}

func TestApplyItemChangeLifecycle(t *testing.T) {
	m := newManager(t)

	m.ApplyItemChange(change("5210_1", event.ChangeUpdate, 500))
	m.ApplyItemChange(change("3001_2", event.ChangeAdd, 3))

	if got := m.ItemNum("5210"); got != 500 {
		t.Errorf("gem count = %d, want 500", got)
	}
	if got := m.ItemCount(); got != 2 {
		t.Errorf("item count = %d, want 2", got)
	}

	m.ApplyItemChange(change("3001_2", event.ChangeDelete, 0))
	if got := m.ItemNum("3001"); got != 0 {
		t.Errorf("count after delete = %d, want 0", got)
	}
}

func TestApplyItemChangeZeroBagNumKeepsQuantity(t *testing.T) {
	m := newManager(t)

	m.ApplyItemChange(change("3001_2", event.ChangeUpdate, 5))
	// A zero BagNum on a known instance is a slot move, not consumption.
	m.ApplyItemChange(change("3001_2", event.ChangeUpdate, 0))

	if got := m.ItemNum("3001"); got != 5 {
		t.Errorf("count = %d, want 5 preserved across zero update", got)
	}
}

func TestSnapshotsAggregateAndIsolate(t *testing.T) {
	m := newManager(t)

	m.ApplyItemChange(change("3001_1", event.ChangeUpdate, 2))
	m.ApplyItemChange(change("3001_2", event.ChangeUpdate, 3))
	m.ApplyItemChange(change("5210_1", event.ChangeUpdate, 100))

	snapshot := m.CreateSnapshot()
	if snapshot["3001"] != 5 {
		t.Errorf("base snapshot 3001 = %d, want 5 across both stacks", snapshot["3001"])
	}

	instances := m.CreateInstanceSnapshot()
	if instances["3001_1"] != 2 || instances["3001_2"] != 3 {
		t.Errorf("instance snapshot = %v, want per-stack quantities", instances)
	}

	// Later changes must not leak into an already taken snapshot.
	m.ApplyItemChange(change("3001_1", event.ChangeUpdate, 9))
	if snapshot["3001"] != 5 {
		t.Errorf("snapshot mutated to %d after later change", snapshot["3001"])
	}
}

func TestResetBackpackInitializedClearsState(t *testing.T) {
	m := newManager(t)

	m.ApplyItemChange(change("5210_1", event.ChangeUpdate, 100))
	m.MarkBackpackInitialized()
	if !m.IsBackpackInitialized() {
		t.Fatal("backpack should be initialized")
	}

	m.ResetBackpackInitialized()
	if m.IsBackpackInitialized() {
		t.Error("backpack flag should be cleared")
	}
	if m.ItemCount() != 0 {
		t.Errorf("item count = %d, want 0 after reset", m.ItemCount())
	}
}

func TestEventChangesAccumulateAndClear(t *testing.T) {
	m := newManager(t)

	m.ApplyItemChange(change("3001_1", event.ChangeUpdate, 2))
	m.ApplyItemChange(change("3001_1", event.ChangeDelete, 0))

	changes := m.EventChanges()
	if len(changes) != 2 {
		t.Fatalf("recorded %d changes, want 2", len(changes))
	}
	if changes[0].Type != event.ChangeUpdate || changes[1].Type != event.ChangeDelete {
		t.Errorf("change types = %v, %v", changes[0].Type, changes[1].Type)
	}

	m.ClearEventChanges()
	if got := m.EventChanges(); len(got) != 0 {
		t.Errorf("changes after clear = %d, want 0", len(got))
	}
}
