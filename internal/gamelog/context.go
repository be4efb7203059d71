package gamelog

import (
	"time"

	"VendorWatch/internal/event"
)

// EventMeta carries classification derived after the event closes.
type EventMeta struct {
	// IsMove marks events identified as pure item relocation
	// (layout reset, warehouse move). Changes on MovedItemIDs must not
	// be read as purchases or consumption.
	IsMove       bool
	MovedItemIDs map[string]struct{}
}

// EventContext accumulates everything observed between a ProtoName start
// marker and the matching end marker (or a forced close).
type EventContext struct {
	EventType string
	StartTime time.Time
	EndTime   time.Time // zero until the end marker is seen

	// Snapshot aggregates quantities per base id at event start;
	// InstanceSnapshot records per-instance BagNum at event start.
	Snapshot         map[string]int
	InstanceSnapshot map[string]int

	Updates []event.ItemChange
	Adds    []event.ItemChange
	Deletes []event.ItemChange

	Success bool
	Meta    EventMeta
}

func newEventContext(eventType string, start time.Time, snapshot, instanceSnapshot map[string]int) *EventContext {
	return &EventContext{
		EventType:        eventType,
		StartTime:        start,
		Snapshot:         snapshot,
		InstanceSnapshot: instanceSnapshot,
	}
}

// AddChange files an item change under its change type.
func (c *EventContext) AddChange(ch event.ItemChange) {
	switch ch.Type {
	case event.ChangeUpdate:
		c.Updates = append(c.Updates, ch)
	case event.ChangeAdd:
		c.Adds = append(c.Adds, ch)
	case event.ChangeDelete:
		c.Deletes = append(c.Deletes, ch)
	}
}

// ChangeCount reports the total number of item changes captured so far.
func (c *EventContext) ChangeCount() int {
	return len(c.Updates) + len(c.Adds) + len(c.Deletes)
}

// Moved reports whether itemID was tagged as relocated by move detection.
func (c *EventContext) Moved(itemID string) bool {
	if !c.Meta.IsMove {
		return false
	}
	_, ok := c.Meta.MovedItemIDs[itemID]
	return ok
}
