package event

import "time"

// SpentItem records one negative inventory delta observed inside an event.
type SpentItem struct {
	BaseID   string `json:"base_id"`
	Delta    int    `json:"delta"`
	Quantity int    `json:"quantity"`
}

// RefreshEvent is one confirmed vendor-shop refresh. Immutable; queued by
// the verification service and drained by the monitor each poll cycle.
type RefreshEvent struct {
	Timestamp time.Time `json:"timestamp"`
	GemCost   int       `json:"gem_cost"`

	// Inventory context at finalization time, kept for diagnostics.
	Snapshot   map[string]int `json:"snapshot,omitempty"`
	SpentItems []SpentItem    `json:"spent_items,omitempty"`
}
