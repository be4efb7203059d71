package event

import (
	"fmt"
	"time"
)

// BuyEvent is one log-confirmed vendor purchase: the paired result of a
// currency spend and an item gain inside (or near) one BuyVendorGoods
// event window. Immutable; produced once per matched purchase.
type BuyEvent struct {
	Timestamp    time.Time `json:"timestamp"`
	ItemID       int       `json:"item_id"`
	ItemName     string    `json:"item_name"`
	ItemQuantity int       `json:"item_quantity"`
	GemCost      int       `json:"gem_cost"`
}

// DedupKey returns the stable cache key for this event.
func (e BuyEvent) DedupKey() string {
	return fmt.Sprintf("buy_%s_%d_%d", e.Timestamp.Format(time.RFC3339Nano), e.ItemID, e.GemCost)
}
