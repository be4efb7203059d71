package verify

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// OcrRecognitionRecord is one overlay capture of a shop offer: the item
// name and prices as read from the screen, pending confirmation from the
// game log.
type OcrRecognitionRecord struct {
	Timestamp      time.Time       `json:"timestamp"`
	ItemName       string          `json:"item_name"`
	ItemID         int             `json:"item_id,omitempty"` // 0 when the catalog lookup failed
	ItemQuantity   string          `json:"item_quantity"`     // raw OCR text, e.g. "x5"
	OriginalPrice  decimal.Decimal `json:"original_price"`
	ConvertedPrice decimal.Decimal `json:"converted_price"`
	Profit         decimal.Decimal `json:"profit"`
	GemCost        string          `json:"gem_cost"` // raw OCR text, e.g. "x 50"
	Verified       bool            `json:"verified"`
	VerifiedBy     string          `json:"verified_by_event_id,omitempty"`
	ExpireTime     time.Time       `json:"expire_time"`
}

// Key identifies a record inside the cache and the journal file. The item
// name and gem cost are part of the identity so that two captures landing
// on the same instant stay distinct.
func (r OcrRecognitionRecord) Key() string {
	return fmt.Sprintf("ocr_%s_%s_%s", r.Timestamp.Format(time.RFC3339Nano), r.ItemName, r.GemCost)
}

// Expired reports whether the record's verification window has passed.
func (r OcrRecognitionRecord) Expired(now time.Time) bool {
	return !r.ExpireTime.IsZero() && now.After(r.ExpireTime)
}

// ExchangeRecord is a purchase confirmed by both the overlay capture and
// the game log. Screen-derived fields come from the capture, the gem
// cost and item id from the log.
type ExchangeRecord struct {
	ID             string          `json:"id"`
	Timestamp      time.Time       `json:"timestamp"`
	ItemName       string          `json:"item_name"`
	ItemID         int             `json:"item_id"`
	ItemQuantity   string          `json:"item_quantity"`
	OriginalPrice  decimal.Decimal `json:"original_price"`
	ConvertedPrice decimal.Decimal `json:"converted_price"`
	Profit         decimal.Decimal `json:"profit"`
	GemCost        int             `json:"gem_cost"`
	OCRTimestamp   time.Time       `json:"ocr_timestamp"`
	LogTimestamp   time.Time       `json:"log_timestamp"`
	Verified       bool            `json:"verified"`
}
