package verify_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"VendorWatch/internal/catalog"
	"VendorWatch/internal/event"
	"VendorWatch/internal/observability"
	"VendorWatch/internal/verify"
)

// memoryJournal is an in-memory Journal for tests.
type memoryJournal struct {
	records []verify.OcrRecognitionRecord
}

func (j *memoryJournal) Load() ([]verify.OcrRecognitionRecord, error) {
	out := make([]verify.OcrRecognitionRecord, len(j.records))
	copy(out, j.records)
	return out, nil
}

func (j *memoryJournal) Save(records []verify.OcrRecognitionRecord) error {
	j.records = make([]verify.OcrRecognitionRecord, len(records))
	copy(j.records, records)
	return nil
}

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	return catalog.NewFromItems(map[int]catalog.Item{
		3001: {Name: "强化石"},
		3002: {Name: "灵魂珠"},
	}, observability.NewLogger("test"))
}

func newService(t *testing.T, expire time.Duration) *verify.Service {
	t.Helper()
	return verify.NewService(testCatalog(t), nil, expire, nil)
}

func addCapture(s *verify.Service, name, quantity, gemCost string) {
	s.AddOCRResult(name, quantity,
		decimal.RequireFromString("1.5"),
		decimal.RequireFromString("1.2"),
		decimal.RequireFromString("0.3"),
		gemCost)
}

func TestVerifyPurchasesMatchesByItemID(t *testing.T) {
	s := newService(t, time.Minute)

	addCapture(s, "强化石", "x2", "x 100")
	s.AddBuyEvent(event.BuyEvent{
		Timestamp:    time.Now(),
		ItemID:       3001,
		ItemName:     "强化石",
		ItemQuantity: 2,
		GemCost:      100,
	})

	records := s.VerifyPurchases()
	if len(records) != 1 {
		t.Fatalf("expected 1 verified record, got %d", len(records))
	}

	rec := records[0]
	if rec.ItemID != 3001 {
		t.Errorf("item id = %d, want 3001", rec.ItemID)
	}
	if rec.ItemName != "强化石" {
		t.Errorf("item name = %q, want 强化石", rec.ItemName)
	}
	if rec.GemCost != 100 {
		t.Errorf("gem cost = %d, want 100", rec.GemCost)
	}
	if !rec.Verified {
		t.Error("record should be verified")
	}
	if rec.ID == "" {
		t.Error("record should carry an id")
	}
	if !rec.Profit.Equal(decimal.RequireFromString("0.3")) {
		t.Errorf("profit = %s, want 0.3", rec.Profit)
	}

	// The purchase event is consumed and the capture stays verified.
	if again := s.VerifyPurchases(); len(again) != 0 {
		t.Fatalf("second verification returned %d records, want 0", len(again))
	}
}

func TestVerifyPurchasesRequiresGemCostMatch(t *testing.T) {
	s := newService(t, time.Minute)

	addCapture(s, "强化石", "x1", "x 100")
	s.AddBuyEvent(event.BuyEvent{
		Timestamp:    time.Now(),
		ItemID:       3001,
		ItemName:     "强化石",
		ItemQuantity: 1,
		GemCost:      80,
	})

	if records := s.VerifyPurchases(); len(records) != 0 {
		t.Fatalf("expected no match on differing gem cost, got %d", len(records))
	}
}

func TestVerifyPurchasesQuantityHandling(t *testing.T) {
	tests := []struct {
		name        string
		ocrQuantity string
		buyQuantity int
		wantMatch   bool
	}{
		{"equal quantity", "x2", 2, true},
		{"differing quantity", "x2", 1, false},
		{"unreadable quantity is ignored", "--", 5, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newService(t, time.Minute)
			addCapture(s, "强化石", tt.ocrQuantity, "50")
			s.AddBuyEvent(event.BuyEvent{
				Timestamp:    time.Now(),
				ItemID:       3001,
				ItemName:     "强化石",
				ItemQuantity: tt.buyQuantity,
				GemCost:      50,
			})

			records := s.VerifyPurchases()
			if tt.wantMatch && len(records) != 1 {
				t.Fatalf("expected a match, got %d records", len(records))
			}
			if !tt.wantMatch && len(records) != 0 {
				t.Fatalf("expected no match, got %d records", len(records))
			}
		})
	}
}

func TestVerifyPurchasesMatchesByName(t *testing.T) {
	s := newService(t, time.Minute)

	// 9001 is not in the catalog, so the capture carries no item id and
	// matching falls back to the name.
	addCapture(s, "翡翠碎片", "x1", "x 30")
	s.AddBuyEvent(event.BuyEvent{
		Timestamp:    time.Now(),
		ItemID:       9001,
		ItemName:     "翡翠碎片",
		ItemQuantity: 1,
		GemCost:      30,
	})

	records := s.VerifyPurchases()
	if len(records) != 1 {
		t.Fatalf("expected 1 verified record, got %d", len(records))
	}
	if records[0].ItemID != 9001 {
		t.Errorf("item id = %d, want 9001 from the log side", records[0].ItemID)
	}
}

func TestVerifyPurchasesPrefersOldestCapture(t *testing.T) {
	s := newService(t, time.Minute)

	addCapture(s, "强化石", "x1", "50")
	addCapture(s, "灵魂珠", "x1", "50")
	s.AddBuyEvent(event.BuyEvent{
		Timestamp:    time.Now(),
		ItemID:       3001,
		ItemName:     "强化石",
		ItemQuantity: 1,
		GemCost:      50,
	})

	records := s.VerifyPurchases()
	if len(records) != 1 {
		t.Fatalf("expected 1 verified record, got %d", len(records))
	}
	if records[0].ItemName != "强化石" {
		t.Errorf("matched %q, want the capture whose item id agrees", records[0].ItemName)
	}
	if s.PendingCaptures() != 1 {
		t.Errorf("pending captures = %d, want 1", s.PendingCaptures())
	}
}

func TestVerifyPurchasesConsumesOldestBuyEvent(t *testing.T) {
	s := newService(t, time.Minute)

	// Two purchases of the same item at the same price, ten seconds
	// apart. Each capture must claim the earliest remaining one.
	early := time.Now().Add(-10 * time.Second)
	late := time.Now()
	s.AddBuyEvent(event.BuyEvent{
		Timestamp:    early,
		ItemID:       3001,
		ItemName:     "强化石",
		ItemQuantity: 1,
		GemCost:      50,
	})
	s.AddBuyEvent(event.BuyEvent{
		Timestamp:    late,
		ItemID:       3001,
		ItemName:     "强化石",
		ItemQuantity: 1,
		GemCost:      50,
	})

	addCapture(s, "强化石", "x1", "50")
	records := s.VerifyPurchases()
	if len(records) != 1 {
		t.Fatalf("expected 1 verified record, got %d", len(records))
	}
	if !records[0].LogTimestamp.Equal(early) {
		t.Errorf("first match log timestamp = %v, want the earlier purchase %v", records[0].LogTimestamp, early)
	}

	addCapture(s, "强化石", "x1", "50")
	records = s.VerifyPurchases()
	if len(records) != 1 {
		t.Fatalf("expected 1 verified record for the second capture, got %d", len(records))
	}
	if !records[0].LogTimestamp.Equal(late) {
		t.Errorf("second match log timestamp = %v, want the later purchase %v", records[0].LogTimestamp, late)
	}

	// Both purchases are consumed now.
	addCapture(s, "强化石", "x1", "50")
	if records := s.VerifyPurchases(); len(records) != 0 {
		t.Fatalf("third capture matched %d records with an empty buy cache", len(records))
	}
}

func TestOcrRecordKeyIncludesIdentity(t *testing.T) {
	ts := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	a := verify.OcrRecognitionRecord{Timestamp: ts, ItemName: "强化石", GemCost: "50"}
	b := verify.OcrRecognitionRecord{Timestamp: ts, ItemName: "灵魂珠", GemCost: "50"}
	c := verify.OcrRecognitionRecord{Timestamp: ts, ItemName: "强化石", GemCost: "30"}

	if a.Key() == b.Key() {
		t.Error("captures of different items in the same instant should have distinct keys")
	}
	if a.Key() == c.Key() {
		t.Error("captures with different gem costs in the same instant should have distinct keys")
	}
	if a.Key() != (verify.OcrRecognitionRecord{Timestamp: ts, ItemName: "强化石", GemCost: "50"}).Key() {
		t.Error("identical records should share a key")
	}
}

func TestCleanExpiredRecords(t *testing.T) {
	s := newService(t, 30*time.Millisecond)

	addCapture(s, "强化石", "x1", "50")
	time.Sleep(60 * time.Millisecond)

	if cleaned := s.CleanExpiredRecords(); cleaned != 1 {
		t.Fatalf("cleaned = %d, want 1", cleaned)
	}
	if s.PendingCaptures() != 0 {
		t.Errorf("pending captures = %d, want 0", s.PendingCaptures())
	}
}

func TestExpiredCaptureNeverVerifies(t *testing.T) {
	s := newService(t, 30*time.Millisecond)

	addCapture(s, "强化石", "x1", "50")
	time.Sleep(60 * time.Millisecond)

	s.AddBuyEvent(event.BuyEvent{
		Timestamp:    time.Now(),
		ItemID:       3001,
		ItemName:     "强化石",
		ItemQuantity: 1,
		GemCost:      50,
	})

	if records := s.VerifyPurchases(); len(records) != 0 {
		t.Fatalf("expired capture verified, got %d records", len(records))
	}
}

func TestGetRefreshEventsDrainsQueue(t *testing.T) {
	s := newService(t, time.Minute)

	s.AddRefreshEvent(event.RefreshEvent{Timestamp: time.Now(), GemCost: 50})
	s.AddRefreshEvent(event.RefreshEvent{Timestamp: time.Now(), GemCost: 30})

	events := s.GetRefreshEvents()
	if len(events) != 2 {
		t.Fatalf("expected 2 refresh events, got %d", len(events))
	}
	if again := s.GetRefreshEvents(); len(again) != 0 {
		t.Fatalf("queue should be empty after drain, got %d", len(again))
	}
}

func TestJournalReloadSkipsVerifiedRecords(t *testing.T) {
	journal := &memoryJournal{}

	s := verify.NewService(testCatalog(t), journal, time.Minute, nil)
	addCapture(s, "强化石", "x1", "50")
	addCapture(s, "灵魂珠", "x1", "40")

	// Verify one of the two captures.
	s.AddBuyEvent(event.BuyEvent{
		Timestamp:    time.Now(),
		ItemID:       3001,
		ItemName:     "强化石",
		ItemQuantity: 1,
		GemCost:      50,
	})
	if records := s.VerifyPurchases(); len(records) != 1 {
		t.Fatalf("expected 1 verified record, got %d", len(records))
	}

	// A fresh service over the same journal reloads only the pending one.
	restarted := verify.NewService(testCatalog(t), journal, time.Minute, nil)
	if got := restarted.PendingCaptures(); got != 1 {
		t.Fatalf("pending captures after reload = %d, want 1", got)
	}
}

func TestClearCache(t *testing.T) {
	s := newService(t, time.Minute)

	addCapture(s, "强化石", "x1", "50")
	s.AddBuyEvent(event.BuyEvent{Timestamp: time.Now(), ItemID: 3001, ItemName: "强化石", ItemQuantity: 1, GemCost: 50})
	s.AddRefreshEvent(event.RefreshEvent{Timestamp: time.Now(), GemCost: 50})

	s.ClearCache()

	if s.PendingCaptures() != 0 {
		t.Errorf("pending captures = %d, want 0", s.PendingCaptures())
	}
	if events := s.GetRefreshEvents(); len(events) != 0 {
		t.Errorf("refresh queue should be empty, got %d", len(events))
	}
	if records := s.VerifyPurchases(); len(records) != 0 {
		t.Errorf("no verifications expected after clear, got %d", len(records))
	}
}
