package persistence_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"VendorWatch/internal/event"
	"VendorWatch/internal/persistence"
	"VendorWatch/internal/verify"
)

func exchangeRecord(id string, ts time.Time, itemName string, profit string) verify.ExchangeRecord {
	return verify.ExchangeRecord{
		ID:             id,
		Timestamp:      ts,
		ItemName:       itemName,
		ItemID:         3001,
		ItemQuantity:   "x1",
		OriginalPrice:  decimal.RequireFromString("2.0"),
		ConvertedPrice: decimal.RequireFromString("1.5"),
		Profit:         decimal.RequireFromString(profit),
		GemCost:        50,
		OCRTimestamp:   ts,
		LogTimestamp:   ts,
		Verified:       true,
	}
}

func TestExchangeLogStoreRoundTrip(t *testing.T) {
	store := persistence.NewExchangeLogStore(filepath.Join(t.TempDir(), "exchange_log.json"), nil)

	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	// Appended out of order; the store keeps the file sorted.
	if err := store.AddRecords([]verify.ExchangeRecord{
		exchangeRecord("b", base.Add(time.Minute), "灵魂珠", "0.2"),
	}); err != nil {
		t.Fatalf("add records: %v", err)
	}
	if err := store.AddRecords([]verify.ExchangeRecord{
		exchangeRecord("a", base, "强化石", "0.5"),
	}); err != nil {
		t.Fatalf("add records: %v", err)
	}

	records, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("loaded %d records, want 2", len(records))
	}
	if records[0].ID != "a" || records[1].ID != "b" {
		t.Errorf("records not sorted by timestamp: %s, %s", records[0].ID, records[1].ID)
	}
	if !records[0].Profit.Equal(decimal.RequireFromString("0.5")) {
		t.Errorf("profit = %s, want 0.5", records[0].Profit)
	}
}

func TestExchangeLogStoreMissingFileIsEmpty(t *testing.T) {
	store := persistence.NewExchangeLogStore(filepath.Join(t.TempDir(), "absent.json"), nil)

	records, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected empty log, got %d records", len(records))
	}
}

func TestExchangeLogStoreQueries(t *testing.T) {
	store := persistence.NewExchangeLogStore(filepath.Join(t.TempDir(), "exchange_log.json"), nil)

	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	if err := store.AddRecords([]verify.ExchangeRecord{
		exchangeRecord("a", base, "强化石", "0.5"),
		exchangeRecord("b", base.Add(time.Hour), "灵魂珠", "0.2"),
		exchangeRecord("c", base.Add(2*time.Hour), "强化石", "0.1"),
	}); err != nil {
		t.Fatalf("add records: %v", err)
	}

	inRange, err := store.RecordsByDateRange(base.Add(30*time.Minute), base.Add(90*time.Minute))
	if err != nil {
		t.Fatalf("date range: %v", err)
	}
	if len(inRange) != 1 || inRange[0].ID != "b" {
		t.Errorf("date range returned %+v, want only b", inRange)
	}

	byName, err := store.RecordsByItemName("强化石")
	if err != nil {
		t.Fatalf("by name: %v", err)
	}
	if len(byName) != 2 {
		t.Errorf("by name returned %d records, want 2", len(byName))
	}

	latest, err := store.LatestRecords(2)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if len(latest) != 2 || latest[0].ID != "c" {
		t.Errorf("latest returned %+v, want c first", latest)
	}
}

func TestExchangeLogStoreDeleteByTimestamp(t *testing.T) {
	store := persistence.NewExchangeLogStore(filepath.Join(t.TempDir(), "exchange_log.json"), nil)

	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	if err := store.AddRecords([]verify.ExchangeRecord{
		exchangeRecord("a", base, "强化石", "0.5"),
		exchangeRecord("b", base.Add(time.Minute), "灵魂珠", "0.2"),
	}); err != nil {
		t.Fatalf("add records: %v", err)
	}

	deleted, err := store.DeleteByTimestamp(base)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !deleted {
		t.Fatal("expected a record to be deleted")
	}

	deleted, err = store.DeleteByTimestamp(base.Add(time.Hour))
	if err != nil {
		t.Fatalf("delete absent: %v", err)
	}
	if deleted {
		t.Fatal("no record should match an unknown timestamp")
	}

	records, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(records) != 1 || records[0].ID != "b" {
		t.Errorf("remaining records = %+v, want only b", records)
	}
}

func TestRefreshLogStoreRoundTrip(t *testing.T) {
	store := persistence.NewRefreshLogStore(filepath.Join(t.TempDir(), "refresh_log.json"), nil)

	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	if err := store.AddRecords([]event.RefreshEvent{
		{Timestamp: base, GemCost: 50, SpentItems: []event.SpentItem{{BaseID: "4001", Delta: -2, Quantity: 2}}},
		{Timestamp: base.Add(time.Minute), GemCost: 30},
	}); err != nil {
		t.Fatalf("add records: %v", err)
	}

	events, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("loaded %d events, want 2", len(events))
	}
	if events[0].GemCost != 50 || len(events[0].SpentItems) != 1 {
		t.Errorf("first event = %+v, want gem cost 50 with one spent item", events[0])
	}
}

func TestOCRLogStoreImplementsJournal(t *testing.T) {
	var journal verify.Journal = persistence.NewOCRLogStore(filepath.Join(t.TempDir(), "ocr_log.json"), nil)

	records := []verify.OcrRecognitionRecord{
		{
			Timestamp:    time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
			ItemName:     "强化石",
			ItemID:       3001,
			ItemQuantity: "x1",
			GemCost:      "50",
			ExpireTime:   time.Date(2026, 8, 30, 12, 1, 0, 0, time.UTC),
		},
	}
	if err := journal.Save(records); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := journal.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("loaded %d records, want 1", len(loaded))
	}
	if loaded[0].ItemName != "强化石" || loaded[0].ItemID != 3001 {
		t.Errorf("record = %+v, want 强化石 id 3001", loaded[0])
	}
}
