package event_test

import (
	"testing"
	"time"

	"VendorWatch/internal/event"
)

func TestExtractBaseID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"5210_1", "5210"},
		{"3001_27", "3001"},
		{"3001", "3001"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := event.ExtractBaseID(tt.in); got != tt.want {
			t.Errorf("ExtractBaseID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestChangeTypeString(t *testing.T) {
	tests := []struct {
		ct   event.ChangeType
		want string
	}{
		{event.ChangeUpdate, "update"},
		{event.ChangeAdd, "add"},
		{event.ChangeDelete, "delete"},
		{event.ChangeUnknown, "unknown"},
	}
	for _, tt := range tests {
		if got := tt.ct.String(); got != tt.want {
			t.Errorf("String(%d) = %q, want %q", tt.ct, got, tt.want)
		}
	}
}

func TestBuyEventDedupKey(t *testing.T) {
	ts := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	a := event.BuyEvent{Timestamp: ts, ItemID: 3001, GemCost: 50}
	b := event.BuyEvent{Timestamp: ts, ItemID: 3001, GemCost: 50}
	c := event.BuyEvent{Timestamp: ts, ItemID: 3001, GemCost: 60}

	if a.DedupKey() != b.DedupKey() {
		t.Error("identical events should share a dedup key")
	}
	if a.DedupKey() == c.DedupKey() {
		t.Error("events with different costs should not share a dedup key")
	}
}
