package event

import (
	"strings"
	"time"
)

// ChangeType discriminator for inventory mutations
type ChangeType int32

const (
	ChangeUnknown ChangeType = iota
	ChangeUpdate
	ChangeAdd
	ChangeDelete
)

func (ct ChangeType) String() string {
	switch ct {
	case ChangeUpdate:
		return "update"
	case ChangeAdd:
		return "add"
	case ChangeDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// ItemChange describes one inventory mutation parsed from an
// `ItemChange@ Update|Add|Delete` log line. Immutable once produced.
type ItemChange struct {
	// Full instance id: "<base_id>_<instance_id>" or bare "<base_id>"
	ItemID string

	// Item-type id shared by all stacked instances
	BaseID string

	PageID int
	SlotID int

	Timestamp time.Time
	Type      ChangeType

	// New quantity in the slot. Zero for Delete (the line carries none).
	BagNum int

	RawLine string
}

// ExtractBaseID strips the instance suffix from a full item id.
// "5210_12345" -> "5210"; a bare id passes through unchanged.
func ExtractBaseID(itemID string) string {
	if i := strings.Index(itemID, "_"); i >= 0 {
		return itemID[:i]
	}
	return itemID
}
