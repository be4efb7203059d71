package inventory

import (
	"sync"
	"time"

	"VendorWatch/internal/event"

	"github.com/rs/zerolog"
)

// GemBaseID is the base id of the in-game premium currency.
const GemBaseID = "5210"

// Inventory page ids as they appear in the game log.
const (
	PageEquipment  = 100
	PageSkill      = 101
	PageConsumable = 102
	PageWarehouse  = -1
)

// ItemRecord tracks one item instance (slot). Owned exclusively by the
// Manager; mutated only through ApplyItemChange.
type ItemRecord struct {
	BaseID     string
	ItemID     string
	BagNum     int
	PageID     int
	SlotID     int
	LastUpdate time.Time
}

// Manager keeps the authoritative per-instance inventory state parsed from
// the game log. One instance per process: the game has exactly one backpack
// per running session.
type Manager struct {
	mu sync.Mutex

	records      map[string]*ItemRecord // keyed by full item id
	eventChanges []event.ItemChange
	initialized  bool

	logger zerolog.Logger
}

func NewManager(logger zerolog.Logger) *Manager {
	return &Manager{
		records: make(map[string]*ItemRecord),
		logger:  logger,
	}
}

// IsBackpackInitialized reports whether the log showed a completed backpack
// load. Buy/refresh detection is only trusted after this flips true: a
// half-loaded backpack produces false deltas.
func (m *Manager) IsBackpackInitialized() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initialized
}

func (m *Manager) MarkBackpackInitialized() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initialized = true
	m.logger.Info().Int("items", len(m.records)).Msg("backpack initialized")
}

// ResetBackpackInitialized clears all state. Called on relogin and on log
// rotation, when every prior assumption about the backpack is invalid.
func (m *Manager) ResetBackpackInitialized() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initialized = false
	m.records = make(map[string]*ItemRecord)
	m.eventChanges = m.eventChanges[:0]
	m.logger.Info().Msg("backpack state reset")
}

// ApplyItemChange applies one parsed inventory mutation. Add and Update
// insert-or-update the instance record; Delete removes it entirely. Every
// mutation is also appended to the current-event change log.
func (m *Manager) ApplyItemChange(change event.ItemChange) {
	m.mu.Lock()
	defer m.mu.Unlock()

	itemID := change.ItemID
	if itemID == "" {
		itemID = change.BaseID
	}

	switch change.Type {
	case event.ChangeAdd, event.ChangeUpdate:
		rec, ok := m.records[itemID]
		if !ok {
			m.records[itemID] = &ItemRecord{
				BaseID:     change.BaseID,
				ItemID:     itemID,
				BagNum:     change.BagNum,
				PageID:     change.PageID,
				SlotID:     change.SlotID,
				LastUpdate: change.Timestamp,
			}
		} else {
			old := rec.BagNum
			// A zero BagNum on an existing record keeps the old quantity.
			if change.BagNum != 0 {
				rec.BagNum = change.BagNum
			}
			rec.LastUpdate = change.Timestamp
			if change.BaseID == GemBaseID {
				m.logger.Debug().
					Int("old", old).
					Int("new", rec.BagNum).
					Int("delta", rec.BagNum-old).
					Msg("gem quantity changed")
			}
		}

	case event.ChangeDelete:
		if rec, ok := m.records[itemID]; ok {
			m.logger.Debug().
				Str("base_id", change.BaseID).
				Int("old", rec.BagNum).
				Msg("item deleted")
			delete(m.records, itemID)
		}
	}

	m.eventChanges = append(m.eventChanges, change)
}

// CreateSnapshot sums BagNum across all instances sharing a base id.
// Items can occupy multiple slots.
func (m *Manager) CreateSnapshot() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := make(map[string]int, len(m.records))
	for _, rec := range m.records {
		snapshot[rec.BaseID] += rec.BagNum
	}
	return snapshot
}

// CreateInstanceSnapshot captures the exact per-instance quantities. Used to
// compute precise deltas when two instances of the same base item coexist.
func (m *Manager) CreateInstanceSnapshot() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := make(map[string]int, len(m.records))
	for itemID, rec := range m.records {
		snapshot[itemID] = rec.BagNum
	}
	return snapshot
}

// ItemNum returns the summed quantity across all instances of a base id.
func (m *Manager) ItemNum(baseID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	total := 0
	for _, rec := range m.records {
		if rec.BaseID == baseID {
			total += rec.BagNum
		}
	}
	return total
}

// AllItems returns a copy of all instance records.
func (m *Manager) AllItems() map[string]ItemRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]ItemRecord, len(m.records))
	for id, rec := range m.records {
		out[id] = *rec
	}
	return out
}

// ItemCount returns the number of tracked instances.
func (m *Manager) ItemCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// EventChanges returns a copy of the diagnostic change log.
func (m *Manager) EventChanges() []event.ItemChange {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]event.ItemChange, len(m.eventChanges))
	copy(out, m.eventChanges)
	return out
}

// ClearEventChanges empties the diagnostic change log.
func (m *Manager) ClearEventChanges() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.eventChanges = m.eventChanges[:0]
}
