package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// cjkNamePattern strips everything except CJK characters, digits and
// brackets. OCR output carries English/marketing prefixes the catalog
// names do not.
var cjkNamePattern = regexp.MustCompile(`[^\x{4e00}-\x{9fa5}（）()0-9]`)

// priceTolerance: two prices within this delta are treated as equal.
var priceTolerance = decimal.NewFromFloat(0.01)

// Item is one catalog entry from item.json.
type Item struct {
	Name  string
	Price *decimal.Decimal // nil when the catalog carries no price
}

// Catalog is the local item database: numeric id -> name/price.
// Loaded once at startup; read-only afterwards.
type Catalog struct {
	items  map[int]Item
	byName map[string]int

	logger zerolog.Logger
}

type rawItem struct {
	Name  string          `json:"Name"`
	Price json.RawMessage `json:"Price"`
}

// Load reads item.json. A missing file yields an empty catalog, not an
// error: name lookups degrade to the "Item_<id>" fallback.
func Load(path string, logger zerolog.Logger) (*Catalog, error) {
	c := &Catalog{
		items:  make(map[int]Item),
		byName: make(map[string]int),
		logger: logger,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Warn().Str("path", path).Msg("item catalog not found, name lookups will fall back to ids")
			return c, nil
		}
		return nil, fmt.Errorf("read item catalog: %w", err)
	}

	var raw map[string]rawItem
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse item catalog: %w", err)
	}

	for idStr, ri := range raw {
		id, err := strconv.Atoi(idStr)
		if err != nil {
			continue
		}
		item := Item{Name: ri.Name}
		if p, ok := parsePrice(ri.Price); ok {
			item.Price = &p
		}
		c.items[id] = item
		if ri.Name != "" {
			c.byName[ri.Name] = id
		}
	}

	logger.Info().Int("items", len(c.items)).Str("path", path).Msg("item catalog loaded")
	return c, nil
}

// NewFromItems builds a catalog from an in-memory map. Used by tests.
func NewFromItems(items map[int]Item, logger zerolog.Logger) *Catalog {
	c := &Catalog{
		items:  make(map[int]Item, len(items)),
		byName: make(map[string]int, len(items)),
		logger: logger,
	}
	for id, item := range items {
		c.items[id] = item
		if item.Name != "" {
			c.byName[item.Name] = id
		}
	}
	return c
}

func parsePrice(raw json.RawMessage) (decimal.Decimal, bool) {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" || s == "null" {
		return decimal.Decimal{}, false
	}
	p, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return p, true
}

// NameByID returns the catalog name for an item id, or "Item_<id>".
func (c *Catalog) NameByID(id int) string {
	if item, ok := c.items[id]; ok && item.Name != "" {
		return item.Name
	}
	return fmt.Sprintf("Item_%d", id)
}

// ExtractCJKName keeps the contiguous CJK/digit/bracket part of an
// OCR-read name. Returns "" when nothing survives.
func ExtractCJKName(name string) string {
	return strings.TrimSpace(cjkNamePattern.ReplaceAllString(name, ""))
}

// ResolveID maps an OCR-read item name to a catalog id. Tries the cleaned
// name exactly, then the raw name, then falls back to price-based matching:
// two items with the same catalog price are treated as equivalent. Returns
// (0, false) when nothing matches.
func (c *Catalog) ResolveID(name string) (int, bool) {
	clean := ExtractCJKName(name)
	if clean == "" {
		clean = name
	}

	if id, ok := c.byName[clean]; ok {
		return id, true
	}
	if clean != name {
		if id, ok := c.byName[name]; ok {
			return id, true
		}
	}

	// Price-based fallback: a deliberate heuristic, not exact identity.
	ocrPrice, ok := c.PriceByName(name)
	if !ok {
		return 0, false
	}
	for id, item := range c.items {
		if item.Price != nil && pricesEqual(*item.Price, ocrPrice) {
			return id, true
		}
	}
	return 0, false
}

// PriceByName returns the catalog price for an item name. The placeholder
// "--" never resolves.
func (c *Catalog) PriceByName(name string) (decimal.Decimal, bool) {
	if name == "--" {
		return decimal.Decimal{}, false
	}
	lookup := func(n string) (decimal.Decimal, bool) {
		if id, ok := c.byName[n]; ok {
			if item := c.items[id]; item.Price != nil {
				return *item.Price, true
			}
		}
		return decimal.Decimal{}, false
	}
	if p, ok := lookup(name); ok {
		return p, true
	}
	if clean := ExtractCJKName(name); clean != "" && clean != name {
		return lookup(clean)
	}
	return decimal.Decimal{}, false
}

// NamesMatch reports whether two item names refer to the same item: exact
// equality, or both resolving to the same catalog price.
func (c *Catalog) NamesMatch(a, b string) bool {
	if a == b {
		return true
	}
	pa, okA := c.PriceByName(a)
	pb, okB := c.PriceByName(b)
	return okA && okB && pricesEqual(pa, pb)
}

func pricesEqual(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThan(priceTolerance)
}

// Len returns the number of catalog entries.
func (c *Catalog) Len() int {
	return len(c.items)
}
