package verify

import (
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"VendorWatch/internal/catalog"
	"VendorWatch/internal/event"
	"VendorWatch/internal/observability"
)

// DefaultCacheExpire bounds how long an unverified capture or an
// unmatched purchase event stays eligible for matching.
const DefaultCacheExpire = 60 * time.Second

// firstNumberPattern pulls the leading integer out of OCR text like
// "x 50" or "×3".
var firstNumberPattern = regexp.MustCompile(`\d+`)

// Journal persists OCR capture records across restarts.
type Journal interface {
	Load() ([]OcrRecognitionRecord, error)
	Save([]OcrRecognitionRecord) error
}

type cachedBuy struct {
	event.BuyEvent
	addedAt time.Time
}

// Service cross-checks overlay OCR captures against purchase events from
// the game log. Both sides arrive asynchronously; whichever is first
// waits in a cache until the other appears or its window expires.
type Service struct {
	mu sync.Mutex

	cacheExpire time.Duration

	// Caches keep insertion order so matching is deterministic: the
	// oldest capture claims the oldest compatible purchase.
	ocrCache map[string]*OcrRecognitionRecord
	ocrOrder []string
	buyCache map[string]cachedBuy
	buyOrder []string

	refreshEvents []event.RefreshEvent

	items   *catalog.Catalog
	journal Journal

	logger  zerolog.Logger
	metrics *observability.Metrics

	now func() time.Time
}

// NewService builds a verification service. journal may be nil, in which
// case captures live only in memory. Previously journaled captures that
// are still unverified and unexpired are reloaded.
func NewService(items *catalog.Catalog, journal Journal, cacheExpire time.Duration, metrics *observability.Metrics) *Service {
	if cacheExpire <= 0 {
		cacheExpire = DefaultCacheExpire
	}
	s := &Service{
		cacheExpire: cacheExpire,
		ocrCache:    make(map[string]*OcrRecognitionRecord),
		buyCache:    make(map[string]cachedBuy),
		items:       items,
		journal:     journal,
		logger:      observability.NewLogger("verify"),
		metrics:     metrics,
		now:         time.Now,
	}
	s.loadJournal()
	return s
}

func (s *Service) loadJournal() {
	if s.journal == nil {
		return
	}
	records, err := s.journal.Load()
	if err != nil {
		s.logger.Error().Err(err).Msg("loading ocr journal failed")
		return
	}
	now := s.now()
	for i := range records {
		rec := records[i]
		if rec.Verified || rec.Expired(now) {
			continue
		}
		key := rec.Key()
		if _, ok := s.ocrCache[key]; ok {
			continue
		}
		s.ocrCache[key] = &rec
		s.ocrOrder = append(s.ocrOrder, key)
	}
	if len(s.ocrOrder) > 0 {
		s.logger.Info().Int("records", len(s.ocrOrder)).Msg("reloaded unverified ocr records")
	}
}

// saveJournal merges the cached records into the journal, replacing
// entries with the same key and appending new ones. Verified and expired
// history already in the journal is preserved. Caller holds the lock.
func (s *Service) saveJournal() {
	if s.journal == nil {
		return
	}
	all, err := s.journal.Load()
	if err != nil {
		s.logger.Error().Err(err).Msg("reading ocr journal for merge failed")
		all = nil
	}

	index := make(map[string]int, len(all))
	for i, rec := range all {
		index[rec.Key()] = i
	}
	for _, key := range s.ocrOrder {
		rec := *s.ocrCache[key]
		if i, ok := index[key]; ok {
			all[i] = rec
		} else {
			all = append(all, rec)
		}
	}

	if err := s.journal.Save(all); err != nil {
		s.logger.Error().Err(err).Msg("saving ocr journal failed")
	}
}

// AddOCRResult records one overlay capture. The item name is reduced to
// its CJK core before storage and resolved to a catalog id when possible.
func (s *Service) AddOCRResult(itemName, itemQuantity string, originalPrice, convertedPrice, profit decimal.Decimal, gemCost string) {
	now := s.now()

	cleanName := catalog.ExtractCJKName(itemName)
	if cleanName == "" {
		cleanName = itemName
	}
	itemID, _ := s.items.ResolveID(itemName)

	rec := &OcrRecognitionRecord{
		Timestamp:      now,
		ItemName:       cleanName,
		ItemID:         itemID,
		ItemQuantity:   itemQuantity,
		OriginalPrice:  originalPrice,
		ConvertedPrice: convertedPrice,
		Profit:         profit,
		GemCost:        gemCost,
		ExpireTime:     now.Add(s.cacheExpire),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := rec.Key()
	if _, ok := s.ocrCache[key]; !ok {
		s.ocrOrder = append(s.ocrOrder, key)
	}
	s.ocrCache[key] = rec
	s.saveJournal()

	if s.metrics != nil {
		s.metrics.OCRRecordsAdded.Inc()
		s.metrics.OCRCacheSize.Set(float64(len(s.ocrCache)))
	}
	s.logger.Info().
		Str("item", cleanName).
		Int("item_id", itemID).
		Str("quantity", itemQuantity).
		Str("gem_cost", gemCost).
		Msg("ocr capture recorded")
}

// AddBuyEvent records a purchase seen in the game log. Duplicate events
// with the same timestamp, item and cost collapse to one entry.
func (s *Service) AddBuyEvent(buy event.BuyEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := buy.DedupKey()
	if _, ok := s.buyCache[key]; !ok {
		s.buyOrder = append(s.buyOrder, key)
	}
	s.buyCache[key] = cachedBuy{BuyEvent: buy, addedAt: s.now()}

	if s.metrics != nil {
		s.metrics.BuyEventCacheSize.Set(float64(len(s.buyCache)))
	}
	s.logger.Info().
		Str("item", buy.ItemName).
		Int("gem_cost", buy.GemCost).
		Msg("purchase event cached")
}

// AddRefreshEvent queues a shop refresh for the monitor to drain.
func (s *Service) AddRefreshEvent(refresh event.RefreshEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshEvents = append(s.refreshEvents, refresh)
}

// VerifyPurchases matches pending captures against cached purchase
// events and returns the confirmed exchange records. A matched purchase
// event is consumed; the capture is marked verified and kept in the
// journal. Expired captures found along the way are dropped.
func (s *Service) VerifyPurchases() []ExchangeRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var verified []ExchangeRecord
	var expired []string

	for _, key := range s.ocrOrder {
		rec := s.ocrCache[key]
		if rec.Verified {
			continue
		}
		if rec.Expired(now) {
			expired = append(expired, key)
			continue
		}

		buyKey, buy := s.findMatchingBuy(rec)
		if buy == nil {
			if s.metrics != nil {
				s.metrics.MatchAttempts.WithLabelValues("miss").Inc()
			}
			continue
		}

		record := s.newExchangeRecord(rec, *buy)
		verified = append(verified, record)

		rec.Verified = true
		rec.VerifiedBy = buyKey
		s.removeBuy(buyKey)

		if s.metrics != nil {
			s.metrics.MatchAttempts.WithLabelValues("hit").Inc()
			s.metrics.PurchasesVerified.Inc()
		}
		s.logger.Info().
			Str("item", rec.ItemName).
			Str("quantity", rec.ItemQuantity).
			Str("profit", rec.Profit.String()).
			Msg("purchase verified")
	}

	for _, key := range expired {
		s.dropOCRRecord(key)
	}

	if len(verified) > 0 || len(expired) > 0 {
		s.saveJournal()
	}
	if s.metrics != nil {
		s.metrics.OCRCacheSize.Set(float64(len(s.ocrCache)))
		s.metrics.BuyEventCacheSize.Set(float64(len(s.buyCache)))
	}
	return verified
}

// findMatchingBuy scans cached purchases in insertion order. A match
// needs the same gem cost, then the item id (preferred) or the item name
// (exact or price-equivalent), and the same quantity when the OCR
// quantity text is parseable. Caller holds the lock.
func (s *Service) findMatchingBuy(rec *OcrRecognitionRecord) (string, *event.BuyEvent) {
	gemCost, ok := extractNumber(rec.GemCost)
	if !ok {
		s.logger.Warn().Str("gem_cost", rec.GemCost).Msg("unreadable gem cost in ocr capture")
		return "", nil
	}
	quantity, hasQuantity := extractNumber(rec.ItemQuantity)

	for _, key := range s.buyOrder {
		buy := s.buyCache[key]
		if buy.GemCost != gemCost {
			continue
		}
		if hasQuantity && buy.ItemQuantity != quantity {
			continue
		}
		if rec.ItemID != 0 && rec.ItemID == buy.ItemID {
			return key, &buy.BuyEvent
		}
		if s.items.NamesMatch(rec.ItemName, buy.ItemName) {
			return key, &buy.BuyEvent
		}
	}
	return "", nil
}

func (s *Service) newExchangeRecord(rec *OcrRecognitionRecord, buy event.BuyEvent) ExchangeRecord {
	// The capture usually precedes the log line; the earlier moment is
	// the purchase time.
	purchaseTime := rec.Timestamp
	if buy.Timestamp.Before(purchaseTime) {
		purchaseTime = buy.Timestamp
	}
	return ExchangeRecord{
		ID:             uuid.NewString(),
		Timestamp:      purchaseTime,
		ItemName:       rec.ItemName,
		ItemID:         buy.ItemID,
		ItemQuantity:   rec.ItemQuantity,
		OriginalPrice:  rec.OriginalPrice,
		ConvertedPrice: rec.ConvertedPrice,
		Profit:         rec.Profit,
		GemCost:        buy.GemCost,
		OCRTimestamp:   rec.Timestamp,
		LogTimestamp:   buy.Timestamp,
		Verified:       true,
	}
}

// GetRefreshEvents drains the refresh queue.
func (s *Service) GetRefreshEvents() []event.RefreshEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	events := s.refreshEvents
	s.refreshEvents = nil
	return events
}

// CleanExpiredRecords drops expired captures and stale purchase events,
// returning how many captures were removed.
func (s *Service) CleanExpiredRecords() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	var expired []string
	for _, key := range s.ocrOrder {
		if s.ocrCache[key].Expired(now) {
			expired = append(expired, key)
		}
	}
	for _, key := range expired {
		s.dropOCRRecord(key)
	}

	var staleBuys []string
	for _, key := range s.buyOrder {
		if now.Sub(s.buyCache[key].addedAt) > s.cacheExpire {
			staleBuys = append(staleBuys, key)
		}
	}
	for _, key := range staleBuys {
		s.removeBuy(key)
	}

	if len(expired) > 0 {
		s.saveJournal()
		if s.metrics != nil {
			s.metrics.OCRRecordsExpired.Add(float64(len(expired)))
		}
		s.logger.Info().Int("records", len(expired)).Msg("expired ocr records removed")
	}
	if s.metrics != nil {
		s.metrics.OCRCacheSize.Set(float64(len(s.ocrCache)))
		s.metrics.BuyEventCacheSize.Set(float64(len(s.buyCache)))
	}
	return len(expired)
}

// ClearCache empties every cache without touching the journal.
func (s *Service) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ocrCache = make(map[string]*OcrRecognitionRecord)
	s.ocrOrder = nil
	s.buyCache = make(map[string]cachedBuy)
	s.buyOrder = nil
	s.refreshEvents = nil
	if s.metrics != nil {
		s.metrics.OCRCacheSize.Set(0)
		s.metrics.BuyEventCacheSize.Set(0)
	}
	s.logger.Info().Msg("verification caches cleared")
}

// PendingCaptures reports how many unverified captures are waiting.
func (s *Service) PendingCaptures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, key := range s.ocrOrder {
		if !s.ocrCache[key].Verified {
			n++
		}
	}
	return n
}

func (s *Service) dropOCRRecord(key string) {
	if _, ok := s.ocrCache[key]; !ok {
		return
	}
	delete(s.ocrCache, key)
	for i, k := range s.ocrOrder {
		if k == key {
			s.ocrOrder = append(s.ocrOrder[:i], s.ocrOrder[i+1:]...)
			break
		}
	}
}

func (s *Service) removeBuy(key string) {
	if _, ok := s.buyCache[key]; !ok {
		return
	}
	delete(s.buyCache, key)
	for i, k := range s.buyOrder {
		if k == key {
			s.buyOrder = append(s.buyOrder[:i], s.buyOrder[i+1:]...)
			break
		}
	}
}

func extractNumber(s string) (int, bool) {
	m := firstNumberPattern.FindString(s)
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	return n, true
}
