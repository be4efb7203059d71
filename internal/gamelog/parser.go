package gamelog

import (
	"bufio"
	"errors"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"VendorWatch/internal/catalog"
	"VendorWatch/internal/event"
	"VendorWatch/internal/inventory"
	"VendorWatch/internal/observability"
	"VendorWatch/internal/season"
)

const (
	// updateBufferWindow bounds how long update records stay available
	// for cross-event timestamp pairing.
	updateBufferWindow = 10 * time.Second

	// pairingTolerance is the maximum clock distance between a gem spend
	// and the item update it is paired with.
	pairingTolerance = 100 * time.Millisecond

	// defaultRefreshGemCost applies when a shop refresh spends no gems
	// directly (for example when a free refresh charge is consumed).
	defaultRefreshGemCost = 50
)

// bufferedUpdate is one Update line retained for timestamp pairing.
type bufferedUpdate struct {
	BaseID    string
	ItemID    string
	BagNum    int
	PageID    int
	SlotID    int
	Timestamp time.Time
}

// PlayerInfo is the identity gleaned from +player+ log blocks.
type PlayerInfo struct {
	Name       string
	SeasonID   int
	SeasonType season.ServerType
}

// Parser tails a game log file and turns its lines into purchase and
// refresh events. It is single-goroutine: callers serialize ParseNew.
type Parser struct {
	path string

	lastPosition int64
	lastSize     int64
	initialized  bool

	inv     *inventory.Manager
	seasons *season.Service
	items   *catalog.Catalog

	current *EventContext
	// previous holds the last closed Push2 or BuyVendorGoods context, the
	// only event types consulted for cross-event purchase recovery.
	previous *EventContext

	updateBuffer map[string]bufferedUpdate

	playerName     string
	playerSeasonID int

	logger  zerolog.Logger
	metrics *observability.Metrics

	now func() time.Time
}

// lineOutput accumulates the events emitted while processing one batch.
type lineOutput struct {
	buys      []event.BuyEvent
	refreshes []event.RefreshEvent
}

// lineHandler consumes one parsed line. Returning handled=true stops the
// dispatch chain for that line.
type lineHandler struct {
	name   string
	handle func(p *Parser, line logLine, out *lineOutput) (handled bool, err error)
}

// lineHandlers is the dispatch table, in priority order.
var lineHandlers = []lineHandler{
	{"connection_closed", (*Parser).handleConnectionClosed},
	{"player_info", (*Parser).handlePlayerInfo},
	{"load_progress", (*Parser).handleLoadProgress},
	{"item_change", (*Parser).handleItemChange},
	{"event_start", (*Parser).handleEventStart},
	{"event_end", (*Parser).handleEventEnd},
	{"success_flag", (*Parser).handleSuccessFlag},
}

// NewParser builds a parser over the log file at path. The inventory
// manager, season service and item catalog are shared with the caller.
func NewParser(path string, inv *inventory.Manager, seasons *season.Service, items *catalog.Catalog, metrics *observability.Metrics) *Parser {
	return &Parser{
		path:         path,
		inv:          inv,
		seasons:      seasons,
		items:        items,
		updateBuffer: make(map[string]bufferedUpdate),
		logger:       observability.NewLogger("gamelog"),
		metrics:      metrics,
		now:          time.Now,
	}
}

// Path returns the log file being tailed.
func (p *Parser) Path() string {
	return p.path
}

// PlayerInfo returns the most recently observed player identity. ok is
// false until a player name has been seen.
func (p *Parser) PlayerInfo() (PlayerInfo, bool) {
	if p.playerName == "" {
		return PlayerInfo{}, false
	}
	return PlayerInfo{
		Name:       p.playerName,
		SeasonID:   p.playerSeasonID,
		SeasonType: season.ResolveServerType(p.playerSeasonID),
	}, true
}

// ResetPosition discards all tailing and session state. The next ParseNew
// re-reads the file from the beginning.
func (p *Parser) ResetPosition() {
	p.lastPosition = 0
	p.lastSize = 0
	p.initialized = true
	p.resetSessionState()
}

func (p *Parser) resetSessionState() {
	p.current = nil
	p.previous = nil
	p.updateBuffer = make(map[string]bufferedUpdate)
	p.playerName = ""
	p.playerSeasonID = 0
	p.inv.ResetBackpackInitialized()
}

// ParseNew reads bytes appended since the previous call and returns the
// purchase and refresh events they produced. The first call only records
// the current end of file so that stale history is never replayed. A file
// that shrank is treated as rotated: all state resets and the call
// returns empty.
func (p *Parser) ParseNew() ([]event.BuyEvent, []event.RefreshEvent, error) {
	info, err := os.Stat(p.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			p.logger.Warn().Str("path", p.path).Msg("log file not found")
			return nil, nil, nil
		}
		return nil, nil, err
	}

	size := info.Size()
	if size < p.lastSize {
		p.logger.Info().
			Int64("old_size", p.lastSize).
			Int64("new_size", size).
			Msg("log file shrank, assuming rotation")
		p.lastPosition = 0
		p.lastSize = size
		p.resetSessionState()
		if p.metrics != nil {
			p.metrics.LogResets.Inc()
		}
		return nil, nil, nil
	}
	p.lastSize = size

	if !p.initialized {
		p.initialized = true
		p.lastPosition = size
		p.logger.Info().Int64("position", size).Msg("tailing from end of log")
		return nil, nil, nil
	}

	if size == p.lastPosition {
		return nil, nil, nil
	}

	f, err := os.Open(p.path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	if _, err := f.Seek(p.lastPosition, io.SeekStart); err != nil {
		return nil, nil, err
	}

	out := &lineOutput{}
	r := bufio.NewReader(f)
	for {
		raw, readErr := r.ReadString('\n')
		p.lastPosition += int64(len(raw))
		if raw != "" {
			p.processRawLine(raw, out)
		}
		if readErr != nil {
			if readErr != io.EOF {
				return out.buys, out.refreshes, readErr
			}
			break
		}
	}

	// An event still open at the end of the batch will never see its end
	// marker in order; close it now rather than let it absorb unrelated
	// changes from the next batch.
	if p.current != nil {
		p.logger.Warn().
			Str("event_type", p.current.EventType).
			Msg("forcing close of unfinished event at end of read")
		if p.metrics != nil {
			p.metrics.EventsForceClosed.WithLabelValues(p.current.EventType).Inc()
		}
		p.finalizeEvent(out)
	}

	return out.buys, out.refreshes, nil
}

func (p *Parser) processRawLine(raw string, out *lineOutput) {
	line, ok := parseLogLine(raw)
	if !ok {
		if p.metrics != nil {
			p.metrics.LogLinesSkipped.Inc()
		}
		return
	}
	if p.metrics != nil {
		p.metrics.LogLinesParsed.Inc()
	}

	for _, h := range lineHandlers {
		handled, err := h.handle(p, line, out)
		if err != nil {
			p.logger.Error().Err(err).
				Str("handler", h.name).
				Str("line", raw).
				Msg("line handling failed")
			if p.metrics != nil {
				p.metrics.LogParseErrors.Inc()
			}
			return
		}
		if handled {
			return
		}
	}
}

func (p *Parser) handleConnectionClosed(line logLine, _ *lineOutput) (bool, error) {
	if !connectionClosedPattern.MatchString(line.Raw) {
		return false, nil
	}
	p.logger.Info().Msg("game connection closed, clearing session state")
	p.playerName = ""
	p.playerSeasonID = 0
	p.inv.ResetBackpackInitialized()
	return true, nil
}

func (p *Parser) handlePlayerInfo(line logLine, _ *lineOutput) (bool, error) {
	handled := false

	// A "+player+" prefix opens a fresh identity block; the same line may
	// already carry the name or season id.
	if playerInfoStartPattern.MatchString(line.Content) {
		p.playerName = ""
		p.playerSeasonID = 0
		handled = true
	}

	if p.playerName == "" {
		if m := playerNamePattern.FindStringSubmatch(line.Content); m != nil {
			p.playerName = strings.TrimSpace(m[1])
			p.logger.Info().Str("player", p.playerName).Msg("player identified")
			handled = true
		}
	}

	if p.playerSeasonID == 0 {
		if m := playerSeasonIDPattern.FindStringSubmatch(line.Content); m != nil {
			handled = true
			id, err := strconv.Atoi(strings.TrimSpace(m[1]))
			if err != nil {
				p.logger.Warn().Str("season_id", m[1]).Msg("unparseable season id")
			} else {
				p.playerSeasonID = id
				res := p.seasons.LoadForSeason(id)
				if res.Changed {
					p.logger.Info().
						Str("previous", res.Previous.String()).
						Str("current", res.Current.String()).
						Msg("season zone changed")
				}
			}
		}
	}

	return handled, nil
}

func (p *Parser) handleLoadProgress(line logLine, _ *lineOutput) (bool, error) {
	m := loadProgressPattern.FindStringSubmatch(line.Content)
	if m == nil {
		return false, nil
	}
	progress, err := strconv.Atoi(m[1])
	if err != nil {
		return true, nil
	}
	switch progress {
	case 2:
		p.logger.Info().Msg("backpack load starting")
	case 3:
		if !p.inv.IsBackpackInitialized() {
			p.inv.MarkBackpackInitialized()
			if p.metrics != nil {
				p.metrics.BackpackInitialized.Set(1)
				p.metrics.InventoryItems.Set(float64(p.inv.ItemCount()))
			}
			p.logger.Info().
				Int("items", p.inv.ItemCount()).
				Int("gems", p.inv.ItemNum(inventory.GemBaseID)).
				Msg("backpack initialized")
		}
	}
	return true, nil
}

func (p *Parser) handleItemChange(line logLine, _ *lineOutput) (bool, error) {
	ch, ok := parseItemChange(line)
	if !ok {
		return false, nil
	}

	if ch.Type == event.ChangeUpdate {
		p.bufferUpdate(ch)
	}

	p.inv.ApplyItemChange(ch)
	if p.metrics != nil {
		p.metrics.InventoryChanges.WithLabelValues(ch.Type.String()).Inc()
		p.metrics.InventoryItems.Set(float64(p.inv.ItemCount()))
	}

	if p.current != nil {
		p.current.AddChange(ch)
	}
	return true, nil
}

func parseItemChange(line logLine) (event.ItemChange, bool) {
	if m := itemUpdatePattern.FindStringSubmatch(line.Content); m != nil {
		bagNum, _ := strconv.Atoi(m[2])
		pageID, _ := strconv.Atoi(m[3])
		slotID, _ := strconv.Atoi(m[4])
		return event.ItemChange{
			ItemID:    m[1],
			BaseID:    event.ExtractBaseID(m[1]),
			BagNum:    bagNum,
			PageID:    pageID,
			SlotID:    slotID,
			Timestamp: line.Timestamp,
			Type:      event.ChangeUpdate,
			RawLine:   line.Raw,
		}, true
	}
	if m := itemAddPattern.FindStringSubmatch(line.Content); m != nil {
		bagNum, _ := strconv.Atoi(m[2])
		pageID, _ := strconv.Atoi(m[3])
		slotID, _ := strconv.Atoi(m[4])
		return event.ItemChange{
			ItemID:    m[1],
			BaseID:    event.ExtractBaseID(m[1]),
			BagNum:    bagNum,
			PageID:    pageID,
			SlotID:    slotID,
			Timestamp: line.Timestamp,
			Type:      event.ChangeAdd,
			RawLine:   line.Raw,
		}, true
	}
	if m := itemDeletePattern.FindStringSubmatch(line.Content); m != nil {
		pageID, _ := strconv.Atoi(m[2])
		slotID, _ := strconv.Atoi(m[3])
		return event.ItemChange{
			ItemID:    m[1],
			BaseID:    event.ExtractBaseID(m[1]),
			PageID:    pageID,
			SlotID:    slotID,
			Timestamp: line.Timestamp,
			Type:      event.ChangeDelete,
			RawLine:   line.Raw,
		}, true
	}
	return event.ItemChange{}, false
}

// bufferUpdate records an Update for timestamp pairing and prunes entries
// older than the pairing window. Keyed by timestamp plus item id so that
// repeated updates of one item inside the window all stay candidates for
// the nearest-timestamp search.
func (p *Parser) bufferUpdate(ch event.ItemChange) {
	key := ch.Timestamp.Format(time.RFC3339Nano) + "_" + ch.ItemID
	p.updateBuffer[key] = bufferedUpdate{
		BaseID:    ch.BaseID,
		ItemID:    ch.ItemID,
		BagNum:    ch.BagNum,
		PageID:    ch.PageID,
		SlotID:    ch.SlotID,
		Timestamp: ch.Timestamp,
	}

	cutoff := p.now().Add(-updateBufferWindow)
	for id, u := range p.updateBuffer {
		if u.Timestamp.Before(cutoff) {
			delete(p.updateBuffer, id)
		}
	}
	if p.metrics != nil {
		p.metrics.UpdateBufferSize.Set(float64(len(p.updateBuffer)))
	}
}

func (p *Parser) handleEventStart(line logLine, out *lineOutput) (bool, error) {
	m := eventStartPattern.FindStringSubmatch(line.Content)
	if m == nil {
		return false, nil
	}
	eventType := m[1]
	if _, ok := supportedEvents[eventType]; !ok {
		return true, nil
	}

	if p.current != nil {
		p.logger.Warn().
			Str("open_event", p.current.EventType).
			Str("new_event", eventType).
			Msg("new event started before previous ended, forcing close")
		if p.metrics != nil {
			p.metrics.EventsForceClosed.WithLabelValues(p.current.EventType).Inc()
		}
		p.finalizeEvent(out)
	}

	p.current = newEventContext(eventType, line.Timestamp, p.inv.CreateSnapshot(), p.inv.CreateInstanceSnapshot())
	if p.metrics != nil {
		p.metrics.EventsOpened.WithLabelValues(eventType).Inc()
	}
	p.logger.Debug().Str("event_type", eventType).Msg("event opened")
	return true, nil
}

func (p *Parser) handleEventEnd(line logLine, out *lineOutput) (bool, error) {
	m := eventEndPattern.FindStringSubmatch(line.Content)
	if m == nil {
		return false, nil
	}
	eventType := m[1]
	if _, ok := supportedEvents[eventType]; !ok {
		return true, nil
	}
	if p.current == nil || p.current.EventType != eventType {
		p.logger.Debug().Str("event_type", eventType).Msg("end marker without matching open event")
		return true, nil
	}

	p.current.EndTime = line.Timestamp
	p.logger.Debug().
		Str("event_type", eventType).
		Int("updates", len(p.current.Updates)).
		Int("adds", len(p.current.Adds)).
		Int("deletes", len(p.current.Deletes)).
		Bool("success", p.current.Success).
		Msg("event closed")
	p.finalizeEvent(out)
	return true, nil
}

func (p *Parser) handleSuccessFlag(line logLine, _ *lineOutput) (bool, error) {
	if p.current == nil {
		return false, nil
	}
	switch {
	case p.current.EventType == "BuyVendorGoods" && buySuccessPattern.MatchString(line.Content):
		p.current.Success = true
		return true, nil
	case p.current.EventType == "RefreshVendorShop" && refreshSuccessPattern.MatchString(line.Content):
		p.current.Success = true
		return true, nil
	}
	return false, nil
}
