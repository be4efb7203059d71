package gamelog

import (
	"strconv"
	"time"

	"VendorWatch/internal/event"
	"VendorWatch/internal/inventory"
)

// pairedUpdate is the item update chosen as the purchased-item side of a
// gem spend. hasIncreased marks candidates recovered from the previous
// event, whose quantity was computed against that event's snapshot.
type pairedUpdate struct {
	BaseID       string
	ItemID       string
	BagNum       int
	Timestamp    time.Time
	IncreasedQty int
	hasIncreased bool
}

// finalizeEvent closes the current event context, emits whatever it
// produced and retains it for cross-event recovery when eligible.
func (p *Parser) finalizeEvent(out *lineOutput) {
	ev := p.current
	if ev == nil {
		return
	}
	p.current = nil

	p.identifyMoveOperation(ev)

	switch ev.EventType {
	case "BuyVendorGoods":
		// Purchase events sometimes never log their success flag; any
		// captured change is evidence enough.
		if ev.ChangeCount() > 0 || ev.Success {
			p.emitBuyEvent(ev, out)
		}
	case "RefreshVendorShop":
		if ev.Success {
			p.emitRefreshEvent(ev, out)
		}
	}

	if ev.EventType == "Push2" || ev.EventType == "BuyVendorGoods" {
		p.previous = ev
	}
}

// identifyMoveOperation tags layout and warehouse events whose changes are
// the same item disappearing from one page and appearing on another.
func (p *Parser) identifyMoveOperation(ev *EventContext) {
	if ev.EventType != "ResetItemsLayout" && ev.EventType != "MoveWareHouseItems2" {
		return
	}

	deletedPages := make(map[string]int, len(ev.Deletes))
	for _, d := range ev.Deletes {
		deletedPages[d.ItemID] = d.PageID
	}
	if len(deletedPages) == 0 {
		return
	}

	moved := make(map[string]struct{})
	for _, a := range ev.Adds {
		if page, ok := deletedPages[a.ItemID]; ok && page != a.PageID {
			moved[a.ItemID] = struct{}{}
		}
	}
	for _, u := range ev.Updates {
		if page, ok := deletedPages[u.ItemID]; ok && page != u.PageID {
			moved[u.ItemID] = struct{}{}
		}
	}

	if len(moved) > 0 {
		ev.Meta.IsMove = true
		ev.Meta.MovedItemIDs = moved
		p.logger.Debug().
			Str("event_type", ev.EventType).
			Int("moved_items", len(moved)).
			Msg("event classified as item move")
	}
}

// emitBuyEvent resolves the gem spend and the purchased item for a closed
// BuyVendorGoods event. The purchased item is searched in order: an Add
// inside the event, a buffered Update within the pairing tolerance of the
// gem spend, another Update inside the event, then an increased Update in
// the previous Push2 or BuyVendorGoods event.
func (p *Parser) emitBuyEvent(ev *EventContext, out *lineOutput) {
	var gem *event.ItemChange
	for i := range ev.Updates {
		if ev.Updates[i].BaseID == inventory.GemBaseID {
			gem = &ev.Updates[i]
			break
		}
	}
	if gem == nil {
		p.logger.Debug().Msg("purchase event without gem update, skipping")
		return
	}

	gemCost := gem.BagNum - ev.InstanceSnapshot[gem.ItemID]
	if gemCost < 0 {
		gemCost = -gemCost
	}
	if gemCost <= 0 {
		p.logger.Debug().Msg("purchase event with zero gem delta, skipping")
		return
	}

	timestamp := ev.EndTime
	if timestamp.IsZero() {
		timestamp = gem.Timestamp
	}

	if len(ev.Adds) > 0 {
		add := ev.Adds[0]
		qty := add.BagNum
		if qty == 0 {
			qty = 1
		}
		p.appendBuyEvent(out, add.BaseID, qty, gemCost, timestamp)
		return
	}

	paired := p.findNearestUpdate(gem.Timestamp, inventory.GemBaseID)

	if paired == nil {
		for i := range ev.Updates {
			u := &ev.Updates[i]
			if u.BaseID == inventory.GemBaseID || ev.Moved(u.ItemID) {
				continue
			}
			paired = &pairedUpdate{
				BaseID:    u.BaseID,
				ItemID:    u.ItemID,
				BagNum:    u.BagNum,
				Timestamp: u.Timestamp,
			}
			break
		}
	}

	if paired == nil && p.previous != nil {
		for i := range p.previous.Updates {
			u := &p.previous.Updates[i]
			if u.BaseID == inventory.GemBaseID {
				continue
			}
			increased := u.BagNum - p.previous.InstanceSnapshot[u.ItemID]
			if increased <= 0 {
				continue
			}
			paired = &pairedUpdate{
				BaseID:       u.BaseID,
				ItemID:       u.ItemID,
				BagNum:       u.BagNum,
				Timestamp:    u.Timestamp,
				IncreasedQty: increased,
				hasIncreased: true,
			}
			break
		}
	}

	if paired == nil {
		p.logger.Warn().
			Int("gem_cost", gemCost).
			Time("timestamp", timestamp).
			Msg("gem spend with no pairable item, purchase dropped")
		return
	}

	qty := paired.IncreasedQty
	if !paired.hasIncreased {
		qty = paired.BagNum - ev.InstanceSnapshot[paired.ItemID]
	}
	if qty <= 0 {
		p.logger.Debug().
			Str("item_id", paired.ItemID).
			Int("quantity", qty).
			Msg("paired item did not increase, purchase dropped")
		return
	}

	p.appendBuyEvent(out, paired.BaseID, qty, gemCost, timestamp)
}

// findNearestUpdate scans the rolling update buffer for the entry closest
// to target, within the pairing tolerance and excluding excludeBase.
func (p *Parser) findNearestUpdate(target time.Time, excludeBase string) *pairedUpdate {
	var best *bufferedUpdate
	var bestDelta time.Duration
	for id := range p.updateBuffer {
		u := p.updateBuffer[id]
		if u.BaseID == excludeBase {
			continue
		}
		delta := target.Sub(u.Timestamp)
		if delta < 0 {
			delta = -delta
		}
		if delta > pairingTolerance {
			continue
		}
		if best == nil || delta < bestDelta {
			cp := u
			best = &cp
			bestDelta = delta
		}
	}
	if best == nil {
		return nil
	}
	return &pairedUpdate{
		BaseID:    best.BaseID,
		ItemID:    best.ItemID,
		BagNum:    best.BagNum,
		Timestamp: best.Timestamp,
	}
}

func (p *Parser) appendBuyEvent(out *lineOutput, baseID string, quantity, gemCost int, timestamp time.Time) {
	itemID, err := strconv.Atoi(baseID)
	if err != nil {
		p.logger.Warn().Str("base_id", baseID).Msg("non-numeric base id, purchase dropped")
		return
	}

	buy := event.BuyEvent{
		Timestamp:    timestamp,
		ItemID:       itemID,
		ItemName:     p.items.NameByID(itemID),
		ItemQuantity: quantity,
		GemCost:      gemCost,
	}
	out.buys = append(out.buys, buy)
	if p.metrics != nil {
		p.metrics.BuyEventsEmitted.Inc()
	}
	p.logger.Info().
		Int("item_id", buy.ItemID).
		Str("item_name", buy.ItemName).
		Int("quantity", buy.ItemQuantity).
		Int("gem_cost", buy.GemCost).
		Time("timestamp", buy.Timestamp).
		Msg("purchase detected")
}

// emitRefreshEvent accounts what a successful shop refresh consumed:
// negative update deltas against the event snapshot plus deleted stacks.
func (p *Parser) emitRefreshEvent(ev *EventContext, out *lineOutput) {
	gemCost := defaultRefreshGemCost
	var spent []event.SpentItem

	for _, u := range ev.Updates {
		before := ev.InstanceSnapshot[u.ItemID]
		delta := u.BagNum - before
		if delta >= 0 {
			continue
		}
		if u.BaseID == inventory.GemBaseID {
			gemCost = -delta
			continue
		}
		spent = append(spent, event.SpentItem{
			BaseID:   u.BaseID,
			Delta:    delta,
			Quantity: -delta,
		})
	}
	for _, d := range ev.Deletes {
		qty := ev.InstanceSnapshot[d.ItemID]
		if qty <= 0 {
			qty = 1
		}
		if d.BaseID == inventory.GemBaseID {
			gemCost = qty
			continue
		}
		spent = append(spent, event.SpentItem{
			BaseID:   d.BaseID,
			Delta:    -qty,
			Quantity: qty,
		})
	}

	timestamp := ev.EndTime
	if timestamp.IsZero() {
		timestamp = ev.StartTime
	}

	refresh := event.RefreshEvent{
		Timestamp:  timestamp,
		GemCost:    gemCost,
		Snapshot:   ev.Snapshot,
		SpentItems: spent,
	}
	out.refreshes = append(out.refreshes, refresh)
	if p.metrics != nil {
		p.metrics.RefreshEventsEmitted.Inc()
	}
	p.logger.Info().
		Int("gem_cost", refresh.GemCost).
		Int("spent_items", len(refresh.SpentItems)).
		Time("timestamp", refresh.Timestamp).
		Msg("shop refresh detected")
}
