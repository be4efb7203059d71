package gamelog

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Line grammars recognized in the game log. These must match the game's
// output exactly; they are compatibility surface, not style.
var (
	itemUpdatePattern = regexp.MustCompile(`ItemChange@\s+Update\s+Id=([^\s]+)\s+BagNum=(\d+)\s+in\s+PageId=(-?\d+)\s+SlotId=(\d+)`)
	itemAddPattern    = regexp.MustCompile(`ItemChange@\s+Add\s+Id=([^\s]+)\s+BagNum=(\d+)\s+in\s+PageId=(\d+)\s+SlotId=(\d+)`)
	itemDeletePattern = regexp.MustCompile(`ItemChange@\s+Delete\s+Id=([^\s]+)\s+in\s+PageId=(\d+)\s+SlotId=(\d+)`)

	eventStartPattern = regexp.MustCompile(`ItemChange@\s+ProtoName=(\w+)\s+start`)
	eventEndPattern   = regexp.MustCompile(`ItemChange@\s+ProtoName=(\w+)\s+end`)

	buySuccessPattern     = regexp.MustCompile(`Func_Common_BuySuccess`)
	refreshSuccessPattern = regexp.MustCompile(`Func_Vendor_refreshSuccess`)

	loadProgressPattern = regexp.MustCompile(`LoadUILogicProgress=(\d+)`)

	playerInfoStartPattern = regexp.MustCompile(`^\+player\+`)
	playerNamePattern      = regexp.MustCompile(`\+(?:player\+)?Name\s*\[([^\]]*)\]`)
	playerSeasonIDPattern  = regexp.MustCompile(`\+(?:player\+)?SeasonId\s*\[([^\]]*)\]`)

	connectionClosedPattern = regexp.MustCompile(`\[Game\]\s+NetGame\s+CloseConnect`)

	lineTimestampPattern = regexp.MustCompile(`\[(\d{4}\.\d{2}\.\d{2}-\d{2}\.\d{2}\.\d{2}:\d{3})\]`)
	gameContentPattern   = regexp.MustCompile(`\[Game\]\s*(.*)`)
)

// supportedEvents are the ProtoName values that open an event context.
var supportedEvents = map[string]struct{}{
	"BuyVendorGoods":    {}, // vendor purchase
	"RefreshVendorShop": {}, // shop refresh
	"Push2":             {}, // item push / settlement
	"ResetItemsLayout":  {}, // backpack reorganization
	"PickItems":         {},
	"ExchangeItem":      {},
	"OpenRewardBox":     {},
	"ReCostItem":        {},
}

// logLine is one usable game-log line: a timestamp plus the [Game] payload.
type logLine struct {
	Timestamp time.Time
	Content   string
	Raw       string
}

// parseLogLine extracts the timestamp and [Game] payload from a raw line.
// Lines missing either marker are not errors; they return (zero, false).
func parseLogLine(raw string) (logLine, bool) {
	if raw == "" {
		return logLine{}, false
	}

	tm := lineTimestampPattern.FindStringSubmatch(raw)
	if tm == nil {
		return logLine{}, false
	}
	ts, err := parseLogTimestamp(tm[1])
	if err != nil {
		return logLine{}, false
	}

	gm := gameContentPattern.FindStringSubmatch(raw)
	if gm == nil {
		return logLine{}, false
	}

	return logLine{Timestamp: ts, Content: gm[1], Raw: raw}, true
}

// parseLogTimestamp parses the game's "[YYYY.MM.DD-HH.MM.SS:mmm]" format
// (already stripped of brackets). The millisecond part follows a colon, so
// a plain layout string cannot express it.
func parseLogTimestamp(s string) (time.Time, error) {
	if len(s) != 23 || s[19] != ':' {
		return time.Time{}, fmt.Errorf("malformed log timestamp %q", s)
	}
	base, err := time.ParseInLocation("2006.01.02-15.04.05", s[:19], time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed log timestamp %q: %w", s, err)
	}
	ms, err := strconv.Atoi(s[20:])
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed log timestamp %q: %w", s, err)
	}
	return base.Add(time.Duration(ms) * time.Millisecond), nil
}
