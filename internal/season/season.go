package season

import (
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

// ServerType identifies which server zone the player is on.
type ServerType int32

const (
	ZoneUnknown ServerType = iota
	ZonePermanent
	ZoneSeason
	ZoneExpert
)

func (st ServerType) String() string {
	switch st {
	case ZonePermanent:
		return "PermanentZone"
	case ZoneSeason:
		return "SeasonZone"
	case ZoneExpert:
		return "ExpertZone"
	default:
		return "Unknown"
	}
}

// Season ids as they appear in the game log.
const (
	PermanentZoneID = 1
	SeasonZoneID    = 1201
	ExpertZoneID    = 1231
)

// ResolveServerType maps a numeric season id to a zone. Unrecognized ids
// return ZoneUnknown; the service layer decides the fallback policy.
func ResolveServerType(seasonID int) ServerType {
	switch seasonID {
	case PermanentZoneID:
		return ZonePermanent
	case SeasonZoneID:
		return ZoneSeason
	case ExpertZoneID:
		return ZoneExpert
	default:
		return ZoneUnknown
	}
}

// Info is a snapshot of the currently loaded season state.
type Info struct {
	SeasonID   int
	SeasonType ServerType
	Recognized bool
}

// LoadResult reports the outcome of LoadForSeason. Callers invalidate
// season-scoped caches when Changed is true.
type LoadResult struct {
	Changed    bool
	Previous   ServerType
	Current    ServerType
	Recognized bool
}

// Service tracks which server/season the player is on and maps it to
// season-scoped data paths.
type Service struct {
	mu sync.Mutex

	baseDir    string
	current    ServerType
	seasonID   int
	recognized bool
	loaded     bool

	logger zerolog.Logger
}

func NewService(baseDir string, logger zerolog.Logger) *Service {
	return &Service{
		baseDir: baseDir,
		current: ZoneUnknown,
		logger:  logger,
	}
}

// LoadForSeason switches the service to the zone resolved from seasonID.
// Unrecognized ids fall back to the season-zone configuration; this is a
// stated policy, not a silent failure. Returns whether the zone changed.
func (s *Service) LoadForSeason(seasonID int) LoadResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	resolved := ResolveServerType(seasonID)
	recognized := resolved != ZoneUnknown
	target := resolved
	if !recognized {
		target = ZoneSeason
		s.logger.Info().Int("season_id", seasonID).Msg("unknown season id, assuming season-zone configuration")
	}

	previous := s.current

	if s.loaded && s.current == target && s.seasonID == seasonID && s.recognized == recognized {
		return LoadResult{
			Changed:    false,
			Previous:   previous,
			Current:    s.current,
			Recognized: s.recognized,
		}
	}

	s.seasonID = seasonID
	s.current = target
	s.recognized = recognized
	s.loaded = true

	s.logger.Info().
		Int("season_id", seasonID).
		Stringer("zone", target).
		Stringer("previous", previous).
		Msg("season switched")

	return LoadResult{
		Changed:    true,
		Previous:   previous,
		Current:    target,
		Recognized: recognized,
	}
}

// CurrentInfo returns the current season snapshot.
func (s *Service) CurrentInfo() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		SeasonID:   s.seasonID,
		SeasonType: s.current,
		Recognized: s.recognized,
	}
}

// IsLoaded reports whether any season configuration has been loaded.
func (s *Service) IsLoaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != ZoneUnknown
}

// DataFilePath builds the path of a season-scoped data file,
// e.g. DataFilePath("price_equipment") -> <base>/SeasonZone/price_equipment.json.
func (s *Service) DataFilePath(fileType string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := "SeasonZone"
	switch s.current {
	case ZonePermanent:
		dir = "PermanentZone"
	case ZoneExpert:
		dir = "ExpertZone"
	}
	return filepath.Join(s.baseDir, dir, fileType+".json")
}

// Reset returns the service to its initial, unloaded state.
func (s *Service) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = ZoneUnknown
	s.seasonID = 0
	s.recognized = false
	s.loaded = false
}
