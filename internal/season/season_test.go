package season_test

import (
	"path/filepath"
	"testing"

	"VendorWatch/internal/observability"
	"VendorWatch/internal/season"
)

func newService(t *testing.T) *season.Service {
	t.Helper()
	return season.NewService(t.TempDir(), observability.NewLogger("test"))
}

func TestResolveServerType(t *testing.T) {
	tests := []struct {
		seasonID int
		want     season.ServerType
	}{
		{1, season.ZonePermanent},
		{1201, season.ZoneSeason},
		{1231, season.ZoneExpert},
		{42, season.ZoneUnknown},
		{0, season.ZoneUnknown},
	}
	for _, tt := range tests {
		if got := season.ResolveServerType(tt.seasonID); got != tt.want {
			t.Errorf("ResolveServerType(%d) = %v, want %v", tt.seasonID, got, tt.want)
		}
	}
}

func TestLoadForSeasonTracksChanges(t *testing.T) {
	s := newService(t)

	res := s.LoadForSeason(1201)
	if !res.Changed {
		t.Error("first load should report a change")
	}
	if res.Current != season.ZoneSeason {
		t.Errorf("current = %v, want %v", res.Current, season.ZoneSeason)
	}

	// Loading the same season again is a no-op.
	res = s.LoadForSeason(1201)
	if res.Changed {
		t.Error("repeated load should not report a change")
	}

	res = s.LoadForSeason(1)
	if !res.Changed {
		t.Error("switching zone should report a change")
	}
	if res.Previous != season.ZoneSeason || res.Current != season.ZonePermanent {
		t.Errorf("transition = %v -> %v, want SeasonZone -> PermanentZone", res.Previous, res.Current)
	}
}

func TestLoadForSeasonUnknownFallsBackToSeasonZone(t *testing.T) {
	s := newService(t)

	res := s.LoadForSeason(9999)
	if res.Current != season.ZoneSeason {
		t.Errorf("current = %v, want season-zone fallback", res.Current)
	}
	if res.Recognized {
		t.Error("an unknown season id must not be reported as recognized")
	}

	info := s.CurrentInfo()
	if info.SeasonID != 9999 || info.Recognized {
		t.Errorf("info = %+v, want season id 9999 unrecognized", info)
	}
}

func TestDataFilePathFollowsZone(t *testing.T) {
	base := t.TempDir()
	s := season.NewService(base, observability.NewLogger("test"))

	s.LoadForSeason(1231)
	want := filepath.Join(base, "ExpertZone", "price_equipment.json")
	if got := s.DataFilePath("price_equipment"); got != want {
		t.Errorf("path = %s, want %s", got, want)
	}

	s.LoadForSeason(1)
	want = filepath.Join(base, "PermanentZone", "price_equipment.json")
	if got := s.DataFilePath("price_equipment"); got != want {
		t.Errorf("path = %s, want %s", got, want)
	}
}

func TestReset(t *testing.T) {
	s := newService(t)

	s.LoadForSeason(1201)
	if !s.IsLoaded() {
		t.Fatal("service should be loaded")
	}

	s.Reset()
	if s.IsLoaded() {
		t.Error("service should be unloaded after reset")
	}
	if info := s.CurrentInfo(); info.SeasonID != 0 || info.SeasonType != season.ZoneUnknown {
		t.Errorf("info after reset = %+v, want zero values", info)
	}
}
