// Package configdoc loads and validates the sprinkler configuration document:
// the JSON tree of zones, programs, schedules, season/interval tables, and
// feed controls that the HTTP API's /sprinkler/config endpoint replaces
// wholesale (spec §3, §6). The document is immutable between reloads; every
// dependent subsystem is handed a fresh *Document on refresh.
package configdoc

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/housesprinkler/controller/internal/domain"
)

// rawSchedule mirrors Schedule but tolerates a missing/empty ID, which is
// generated lazily and written back (spec §9: "generate one lazily if
// absent and write it back into the stored document").
type rawSchedule struct {
	ID          string           `json:"id"`
	ProgramName string           `json:"programName"`
	Enabled     bool             `json:"enabled"`
	Begin       int64            `json:"begin"`
	Until       int64            `json:"until"`
	Start       domain.TimeOfDay `json:"start"`
	Repeat      domain.RepeatMode `json:"repeat"`
	Days        [7]bool          `json:"days"`
	Interval    int              `json:"interval"`
	LastLaunch  int64            `json:"lastLaunch"`
}

// Document is the fully parsed, validated configuration tree.
type Document struct {
	Zones     []domain.Zone        `json:"zones"`
	Programs  []domain.Program     `json:"programs"`
	Schedules []domain.Schedule    `json:"schedules"`
	Seasons   []domain.SeasonTable `json:"seasons"`
	Intervals []domain.IntervalScale `json:"intervals"`
	Controls  []ControlDecl        `json:"controls"`
}

// ControlDecl declares a feed control point at configuration load time.
type ControlDecl struct {
	Name string `json:"name"`
}

type rawDocument struct {
	Zones     []domain.Zone          `json:"zones"`
	Programs  []domain.Program       `json:"programs"`
	Schedules []rawSchedule          `json:"schedules"`
	Seasons   []domain.SeasonTable   `json:"seasons"`
	Intervals []domain.IntervalScale `json:"intervals"`
	Controls  []ControlDecl          `json:"controls"`
}

// Parse decodes and validates a configuration document. IDsChanged reports
// whether any schedule lacked an ID and had one generated, so the caller can
// persist the document back (the POST handler always re-serializes and saves
// regardless, but callers loading at startup use this to decide whether to
// rewrite the file in place).
func Parse(data []byte) (doc *Document, idsChanged bool, err error) {
	var raw rawDocument
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, false, fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
	}

	doc = &Document{
		Zones:     raw.Zones,
		Programs:  raw.Programs,
		Seasons:   raw.Seasons,
		Intervals: raw.Intervals,
		Controls:  raw.Controls,
	}

	doc.Schedules = make([]domain.Schedule, len(raw.Schedules))
	for i, rs := range raw.Schedules {
		id, err := parseOrGenerateID(rs.ID)
		if err != nil {
			return nil, false, fmt.Errorf("%w: schedule %d: %v", domain.ErrConfigInvalid, i, err)
		}
		if rs.ID == "" {
			idsChanged = true
		}
		doc.Schedules[i] = domain.Schedule{
			ID:          id,
			ProgramName: rs.ProgramName,
			Enabled:     rs.Enabled,
			Begin:       rs.Begin,
			Until:       rs.Until,
			Start:       rs.Start,
			Repeat:      rs.Repeat,
			Days:        rs.Days,
			Interval:    rs.Interval,
			LastLaunch:  rs.LastLaunch,
		}
	}

	if err := validate(doc); err != nil {
		return nil, false, err
	}

	return doc, idsChanged, nil
}

func parseOrGenerateID(raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.New(), nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid schedule id %q: %w", raw, err)
	}
	return id, nil
}

// validate enforces the shape invariants spec.md states explicitly, chiefly
// the season-table length rule from §9(b): reject a length that is neither
// 12 nor 52/53.
func validate(doc *Document) error {
	zoneNames := make(map[string]bool, len(doc.Zones))
	for _, z := range doc.Zones {
		if z.Name == "" {
			return fmt.Errorf("%w: zone with empty name", domain.ErrConfigInvalid)
		}
		if z.Pulse < 0 || z.Pause < 0 || z.Hydrate < 0 {
			return fmt.Errorf("%w: zone %q has a negative duration", domain.ErrConfigInvalid, z.Name)
		}
		zoneNames[z.Name] = true
	}

	for _, p := range doc.Programs {
		if p.Name == "" {
			return fmt.Errorf("%w: program with empty name", domain.ErrConfigInvalid)
		}
		for _, pz := range p.Zones {
			if !zoneNames[pz.ZoneName] {
				return fmt.Errorf("%w: program %q references unknown zone %q", domain.ErrConfigInvalid, p.Name, pz.ZoneName)
			}
		}
	}

	for _, s := range doc.Seasons {
		n := len(s.Values)
		if n != 12 && n != 52 && n != 53 {
			return fmt.Errorf("%w: season table %q has length %d, want 12, 52, or 53", domain.ErrConfigInvalid, s.Name, n)
		}
	}

	for _, iv := range doc.Intervals {
		for _, d := range iv.ByIndex {
			if d < 0 {
				return fmt.Errorf("%w: interval table %q has a negative day count", domain.ErrConfigInvalid, iv.Name)
			}
		}
	}

	seen := make(map[uuid.UUID]bool, len(doc.Schedules))
	for _, sch := range doc.Schedules {
		if seen[sch.ID] {
			return fmt.Errorf("%w: duplicate schedule id %s", domain.ErrConfigInvalid, sch.ID)
		}
		seen[sch.ID] = true
	}

	return nil
}

// Marshal serializes the document back to JSON, e.g. for the GET handler or
// to persist lazily-generated schedule IDs.
func Marshal(doc *Document) ([]byte, error) {
	out := rawDocument{
		Zones:     doc.Zones,
		Programs:  doc.Programs,
		Seasons:   doc.Seasons,
		Intervals: doc.Intervals,
		Controls:  doc.Controls,
	}
	out.Schedules = make([]rawSchedule, len(doc.Schedules))
	for i, s := range doc.Schedules {
		out.Schedules[i] = rawSchedule{
			ID:          s.ID.String(),
			ProgramName: s.ProgramName,
			Enabled:     s.Enabled,
			Begin:       s.Begin,
			Until:       s.Until,
			Start:       s.Start,
			Repeat:      s.Repeat,
			Days:        s.Days,
			Interval:    s.Interval,
			LastLaunch:  s.LastLaunch,
		}
	}
	return json.MarshalIndent(out, "", "  ")
}

// ZoneByName finds a zone by name, or (_, false) if not declared.
func (d *Document) ZoneByName(name string) (domain.Zone, bool) {
	for _, z := range d.Zones {
		if z.Name == name {
			return z, true
		}
	}
	return domain.Zone{}, false
}

// ProgramByName finds a program by name, or (_, false) if not declared.
func (d *Document) ProgramByName(name string) (domain.Program, bool) {
	for _, p := range d.Programs {
		if p.Name == name {
			return p, true
		}
	}
	return domain.Program{}, false
}

// SeasonByName finds a season table by name, or (_, false).
func (d *Document) SeasonByName(name string) (domain.SeasonTable, bool) {
	for _, s := range d.Seasons {
		if s.Name == name {
			return s, true
		}
	}
	return domain.SeasonTable{}, false
}

// IntervalByName finds an interval scale by name, or (_, false).
func (d *Document) IntervalByName(name string) (domain.IntervalScale, bool) {
	for _, iv := range d.Intervals {
		if iv.Name == name {
			return iv, true
		}
	}
	return domain.IntervalScale{}, false
}
