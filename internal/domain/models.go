/**
 * Package domain provides the core data model for the watering scheduler.
 *
 * These are pure value types with no infrastructure dependencies: no HTTP, no
 * sqlite, no file I/O. Every subsystem under internal/ builds on these.
 */
package domain

import (
	"github.com/google/uuid"
)

// ZoneStatus is the observed state of a zone.
type ZoneStatus string

const (
	ZoneIdle    ZoneStatus = "idle"
	ZoneActive  ZoneStatus = "active"
	ZoneError   ZoneStatus = "error"
	ZoneUnknown ZoneStatus = "unknown"
)

/**
 * Zone is a controllable valve delivering water to a physical area.
 *
 * Zones are immutable for the life of a loaded configuration; reloading the
 * configuration replaces the whole set.
 */
type Zone struct {
	Name       string     `json:"name"`
	Feed       string     `json:"feed,omitempty"`
	Hydrate    int        `json:"hydrate"` // optional longer first pulse, seconds
	Pulse      int        `json:"pulse"`   // max contiguous on-time, seconds; 0 = all at once
	Pause      int        `json:"pause"`   // mandatory soak interval after each pulse, seconds
	ManualOnly bool       `json:"manualOnly"`
	Status     ZoneStatus `json:"status"`
}

// ControlType distinguishes a zone valve from an upstream feed.
type ControlType string

const (
	ControlZone ControlType = "ZONE"
	ControlFeed ControlType = "FEED"
)

// ControlState is the control plane's view of a control point's actuation state.
type ControlState string

const (
	StateUnknown ControlState = "unknown"
	StateIdle    ControlState = "idle"
	StateActive  ControlState = "active"
	StateError   ControlState = "error"
)

/**
 * ControlPoint is a named valve known to a remote relay server.
 *
 * Created at configuration load via declare(name, type); ProviderURL is filled
 * in by discovery, Deadline is the wall-clock second at which the current pulse
 * ends.
 */
type ControlPoint struct {
	Name        string
	Type        ControlType
	ProviderURL string
	State       ControlState
	Deadline    int64

	// EventsEnabled gates whether a Start on this point logs an activation
	// event; true by default. EventsOnce, when set alongside a policy
	// change, makes that change apply for exactly the next activation and
	// then revert to enabled (eventPolicy, spec §4.1).
	EventsEnabled bool
	EventsOnce    bool
}

/**
 * QueueEntry is one zone's pending/active work in the zone queue.
 *
 * Context is empty for a manual activation, or the originating program name.
 * There is at most one entry per zone; re-activating an enqueued zone folds
 * its pulse into RuntimeRemaining rather than creating a second entry.
 */
type QueueEntry struct {
	ZoneIndex        int
	HydrateRemaining int
	RuntimeRemaining int
	NextFireAt       int64
	Context          string
}

// ProgramZone is one zone reference inside a program, with its relative share.
type ProgramZone struct {
	ZoneName string `json:"zoneName"`
	Share    int    `json:"share"`
}

/**
 * Program is an ordered set of zone activations with per-zone durations.
 *
 * Programs are immutable per configuration.
 */
type Program struct {
	Name         string        `json:"name"`
	Description  string        `json:"description,omitempty"`
	Zones        []ProgramZone `json:"zones"`
	SeasonName   string        `json:"seasonName,omitempty"`
	IntervalName string        `json:"intervalName,omitempty"`
	ManualOnly   bool          `json:"manualOnly"`
	Running      bool          `json:"running"`
}

// RepeatMode is a schedule's recurrence rule.
type RepeatMode string

const (
	RepeatOnce   RepeatMode = "once"
	RepeatDaily  RepeatMode = "daily"
	RepeatWeekly RepeatMode = "weekly"
)

// TimeOfDay is an hour/minute pair, no seconds.
type TimeOfDay struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

/**
 * Schedule is a calendar rule that fires a program.
 *
 * ID is stable across config reloads so LastLaunch survives restart through
 * state persistence; it is generated lazily if absent in the loaded document.
 */
type Schedule struct {
	ID          uuid.UUID  `json:"id"`
	ProgramName string     `json:"programName"`
	Enabled     bool       `json:"enabled"`
	Begin       int64      `json:"begin"`
	Until       int64      `json:"until"`
	Start       TimeOfDay  `json:"start"`
	Repeat      RepeatMode `json:"repeat"`
	Days        [7]bool    `json:"days"`
	Interval    int        `json:"interval"`
	LastLaunch  int64      `json:"lastLaunch"`
}

/**
 * IntervalScale maps a watering-index bucket (0..10, i.e. index/10) to a
 * day-interval modifier.
 */
type IntervalScale struct {
	Name    string  `json:"name"`
	ByIndex [11]int `json:"byIndex"`
}

/**
 * SeasonTable gives a per-month (length 12) or per-week (length 52 or 53)
 * multiplier, 0..N percent.
 */
type SeasonTable struct {
	Name   string `json:"name"`
	Values []int  `json:"values"`
}

/**
 * IndexValue is the process-global watering index: a percentage reflecting
 * weather-driven need, reported by whichever provider currently holds
 * admission priority. See internal/waterindex for the admission rules.
 *
 * Staleness is judged against Timestamp, the provider's own "received"
 * clock, not against when the aggregator happened to fetch it — a provider
 * that keeps responding successfully but echoes a stale cached timestamp
 * must still be treated as stale.
 */
type IndexValue struct {
	Value     int    `json:"value"`
	Priority  int    `json:"priority"`
	Timestamp int64  `json:"timestamp"`
	Origin    string `json:"origin"`
}

// DefaultIndexValue is reported once the stored value is older than one day.
func DefaultIndexValue() IndexValue {
	return IndexValue{Value: 100, Priority: 0, Timestamp: 0, Origin: "default"}
}

/**
 * RainDelay is a wall-clock deadline; zero means "not in rain delay."
 */
type RainDelay struct {
	Deadline int64 `json:"deadline"`
	Enabled  bool  `json:"enabled"`
}

// PersistedState is the on-disk / depot snapshot shape (spec §6).
type PersistedState struct {
	On        bool                     `json:"on"`
	RainDelay int64                    `json:"raindelay"`
	Schedule  []PersistedScheduleEntry `json:"schedule"`
}

// PersistedScheduleEntry records one schedule's last-launch timestamp.
type PersistedScheduleEntry struct {
	ID       uuid.UUID `json:"id"`
	Launched int64     `json:"launched"`
}
