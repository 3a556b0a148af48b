package events

import "time"

// EventType identifies the kind of domain event flowing through the bus.
type EventType string

const (
	// RouteChanged fires when a control point's discovered provider URL changes.
	RouteChanged EventType = "ROUTE"
	// ZoneStarted fires when a zone begins a pulse.
	ZoneStarted EventType = "ZONE_STARTED"
	// ZoneStopped names the end of a zone's pulse (deadline reached or
	// cancelled). No component emits it.
	ZoneStopped EventType = "ZONE_STOPPED"
	// ProgramLaunched fires when a program is expanded into the zone queue.
	ProgramLaunched EventType = "PROGRAM_LAUNCHED"
	// ProgramIdle fires when a running program's queue work has drained.
	ProgramIdle EventType = "PROGRAM_IDLE"
	// ScheduleFired fires when a calendar schedule launches its program.
	ScheduleFired EventType = "SCHEDULE_FIRED"
	// IndexUpdated names the admission of a new watering-index value. No
	// component emits it; the aggregator notifies its registered listeners
	// directly.
	IndexUpdated EventType = "INDEX_UPDATED"
	// StateChanged names a change to a persisted toggle (on/off, rain delay,
	// last launch). No component emits it; the persistence layer is told
	// through schedule.StateNotifier instead.
	StateChanged EventType = "STATE_CHANGED"
)

// Event is one occurrence published on the Bus.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Data      map[string]interface{}
	Module    string
}
