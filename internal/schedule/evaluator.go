// Package schedule implements the calendar schedule evaluator of spec §4.6:
// it fires programs at calendar instants, gated by rain delay and the
// global on/off switch. The once-per-minute ticker-gate idea is grounded on
// the host project's internal/queue/scheduler.go cadence check.
package schedule

import (
	"time"

	"github.com/google/uuid"
	"github.com/housesprinkler/controller/internal/domain"
	"github.com/housesprinkler/controller/internal/events"
	"github.com/housesprinkler/controller/internal/tables"
	"github.com/rs/zerolog"
)

// ProgramLauncher is the program runner contract the evaluator drives.
type ProgramLauncher interface {
	Launch(programName string, manual bool, now int64) bool
	Running(programName string) bool
}

// IntervalSource resolves a schedule's program to its named interval scale,
// the configuration lookup the index-driven daily skip decision needs
// (spec §4.3, §4.6). Satisfied by *configdoc.Document.
type IntervalSource interface {
	ProgramByName(name string) (domain.Program, bool)
	IntervalByName(name string) (domain.IntervalScale, bool)
}

// StateNotifier is told when a durable value changes so the persistence
// layer can mark itself dirty (spec §4.7).
type StateNotifier interface {
	MarkChanged()
}

const dailySlackSeconds = 3

// Evaluator drives the set of schedules against the wall clock.
type Evaluator struct {
	schedules []domain.Schedule
	launcher  ProgramLauncher
	notifier  StateNotifier
	bus       *events.Bus
	log       zerolog.Logger

	intervals    IntervalSource
	currentIndex func(time.Time) domain.IndexValue

	rain              domain.RainDelay
	globalOn          bool
	lastFiredAtMinute int64 // unix minute (now/60) of the last evaluation
}

// New creates an Evaluator. globalOn and rain are the persisted values
// restored at startup.
func New(schedules []domain.Schedule, launcher ProgramLauncher, notifier StateNotifier, bus *events.Bus, log zerolog.Logger, globalOn bool, rain domain.RainDelay) *Evaluator {
	return &Evaluator{
		schedules:         schedules,
		launcher:          launcher,
		notifier:          notifier,
		bus:               bus,
		log:               log.With().Str("component", "schedule").Logger(),
		globalOn:          globalOn,
		rain:              rain,
		lastFiredAtMinute: -1,
	}
}

// SetIntervalSource binds the configuration lookup and watering-index
// reader the daily repeat gate uses to turn a program's intervalName into a
// day count via tables.IntervalForIndex (spec §4.3's "skip decision"). Both
// may be left nil, in which case the daily gate uses the schedule's own
// fixed interval only.
func (e *Evaluator) SetIntervalSource(intervals IntervalSource, currentIndex func(time.Time) domain.IndexValue) {
	e.intervals = intervals
	e.currentIndex = currentIndex
}

// SetNotifier binds the persistence notifier after construction, for the
// case where the notifier (e.g. a persistence.Store) itself depends on the
// evaluator as its Source and so cannot be built first.
func (e *Evaluator) SetNotifier(notifier StateNotifier) { e.notifier = notifier }

// Refresh replaces the schedule set on a configuration reload.
func (e *Evaluator) Refresh(schedules []domain.Schedule) {
	e.schedules = schedules
	e.lastFiredAtMinute = -1
}

// Periodic evaluates all schedules, at most once per minute.
func (e *Evaluator) Periodic(now int64) {
	minute := now / 60
	if minute == e.lastFiredAtMinute {
		return
	}
	e.lastFiredAtMinute = minute

	t := time.Unix(now, 0).UTC()
	for i := range e.schedules {
		e.evaluate(&e.schedules[i], now, t)
	}
}

func (e *Evaluator) evaluate(s *domain.Schedule, now int64, t time.Time) {
	if !s.Enabled {
		return
	}
	if e.launcher.Running(s.ProgramName) {
		return
	}
	if now < s.Begin {
		return
	}
	if s.Until != 0 && now > s.Until {
		return
	}
	if t.Hour() != s.Start.Hour || t.Minute() != s.Start.Minute {
		return
	}

	if !e.repeatGate(s, now) {
		return
	}

	if e.rain.Enabled && e.rain.Deadline > now {
		return
	}
	if !e.globalOn {
		return
	}

	if e.launcher.Launch(s.ProgramName, false, now) {
		s.LastLaunch = now
		if e.notifier != nil {
			e.notifier.MarkChanged()
		}
		if e.bus != nil {
			e.bus.Emit(events.ScheduleFired, "schedule", map[string]interface{}{
				"schedule": s.ID.String(),
				"program":  s.ProgramName,
			})
		}
	}
}

func (e *Evaluator) repeatGate(s *domain.Schedule, now int64) bool {
	switch s.Repeat {
	case domain.RepeatOnce:
		return s.LastLaunch == 0 && now-s.Begin > 0 && now-s.Begin < 60
	case domain.RepeatWeekly:
		weekday := int(time.Unix(now, 0).UTC().Weekday())
		return s.Days[weekday]
	case domain.RepeatDaily:
		interval := s.Interval
		if interval <= 0 {
			interval = 1
		}
		if dynamic, ok := e.dynamicInterval(s, now); ok {
			interval = dynamic
		}
		elapsedDays := float64(now-s.LastLaunch) / 86400
		return elapsedDays >= float64(interval)-float64(dailySlackSeconds)/86400
	default:
		return false
	}
}

// dynamicInterval resolves s's program to an interval scale by name and, if
// one exists, maps the current watering index to a day count via
// tables.IntervalForIndex. Returns ok=false when no interval table applies,
// so the caller falls back to the schedule's own fixed interval.
func (e *Evaluator) dynamicInterval(s *domain.Schedule, now int64) (int, bool) {
	if e.intervals == nil || e.currentIndex == nil {
		return 0, false
	}
	prog, ok := e.intervals.ProgramByName(s.ProgramName)
	if !ok || prog.IntervalName == "" {
		return 0, false
	}
	scale, ok := e.intervals.IntervalByName(prog.IntervalName)
	if !ok {
		return 0, false
	}
	index := e.currentIndex(time.Unix(now, 0).UTC()).Value
	return tables.IntervalForIndex(scale, index), true
}

// SetRain applies spec §4.6's rain-delay semantics: delta==0 clears it; if
// not currently in a delay window, begin a fresh one; otherwise extend it.
func (e *Evaluator) SetRain(delta int64, now int64) {
	switch {
	case delta == 0:
		e.rain.Deadline = 0
	case e.rain.Deadline < now:
		e.rain.Deadline = now + delta
	default:
		e.rain.Deadline += delta
	}
	if e.notifier != nil {
		e.notifier.MarkChanged()
	}
}

// RainEnable toggles the rain-delay feature; disabling clears any pending
// delay.
func (e *Evaluator) RainEnable(enabled bool) {
	e.rain.Enabled = enabled
	if !enabled {
		e.rain.Deadline = 0
	}
	if e.notifier != nil {
		e.notifier.MarkChanged()
	}
}

// Rain returns the current rain-delay state.
func (e *Evaluator) Rain() domain.RainDelay { return e.rain }

// Switch toggles the global on/off switch and returns the new value.
func (e *Evaluator) Switch() bool {
	e.globalOn = !e.globalOn
	if e.notifier != nil {
		e.notifier.MarkChanged()
	}
	return e.globalOn
}

// GlobalOn reports the current on/off switch value.
func (e *Evaluator) GlobalOn() bool { return e.globalOn }

// ScheduleByID finds a schedule by its stable UUID.
func (e *Evaluator) ScheduleByID(id uuid.UUID) (*domain.Schedule, bool) {
	for i := range e.schedules {
		if e.schedules[i].ID == id {
			return &e.schedules[i], true
		}
	}
	return nil, false
}

// Snapshot returns the current schedule set, for status reporting.
func (e *Evaluator) Snapshot() []domain.Schedule {
	out := make([]domain.Schedule, len(e.schedules))
	copy(out, e.schedules)
	return out
}
