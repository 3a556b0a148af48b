// Package program implements the program runner of spec §4.5: it expands a
// program into zone activations scaled by season and watering index.
package program

import (
	"math"
	"time"

	"github.com/housesprinkler/controller/internal/configdoc"
	"github.com/housesprinkler/controller/internal/domain"
	"github.com/housesprinkler/controller/internal/events"
	"github.com/housesprinkler/controller/internal/tables"
	"github.com/rs/zerolog"
)

// Enqueuer is the zone queue contract the runner drives.
type Enqueuer interface {
	Enqueue(zoneIndex int, seconds int, context string, now int64)
	Idle() bool
}

// Runner expands programs into zone queue activations.
type Runner struct {
	doc           *configdoc.Document
	zoneIndex     map[string]int
	queue         Enqueuer
	bus           *events.Bus
	log           zerolog.Logger
	indexScaling  bool
	currentIndex  func(time.Time) domain.IndexValue
	running       map[string]bool
}

// New creates a Runner bound to doc. currentIndex supplies the aggregator's
// best-known value for duration scaling.
func New(doc *configdoc.Document, queue Enqueuer, currentIndex func(time.Time) domain.IndexValue, bus *events.Bus, log zerolog.Logger) *Runner {
	zi := make(map[string]int, len(doc.Zones))
	for i, z := range doc.Zones {
		zi[z.Name] = i
	}
	return &Runner{
		doc:          doc,
		zoneIndex:    zi,
		queue:        queue,
		bus:          bus,
		log:          log.With().Str("component", "program").Logger(),
		indexScaling: true,
		currentIndex: currentIndex,
		running:      make(map[string]bool),
	}
}

// SetIndexScaling enables/disables index-based duration scaling globally
// (spec §4.5, the housesprinkler_program_index(false) toggle).
func (r *Runner) SetIndexScaling(enabled bool) { r.indexScaling = enabled }

// Refresh rebuilds the zone-name index after a configuration reload.
func (r *Runner) Refresh(doc *configdoc.Document) {
	r.doc = doc
	r.zoneIndex = make(map[string]int, len(doc.Zones))
	for i, z := range doc.Zones {
		r.zoneIndex[z.Name] = i
	}
	r.running = make(map[string]bool)
}

// Launch expands program by name into the zone queue. manual bypasses index
// and season scaling. A program already running is not re-launched.
func (r *Runner) Launch(programName string, manual bool, now int64) bool {
	if r.running[programName] {
		return false
	}

	prog, ok := r.doc.ProgramByName(programName)
	if !ok || prog.ManualOnly && !manual {
		return false
	}

	seasonMult := 100
	indexMult := 100
	if !manual {
		if season, ok := r.doc.SeasonByName(prog.SeasonName); ok {
			seasonMult = tables.SeasonMultiplier(season, time.Unix(now, 0).UTC())
		}
		if r.indexScaling && r.currentIndex != nil {
			indexMult = r.currentIndex(time.Unix(now, 0).UTC()).Value
		}
	}

	context := ""
	if !manual {
		context = programName
	}

	launchedAny := false
	for _, pz := range prog.Zones {
		zi, ok := r.zoneIndex[pz.ZoneName]
		if !ok {
			continue
		}

		seconds := pz.Share
		if !manual {
			seconds = int(math.Round(float64(pz.Share) * float64(seasonMult) / 100 * float64(indexMult) / 100))
		}
		if seconds <= 0 {
			continue
		}

		r.queue.Enqueue(zi, seconds, context, now)
		launchedAny = true
	}

	if !launchedAny {
		return false
	}

	r.running[programName] = true
	if r.bus != nil {
		r.bus.Emit(events.ProgramLaunched, "program", map[string]interface{}{
			"program": programName,
			"manual":  manual,
		})
	}
	return true
}

// Periodic clears the running flag for any program whose queued work has
// drained (spec §4.5: "clear running when the queue next reports idle").
func (r *Runner) Periodic() {
	if len(r.running) == 0 {
		return
	}
	if !r.queue.Idle() {
		return
	}
	for name := range r.running {
		delete(r.running, name)
		if r.bus != nil {
			r.bus.Emit(events.ProgramIdle, "program", map[string]interface{}{"program": name})
		}
	}
}

// Running reports whether a program is currently marked running.
func (r *Runner) Running(programName string) bool { return r.running[programName] }
