// Package zonequeue serializes zone pulse/pause cycles so that at most one
// zone is ever active at a time while maximizing soak time between pulses
// on any given zone (spec §4.4). It is a bespoke single-slot state machine,
// not a generic job queue: the teacher's internal/queue package solves a
// different problem (a worker pool draining an arbitrary job backlog) and
// doesn't fit this domain's "one entry per zone, selection by longest wait"
// contract.
package zonequeue

import (
	"math"

	"github.com/housesprinkler/controller/internal/domain"
	"github.com/housesprinkler/controller/internal/events"
	"github.com/rs/zerolog"
)

// Actuator is the control-plane contract the queue drives. Periodic calls it
// synchronously and does not look at the returned bool. The control.Plane
// implementation waits for the relay's HTTP response (bounded by its client
// timeout) before returning.
type Actuator interface {
	StartZone(name string, pulseSeconds int, context string) bool
	StartFeed(name string, pulseSeconds int, context string) bool
	CancelAll()
}

// DefaultIndexValvePause is the default gap (seconds) held after a pulse's
// expected end before the queue selects any entry again, per spec §4.4
// invariant 3. It accounts for downstream valves needing an off-transition.
const DefaultIndexValvePause = 1

type active struct {
	zoneIndex int
	pulseEnd  int64 // wall-clock second the relay is expected to self-terminate
	readyAt   int64 // pulseEnd + indexValvePause; queue is untouched until this
}

// Queue is the zone pulse/pause scheduler. It owns no goroutines; Periodic
// is driven by the process-wide 1 Hz tick (spec §5).
type Queue struct {
	zones           []domain.Zone
	entries         []*domain.QueueEntry
	act             active
	hasActive       bool
	indexValvePause int
	actuator        Actuator
	bus             *events.Bus
	log             zerolog.Logger
}

// New creates a Queue bound to the given zone set (in configuration order;
// QueueEntry.ZoneIndex refers to this slice) and actuator.
func New(zones []domain.Zone, actuator Actuator, bus *events.Bus, log zerolog.Logger) *Queue {
	return &Queue{
		zones:           zones,
		actuator:        actuator,
		bus:             bus,
		indexValvePause: DefaultIndexValvePause,
		log:             log.With().Str("component", "zonequeue").Logger(),
	}
}

// Refresh replaces the zone set and clears all queued work, per spec §3's
// "the queue... own their own storage and are cleared on refresh."
func (q *Queue) Refresh(zones []domain.Zone) {
	q.Stop()
	q.zones = zones
}

// Stop clears all entries and cancels any active control (spec §4.4 "Stop").
func (q *Queue) Stop() {
	q.actuator.CancelAll()
	q.entries = nil
	q.hasActive = false
}

// Enqueue adds a pulse request for zoneIndex. A manual activation passes an
// empty context; re-enqueuing an already-queued zone folds the new pulse
// into RuntimeRemaining rather than creating a second entry (spec §4.4,
// §8's idempotence property).
func (q *Queue) Enqueue(zoneIndex int, seconds int, context string, now int64) {
	if seconds <= 0 || zoneIndex < 0 || zoneIndex >= len(q.zones) {
		return
	}

	for _, e := range q.entries {
		if e.ZoneIndex == zoneIndex {
			e.RuntimeRemaining += seconds
			if context != "" {
				e.Context = context
			}
			return
		}
	}

	hydrate := 0
	if context != "" {
		hydrate = q.zones[zoneIndex].Hydrate
	}
	q.entries = append(q.entries, &domain.QueueEntry{
		ZoneIndex:        zoneIndex,
		HydrateRemaining: hydrate,
		RuntimeRemaining: seconds,
		NextFireAt:       now,
		Context:          context,
	})
}

// Idle reports true iff no zone is currently pulsing and no queued entry has
// work remaining. Entries solely waiting out their trailing pause (
// RuntimeRemaining == 0 but NextFireAt still in the future) do not defeat
// idle, per spec §4.4.
func (q *Queue) Idle() bool {
	if q.hasActive {
		return false
	}
	for _, e := range q.entries {
		if e.RuntimeRemaining > 0 {
			return false
		}
	}
	return true
}

// Periodic advances the queue by one tick. It is the only entry point that
// mutates queue state outside Enqueue/Stop.
func (q *Queue) Periodic(now int64) {
	if q.hasActive {
		if now < q.act.readyAt {
			return
		}
		q.hasActive = false
	}

	q.prune(now)

	entry, ok := q.selectReady(now)
	if !ok {
		return
	}

	zone := q.zones[entry.ZoneIndex]
	pulse := q.applyActivation(entry, zone, now)
	if pulse <= 0 {
		return
	}

	if zone.Feed != "" {
		q.actuator.StartFeed(zone.Feed, pulse, entry.Context)
	}
	q.actuator.StartZone(zone.Name, pulse, entry.Context)

	q.hasActive = true
	q.act = active{
		zoneIndex: entry.ZoneIndex,
		pulseEnd:  now + int64(pulse),
		readyAt:   now + int64(pulse) + int64(q.indexValvePause),
	}

	if q.bus != nil {
		q.bus.Emit(events.ZoneStarted, "zonequeue", map[string]interface{}{
			"zone":    zone.Name,
			"pulse":   pulse,
			"context": entry.Context,
		})
	}

	q.prune(now)
}

// selectReady applies spec §4.4's selection policy among entries whose
// NextFireAt has arrived, honoring the program-launch minute gate (invariant
// 4) for non-manual entries.
func (q *Queue) selectReady(now int64) (*domain.QueueEntry, bool) {
	var best *domain.QueueEntry
	var bestWork int

	for _, e := range q.entries {
		if e.NextFireAt > now {
			continue
		}
		if e.Context != "" && now%60 > 1 {
			continue // program-originated; minute gate not open this tick
		}

		work := elapsedWork(e, q.zones[e.ZoneIndex])
		switch {
		case best == nil:
			best, bestWork = e, work
		case e.NextFireAt < best.NextFireAt:
			best, bestWork = e, work
		case e.NextFireAt == best.NextFireAt && work > bestWork:
			best, bestWork = e, work
		}
	}

	return best, best != nil
}

// elapsedWork is the tie-break metric of spec §4.4: the remaining work
// still owed to this zone, counting the pauses it will still incur.
func elapsedWork(e *domain.QueueEntry, zone domain.Zone) int {
	if zone.Pulse <= 0 {
		return e.RuntimeRemaining
	}
	cycles := int(math.Ceil(float64(e.RuntimeRemaining) / float64(zone.Pulse)))
	if cycles < 1 {
		cycles = 1
	}
	return e.RuntimeRemaining + zone.Pause*(cycles-1)
}

// applyActivation mutates entry per spec §4.4's "Entry updates on
// activation" and returns the pulse length actually issued. The pause is
// always added to NextFireAt, even on what turns out to be the final pulse
// (spec §9(c)'s resolved open question).
func (q *Queue) applyActivation(e *domain.QueueEntry, zone domain.Zone, now int64) int {
	var pulse int
	switch {
	case e.Context == "":
		// Manual.
		pulse = e.RuntimeRemaining
		e.RuntimeRemaining = 0
		e.HydrateRemaining = 0
	case e.HydrateRemaining > 0:
		pulse = e.HydrateRemaining
		e.HydrateRemaining = 0
	default:
		if zone.Pulse == 0 {
			pulse = e.RuntimeRemaining // zero zone.pulse means "all at once"
		} else {
			pulse = min(zone.Pulse, e.RuntimeRemaining)
		}
		e.RuntimeRemaining -= pulse
		if e.RuntimeRemaining < 0 {
			e.RuntimeRemaining = 0
		}
	}

	e.NextFireAt = now + int64(pulse) + int64(zone.Pause)
	return pulse
}

// prune compacts the entry slice from the tail while the last entry has
// drained all work and its trailing pause has elapsed (spec §4.4 "Pruning").
func (q *Queue) prune(now int64) {
	for len(q.entries) > 0 {
		last := q.entries[len(q.entries)-1]
		if last.RuntimeRemaining == 0 && last.NextFireAt < now {
			q.entries = q.entries[:len(q.entries)-1]
			continue
		}
		break
	}
}

// Len reports the number of queue entries (one per zone), including entries
// whose runtime has drained but that have not been pruned yet. Exposed for
// status reporting and tests.
func (q *Queue) Len() int { return len(q.entries) }
