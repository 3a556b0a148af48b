// Package metrics exposes Prometheus counters and gauges for the
// controller (spec §11's domain-stack metrics wiring). The promauto
// registration style is grounded on the host project's observability
// metrics package.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Zones ──────────────────────────────────────────────────────────────────

// ZoneActivations counts zone pulse activations by zone name and context.
var ZoneActivations = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "sprinkler",
	Name:      "zone_activations_total",
	Help:      "Total zone pulse activations.",
}, []string{"zone", "context"})

// ZonesActive tracks the number of currently active zones (0 or 1, since
// only one zone pulses at a time).
var ZonesActive = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "sprinkler",
	Name:      "zones_active",
	Help:      "Number of zones currently pulsing water.",
})

// QueueDepth tracks the number of entries in the zone queue, including
// drained entries that have not been pruned yet.
var QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "sprinkler",
	Name:      "queue_depth",
	Help:      "Number of entries in the zone queue.",
})

// ─── Programs ───────────────────────────────────────────────────────────────

// ProgramLaunches counts program launches by name and trigger ("manual" or
// "schedule").
var ProgramLaunches = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "sprinkler",
	Name:      "program_launches_total",
	Help:      "Total program launches.",
}, []string{"program", "trigger"})

// ─── Watering index ────────────────────────────────────────────────────────

// WaterIndexValue tracks the current watering index value (0-200+).
var WaterIndexValue = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "sprinkler",
	Name:      "water_index_value",
	Help:      "Current best-known watering index value.",
})

// WaterIndexAdmissions counts admitted index values by origin, under the
// "accepted" outcome; rejected readings are not counted.
var WaterIndexAdmissions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "sprinkler",
	Name:      "water_index_admissions_total",
	Help:      "Watering index submissions by origin and outcome.",
}, []string{"origin", "outcome"})

// ─── Control plane ──────────────────────────────────────────────────────────

// ControlRequestsTotal is a counter of control point set requests by point
// and outcome (ok/error). The control plane does not increment it.
var ControlRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "sprinkler",
	Name:      "control_requests_total",
	Help:      "Total control point set requests dispatched.",
}, []string{"point", "outcome"})

// ControlPointsDiscovered tracks the number of declared control points with
// a known provider route.
var ControlPointsDiscovered = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "sprinkler",
	Name:      "control_points_discovered",
	Help:      "Number of control points with a resolved provider route.",
})

// ─── Schedules ──────────────────────────────────────────────────────────────

// SchedulesFired counts schedule firings.
var SchedulesFired = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "sprinkler",
	Name:      "schedules_fired_total",
	Help:      "Total schedules fired, by program.",
}, []string{"program"})

// ─── Persistence ────────────────────────────────────────────────────────────

// PersistenceSaves counts local state saves.
var PersistenceSaves = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "sprinkler",
	Name:      "persistence_saves_total",
	Help:      "Total local state file saves.",
})

// DepotPushes counts remote depot uploads by outcome.
var DepotPushes = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "sprinkler",
	Name:      "depot_pushes_total",
	Help:      "Total remote depot pushes, by outcome.",
}, []string{"outcome"})

// ─── Host ───────────────────────────────────────────────────────────────────

// HostCPUPercent tracks host CPU utilization.
var HostCPUPercent = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "sprinkler",
	Name:      "host_cpu_percent",
	Help:      "Host CPU utilization percentage.",
})

// HostMemoryPercent tracks host memory utilization.
var HostMemoryPercent = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "sprinkler",
	Name:      "host_memory_percent",
	Help:      "Host memory utilization percentage.",
})

// HostUptimeSeconds tracks host uptime.
var HostUptimeSeconds = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "sprinkler",
	Name:      "host_uptime_seconds",
	Help:      "Host uptime in seconds.",
})
