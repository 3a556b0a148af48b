package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func gatheredNames(t *testing.T) map[string]bool {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	return names
}

func TestZoneMetrics_Registered(t *testing.T) {
	ZoneActivations.WithLabelValues("Z1", "P1").Inc()
	ZonesActive.Set(1)
	QueueDepth.Set(2)

	names := gatheredNames(t)
	for _, n := range []string{"sprinkler_zone_activations_total", "sprinkler_zones_active", "sprinkler_queue_depth"} {
		if !names[n] {
			t.Errorf("metric %q not found", n)
		}
	}
}

func TestProgramMetrics_Registered(t *testing.T) {
	ProgramLaunches.WithLabelValues("P1", "schedule").Inc()

	names := gatheredNames(t)
	if !names["sprinkler_program_launches_total"] {
		t.Error("sprinkler_program_launches_total not found")
	}
}

func TestWaterIndexMetrics_Registered(t *testing.T) {
	WaterIndexValue.Set(80)
	WaterIndexAdmissions.WithLabelValues("nws", "accepted").Inc()

	names := gatheredNames(t)
	for _, n := range []string{"sprinkler_water_index_value", "sprinkler_water_index_admissions_total"} {
		if !names[n] {
			t.Errorf("metric %q not found", n)
		}
	}
}

func TestControlMetrics_Registered(t *testing.T) {
	ControlRequestsTotal.WithLabelValues("Z1", "ok").Inc()
	ControlPointsDiscovered.Set(4)

	names := gatheredNames(t)
	for _, n := range []string{"sprinkler_control_requests_total", "sprinkler_control_points_discovered"} {
		if !names[n] {
			t.Errorf("metric %q not found", n)
		}
	}
}

func TestScheduleAndPersistenceMetrics_Registered(t *testing.T) {
	SchedulesFired.WithLabelValues("P1").Inc()
	PersistenceSaves.Inc()
	DepotPushes.WithLabelValues("ok").Inc()

	names := gatheredNames(t)
	for _, n := range []string{"sprinkler_schedules_fired_total", "sprinkler_persistence_saves_total", "sprinkler_depot_pushes_total"} {
		if !names[n] {
			t.Errorf("metric %q not found", n)
		}
	}
}

func TestHostMetrics_Registered(t *testing.T) {
	HostCPUPercent.Set(12.5)
	HostMemoryPercent.Set(40.0)
	HostUptimeSeconds.Set(3600)

	names := gatheredNames(t)
	for _, n := range []string{"sprinkler_host_cpu_percent", "sprinkler_host_memory_percent", "sprinkler_host_uptime_seconds"} {
		if !names[n] {
			t.Errorf("metric %q not found", n)
		}
	}
}
