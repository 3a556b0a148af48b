// Package app wires every subsystem into a single owned SprinklerCore
// aggregate, replacing the global mutable singletons spec.md §9 calls out
// (SprinklerIndex, Schedules, Zones, Queue, Controls, RainDelay, SprinklerOn).
// The ordered-init-with-cleanup-on-error wiring style is grounded on the
// host project's internal/di/wire.go.
package app

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/housesprinkler/controller/internal/clock"
	"github.com/housesprinkler/controller/internal/config"
	"github.com/housesprinkler/controller/internal/configdoc"
	"github.com/housesprinkler/controller/internal/control"
	"github.com/housesprinkler/controller/internal/domain"
	"github.com/housesprinkler/controller/internal/events"
	"github.com/housesprinkler/controller/internal/history"
	"github.com/housesprinkler/controller/internal/httpapi"
	"github.com/housesprinkler/controller/internal/metrics"
	"github.com/housesprinkler/controller/internal/persistence"
	"github.com/housesprinkler/controller/internal/program"
	"github.com/housesprinkler/controller/internal/schedule"
	"github.com/housesprinkler/controller/internal/waterindex"
	"github.com/housesprinkler/controller/internal/zonequeue"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

const depotBackupSchedule = "@every 5m"
const tickInterval = time.Second

// SprinklerCore is the single owned aggregate driving every subsystem. It
// satisfies httpapi.Core.
type SprinklerCore struct {
	mu  sync.Mutex
	cfg *config.Config
	log zerolog.Logger
	clk clock.Clock
	bus *events.Bus

	docPath string
	doc     *configdoc.Document

	control   *control.Plane
	index     *waterindex.Aggregator
	queue     *zonequeue.Queue
	runner    *program.Runner
	evaluator *schedule.Evaluator
	store     *persistence.Store
	depot     *persistence.DepotClient
	historyDB *history.Log

	backupJob *cron.Cron
	startedAt time.Time
}

var _ httpapi.Core = (*SprinklerCore)(nil)

// Wire builds a fully-initialized SprinklerCore. On error, every resource
// opened so far is cleaned up before returning.
func Wire(cfg *config.Config, log zerolog.Logger) (*SprinklerCore, error) {
	// Step 1: load and validate the configuration document.
	doc, idsChanged, err := loadDocument(cfg.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("loading configuration document: %w", err)
	}
	if idsChanged {
		if err := saveDocument(cfg.ConfigPath, doc); err != nil {
			log.Warn().Err(err).Msg("failed to write back generated schedule ids")
		}
	}

	// Step 2: open the activation history database.
	historyPath := cfg.BackupPath + ".history.db"
	historyDB, err := history.Open(historyPath)
	if err != nil {
		return nil, fmt.Errorf("opening activation history: %w", err)
	}

	// Step 3: build the remote depot client, if configured.
	var depot *persistence.DepotClient
	if cfg.DepotEnabled() {
		depot, err = persistence.NewDepotClient(context.Background(),
			cfg.DepotEndpoint, cfg.DepotAccessKey, cfg.DepotSecretKey, cfg.DepotRegion, cfg.DepotBucket, log)
		if err != nil {
			historyDB.Close()
			return nil, fmt.Errorf("building depot client: %w", err)
		}
	}

	// Step 4: load persisted state (on/off, rain delay, per-schedule launch).
	// If this host has never written a local snapshot, pull the last one
	// down from the depot first (e.g. after a fresh deploy).
	if err := persistence.RestoreIfMissing(context.Background(), cfg.BackupPath, depot); err != nil {
		log.Warn().Err(err).Msg("failed to restore persisted state from depot")
	}
	persisted, err := persistence.Load(cfg.BackupPath)
	if err != nil {
		historyDB.Close()
		return nil, fmt.Errorf("loading persisted state: %w", err)
	}
	applyPersistedState(doc, persisted)

	bus := events.NewBus(log)

	core := &SprinklerCore{
		cfg:       cfg,
		log:       log.With().Str("component", "app").Logger(),
		clk:       clock.Real{},
		bus:       bus,
		docPath:   cfg.ConfigPath,
		doc:       doc,
		depot:     depot,
		historyDB: historyDB,
		startedAt: time.Now(),
	}

	// Step 5: build the subsystems, in dependency order (spec.md §2's table).
	core.control = control.New(core.providerSource, bus, log)
	core.index = waterindex.New(core.providerSource, log)
	core.index.RegisterListener(func(origin string, value int, timestamp int64) {
		metrics.WaterIndexValue.Set(float64(value))
		metrics.WaterIndexAdmissions.WithLabelValues(origin, "accepted").Inc()
	})

	core.queue = zonequeue.New(doc.Zones, core.control, bus, log)
	core.runner = program.New(doc, core.queue, core.index.Current, bus, log)
	// The rain-delay feature's on/off toggle (§6 /sprinkler/rain) is not part
	// of the persisted document shape (§6: only the deadline is saved), so it
	// starts enabled; only the deadline itself is restored.
	core.evaluator = schedule.New(doc.Schedules, core.runner, nil, bus, log, persisted.On, domain.RainDelay{
		Deadline: persisted.RainDelay,
		Enabled:  true,
	})
	// A schedule's daily repeat gate consults its program's intervalName, if
	// set, to turn the current watering index into a day count (spec §4.3's
	// "skip decision"), overriding the schedule's own fixed interval.
	core.evaluator.SetIntervalSource(doc, core.index.Current)

	// Step 6: persistence store; the evaluator notifies it via MarkChanged.
	// The store's Source is the evaluator itself, so the notifier is bound
	// after both exist rather than threading a forward reference through.
	core.store = persistence.New(cfg.BackupPath, core.evaluator, depot, log)
	core.evaluator.SetNotifier(core.store)

	core.declareControlPoints(doc)

	bus.Subscribe(events.ZoneStarted, core.onZoneStarted)
	bus.Subscribe(events.ScheduleFired, core.onScheduleFired)
	bus.Subscribe(events.ProgramLaunched, core.onProgramLaunched)

	// Step 7: periodic remote depot backup, on its own slower cadence
	// (spec §11's domain stack: backup does not belong on the 1 Hz tick).
	if depot != nil {
		core.backupJob = cron.New()
		if _, err := core.backupJob.AddFunc(depotBackupSchedule, core.pushToDepot); err != nil {
			historyDB.Close()
			return nil, fmt.Errorf("scheduling depot backup job: %w", err)
		}
		core.backupJob.Start()
	}

	return core, nil
}

func loadDocument(path string) (*configdoc.Document, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false, fmt.Errorf("reading configuration file: %w", err)
	}
	return configdoc.Parse(data)
}

func saveDocument(path string, doc *configdoc.Document) error {
	data, err := configdoc.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshaling configuration document: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// applyPersistedState restores each schedule's lastLaunch from the on-disk
// snapshot, matched by stable UUID (spec.md §9).
func applyPersistedState(doc *configdoc.Document, persisted domain.PersistedState) {
	launched := make(map[string]int64, len(persisted.Schedule))
	for _, e := range persisted.Schedule {
		launched[e.ID.String()] = e.Launched
	}
	for i := range doc.Schedules {
		if ts, ok := launched[doc.Schedules[i].ID.String()]; ok {
			doc.Schedules[i].LastLaunch = ts
		}
	}
}

// providerSource resolves discovery provider base URLs from the static
// configuration seam (see internal/config.Config.DiscoveryProviders).
func (c *SprinklerCore) providerSource() []string {
	return c.cfg.DiscoveryProviders
}

func (c *SprinklerCore) declareControlPoints(doc *configdoc.Document) {
	c.control.Reset()
	feedNames := make(map[string]bool)
	for _, z := range doc.Zones {
		c.control.Declare(z.Name, domain.ControlZone)
		if z.Feed != "" {
			feedNames[z.Feed] = true
		}
	}
	for _, ctrl := range doc.Controls {
		feedNames[ctrl.Name] = true
	}
	for name := range feedNames {
		c.control.Declare(name, domain.ControlFeed)
	}
}

func (c *SprinklerCore) onZoneStarted(e *events.Event) {
	zone, _ := e.Data["zone"].(string)
	pulse, _ := e.Data["pulse"].(int)
	ctx, _ := e.Data["context"].(string)

	metrics.ZoneActivations.WithLabelValues(zone, ctx).Inc()

	if c.historyDB != nil {
		recCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.historyDB.Record(recCtx, history.Entry{
			StartedAt: c.clk.Unix(),
			ZoneName:  zone,
			Context:   ctx,
			Seconds:   pulse,
		}); err != nil {
			c.log.Warn().Err(err).Msg("failed to record activation history")
		}
	}
}

func (c *SprinklerCore) onScheduleFired(e *events.Event) {
	program, _ := e.Data["program"].(string)
	metrics.SchedulesFired.WithLabelValues(program).Inc()
}

func (c *SprinklerCore) onProgramLaunched(e *events.Event) {
	name, _ := e.Data["program"].(string)
	manual, _ := e.Data["manual"].(bool)
	trigger := "schedule"
	if manual {
		trigger = "manual"
	}
	metrics.ProgramLaunches.WithLabelValues(name, trigger).Inc()
}

func (c *SprinklerCore) pushToDepot() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := c.store.PushToDepot(ctx); err != nil {
		metrics.DepotPushes.WithLabelValues("error").Inc()
		c.log.Error().Err(err).Msg("depot backup push failed")
		return
	}
	metrics.DepotPushes.WithLabelValues("ok").Inc()
}

// Run drives the 1 Hz tick loop until ctx is cancelled (spec §5).
func (c *SprinklerCore) Run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			c.periodic(t)
		}
	}
}

func (c *SprinklerCore) periodic(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := t.Unix()

	c.control.Periodic(now)
	c.index.Periodic(t)
	c.queue.Periodic(now)
	c.runner.Periodic()
	c.evaluator.Periodic(now)
	c.store.Periodic(t)

	metrics.QueueDepth.Set(float64(c.queue.Len()))
	if c.control.ControlsActive() {
		metrics.ZonesActive.Set(1)
	} else {
		metrics.ZonesActive.Set(0)
	}
	metrics.ControlPointsDiscovered.Set(float64(c.control.DiscoveredCount()))
}

// Shutdown stops all active zones, flushes persisted state, and stops the
// depot backup job. Grounded on the host's cmd/server/main.go shutdown
// ordering (scheduler -> state monitor -> workers).
func (c *SprinklerCore) Shutdown(ctx context.Context) error {
	if c.backupJob != nil {
		c.backupJob.Stop()
	}

	c.mu.Lock()
	c.queue.Stop()
	c.store.Periodic(time.Now().Add(time.Hour)) // force a final flush past the debounce window
	c.mu.Unlock()

	if c.historyDB != nil {
		return c.historyDB.Close()
	}
	return nil
}

// ─── httpapi.Core ───────────────────────────────────────────────────────────

func (c *SprinklerCore) ConfigDocument() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return configdoc.Marshal(c.doc)
}

func (c *SprinklerCore) ReplaceConfig(data []byte) error {
	newDoc, _, err := configdoc.Parse(data)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.doc = newDoc
	c.declareControlPoints(newDoc)
	c.queue.Refresh(newDoc.Zones)
	c.runner.Refresh(newDoc)
	c.evaluator.Refresh(newDoc.Schedules)
	c.evaluator.SetIntervalSource(newDoc, c.index.Current)

	if err := saveDocument(c.docPath, newDoc); err != nil {
		c.log.Warn().Err(err).Msg("failed to persist replaced configuration document")
	}
	return nil
}

func (c *SprinklerCore) Status() httpapi.StatusResponse {
	c.mu.Lock()
	snapshot := c.doc
	now := c.clk.Now()
	control := c.control.Status()
	idx := c.index.Current(now)
	schedules := c.evaluator.Snapshot()
	c.mu.Unlock()

	running := make([]string, 0, len(snapshot.Programs))
	for _, p := range snapshot.Programs {
		if c.runner.Running(p.Name) {
			running = append(running, p.Name)
		}
	}

	return httpapi.StatusResponse{
		Host:      hostStatus(c.startedAt),
		Proxy:     nil,
		Timestamp: now.Unix(),
		Control:   control,
		Program:   map[string]interface{}{"running": running},
		Schedule:  schedules,
		Index:     idx,
	}
}

func hostStatus(startedAt time.Time) httpapi.HostStatus {
	st := httpapi.HostStatus{UptimeSeconds: uint64(time.Since(startedAt).Seconds())}

	if info, err := host.Info(); err == nil {
		st.UptimeSeconds = info.Uptime
	}
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		st.CPUPercent = percents[0]
		metrics.HostCPUPercent.Set(percents[0])
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		st.MemoryPercent = vm.UsedPercent
		metrics.HostMemoryPercent.Set(vm.UsedPercent)
	}
	metrics.HostUptimeSeconds.Set(float64(st.UptimeSeconds))
	return st
}

func (c *SprinklerCore) ExtendRainDelay(seconds int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evaluator.SetRain(seconds, c.clk.Unix())
}

func (c *SprinklerCore) SetRainEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evaluator.RainEnable(enabled)
}

func (c *SprinklerCore) SetIndexEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.runner.SetIndexScaling(enabled)
}

func (c *SprinklerCore) Refresh() {
	c.control.Refresh()
}

func (c *SprinklerCore) ToggleSwitch() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evaluator.Switch()
}

func (c *SprinklerCore) LaunchProgram(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runner.Launch(name, true, c.clk.Unix())
}

func (c *SprinklerCore) ActivateZone(name string, pulseSeconds int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, z := range c.doc.Zones {
		if z.Name == name {
			c.queue.Enqueue(i, pulseSeconds, "", c.clk.Unix())
			return true
		}
	}
	c.log.Warn().Str("zone", name).Msg("zone activation request for undeclared zone")
	return false
}

func (c *SprinklerCore) DeactivateAllZones() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue.Stop()
}

func (c *SprinklerCore) RecentActivations(limit int) ([]httpapi.ActivationRecord, error) {
	if c.historyDB == nil {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	entries, err := c.historyDB.Recent(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]httpapi.ActivationRecord, len(entries))
	for i, e := range entries {
		out[i] = httpapi.ActivationRecord{
			StartedAt: e.StartedAt,
			ZoneName:  e.ZoneName,
			Context:   e.Context,
			Seconds:   e.Seconds,
		}
	}
	return out, nil
}
