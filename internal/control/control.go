// Package control implements the control plane of spec §4.1: it discovers
// relay servers on the local network, routes zone/feed actuation commands
// to them over HTTP, and tracks the wall-clock deadline of each outstanding
// pulse. The discovery HTTP client style is grounded on the host project's
// internal/clients/exchangerate client (plain net/http.Client, JSON decode,
// zerolog), and the "emit only on change" discovery pattern is grounded on
// internal/server/status_monitor.go.
package control

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/housesprinkler/controller/internal/domain"
	"github.com/housesprinkler/controller/internal/events"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// ProviderSource returns the current set of known provider base URLs to scan
// for declared control points (type "control"). It is the same external
// registry spec §4.1 describes as triggering "discovered("control", scan)"
// immediately on a reported change; ProviderSource is polled, not pushed,
// which is sufficient because Periodic itself is rate-limited.
type ProviderSource func() []string

type statusPayload struct {
	Control struct {
		Status map[string]struct {
			State string `json:"state"`
		} `json:"status"`
	} `json:"control"`
}

// Plane is the control plane: declared points, discovered providers, and
// actuation.
type Plane struct {
	mu sync.Mutex

	points       map[string]*domain.ControlPoint
	pointOrder   []string
	providers    []string
	providerSrc  ProviderSource
	httpClient   *http.Client
	limiter      *rate.Limiter
	bus          *events.Bus
	log          zerolog.Logger
	discoveryErr bool // whether the last discovery attempt failed (for once-per-transition logging)
}

// New creates a Plane. Discovery is capped at once per minute via limiter,
// per spec §4.1.
func New(providerSrc ProviderSource, bus *events.Bus, log zerolog.Logger) *Plane {
	return &Plane{
		points:      make(map[string]*domain.ControlPoint),
		providerSrc: providerSrc,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		limiter:     rate.NewLimiter(rate.Every(time.Minute), 1),
		bus:         bus,
		log:         log.With().Str("component", "control").Logger(),
	}
}

// Reset clears all known points, called before applying a new configuration.
func (p *Plane) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.points = make(map[string]*domain.ControlPoint)
	p.pointOrder = nil
}

// Declare records a point to be discovered; idempotent by name.
func (p *Plane) Declare(name string, t domain.ControlType) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.points[name]; exists {
		return
	}
	p.points[name] = &domain.ControlPoint{Name: name, Type: t, State: domain.StateUnknown, EventsEnabled: true}
	p.pointOrder = append(p.pointOrder, name)
}

// EventPolicy suppresses/allows activation log events for a point (spec
// §4.1). When once is true, the override applies to exactly the next
// activation and then self-disables, reverting EventsEnabled to true.
func (p *Plane) EventPolicy(name string, enable, once bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cp, ok := p.points[name]; ok {
		cp.EventsEnabled = enable
		cp.EventsOnce = once
	}
}

// State returns a point's current actuation state.
func (p *Plane) State(name string) domain.ControlState {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cp, ok := p.points[name]; ok {
		return cp.State
	}
	return domain.StateUnknown
}

// StartZone implements zonequeue.Actuator.
func (p *Plane) StartZone(name string, pulseSeconds int, context string) bool {
	return p.Start(name, pulseSeconds, context)
}

// StartFeed implements zonequeue.Actuator.
func (p *Plane) StartFeed(name string, pulseSeconds int, context string) bool {
	return p.Start(name, pulseSeconds, context)
}

// Start sends an "on for pulse seconds" command to name's provider. context
// is the program name, or "MANUAL" for a manual activation.
func (p *Plane) Start(name string, pulseSeconds int, ctx string) bool {
	if ctx == "" {
		ctx = "MANUAL"
	}

	p.mu.Lock()
	cp, ok := p.points[name]
	if !ok {
		p.mu.Unlock()
		p.log.Warn().Str("point", name).Msg("start requested for undeclared control point")
		return false
	}
	providerURL := cp.ProviderURL
	logActivation := cp.EventsEnabled
	if cp.EventsOnce {
		cp.EventsEnabled = true
		cp.EventsOnce = false
	}
	p.mu.Unlock()

	if providerURL == "" {
		p.log.Warn().Str("point", name).Msg("no provider discovered yet")
		return false
	}

	if logActivation {
		p.log.Info().Str("point", name).Int("pulse", pulseSeconds).Str("context", ctx).Msg("activation")
	}

	u := fmt.Sprintf("%s/set?point=%s&state=on&pulse=%d&cause=%s",
		providerURL, url.QueryEscape(name), pulseSeconds, url.QueryEscape("SPRINKLER "+ctx))

	ok = p.dispatch(u)

	p.mu.Lock()
	defer p.mu.Unlock()
	if ok {
		cp.State = domain.StateActive
		cp.Deadline = time.Now().Unix() + int64(pulseSeconds)
	} else {
		cp.State = domain.StateError
		cp.Deadline = 0
	}
	return ok
}

// Cancel sends an "off" command to name, or to all active points if name is
// the empty string.
func (p *Plane) Cancel(name string) {
	p.mu.Lock()
	var targets []string
	if name == "" {
		for n, cp := range p.points {
			if cp.State == domain.StateActive {
				targets = append(targets, n)
			}
		}
	} else if _, ok := p.points[name]; ok {
		targets = append(targets, name)
	}
	p.mu.Unlock()

	for _, n := range targets {
		p.cancelOne(n)
	}
}

func (p *Plane) cancelOne(name string) {
	p.mu.Lock()
	cp, ok := p.points[name]
	if !ok {
		p.mu.Unlock()
		return
	}
	providerURL := cp.ProviderURL
	p.mu.Unlock()

	if providerURL == "" {
		return
	}

	u := fmt.Sprintf("%s/set?point=%s&state=off", providerURL, url.QueryEscape(name))
	ok = p.dispatch(u)

	p.mu.Lock()
	defer p.mu.Unlock()
	if ok {
		cp.State = domain.StateIdle
	} else {
		cp.State = domain.StateError
	}
	cp.Deadline = 0
}

// CancelAll implements zonequeue.Actuator.
func (p *Plane) CancelAll() { p.Cancel("") }

func (p *Plane) dispatch(rawURL string) bool {
	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		p.log.Warn().Err(err).Str("url", rawURL).Msg("invalid actuation request")
		return false
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.log.Warn().Err(err).Str("url", rawURL).Msg("actuation request failed")
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		p.log.Warn().Int("status", resp.StatusCode).Str("url", rawURL).Msg("actuation returned non-200")
		return false
	}
	return true
}

// Periodic re-evaluates deadlines and drives discovery. It is called once
// per tick (spec §5); discovery itself only actually runs when the limiter
// allows it.
func (p *Plane) Periodic(now int64) {
	p.mu.Lock()
	for _, cp := range p.points {
		if cp.State == domain.StateActive && cp.Deadline != 0 && now >= cp.Deadline {
			cp.State = domain.StateIdle
			cp.Deadline = 0
		}
	}
	p.mu.Unlock()

	if p.limiter.Allow() {
		p.discover()
	}
}

// Refresh forces an immediate rescan, bypassing the discovery rate limiter.
// Used by the /sprinkler/refresh endpoint (spec §6).
func (p *Plane) Refresh() {
	p.discover()
}

// ControlsActive reports whether any declared zone point is currently active.
func (p *Plane) ControlsActive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, cp := range p.points {
		if cp.Type == domain.ControlZone && cp.State == domain.StateActive {
			return true
		}
	}
	return false
}

// discover performs one full rescan, dropping the previous provider list
// first so a stale cache is never walked while discovery is in flight
// (spec §4.1).
func (p *Plane) discover() {
	if p.providerSrc == nil {
		return
	}
	providers := p.providerSrc()

	p.mu.Lock()
	p.providers = providers
	p.mu.Unlock()

	for _, base := range providers {
		p.scanProvider(base)
	}
}

func (p *Plane) scanProvider(base string) {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, base+"/status", nil)
	if err != nil {
		return
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.noteDiscoveryFailure(err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		p.noteDiscoveryFailure(fmt.Errorf("status %d", resp.StatusCode))
		return
	}

	var payload statusPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		p.noteDiscoveryFailure(err)
		return
	}

	p.mu.Lock()
	p.discoveryErr = false
	defer p.mu.Unlock()

	for pointName := range payload.Control.Status {
		cp, declared := p.points[pointName]
		if !declared {
			continue
		}
		if cp.ProviderURL != base {
			old := cp.ProviderURL
			cp.ProviderURL = base
			if p.bus != nil {
				p.bus.Emit(events.RouteChanged, "control", map[string]interface{}{
					"point":    pointName,
					"old_url":  old,
					"provider": base,
				})
			}
		}
	}
}

// noteDiscoveryFailure logs at most once per transition into the failed
// state, per spec §4.1's failure semantics.
func (p *Plane) noteDiscoveryFailure(err error) {
	p.mu.Lock()
	already := p.discoveryErr
	p.discoveryErr = true
	p.mu.Unlock()

	if !already {
		p.log.Warn().Err(err).Msg("discovery failed")
	}
}

// StatusSnapshot is the serializable view of the control plane for the
// status API (spec §6).
type StatusSnapshot struct {
	Points map[string]PointStatus `json:"points"`
}

// PointStatus is one control point's serialized state.
type PointStatus struct {
	Type        domain.ControlType  `json:"type"`
	State       domain.ControlState `json:"state"`
	ProviderURL string              `json:"providerUrl,omitempty"`
	Deadline    int64               `json:"deadline,omitempty"`
}

// DiscoveredCount returns the number of declared points with a resolved
// provider route, for metrics reporting.
func (p *Plane) DiscoveredCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, cp := range p.points {
		if cp.ProviderURL != "" {
			n++
		}
	}
	return n
}

// Status serializes the control plane for the status API.
func (p *Plane) Status() StatusSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	snap := StatusSnapshot{Points: make(map[string]PointStatus, len(p.points))}
	for name, cp := range p.points {
		snap.Points[name] = PointStatus{
			Type:        cp.Type,
			State:       cp.State,
			ProviderURL: cp.ProviderURL,
			Deadline:    cp.Deadline,
		}
	}
	return snap
}
