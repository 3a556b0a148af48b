// Package waterindex implements the watering-index aggregator of spec §4.2:
// it polls discovered "waterindex" providers and retains the
// highest-priority fresh value, notifying registered listeners on
// admission. The HTTP client style and the per-provider polling-cadence
// concept are grounded on the host project's exchangerate client and its
// internal/queue/history.go throttle pattern, respectively.
package waterindex

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/housesprinkler/controller/internal/domain"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// staleAfter is the age at which a stored index value reverts to the
// default (spec §3, §4.2).
const staleAfter = 24 * time.Hour

// Listener is notified synchronously inside the aggregator's response
// callback whenever a new value is admitted (spec §4.2).
type Listener func(origin string, value int, timestamp int64)

const maxListeners = 16

type providerPayload struct {
	Host      string `json:"host"`
	Waterindex struct {
		Status struct {
			Received int    `json:"received"`
			Priority int    `json:"priority"`
			Index    int    `json:"index"`
			Name     string `json:"name"`
			Origin   string `json:"origin"`
		} `json:"status"`
	} `json:"waterindex"`
}

// Aggregator holds the process-global best-known index value.
type Aggregator struct {
	mu sync.Mutex

	current     domain.IndexValue
	hasValue    bool
	listeners   []Listener
	httpClient  *http.Client
	providerSrc func() []string
	minuteLimit *rate.Limiter // used until the first value is obtained
	hourLimit   *rate.Limiter // used once a value is stored
	log         zerolog.Logger
}

// New creates an Aggregator. providerSrc returns the current set of
// discovered waterindex provider base URLs.
func New(providerSrc func() []string, log zerolog.Logger) *Aggregator {
	return &Aggregator{
		providerSrc: providerSrc,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		minuteLimit: rate.NewLimiter(rate.Every(time.Minute), 1),
		hourLimit:   rate.NewLimiter(rate.Every(time.Hour), 1),
		log:         log.With().Str("component", "waterindex").Logger(),
	}
}

// RegisterListener adds a listener, up to maxListeners (spec §4.2).
func (a *Aggregator) RegisterListener(l Listener) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.listeners) >= maxListeners {
		a.log.Warn().Msg("listener registry full, dropping registration")
		return
	}
	a.listeners = append(a.listeners, l)
}

// Current returns the best-known value, reverting to the default if it has
// gone stale (spec §3: "a value older than one day reverts to the default").
func (a *Aggregator) Current(now time.Time) domain.IndexValue {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentLocked(now)
}

func (a *Aggregator) currentLocked(now time.Time) domain.IndexValue {
	if !a.hasValue || staleAt(now, a.current.Timestamp) {
		return domain.DefaultIndexValue()
	}
	return a.current
}

// staleAt reports whether a value timestamped ts (the provider's own
// "received" clock, spec §4.2) is older than one day as of now. Both
// admit's stale-override rule and currentLocked's revert-to-default use the
// value's own Timestamp field, not the aggregator's local receipt time —
// a provider that keeps responding successfully but echoes a stale cached
// "received" field must still be judged stale.
func staleAt(now time.Time, ts int64) bool {
	return now.Unix()-ts > int64(staleAfter.Seconds())
}

// Periodic queries each provider at most once per tick, gated by the cadence
// rule: once per minute until a value is obtained, once per hour after
// (spec §4.2).
func (a *Aggregator) Periodic(now time.Time) {
	a.mu.Lock()
	hasValue := a.hasValue
	a.mu.Unlock()

	limiter := a.hourLimit
	if !hasValue {
		limiter = a.minuteLimit
	}
	if !limiter.Allow() {
		return
	}
	if a.providerSrc == nil {
		return
	}

	for _, base := range a.providerSrc() {
		a.poll(base)
	}
}

func (a *Aggregator) poll(base string) {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, base+"/status", nil)
	if err != nil {
		return
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		a.log.Warn().Err(err).Str("provider", base).Msg("index poll failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		a.log.Warn().Int("status", resp.StatusCode).Str("provider", base).Msg("index poll returned non-200")
		return
	}

	var payload providerPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		a.log.Warn().Err(err).Str("provider", base).Msg("index poll returned bad payload")
		return
	}

	a.admit(payload.Waterindex.Status.Origin, payload.Waterindex.Status.Index,
		payload.Waterindex.Status.Priority, int64(payload.Waterindex.Status.Received))
}

// admit applies spec §4.2's admission rules. Tests reach it through the
// exported Admit wrapper, without standing up an HTTP server.
func (a *Aggregator) admit(origin string, value, priority int, timestamp int64) {
	a.mu.Lock()

	now := time.Now()
	if a.hasValue {
		stored := a.current
		// Rule 1: a lower-priority reading only loses to the stored value
		// while that stored value is still fresh (spec §3: "unless the
		// higher-priority one is older than one day").
		if priority < stored.Priority && !staleAt(now, stored.Timestamp) {
			a.mu.Unlock()
			return
		}
		if timestamp < stored.Timestamp-int64(staleAfter.Seconds()) {
			a.mu.Unlock()
			return
		}
		if priority == stored.Priority && timestamp <= stored.Timestamp {
			a.mu.Unlock()
			return
		}
	}

	a.current = domain.IndexValue{
		Value:     value,
		Priority:  priority,
		Timestamp: timestamp,
		Origin:    origin,
	}
	a.hasValue = true

	listeners := make([]Listener, len(a.listeners))
	copy(listeners, a.listeners)
	a.mu.Unlock()

	for _, l := range listeners {
		l(origin, value, timestamp)
	}
}

// Admit is the exported admission entry point, used by tests and by any
// push-style provider integration that bypasses HTTP polling.
func (a *Aggregator) Admit(origin string, value, priority int, timestamp int64) {
	a.admit(origin, value, priority, timestamp)
}
