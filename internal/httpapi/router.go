// Package httpapi exposes the sprinkler controller's HTTP surface on a
// chi.Router: the command/status endpoints of spec.md §6, the supplemental
// activation-history read endpoint, and /metrics. The router assembly
// (middleware.Logger, middleware.Recoverer, go-chi/cors) is grounded on the
// host project's own chi-based server setup.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Core is the subset of internal/app's SprinklerCore that the HTTP layer
// drives. Defined here, implemented there, so httpapi never imports app and
// the dependency runs one way.
type Core interface {
	ConfigDocument() ([]byte, error)
	ReplaceConfig(data []byte) error
	Status() StatusResponse
	ExtendRainDelay(seconds int64)
	SetRainEnabled(enabled bool)
	SetIndexEnabled(enabled bool)
	Refresh()
	ToggleSwitch() bool
	LaunchProgram(name string) bool
	ActivateZone(name string, pulseSeconds int) bool
	DeactivateAllZones()
	RecentActivations(limit int) ([]ActivationRecord, error)
}

// ActivationRecord mirrors internal/history.Entry without importing the
// sqlite-backed package directly into the HTTP layer's dependency surface.
type ActivationRecord struct {
	StartedAt int64  `json:"startedAt"`
	ZoneName  string `json:"zoneName"`
	Context   string `json:"context"`
	Seconds   int    `json:"seconds"`
}

// StatusResponse is the §6 "aggregated status" payload.
type StatusResponse struct {
	Host      HostStatus      `json:"host"`
	Proxy     interface{}     `json:"proxy"`
	Timestamp int64           `json:"timestamp"`
	Control   interface{}     `json:"control"`
	Program   interface{}     `json:"program"`
	Schedule  interface{}     `json:"schedule"`
	Index     interface{}     `json:"index"`
}

// HostStatus reports process/host telemetry via gopsutil.
type HostStatus struct {
	UptimeSeconds uint64  `json:"uptimeSeconds"`
	CPUPercent    float64 `json:"cpuPercent"`
	MemoryPercent float64 `json:"memoryPercent"`
}

// NewRouter builds the full chi.Router for the controller.
func NewRouter(core Core, log zerolog.Logger) http.Handler {
	h := &handlers{core: core, log: log.With().Str("component", "httpapi").Logger()}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/sprinkler/config", h.getConfig)
	r.Post("/sprinkler/config", h.postConfig)
	r.Get("/sprinkler/status", h.status)
	r.Get("/sprinkler/raindelay", h.rainDelay)
	r.Get("/sprinkler/rain", h.rainEnable)
	r.Get("/sprinkler/index", h.indexEnable)
	r.Get("/sprinkler/refresh", h.refresh)
	r.Get("/sprinkler/onoff", h.onoff)
	r.Get("/sprinkler/program/on", h.programOn)
	r.Get("/sprinkler/zone/on", h.zoneOn)
	r.Get("/sprinkler/zone/off", h.zoneOff)
	r.Get("/sprinkler/history", h.history)

	r.Handle("/metrics", promhttp.Handler())

	return r
}

type handlers struct {
	core Core
	log  zerolog.Logger
}

func (h *handlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("failed to encode JSON response")
	}
}

func (h *handlers) writeOK(w http.ResponseWriter) {
	h.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
