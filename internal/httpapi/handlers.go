package httpapi

import (
	"io"
	"net/http"
	"strconv"
)

const defaultRainDelaySeconds = 86400
const defaultZonePulseSeconds = 30
const defaultHistoryLimit = 100

func (h *handlers) getConfig(w http.ResponseWriter, r *http.Request) {
	data, err := h.core.ConfigDocument()
	if err != nil {
		h.log.Error().Err(err).Msg("failed to serialize configuration document")
		http.Error(w, "failed to read configuration", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// postConfig implements §7's ConfigInvalid handling: a malformed document is
// rejected with 500 and live state is left untouched.
func (h *handlers) postConfig(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if err := h.core.ReplaceConfig(body); err != nil {
		h.log.Warn().Err(err).Msg("rejected configuration replacement")
		http.Error(w, "invalid configuration: "+err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeOK(w)
}

func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.core.Status())
}

func (h *handlers) rainDelay(w http.ResponseWriter, r *http.Request) {
	amount := int64(defaultRainDelaySeconds)
	if raw := r.URL.Query().Get("amount"); raw != "" {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
			amount = v
		}
	}
	h.core.ExtendRainDelay(amount)
	h.writeOK(w)
}

func (h *handlers) rainEnable(w http.ResponseWriter, r *http.Request) {
	active := true
	if raw := r.URL.Query().Get("active"); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			active = v
		}
	}
	h.core.SetRainEnabled(active)
	h.writeOK(w)
}

func (h *handlers) indexEnable(w http.ResponseWriter, r *http.Request) {
	active := true
	if raw := r.URL.Query().Get("active"); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			active = v
		}
	}
	h.core.SetIndexEnabled(active)
	h.writeOK(w)
}

func (h *handlers) refresh(w http.ResponseWriter, r *http.Request) {
	h.core.Refresh()
	h.writeOK(w)
}

func (h *handlers) onoff(w http.ResponseWriter, r *http.Request) {
	on := h.core.ToggleSwitch()
	h.writeJSON(w, http.StatusOK, map[string]bool{"success": true, "on": on})
}

// programOn implements §7's UnknownControl handling for an unrecognized
// program name: the request still returns success, the launch is a no-op.
func (h *handlers) programOn(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		http.Error(w, "missing name parameter", http.StatusBadRequest)
		return
	}
	if !h.core.LaunchProgram(name) {
		h.log.Info().Str("program", name).Msg("program launch request had no effect")
	}
	h.writeOK(w)
}

func (h *handlers) zoneOn(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		http.Error(w, "missing name parameter", http.StatusBadRequest)
		return
	}
	pulse := defaultZonePulseSeconds
	if raw := r.URL.Query().Get("pulse"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			pulse = v
		}
	}
	if !h.core.ActivateZone(name, pulse) {
		h.log.Info().Str("zone", name).Msg("zone activation request had no effect")
	}
	h.writeOK(w)
}

func (h *handlers) zoneOff(w http.ResponseWriter, r *http.Request) {
	h.core.DeactivateAllZones()
	h.writeOK(w)
}

func (h *handlers) history(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			limit = v
		}
	}
	records, err := h.core.RecentActivations(limit)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to read activation history")
		http.Error(w, "failed to read activation history", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"activations": records})
}
