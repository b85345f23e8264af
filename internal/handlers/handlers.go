// Package handlers exposes the cache's administrative HTTP surface:
// stats, pattern invalidation, clears and refresh triggers. Refresh runs
// long relative to a request, so it is meant for out-of-band callers
// (cron, ops tooling), not the user-facing request path.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"civic-cache/internal/cache"
	"civic-cache/internal/common/errors"
	"civic-cache/internal/common/logging"
	"civic-cache/internal/config"
)

// Handlers bundles the admin endpoints over the unified cache.
type Handlers struct {
	cache     *cache.UnifiedCache
	refresher *cache.Refresher
	remote    cache.RemoteStore
	config    *config.Config
	logger    logging.Logger
}

// New creates the handler set.
func New(unified *cache.UnifiedCache, refresher *cache.Refresher, remote cache.RemoteStore, cfg *config.Config, logger logging.Logger) *Handlers {
	return &Handlers{
		cache:     unified,
		refresher: refresher,
		remote:    remote,
		config:    cfg,
		logger:    logger,
	}
}

// HealthCheck reports service liveness and Redis connectivity. The
// service is healthy even with Redis down: the fallback store keeps
// serving, so a degraded primary is reported but never fails the check.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":          "ok",
		"redis_connected": h.remote.Connected(),
		"timestamp":       time.Now().UTC().Format(time.RFC3339),
	})
}

// GetStats returns the aggregated per-tier and combined cache statistics.
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.cache.Stats(r.Context()))
}

type invalidateRequest struct {
	Pattern string `json:"pattern"`
}

// InvalidatePattern deletes entries matching the pattern in both tiers
// and returns per-store deletion counts.
func (h *Handlers) InvalidatePattern(w http.ResponseWriter, r *http.Request) {
	var req invalidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "request body must be JSON with a pattern field")
		return
	}

	result, err := h.cache.InvalidatePattern(r.Context(), req.Pattern)
	if err != nil {
		if errors.IsType(err, errors.ErrTypeValidation) {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// ClearCache empties both tiers, optionally scoped by the prefix query
// parameter.
func (h *Handlers) ClearCache(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	h.cache.Clear(r.Context(), prefix)
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "cleared", "prefix": prefix})
}

type refreshRequest struct {
	Profile string   `json:"profile"` // "quick" or "full"
	Keys    []string `json:"keys,omitempty"`
}

// TriggerRefresh starts a refresh run and returns its summary. With
// explicit keys it runs the default pacing over those keys; otherwise the
// named profile decides the key set and pacing.
func (h *Handlers) TriggerRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "request body must be JSON")
		return
	}

	var summary cache.RefreshSummary
	switch {
	case len(req.Keys) > 0:
		summary = h.refresher.Refresh(r.Context(), req.Keys, cache.RefreshOptions{
			MaxConcurrent: h.config.RefreshMaxConcurrent,
			Delay:         h.config.RefreshDelay,
		})
	case req.Profile == "quick":
		summary = h.refresher.QuickRefresh(r.Context())
	case req.Profile == "full", req.Profile == "":
		summary = h.refresher.FullRefresh(r.Context())
	default:
		h.writeError(w, http.StatusBadRequest, "profile must be \"quick\" or \"full\"")
		return
	}

	h.writeJSON(w, http.StatusOK, summary)
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to encode response", err)
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
