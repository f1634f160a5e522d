package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

type contextKey string

const viewerIDKey contextKey = "viewer_id"

// ViewerHeader carries the authenticated user id set by the upstream proxy.
const ViewerHeader = "X-User-ID"

// Health check endpoint
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": h.clock.Now().UTC(),
	})
}

// Ready check endpoint
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]bool, len(h.checks))
	allHealthy := true
	for name, ping := range h.checks {
		ok := ping(ctx) == nil
		checks[name] = ok
		if !ok {
			allHealthy = false
		}
	}

	body := map[string]interface{}{
		"ready":  allHealthy,
		"checks": checks,
	}
	if h.archive != nil {
		body["queueDepth"] = h.archive.QueueDepth()
	}
	status := http.StatusOK
	if !allHealthy {
		status = http.StatusServiceUnavailable
	}
	h.jsonResponse(w, status, body)
}

// ViewerMiddleware requires a numeric viewer id header.
func (h *Handler) ViewerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(ViewerHeader)
		if raw == "" {
			h.errorResponse(w, http.StatusUnauthorized, "Missing viewer id")
			return
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			h.errorResponse(w, http.StatusUnauthorized, "Invalid viewer id")
			return
		}
		ctx := context.WithValue(r.Context(), viewerIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func viewerID(ctx context.Context) int64 {
	id, _ := ctx.Value(viewerIDKey).(int64)
	return id
}

// userIDParam parses the {id} path parameter.
func userIDParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

func (h *Handler) jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) errorResponse(w http.ResponseWriter, status int, message string) {
	h.jsonResponse(w, status, map[string]string{"error": message})
}
