// Package httpapi provides the REST HTTP adapter for the server surfaces.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/hylla/taskdeck/internal/adapters/server/common"
	"github.com/hylla/taskdeck/internal/api"
)

// Handler serves the versioned API subrouter mounted under `/api/v1`.
type Handler struct {
	tasks common.TaskService
}

// APIError represents one structured API failure response.
type APIError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Hint    string         `json:"hint,omitempty"`
	Context map[string]any `json:"context,omitempty"`
}

// ErrorEnvelope wraps one structured API error.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// NewHandler constructs one HTTP API adapter over the task service.
func NewHandler(tasks common.TaskService) *Handler {
	return &Handler{tasks: tasks}
}

// ServeHTTP routes one versioned API request to the matching handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.tasks == nil {
		writeJSONError(w, http.StatusServiceUnavailable, APIError{
			Code:    "service_unavailable",
			Message: "task service is not configured",
		})
		return
	}
	path := normalizePath(r.URL.Path)
	switch path {
	case "tasks":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleListTasks(w, r)
		return
	case "tasks/completed":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleListCompletedTasks(w, r)
		return
	case "layout":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleLayout(w, r)
		return
	case "activity":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleActivity(w, r)
		return
	}

	taskID, action, ok := resolveTaskAction(path)
	if !ok {
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: "endpoint not found",
		})
		return
	}
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, http.MethodPost)
		return
	}
	switch action {
	case "complete":
		h.handleCompleteTask(w, r, taskID)
	case "reopen":
		h.handleReopenTask(w, r, taskID)
	}
}

// handleListTasks serves GET `/tasks`.
func (h *Handler) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.tasks.ListTasks(r.Context())
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tasks": tasks,
	})
}

// handleListCompletedTasks serves GET `/tasks/completed`.
func (h *Handler) handleListCompletedTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.tasks.ListCompletedTasks(r.Context())
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tasks": tasks,
	})
}

// handleLayout serves GET `/layout?width=&height=`.
func (h *Handler) handleLayout(w http.ResponseWriter, r *http.Request) {
	width, err := parsePositiveFloat(r.URL.Query().Get("width"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, APIError{
			Code:    "invalid_request",
			Message: "width must be a positive number",
			Hint:    "Pass the canvas size, for example ?width=800&height=600.",
		})
		return
	}
	height, err := parsePositiveFloat(r.URL.Query().Get("height"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, APIError{
			Code:    "invalid_request",
			Message: "height must be a positive number",
			Hint:    "Pass the canvas size, for example ?width=800&height=600.",
		})
		return
	}
	nodes, err := h.tasks.TaskLayout(r.Context(), common.LayoutRequest{Width: width, Height: height})
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"width":  width,
		"height": height,
		"nodes":  nodes,
	})
}

// handleActivity serves GET `/activity?limit=`.
func (h *Handler) handleActivity(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeJSONError(w, http.StatusBadRequest, APIError{
				Code:    "invalid_request",
				Message: "limit must be a non-negative integer",
			})
			return
		}
		limit = parsed
	}
	entries, err := h.tasks.RecentActivity(r.Context(), limit)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"activity": entries,
	})
}

// handleCompleteTask serves POST `/tasks/{id}/complete`.
func (h *Handler) handleCompleteTask(w http.ResponseWriter, r *http.Request, taskID string) {
	if err := h.tasks.CompleteTask(r.Context(), taskID); err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":     taskID,
		"status": "completed",
	})
}

// handleReopenTask serves POST `/tasks/{id}/reopen`.
func (h *Handler) handleReopenTask(w http.ResponseWriter, r *http.Request, taskID string) {
	task, err := h.tasks.ReopenTask(r.Context(), taskID)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// resolveTaskAction parses `tasks/{id}/{action}` paths.
func resolveTaskAction(path string) (string, string, bool) {
	parts := strings.Split(path, "/")
	if len(parts) != 3 || parts[0] != "tasks" {
		return "", "", false
	}
	taskID := strings.TrimSpace(parts[1])
	if taskID == "" {
		return "", "", false
	}
	switch parts[2] {
	case "complete", "reopen":
		return taskID, parts[2], true
	default:
		return "", "", false
	}
}

func parsePositiveFloat(raw string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, err
	}
	if !(v > 0) || v > 1e6 {
		return 0, fmt.Errorf("out of range: %v", v)
	}
	return v, nil
}

// normalizePath trims route prefixes/suffixes for deterministic matching.
func normalizePath(path string) string {
	return strings.Trim(strings.TrimSpace(path), "/")
}

// writeErrorFrom maps service errors into stable API error envelopes.
func writeErrorFrom(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, common.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: err.Error(),
		})
	case errors.Is(err, common.ErrInvalidRequest):
		writeJSONError(w, http.StatusBadRequest, APIError{
			Code:    "invalid_request",
			Message: err.Error(),
		})
	case errors.Is(err, common.ErrUnavailable):
		writeJSONError(w, http.StatusServiceUnavailable, APIError{
			Code:    "service_unavailable",
			Message: err.Error(),
			Hint:    "Set TASKDECK_TOKEN or configure [auth] client credentials.",
		})
	case errors.Is(err, common.ErrUpstream):
		apiErr := APIError{
			Code:    "upstream_error",
			Message: err.Error(),
		}
		if status := api.StatusCode(err); status != 0 {
			apiErr.Context = map[string]any{"upstream_status": status}
		}
		writeJSONError(w, http.StatusBadGateway, apiErr)
	default:
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: err.Error(),
		})
	}
}

// writeMethodNotAllowed writes a structured 405 response with `Allow` headers.
func writeMethodNotAllowed(w http.ResponseWriter, methods ...string) {
	if len(methods) > 0 {
		w.Header().Set("Allow", strings.Join(methods, ", "))
	}
	writeJSONError(w, http.StatusMethodNotAllowed, APIError{
		Code:    "method_not_allowed",
		Message: "method not allowed",
	})
}

// writeJSONError writes one structured error envelope.
func writeJSONError(w http.ResponseWriter, statusCode int, apiErr APIError) {
	writeJSON(w, statusCode, ErrorEnvelope{Error: apiErr})
}

// writeJSON writes one JSON response envelope.
func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, fmt.Sprintf(`{"error":{"code":"encode_error","message":"%s"}}`, err.Error()), http.StatusInternalServerError)
	}
}
