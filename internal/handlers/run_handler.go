package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/pideploy/pideploy/internal/models"
	"github.com/pideploy/pideploy/internal/services"
)

// StartRunRequest represents the request body for starting a run.
type StartRunRequest struct {
	Suites []string `json:"suites,omitempty"`
	Checks []string `json:"checks,omitempty"`
}

// ChecksResponse lists the check catalogue.
type ChecksResponse struct {
	Checks []services.CheckInfo `json:"checks"`
}

// RunsResponse lists recent runs.
type RunsResponse struct {
	Runs []models.Run `json:"runs"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// RunHandler handles the check and run endpoints.
type RunHandler struct {
	service services.RunService
}

// NewRunHandler creates a new RunHandler.
func NewRunHandler(svc services.RunService) *RunHandler {
	return &RunHandler{service: svc}
}

// ListChecks handles GET /api/v1/checks.
func (h *RunHandler) ListChecks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ChecksResponse{Checks: h.service.Checks()})
}

// StartRun handles POST /api/v1/runs. An empty body runs every check.
func (h *RunHandler) StartRun(w http.ResponseWriter, r *http.Request) {
	var req StartRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: "invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	run, err := h.service.Start(r.Context(), services.StartRunRequest{
		Suites:      req.Suites,
		Checks:      req.Checks,
		TriggeredBy: "api",
	})
	if err != nil {
		status, errResp := mapErrorToResponse(err)
		writeJSON(w, status, errResp)
		return
	}

	w.Header().Set("Location", "/api/v1/runs/"+run.ID)
	writeJSON(w, http.StatusAccepted, run)
}

// ListRuns handles GET /api/v1/runs?limit=N.
func (h *RunHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error: "limit must be between 1 and 500",
				Code:  "INVALID_LIMIT",
			})
			return
		}
		limit = n
	}

	runs, err := h.service.List(r.Context(), limit)
	if err != nil {
		status, errResp := mapErrorToResponse(err)
		writeJSON(w, status, errResp)
		return
	}
	if runs == nil {
		runs = []models.Run{}
	}
	writeJSON(w, http.StatusOK, RunsResponse{Runs: runs})
}

// GetRun handles GET /api/v1/runs/{id}.
func (h *RunHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "missing run id", Code: "INVALID_REQUEST"})
		return
	}

	run, err := h.service.Get(r.Context(), id)
	if err != nil {
		status, errResp := mapErrorToResponse(err)
		writeJSON(w, status, errResp)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// mapErrorToResponse maps service errors to HTTP status codes and error responses.
func mapErrorToResponse(err error) (int, ErrorResponse) {
	switch {
	case errors.Is(err, services.ErrRunInProgress):
		return http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "RUN_IN_PROGRESS"}
	case services.IsValidationError(err):
		return http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_SELECTION"}
	case errors.Is(err, models.ErrRunNotFound):
		return http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: "NOT_FOUND"}
	default:
		return http.StatusInternalServerError, ErrorResponse{
			Error: "internal server error",
			Code:  "INTERNAL_ERROR",
		}
	}
}
