package api

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/marcelg7/fleetacs/internal/domain"
	"github.com/marcelg7/fleetacs/internal/repo"
)

// ListExecutions возвращает executions с фильтрацией.
// GET /api/v1/executions?workflow_id=...&device_id=...&status=...&limit=...&offset=...
func (h *Handler) ListExecutions(w http.ResponseWriter, r *http.Request) {
	filter := repo.ExecutionFilter{
		DeviceID: r.URL.Query().Get("device_id"),
		Status:   domain.ExecutionStatus(r.URL.Query().Get("status")),
	}
	if raw := r.URL.Query().Get("workflow_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			BadRequest(w, "invalid workflow_id")
			return
		}
		filter.WorkflowID = &id
	}
	filter.Limit, filter.Offset = pagination(r)

	execs, err := h.executionRepo.List(r.Context(), filter)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]ExecutionResponse, len(execs))
	for i, e := range execs {
		result[i] = ExecutionFromDomain(e)
	}

	List(w, result, len(result))
}

// GetExecution возвращает execution по ID.
// GET /api/v1/executions/{id}
func (h *Handler) GetExecution(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid execution id")
		return
	}

	exec, err := h.executionRepo.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "execution not found") {
		return
	}

	Success(w, ExecutionFromDomain(*exec))
}

// ListActivityLog возвращает журнал активности оркестратора.
// GET /api/v1/activity-log?workflow_id=...&device_id=...&level=...&limit=...&offset=...
func (h *Handler) ListActivityLog(w http.ResponseWriter, r *http.Request) {
	filter := repo.LogFilter{
		DeviceID: r.URL.Query().Get("device_id"),
		Level:    domain.LogLevel(r.URL.Query().Get("level")),
	}
	if raw := r.URL.Query().Get("workflow_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			BadRequest(w, "invalid workflow_id")
			return
		}
		filter.WorkflowID = &id
	}
	filter.Limit, filter.Offset = pagination(r)

	entries, err := h.logRepo.List(r.Context(), filter)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]LogEntryResponse, len(entries))
	for i, e := range entries {
		result[i] = LogEntryFromDomain(e)
	}

	List(w, result, len(result))
}

// pagination извлекает limit/offset из query-параметров.
func pagination(r *http.Request) (limit, offset int) {
	limit = 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}
