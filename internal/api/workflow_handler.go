package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/marcelg7/fleetacs/internal/domain"
	"github.com/marcelg7/fleetacs/internal/schedule"
)

// ListWorkflows возвращает список workflow, опционально по группе.
// GET /api/v1/workflows?group_id=...
func (h *Handler) ListWorkflows(w http.ResponseWriter, r *http.Request) {
	var groupID *uuid.UUID
	if raw := r.URL.Query().Get("group_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			BadRequest(w, "invalid group_id")
			return
		}
		groupID = &id
	}

	workflows, err := h.workflowRepo.List(r.Context(), groupID)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]WorkflowResponse, len(workflows))
	for i, wf := range workflows {
		result[i] = WorkflowFromDomain(wf)
	}

	List(w, result, len(result))
}

// CreateWorkflow создаёт workflow в статусе DRAFT.
// POST /api/v1/workflows
func (h *Handler) CreateWorkflow(w http.ResponseWriter, r *http.Request) {
	var req CreateWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if req.Name == "" {
		BadRequest(w, "name is required")
		return
	}
	if req.TaskType == "" {
		BadRequest(w, "task_type is required")
		return
	}
	if req.RateLimit < 0 || req.MaxConcurrent < 0 || req.RetryCount < 0 ||
		req.RetryDelayMinutes < 0 {
		BadRequest(w, "limits must be non-negative")
		return
	}
	if req.StopOnFailurePercent < 0 || req.StopOnFailurePercent > 100 {
		BadRequest(w, "stop_on_failure_percent must be within 0..100")
		return
	}

	// Группа обязана существовать
	if _, err := h.groupRepo.GetByID(r.Context(), req.GroupID); err != nil {
		HandleRepoError(w, h.logger, err, "group not found")
		return
	}

	if req.DependsOnWorkflowID != nil {
		if _, err := h.workflowRepo.GetByID(r.Context(), *req.DependsOnWorkflowID); err != nil {
			HandleRepoError(w, h.logger, err, "depends_on workflow not found")
			return
		}
	}

	now := time.Now()
	wf := &domain.Workflow{
		ID:                   uuid.New(),
		GroupID:              req.GroupID,
		Name:                 req.Name,
		TaskType:             req.TaskType,
		Parameters:           req.Parameters,
		ScheduleType:         domain.ScheduleType(req.ScheduleType),
		ScheduleConfig:       req.ScheduleConfig,
		RateLimit:            req.RateLimit,
		MaxConcurrent:        req.MaxConcurrent,
		RetryCount:           req.RetryCount,
		RetryDelayMinutes:    req.RetryDelayMinutes,
		StopOnFailurePercent: req.StopOnFailurePercent,
		RunOncePerDevice:     req.RunOncePerDevice,
		DependsOnWorkflowID:  req.DependsOnWorkflowID,
		Status:               domain.WorkflowStatusDraft,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if wf.ScheduleType == "" {
		wf.ScheduleType = domain.ScheduleImmediate
	}

	if err := schedule.Validate(wf); err != nil {
		BadRequest(w, err.Error())
		return
	}

	if err := h.workflowRepo.Create(r.Context(), wf); err != nil {
		HandleRepoError(w, h.logger, err, "")
		return
	}

	Created(w, WorkflowFromDomain(*wf))
}

// GetWorkflow возвращает workflow по ID.
// GET /api/v1/workflows/{id}
func (h *Handler) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.workflowFromPath(w, r)
	if !ok {
		return
	}

	resp := WorkflowFromDomain(*wf)
	if wf.Status == domain.WorkflowStatusActive {
		next, err := schedule.NextWindowStart(wf, time.Now())
		if err != nil {
			h.logger.Warn("failed to compute next window",
				"workflow_id", wf.ID,
				"error", err,
			)
		} else if !next.IsZero() {
			resp.NextEligibleAt = &next
		}
	}
	Success(w, resp)
}

// DeleteWorkflow удаляет workflow вместе с его executions.
// DELETE /api/v1/workflows/{id}
func (h *Handler) DeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid workflow id")
		return
	}

	if err := h.workflowRepo.Delete(r.Context(), id); err != nil {
		HandleRepoError(w, h.logger, err, "workflow not found")
		return
	}

	NoContent(w)
}

// ActivateWorkflow переводит workflow DRAFT → ACTIVE.
// POST /api/v1/workflows/{id}/activate
func (h *Handler) ActivateWorkflow(w http.ResponseWriter, r *http.Request) {
	h.transitionWorkflow(w, r, domain.WorkflowStatusActive, domain.WorkflowStatusDraft)
}

// PauseWorkflow переводит workflow ACTIVE → PAUSED. Открытые задачи
// продолжают выполняться, новые не ставятся.
// POST /api/v1/workflows/{id}/pause
func (h *Handler) PauseWorkflow(w http.ResponseWriter, r *http.Request) {
	h.transitionWorkflow(w, r, domain.WorkflowStatusPaused, domain.WorkflowStatusActive)
}

// ResumeWorkflow переводит workflow PAUSED → ACTIVE.
// POST /api/v1/workflows/{id}/resume
func (h *Handler) ResumeWorkflow(w http.ResponseWriter, r *http.Request) {
	h.transitionWorkflow(w, r, domain.WorkflowStatusActive, domain.WorkflowStatusPaused)
}

// CancelWorkflow отменяет workflow из любого нетерминального статуса.
// PENDING/QUEUED executions закроет оркестратор на ближайшем тике,
// IN_PROGRESS доработают до результата.
// POST /api/v1/workflows/{id}/cancel
func (h *Handler) CancelWorkflow(w http.ResponseWriter, r *http.Request) {
	h.transitionWorkflow(w, r, domain.WorkflowStatusCancelled,
		domain.WorkflowStatusDraft, domain.WorkflowStatusActive, domain.WorkflowStatusPaused)
}

// RetryFailedExecutions массово перевзводит FAILED executions workflow.
// POST /api/v1/workflows/{id}/retry-failed
func (h *Handler) RetryFailedExecutions(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.workflowFromPath(w, r)
	if !ok {
		return
	}
	if wf.Status.IsTerminal() {
		InvalidState(w, "workflow is in terminal status")
		return
	}

	rearmed, err := h.executionRepo.RearmFailed(r.Context(), wf.ID, time.Now())
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	h.logger.Info("failed executions rearmed",
		"workflow_id", wf.ID,
		"count", rearmed,
	)
	Success(w, RetryFailedResponse{Rearmed: rearmed})
}

// ListWorkflowExecutions возвращает executions workflow.
// GET /api/v1/workflows/{id}/executions?status=...
func (h *Handler) ListWorkflowExecutions(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.workflowFromPath(w, r)
	if !ok {
		return
	}

	execs, err := h.executionRepo.ListByWorkflow(r.Context(), wf.ID)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	status := domain.ExecutionStatus(r.URL.Query().Get("status"))
	result := make([]ExecutionResponse, 0, len(execs))
	for _, e := range execs {
		if status != "" && e.Status != status {
			continue
		}
		result = append(result, ExecutionFromDomain(e))
	}

	List(w, result, len(result))
}

// GetWorkflowProgress возвращает сводку по статусам executions.
// GET /api/v1/workflows/{id}/progress
func (h *Handler) GetWorkflowProgress(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.workflowFromPath(w, r)
	if !ok {
		return
	}

	counts, err := h.executionRepo.CountByStatus(r.Context(), wf.ID)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	Success(w, ProgressFromCounts(counts))
}

// --- Helpers ---

func (h *Handler) workflowFromPath(w http.ResponseWriter, r *http.Request) (*domain.Workflow, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid workflow id")
		return nil, false
	}

	wf, err := h.workflowRepo.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "workflow not found") {
		return nil, false
	}
	return wf, true
}

// transitionWorkflow меняет статус workflow, если текущий входит в from.
func (h *Handler) transitionWorkflow(w http.ResponseWriter, r *http.Request, to domain.WorkflowStatus, from ...domain.WorkflowStatus) {
	wf, ok := h.workflowFromPath(w, r)
	if !ok {
		return
	}

	allowed := false
	for _, s := range from {
		if wf.Status == s {
			allowed = true
			break
		}
	}
	if !allowed {
		InvalidState(w, "workflow is "+string(wf.Status))
		return
	}

	if err := h.workflowRepo.UpdateStatus(r.Context(), wf.ID, to); err != nil {
		HandleRepoError(w, h.logger, err, "workflow not found")
		return
	}

	h.logger.Info("workflow status changed",
		"workflow_id", wf.ID,
		"from", wf.Status,
		"to", to,
	)
	wf.Status = to
	Success(w, WorkflowFromDomain(*wf))
}
