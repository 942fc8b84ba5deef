package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/marcelg7/fleetacs/internal/domain"
	"github.com/marcelg7/fleetacs/internal/rules"
)

// ListGroups возвращает список всех групп.
// GET /api/v1/groups
func (h *Handler) ListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.groupRepo.List(r.Context())
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]GroupResponse, len(groups))
	for i, g := range groups {
		result[i] = GroupFromDomain(g)
	}

	List(w, result, len(result))
}

// CreateGroup создаёт новую группу.
// POST /api/v1/groups
func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req CreateGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if req.Name == "" {
		BadRequest(w, "name is required")
		return
	}

	now := time.Now()
	group := &domain.DeviceGroup{
		ID:        uuid.New(),
		Name:      req.Name,
		MatchType: domain.MatchType(req.MatchType),
		IsActive:  true,
		Priority:  req.Priority,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if group.MatchType == "" {
		group.MatchType = domain.MatchAll
	}
	if req.IsActive != nil {
		group.IsActive = *req.IsActive
	}
	group.Rules = rulesFromRequest(group.ID, req.Rules)

	if err := rules.ValidateGroup(group); err != nil {
		BadRequest(w, err.Error())
		return
	}

	if err := h.groupRepo.Create(r.Context(), group); err != nil {
		HandleRepoError(w, h.logger, err, "")
		return
	}

	Created(w, GroupFromDomain(*group))
}

// GetGroup возвращает группу по ID.
// GET /api/v1/groups/{id}
func (h *Handler) GetGroup(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid group id")
		return
	}

	group, err := h.groupRepo.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "group not found") {
		return
	}

	Success(w, GroupFromDomain(*group))
}

// UpdateGroup обновляет группу. Переданный список правил заменяет
// старый целиком; членство устройств пересчитается на ближайшем тике.
// PUT /api/v1/groups/{id}
func (h *Handler) UpdateGroup(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid group id")
		return
	}

	var req UpdateGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	group, err := h.groupRepo.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "group not found") {
		return
	}

	if req.Name != nil {
		group.Name = *req.Name
	}
	if req.MatchType != nil {
		group.MatchType = domain.MatchType(*req.MatchType)
	}
	if req.IsActive != nil {
		group.IsActive = *req.IsActive
	}
	if req.Priority != nil {
		group.Priority = *req.Priority
	}
	if req.Rules != nil {
		group.Rules = rulesFromRequest(group.ID, *req.Rules)
	}
	group.UpdatedAt = time.Now()

	if err := rules.ValidateGroup(group); err != nil {
		BadRequest(w, err.Error())
		return
	}

	if err := h.groupRepo.Update(r.Context(), group); err != nil {
		HandleRepoError(w, h.logger, err, "group not found")
		return
	}

	Success(w, GroupFromDomain(*group))
}

// DeleteGroup каскадно удаляет группу вместе с workflow и executions.
// DELETE /api/v1/groups/{id}
func (h *Handler) DeleteGroup(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid group id")
		return
	}

	if err := h.groupRepo.Delete(r.Context(), id); err != nil {
		HandleRepoError(w, h.logger, err, "group not found")
		return
	}

	NoContent(w)
}

// PreviewGroupDevices возвращает устройства, подходящие под правила
// группы прямо сейчас. Чистый dry-run: ничего не создаёт.
// GET /api/v1/groups/{id}/devices
func (h *Handler) PreviewGroupDevices(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid group id")
		return
	}

	group, err := h.groupRepo.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "group not found") {
		return
	}

	devices, err := h.deviceRepo.ListDevices(r.Context())
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	matched := h.matcher.MatchingDevices(group, devices)
	result := make([]DeviceResponse, len(matched))
	for i, d := range matched {
		result[i] = DeviceFromDomain(d)
	}

	List(w, result, len(result))
}
