package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/marcelg7/fleetacs/internal/domain"
)

// Group DTOs

// RuleRequest — правило в запросе создания/обновления группы.
type RuleRequest struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
	Order    int    `json:"order"`
}

// CreateGroupRequest — запрос на создание группы.
type CreateGroupRequest struct {
	Name      string        `json:"name"`
	MatchType string        `json:"match_type"`
	Rules     []RuleRequest `json:"rules"`
	IsActive  *bool         `json:"is_active,omitempty"`
	Priority  int           `json:"priority,omitempty"`
}

// UpdateGroupRequest — запрос на обновление группы.
// Rules, если передан, заменяет все правила группы целиком.
type UpdateGroupRequest struct {
	Name      *string        `json:"name,omitempty"`
	MatchType *string        `json:"match_type,omitempty"`
	Rules     *[]RuleRequest `json:"rules,omitempty"`
	IsActive  *bool          `json:"is_active,omitempty"`
	Priority  *int           `json:"priority,omitempty"`
}

// RuleResponse — ответ с правилом.
type RuleResponse struct {
	ID       uuid.UUID `json:"id"`
	Field    string    `json:"field"`
	Operator string    `json:"operator"`
	Value    string    `json:"value"`
	Order    int       `json:"order"`
}

// GroupResponse — ответ с группой.
type GroupResponse struct {
	ID        uuid.UUID      `json:"id"`
	Name      string         `json:"name"`
	MatchType string         `json:"match_type"`
	Rules     []RuleResponse `json:"rules"`
	IsActive  bool           `json:"is_active"`
	Priority  int            `json:"priority"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// GroupFromDomain конвертирует domain.DeviceGroup в GroupResponse.
func GroupFromDomain(g domain.DeviceGroup) GroupResponse {
	rules := make([]RuleResponse, len(g.Rules))
	for i, r := range g.Rules {
		rules[i] = RuleResponse{
			ID:       r.ID,
			Field:    string(r.Field),
			Operator: string(r.Operator),
			Value:    r.Value,
			Order:    r.Order,
		}
	}
	return GroupResponse{
		ID:        g.ID,
		Name:      g.Name,
		MatchType: string(g.MatchType),
		Rules:     rules,
		IsActive:  g.IsActive,
		Priority:  g.Priority,
		CreatedAt: g.CreatedAt,
		UpdatedAt: g.UpdatedAt,
	}
}

// rulesFromRequest конвертирует правила запроса в доменные.
func rulesFromRequest(groupID uuid.UUID, reqRules []RuleRequest) []domain.Rule {
	rules := make([]domain.Rule, len(reqRules))
	for i, r := range reqRules {
		rules[i] = domain.Rule{
			ID:       uuid.New(),
			GroupID:  groupID,
			Field:    domain.Field(r.Field),
			Operator: domain.Operator(r.Operator),
			Value:    r.Value,
			Order:    r.Order,
		}
	}
	return rules
}

// Workflow DTOs

// CreateWorkflowRequest — запрос на создание workflow.
type CreateWorkflowRequest struct {
	GroupID              uuid.UUID             `json:"group_id"`
	Name                 string                `json:"name"`
	TaskType             string                `json:"task_type"`
	Parameters           map[string]any        `json:"parameters,omitempty"`
	ScheduleType         string                `json:"schedule_type"`
	ScheduleConfig       domain.ScheduleConfig `json:"schedule_config,omitempty"`
	RateLimit            int                   `json:"rate_limit,omitempty"`
	MaxConcurrent        int                   `json:"max_concurrent,omitempty"`
	RetryCount           int                   `json:"retry_count,omitempty"`
	RetryDelayMinutes    int                   `json:"retry_delay_minutes,omitempty"`
	StopOnFailurePercent int                   `json:"stop_on_failure_percent,omitempty"`
	RunOncePerDevice     bool                  `json:"run_once_per_device,omitempty"`
	DependsOnWorkflowID  *uuid.UUID            `json:"depends_on_workflow_id,omitempty"`
}

// WorkflowResponse — ответ с workflow.
type WorkflowResponse struct {
	ID                   uuid.UUID             `json:"id"`
	GroupID              uuid.UUID             `json:"group_id"`
	Name                 string                `json:"name"`
	TaskType             string                `json:"task_type"`
	Parameters           map[string]any        `json:"parameters,omitempty"`
	ScheduleType         string                `json:"schedule_type"`
	ScheduleConfig       domain.ScheduleConfig `json:"schedule_config"`
	RateLimit            int                   `json:"rate_limit"`
	MaxConcurrent        int                   `json:"max_concurrent"`
	RetryCount           int                   `json:"retry_count"`
	RetryDelayMinutes    int                   `json:"retry_delay_minutes"`
	StopOnFailurePercent int                   `json:"stop_on_failure_percent"`
	RunOncePerDevice     bool                  `json:"run_once_per_device"`
	DependsOnWorkflowID  *uuid.UUID            `json:"depends_on_workflow_id,omitempty"`
	Status               string                `json:"status"`
	NextEligibleAt       *time.Time            `json:"next_eligible_at,omitempty"`
	CreatedAt            time.Time             `json:"created_at"`
	UpdatedAt            time.Time             `json:"updated_at"`
}

// WorkflowFromDomain конвертирует domain.Workflow в WorkflowResponse.
func WorkflowFromDomain(w domain.Workflow) WorkflowResponse {
	return WorkflowResponse{
		ID:                   w.ID,
		GroupID:              w.GroupID,
		Name:                 w.Name,
		TaskType:             w.TaskType,
		Parameters:           w.Parameters,
		ScheduleType:         string(w.ScheduleType),
		ScheduleConfig:       w.ScheduleConfig,
		RateLimit:            w.RateLimit,
		MaxConcurrent:        w.MaxConcurrent,
		RetryCount:           w.RetryCount,
		RetryDelayMinutes:    w.RetryDelayMinutes,
		StopOnFailurePercent: w.StopOnFailurePercent,
		RunOncePerDevice:     w.RunOncePerDevice,
		DependsOnWorkflowID:  w.DependsOnWorkflowID,
		Status:               string(w.Status),
		CreatedAt:            w.CreatedAt,
		UpdatedAt:            w.UpdatedAt,
	}
}

// Execution DTOs

// ExecutionResponse — ответ с execution.
type ExecutionResponse struct {
	ID          uuid.UUID      `json:"id"`
	WorkflowID  uuid.UUID      `json:"workflow_id"`
	DeviceID    string         `json:"device_id"`
	TaskRef     string         `json:"task_ref,omitempty"`
	Status      string         `json:"status"`
	Attempt     int            `json:"attempt"`
	ScheduledAt time.Time      `json:"scheduled_at"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	NextRetryAt *time.Time     `json:"next_retry_at,omitempty"`
	Result      map[string]any `json:"result,omitempty"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// ExecutionFromDomain конвертирует domain.Execution в ExecutionResponse.
func ExecutionFromDomain(e domain.Execution) ExecutionResponse {
	return ExecutionResponse{
		ID:          e.ID,
		WorkflowID:  e.WorkflowID,
		DeviceID:    e.DeviceID,
		TaskRef:     e.TaskRef,
		Status:      string(e.Status),
		Attempt:     e.Attempt,
		ScheduledAt: e.ScheduledAt,
		StartedAt:   e.StartedAt,
		CompletedAt: e.CompletedAt,
		NextRetryAt: e.NextRetryAt,
		Result:      e.Result,
		UpdatedAt:   e.UpdatedAt,
	}
}

// ProgressResponse — сводка по executions workflow.
type ProgressResponse struct {
	Pending    int `json:"pending"`
	Queued     int `json:"queued"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped"`
	Cancelled  int `json:"cancelled"`
	Total      int `json:"total"`
}

// ProgressFromCounts собирает ProgressResponse из счётчиков по статусам.
func ProgressFromCounts(counts map[domain.ExecutionStatus]int) ProgressResponse {
	p := ProgressResponse{
		Pending:    counts[domain.ExecutionStatusPending],
		Queued:     counts[domain.ExecutionStatusQueued],
		InProgress: counts[domain.ExecutionStatusInProgress],
		Completed:  counts[domain.ExecutionStatusCompleted],
		Failed:     counts[domain.ExecutionStatusFailed],
		Skipped:    counts[domain.ExecutionStatusSkipped],
		Cancelled:  counts[domain.ExecutionStatusCancelled],
	}
	for _, n := range counts {
		p.Total += n
	}
	return p
}

// RetryFailedResponse — результат массового повтора FAILED executions.
type RetryFailedResponse struct {
	Rearmed int `json:"rearmed"`
}

// Log DTOs

// LogEntryResponse — ответ с записью журнала активности.
type LogEntryResponse struct {
	ID          uuid.UUID      `json:"id"`
	WorkflowID  *uuid.UUID     `json:"workflow_id,omitempty"`
	ExecutionID *uuid.UUID     `json:"execution_id,omitempty"`
	DeviceID    string         `json:"device_id,omitempty"`
	Level       string         `json:"level"`
	Message     string         `json:"message"`
	Context     map[string]any `json:"context,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// LogEntryFromDomain конвертирует domain.LogEntry в LogEntryResponse.
func LogEntryFromDomain(e domain.LogEntry) LogEntryResponse {
	return LogEntryResponse{
		ID:          e.ID,
		WorkflowID:  e.WorkflowID,
		ExecutionID: e.ExecutionID,
		DeviceID:    e.DeviceID,
		Level:       string(e.Level),
		Message:     e.Message,
		Context:     e.Context,
		CreatedAt:   e.CreatedAt,
	}
}

// Device DTOs

// DeviceResponse — ответ со снимком устройства.
type DeviceResponse struct {
	DeviceID        string    `json:"device_id"`
	OUI             string    `json:"oui"`
	Manufacturer    string    `json:"manufacturer"`
	ProductClass    string    `json:"product_class"`
	SoftwareVersion string    `json:"software_version"`
	HardwareVersion string    `json:"hardware_version"`
	SerialNumber    string    `json:"serial_number"`
	IPAddress       string    `json:"ip_address"`
	Online          bool      `json:"online"`
	SubscriberID    string    `json:"subscriber_id,omitempty"`
	Tags            []string  `json:"tags,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// DeviceFromDomain конвертирует domain.DeviceSnapshot в DeviceResponse.
func DeviceFromDomain(d domain.DeviceSnapshot) DeviceResponse {
	return DeviceResponse{
		DeviceID:        d.DeviceID,
		OUI:             d.OUI,
		Manufacturer:    d.Manufacturer,
		ProductClass:    d.ProductClass,
		SoftwareVersion: d.SoftwareVersion,
		HardwareVersion: d.HardwareVersion,
		SerialNumber:    d.SerialNumber,
		IPAddress:       d.IPAddress,
		Online:          d.Online,
		SubscriberID:    d.SubscriberID,
		Tags:            d.Tags,
		CreatedAt:       d.CreatedAt,
	}
}

// Event DTOs

// DeviceConnectRequest — событие выхода устройства на связь.
type DeviceConnectRequest struct {
	DeviceID string `json:"device_id"`
}
