package domain

import (
	"time"

	"github.com/google/uuid"
)

// Workflow — шаблон удалённого действия над группой устройств:
// действие + расписание + политика retry + rate limit + зависимость.
//
// Workflow не выполняется сам по себе: оркестратор создаёт для каждого
// подходящего устройства Execution и ведёт его по жизненному циклу.
type Workflow struct {
	// ID — уникальный идентификатор workflow.
	ID uuid.UUID `json:"id"`

	// GroupID — группа устройств, к которой применяется workflow.
	GroupID uuid.UUID `json:"group_id"`

	// Name — человекочитаемое имя.
	Name string `json:"name"`

	// TaskType — тип задачи для диспетчера (reboot, download, setParameterValues...).
	// Движок не интерпретирует его, а передаёт как есть.
	TaskType string `json:"task_type"`

	// Parameters — параметры задачи, прозрачно передаются диспетчеру.
	Parameters map[string]any `json:"parameters,omitempty"`

	// ScheduleType — тип расписания.
	ScheduleType ScheduleType `json:"schedule_type"`

	// ScheduleConfig — конфигурация расписания (интерпретируется
	// пакетом schedule в зависимости от ScheduleType).
	ScheduleConfig ScheduleConfig `json:"schedule_config"`

	// RateLimit — максимум новых постановок в очередь за скользящий час.
	// 0 — без ограничения.
	RateLimit int `json:"rate_limit"`

	// MaxConcurrent — максимум одновременно открытых задач
	// (QUEUED + IN_PROGRESS). 0 — без ограничения.
	MaxConcurrent int `json:"max_concurrent"`

	// RetryCount — сколько повторов разрешено после первой неудачи.
	RetryCount int `json:"retry_count"`

	// RetryDelayMinutes — минимальная пауза перед повтором.
	RetryDelayMinutes int `json:"retry_delay_minutes"`

	// StopOnFailurePercent — порог circuit breaker в процентах.
	// 0 — breaker выключен.
	StopOnFailurePercent int `json:"stop_on_failure_percent"`

	// RunOncePerDevice — выполнять не более одного раза на устройство
	// за всю жизнь workflow.
	RunOncePerDevice bool `json:"run_once_per_device"`

	// DependsOnWorkflowID — workflow, который должен завершиться
	// (COMPLETED) для устройства прежде, чем это устройство станет
	// подходящим здесь. Nil — без зависимости.
	DependsOnWorkflowID *uuid.UUID `json:"depends_on_workflow_id,omitempty"`

	// Status — текущий статус workflow.
	Status WorkflowStatus `json:"status"`

	// CreatedAt — время создания.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt — время последнего изменения.
	UpdatedAt time.Time `json:"updated_at"`
}

// ScheduleConfig — параметры расписания workflow.
//
// Для scheduled используются StartAt/EndAt, для recurring —
// Days/StartTime/EndTime/Timezone. Остальные типы конфигурации не требуют.
type ScheduleConfig struct {
	// StartAt — начало интервала для scheduled.
	StartAt *time.Time `json:"start_at,omitempty"`

	// EndAt — конец интервала для scheduled. Nil — интервал открыт.
	EndAt *time.Time `json:"end_at,omitempty"`

	// Days — дни недели для recurring ("monday".."sunday").
	Days []string `json:"days,omitempty"`

	// StartTime — начало окна в формате HH:MM (recurring).
	StartTime string `json:"start_time,omitempty"`

	// EndTime — конец окна в формате HH:MM, в пределах тех же суток (recurring).
	EndTime string `json:"end_time,omitempty"`

	// Timezone — IANA timezone окна (recurring). Пусто — UTC.
	Timezone string `json:"timezone,omitempty"`
}

// RetryPolicy — политика повторов workflow.
type RetryPolicy struct {
	// MaxAttempts — всего попыток: первая + RetryCount повторов.
	MaxAttempts int

	// Delay — минимальная пауза между неудачей и повтором.
	Delay time.Duration
}

// Retry возвращает политику повторов этого workflow.
func (w *Workflow) Retry() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: w.RetryCount + 1,
		Delay:       time.Duration(w.RetryDelayMinutes) * time.Minute,
	}
}

// IsActive возвращает true, если workflow участвует в тике оркестратора.
func (w *Workflow) IsActive() bool {
	return w.Status == WorkflowStatusActive
}
