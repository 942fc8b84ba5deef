package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Execution — экземпляр выполнения workflow для одного устройства.
//
// На пару (workflow, device) существует не более одной записи; все
// попытки (retry) живут внутри неё. Создаётся только оркестратором.
type Execution struct {
	// ID — уникальный идентификатор execution.
	ID uuid.UUID `json:"id"`

	// WorkflowID — workflow, который выполняется.
	WorkflowID uuid.UUID `json:"workflow_id"`

	// DeviceID — устройство, для которого выполняется workflow.
	DeviceID string `json:"device_id"`

	// TaskRef — ссылка на задачу во внешнем диспетчере.
	// Пустая, пока задача не поставлена в очередь.
	TaskRef string `json:"task_ref,omitempty"`

	// Status — текущий статус.
	Status ExecutionStatus `json:"status"`

	// Attempt — номер попытки. Инкрементируется только при переходе
	// в QUEUED и не превышает retry_count+1.
	Attempt int `json:"attempt"`

	// ScheduledAt — когда оркестратор создал execution.
	ScheduledAt time.Time `json:"scheduled_at"`

	// StartedAt — время первой постановки в очередь.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt — время перехода в терминальный статус.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// NextRetryAt — не раньше какого момента разрешён повтор.
	// Устанавливается только в PENDING после неудачи и сбрасывается
	// при постановке в очередь.
	NextRetryAt *time.Time `json:"next_retry_at,omitempty"`

	// Result — структурированный результат последней попытки
	// (payload от устройства либо текст ошибки).
	Result map[string]any `json:"result,omitempty"`

	// UpdatedAt — время последнего перехода.
	UpdatedAt time.Time `json:"updated_at"`
}

// NewExecution создаёт execution в начальном статусе PENDING.
func NewExecution(workflowID uuid.UUID, deviceID string, now time.Time) *Execution {
	return &Execution{
		ID:          uuid.New(),
		WorkflowID:  workflowID,
		DeviceID:    deviceID,
		Status:      ExecutionStatusPending,
		Attempt:     0,
		ScheduledAt: now,
		UpdatedAt:   now,
	}
}

// MarkQueued переводит PENDING → QUEUED: задача отправлена диспетчеру.
// Инкрементирует Attempt, сбрасывает NextRetryAt; StartedAt
// устанавливается при первой постановке.
func (e *Execution) MarkQueued(taskRef string, now time.Time) error {
	if e.Status != ExecutionStatusPending {
		return e.transitionError(ExecutionStatusQueued)
	}
	e.Status = ExecutionStatusQueued
	e.TaskRef = taskRef
	e.Attempt++
	e.NextRetryAt = nil
	if e.StartedAt == nil {
		e.StartedAt = &now
	}
	e.UpdatedAt = now
	return nil
}

// MarkInProgress переводит QUEUED → IN_PROGRESS: устройство забрало задачу.
func (e *Execution) MarkInProgress(now time.Time) error {
	if e.Status != ExecutionStatusQueued {
		return e.transitionError(ExecutionStatusInProgress)
	}
	e.Status = ExecutionStatusInProgress
	e.UpdatedAt = now
	return nil
}

// MarkCompleted переводит любой нетерминальный статус → COMPLETED.
func (e *Execution) MarkCompleted(result map[string]any, now time.Time) error {
	if e.Status.IsTerminal() {
		return e.transitionError(ExecutionStatusCompleted)
	}
	e.Status = ExecutionStatusCompleted
	e.Result = result
	e.CompletedAt = &now
	e.NextRetryAt = nil
	e.UpdatedAt = now
	return nil
}

// MarkFailed фиксирует неудачу попытки. Пока попытки не исчерпаны
// (Attempt < MaxAttempts), execution возвращается в PENDING с
// NextRetryAt = now + policy.Delay; иначе — терминальный FAILED.
func (e *Execution) MarkFailed(result map[string]any, policy RetryPolicy, now time.Time) error {
	if e.Status.IsTerminal() {
		return e.transitionError(ExecutionStatusFailed)
	}
	e.Result = result
	e.UpdatedAt = now

	if e.Attempt < policy.MaxAttempts {
		retryAt := now.Add(policy.Delay)
		e.Status = ExecutionStatusPending
		e.NextRetryAt = &retryAt
		return nil
	}

	e.Status = ExecutionStatusFailed
	e.CompletedAt = &now
	e.NextRetryAt = nil
	return nil
}

// MarkSkipped переводит любой нетерминальный статус → SKIPPED.
// Используется, когда устройство выпало из группы либо workflow уже
// был выполнен для него.
func (e *Execution) MarkSkipped(reason string, now time.Time) error {
	if e.Status.IsTerminal() {
		return e.transitionError(ExecutionStatusSkipped)
	}
	e.Status = ExecutionStatusSkipped
	e.Result = map[string]any{"reason": reason}
	e.CompletedAt = &now
	e.NextRetryAt = nil
	e.UpdatedAt = now
	return nil
}

// MarkCancelled переводит любой нетерминальный статус → CANCELLED
// (отмена workflow оператором).
func (e *Execution) MarkCancelled(now time.Time) error {
	if e.Status.IsTerminal() {
		return e.transitionError(ExecutionStatusCancelled)
	}
	e.Status = ExecutionStatusCancelled
	e.CompletedAt = &now
	e.NextRetryAt = nil
	e.UpdatedAt = now
	return nil
}

// Rearm возвращает терминальный execution в начальное состояние PENDING
// с Attempt=0. Используется для bulk retry-failed и для повторного
// включения устройства, вернувшегося в группу после SKIPPED.
func (e *Execution) Rearm(now time.Time) error {
	if !e.Status.IsTerminal() {
		return e.transitionError(ExecutionStatusPending)
	}
	e.Status = ExecutionStatusPending
	e.Attempt = 0
	e.TaskRef = ""
	e.Result = nil
	e.StartedAt = nil
	e.CompletedAt = nil
	e.NextRetryAt = nil
	e.ScheduledAt = now
	e.UpdatedAt = now
	return nil
}

// RetryReady возвращает true, если execution ожидает постановки в
// очередь и пауза перед повтором (если была) истекла.
func (e *Execution) RetryReady(now time.Time) bool {
	if e.Status != ExecutionStatusPending {
		return false
	}
	return e.NextRetryAt == nil || !e.NextRetryAt.After(now)
}

func (e *Execution) transitionError(to ExecutionStatus) error {
	return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, e.Status, to)
}
