package domain

// ExecutionStatus — статус выполнения execution.
//
// Жизненный цикл:
//
//	PENDING → QUEUED → IN_PROGRESS → COMPLETED
//	   ↑         ↘ FAILED (retry → обратно в PENDING)
//	   └──────────┘
//	(из любого нетерминального) → SKIPPED, CANCELLED
type ExecutionStatus string

const (
	// ExecutionStatusPending — execution создан, ожидает постановки в очередь
	// (либо ждёт next_retry_at после неудачи).
	ExecutionStatusPending ExecutionStatus = "PENDING"

	// ExecutionStatusQueued — задача отправлена диспетчеру, устройство её ещё не забрало.
	ExecutionStatusQueued ExecutionStatus = "QUEUED"

	// ExecutionStatusInProgress — устройство выполняет задачу.
	ExecutionStatusInProgress ExecutionStatus = "IN_PROGRESS"

	// ExecutionStatusCompleted — задача успешно выполнена.
	ExecutionStatusCompleted ExecutionStatus = "COMPLETED"

	// ExecutionStatusFailed — задача провалена после всех retry.
	ExecutionStatusFailed ExecutionStatus = "FAILED"

	// ExecutionStatusSkipped — устройство выпало из группы или workflow
	// уже был выполнен для него (run_once_per_device).
	ExecutionStatusSkipped ExecutionStatus = "SKIPPED"

	// ExecutionStatusCancelled — workflow отменён оператором.
	ExecutionStatusCancelled ExecutionStatus = "CANCELLED"
)

// IsTerminal возвращает true, если статус финальный (execution завершён).
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionStatusCompleted, ExecutionStatusFailed,
		ExecutionStatusSkipped, ExecutionStatusCancelled:
		return true
	default:
		return false
	}
}

// IsInFlight возвращает true, если execution занимает слот concurrency
// (задача отправлена устройству, результат ещё не получен).
func (s ExecutionStatus) IsInFlight() bool {
	return s == ExecutionStatusQueued || s == ExecutionStatusInProgress
}

// WorkflowStatus — статус workflow.
//
// Жизненный цикл:
//
//	DRAFT → ACTIVE ⇄ PAUSED
//	              ↘ COMPLETED, CANCELLED
type WorkflowStatus string

const (
	// WorkflowStatusDraft — workflow создан, но не запущен оператором.
	WorkflowStatusDraft WorkflowStatus = "DRAFT"

	// WorkflowStatusActive — workflow участвует в каждом тике оркестратора.
	WorkflowStatusActive WorkflowStatus = "ACTIVE"

	// WorkflowStatusPaused — приостановлен (оператором или circuit breaker).
	// Новые executions не создаются, открытые доезжают до конца.
	WorkflowStatusPaused WorkflowStatus = "PAUSED"

	// WorkflowStatusCompleted — закрыт оператором как выполненный.
	WorkflowStatusCompleted WorkflowStatus = "COMPLETED"

	// WorkflowStatusCancelled — отменён оператором.
	WorkflowStatusCancelled WorkflowStatus = "CANCELLED"
)

// IsTerminal возвращает true, если workflow закрыт.
func (s WorkflowStatus) IsTerminal() bool {
	switch s {
	case WorkflowStatusCompleted, WorkflowStatusCancelled:
		return true
	default:
		return false
	}
}

// MatchType — семантика объединения правил группы.
type MatchType string

const (
	// MatchAll — устройство подходит, если истинны все правила (AND).
	MatchAll MatchType = "all"

	// MatchAny — устройство подходит, если истинно хотя бы одно правило (OR).
	MatchAny MatchType = "any"
)

// ScheduleType — тип расписания workflow.
type ScheduleType string

const (
	// ScheduleImmediate — workflow выполняется сразу, пока активен.
	ScheduleImmediate ScheduleType = "immediate"

	// ScheduleScheduled — выполняется в интервале [start_at, end_at].
	ScheduleScheduled ScheduleType = "scheduled"

	// ScheduleRecurring — выполняется в повторяющемся окне
	// (дни недели + HH:MM интервал в заданном timezone).
	ScheduleRecurring ScheduleType = "recurring"

	// ScheduleOnConnect — выполняется только по событию подключения
	// устройства; polling-тик такие workflow не трогает.
	ScheduleOnConnect ScheduleType = "on_connect"
)

// LogLevel — уровень записи в журнале активности.
type LogLevel string

const (
	LogLevelInfo    LogLevel = "info"
	LogLevelWarning LogLevel = "warning"
	LogLevelError   LogLevel = "error"
)
