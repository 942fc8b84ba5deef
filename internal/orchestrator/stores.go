package orchestrator

import (
	"context"

	"github.com/google/uuid"

	"github.com/marcelg7/fleetacs/internal/domain"
)

// GroupStore — чтение групп устройств вместе с правилами.
type GroupStore interface {
	// GetByID возвращает группу с её правилами.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.DeviceGroup, error)
}

// WorkflowStore — чтение и смена статуса workflow.
type WorkflowStore interface {
	// GetByID возвращает workflow.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Workflow, error)

	// ListByStatus возвращает workflow в указанном статусе.
	ListByStatus(ctx context.Context, status domain.WorkflowStatus) ([]domain.Workflow, error)

	// UpdateStatus меняет статус workflow.
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.WorkflowStatus) error
}

// ExecutionStore — хранилище executions.
//
// CreateIfAbsent — единственный способ появления новой записи и точка,
// гарантирующая уникальность пары (workflow, device) даже при
// конкурентных тиках из нескольких процессов.
type ExecutionStore interface {
	// CreateIfAbsent атомарно создаёт execution, если для пары
	// (workflow_id, device_id) записи ещё нет. Возвращает false,
	// если запись уже существовала.
	CreateIfAbsent(ctx context.Context, exec *domain.Execution) (bool, error)

	// GetByPair возвращает execution пары. repo.ErrNotFound, если записи нет.
	GetByPair(ctx context.Context, workflowID uuid.UUID, deviceID string) (*domain.Execution, error)

	// GetByTaskRef возвращает execution по ссылке на задачу.
	GetByTaskRef(ctx context.Context, taskRef string) (*domain.Execution, error)

	// ListByWorkflow возвращает все executions workflow.
	ListByWorkflow(ctx context.Context, workflowID uuid.UUID) ([]domain.Execution, error)

	// Update сохраняет изменённый execution.
	Update(ctx context.Context, exec *domain.Execution) error

	// CountByStatus возвращает количество executions workflow по статусам.
	CountByStatus(ctx context.Context, workflowID uuid.UUID) (map[domain.ExecutionStatus]int, error)

	// HasCompleted проверяет, есть ли завершённый (COMPLETED) execution
	// пары. Используется dependency gate.
	HasCompleted(ctx context.Context, workflowID uuid.UUID, deviceID string) (bool, error)
}

// DeviceStore — внешнее хранилище снимков устройств (только чтение).
type DeviceStore interface {
	// ListDevices возвращает актуальные снимки всех устройств.
	ListDevices(ctx context.Context) ([]domain.DeviceSnapshot, error)

	// GetDevice возвращает снимок одного устройства.
	GetDevice(ctx context.Context, deviceID string) (*domain.DeviceSnapshot, error)
}

// ActivityLog — append-only журнал решений оркестратора.
type ActivityLog interface {
	// Append добавляет запись. Ошибка журнала не должна ронять тик.
	Append(ctx context.Context, entry *domain.LogEntry) error
}
