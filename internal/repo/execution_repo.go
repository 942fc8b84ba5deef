package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/marcelg7/fleetacs/internal/domain"
)

// ExecutionRepo — репозиторий для работы с executions.
type ExecutionRepo struct {
	pool *pgxpool.Pool
}

// NewExecutionRepo создаёт новый ExecutionRepo.
func NewExecutionRepo(pool *pgxpool.Pool) *ExecutionRepo {
	return &ExecutionRepo{pool: pool}
}

// CreateIfAbsent атомарно создаёт execution, если для пары
// (workflow_id, device_id) записи ещё нет. Уникальность обеспечивает
// индекс executions_workflow_device_key, поэтому конкурентные тики
// из нескольких процессов не создадут дубликат.
func (r *ExecutionRepo) CreateIfAbsent(ctx context.Context, exec *domain.Execution) (bool, error) {
	resultJSON, err := json.Marshal(exec.Result)
	if err != nil {
		return false, fmt.Errorf("marshal result: %w", err)
	}

	query := `
		INSERT INTO executions (id, workflow_id, device_id, task_ref, status, attempt,
		                        scheduled_at, started_at, completed_at, next_retry_at,
		                        result, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (workflow_id, device_id) DO NOTHING
	`
	result, err := r.pool.Exec(ctx, query,
		exec.ID,
		exec.WorkflowID,
		exec.DeviceID,
		nullString(exec.TaskRef),
		exec.Status,
		exec.Attempt,
		exec.ScheduledAt,
		exec.StartedAt,
		exec.CompletedAt,
		exec.NextRetryAt,
		resultJSON,
		exec.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert execution: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// GetByID возвращает execution по ID.
func (r *ExecutionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Execution, error) {
	query := executionSelect + ` WHERE id = $1`
	return scanExecution(r.pool.QueryRow(ctx, query, id))
}

// GetByPair возвращает execution пары (workflow, device).
func (r *ExecutionRepo) GetByPair(ctx context.Context, workflowID uuid.UUID, deviceID string) (*domain.Execution, error) {
	query := executionSelect + ` WHERE workflow_id = $1 AND device_id = $2`
	return scanExecution(r.pool.QueryRow(ctx, query, workflowID, deviceID))
}

// GetByTaskRef возвращает execution по ссылке на задачу диспетчера.
func (r *ExecutionRepo) GetByTaskRef(ctx context.Context, taskRef string) (*domain.Execution, error) {
	query := executionSelect + ` WHERE task_ref = $1`
	return scanExecution(r.pool.QueryRow(ctx, query, taskRef))
}

// ListByWorkflow возвращает все executions workflow.
func (r *ExecutionRepo) ListByWorkflow(ctx context.Context, workflowID uuid.UUID) ([]domain.Execution, error) {
	query := executionSelect + `
		WHERE workflow_id = $1
		ORDER BY scheduled_at ASC
	`
	rows, err := r.pool.Query(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()
	return collectExecutions(rows)
}

// List возвращает executions с фильтрацией по workflow, устройству и статусу.
func (r *ExecutionRepo) List(ctx context.Context, filter ExecutionFilter) ([]domain.Execution, error) {
	query := executionSelect + `
		WHERE ($1::uuid IS NULL OR workflow_id = $1)
		  AND ($2::text IS NULL OR device_id = $2)
		  AND ($3::text IS NULL OR status = $3::execution_status)
		ORDER BY updated_at DESC
		LIMIT $4 OFFSET $5
	`
	rows, err := r.pool.Query(ctx, query,
		nullUUID(filter.WorkflowID),
		nullString(filter.DeviceID),
		nullString(string(filter.Status)),
		filter.Limit,
		filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()
	return collectExecutions(rows)
}

// Update сохраняет изменённый execution.
func (r *ExecutionRepo) Update(ctx context.Context, exec *domain.Execution) error {
	resultJSON, err := json.Marshal(exec.Result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	query := `
		UPDATE executions
		SET task_ref = $2, status = $3, attempt = $4,
		    started_at = $5, completed_at = $6, next_retry_at = $7,
		    result = $8, updated_at = $9
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		exec.ID,
		nullString(exec.TaskRef),
		exec.Status,
		exec.Attempt,
		exec.StartedAt,
		exec.CompletedAt,
		exec.NextRetryAt,
		resultJSON,
		exec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update execution: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CountByStatus возвращает количество executions workflow по статусам.
func (r *ExecutionRepo) CountByStatus(ctx context.Context, workflowID uuid.UUID) (map[domain.ExecutionStatus]int, error) {
	query := `
		SELECT status, count(*)
		FROM executions
		WHERE workflow_id = $1
		GROUP BY status
	`
	rows, err := r.pool.Query(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("count executions: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.ExecutionStatus]int)
	for rows.Next() {
		var status domain.ExecutionStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

// HasCompleted проверяет, есть ли у пары (workflow, device)
// успешно завершённый execution.
func (r *ExecutionRepo) HasCompleted(ctx context.Context, workflowID uuid.UUID, deviceID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM executions
			WHERE workflow_id = $1 AND device_id = $2 AND status = 'COMPLETED'
		)
	`
	var exists bool
	if err := r.pool.QueryRow(ctx, query, workflowID, deviceID).Scan(&exists); err != nil {
		return false, fmt.Errorf("has completed: %w", err)
	}
	return exists, nil
}

// RearmFailed переводит все FAILED executions workflow обратно в PENDING
// со сброшенным счётчиком попыток. Возвращает число перевзведённых записей.
func (r *ExecutionRepo) RearmFailed(ctx context.Context, workflowID uuid.UUID, now time.Time) (int, error) {
	query := `
		UPDATE executions
		SET status = 'PENDING', attempt = 0, task_ref = NULL,
		    started_at = NULL, completed_at = NULL, next_retry_at = NULL,
		    updated_at = $2
		WHERE workflow_id = $1 AND status = 'FAILED'
	`
	result, err := r.pool.Exec(ctx, query, workflowID, now)
	if err != nil {
		return 0, fmt.Errorf("rearm failed executions: %w", err)
	}
	return int(result.RowsAffected()), nil
}

// --- Helpers ---

// ExecutionFilter — параметры фильтрации executions.
type ExecutionFilter struct {
	WorkflowID *uuid.UUID
	DeviceID   string
	Status     domain.ExecutionStatus
	Limit      int
	Offset     int
}

const executionSelect = `
	SELECT id, workflow_id, device_id, task_ref, status, attempt,
	       scheduled_at, started_at, completed_at, next_retry_at,
	       result, updated_at
	FROM executions
`

func scanExecution(row pgx.Row) (*domain.Execution, error) {
	exec, err := scanExecutionRow(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return exec, err
}

func collectExecutions(rows pgx.Rows) ([]domain.Execution, error) {
	var execs []domain.Execution
	for rows.Next() {
		exec, err := scanExecutionRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		execs = append(execs, *exec)
	}
	return execs, rows.Err()
}

func scanExecutionRow(scan func(...any) error) (*domain.Execution, error) {
	var exec domain.Execution
	var taskRef *string
	var resultJSON []byte

	err := scan(
		&exec.ID,
		&exec.WorkflowID,
		&exec.DeviceID,
		&taskRef,
		&exec.Status,
		&exec.Attempt,
		&exec.ScheduledAt,
		&exec.StartedAt,
		&exec.CompletedAt,
		&exec.NextRetryAt,
		&resultJSON,
		&exec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan execution: %w", err)
	}

	if taskRef != nil {
		exec.TaskRef = *taskRef
	}
	if resultJSON != nil {
		if err := json.Unmarshal(resultJSON, &exec.Result); err != nil {
			return nil, fmt.Errorf("unmarshal result: %w", err)
		}
	}
	return &exec, nil
}
