package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/marcelg7/fleetacs/internal/domain"
)

// WorkflowRepo — репозиторий для работы с workflow.
type WorkflowRepo struct {
	pool *pgxpool.Pool
}

// NewWorkflowRepo создаёт новый WorkflowRepo.
func NewWorkflowRepo(pool *pgxpool.Pool) *WorkflowRepo {
	return &WorkflowRepo{pool: pool}
}

// Create создаёт новый workflow.
func (r *WorkflowRepo) Create(ctx context.Context, wf *domain.Workflow) error {
	paramsJSON, err := json.Marshal(wf.Parameters)
	if err != nil {
		return fmt.Errorf("marshal parameters: %w", err)
	}
	scheduleJSON, err := json.Marshal(wf.ScheduleConfig)
	if err != nil {
		return fmt.Errorf("marshal schedule config: %w", err)
	}

	query := `
		INSERT INTO workflows (id, group_id, name, task_type, parameters,
		                       schedule_type, schedule_config,
		                       rate_limit, max_concurrent, retry_count, retry_delay_minutes,
		                       stop_on_failure_percent, run_once_per_device,
		                       depends_on_workflow_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`
	_, err = r.pool.Exec(ctx, query,
		wf.ID,
		wf.GroupID,
		wf.Name,
		wf.TaskType,
		paramsJSON,
		wf.ScheduleType,
		scheduleJSON,
		wf.RateLimit,
		wf.MaxConcurrent,
		wf.RetryCount,
		wf.RetryDelayMinutes,
		wf.StopOnFailurePercent,
		wf.RunOncePerDevice,
		nullUUID(wf.DependsOnWorkflowID),
		wf.Status,
		wf.CreatedAt,
		wf.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert workflow: %w", err)
	}
	return nil
}

// GetByID возвращает workflow по ID.
func (r *WorkflowRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Workflow, error) {
	query := workflowSelect + ` WHERE id = $1`
	return scanWorkflow(r.pool.QueryRow(ctx, query, id))
}

// List возвращает все workflow, опционально отфильтрованные по группе.
func (r *WorkflowRepo) List(ctx context.Context, groupID *uuid.UUID) ([]domain.Workflow, error) {
	query := workflowSelect + `
		WHERE ($1::uuid IS NULL OR group_id = $1)
		ORDER BY created_at DESC
	`
	rows, err := r.pool.Query(ctx, query, nullUUID(groupID))
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	defer rows.Close()
	return collectWorkflows(rows)
}

// ListByStatus возвращает workflow в указанном статусе.
func (r *WorkflowRepo) ListByStatus(ctx context.Context, status domain.WorkflowStatus) ([]domain.Workflow, error) {
	query := workflowSelect + `
		WHERE status = $1
		ORDER BY created_at ASC
	`
	rows, err := r.pool.Query(ctx, query, status)
	if err != nil {
		return nil, fmt.Errorf("list workflows by status: %w", err)
	}
	defer rows.Close()
	return collectWorkflows(rows)
}

// Update обновляет workflow.
func (r *WorkflowRepo) Update(ctx context.Context, wf *domain.Workflow) error {
	paramsJSON, err := json.Marshal(wf.Parameters)
	if err != nil {
		return fmt.Errorf("marshal parameters: %w", err)
	}
	scheduleJSON, err := json.Marshal(wf.ScheduleConfig)
	if err != nil {
		return fmt.Errorf("marshal schedule config: %w", err)
	}

	query := `
		UPDATE workflows
		SET name = $2, task_type = $3, parameters = $4,
		    schedule_type = $5, schedule_config = $6,
		    rate_limit = $7, max_concurrent = $8, retry_count = $9, retry_delay_minutes = $10,
		    stop_on_failure_percent = $11, run_once_per_device = $12,
		    depends_on_workflow_id = $13, status = $14, updated_at = $15
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		wf.ID,
		wf.Name,
		wf.TaskType,
		paramsJSON,
		wf.ScheduleType,
		scheduleJSON,
		wf.RateLimit,
		wf.MaxConcurrent,
		wf.RetryCount,
		wf.RetryDelayMinutes,
		wf.StopOnFailurePercent,
		wf.RunOncePerDevice,
		nullUUID(wf.DependsOnWorkflowID),
		wf.Status,
		wf.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update workflow: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateStatus меняет статус workflow.
func (r *WorkflowRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.WorkflowStatus) error {
	query := `
		UPDATE workflows
		SET status = $2, updated_at = now()
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("update workflow status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete удаляет workflow вместе с его executions.
func (r *WorkflowRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM executions WHERE workflow_id = $1`, id); err != nil {
		return fmt.Errorf("delete executions: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM activity_log WHERE workflow_id = $1`, id); err != nil {
		return fmt.Errorf("delete activity log: %w", err)
	}

	result, err := tx.Exec(ctx, `DELETE FROM workflows WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete workflow: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return tx.Commit(ctx)
}

// --- Helpers ---

const workflowSelect = `
	SELECT id, group_id, name, task_type, parameters,
	       schedule_type, schedule_config,
	       rate_limit, max_concurrent, retry_count, retry_delay_minutes,
	       stop_on_failure_percent, run_once_per_device,
	       depends_on_workflow_id, status, created_at, updated_at
	FROM workflows
`

func scanWorkflow(row pgx.Row) (*domain.Workflow, error) {
	wf, err := scanWorkflowRow(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return wf, err
}

func collectWorkflows(rows pgx.Rows) ([]domain.Workflow, error) {
	var workflows []domain.Workflow
	for rows.Next() {
		wf, err := scanWorkflowRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		workflows = append(workflows, *wf)
	}
	return workflows, rows.Err()
}

func scanWorkflowRow(scan func(...any) error) (*domain.Workflow, error) {
	var wf domain.Workflow
	var paramsJSON []byte
	var scheduleJSON []byte
	var dependsOn *uuid.UUID

	err := scan(
		&wf.ID,
		&wf.GroupID,
		&wf.Name,
		&wf.TaskType,
		&paramsJSON,
		&wf.ScheduleType,
		&scheduleJSON,
		&wf.RateLimit,
		&wf.MaxConcurrent,
		&wf.RetryCount,
		&wf.RetryDelayMinutes,
		&wf.StopOnFailurePercent,
		&wf.RunOncePerDevice,
		&dependsOn,
		&wf.Status,
		&wf.CreatedAt,
		&wf.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan workflow: %w", err)
	}

	if paramsJSON != nil {
		if err := json.Unmarshal(paramsJSON, &wf.Parameters); err != nil {
			return nil, fmt.Errorf("unmarshal parameters: %w", err)
		}
	}
	if scheduleJSON != nil {
		if err := json.Unmarshal(scheduleJSON, &wf.ScheduleConfig); err != nil {
			return nil, fmt.Errorf("unmarshal schedule config: %w", err)
		}
	}
	wf.DependsOnWorkflowID = dependsOn
	return &wf, nil
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// nullUUID возвращает nil для пустого UUID.
func nullUUID(id *uuid.UUID) *uuid.UUID {
	if id == nil || *id == uuid.Nil {
		return nil
	}
	return id
}
