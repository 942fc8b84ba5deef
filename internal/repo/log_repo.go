package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/marcelg7/fleetacs/internal/domain"
)

// LogRepo — репозиторий журнала активности. Журнал append-only:
// записи никогда не обновляются и не удаляются поштучно.
type LogRepo struct {
	pool *pgxpool.Pool
}

// NewLogRepo создаёт новый LogRepo.
func NewLogRepo(pool *pgxpool.Pool) *LogRepo {
	return &LogRepo{pool: pool}
}

// Append добавляет запись в журнал.
func (r *LogRepo) Append(ctx context.Context, entry *domain.LogEntry) error {
	contextJSON, err := json.Marshal(entry.Context)
	if err != nil {
		return fmt.Errorf("marshal context: %w", err)
	}

	query := `
		INSERT INTO activity_log (id, workflow_id, execution_id, device_id,
		                          level, message, context, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = r.pool.Exec(ctx, query,
		entry.ID,
		nullUUID(entry.WorkflowID),
		nullUUID(entry.ExecutionID),
		nullString(entry.DeviceID),
		entry.Level,
		entry.Message,
		contextJSON,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert log entry: %w", err)
	}
	return nil
}

// List возвращает записи журнала с фильтрацией, новые первыми.
func (r *LogRepo) List(ctx context.Context, filter LogFilter) ([]domain.LogEntry, error) {
	query := `
		SELECT id, workflow_id, execution_id, device_id, level, message, context, created_at
		FROM activity_log
		WHERE ($1::uuid IS NULL OR workflow_id = $1)
		  AND ($2::text IS NULL OR device_id = $2)
		  AND ($3::text IS NULL OR level = $3::log_level)
		ORDER BY created_at DESC
		LIMIT $4 OFFSET $5
	`
	rows, err := r.pool.Query(ctx, query,
		nullUUID(filter.WorkflowID),
		nullString(filter.DeviceID),
		nullString(string(filter.Level)),
		filter.Limit,
		filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list log entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.LogEntry
	for rows.Next() {
		var entry domain.LogEntry
		var deviceID *string
		var contextJSON []byte

		err := rows.Scan(
			&entry.ID,
			&entry.WorkflowID,
			&entry.ExecutionID,
			&deviceID,
			&entry.Level,
			&entry.Message,
			&contextJSON,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan log entry: %w", err)
		}

		if deviceID != nil {
			entry.DeviceID = *deviceID
		}
		if contextJSON != nil {
			if err := json.Unmarshal(contextJSON, &entry.Context); err != nil {
				return nil, fmt.Errorf("unmarshal context: %w", err)
			}
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// LogFilter — параметры фильтрации журнала.
type LogFilter struct {
	WorkflowID *uuid.UUID
	DeviceID   string
	Level      domain.LogLevel
	Limit      int
	Offset     int
}
