package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/marcelg7/fleetacs/internal/domain"
)

// GroupRepo — репозиторий для работы с группами устройств и их правилами.
type GroupRepo struct {
	pool *pgxpool.Pool
}

// NewGroupRepo создаёт новый GroupRepo.
func NewGroupRepo(pool *pgxpool.Pool) *GroupRepo {
	return &GroupRepo{pool: pool}
}

// Create создаёт группу вместе с правилами в одной транзакции.
func (r *GroupRepo) Create(ctx context.Context, group *domain.DeviceGroup) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO device_groups (id, name, match_type, is_active, priority, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = tx.Exec(ctx, query,
		group.ID,
		group.Name,
		group.MatchType,
		group.IsActive,
		group.Priority,
		group.CreatedAt,
		group.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert group: %w", err)
	}

	if err := insertRules(ctx, tx, group.ID, group.Rules); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// GetByID возвращает группу с её правилами.
func (r *GroupRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.DeviceGroup, error) {
	query := `
		SELECT id, name, match_type, is_active, priority, created_at, updated_at
		FROM device_groups
		WHERE id = $1
	`
	group, err := scanGroup(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}

	rules, err := r.listRules(ctx, id)
	if err != nil {
		return nil, err
	}
	group.Rules = rules
	return group, nil
}

// List возвращает все группы с правилами, отсортированные по приоритету.
func (r *GroupRepo) List(ctx context.Context) ([]domain.DeviceGroup, error) {
	query := `
		SELECT id, name, match_type, is_active, priority, created_at, updated_at
		FROM device_groups
		ORDER BY priority DESC, created_at ASC
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	var groups []domain.DeviceGroup
	for rows.Next() {
		group, err := scanGroupFromRows(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, *group)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range groups {
		rules, err := r.listRules(ctx, groups[i].ID)
		if err != nil {
			return nil, err
		}
		groups[i].Rules = rules
	}
	return groups, nil
}

// Update обновляет группу и полностью заменяет её правила.
func (r *GroupRepo) Update(ctx context.Context, group *domain.DeviceGroup) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE device_groups
		SET name = $2, match_type = $3, is_active = $4, priority = $5, updated_at = $6
		WHERE id = $1
	`
	result, err := tx.Exec(ctx, query,
		group.ID,
		group.Name,
		group.MatchType,
		group.IsActive,
		group.Priority,
		group.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update group: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	if _, err := tx.Exec(ctx, `DELETE FROM group_rules WHERE group_id = $1`, group.ID); err != nil {
		return fmt.Errorf("delete old rules: %w", err)
	}
	if err := insertRules(ctx, tx, group.ID, group.Rules); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Delete каскадно удаляет группу: сначала executions её workflow,
// затем workflow, правила и саму группу — всё в одной транзакции.
func (r *GroupRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	queries := []string{
		`DELETE FROM executions WHERE workflow_id IN (SELECT id FROM workflows WHERE group_id = $1)`,
		`DELETE FROM activity_log WHERE workflow_id IN (SELECT id FROM workflows WHERE group_id = $1)`,
		`DELETE FROM workflows WHERE group_id = $1`,
		`DELETE FROM group_rules WHERE group_id = $1`,
	}
	for _, q := range queries {
		if _, err := tx.Exec(ctx, q, id); err != nil {
			return fmt.Errorf("cascade delete: %w", err)
		}
	}

	result, err := tx.Exec(ctx, `DELETE FROM device_groups WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete group: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return tx.Commit(ctx)
}

// --- Helpers ---

func (r *GroupRepo) listRules(ctx context.Context, groupID uuid.UUID) ([]domain.Rule, error) {
	query := `
		SELECT id, group_id, field, operator, value, rule_order
		FROM group_rules
		WHERE group_id = $1
		ORDER BY rule_order ASC
	`
	rows, err := r.pool.Query(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var rules []domain.Rule
	for rows.Next() {
		var rule domain.Rule
		err := rows.Scan(
			&rule.ID,
			&rule.GroupID,
			&rule.Field,
			&rule.Operator,
			&rule.Value,
			&rule.Order,
		)
		if err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

func insertRules(ctx context.Context, tx pgx.Tx, groupID uuid.UUID, rules []domain.Rule) error {
	query := `
		INSERT INTO group_rules (id, group_id, field, operator, value, rule_order)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	for _, rule := range rules {
		if rule.ID == uuid.Nil {
			rule.ID = uuid.New()
		}
		_, err := tx.Exec(ctx, query,
			rule.ID,
			groupID,
			rule.Field,
			rule.Operator,
			rule.Value,
			rule.Order,
		)
		if err != nil {
			return fmt.Errorf("insert rule: %w", err)
		}
	}
	return nil
}

func scanGroup(row pgx.Row) (*domain.DeviceGroup, error) {
	var group domain.DeviceGroup
	err := row.Scan(
		&group.ID,
		&group.Name,
		&group.MatchType,
		&group.IsActive,
		&group.Priority,
		&group.CreatedAt,
		&group.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan group: %w", err)
	}
	return &group, nil
}

func scanGroupFromRows(rows pgx.Rows) (*domain.DeviceGroup, error) {
	var group domain.DeviceGroup
	err := rows.Scan(
		&group.ID,
		&group.Name,
		&group.MatchType,
		&group.IsActive,
		&group.Priority,
		&group.CreatedAt,
		&group.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan group: %w", err)
	}
	return &group, nil
}
