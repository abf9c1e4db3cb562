package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"mailtriage/internal/apperr"
	"mailtriage/internal/model"
)

type TaskRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewTaskRepository(db *pgxpool.Pool, logger *zap.Logger) *TaskRepository {
	return &TaskRepository{db: db, logger: logger}
}

const taskColumns = `
	id, user_id, email_id, title, description, priority, status, due_date, completed_at, created_at, updated_at
`

func scanTask(row pgx.Row) (*model.Task, error) {
	var t model.Task
	err := row.Scan(
		&t.ID, &t.UserID, &t.EmailID, &t.Title, &t.Description, &t.Priority, &t.Status,
		&t.DueDate, &t.CompletedAt, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TaskRepository) Insert(ctx context.Context, t *model.Task) error {
	r.logger.Debug("Inserting task",
		zap.Int("user_id", t.UserID),
		zap.String("title", t.Title),
	)
	if err := insertTask(ctx, r.db, t); err != nil {
		r.logger.Error("Failed to insert task", zap.Error(err), zap.Int("user_id", t.UserID))
		return err
	}
	return nil
}

// rowQuerier pgxpool.Pool 与 pgx.Tx 都满足
type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func insertTask(ctx context.Context, q rowQuerier, t *model.Task) error {
	query := `
		INSERT INTO tasks (user_id, email_id, title, description, priority, status, due_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`
	err := q.QueryRow(ctx, query,
		t.UserID, t.EmailID, t.Title, t.Description, t.Priority, t.Status, t.DueDate,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

func (r *TaskRepository) Get(ctx context.Context, userID, id int) (*model.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1 AND ($2 = 0 OR user_id = $2)`
	t, err := scanTask(r.db.QueryRow(ctx, query, id, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("task", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task %d: %w", id, err)
	}
	return t, nil
}

// List status 为空时返回全部
func (r *TaskRepository) List(ctx context.Context, userID int, status model.TaskStatus) ([]*model.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE user_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query, userID, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []*model.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// UpdateStatus 以旧状态为条件更新，防止并发覆盖
func (r *TaskRepository) UpdateStatus(ctx context.Context, t *model.Task, from model.TaskStatus) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE tasks SET status = $2, completed_at = $3, updated_at = NOW()
		WHERE id = $1 AND status = $4
	`, t.ID, t.Status, t.CompletedAt, from)
	if err != nil {
		return fmt.Errorf("failed to update task %d: %w", t.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("task %d changed concurrently: %w", t.ID, apperr.ErrIllegalTransition)
	}
	return nil
}

func (r *TaskRepository) CountOpen(ctx context.Context, userID int) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM tasks WHERE user_id = $1 AND status IN ('pending', 'in_progress')
	`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count tasks: %w", err)
	}
	return n, nil
}
