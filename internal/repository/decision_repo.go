package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	contracts "mailtriage/contracts/mq"
	"mailtriage/internal/apperr"
	"mailtriage/internal/model"
	"mailtriage/pkg/mq"
	"mailtriage/pkg/outbox"
)

type DecisionRepository struct {
	db         *pgxpool.Pool
	outboxRepo *outbox.Repository
	logger     *zap.Logger
}

func NewDecisionRepository(db *pgxpool.Pool, outboxRepo *outbox.Repository, logger *zap.Logger) *DecisionRepository {
	return &DecisionRepository{db: db, outboxRepo: outboxRepo, logger: logger}
}

const decisionColumns = `
	id, user_id, email_id, task_id, reminder_id, decision_type, decision_text, status,
	follow_up_at, snooze_count, completed_at, time_to_complete_ms, source, created_at, updated_at
`

func scanDecision(row pgx.Row) (*model.Decision, error) {
	var d model.Decision
	err := row.Scan(
		&d.ID, &d.UserID, &d.EmailID, &d.TaskID, &d.ReminderID, &d.Type, &d.Text, &d.Status,
		&d.FollowUpAt, &d.SnoozeCount, &d.CompletedAt, &d.TimeToCompleteMs, &d.Source, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *DecisionRepository) queryDecisions(ctx context.Context, query string, args ...any) ([]*model.Decision, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query decisions: %w", err)
	}
	defer rows.Close()

	out := []*model.Decision{}
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Create 写入决策与 decision.created 事件；task 非空时在同一事务中先创建任务并关联
func (r *DecisionRepository) Create(ctx context.Context, d *model.Decision, task *model.Task) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if task != nil {
		if err := insertTask(ctx, tx, task); err != nil {
			return fmt.Errorf("failed to create task for decision: %w", err)
		}
		d.TaskID = &task.ID
	}

	query := `
		INSERT INTO decisions (
			user_id, email_id, task_id, reminder_id, decision_type, decision_text, status,
			follow_up_at, source, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
		RETURNING id
	`
	err = tx.QueryRow(ctx, query,
		d.UserID, d.EmailID, d.TaskID, d.ReminderID, d.Type, d.Text, d.Status,
		d.FollowUpAt, d.Source, d.CreatedAt,
	).Scan(&d.ID)
	if err != nil {
		return fmt.Errorf("failed to insert decision: %w", err)
	}
	d.UpdatedAt = d.CreatedAt

	payload := contracts.DecisionCreatedPayload{
		DecisionID:   d.ID,
		UserID:       d.UserID,
		EmailID:      d.EmailID,
		TaskID:       d.TaskID,
		DecisionType: string(d.Type),
		DecisionText: d.Text,
		Status:       string(d.Status),
		FollowUpAt:   d.FollowUpAt,
	}
	if err := outbox.InsertEventInTx(ctx, tx, r.outboxRepo, "decision", int64(d.ID), mq.RoutingDecisionCreated, payload); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.logger.Info("Decision created",
		zap.Int("decision_id", d.ID),
		zap.Int("user_id", d.UserID),
		zap.String("type", string(d.Type)),
		zap.String("status", string(d.Status)),
	)
	return nil
}

func (r *DecisionRepository) Get(ctx context.Context, userID, id int) (*model.Decision, error) {
	query := `SELECT ` + decisionColumns + ` FROM decisions WHERE id = $1 AND ($2 = 0 OR user_id = $2)`
	d, err := scanDecision(r.db.QueryRow(ctx, query, id, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("decision", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get decision %d: %w", id, err)
	}
	return d, nil
}

// Update 持久化状态机的结果；只更新仍为 PENDING 的记录
func (r *DecisionRepository) Update(ctx context.Context, d *model.Decision) error {
	query := `
		UPDATE decisions
		SET status = $2, follow_up_at = $3, snooze_count = $4, completed_at = $5,
		    time_to_complete_ms = $6, updated_at = NOW()
		WHERE id = $1 AND status = 'PENDING'
	`
	tag, err := r.db.Exec(ctx, query, d.ID, d.Status, d.FollowUpAt, d.SnoozeCount, d.CompletedAt, d.TimeToCompleteMs)
	if err != nil {
		return fmt.Errorf("failed to update decision %d: %w", d.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("decision %d is no longer pending: %w", d.ID, apperr.ErrIllegalTransition)
	}
	return nil
}

// PendingWithCompletedTask 关联任务已完成的 PENDING 决策，userID 为 0 时扫描所有用户
func (r *DecisionRepository) PendingWithCompletedTask(ctx context.Context, userID, limit int) ([]*model.Decision, error) {
	return r.queryDecisions(ctx, `
		SELECT `+decisionColumns+`
		FROM decisions
		WHERE status = 'PENDING' AND ($1 = 0 OR user_id = $1)
		  AND EXISTS (
			SELECT 1 FROM tasks t WHERE t.id = decisions.task_id AND t.status = 'completed'
		  )
		ORDER BY created_at ASC
		LIMIT $2
	`, userID, limit)
}

// Due 到期的 PENDING 决策，最早的在前；userID 为 0 时不限用户
func (r *DecisionRepository) Due(ctx context.Context, userID int, now time.Time, limit int) ([]*model.Decision, error) {
	return r.queryDecisions(ctx, `
		SELECT `+decisionColumns+`
		FROM decisions
		WHERE status = 'PENDING' AND follow_up_at <= $2 AND ($1 = 0 OR user_id = $1)
		ORDER BY created_at ASC
		LIMIT $3
	`, userID, now, limit)
}

func (r *DecisionRepository) CountPending(ctx context.Context, userID int) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM decisions WHERE user_id = $1 AND status = 'PENDING'`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending decisions: %w", err)
	}
	return n, nil
}
