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
	"mailtriage/pkg/db"
	"mailtriage/pkg/mq"
	"mailtriage/pkg/outbox"
)

const pendingReminderConstraint = "uq_email_reminders_pending"

type ReminderRepository struct {
	db         *pgxpool.Pool
	outboxRepo *outbox.Repository
	logger     *zap.Logger
}

func NewReminderRepository(db *pgxpool.Pool, outboxRepo *outbox.Repository, logger *zap.Logger) *ReminderRepository {
	return &ReminderRepository{db: db, outboxRepo: outboxRepo, logger: logger}
}

const reminderSelect = `
	SELECT r.id, r.user_id, r.email_id, r.remind_at, r.status, r.reason, r.triggered_at,
	       COALESCE(e.subject, ''), r.created_at, r.updated_at
	FROM email_reminders r
	LEFT JOIN emails e ON e.id = r.email_id
`

func scanReminder(row pgx.Row) (*model.EmailReminder, error) {
	var rm model.EmailReminder
	err := row.Scan(
		&rm.ID, &rm.UserID, &rm.EmailID, &rm.RemindAt, &rm.Status, &rm.Reason, &rm.TriggeredAt,
		&rm.EmailSubject, &rm.CreatedAt, &rm.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rm, nil
}

func (r *ReminderRepository) queryReminders(ctx context.Context, query string, args ...any) ([]*model.EmailReminder, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reminders: %w", err)
	}
	defer rows.Close()

	out := []*model.EmailReminder{}
	for rows.Next() {
		rm, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rm)
	}
	return out, rows.Err()
}

// Create 部分唯一索引冲突转换为 ConflictError
func (r *ReminderRepository) Create(ctx context.Context, rm *model.EmailReminder) error {
	query := `
		INSERT INTO email_reminders (user_id, email_id, remind_at, status, reason)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query, rm.UserID, rm.EmailID, rm.RemindAt, rm.Status, rm.Reason).
		Scan(&rm.ID, &rm.CreatedAt, &rm.UpdatedAt)
	if db.IsUniqueViolation(err, pendingReminderConstraint) {
		return apperr.Conflict("a pending reminder already exists for email %d", derefInt(rm.EmailID))
	}
	if err != nil {
		return fmt.Errorf("failed to insert reminder: %w", err)
	}
	return nil
}

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func (r *ReminderRepository) Get(ctx context.Context, userID, id int) (*model.EmailReminder, error) {
	rm, err := scanReminder(r.db.QueryRow(ctx, reminderSelect+` WHERE r.id = $1 AND ($2 = 0 OR r.user_id = $2)`, id, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("reminder", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reminder %d: %w", id, err)
	}
	return rm, nil
}

// Cancel 只取消 pending 的提醒
func (r *ReminderRepository) Cancel(ctx context.Context, rm *model.EmailReminder) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE email_reminders SET status = 'cancelled', updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, rm.ID)
	if err != nil {
		return fmt.Errorf("failed to cancel reminder %d: %w", rm.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("reminder %d is no longer pending: %w", rm.ID, apperr.ErrIllegalTransition)
	}
	return nil
}

// MarkTriggered 标记已触发，并在同一事务中写入 reminder.triggered 事件
func (r *ReminderRepository) MarkTriggered(ctx context.Context, rm *model.EmailReminder, delivered bool, reason string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE email_reminders SET status = 'triggered', triggered_at = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, rm.ID, rm.TriggeredAt)
	if err != nil {
		return fmt.Errorf("failed to mark reminder %d triggered: %w", rm.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("reminder %d is no longer pending: %w", rm.ID, apperr.ErrIllegalTransition)
	}

	triggeredAt := time.Now()
	if rm.TriggeredAt != nil {
		triggeredAt = *rm.TriggeredAt
	}
	payload := contracts.ReminderTriggeredPayload{
		ReminderID:  rm.ID,
		UserID:      rm.UserID,
		EmailID:     rm.EmailID,
		Delivered:   delivered,
		Reason:      reason,
		TriggeredAt: triggeredAt,
	}
	if err := outbox.InsertEventInTx(ctx, tx, r.outboxRepo, "reminder", int64(rm.ID), mq.RoutingReminderTriggered, payload); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// List 按 remindAt 升序
func (r *ReminderRepository) List(ctx context.Context, userID int, status model.ReminderStatus) ([]*model.EmailReminder, error) {
	return r.queryReminders(ctx, reminderSelect+`
		WHERE r.user_id = $1 AND r.status = $2
		ORDER BY r.remind_at ASC
	`, userID, status)
}

// Due 所有用户到期的 pending 提醒
func (r *ReminderRepository) Due(ctx context.Context, now time.Time, limit int) ([]*model.EmailReminder, error) {
	return r.queryReminders(ctx, reminderSelect+`
		WHERE r.status = 'pending' AND r.remind_at <= $1
		ORDER BY r.remind_at ASC
		LIMIT $2
	`, now, limit)
}

// PendingUntil 某用户在 until 之前到期的 pending 提醒
func (r *ReminderRepository) PendingUntil(ctx context.Context, userID int, until time.Time) ([]*model.EmailReminder, error) {
	return r.queryReminders(ctx, reminderSelect+`
		WHERE r.user_id = $1 AND r.status = 'pending' AND r.remind_at <= $2
		ORDER BY r.remind_at ASC
	`, userID, until)
}

func (r *ReminderRepository) CancelForEmail(ctx context.Context, emailID int) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE email_reminders SET status = 'cancelled', updated_at = NOW()
		WHERE email_id = $1 AND status = 'pending'
	`, emailID)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel reminders for email %d: %w", emailID, err)
	}
	return tag.RowsAffected(), nil
}

func (r *ReminderRepository) HasActive(ctx context.Context, emailID int) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM email_reminders WHERE email_id = $1 AND status = 'pending')
	`, emailID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check reminders for email %d: %w", emailID, err)
	}
	return exists, nil
}

func (r *ReminderRepository) CountActive(ctx context.Context, userID int) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM email_reminders WHERE user_id = $1 AND status = 'pending'
	`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count reminders: %w", err)
	}
	return n, nil
}
