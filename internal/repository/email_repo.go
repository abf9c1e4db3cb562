package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
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

type EmailRepository struct {
	db         *pgxpool.Pool
	outboxRepo *outbox.Repository
	logger     *zap.Logger
}

func NewEmailRepository(db *pgxpool.Pool, outboxRepo *outbox.Repository, logger *zap.Logger) *EmailRepository {
	return &EmailRepository{db: db, outboxRepo: outboxRepo, logger: logger}
}

// EmailFilter 列表查询条件，空值表示不过滤
type EmailFilter struct {
	Urgency    model.Urgency
	UserAction model.UserAction
	Status     model.ProcessingStatus
	Limit      int
	Offset     int
}

const emailColumns = `
	id, user_id, external_message_id, thread_id, from_name, from_email, to_addresses,
	subject, body, body_html, snippet, attachments, received_at,
	intent, urgency, summary, confidence_score, reasoning, suggested_actions,
	signal_score, policy_overrides, draft_reply, model_version, processed_at,
	status, retry_count, last_error, user_action, is_read, last_surfaced_at,
	created_at, updated_at
`

func scanEmail(row pgx.Row) (*model.Email, error) {
	var (
		e                             model.Email
		to, attachments, actions, ovr []byte
	)
	err := row.Scan(
		&e.ID, &e.UserID, &e.ExternalMessageID, &e.ThreadID, &e.From.Name, &e.From.Email, &to,
		&e.Subject, &e.Body, &e.BodyHTML, &e.Snippet, &attachments, &e.ReceivedAt,
		&e.Intent, &e.Urgency, &e.Summary, &e.Confidence, &e.Reasoning, &actions,
		&e.SignalScore, &ovr, &e.DraftReply, &e.ModelVersion, &e.ProcessedAt,
		&e.Status, &e.RetryCount, &e.LastError, &e.UserAction, &e.IsRead, &e.LastSurfacedAt,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	for _, f := range []struct {
		raw []byte
		dst any
	}{
		{to, &e.To},
		{attachments, &e.Attachments},
		{actions, &e.SuggestedActions},
		{ovr, &e.Overrides},
	} {
		if len(f.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(f.raw, f.dst); err != nil {
			return nil, fmt.Errorf("failed to decode email %d json column: %w", e.ID, err)
		}
	}
	return &e, nil
}

func scanEmails(rows pgx.Rows) ([]*model.Email, error) {
	defer rows.Close()
	emails := []*model.Email{}
	for rows.Next() {
		e, err := scanEmail(rows)
		if err != nil {
			return nil, err
		}
		emails = append(emails, e)
	}
	return emails, rows.Err()
}

func jsonOrEmpty(v any, empty string) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(b) == "null" {
		return []byte(empty), nil
	}
	return b, nil
}

// InsertProcessing 以 processing 状态插入新邮件；external_message_id 已存在时返回 false，不做任何修改
func (r *EmailRepository) InsertProcessing(ctx context.Context, e *model.Email) (bool, error) {
	to, err := jsonOrEmpty(e.To, "[]")
	if err != nil {
		return false, fmt.Errorf("failed to encode recipients: %w", err)
	}
	attachments, err := jsonOrEmpty(e.Attachments, "[]")
	if err != nil {
		return false, fmt.Errorf("failed to encode attachments: %w", err)
	}

	query := `
		INSERT INTO emails (
			user_id, external_message_id, thread_id, from_name, from_email, to_addresses,
			subject, body, body_html, snippet, attachments, received_at, status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (external_message_id) DO NOTHING
		RETURNING id, created_at, updated_at
	`
	err = r.db.QueryRow(ctx, query,
		e.UserID, e.ExternalMessageID, e.ThreadID, e.From.Name, e.From.Email, to,
		e.Subject, e.Body, e.BodyHTML, e.Snippet, attachments, e.ReceivedAt, model.StatusProcessing,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		r.logger.Debug("Email already ingested",
			zap.String("external_message_id", e.ExternalMessageID),
		)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to insert email: %w", err)
	}
	e.Status = model.StatusProcessing
	e.UserAction = model.UserActionPending
	return true, nil
}

// Complete 写入最终分类，并在同一事务中写入 email.classified 事件
func (r *EmailRepository) Complete(ctx context.Context, e *model.Email) error {
	actions, err := jsonOrEmpty(e.SuggestedActions, "[]")
	if err != nil {
		return fmt.Errorf("failed to encode suggested actions: %w", err)
	}
	overrides, err := jsonOrEmpty(e.Overrides, "[]")
	if err != nil {
		return fmt.Errorf("failed to encode policy overrides: %w", err)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE emails
		SET intent = $2, urgency = $3, summary = $4, confidence_score = $5, reasoning = $6,
		    suggested_actions = $7, signal_score = $8, policy_overrides = $9, model_version = $10,
		    processed_at = $11, status = $12, last_error = '', updated_at = NOW()
		WHERE id = $1 AND status = 'processing'
	`
	tag, err := tx.Exec(ctx, query,
		e.ID, e.Intent, e.Urgency, e.Summary, e.Confidence, e.Reasoning,
		actions, e.SignalScore, overrides, e.ModelVersion,
		e.ProcessedAt, model.StatusCompleted,
	)
	if err != nil {
		return fmt.Errorf("failed to complete email: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("email %d is not processing: %w", e.ID, apperr.ErrIllegalTransition)
	}

	processedAt := time.Now()
	if e.ProcessedAt != nil {
		processedAt = *e.ProcessedAt
	}
	payload := contracts.EmailClassifiedPayload{
		EmailID:     e.ID,
		UserID:      e.UserID,
		Subject:     e.Subject,
		FromName:    e.From.Name,
		FromEmail:   e.From.Email,
		Intent:      string(e.Intent),
		Urgency:     string(e.Urgency),
		Summary:     e.Summary,
		SignalScore: e.SignalScore,
		Overrides:   e.Overrides,
		ProcessedAt: processedAt,
	}
	if err := outbox.InsertEventInTx(ctx, tx, r.outboxRepo, "email", int64(e.ID), mq.RoutingEmailClassified, payload); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// MarkFailed 保留邮件记录，累加重试次数并记录错误
func (r *EmailRepository) MarkFailed(ctx context.Context, e *model.Email) error {
	query := `
		UPDATE emails
		SET status = $2, retry_count = $3, last_error = $4, updated_at = NOW()
		WHERE id = $1
	`
	if _, err := r.db.Exec(ctx, query, e.ID, model.StatusFailed, e.RetryCount, e.LastError); err != nil {
		return fmt.Errorf("failed to mark email %d failed: %w", e.ID, err)
	}
	return nil
}

// Get userID 为 0 时不校验归属
func (r *EmailRepository) Get(ctx context.Context, userID, id int) (*model.Email, error) {
	query := `SELECT ` + emailColumns + ` FROM emails WHERE id = $1 AND ($2 = 0 OR user_id = $2)`
	e, err := scanEmail(r.db.QueryRow(ctx, query, id, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("email", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get email %d: %w", id, err)
	}
	return e, nil
}

func (r *EmailRepository) List(ctx context.Context, userID int, f EmailFilter) ([]*model.Email, error) {
	conds := []string{"user_id = $1"}
	args := []any{userID}
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.Urgency != "" {
		add("urgency = $%d", f.Urgency)
	}
	if f.UserAction != "" {
		add("user_action = $%d", f.UserAction)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	args = append(args, limit, f.Offset)

	query := fmt.Sprintf(`SELECT %s FROM emails WHERE %s ORDER BY received_at DESC LIMIT $%d OFFSET $%d`,
		emailColumns, strings.Join(conds, " AND "), len(args)-1, len(args))
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list emails: %w", err)
	}
	return scanEmails(rows)
}

// UpdateUserAction 只更新仍为 pending 的邮件，并发处置时后到者失败
func (r *EmailRepository) UpdateUserAction(ctx context.Context, e *model.Email, log *model.UserActionLog) error {
	suggestion, err := json.Marshal(log.AISuggestion)
	if err != nil {
		return fmt.Errorf("failed to encode ai suggestion: %w", err)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE emails SET user_action = $2, updated_at = NOW()
		WHERE id = $1 AND user_action = 'pending'
	`, e.ID, e.UserAction)
	if err != nil {
		return fmt.Errorf("failed to update user action: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("email %d already actioned: %w", e.ID, apperr.ErrIllegalTransition)
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO user_action_logs (user_id, email_id, action, ai_suggestion)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, log.UserID, log.EmailID, log.Action, suggestion).Scan(&log.ID, &log.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert user action log: %w", err)
	}

	return tx.Commit(ctx)
}

// MarkRead 打开详情时标记已读并记录展示时间
func (r *EmailRepository) MarkRead(ctx context.Context, id int, at time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE emails SET is_read = TRUE, last_surfaced_at = $2, updated_at = NOW()
		WHERE id = $1
	`, id, at)
	if err != nil {
		return fmt.Errorf("failed to mark email %d read: %w", id, err)
	}
	return nil
}

func (r *EmailRepository) SetDraftReply(ctx context.Context, id int, draft string) error {
	_, err := r.db.Exec(ctx, `UPDATE emails SET draft_reply = $2, updated_at = NOW() WHERE id = $1`, id, draft)
	if err != nil {
		return fmt.Errorf("failed to save draft reply for email %d: %w", id, err)
	}
	return nil
}

// Delete 先取消该邮件的 pending 提醒，再删除邮件
func (r *EmailRepository) Delete(ctx context.Context, userID, id int) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		UPDATE email_reminders SET status = 'cancelled', updated_at = NOW()
		WHERE email_id = $1 AND status = 'pending'
	`, id); err != nil {
		return fmt.Errorf("failed to cancel reminders for email %d: %w", id, err)
	}

	tag, err := tx.Exec(ctx, `DELETE FROM emails WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete email %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("email", id)
	}
	return tx.Commit(ctx)
}

// Blocking 需要用户回复/处理的高优邮件，返回前 limit 条及总数
func (r *EmailRepository) Blocking(ctx context.Context, userID, limit int) ([]*model.Email, int, error) {
	query := `
		SELECT ` + emailColumns + `, COUNT(*) OVER () AS total
		FROM emails
		WHERE user_id = $1
		  AND intent IN ('QUESTION', 'TASK_REQUEST', 'MEETING_REQUEST')
		  AND urgency = 'HIGH'
		  AND (is_read = FALSE OR user_action = 'pending')
		ORDER BY received_at DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query blocking emails: %w", err)
	}
	defer rows.Close()

	emails := []*model.Email{}
	total := 0
	for rows.Next() {
		e, err := scanEmail(withTotal{rows, &total})
		if err != nil {
			return nil, 0, err
		}
		emails = append(emails, e)
	}
	return emails, total, rows.Err()
}

// withTotal 把窗口函数列追加到 scanEmail 的目标之后
type withTotal struct {
	pgx.Rows
	total *int
}

func (w withTotal) Scan(dest ...any) error {
	return w.Rows.Scan(append(dest, w.total)...)
}

// UnreadHigh 未读的高优邮件，排除指定意图
func (r *EmailRepository) UnreadHigh(ctx context.Context, userID int, exclude []model.Intent, limit int) ([]*model.Email, error) {
	excluded := make([]string, len(exclude))
	for i, in := range exclude {
		excluded[i] = string(in)
	}
	query := `
		SELECT ` + emailColumns + `
		FROM emails
		WHERE user_id = $1 AND urgency = 'HIGH' AND is_read = FALSE
		  AND NOT (intent = ANY($2))
		ORDER BY received_at DESC
		LIMIT $3
	`
	rows, err := r.db.Query(ctx, query, userID, excluded, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query unread high emails: %w", err)
	}
	return scanEmails(rows)
}

// Since 指定时间之后收到的邮件，用于 AI 摘要
func (r *EmailRepository) Since(ctx context.Context, userID int, since time.Time, limit int) ([]*model.Email, error) {
	query := `
		SELECT ` + emailColumns + `
		FROM emails
		WHERE user_id = $1 AND received_at >= $2
		ORDER BY received_at DESC
		LIMIT $3
	`
	rows, err := r.db.Query(ctx, query, userID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent emails: %w", err)
	}
	return scanEmails(rows)
}

// Stats 仪表盘邮件计数
func (r *EmailRepository) Stats(ctx context.Context, userID int, stats *model.DashboardStats) error {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE is_read = FALSE),
			COUNT(*) FILTER (WHERE urgency = 'HIGH'),
			COUNT(*) FILTER (WHERE user_action = 'pending' AND status = 'completed'),
			COUNT(*) FILTER (WHERE status = 'failed')
		FROM emails
		WHERE user_id = $1
	`
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&stats.TotalEmails, &stats.UnreadEmails, &stats.HighUrgency, &stats.PendingActions, &stats.FailedEmails,
	)
	if err != nil {
		return fmt.Errorf("failed to query email stats: %w", err)
	}
	return nil
}
