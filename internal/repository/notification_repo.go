package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mailtriage/internal/model"
)

type NotificationRepository struct {
	db *pgxpool.Pool
}

func NewNotificationRepository(db *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// GetSettings 没有记录时返回默认设置
func (r *NotificationRepository) GetSettings(ctx context.Context, userID int) (*model.NotificationSettings, error) {
	query := `
		SELECT COALESCE(push_token, ''), reminders, decision_follow_ups, urgent_emails,
		       notifications_sent_today, last_notification_sent_at
		FROM notification_settings
		WHERE user_id = $1
	`
	s := model.NotificationSettings{UserID: userID}
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&s.PushToken, &s.Reminders, &s.DecisionFollowUps, &s.UrgentEmails,
		&s.NotificationsSentToday, &s.LastNotificationSentAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.DefaultNotificationSettings(userID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get notification settings: %w", err)
	}
	return &s, nil
}

func (r *NotificationRepository) SaveToken(ctx context.Context, userID int, token string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO notification_settings (user_id, push_token)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET push_token = EXCLUDED.push_token, updated_at = NOW()
	`, userID, token)
	if err != nil {
		return fmt.Errorf("failed to save push token: %w", err)
	}
	return nil
}

func (r *NotificationRepository) ClearToken(ctx context.Context, userID int) error {
	_, err := r.db.Exec(ctx, `
		UPDATE notification_settings SET push_token = NULL, updated_at = NOW() WHERE user_id = $1
	`, userID)
	if err != nil {
		return fmt.Errorf("failed to clear push token: %w", err)
	}
	return nil
}

// UpdatePreferences 只更新分类开关
func (r *NotificationRepository) UpdatePreferences(ctx context.Context, s *model.NotificationSettings) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO notification_settings (user_id, reminders, decision_follow_ups, urgent_emails)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			reminders = EXCLUDED.reminders,
			decision_follow_ups = EXCLUDED.decision_follow_ups,
			urgent_emails = EXCLUDED.urgent_emails,
			updated_at = NOW()
	`, s.UserID, s.Reminders, s.DecisionFollowUps, s.UrgentEmails)
	if err != nil {
		return fmt.Errorf("failed to update notification preferences: %w", err)
	}
	return nil
}

// ReserveSlot 单条条件 UPDATE 占用当日名额：跨天从 1 重新计数，当日已达 limit 时不更新并返回 false
func (r *NotificationRepository) ReserveSlot(ctx context.Context, userID int, at, dayStart time.Time, limit int) (bool, error) {
	var sent int
	err := r.db.QueryRow(ctx, `
		UPDATE notification_settings
		SET notifications_sent_today = CASE
				WHEN last_notification_sent_at IS NULL OR last_notification_sent_at < $3 THEN 1
				ELSE notifications_sent_today + 1
			END,
			last_notification_sent_at = $2,
			updated_at = NOW()
		WHERE user_id = $1
		  AND (last_notification_sent_at IS NULL
		       OR last_notification_sent_at < $3
		       OR notifications_sent_today < $4)
		RETURNING notifications_sent_today
	`, userID, at, dayStart, limit).Scan(&sent)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to reserve notification slot: %w", err)
	}
	return true, nil
}

// ReleaseSlot 归还当日名额；已跨天时计数已重置，不做处理
func (r *NotificationRepository) ReleaseSlot(ctx context.Context, userID int, dayStart time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE notification_settings
		SET notifications_sent_today = GREATEST(notifications_sent_today - 1, 0),
			updated_at = NOW()
		WHERE user_id = $1 AND last_notification_sent_at >= $2
	`, userID, dayStart)
	if err != nil {
		return fmt.Errorf("failed to release notification slot: %w", err)
	}
	return nil
}

func (r *NotificationRepository) InsertLog(ctx context.Context, log *model.NotificationLog) error {
	query := `
		INSERT INTO notification_logs (user_id, category, title, body, delivered, reason, receipt_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`
	err := r.db.QueryRow(ctx, query,
		log.UserID, log.Category, log.Title, log.Body, log.Delivered, log.Reason, log.ReceiptID,
	).Scan(&log.ID, &log.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert notification log: %w", err)
	}
	return nil
}
