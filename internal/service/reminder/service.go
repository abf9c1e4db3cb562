// Package reminder 用户为邮件设置的定时提醒
package reminder

import (
	"context"
	"time"

	"go.uber.org/zap"

	"mailtriage/internal/apperr"
	"mailtriage/internal/model"
)

type Store interface {
	Create(ctx context.Context, rm *model.EmailReminder) error
	Get(ctx context.Context, userID, id int) (*model.EmailReminder, error)
	Cancel(ctx context.Context, rm *model.EmailReminder) error
	MarkTriggered(ctx context.Context, rm *model.EmailReminder, delivered bool, reason string) error
	List(ctx context.Context, userID int, status model.ReminderStatus) ([]*model.EmailReminder, error)
	Due(ctx context.Context, now time.Time, limit int) ([]*model.EmailReminder, error)
	CancelForEmail(ctx context.Context, emailID int) (int64, error)
	HasActive(ctx context.Context, emailID int) (bool, error)
	CountActive(ctx context.Context, userID int) (int, error)
}

type EmailLookup interface {
	Get(ctx context.Context, userID, id int) (*model.Email, error)
}

// CreateRequest 请求体，字段缺失时为 nil
type CreateRequest struct {
	EmailID  *int       `json:"emailId"`
	RemindAt *time.Time `json:"remindAt"`
	Reason   string     `json:"reason"`
}

type Service struct {
	store  Store
	emails EmailLookup
	logger *zap.Logger
	now    func() time.Time
}

func NewService(store Store, emails EmailLookup, logger *zap.Logger) *Service {
	return &Service{store: store, emails: emails, logger: logger, now: time.Now}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Create 校验顺序：必填字段、邮件归属、时间在未来、唯一性
func (s *Service) Create(ctx context.Context, userID int, req CreateRequest) (*model.EmailReminder, error) {
	if req.EmailID == nil || *req.EmailID <= 0 || req.RemindAt == nil || req.RemindAt.IsZero() {
		return nil, apperr.Validation("", "Email ID and remind time are required")
	}

	email, err := s.emails.Get(ctx, userID, *req.EmailID)
	if err != nil {
		return nil, err
	}
	if !req.RemindAt.After(s.now()) {
		return nil, apperr.Validation("remindAt", "Reminder time must be in the future")
	}

	emailID := email.ID
	rm := &model.EmailReminder{
		UserID:       userID,
		EmailID:      &emailID,
		RemindAt:     *req.RemindAt,
		Status:       model.ReminderPending,
		Reason:       req.Reason,
		EmailSubject: email.Subject,
	}
	if err := s.store.Create(ctx, rm); err != nil {
		return nil, err
	}

	s.logger.Info("Reminder created",
		zap.Int("reminder_id", rm.ID),
		zap.Int("email_id", emailID),
		zap.Int("user_id", userID),
		zap.Time("remind_at", rm.RemindAt),
	)
	return rm, nil
}

func (s *Service) Cancel(ctx context.Context, userID, id int) (*model.EmailReminder, error) {
	rm, err := s.store.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := rm.Cancel(); err != nil {
		return nil, err
	}
	if err := s.store.Cancel(ctx, rm); err != nil {
		return nil, err
	}
	return rm, nil
}

// List status 为空时默认 pending
func (s *Service) List(ctx context.Context, userID int, status string) ([]*model.EmailReminder, error) {
	st := model.ReminderPending
	if status != "" {
		parsed, ok := model.ParseReminderStatus(status)
		if !ok {
			return nil, apperr.Validation("status", "status must be one of pending, triggered, cancelled")
		}
		st = parsed
	}
	return s.store.List(ctx, userID, st)
}

func (s *Service) ListDue(ctx context.Context, now time.Time, limit int) ([]*model.EmailReminder, error) {
	return s.store.Due(ctx, now, limit)
}

// MarkTriggered 与投递结果无关，到期即标记 triggered
func (s *Service) MarkTriggered(ctx context.Context, rm *model.EmailReminder, delivered bool, reason string) error {
	if err := rm.Trigger(s.now()); err != nil {
		return err
	}
	return s.store.MarkTriggered(ctx, rm, delivered, reason)
}

// CancelForEmail 邮件删除前调用，避免遗留提醒
func (s *Service) CancelForEmail(ctx context.Context, emailID int) (int64, error) {
	n, err := s.store.CancelForEmail(ctx, emailID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("Cancelled reminders for deleted email",
			zap.Int("email_id", emailID),
			zap.Int64("count", n),
		)
	}
	return n, nil
}

func (s *Service) HasActive(ctx context.Context, emailID int) (bool, error) {
	return s.store.HasActive(ctx, emailID)
}

func (s *Service) ActiveCount(ctx context.Context, userID int) (int, error) {
	return s.store.CountActive(ctx, userID)
}
