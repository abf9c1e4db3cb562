// Package task 用户任务，决策引擎据此自动完成 TASK 类决策
package task

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"mailtriage/internal/apperr"
	"mailtriage/internal/model"
)

type Store interface {
	Insert(ctx context.Context, t *model.Task) error
	Get(ctx context.Context, userID, id int) (*model.Task, error)
	List(ctx context.Context, userID int, status model.TaskStatus) ([]*model.Task, error)
	UpdateStatus(ctx context.Context, t *model.Task, from model.TaskStatus) error
}

type EmailLookup interface {
	Get(ctx context.Context, userID, id int) (*model.Email, error)
}

type CreateRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Priority    string     `json:"priority"`
	DueDate     *time.Time `json:"dueDate"`
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

func (s *Service) List(ctx context.Context, userID int, status string) ([]*model.Task, error) {
	var st model.TaskStatus
	if status != "" {
		parsed, ok := model.ParseTaskStatus(status)
		if !ok {
			return nil, apperr.Validation("status", "status must be one of pending, in_progress, completed, cancelled")
		}
		st = parsed
	}
	return s.store.List(ctx, userID, st)
}

func (s *Service) Create(ctx context.Context, userID int, req CreateRequest) (*model.Task, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, apperr.Validation("title", "Task title is required")
	}
	t := &model.Task{
		UserID:      userID,
		Title:       title,
		Description: req.Description,
		Priority:    model.ParseUrgency(req.Priority),
		Status:      model.TaskPending,
		DueDate:     req.DueDate,
	}
	if err := s.store.Insert(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// FromEmail 优先使用 CREATE_TASK 建议作为标题，否则用邮件主题
func (s *Service) FromEmail(ctx context.Context, userID, emailID int) (*model.Task, error) {
	e, err := s.emails.Get(ctx, userID, emailID)
	if err != nil {
		return nil, err
	}

	title, priority := "", model.UrgencyMedium
	for _, a := range e.SuggestedActions {
		if a.Type == model.ActionCreateTask && strings.TrimSpace(a.Description) != "" {
			title, priority = a.Description, e.Urgency
			break
		}
	}
	if title == "" {
		title = e.Subject
	}
	if title == "" {
		title = "Task from email"
	}

	id := e.ID
	t := &model.Task{
		UserID:      userID,
		EmailID:     &id,
		Title:       title,
		Description: fmt.Sprintf("From email: %s\n\nFrom: %s", e.Subject, e.From.String()),
		Priority:    priority,
		Status:      model.TaskPending,
	}
	if err := s.store.Insert(ctx, t); err != nil {
		return nil, err
	}
	s.logger.Info("Task created from email",
		zap.Int("task_id", t.ID),
		zap.Int("email_id", id),
		zap.Int("user_id", userID),
	)
	return t, nil
}

func (s *Service) UpdateStatus(ctx context.Context, userID, id int, status string) (*model.Task, error) {
	to, ok := model.ParseTaskStatus(status)
	if !ok {
		return nil, apperr.Validation("status", "status must be one of pending, in_progress, completed, cancelled")
	}
	t, err := s.store.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	from := t.Status
	if err := t.Transition(to, s.now()); err != nil {
		return nil, err
	}
	if err := s.store.UpdateStatus(ctx, t, from); err != nil {
		return nil, err
	}
	return t, nil
}
