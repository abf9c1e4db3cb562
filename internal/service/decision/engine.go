// Package decision 追踪用户批准的建议动作，直到完成、放弃或被任务自动闭环
package decision

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"mailtriage/internal/apperr"
	"mailtriage/internal/model"
	"mailtriage/pkg/metrics"
)

const (
	// DefaultAutoCompleteBatch 单次对账最多检查的决策数
	DefaultAutoCompleteBatch = 200
	// PendingListLimit 客户端一次最多展示的待追问决策
	PendingListLimit = 3
	SourceEmail      = "EMAIL"
)

type DecisionStore interface {
	// Create task 非空时与决策在同一事务中写入，并回填 d.TaskID
	Create(ctx context.Context, d *model.Decision, task *model.Task) error
	Get(ctx context.Context, userID, id int) (*model.Decision, error)
	Update(ctx context.Context, d *model.Decision) error
	PendingWithCompletedTask(ctx context.Context, userID, limit int) ([]*model.Decision, error)
	Due(ctx context.Context, userID int, now time.Time, limit int) ([]*model.Decision, error)
}

type EmailLookup interface {
	Get(ctx context.Context, userID, id int) (*model.Email, error)
}

type TaskStore interface {
	Get(ctx context.Context, userID, id int) (*model.Task, error)
}

type Engine struct {
	decisions DecisionStore
	emails    EmailLookup
	tasks     TaskStore
	logger    *zap.Logger
	batch     int
	now       func() time.Time
}

func NewEngine(decisions DecisionStore, emails EmailLookup, tasks TaskStore, logger *zap.Logger) *Engine {
	return &Engine{
		decisions: decisions,
		emails:    emails,
		tasks:     tasks,
		logger:    logger,
		batch:     DefaultAutoCompleteBatch,
		now:       time.Now,
	}
}

func (e *Engine) WithAutoCompleteBatch(n int) *Engine {
	if n > 0 {
		e.batch = n
	}
	return e
}

func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// CreateFromApprovedAction 邮件被批准后按首个建议动作生成决策；不产生决策时返回 nil, nil
func (e *Engine) CreateFromApprovedAction(ctx context.Context, email *model.Email, action model.SuggestedAction) (*model.Decision, error) {
	if email == nil || email.UserAction != model.UserActionApproved {
		return nil, nil
	}
	typ, ok := model.DecisionTypeFor(action.Type)
	if !ok {
		return nil, nil
	}

	now := e.now()
	text := strings.TrimSpace(action.Description)
	if text == "" {
		text = email.Subject
	}
	d := &model.Decision{
		UserID:     email.UserID,
		Type:       typ,
		Text:       text,
		Status:     model.DecisionPending,
		FollowUpAt: now.Add(model.FollowUpDelay),
		Source:     SourceEmail,
		CreatedAt:  now,
	}

	var task *model.Task
	// 批准与创建之间邮件可能已被删除
	current, err := e.emails.Get(ctx, 0, email.ID)
	switch {
	case apperr.IsNotFound(err):
		d.Status = model.DecisionAbandoned
		e.logger.Warn("Email gone before decision creation, recording as abandoned",
			zap.Int("email_id", email.ID),
			zap.Int("user_id", email.UserID),
		)
	case err != nil:
		return nil, fmt.Errorf("failed to check email %d: %w", email.ID, err)
	default:
		id := current.ID
		d.EmailID = &id
		if typ == model.DecisionTask {
			task = &model.Task{
				UserID:      email.UserID,
				EmailID:     &id,
				Title:       text,
				Description: current.Summary,
				Priority:    current.Urgency,
				Status:      model.TaskPending,
			}
		}
	}

	if err := e.decisions.Create(ctx, d, task); err != nil {
		return nil, err
	}
	metrics.IncrementDecisionTransition(string(d.Status))
	return d, nil
}

// AutoCompleteFromTasks 关联任务已完成的 PENDING 决策自动完成，返回完成数量；userID 为 0 时对账所有用户
func (e *Engine) AutoCompleteFromTasks(ctx context.Context, userID int) (int, error) {
	pending, err := e.decisions.PendingWithCompletedTask(ctx, userID, e.batch)
	if err != nil {
		return 0, err
	}

	completed := 0
	for _, d := range pending {
		task, err := e.tasks.Get(ctx, 0, *d.TaskID)
		if apperr.IsNotFound(err) {
			continue
		}
		if err != nil {
			e.logger.Error("Failed to load task for decision",
				zap.Int("decision_id", d.ID),
				zap.Int("task_id", *d.TaskID),
				zap.Error(err),
			)
			continue
		}
		if task.Status != model.TaskCompleted {
			continue
		}

		at := e.now()
		if task.CompletedAt != nil {
			at = *task.CompletedAt
		}
		if err := d.Complete(at); err != nil {
			continue
		}
		if err := e.decisions.Update(ctx, d); err != nil {
			// 并发 resolve 已经改过状态时跳过
			if !errors.Is(err, apperr.ErrIllegalTransition) {
				e.logger.Error("Failed to auto-complete decision", zap.Int("decision_id", d.ID), zap.Error(err))
			}
			continue
		}
		metrics.IncrementDecisionTransition(string(d.Status))
		completed++
	}

	if completed > 0 {
		e.logger.Info("Auto-completed decisions from tasks",
			zap.Int("user_id", userID),
			zap.Int("count", completed),
		)
	}
	return completed, nil
}

// Resolve 用户处置：COMPLETED / SNOOZED / ABANDONED
func (e *Engine) Resolve(ctx context.Context, userID, id int, resolution string) (*model.Decision, error) {
	r, ok := model.ParseResolution(resolution)
	if !ok {
		return nil, apperr.Validation("resolution", "Invalid resolution. Must be: COMPLETED, SNOOZED, or ABANDONED")
	}

	d, err := e.decisions.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := d.Resolve(r, e.now()); err != nil {
		return nil, err
	}
	if err := e.decisions.Update(ctx, d); err != nil {
		return nil, err
	}

	metrics.IncrementDecisionTransition(string(r))
	e.logger.Info("Decision resolved",
		zap.Int("decision_id", d.ID),
		zap.Int("user_id", userID),
		zap.String("resolution", string(r)),
		zap.Int("snooze_count", d.SnoozeCount),
	)
	return d, nil
}

// ListPending 先对账再返回到期的 PENDING 决策，最早创建的在前
func (e *Engine) ListPending(ctx context.Context, userID int) ([]*model.Decision, error) {
	if _, err := e.AutoCompleteFromTasks(ctx, userID); err != nil {
		e.logger.Warn("Auto-complete failed before listing decisions", zap.Int("user_id", userID), zap.Error(err))
	}
	return e.decisions.Due(ctx, userID, e.now(), PendingListLimit)
}

// ListDue 调度器使用，不限用户
func (e *Engine) ListDue(ctx context.Context, now time.Time, limit int) ([]*model.Decision, error) {
	return e.decisions.Due(ctx, 0, now, limit)
}
