// Package email 用户侧的邮件操作：同步、查看、处置、草稿与删除
package email

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"mailtriage/internal/apperr"
	"mailtriage/internal/mailsource"
	"mailtriage/internal/model"
	"mailtriage/internal/repository"
	"mailtriage/internal/service/ingest"
	"mailtriage/pkg/util"
)

const (
	DefaultMaxResults = 10
	MaxResultsCap     = 50
)

type Store interface {
	Get(ctx context.Context, userID, id int) (*model.Email, error)
	List(ctx context.Context, userID int, f repository.EmailFilter) ([]*model.Email, error)
	UpdateUserAction(ctx context.Context, e *model.Email, log *model.UserActionLog) error
	MarkRead(ctx context.Context, id int, at time.Time) error
	SetDraftReply(ctx context.Context, id int, draft string) error
	Delete(ctx context.Context, userID, id int) error
}

type Ingester interface {
	Ingest(ctx context.Context, userID int, msgs []mailsource.RawMessage) *ingest.Result
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64) (bool, error)
}

type DecisionCreator interface {
	CreateFromApprovedAction(ctx context.Context, email *model.Email, action model.SuggestedAction) (*model.Decision, error)
}

type Drafter interface {
	DraftReply(ctx context.Context, e *model.Email) (string, error)
}

type ReminderCanceller interface {
	CancelForEmail(ctx context.Context, emailID int) (int64, error)
}

type CacheInvalidator interface {
	Invalidate(ctx context.Context, userID int) error
}

// Failure 同步失败的单封邮件
type Failure struct {
	ExternalMessageID string `json:"externalMessageId"`
	Reason            string `json:"reason"`
}

type SyncResult struct {
	Processed int       `json:"processed"`
	Skipped   int       `json:"skipped"`
	Failed    int       `json:"failed"`
	Failures  []Failure `json:"failures"`
}

type ActionResult struct {
	Email    *model.Email    `json:"email"`
	Decision *model.Decision `json:"decision,omitempty"`
}

type Service struct {
	store      Store
	source     mailsource.Source
	pipeline   Ingester
	limiter    RateLimiter
	decisions  DecisionCreator
	drafter    Drafter
	reminders  ReminderCanceller
	cache      CacheInvalidator
	logger     *zap.Logger
	syncLimit  int64
	defaultMax int
	maxCap     int
	now        func() time.Time
}

func NewService(
	store Store,
	source mailsource.Source,
	pipeline Ingester,
	limiter RateLimiter,
	decisions DecisionCreator,
	drafter Drafter,
	reminders ReminderCanceller,
	cache CacheInvalidator,
	logger *zap.Logger,
) *Service {
	return &Service{
		store:      store,
		source:     source,
		pipeline:   pipeline,
		limiter:    limiter,
		decisions:  decisions,
		drafter:    drafter,
		reminders:  reminders,
		cache:      cache,
		logger:     logger,
		syncLimit:  3,
		defaultMax: DefaultMaxResults,
		maxCap:     MaxResultsCap,
		now:        time.Now,
	}
}

// WithSyncLimit 每个限流窗口内允许的同步次数
func (s *Service) WithSyncLimit(n int64) *Service {
	if n > 0 {
		s.syncLimit = n
	}
	return s
}

func (s *Service) WithMaxResults(def, limit int) *Service {
	if def > 0 {
		s.defaultMax = def
	}
	if limit > 0 {
		s.maxCap = limit
	}
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Sync 从邮件源拉取并走分类流水线
func (s *Service) Sync(ctx context.Context, userID, maxResults int) (*SyncResult, error) {
	if maxResults < 0 {
		return nil, apperr.Validation("maxResults", "maxResults must be positive")
	}
	if maxResults == 0 {
		maxResults = s.defaultMax
	}
	if maxResults > s.maxCap {
		maxResults = s.maxCap
	}

	allowed, err := s.limiter.Allow(ctx, util.FormatRateLimitKey("sync", userID), s.syncLimit)
	if err != nil {
		// Redis 不可用时不阻塞同步
		s.logger.Warn("Rate limiter unavailable", zap.Int("user_id", userID), zap.Error(err))
	} else if !allowed {
		return nil, fmt.Errorf("sync limit reached for user %d: %w", userID, apperr.ErrRateLimited)
	}

	msgs, err := s.source.Fetch(ctx, userID, maxResults)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	res := s.pipeline.Ingest(ctx, userID, msgs)
	out := &SyncResult{
		Processed: len(res.Processed),
		Skipped:   len(res.Skipped),
		Failed:    len(res.Failed),
		Failures:  make([]Failure, 0, len(res.Failed)),
	}
	for _, f := range res.Failed {
		out.Failures = append(out.Failures, Failure{ExternalMessageID: f.ExternalMessageID, Reason: f.Reason})
	}

	if out.Processed > 0 {
		s.invalidate(ctx, userID)
	}
	s.logger.Info("Mailbox synced",
		zap.Int("user_id", userID),
		zap.Int("fetched", len(msgs)),
		zap.Int("processed", out.Processed),
		zap.Int("skipped", out.Skipped),
		zap.Int("failed", out.Failed),
	)
	return out, nil
}

// Get 打开详情即标记已读
func (s *Service) Get(ctx context.Context, userID, id int) (*model.Email, error) {
	e, err := s.store.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if !e.IsRead {
		now := s.now()
		if err := s.store.MarkRead(ctx, e.ID, now); err != nil {
			s.logger.Warn("Failed to mark email read", zap.Int("email_id", e.ID), zap.Error(err))
		} else {
			e.IsRead = true
			e.LastSurfacedAt = &now
		}
	}
	return e, nil
}

func (s *Service) List(ctx context.Context, userID int, f repository.EmailFilter) ([]*model.Email, error) {
	return s.store.List(ctx, userID, f)
}

// Action 用户处置 AI 建议；approved 时按首个建议动作生成决策
func (s *Service) Action(ctx context.Context, userID, id int, action string) (*ActionResult, error) {
	a, ok := model.ParseUserAction(action)
	if !ok || a == model.UserActionPending {
		return nil, apperr.Validation("action", "Invalid action. Must be: approved, rejected, or ignored")
	}

	e, err := s.store.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := e.ApplyUserAction(a); err != nil {
		return nil, err
	}

	primary, hasAction := e.PrimaryAction()
	log := &model.UserActionLog{
		UserID:  userID,
		EmailID: e.ID,
		Action:  a,
		AISuggestion: model.AISuggestion{
			Intent:  e.Intent,
			Urgency: e.Urgency,
		},
	}
	if hasAction {
		log.AISuggestion.Action = &primary
	}
	if err := s.store.UpdateUserAction(ctx, e, log); err != nil {
		return nil, err
	}

	res := &ActionResult{Email: e}
	if a == model.UserActionApproved && hasAction {
		d, err := s.decisions.CreateFromApprovedAction(ctx, e, primary)
		if err != nil {
			// 处置已提交，决策失败不回滚
			s.logger.Error("Failed to create decision for approved email",
				zap.Int("email_id", e.ID),
				zap.Int("user_id", userID),
				zap.Error(err),
			)
		}
		res.Decision = d
	}
	s.invalidate(ctx, userID)

	s.logger.Info("Email actioned",
		zap.Int("email_id", e.ID),
		zap.Int("user_id", userID),
		zap.String("action", string(a)),
	)
	return res, nil
}

// Draft 首次请求时生成回复草稿并保存
func (s *Service) Draft(ctx context.Context, userID, id int) (string, error) {
	e, err := s.store.Get(ctx, userID, id)
	if err != nil {
		return "", err
	}
	if e.DraftReply != nil && *e.DraftReply != "" {
		return *e.DraftReply, nil
	}
	if !e.Intent.NeedsReply() {
		return "", apperr.Validation("", "No draft reply available for this email")
	}

	draft, err := s.drafter.DraftReply(ctx, e)
	if err != nil {
		return "", err
	}
	draft = strings.TrimSpace(draft)
	if draft == "" {
		return "", apperr.Validation("", "No draft reply available for this email")
	}
	if err := s.store.SetDraftReply(ctx, e.ID, draft); err != nil {
		return "", err
	}
	return draft, nil
}

// Delete 先取消 pending 提醒，避免删除后仍然触发
func (s *Service) Delete(ctx context.Context, userID, id int) error {
	if _, err := s.store.Get(ctx, userID, id); err != nil {
		return err
	}
	if _, err := s.reminders.CancelForEmail(ctx, id); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, userID, id); err != nil {
		return err
	}
	s.invalidate(ctx, userID)
	s.logger.Info("Email deleted", zap.Int("email_id", id), zap.Int("user_id", userID))
	return nil
}

func (s *Service) invalidate(ctx context.Context, userID int) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, userID); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("Failed to invalidate brief cache", zap.Int("user_id", userID), zap.Error(err))
	}
}
