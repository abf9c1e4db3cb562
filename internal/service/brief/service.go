package brief

import (
	"context"
	"time"

	"go.uber.org/zap"

	"mailtriage/internal/apperr"
	"mailtriage/internal/model"
)

const (
	TimeOfDayMorning = "morning"
	TimeOfDayEvening = "evening"

	recentWindow   = 24 * time.Hour
	recentLimit    = 20
	openTasksLimit = 10
)

type Cache interface {
	Get(ctx context.Context, userID int, timeOfDay string) (*model.Dashboard, error)
	Set(ctx context.Context, userID int, d *model.Dashboard) error
}

type Summarizer interface {
	DailySummary(ctx context.Context, emails []*model.Email, tasks []*model.Task, timeOfDay string) *model.AIBrief
}

type RecentEmails interface {
	Since(ctx context.Context, userID int, since time.Time, limit int) ([]*model.Email, error)
}

type TaskLister interface {
	List(ctx context.Context, userID int, status model.TaskStatus) ([]*model.Task, error)
}

type Service struct {
	generator  *Generator
	cache      Cache
	summarizer Summarizer
	emails     RecentEmails
	tasks      TaskLister
	logger     *zap.Logger
	now        func() time.Time
}

func NewService(generator *Generator, cache Cache, summarizer Summarizer, emails RecentEmails, tasks TaskLister, logger *zap.Logger) *Service {
	return &Service{
		generator:  generator,
		cache:      cache,
		summarizer: summarizer,
		emails:     emails,
		tasks:      tasks,
		logger:     logger,
		now:        time.Now,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func ParseTimeOfDay(v string) (string, error) {
	switch v {
	case "":
		return TimeOfDayMorning, nil
	case TimeOfDayMorning, TimeOfDayEvening:
		return v, nil
	}
	return "", apperr.Validation("timeOfDay", "timeOfDay must be morning or evening")
}

// Dashboard 状态简报 + AI 摘要；缓存读写失败只记日志
func (s *Service) Dashboard(ctx context.Context, userID int, timeOfDay string, forceRefresh bool) (*model.Dashboard, error) {
	log := s.logger.With(zap.Int("user_id", userID), zap.String("time_of_day", timeOfDay))

	if !forceRefresh {
		cached, err := s.cache.Get(ctx, userID, timeOfDay)
		if err != nil {
			log.Warn("Failed to read brief cache", zap.Error(err))
		}
		if cached != nil {
			cached.Cached = true
			return cached, nil
		}
	}

	b, err := s.generator.Generate(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	recent, err := s.emails.Since(ctx, userID, now.Add(-recentWindow), recentLimit)
	if err != nil {
		return nil, err
	}
	tasks, err := s.tasks.List(ctx, userID, "")
	if err != nil {
		return nil, err
	}

	d := &model.Dashboard{
		Brief:       b,
		AIBrief:     s.summarizer.DailySummary(ctx, recent, openTasks(tasks), timeOfDay),
		TimeOfDay:   timeOfDay,
		GeneratedAt: now,
	}
	if err := s.cache.Set(ctx, userID, d); err != nil {
		log.Warn("Failed to write brief cache", zap.Error(err))
	}
	log.Debug("Dashboard generated", zap.String("state", string(b.State)), zap.Int("recent_emails", len(recent)))
	return d, nil
}

func openTasks(all []*model.Task) []*model.Task {
	out := make([]*model.Task, 0, openTasksLimit)
	for _, t := range all {
		if t.Status != model.TaskPending && t.Status != model.TaskInProgress {
			continue
		}
		out = append(out, t)
		if len(out) == openTasksLimit {
			break
		}
	}
	return out
}

// Brief 不经过缓存的状态简报
func (s *Service) Brief(ctx context.Context, userID int) (*model.Brief, error) {
	return s.generator.Generate(ctx, userID)
}
