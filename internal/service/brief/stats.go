package brief

import (
	"context"

	"mailtriage/internal/model"
)

type EmailCounter interface {
	Stats(ctx context.Context, userID int, stats *model.DashboardStats) error
}

type Counter interface {
	Count(ctx context.Context, userID int) (int, error)
}

// CounterFunc 把仓储的计数方法适配为 Counter
type CounterFunc func(ctx context.Context, userID int) (int, error)

func (f CounterFunc) Count(ctx context.Context, userID int) (int, error) { return f(ctx, userID) }

type StatsService struct {
	emails    EmailCounter
	tasks     Counter
	decisions Counter
	reminders Counter
}

func NewStatsService(emails EmailCounter, openTasks, pendingDecisions, activeReminders Counter) *StatsService {
	return &StatsService{emails: emails, tasks: openTasks, decisions: pendingDecisions, reminders: activeReminders}
}

func (s *StatsService) Stats(ctx context.Context, userID int) (*model.DashboardStats, error) {
	var out model.DashboardStats
	if err := s.emails.Stats(ctx, userID, &out); err != nil {
		return nil, err
	}
	var err error
	if out.PendingTasks, err = s.tasks.Count(ctx, userID); err != nil {
		return nil, err
	}
	if out.PendingDecisions, err = s.decisions.Count(ctx, userID); err != nil {
		return nil, err
	}
	if out.ActiveReminders, err = s.reminders.Count(ctx, userID); err != nil {
		return nil, err
	}
	return &out, nil
}
