package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"mailtriage/internal/model"
	"mailtriage/internal/service/notify"
	"mailtriage/pkg/metrics"
)

const (
	JobReminder = "reminder_tick"
	JobDecision = "decision_tick"

	defaultReminderBody = "Time to follow up on this email"
	decisionReason      = "You approved this action yesterday"
)

type Notifier interface {
	Send(ctx context.Context, userID int, title, body string, category model.NotificationCategory, data map[string]any) notify.Result
}

type DueReminders interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]*model.EmailReminder, error)
	MarkTriggered(ctx context.Context, rm *model.EmailReminder, delivered bool, reason string) error
}

type EmailLookup interface {
	Get(ctx context.Context, userID, id int) (*model.Email, error)
}

// ReminderJob 到期提醒：推送后无论结果如何都标记 triggered
type ReminderJob struct {
	reminders DueReminders
	emails    EmailLookup
	notifier  Notifier
	logger    *zap.Logger
	batch     int
	now       func() time.Time
}

func NewReminderJob(reminders DueReminders, emails EmailLookup, notifier Notifier, batch int, logger *zap.Logger) *ReminderJob {
	if batch <= 0 {
		batch = 100
	}
	return &ReminderJob{reminders: reminders, emails: emails, notifier: notifier, logger: logger, batch: batch, now: time.Now}
}

func (j *ReminderJob) WithClock(now func() time.Time) *ReminderJob {
	j.now = now
	return j
}

func (j *ReminderJob) Run(ctx context.Context) error {
	due, err := j.reminders.ListDue(ctx, j.now(), j.batch)
	if err != nil {
		return fmt.Errorf("failed to list due reminders: %w", err)
	}
	if len(due) == 0 {
		j.logger.Debug("No due reminders")
		return nil
	}
	j.logger.Info("Processing due reminders", zap.Int("count", len(due)))

	for _, rm := range due {
		j.trigger(ctx, rm)
	}
	return nil
}

func (j *ReminderJob) trigger(ctx context.Context, rm *model.EmailReminder) {
	log := j.logger.With(zap.Int("reminder_id", rm.ID), zap.Int("user_id", rm.UserID))

	subject := rm.EmailSubject
	data := map[string]any{
		"type":       string(model.CategoryReminder),
		"reminderId": rm.ID,
	}
	if rm.EmailID != nil {
		data["emailId"] = *rm.EmailID
		if e, err := j.emails.Get(ctx, rm.UserID, *rm.EmailID); err == nil {
			subject = e.Subject
		} else {
			log.Warn("Email for reminder not loaded", zap.Int("email_id", *rm.EmailID), zap.Error(err))
		}
	}

	body := rm.Reason
	if body == "" {
		body = defaultReminderBody
	}
	res := j.notifier.Send(ctx, rm.UserID, "⏰ Reminder: "+subject, body, model.CategoryReminder, data)

	if err := j.reminders.MarkTriggered(ctx, rm, res.Delivered, res.Reason); err != nil {
		metrics.IncrementSchedulerItem(JobReminder, "error")
		log.Error("Failed to mark reminder triggered", zap.Error(err))
		return
	}
	metrics.IncrementSchedulerItem(JobReminder, "triggered")
	log.Info("Reminder triggered", zap.Bool("delivered", res.Delivered), zap.String("reason", res.Reason))
}

type DueDecisions interface {
	AutoCompleteFromTasks(ctx context.Context, userID int) (int, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]*model.Decision, error)
}

// DecisionJob 先按任务完成情况对账，再对仍到期的决策推送追问，不改变决策状态
type DecisionJob struct {
	decisions DueDecisions
	notifier  Notifier
	logger    *zap.Logger
	batch     int
	now       func() time.Time
}

func NewDecisionJob(decisions DueDecisions, notifier Notifier, batch int, logger *zap.Logger) *DecisionJob {
	if batch <= 0 {
		batch = 50
	}
	return &DecisionJob{decisions: decisions, notifier: notifier, logger: logger, batch: batch, now: time.Now}
}

func (j *DecisionJob) WithClock(now func() time.Time) *DecisionJob {
	j.now = now
	return j
}

func (j *DecisionJob) Run(ctx context.Context) error {
	if _, err := j.decisions.AutoCompleteFromTasks(ctx, 0); err != nil {
		j.logger.Warn("Decision auto-complete failed before follow-ups", zap.Error(err))
	}

	due, err := j.decisions.ListDue(ctx, j.now(), j.batch)
	if err != nil {
		return fmt.Errorf("failed to list due decisions: %w", err)
	}
	if len(due) == 0 {
		j.logger.Debug("No decision follow-ups due")
		return nil
	}

	sent := 0
	for _, d := range due {
		res := j.notifier.Send(ctx, d.UserID,
			"📋 Yesterday's Decision",
			fmt.Sprintf("Did you complete: %s?", d.Text),
			model.CategoryDecisionFollowUp,
			map[string]any{
				"type":         string(model.CategoryDecisionFollowUp),
				"decisionId":   d.ID,
				"decisionText": d.Text,
				"reason":       decisionReason,
			},
		)
		result := "skipped"
		if res.Delivered {
			result = "delivered"
			sent++
		}
		metrics.IncrementSchedulerItem(JobDecision, result)
	}

	j.logger.Info("Decision follow-ups processed", zap.Int("due", len(due)), zap.Int("delivered", sent))
	return nil
}
