// Package brief 首页状态简报与带 AI 摘要的仪表盘
package brief

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"mailtriage/internal/model"
)

const (
	blockingLimit   = 5
	urgentReadLimit = 3
)

// blockingIntents 需要用户回复或处理的意图
var blockingIntents = []model.Intent{model.IntentQuestion, model.IntentTaskRequest, model.IntentMeetingRequest}

type EmailQuery interface {
	Blocking(ctx context.Context, userID, limit int) ([]*model.Email, int, error)
	UnreadHigh(ctx context.Context, userID int, exclude []model.Intent, limit int) ([]*model.Email, error)
}

type ReminderQuery interface {
	PendingUntil(ctx context.Context, userID int, until time.Time) ([]*model.EmailReminder, error)
}

type Generator struct {
	emails    EmailQuery
	reminders ReminderQuery
	logger    *zap.Logger
	loc       *time.Location
	now       func() time.Time
}

func NewGenerator(emails EmailQuery, reminders ReminderQuery, logger *zap.Logger) *Generator {
	return &Generator{emails: emails, reminders: reminders, logger: logger, loc: time.UTC, now: time.Now}
}

// WithLocation “今天”的边界按该时区计算
func (g *Generator) WithLocation(loc *time.Location) *Generator {
	if loc != nil {
		g.loc = loc
	}
	return g
}

func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate CRITICAL 命中后不再查询 WARNING 条件
func (g *Generator) Generate(ctx context.Context, userID int) (*model.Brief, error) {
	blocking, total, err := g.emails.Blocking(ctx, userID, blockingLimit)
	if err != nil {
		return nil, err
	}
	if total > 0 {
		return critical(blocking, total), nil
	}

	reminders, err := g.reminders.PendingUntil(ctx, userID, g.endOfDay())
	if err != nil {
		return nil, err
	}
	urgent, err := g.emails.UnreadHigh(ctx, userID, blockingIntents, urgentReadLimit)
	if err != nil {
		return nil, err
	}

	items := make([]model.BriefItem, 0, len(reminders)+len(urgent))
	for _, r := range reminders {
		items = append(items, reminderItem(r))
	}
	for _, e := range urgent {
		items = append(items, model.BriefItem{
			Type:     model.BriefItemUrgentRead,
			EmailID:  e.ID,
			Title:    "Read: " + e.Subject,
			Subtitle: "From " + displayName(e.From),
			At:       timePtr(e.ReceivedAt),
		})
	}
	if len(items) > 0 {
		return &model.Brief{
			State:    model.BriefWarning,
			Headline: fmt.Sprintf("🟠 %d Action Items for Today", len(items)),
			Subtext:  "Reminders and urgent updates.",
			Items:    items,
		}, nil
	}

	return &model.Brief{
		State:    model.BriefClear,
		Headline: "☕ You're Clear!",
		Subtext:  "Nothing urgent. Enjoy your focused work.",
		Items:    []model.BriefItem{},
	}, nil
}

func critical(emails []*model.Email, total int) *model.Brief {
	who := "1 Person"
	if total != 1 {
		who = fmt.Sprintf("%d People", total)
	}
	items := make([]model.BriefItem, 0, len(emails))
	for _, e := range emails {
		items = append(items, model.BriefItem{
			Type:     model.BriefItemBlocking,
			EmailID:  e.ID,
			Title:    fmt.Sprintf("%s needs %s", displayName(e.From), intentPhrase(e.Intent)),
			Subtitle: e.Subject,
			At:       timePtr(e.ReceivedAt),
		})
	}
	return &model.Brief{
		State:    model.BriefCritical,
		Headline: "🔥 You're blocking " + who,
		Subtext:  "Critical questions & approvals waiting for you.",
		Items:    items,
	}
}

func reminderItem(r *model.EmailReminder) model.BriefItem {
	label := r.Reason
	if label == "" {
		label = r.EmailSubject
	}
	if label == "" {
		label = "Task"
	}
	id := r.ID
	item := model.BriefItem{
		Type:       model.BriefItemReminder,
		ReminderID: &id,
		Title:      "Reminder: " + label,
		Subtitle:   "Due today",
		At:         timePtr(r.RemindAt),
	}
	if r.EmailID != nil {
		item.EmailID = *r.EmailID
	}
	return item
}

func (g *Generator) endOfDay() time.Time {
	y, m, d := g.now().In(g.loc).Date()
	return time.Date(y, m, d, 23, 59, 59, int(time.Second-time.Millisecond), g.loc)
}

func displayName(a model.Address) string {
	if a.Name != "" {
		return a.Name
	}
	return a.Email
}

// intentPhrase MEETING_REQUEST -> "meeting request"
func intentPhrase(i model.Intent) string {
	return strings.ToLower(strings.ReplaceAll(string(i), "_", " "))
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
