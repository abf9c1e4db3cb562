package brief

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mailtriage/internal/model"
)

var now = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type fakeEmails struct {
	blocking      []*model.Email
	unreadHigh    []*model.Email
	recent        []*model.Email
	excluded      []model.Intent
	warningCalled bool
}

func (f *fakeEmails) Blocking(_ context.Context, _, limit int) ([]*model.Email, int, error) {
	out := f.blocking
	if len(out) > limit {
		out = out[:limit]
	}
	return out, len(f.blocking), nil
}

func (f *fakeEmails) UnreadHigh(_ context.Context, _ int, exclude []model.Intent, limit int) ([]*model.Email, error) {
	f.warningCalled = true
	f.excluded = exclude
	out := f.unreadHigh
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeEmails) Since(_ context.Context, _ int, _ time.Time, _ int) ([]*model.Email, error) {
	return f.recent, nil
}

type fakeReminders struct {
	reminders []*model.EmailReminder
	until     time.Time
	called    bool
}

func (f *fakeReminders) PendingUntil(_ context.Context, _ int, until time.Time) ([]*model.EmailReminder, error) {
	f.called = true
	f.until = until
	out := []*model.EmailReminder{}
	for _, r := range f.reminders {
		if !r.RemindAt.After(until) {
			out = append(out, r)
		}
	}
	return out, nil
}

func blockingEmail(id int, intent model.Intent) *model.Email {
	return &model.Email{
		ID:      id,
		From:    model.Address{Name: "Sarah", Email: "sarah@corp.com"},
		Subject: "Need sign-off",
		Classification: model.Classification{
			Intent:  intent,
			Urgency: model.UrgencyHigh,
		},
	}
}

func newTestGenerator(emails *fakeEmails, reminders *fakeReminders) *Generator {
	return NewGenerator(emails, reminders, zap.NewNop()).WithClock(func() time.Time { return now })
}

func TestGenerate_CriticalShortCircuits(t *testing.T) {
	emails := &fakeEmails{blocking: []*model.Email{blockingEmail(1, model.IntentMeetingRequest)}}
	reminders := &fakeReminders{}

	b, err := newTestGenerator(emails, reminders).Generate(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, model.BriefCritical, b.State)
	assert.Equal(t, "🔥 You're blocking 1 Person", b.Headline)
	require.Len(t, b.Items, 1)
	assert.Equal(t, model.BriefItemBlocking, b.Items[0].Type)
	assert.Equal(t, "Sarah needs meeting request", b.Items[0].Title)
	assert.Equal(t, "Need sign-off", b.Items[0].Subtitle)

	assert.False(t, reminders.called)
	assert.False(t, emails.warningCalled)
}

func TestGenerate_CriticalCountsAllBlocking(t *testing.T) {
	emails := &fakeEmails{}
	for i := 1; i <= 7; i++ {
		emails.blocking = append(emails.blocking, blockingEmail(i, model.IntentQuestion))
	}

	b, err := newTestGenerator(emails, &fakeReminders{}).Generate(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "🔥 You're blocking 7 People", b.Headline)
	assert.Len(t, b.Items, blockingLimit)
}

func TestGenerate_Warning(t *testing.T) {
	emailID := 3
	reminders := &fakeReminders{reminders: []*model.EmailReminder{
		{ID: 10, EmailID: &emailID, RemindAt: now.Add(2 * time.Hour), EmailSubject: "Contract"},
		{ID: 11, RemindAt: now.Add(3 * time.Hour), Reason: "Call back"},
		{ID: 12, RemindAt: now.Add(26 * time.Hour), Reason: "tomorrow"},
	}}
	emails := &fakeEmails{unreadHigh: []*model.Email{
		{ID: 4, Subject: "Server down", From: model.Address{Email: "ops@corp.com"}},
	}}

	b, err := newTestGenerator(emails, reminders).Generate(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, model.BriefWarning, b.State)
	assert.Equal(t, "🟠 3 Action Items for Today", b.Headline)
	require.Len(t, b.Items, 3)

	assert.Equal(t, "Reminder: Contract", b.Items[0].Title)
	assert.Equal(t, 3, b.Items[0].EmailID)
	assert.Equal(t, 10, *b.Items[0].ReminderID)
	assert.Equal(t, "Reminder: Call back", b.Items[1].Title)
	assert.Equal(t, model.BriefItemUrgentRead, b.Items[2].Type)
	assert.Equal(t, "Read: Server down", b.Items[2].Title)
	assert.Equal(t, "From ops@corp.com", b.Items[2].Subtitle)

	assert.ElementsMatch(t, blockingIntents, emails.excluded)
	assert.Equal(t, time.Date(2026, 3, 2, 23, 59, 59, 999000000, time.UTC), reminders.until)
}

func TestGenerate_EndOfDayInLocation(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)
	reminders := &fakeReminders{}
	g := newTestGenerator(&fakeEmails{}, reminders).WithLocation(loc)

	_, err := g.Generate(context.Background(), 7)
	require.NoError(t, err)
	// 09:00 UTC 是当地 04:00，当天结束于 03-03 04:59:59.999 UTC
	assert.True(t, reminders.until.Equal(time.Date(2026, 3, 3, 4, 59, 59, 999000000, time.UTC)))
}

func TestGenerate_Clear(t *testing.T) {
	b, err := newTestGenerator(&fakeEmails{}, &fakeReminders{}).Generate(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, model.BriefClear, b.State)
	assert.Equal(t, "☕ You're Clear!", b.Headline)
	assert.Equal(t, "Nothing urgent. Enjoy your focused work.", b.Subtext)
	assert.NotNil(t, b.Items)
	assert.Empty(t, b.Items)
}

type memCache struct {
	stored map[int]*model.Dashboard
	sets   int
}

func (c *memCache) Get(_ context.Context, userID int, timeOfDay string) (*model.Dashboard, error) {
	d, ok := c.stored[userID]
	if !ok || d.TimeOfDay != timeOfDay {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (c *memCache) Set(_ context.Context, userID int, d *model.Dashboard) error {
	c.sets++
	cp := *d
	c.stored[userID] = &cp
	return nil
}

type fakeSummarizer struct {
	calls int
	tasks []*model.Task
}

func (f *fakeSummarizer) DailySummary(_ context.Context, _ []*model.Email, tasks []*model.Task, timeOfDay string) *model.AIBrief {
	f.calls++
	f.tasks = tasks
	return &model.AIBrief{Summary: timeOfDay + " summary"}
}

type fakeTasks []*model.Task

func (f fakeTasks) List(context.Context, int, model.TaskStatus) ([]*model.Task, error) { return f, nil }

func TestDashboard_Cache(t *testing.T) {
	cache := &memCache{stored: map[int]*model.Dashboard{}}
	sum := &fakeSummarizer{}
	tasks := fakeTasks{
		{ID: 1, Status: model.TaskPending},
		{ID: 2, Status: model.TaskCompleted},
		{ID: 3, Status: model.TaskInProgress},
	}
	svc := NewService(newTestGenerator(&fakeEmails{}, &fakeReminders{}), cache, sum, &fakeEmails{}, tasks, zap.NewNop()).
		WithClock(func() time.Time { return now })
	ctx := context.Background()

	d, err := svc.Dashboard(ctx, 7, TimeOfDayMorning, false)
	require.NoError(t, err)
	assert.False(t, d.Cached)
	assert.Equal(t, "morning summary", d.AIBrief.Summary)
	assert.Equal(t, now, d.GeneratedAt)
	assert.Len(t, sum.tasks, 2)

	d, err = svc.Dashboard(ctx, 7, TimeOfDayMorning, false)
	require.NoError(t, err)
	assert.True(t, d.Cached)
	assert.Equal(t, 1, sum.calls)

	_, err = svc.Dashboard(ctx, 7, TimeOfDayEvening, false)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.calls)

	d, err = svc.Dashboard(ctx, 7, TimeOfDayEvening, true)
	require.NoError(t, err)
	assert.False(t, d.Cached)
	assert.Equal(t, 3, sum.calls)
	assert.Equal(t, 3, cache.sets)
}

func TestParseTimeOfDay(t *testing.T) {
	v, err := ParseTimeOfDay("")
	require.NoError(t, err)
	assert.Equal(t, TimeOfDayMorning, v)

	v, err = ParseTimeOfDay("evening")
	require.NoError(t, err)
	assert.Equal(t, TimeOfDayEvening, v)

	_, err = ParseTimeOfDay("noon")
	assert.Error(t, err)
}

type statsEmails struct{}

func (statsEmails) Stats(_ context.Context, _ int, s *model.DashboardStats) error {
	s.TotalEmails, s.UnreadEmails = 12, 4
	return nil
}

func TestStatsService(t *testing.T) {
	count := func(n int) Counter {
		return CounterFunc(func(context.Context, int) (int, error) { return n, nil })
	}
	svc := NewStatsService(statsEmails{}, count(2), count(3), count(1))

	s, err := svc.Stats(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, model.DashboardStats{
		TotalEmails: 12, UnreadEmails: 4, PendingTasks: 2, PendingDecisions: 3, ActiveReminders: 1,
	}, *s)

	failing := NewStatsService(statsEmails{}, count(2), CounterFunc(func(context.Context, int) (int, error) {
		return 0, errors.New("db down")
	}), count(1))
	_, err = failing.Stats(context.Background(), 7)
	assert.Error(t, err)
}
