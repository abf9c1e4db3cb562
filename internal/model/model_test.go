package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailtriage/internal/apperr"
)

func TestParseIntentAndUrgency(t *testing.T) {
	assert.Equal(t, IntentMarketing, ParseIntent(" marketing "))
	assert.Equal(t, IntentUnknown, ParseIntent("SPAM"))
	assert.Equal(t, UrgencyHigh, ParseUrgency("high"))
	assert.Equal(t, UrgencyMedium, ParseUrgency("critical"))
}

func TestEmailStatusTransitions(t *testing.T) {
	e := &Email{ID: 1, Status: StatusProcessing, UserAction: UserActionPending}

	require.NoError(t, e.Fail(assert.AnError))
	assert.Equal(t, StatusFailed, e.Status)
	assert.Equal(t, 1, e.RetryCount)
	assert.Equal(t, assert.AnError.Error(), e.LastError)

	assert.ErrorIs(t, e.TransitionStatus(StatusCompleted), apperr.ErrIllegalTransition)
	require.NoError(t, e.TransitionStatus(StatusProcessing))

	now := time.Now()
	require.NoError(t, e.Complete(Classification{Intent: IntentFYI, Urgency: UrgencyLow}, now))
	assert.Equal(t, IntentFYI, e.Intent)
	assert.Empty(t, e.LastError)
	assert.ErrorIs(t, e.TransitionStatus(StatusProcessing), apperr.ErrIllegalTransition)
}

func TestEmailUserAction(t *testing.T) {
	e := &Email{ID: 1, UserAction: UserActionPending}
	require.NoError(t, e.ApplyUserAction(UserActionApproved))
	assert.ErrorIs(t, e.ApplyUserAction(UserActionRejected), apperr.ErrIllegalTransition)

	e2 := &Email{ID: 2, UserAction: UserActionPending}
	assert.ErrorIs(t, e2.ApplyUserAction(UserActionPending), apperr.ErrIllegalTransition)
}

func TestDecisionTypeFor(t *testing.T) {
	cases := map[ActionType]DecisionType{
		ActionReply:           DecisionReply,
		ActionScheduleMeeting: DecisionReply,
		ActionCreateTask:      DecisionTask,
		ActionFollowUp:        DecisionReminder,
	}
	for a, want := range cases {
		got, ok := DecisionTypeFor(a)
		assert.True(t, ok, a)
		assert.Equal(t, want, got, a)
	}
	_, ok := DecisionTypeFor(ActionIgnore)
	assert.False(t, ok)
	_, ok = DecisionTypeFor("DANCE")
	assert.False(t, ok)
}

func TestDecisionLifecycle(t *testing.T) {
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	followUp := created.Add(FollowUpDelay)

	t.Run("snooze keeps pending", func(t *testing.T) {
		d := &Decision{Status: DecisionPending, CreatedAt: created, FollowUpAt: followUp}
		require.NoError(t, d.Resolve(DecisionSnoozed, created))
		assert.Equal(t, DecisionPending, d.Status)
		assert.Equal(t, 1, d.SnoozeCount)
		assert.Equal(t, followUp.Add(24*time.Hour), d.FollowUpAt)
	})

	t.Run("complete stamps time", func(t *testing.T) {
		d := &Decision{Status: DecisionPending, CreatedAt: created}
		done := created.Add(90 * time.Minute)
		require.NoError(t, d.Resolve(DecisionCompleted, done))
		require.NotNil(t, d.CompletedAt)
		require.NotNil(t, d.TimeToCompleteMs)
		assert.Equal(t, int64(90*60*1000), *d.TimeToCompleteMs)
		assert.ErrorIs(t, d.Resolve(DecisionAbandoned, done), apperr.ErrIllegalTransition)
	})

	t.Run("complete before creation clamps to zero", func(t *testing.T) {
		d := &Decision{Status: DecisionPending, CreatedAt: created}
		require.NoError(t, d.Complete(created.Add(-time.Minute)))
		assert.Equal(t, int64(0), *d.TimeToCompleteMs)
	})

	t.Run("abandoned is terminal", func(t *testing.T) {
		d := &Decision{Status: DecisionPending}
		require.NoError(t, d.Abandon())
		assert.ErrorIs(t, d.Snooze(), apperr.ErrIllegalTransition)
	})

	t.Run("unknown resolution", func(t *testing.T) {
		d := &Decision{Status: DecisionPending}
		var ve *apperr.ValidationError
		assert.ErrorAs(t, d.Resolve("MAYBE", created), &ve)
	})
}

func TestReminderTransitions(t *testing.T) {
	r := &EmailReminder{Status: ReminderPending}
	now := time.Now()
	require.NoError(t, r.Trigger(now))
	assert.Equal(t, &now, r.TriggeredAt)
	assert.ErrorIs(t, r.Cancel(), apperr.ErrIllegalTransition)

	r2 := &EmailReminder{Status: ReminderPending}
	require.NoError(t, r2.Cancel())
	assert.ErrorIs(t, r2.Trigger(now), apperr.ErrIllegalTransition)
}

func TestTaskTransitions(t *testing.T) {
	now := time.Now()
	task := &Task{Status: TaskPending}
	require.NoError(t, task.Transition(TaskInProgress, now))
	require.NoError(t, task.Transition(TaskPending, now))
	require.NoError(t, task.Transition(TaskCompleted, now))
	assert.NotNil(t, task.CompletedAt)
	assert.ErrorIs(t, task.Transition(TaskInProgress, now), apperr.ErrIllegalTransition)
}

func TestNotificationSettingsDayReset(t *testing.T) {
	loc := time.UTC
	last := time.Date(2026, 3, 1, 23, 50, 0, 0, loc)
	s := DefaultNotificationSettings(7)
	s.NotificationsSentToday = 4
	s.LastNotificationSentAt = &last

	assert.Equal(t, 4, s.SentTodayAt(last.Add(5*time.Minute), loc))
	assert.Equal(t, 0, s.SentTodayAt(last.Add(15*time.Minute), loc))

	assert.True(t, s.Allows(CategoryReminder))
	assert.True(t, s.Allows(CategoryDecisionFollowUp))
	assert.False(t, s.Allows(CategoryUrgentEmail))
}
