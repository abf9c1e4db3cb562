package task

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mailtriage/internal/apperr"
	"mailtriage/internal/model"
)

var now = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type memStore struct {
	nextID int
	byID   map[int]*model.Task
}

func (m *memStore) Insert(_ context.Context, t *model.Task) error {
	m.nextID++
	t.ID = m.nextID
	cp := *t
	m.byID[t.ID] = &cp
	return nil
}

func (m *memStore) Get(_ context.Context, userID, id int) (*model.Task, error) {
	t, ok := m.byID[id]
	if !ok || t.UserID != userID {
		return nil, apperr.NotFound("task", id)
	}
	cp := *t
	return &cp, nil
}

func (m *memStore) List(_ context.Context, userID int, status model.TaskStatus) ([]*model.Task, error) {
	out := []*model.Task{}
	for _, t := range m.byID {
		if t.UserID == userID && (status == "" || t.Status == status) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memStore) UpdateStatus(_ context.Context, t *model.Task, from model.TaskStatus) error {
	if m.byID[t.ID].Status != from {
		return apperr.ErrIllegalTransition
	}
	cp := *t
	m.byID[t.ID] = &cp
	return nil
}

type memEmails map[int]*model.Email

func (m memEmails) Get(_ context.Context, userID, id int) (*model.Email, error) {
	e, ok := m[id]
	if !ok || e.UserID != userID {
		return nil, apperr.NotFound("email", id)
	}
	return e, nil
}

func newTestService() (*Service, *memStore) {
	store := &memStore{byID: map[int]*model.Task{}}
	emails := memEmails{
		1: {
			ID: 1, UserID: 7, Subject: "Q3 budget", From: model.Address{Name: "Sarah", Email: "sarah@corp.com"},
			Classification: model.Classification{
				Urgency: model.UrgencyHigh,
				SuggestedActions: []model.SuggestedAction{
					{Type: model.ActionReply, Description: "Reply"},
					{Type: model.ActionCreateTask, Description: "Review the budget"},
				},
			},
		},
		2: {ID: 2, UserID: 7, Subject: "Team lunch"},
	}
	return NewService(store, emails, zap.NewNop()).WithClock(func() time.Time { return now }), store
}

func TestCreate(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	task, err := svc.Create(ctx, 7, CreateRequest{Title: " Write report ", Priority: "high"})
	require.NoError(t, err)
	assert.Equal(t, "Write report", task.Title)
	assert.Equal(t, model.UrgencyHigh, task.Priority)
	assert.Equal(t, model.TaskPending, task.Status)

	task, err = svc.Create(ctx, 7, CreateRequest{Title: "No priority"})
	require.NoError(t, err)
	assert.Equal(t, model.UrgencyMedium, task.Priority)

	_, err = svc.Create(ctx, 7, CreateRequest{})
	var ve *apperr.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestFromEmail(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	task, err := svc.FromEmail(ctx, 7, 1)
	require.NoError(t, err)
	assert.Equal(t, "Review the budget", task.Title)
	assert.Equal(t, model.UrgencyHigh, task.Priority)
	assert.Equal(t, 1, *task.EmailID)
	assert.Contains(t, task.Description, "From email: Q3 budget")

	task, err = svc.FromEmail(ctx, 7, 2)
	require.NoError(t, err)
	assert.Equal(t, "Team lunch", task.Title)
	assert.Equal(t, model.UrgencyMedium, task.Priority)

	_, err = svc.FromEmail(ctx, 8, 1)
	assert.True(t, apperr.IsNotFound(err))
}

func TestUpdateStatus(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()
	task, err := svc.Create(ctx, 7, CreateRequest{Title: "Ship it"})
	require.NoError(t, err)

	got, err := svc.UpdateStatus(ctx, 7, task.ID, "in_progress")
	require.NoError(t, err)
	assert.Equal(t, model.TaskInProgress, got.Status)
	assert.Nil(t, got.CompletedAt)

	got, err = svc.UpdateStatus(ctx, 7, task.ID, "completed")
	require.NoError(t, err)
	assert.Equal(t, now, *store.byID[task.ID].CompletedAt)

	_, err = svc.UpdateStatus(ctx, 7, task.ID, "pending")
	assert.ErrorIs(t, err, apperr.ErrIllegalTransition)

	_, err = svc.UpdateStatus(ctx, 7, task.ID, "done")
	var ve *apperr.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestList(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	_, err := svc.Create(ctx, 7, CreateRequest{Title: "a"})
	require.NoError(t, err)
	b, err := svc.Create(ctx, 7, CreateRequest{Title: "b"})
	require.NoError(t, err)
	_, err = svc.UpdateStatus(ctx, 7, b.ID, "cancelled")
	require.NoError(t, err)

	all, err := svc.List(ctx, 7, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	pending, err := svc.List(ctx, 7, "pending")
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	_, err = svc.List(ctx, 7, "archived")
	assert.Error(t, err)
}
