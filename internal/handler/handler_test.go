package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mailtriage/internal/apperr"
	"mailtriage/internal/model"
	"mailtriage/internal/repository"
	"mailtriage/internal/service/email"
	"mailtriage/internal/service/reminder"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// withUser 模拟认证中间件
func withUser(uid int) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ContextUserID, uid)
		c.Next()
	}
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func errorBody(t *testing.T, w *httptest.ResponseRecorder) string {
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body["error"]
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{apperr.Validation("x", "bad"), http.StatusBadRequest},
		{apperr.ErrInvalidCredentials, http.StatusUnauthorized},
		{fmt.Errorf("wrap: %w", apperr.NotFound("email", 1)), http.StatusNotFound},
		{apperr.Conflict("dup"), http.StatusConflict},
		{fmt.Errorf("decision 1: %w", apperr.ErrIllegalTransition), http.StatusConflict},
		{fmt.Errorf("sync: %w", apperr.ErrRateLimited), http.StatusTooManyRequests},
		{apperr.ErrQuotaExhausted, http.StatusServiceUnavailable},
		{errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

type fakeEmails struct {
	syncMax    int
	syncErr    error
	filter     repository.EmailFilter
	action     string
	deletedIDs []int
}

func (f *fakeEmails) Sync(_ context.Context, _ int, maxResults int) (*email.SyncResult, error) {
	f.syncMax = maxResults
	if f.syncErr != nil {
		return nil, f.syncErr
	}
	return &email.SyncResult{Processed: 2, Skipped: 1, Failures: []email.Failure{}}, nil
}

func (f *fakeEmails) Get(_ context.Context, userID, id int) (*model.Email, error) {
	if id != 1 {
		return nil, apperr.NotFound("email", id)
	}
	return &model.Email{ID: 1, UserID: userID, Subject: "Hello"}, nil
}

func (f *fakeEmails) List(_ context.Context, _ int, filter repository.EmailFilter) ([]*model.Email, error) {
	f.filter = filter
	return []*model.Email{{ID: 1}}, nil
}

func (f *fakeEmails) Action(_ context.Context, _ int, id int, action string) (*email.ActionResult, error) {
	f.action = action
	if action != "approved" {
		return nil, apperr.Validation("action", "Invalid action. Must be: approved, rejected, or ignored")
	}
	return &email.ActionResult{Email: &model.Email{ID: id}}, nil
}

func (f *fakeEmails) Draft(_ context.Context, _ int, _ int) (string, error) {
	return "Thanks, will do.", nil
}

func (f *fakeEmails) Delete(_ context.Context, _ int, id int) error {
	f.deletedIDs = append(f.deletedIDs, id)
	return nil
}

func emailRouter(f *fakeEmails) *gin.Engine {
	h := NewEmailHandler(f, zap.NewNop())
	r := gin.New()
	r.Use(withUser(7))
	r.POST("/emails/sync", h.Sync)
	r.GET("/emails", h.List)
	r.GET("/emails/:id", h.Get)
	r.POST("/emails/:id/action", h.Action)
	r.GET("/emails/:id/draft", h.Draft)
	r.DELETE("/emails/:id", h.Delete)
	return r
}

func TestEmailHandler_Sync(t *testing.T) {
	f := &fakeEmails{}
	r := emailRouter(f)

	w := do(r, http.MethodPost, "/emails/sync", `{"maxResults": 5}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, f.syncMax)
	assert.JSONEq(t, `{"processed":2,"skipped":1,"failed":0,"failures":[]}`, w.Body.String())

	w = do(r, http.MethodPost, "/emails/sync", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, f.syncMax)

	f.syncErr = fmt.Errorf("sync: %w", apperr.ErrRateLimited)
	w = do(r, http.MethodPost, "/emails/sync", `{}`)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestEmailHandler_ListFilters(t *testing.T) {
	f := &fakeEmails{}
	r := emailRouter(f)

	w := do(r, http.MethodGet, "/emails?urgency=high&userAction=pending", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.UrgencyHigh, f.filter.Urgency)
	assert.Equal(t, model.UserActionPending, f.filter.UserAction)
	assert.Equal(t, 50, f.filter.Limit)

	w = do(r, http.MethodGet, "/emails?userAction=maybe", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEmailHandler_GetActionDraftDelete(t *testing.T) {
	f := &fakeEmails{}
	r := emailRouter(f)

	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/emails/1", "").Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/emails/2", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/emails/abc", "").Code)

	w := do(r, http.MethodPost, "/emails/1/action", `{"action":"approved"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	w = do(r, http.MethodPost, "/emails/1/action", `{"action":"maybe"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid action. Must be: approved, rejected, or ignored", errorBody(t, w))

	w = do(r, http.MethodGet, "/emails/1/draft", "")
	assert.JSONEq(t, `{"emailId":1,"draftReply":"Thanks, will do."}`, w.Body.String())

	w = do(r, http.MethodDelete, "/emails/1", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []int{1}, f.deletedIDs)
}

func TestHandler_RequiresUser(t *testing.T) {
	h := NewEmailHandler(&fakeEmails{}, zap.NewNop())
	r := gin.New()
	r.GET("/emails", h.List)

	w := do(r, http.MethodGet, "/emails", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

type fakeReminders struct {
	created reminder.CreateRequest
}

func (f *fakeReminders) Create(_ context.Context, userID int, req reminder.CreateRequest) (*model.EmailReminder, error) {
	f.created = req
	if req.EmailID == nil || req.RemindAt == nil {
		return nil, apperr.Validation("", "Email ID and remind time are required")
	}
	if *req.EmailID == 9 {
		return nil, apperr.Conflict("A pending reminder already exists for this email")
	}
	return &model.EmailReminder{ID: 1, UserID: userID, EmailID: req.EmailID, RemindAt: *req.RemindAt, Status: model.ReminderPending}, nil
}

func (f *fakeReminders) Cancel(_ context.Context, _ int, id int) (*model.EmailReminder, error) {
	return nil, fmt.Errorf("reminder %d: %w", id, apperr.ErrIllegalTransition)
}

func (f *fakeReminders) List(_ context.Context, _ int, status string) ([]*model.EmailReminder, error) {
	if status == "bogus" {
		return nil, apperr.Validation("status", "status must be one of pending, triggered, cancelled")
	}
	return []*model.EmailReminder{}, nil
}

func TestReminderHandler(t *testing.T) {
	f := &fakeReminders{}
	h := NewReminderHandler(f, zap.NewNop())
	r := gin.New()
	r.Use(withUser(7))
	r.POST("/reminders", h.Create)
	r.GET("/reminders", h.List)
	r.DELETE("/reminders/:id", h.Cancel)

	w := do(r, http.MethodPost, "/reminders", `{"emailId": 3, "remindAt": "2026-03-03T09:00:00Z", "reason": "chase"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC), f.created.RemindAt.UTC())
	assert.Equal(t, "chase", f.created.Reason)

	w = do(r, http.MethodPost, "/reminders", `{"reason": "no email"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Email ID and remind time are required", errorBody(t, w))

	w = do(r, http.MethodPost, "/reminders", `{"emailId": 9, "remindAt": "2026-03-03T09:00:00Z"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	assert.Equal(t, http.StatusConflict, do(r, http.MethodDelete, "/reminders/1", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/reminders?status=bogus", "").Code)
}

type fakeDecisions struct{}

func (fakeDecisions) ListPending(_ context.Context, userID int) ([]*model.Decision, error) {
	return []*model.Decision{{ID: 1, UserID: userID, Text: "Reply to Sarah"}}, nil
}

func (fakeDecisions) Resolve(_ context.Context, _ int, id int, resolution string) (*model.Decision, error) {
	if _, ok := model.ParseResolution(resolution); !ok {
		return nil, apperr.Validation("resolution", "Invalid resolution. Must be: COMPLETED, SNOOZED, or ABANDONED")
	}
	return &model.Decision{ID: id, Status: model.DecisionCompleted}, nil
}

func TestDecisionHandler(t *testing.T) {
	h := NewDecisionHandler(fakeDecisions{}, zap.NewNop())
	r := gin.New()
	r.Use(withUser(7))
	r.GET("/decisions/pending", h.Pending)
	r.POST("/decisions/:id/resolve", h.Resolve)

	w := do(r, http.MethodGet, "/decisions/pending", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":1`)

	w = do(r, http.MethodPost, "/decisions/1/resolve", `{"resolution":"COMPLETED"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	w = do(r, http.MethodPost, "/decisions/1/resolve", `{"resolution":"DONE"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

type fakeDashboard struct {
	timeOfDay string
	force     bool
}

func (f *fakeDashboard) Dashboard(_ context.Context, _ int, timeOfDay string, force bool) (*model.Dashboard, error) {
	f.timeOfDay, f.force = timeOfDay, force
	return &model.Dashboard{TimeOfDay: timeOfDay}, nil
}

func (f *fakeDashboard) Brief(_ context.Context, _ int) (*model.Brief, error) {
	return &model.Brief{State: model.BriefClear}, nil
}

type fakeStats struct{}

func (fakeStats) Stats(_ context.Context, _ int) (*model.DashboardStats, error) {
	return &model.DashboardStats{}, nil
}

func TestDashboardHandler(t *testing.T) {
	f := &fakeDashboard{}
	h := NewDashboardHandler(f, fakeStats{}, zap.NewNop())
	r := gin.New()
	r.Use(withUser(7))
	r.GET("/dashboard/brief", h.Dashboard)
	r.GET("/dashboard/stats", h.Stats)
	r.GET("/brief", h.Brief)

	w := do(r, http.MethodGet, "/dashboard/brief?timeOfDay=evening&forceRefresh=true", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "evening", f.timeOfDay)
	assert.True(t, f.force)

	w = do(r, http.MethodGet, "/dashboard/brief", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "morning", f.timeOfDay)
	assert.False(t, f.force)

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/dashboard/brief?timeOfDay=noon", "").Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/dashboard/stats", "").Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/brief", "").Code)
}

type fakeReplay struct {
	replayed []int64
}

func (f *fakeReplay) ReplayEvent(_ context.Context, id int64) error {
	f.replayed = append(f.replayed, id)
	return nil
}

func (f *fakeReplay) ReplayFailedEvents(_ context.Context, limit int) (int, error) {
	return limit / 2, nil
}

func TestAdminHandler_ReplayOutbox(t *testing.T) {
	f := &fakeReplay{}
	h := NewAdminHandler(f, zap.NewNop())
	r := gin.New()
	r.POST("/admin/outbox/replay", h.ReplayOutbox)

	w := do(r, http.MethodPost, "/admin/outbox/replay?id=12", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []int64{12}, f.replayed)

	w = do(r, http.MethodPost, "/admin/outbox/replay?limit=10", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"completed","success_count":5,"limit":10}`, w.Body.String())

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/admin/outbox/replay?id=x", "").Code)
}

func TestWriteError_HidesInternalErrors(t *testing.T) {
	r := gin.New()
	r.GET("/boom", func(c *gin.Context) {
		writeError(c, zap.NewNop(), errors.New("pq: password authentication failed"))
	})

	w := do(r, http.MethodGet, "/boom", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal server error", errorBody(t, w))
}
