package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mailtriage/internal/apperr"
	"mailtriage/internal/mailsource"
	"mailtriage/internal/model"
	"mailtriage/internal/service/analysis"
)

// memStore 以 external_message_id 为唯一键的内存实现
type memStore struct {
	mu       sync.Mutex
	nextID   int
	byExtID  map[string]*model.Email
	complete int
}

func newMemStore() *memStore {
	return &memStore{byExtID: map[string]*model.Email{}}
}

func (s *memStore) InsertProcessing(_ context.Context, e *model.Email) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byExtID[e.ExternalMessageID]; ok {
		return false, nil
	}
	s.nextID++
	e.ID = s.nextID
	cp := *e
	s.byExtID[e.ExternalMessageID] = &cp
	return true, nil
}

func (s *memStore) Complete(_ context.Context, e *model.Email) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.complete++
	cp := *e
	s.byExtID[e.ExternalMessageID] = &cp
	return nil
}

func (s *memStore) MarkFailed(_ context.Context, e *model.Email) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	s.byExtID[e.ExternalMessageID] = &cp
	return nil
}

type fakeClassifier struct {
	calls   []string
	results map[string]*model.Classification
	errs    map[string]error
}

func (f *fakeClassifier) Classify(_ context.Context, _, subject, _ string) (*model.Classification, error) {
	f.calls = append(f.calls, subject)
	if err := f.errs[subject]; err != nil {
		return nil, err
	}
	if c, ok := f.results[subject]; ok {
		cp := *c
		return &cp, nil
	}
	return &model.Classification{Intent: model.IntentFYI, Urgency: model.UrgencyLow, Confidence: 0.9}, nil
}

func msg(id, subject string) mailsource.RawMessage {
	return mailsource.RawMessage{
		ExternalMessageID: id,
		From:              model.Address{Email: "sender@corp.com"},
		Subject:           subject,
		Body:              "body of " + subject,
		ReceivedAt:        time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}
}

func newTestPipeline(store EmailStore, c analysis.Classifier, sleeps *[]time.Duration) *Pipeline {
	return NewPipeline(store, analysis.NewAnalyzer(c, true, zap.NewNop()), zap.NewNop()).
		WithSleep(func(_ context.Context, d time.Duration) error {
			*sleeps = append(*sleeps, d)
			return nil
		}).
		WithClock(func() time.Time { return time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC) })
}

func TestIngestIsIdempotent(t *testing.T) {
	store := newMemStore()
	var sleeps []time.Duration
	p := newTestPipeline(store, &fakeClassifier{}, &sleeps)

	res := p.Ingest(context.Background(), 1, []mailsource.RawMessage{msg("m-1", "Hello"), msg("m-1", "Hello again")})
	require.Len(t, res.Processed, 1)
	require.Len(t, res.Skipped, 1)
	assert.Empty(t, res.Failed)
	assert.Len(t, store.byExtID, 1)

	res = p.Ingest(context.Background(), 1, []mailsource.RawMessage{msg("m-1", "Hello")})
	assert.Empty(t, res.Processed)
	assert.Len(t, res.Skipped, 1)
	assert.Len(t, store.byExtID, 1)
}

func TestIngestDelaysBetweenClassifierCalls(t *testing.T) {
	var sleeps []time.Duration
	c := &fakeClassifier{}
	p := newTestPipeline(newMemStore(), c, &sleeps)

	p.Ingest(context.Background(), 1, []mailsource.RawMessage{
		msg("a", "A"), msg("a", "dup"), msg("b", "B"), msg("c", "C"),
	})
	assert.Equal(t, []string{"A", "B", "C"}, c.calls)
	assert.Equal(t, []time.Duration{DefaultMessageDelay, DefaultMessageDelay}, sleeps)
}

func TestIngestStopsWaitingWhenCancelled(t *testing.T) {
	store := newMemStore()
	c := &fakeClassifier{}
	p := NewPipeline(store, analysis.NewAnalyzer(c, true, zap.NewNop()), zap.NewNop()).WithDelay(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	res := p.Ingest(ctx, 1, []mailsource.RawMessage{msg("a", "A"), msg("b", "B"), msg("c", "C")})
	assert.Less(t, time.Since(start), time.Second)

	assert.Equal(t, []string{"A"}, c.calls)
	require.Len(t, res.Processed, 1)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "b", res.Failed[0].ExternalMessageID)
	assert.Contains(t, res.Failed[0].Reason, context.Canceled.Error())

	assert.Equal(t, model.StatusFailed, store.byExtID["b"].Status)
	assert.NotContains(t, store.byExtID, "c")
}

func TestIngestRecordsFailuresAndContinues(t *testing.T) {
	store := newMemStore()
	var sleeps []time.Duration
	c := &fakeClassifier{
		errs: map[string]error{
			"Broken": &apperr.ClassificationParseError{Reply: "nope"},
		},
		results: map[string]*model.Classification{
			"Please approve budget by EOD today": {
				Intent: model.IntentTaskRequest, Urgency: model.UrgencyHigh, Confidence: 0.8,
				SuggestedActions: []model.SuggestedAction{{Type: model.ActionCreateTask, Description: "Approve budget", Priority: 1}},
			},
		},
	}
	p := newTestPipeline(store, c, &sleeps)

	res := p.Ingest(context.Background(), 7, []mailsource.RawMessage{
		msg("x", "Broken"),
		msg("y", "Please approve budget by EOD today"),
		{Subject: "no id"},
	})

	require.Len(t, res.Failed, 2)
	assert.Equal(t, "x", res.Failed[0].ExternalMessageID)
	assert.Contains(t, res.Failed[0].Reason, "parse")
	assert.Equal(t, "missing external message id", res.Failed[1].Reason)

	failed := store.byExtID["x"]
	assert.Equal(t, model.StatusFailed, failed.Status)
	assert.Equal(t, 1, failed.RetryCount)
	assert.NotEmpty(t, failed.LastError)

	require.Len(t, res.Processed, 1)
	assert.Equal(t, model.UrgencyHigh, res.Processed[0].Urgency)
	done := store.byExtID["y"]
	assert.Equal(t, model.StatusCompleted, done.Status)
	assert.Equal(t, 10, done.SignalScore)
	require.NotNil(t, done.ProcessedAt)
	assert.Equal(t, 1, store.complete)
}

type failingStore struct {
	*memStore
	completeErr error
}

func (s *failingStore) Complete(context.Context, *model.Email) error { return s.completeErr }

func TestIngestMarksFailedWhenPersistFails(t *testing.T) {
	store := &failingStore{memStore: newMemStore(), completeErr: errors.New("db down")}
	var sleeps []time.Duration
	p := newTestPipeline(store, &fakeClassifier{}, &sleeps)

	res := p.Ingest(context.Background(), 1, []mailsource.RawMessage{msg("z", "Hi")})
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "db down", res.Failed[0].Reason)
	e := store.byExtID["z"]
	assert.Equal(t, model.StatusFailed, e.Status)
	assert.Equal(t, "db down", e.LastError)
}

func TestNewEmailFallsBackToHTML(t *testing.T) {
	e := newEmail(3, mailsource.RawMessage{
		ExternalMessageID: "h",
		BodyHTML:          "<p>Hello <b>there</b></p>",
	})
	assert.Equal(t, "Hello there", e.Body)
	assert.Equal(t, "Hello there", e.Snippet)
	assert.Equal(t, "h", e.ThreadID)
	assert.Equal(t, model.StatusProcessing, e.Status)
}
