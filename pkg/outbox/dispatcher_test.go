package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mailtriage/pkg/trace"
)

type fakeStore struct {
	events []*Event
	sent   []int64
	failed []int64
}

func (s *fakeStore) GetPendingEvents(_ context.Context, limit int) ([]*Event, error) {
	if len(s.events) > limit {
		return s.events[:limit], nil
	}
	return s.events, nil
}

func (s *fakeStore) MarkAsSent(_ context.Context, id int64) error {
	s.sent = append(s.sent, id)
	return nil
}

func (s *fakeStore) MarkAsFailed(_ context.Context, id int64, _ int) error {
	s.failed = append(s.failed, id)
	return nil
}

type published struct {
	routingKey string
	traceID    string
	payload    json.RawMessage
}

type fakePublisher struct {
	failKeys map[string]bool
	calls    []published
}

func (p *fakePublisher) PublishWithContext(ctx context.Context, key string, payload any) error {
	if p.failKeys[key] {
		return errors.New("broker down")
	}
	p.calls = append(p.calls, published{routingKey: key, traceID: trace.FromContext(ctx), payload: payload.(json.RawMessage)})
	return nil
}

func TestDispatcher_DispatchOnce(t *testing.T) {
	store := &fakeStore{events: []*Event{
		{ID: 1, RoutingKey: "email.classified", Payload: json.RawMessage(`{"email_id":1,"trace_id":"t-1"}`)},
		{ID: 2, RoutingKey: "decision.created", Payload: json.RawMessage(`{"decision_id":9}`)},
		{ID: 3, RoutingKey: "email.classified", Payload: json.RawMessage(`{"email_id":3}`)},
	}}
	pub := &fakePublisher{failKeys: map[string]bool{"decision.created": true}}

	d := NewDispatcher(store, pub, zap.NewNop())
	sent := d.DispatchOnce(context.Background())

	assert.Equal(t, 2, sent)
	assert.Equal(t, []int64{1, 3}, store.sent)
	assert.Equal(t, []int64{2}, store.failed)
	require.Len(t, pub.calls, 2)
	assert.Equal(t, "t-1", pub.calls[0].traceID)
	assert.JSONEq(t, `{"email_id":1,"trace_id":"t-1"}`, string(pub.calls[0].payload))
}

func TestDispatcher_BatchSize(t *testing.T) {
	store := &fakeStore{}
	for i := int64(1); i <= 5; i++ {
		store.events = append(store.events, &Event{ID: i, RoutingKey: "k", Payload: json.RawMessage(`{}`)})
	}
	d := NewDispatcher(store, &fakePublisher{}, zap.NewNop()).WithBatchSize(2)
	assert.Equal(t, 2, d.DispatchOnce(context.Background()))
}

func TestNextAttempt(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	status, next := nextAttempt(2, 5, now)
	assert.Equal(t, StatusPending, status)
	require.NotNil(t, next)
	assert.Equal(t, now.Add(10*time.Second), *next)

	status, next = nextAttempt(5, 5, now)
	assert.Equal(t, StatusFailed, status)
	assert.Nil(t, next)
}

func TestEncodePayload_AddsTraceID(t *testing.T) {
	ctx := trace.WithContext(context.Background(), "abc")

	raw, err := encodePayload(ctx, map[string]int{"email_id": 4})
	require.NoError(t, err)
	assert.JSONEq(t, `{"email_id":4,"trace_id":"abc"}`, string(raw))

	raw, err = encodePayload(context.Background(), map[string]int{"email_id": 4})
	require.NoError(t, err)
	assert.JSONEq(t, `{"email_id":4}`, string(raw))
}
