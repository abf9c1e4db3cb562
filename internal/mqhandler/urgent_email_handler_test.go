package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	mqcontracts "mailtriage/contracts/mq"
	"mailtriage/internal/model"
	"mailtriage/internal/service/notify"
)

type memDeduper struct {
	seen map[string]bool
}

func (d *memDeduper) AcquireOnce(_ context.Context, handler string, id int) bool {
	k := fmt.Sprintf("%s:%d", handler, id)
	if d.seen[k] {
		return false
	}
	d.seen[k] = true
	return true
}

func (d *memDeduper) Release(_ context.Context, handler string, id int) {
	delete(d.seen, fmt.Sprintf("%s:%d", handler, id))
}

type memCounter map[string]int64

func (c memCounter) IncrementAndGet(_ context.Context, key string) (int64, error) {
	c[key]++
	return c[key], nil
}

func (c memCounter) Reset(_ context.Context, key string) error {
	delete(c, key)
	return nil
}

type dlqMessage struct {
	routingKey string
	reason     string
}

type memDLQ struct {
	messages []dlqMessage
}

func (d *memDLQ) PublishToDLQ(_ context.Context, routingKey string, _ []byte, originalError, _ string) error {
	d.messages = append(d.messages, dlqMessage{routingKey: routingKey, reason: originalError})
	return nil
}

type call struct {
	userID   int
	title    string
	body     string
	category model.NotificationCategory
}

type scriptedNotifier struct {
	results []notify.Result
	calls   []call
}

func (n *scriptedNotifier) Send(_ context.Context, userID int, title, body string, category model.NotificationCategory, _ map[string]any) notify.Result {
	n.calls = append(n.calls, call{userID: userID, title: title, body: body, category: category})
	res := n.results[0]
	if len(n.results) > 1 {
		n.results = n.results[1:]
	}
	return res
}

type fixture struct {
	handler  *UrgentEmailHandler
	notifier *scriptedNotifier
	deduper  *memDeduper
	counter  memCounter
	dlq      *memDLQ
}

func newFixture(results ...notify.Result) *fixture {
	f := &fixture{
		notifier: &scriptedNotifier{results: results},
		deduper:  &memDeduper{seen: map[string]bool{}},
		counter:  memCounter{},
		dlq:      &memDLQ{},
	}
	f.handler = NewUrgentEmailHandler(f.notifier, f.deduper, f.counter, f.dlq, zap.NewNop())
	return f
}

func payload(t *testing.T, urgency string) json.RawMessage {
	raw, err := json.Marshal(mqcontracts.EmailClassifiedPayload{
		EmailID:   42,
		UserID:    7,
		Subject:   "Server down",
		FromName:  "Ops",
		FromEmail: "ops@corp.com",
		Urgency:   urgency,
		Summary:   "Production is unreachable",
	})
	require.NoError(t, err)
	return raw
}

func TestHandleEmailClassified_SendsUrgentOnce(t *testing.T) {
	f := newFixture(notify.Result{Delivered: true, ReceiptID: "r1"})
	ctx := context.Background()

	require.NoError(t, f.handler.HandleEmailClassified(ctx, payload(t, "HIGH")))
	require.NoError(t, f.handler.HandleEmailClassified(ctx, payload(t, "HIGH")))

	require.Len(t, f.notifier.calls, 1)
	got := f.notifier.calls[0]
	assert.Equal(t, 7, got.userID)
	assert.Equal(t, "🔴 Urgent: Server down", got.title)
	assert.Equal(t, "Ops: Production is unreachable", got.body)
	assert.Equal(t, model.CategoryUrgentEmail, got.category)
}

func TestHandleEmailClassified_IgnoresNonHigh(t *testing.T) {
	f := newFixture(notify.Result{Delivered: true})
	require.NoError(t, f.handler.HandleEmailClassified(context.Background(), payload(t, "MEDIUM")))
	assert.Empty(t, f.notifier.calls)
}

func TestHandleEmailClassified_UndeliveredIsAcked(t *testing.T) {
	f := newFixture(notify.Result{Reason: notify.ReasonDisabled})
	require.NoError(t, f.handler.HandleEmailClassified(context.Background(), payload(t, "HIGH")))
	assert.Empty(t, f.dlq.messages)
}

func TestHandleEmailClassified_BadPayloadGoesToDLQ(t *testing.T) {
	f := newFixture(notify.Result{Delivered: true})
	require.NoError(t, f.handler.HandleEmailClassified(context.Background(), json.RawMessage(`{"email_id":`)))
	require.Len(t, f.dlq.messages, 1)
	assert.Equal(t, "email.classified", f.dlq.messages[0].routingKey)
	assert.Equal(t, "json_decode_error", f.dlq.messages[0].reason)
}

func TestHandleEmailClassified_RetriesThenDeadLetters(t *testing.T) {
	timeout := notify.Result{Reason: notify.ReasonException, Err: fmt.Errorf("push: %w", context.DeadlineExceeded)}
	f := newFixture(timeout)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := f.handler.HandleEmailClassified(ctx, payload(t, "HIGH"))
		assert.Error(t, err, "attempt %d should be retried", i+1)
	}
	require.NoError(t, f.handler.HandleEmailClassified(ctx, payload(t, "HIGH")))

	assert.Len(t, f.notifier.calls, 4)
	require.Len(t, f.dlq.messages, 1)
	assert.Equal(t, "timeout", f.dlq.messages[0].reason)
	assert.Empty(t, f.counter)
}

func TestHandleEmailClassified_NonRetryableErrorDeadLetters(t *testing.T) {
	f := newFixture(notify.Result{Reason: notify.ReasonException, Err: errors.New("bad settings row")})
	require.NoError(t, f.handler.HandleEmailClassified(context.Background(), payload(t, "HIGH")))
	require.Len(t, f.dlq.messages, 1)
	assert.Equal(t, "unknown_error", f.dlq.messages[0].reason)
}
