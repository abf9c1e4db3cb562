package mqhandler

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	mqcontracts "mailtriage/contracts/mq"
	"mailtriage/internal/model"
	"mailtriage/internal/service/notify"
	"mailtriage/pkg/mq"
	"mailtriage/pkg/util"
)

const (
	urgentHandlerName = "urgent_email"
	maxRetries        = 3
)

type Deduper interface {
	AcquireOnce(ctx context.Context, handler string, id int) bool
	Release(ctx context.Context, handler string, id int)
}

type RetryCounter interface {
	IncrementAndGet(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

type DeadLetterPublisher interface {
	PublishToDLQ(ctx context.Context, routingKey string, payload []byte, originalError, failedAt string) error
}

type Notifier interface {
	Send(ctx context.Context, userID int, title, body string, category model.NotificationCategory, data map[string]any) notify.Result
}

// UrgentEmailHandler 消费 email.classified，HIGH 紧急度的邮件推送 URGENT_EMAIL
type UrgentEmailHandler struct {
	notifier     Notifier
	deduper      Deduper
	retryCounter RetryCounter
	dlq          DeadLetterPublisher
	logger       *zap.Logger
}

func NewUrgentEmailHandler(
	notifier Notifier,
	deduper Deduper,
	retryCounter RetryCounter,
	dlq DeadLetterPublisher,
	logger *zap.Logger,
) *UrgentEmailHandler {
	return &UrgentEmailHandler{
		notifier:     notifier,
		deduper:      deduper,
		retryCounter: retryCounter,
		dlq:          dlq,
		logger:       logger,
	}
}

// HandleEmailClassified 返回 error 表示需要 nack 重试，其余情况都 ack
func (h *UrgentEmailHandler) HandleEmailClassified(ctx context.Context, raw json.RawMessage) error {
	var p mqcontracts.EmailClassifiedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.logger.Error("Failed to unmarshal email classified payload (non-retryable, sending to DLQ)", zap.Error(err))
		h.deadLetter(ctx, raw, "json_decode_error")
		return nil
	}

	if model.ParseUrgency(p.Urgency) != model.UrgencyHigh {
		return nil
	}

	if !h.deduper.AcquireOnce(ctx, urgentHandlerName, p.EmailID) {
		return nil
	}

	log := h.logger.With(zap.Int("email_id", p.EmailID), zap.Int("user_id", p.UserID))
	res := h.notifier.Send(ctx, p.UserID, urgentTitle(p), urgentBody(p), model.CategoryUrgentEmail, map[string]any{
		"emailId": p.EmailID,
	})

	retryKey := util.FormatRetryKey(urgentHandlerName, p.EmailID)
	if res.Err == nil {
		h.resetRetry(ctx, retryKey)
		log.Info("Urgent email notification processed", zap.Bool("delivered", res.Delivered), zap.String("reason", res.Reason))
		return nil
	}

	isRetryable, errType := util.IsRetryableError(res.Err)
	retryCount, err := h.retryCounter.IncrementAndGet(ctx, retryKey)
	if err != nil {
		log.Warn("Failed to get retry count, continuing anyway", zap.Error(err))
		retryCount = 1
	}
	log.Error("Urgent email notification failed",
		zap.String("error_type", errType),
		zap.Bool("retryable", isRetryable),
		zap.Int64("retry_count", retryCount),
		zap.Error(res.Err),
	)

	if util.ShouldRetry(retryCount, maxRetries, isRetryable) {
		h.deduper.Release(ctx, urgentHandlerName, p.EmailID)
		return fmt.Errorf("failed to send urgent email notification: %w", res.Err)
	}

	h.resetRetry(ctx, retryKey)
	h.deadLetter(ctx, raw, errType)
	return nil
}

func (h *UrgentEmailHandler) resetRetry(ctx context.Context, key string) {
	if err := h.retryCounter.Reset(ctx, key); err != nil {
		h.logger.Warn("Failed to reset retry counter", zap.String("key", key), zap.Error(err))
	}
}

func (h *UrgentEmailHandler) deadLetter(ctx context.Context, raw []byte, reason string) {
	if err := h.dlq.PublishToDLQ(ctx, mq.RoutingEmailClassified, raw, reason, urgentHandlerName); err != nil {
		h.logger.Error("Failed to publish to DLQ", zap.String("reason", reason), zap.Error(err))
	}
}

func urgentTitle(p mqcontracts.EmailClassifiedPayload) string {
	return "🔴 Urgent: " + p.Subject
}

func urgentBody(p mqcontracts.EmailClassifiedPayload) string {
	from := p.FromName
	if from == "" {
		from = p.FromEmail
	}
	if p.Summary == "" {
		return "From " + from
	}
	return from + ": " + p.Summary
}
