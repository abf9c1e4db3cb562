// Package notify 推送通知：分类开关、每日上限、Expo 投递与发送日志
package notify

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"mailtriage/internal/model"
	"mailtriage/pkg/metrics"
)

const DefaultDailyCap = 4

// 未送达原因
const (
	ReasonNoToken   = "NO_TOKEN"
	ReasonDisabled  = "DISABLED"
	ReasonRateLimit = "RATE_LIMIT"
	ReasonExpoError = "EXPO_ERROR"
	ReasonException = "EXCEPTION"
)

type Pusher interface {
	Push(ctx context.Context, msg Message) (string, error)
}

type SettingsStore interface {
	GetSettings(ctx context.Context, userID int) (*model.NotificationSettings, error)
	// ReserveSlot 原子地占用当日一个名额，已达上限返回 false
	ReserveSlot(ctx context.Context, userID int, at, dayStart time.Time, limit int) (bool, error)
	// ReleaseSlot 推送失败时归还名额
	ReleaseSlot(ctx context.Context, userID int, dayStart time.Time) error
	InsertLog(ctx context.Context, log *model.NotificationLog) error
}

// Result 发送结果，Delivered 为 false 时 Reason 说明原因；Err 仅在 EXCEPTION 时非空
type Result struct {
	Delivered bool   `json:"delivered"`
	Reason    string `json:"reason,omitempty"`
	ReceiptID string `json:"receiptId,omitempty"`
	Err       error  `json:"-"`
}

type Dispatcher struct {
	store    SettingsStore
	pusher   Pusher
	logger   *zap.Logger
	dailyCap int
	loc      *time.Location
	now      func() time.Time
}

func NewDispatcher(store SettingsStore, pusher Pusher, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		store:    store,
		pusher:   pusher,
		logger:   logger,
		dailyCap: DefaultDailyCap,
		loc:      time.UTC,
		now:      time.Now,
	}
}

func (d *Dispatcher) WithDailyCap(n int) *Dispatcher {
	if n > 0 {
		d.dailyCap = n
	}
	return d
}

// WithLocation 每日计数按该时区的自然日重置
func (d *Dispatcher) WithLocation(loc *time.Location) *Dispatcher {
	if loc != nil {
		d.loc = loc
	}
	return d
}

func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	d.now = now
	return d
}

// Send 不返回 error，所有失败都体现在 Result.Reason 中
func (d *Dispatcher) Send(ctx context.Context, userID int, title, body string, category model.NotificationCategory, data map[string]any) Result {
	res := d.send(ctx, userID, title, body, category, data)

	metrics.IncrementNotification(string(category), resultLabel(res))
	entry := &model.NotificationLog{
		UserID:    userID,
		Category:  category,
		Title:     title,
		Body:      body,
		Delivered: res.Delivered,
		Reason:    res.Reason,
		ReceiptID: res.ReceiptID,
	}
	if err := d.store.InsertLog(ctx, entry); err != nil {
		d.logger.Error("Failed to write notification log", zap.Int("user_id", userID), zap.Error(err))
	}
	return res
}

func resultLabel(res Result) string {
	if res.Delivered {
		return "delivered"
	}
	return res.Reason
}

func (d *Dispatcher) send(ctx context.Context, userID int, title, body string, category model.NotificationCategory, data map[string]any) Result {
	log := d.logger.With(zap.Int("user_id", userID), zap.String("category", string(category)))

	settings, err := d.store.GetSettings(ctx, userID)
	if err != nil {
		log.Error("Failed to load notification settings", zap.Error(err))
		return Result{Reason: ReasonException, Err: err}
	}
	if settings.PushToken == "" {
		log.Debug("No push token")
		return Result{Reason: ReasonNoToken}
	}
	if !settings.Allows(category) {
		log.Debug("Notification category disabled")
		return Result{Reason: ReasonDisabled}
	}

	now := d.now()
	dayStart := startOfDay(now, d.loc)
	// 快照只用于提前返回，名额以 ReserveSlot 为准
	if settings.SentTodayAt(now, d.loc) >= d.dailyCap {
		log.Info("Daily notification limit reached", zap.Int("cap", d.dailyCap))
		return Result{Reason: ReasonRateLimit}
	}
	reserved, err := d.store.ReserveSlot(ctx, userID, now, dayStart, d.dailyCap)
	if err != nil {
		log.Error("Failed to reserve notification slot", zap.Error(err))
		return Result{Reason: ReasonException, Err: err}
	}
	if !reserved {
		log.Info("Daily notification limit reached", zap.Int("cap", d.dailyCap))
		return Result{Reason: ReasonRateLimit}
	}

	payload := make(map[string]any, len(data)+1)
	for k, v := range data {
		payload[k] = v
	}
	payload["type"] = string(category)
	receipt, err := d.pusher.Push(ctx, Message{
		To:       settings.PushToken,
		Title:    title,
		Body:     body,
		Data:     payload,
		Priority: "default",
	})
	if err != nil {
		if relErr := d.store.ReleaseSlot(ctx, userID, dayStart); relErr != nil {
			log.Error("Failed to release notification slot", zap.Error(relErr))
		}
		var rejected *DeliveryRejectedError
		if errors.As(err, &rejected) {
			log.Warn("Push rejected", zap.Error(err))
			return Result{Reason: ReasonExpoError}
		}
		log.Error("Push failed", zap.Error(err))
		return Result{Reason: ReasonException, Err: err}
	}

	log.Info("Push notification sent", zap.String("title", title), zap.String("receipt_id", receipt))
	return Result{Delivered: true, ReceiptID: receipt}
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, day := t.In(loc).Date()
	return time.Date(y, m, day, 0, 0, 0, 0, loc)
}
