// Package ingest 邮件入库与分类流水线
package ingest

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"mailtriage/internal/mailsource"
	"mailtriage/internal/model"
	"mailtriage/pkg/metrics"
)

// DefaultMessageDelay 两次模型调用之间的间隔，对应供应商每分钟 15 次的上限
const DefaultMessageDelay = 4 * time.Second

type EmailStore interface {
	InsertProcessing(ctx context.Context, e *model.Email) (bool, error)
	Complete(ctx context.Context, e *model.Email) error
	MarkFailed(ctx context.Context, e *model.Email) error
}

type Analyzer interface {
	Analyze(ctx context.Context, e *model.Email) (*model.Classification, error)
}

// Outcome 单封邮件的处理结果
type Outcome struct {
	ExternalMessageID string        `json:"externalMessageId"`
	EmailID           int           `json:"emailId,omitempty"`
	Subject           string        `json:"subject"`
	Urgency           model.Urgency `json:"urgency,omitempty"`
	Reason            string        `json:"reason,omitempty"`
}

// Result 三个列表都保持邮件源的顺序
type Result struct {
	Processed []Outcome `json:"processed"`
	Skipped   []Outcome `json:"skipped"`
	Failed    []Outcome `json:"failed"`
}

type Pipeline struct {
	store    EmailStore
	analyzer Analyzer
	logger   *zap.Logger
	delay    time.Duration
	sleep    SleepFunc
	now      func() time.Time
}

// SleepFunc 等待 d，ctx 取消时提前返回 ctx.Err()
type SleepFunc func(ctx context.Context, d time.Duration) error

func NewPipeline(store EmailStore, analyzer Analyzer, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		store:    store,
		analyzer: analyzer,
		logger:   logger,
		delay:    DefaultMessageDelay,
		sleep:    sleepContext,
		now:      time.Now,
	}
}

func (p *Pipeline) WithDelay(d time.Duration) *Pipeline {
	p.delay = d
	return p
}

func (p *Pipeline) WithSleep(sleep SleepFunc) *Pipeline {
	p.sleep = sleep
	return p
}

func (p *Pipeline) WithClock(now func() time.Time) *Pipeline {
	p.now = now
	return p
}

// Ingest 逐封处理；单封失败只记录，不中断整个批次
func (p *Pipeline) Ingest(ctx context.Context, userID int, msgs []mailsource.RawMessage) *Result {
	res := &Result{Processed: []Outcome{}, Skipped: []Outcome{}, Failed: []Outcome{}}
	classified := 0

	for _, msg := range msgs {
		out := Outcome{ExternalMessageID: msg.ExternalMessageID, Subject: msg.Subject}
		log := p.logger.With(
			zap.Int("user_id", userID),
			zap.String("external_message_id", msg.ExternalMessageID),
		)

		if strings.TrimSpace(msg.ExternalMessageID) == "" {
			out.Reason = "missing external message id"
			res.Failed = append(res.Failed, out)
			metrics.IncrementEmailIngested("failed")
			log.Warn("Skipping message without id")
			continue
		}

		e := newEmail(userID, msg)
		created, err := p.store.InsertProcessing(ctx, e)
		if err != nil {
			out.Reason = err.Error()
			res.Failed = append(res.Failed, out)
			metrics.IncrementEmailIngested("failed")
			log.Error("Failed to insert email", zap.Error(err))
			continue
		}
		if !created {
			res.Skipped = append(res.Skipped, out)
			metrics.IncrementEmailIngested("skipped")
			continue
		}
		out.EmailID = e.ID

		if classified > 0 && p.delay > 0 {
			if err := p.sleep(ctx, p.delay); err != nil {
				// 请求已取消：当前邮件置为 failed 以便下次同步重试，剩余邮件不再入库
				out.Reason = p.fail(context.WithoutCancel(ctx), e, err).Error()
				res.Failed = append(res.Failed, out)
				metrics.IncrementEmailIngested("failed")
				log.Warn("Ingestion cancelled", zap.Int("email_id", e.ID), zap.Error(err))
				break
			}
		}
		classified++

		if err := p.process(ctx, e); err != nil {
			out.Reason = err.Error()
			res.Failed = append(res.Failed, out)
			metrics.IncrementEmailIngested("failed")
			log.Error("Email processing failed",
				zap.Int("email_id", e.ID),
				zap.Int("retry_count", e.RetryCount),
				zap.Error(err),
			)
			continue
		}

		out.Urgency = e.Urgency
		res.Processed = append(res.Processed, out)
		metrics.IncrementEmailIngested("processed")
		log.Info("Email processed",
			zap.Int("email_id", e.ID),
			zap.String("intent", string(e.Intent)),
			zap.String("urgency", string(e.Urgency)),
		)
	}

	p.logger.Info("Ingestion batch finished",
		zap.Int("user_id", userID),
		zap.Int("processed", len(res.Processed)),
		zap.Int("skipped", len(res.Skipped)),
		zap.Int("failed", len(res.Failed)),
	)
	return res
}

// process 分类并落库；任何错误都把邮件置为 failed
func (p *Pipeline) process(ctx context.Context, e *model.Email) error {
	c, err := p.analyzer.Analyze(ctx, e)
	if err != nil {
		return p.fail(ctx, e, err)
	}

	done := *e
	if err := done.Complete(*c, p.now()); err != nil {
		return p.fail(ctx, e, err)
	}
	if err := p.store.Complete(ctx, &done); err != nil {
		return p.fail(ctx, e, err)
	}
	*e = done
	return nil
}

func (p *Pipeline) fail(ctx context.Context, e *model.Email, cause error) error {
	if err := e.Fail(cause); err != nil {
		return errors.Join(cause, err)
	}
	if err := p.store.MarkFailed(ctx, e); err != nil {
		p.logger.Error("Failed to record email failure", zap.Int("email_id", e.ID), zap.Error(err))
	}
	return cause
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func newEmail(userID int, msg mailsource.RawMessage) *model.Email {
	body := msg.Body
	if strings.TrimSpace(body) == "" && msg.BodyHTML != "" {
		if text, err := mailsource.HTMLToText(msg.BodyHTML); err == nil {
			body = text
		}
	}
	receivedAt := msg.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}
	threadID := msg.ThreadID
	if threadID == "" {
		threadID = msg.ExternalMessageID
	}
	return &model.Email{
		UserID:            userID,
		ExternalMessageID: msg.ExternalMessageID,
		ThreadID:          threadID,
		From:              msg.From,
		To:                msg.To,
		Subject:           msg.Subject,
		Body:              body,
		BodyHTML:          msg.BodyHTML,
		Snippet:           mailsource.Snippet(body),
		Attachments:       msg.Attachments,
		ReceivedAt:        receivedAt,
		Status:            model.StatusProcessing,
		UserAction:        model.UserActionPending,
	}
}
