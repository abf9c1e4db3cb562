// Package classifier 调用外部大模型完成邮件分类、回复草稿与每日摘要
package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"mailtriage/internal/apperr"
	"mailtriage/internal/model"
	"mailtriage/pkg/metrics"
)

// TextGenerator 外部模型：输入 prompt，返回自由文本
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// SleepFunc 退避等待，测试中替换为不阻塞的实现
type SleepFunc func(ctx context.Context, d time.Duration) error

const (
	DefaultMaxAttempts    = 3
	DefaultInitialBackoff = 2 * time.Second
)

const (
	FallbackReasoning = "AI analysis unavailable - manual review needed"
	FallbackModel     = "fallback"
	BriefUnavailable  = "Unable to generate AI brief at this time (AI Service Unavailable). Please check your emails manually."
)

type Adapter struct {
	gen            TextGenerator
	logger         *zap.Logger
	maxAttempts    int
	initialBackoff time.Duration
	sleep          SleepFunc
	modelVersion   string
}

func NewAdapter(gen TextGenerator, logger *zap.Logger) *Adapter {
	return &Adapter{
		gen:            gen,
		logger:         logger,
		maxAttempts:    DefaultMaxAttempts,
		initialBackoff: DefaultInitialBackoff,
		sleep:          sleepContext,
	}
}

// WithRetry 仅对限流错误生效
func (a *Adapter) WithRetry(maxAttempts int, initialBackoff time.Duration) *Adapter {
	if maxAttempts > 0 {
		a.maxAttempts = maxAttempts
	}
	if initialBackoff > 0 {
		a.initialBackoff = initialBackoff
	}
	return a
}

func (a *Adapter) WithSleep(sleep SleepFunc) *Adapter {
	a.sleep = sleep
	return a
}

func (a *Adapter) WithModelVersion(v string) *Adapter {
	a.modelVersion = v
	return a
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

type rawAction struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Priority    int    `json:"priority"`
}

type rawClassification struct {
	Intent           string      `json:"intent"`
	Urgency          string      `json:"urgency"`
	Confidence       float64     `json:"confidence"`
	Summary          string      `json:"summary"`
	Reasoning        string      `json:"reasoning"`
	SuggestedActions []rawAction `json:"suggestedActions"`
	Actions          []rawAction `json:"actions"`
}

// Classify 一次请求得到分类结果；未经规则引擎校正
func (a *Adapter) Classify(ctx context.Context, sender, subject, body string) (*model.Classification, error) {
	reply, err := a.generate(ctx, "classify", ClassificationPrompt(sender, subject, body))
	if err != nil {
		return nil, err
	}

	obj, ok := ExtractJSONObject(reply)
	if !ok {
		return nil, &apperr.ClassificationParseError{Reply: reply}
	}
	var raw rawClassification
	if err := json.Unmarshal([]byte(obj), &raw); err != nil {
		return nil, &apperr.ClassificationParseError{Reply: reply, Err: err}
	}
	return a.normalize(raw), nil
}

func (a *Adapter) normalize(raw rawClassification) *model.Classification {
	c := &model.Classification{
		Intent:       model.ParseIntent(raw.Intent),
		Urgency:      model.ParseUrgency(raw.Urgency),
		Confidence:   clamp(raw.Confidence, 0, 1),
		Summary:      strings.TrimSpace(raw.Summary),
		Reasoning:    strings.TrimSpace(raw.Reasoning),
		ModelVersion: a.modelVersion,
	}

	actions := raw.SuggestedActions
	if len(actions) == 0 {
		actions = raw.Actions
	}
	c.SuggestedActions = make([]model.SuggestedAction, 0, len(actions))
	for _, ra := range actions {
		t := model.ActionType(strings.ToUpper(strings.TrimSpace(ra.Type)))
		if !t.Valid() {
			continue
		}
		c.SuggestedActions = append(c.SuggestedActions, model.SuggestedAction{
			Type:        t,
			Description: strings.TrimSpace(ra.Description),
			Priority:    ra.Priority,
		})
	}
	sort.SliceStable(c.SuggestedActions, func(i, j int) bool {
		return c.SuggestedActions[i].Priority < c.SuggestedActions[j].Priority
	})
	return c
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// DraftReply 只为需要回复的意图生成草稿，其余返回空串
func (a *Adapter) DraftReply(ctx context.Context, e *model.Email) (string, error) {
	if !e.Intent.NeedsReply() {
		return "", nil
	}
	reply, err := a.generate(ctx, "draft_reply", ReplyDraftPrompt(e))
	if err != nil {
		return "", err
	}
	return cleanText(reply), nil
}

// DailySummary 失败时返回固定的降级内容，不向上返回错误
func (a *Adapter) DailySummary(ctx context.Context, emails []*model.Email, tasks []*model.Task, timeOfDay string) *model.AIBrief {
	reply, err := a.generate(ctx, "daily_brief", DailyBriefPrompt(emails, tasks, timeOfDay))
	if err != nil {
		a.logger.Warn("Daily brief generation failed, using fallback", zap.Error(err))
		return FallbackBrief()
	}
	obj, ok := ExtractJSONObject(reply)
	if !ok {
		a.logger.Warn("Daily brief reply has no JSON object")
		return FallbackBrief()
	}
	var brief model.AIBrief
	if err := json.Unmarshal([]byte(obj), &brief); err != nil || strings.TrimSpace(brief.Summary) == "" {
		a.logger.Warn("Daily brief reply is malformed", zap.Error(err))
		return FallbackBrief()
	}
	if brief.Priorities == nil {
		brief.Priorities = []model.AIPriority{}
	}
	return &brief
}

// generate 调用模型；仅限流错误按指数退避重试
func (a *Adapter) generate(ctx context.Context, op, prompt string) (string, error) {
	backoff := a.initialBackoff
	var lastErr error
	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		start := time.Now()
		reply, err := a.gen.Generate(ctx, prompt)
		if err == nil {
			metrics.RecordClassifierCall(op, "success", time.Since(start))
			return reply, nil
		}

		lastErr = asProviderError(err)
		if !apperr.IsRateLimited(lastErr) {
			metrics.RecordClassifierCall(op, "error", time.Since(start))
			return "", lastErr
		}
		metrics.RecordClassifierCall(op, "rate_limited", time.Since(start))

		if attempt == a.maxAttempts {
			break
		}
		a.logger.Warn("Classifier rate limited, backing off",
			zap.String("operation", op),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
		)
		if err := a.sleep(ctx, backoff); err != nil {
			return "", &apperr.ClassificationProviderError{Err: err}
		}
		backoff *= 2
	}
	return "", lastErr
}

func asProviderError(err error) error {
	var pe *apperr.ClassificationProviderError
	if errors.As(err, &pe) {
		return err
	}
	return &apperr.ClassificationProviderError{Err: err}
}

// cleanText 去掉模型常带的代码块与引号
func cleanText(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```text")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	return strings.TrimSpace(s)
}

// FallbackClassification 模型关闭或不可用时的分类
func FallbackClassification() *model.Classification {
	return &model.Classification{
		Intent:           model.IntentUnknown,
		Urgency:          model.UrgencyMedium,
		Confidence:       0,
		Reasoning:        FallbackReasoning,
		SuggestedActions: []model.SuggestedAction{},
		ModelVersion:     FallbackModel,
	}
}

func FallbackBrief() *model.AIBrief {
	return &model.AIBrief{
		Summary:     BriefUnavailable,
		Priorities:  []model.AIPriority{},
		Suggestions: []string{},
	}
}

// DisabledGenerator 模型开关关闭时使用
type DisabledGenerator struct{}

func (DisabledGenerator) Generate(context.Context, string) (string, error) {
	return "", apperr.ErrQuotaExhausted
}
