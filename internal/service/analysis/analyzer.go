// Package analysis 组合信号分、模型分类与规则引擎，得到邮件的最终分类
package analysis

import (
	"context"

	"go.uber.org/zap"

	"mailtriage/internal/classifier"
	"mailtriage/internal/model"
	"mailtriage/internal/policy"
	"mailtriage/internal/scoring"
	"mailtriage/pkg/metrics"
)

type Classifier interface {
	Classify(ctx context.Context, sender, subject, body string) (*model.Classification, error)
}

type Analyzer struct {
	classifier Classifier
	enabled    bool
	logger     *zap.Logger
}

// NewAnalyzer enabled=false 时不调用模型，直接使用降级分类
func NewAnalyzer(c Classifier, enabled bool, logger *zap.Logger) *Analyzer {
	return &Analyzer{classifier: c, enabled: enabled, logger: logger}
}

func (a *Analyzer) Analyze(ctx context.Context, e *model.Email) (*model.Classification, error) {
	sender := e.From.String()
	score := scoring.Score(sender, e.Subject, e.Body)

	raw := classifier.FallbackClassification()
	if a.enabled {
		c, err := a.classifier.Classify(ctx, sender, e.Subject, e.Body)
		if err != nil {
			return nil, err
		}
		raw = c
	}

	final := policy.Apply(*raw, score)
	for _, rule := range final.Overrides {
		metrics.IncrementPolicyOverride(rule)
	}
	if len(final.Overrides) > 0 {
		a.logger.Debug("Policy overrides applied",
			zap.String("external_message_id", e.ExternalMessageID),
			zap.Strings("rules", final.Overrides),
			zap.String("raw_urgency", string(raw.Urgency)),
			zap.String("final_urgency", string(final.Urgency)),
			zap.Int("signal_score", score),
		)
	}
	return &final, nil
}
