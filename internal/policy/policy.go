// Package policy 对模型分类结果做确定性的紧急度校正
//
// 规则按固定顺序执行，顺序本身是行为的一部分：
//  1. 置信度闸门：confidence < 0.6 强制 LOW，直接返回
//  2. 噪声覆盖：signalScore <= -5 强制 LOW
//  3. 意图下限：MARKETING / NEWSLETTER / FYI 强制 LOW
//  4. HIGH 严格性：HIGH 且 signalScore < 5 降为 MEDIUM
//  5. MEDIUM 下限：MEDIUM 且 signalScore <= 0 降为 LOW
//
// reasoning 取最后一条命中规则的说明，未命中时保留模型原文。
package policy

import (
	"fmt"

	"mailtriage/internal/model"
)

const (
	ConfidenceThreshold = 0.6
	NoiseThreshold      = -5
	HighMinScore        = 5
	MediumMinScore      = 0
)

// 规则名，记录在 Classification.Overrides 中
const (
	RuleConfidenceGate = "confidence_gate"
	RuleNoiseOverride  = "noise_override"
	RuleIntentFloor    = "intent_floor"
	RuleHighStrictness = "high_strictness"
	RuleMediumFloor    = "medium_floor"
)

const systemPrefix = "[System] "

type rule struct {
	name  string
	apply func(c *model.Classification, score int) (string, bool)
}

var chain = []rule{
	{RuleNoiseOverride, noiseOverride},
	{RuleIntentFloor, intentFloor},
	{RuleHighStrictness, highStrictness},
	{RuleMediumFloor, mediumFloor},
}

// Apply 返回校正后的分类，不修改入参
func Apply(raw model.Classification, signalScore int) model.Classification {
	out := raw
	out.SuggestedActions = append([]model.SuggestedAction(nil), raw.SuggestedActions...)
	out.SignalScore = signalScore
	out.Overrides = nil

	if raw.Confidence < ConfidenceThreshold {
		out.Urgency = model.UrgencyLow
		out.Reasoning = systemPrefix + fmt.Sprintf(
			"Low confidence (%.2f) - urgency forced to LOW for manual review.", raw.Confidence)
		out.Overrides = []string{RuleConfidenceGate}
		return out
	}

	for _, r := range chain {
		if note, fired := r.apply(&out, signalScore); fired {
			out.Reasoning = systemPrefix + note
			out.Overrides = append(out.Overrides, r.name)
		}
	}
	return out
}

func noiseOverride(c *model.Classification, score int) (string, bool) {
	if score > NoiseThreshold {
		return "", false
	}
	c.Urgency = model.UrgencyLow
	return fmt.Sprintf("Noise override: marketing/newsletter keyword signal (score %d).", score), true
}

func intentFloor(c *model.Classification, _ int) (string, bool) {
	switch c.Intent {
	case model.IntentMarketing, model.IntentNewsletter, model.IntentFYI:
		c.Urgency = model.UrgencyLow
		return fmt.Sprintf("Intent %s is informational - urgency set to LOW.", c.Intent), true
	}
	return "", false
}

func highStrictness(c *model.Classification, score int) (string, bool) {
	if c.Urgency != model.UrgencyHigh || score >= HighMinScore {
		return "", false
	}
	c.Urgency = model.UrgencyMedium
	return fmt.Sprintf("HIGH urgency not supported by signal score %d (needs %d) - downgraded to MEDIUM.",
		score, HighMinScore), true
}

func mediumFloor(c *model.Classification, score int) (string, bool) {
	if c.Urgency != model.UrgencyMedium || score > MediumMinScore {
		return "", false
	}
	c.Urgency = model.UrgencyLow
	return fmt.Sprintf("MEDIUM urgency with no positive signal (score %d) - downgraded to LOW.", score), true
}
