// Package scoring 基于关键词的确定性信号分，独立于模型输出
package scoring

import "strings"

// 权重表固定，修改即是策略变更
const (
	WeightQuestion    = 3
	WeightAction      = 4
	WeightDeadline    = 3
	WeightUrgency     = 3
	WeightUnsubscribe = -4
	WeightSale        = -6
	WeightOffer       = -6
	WeightNewsletter  = -8
	WeightNoReply     = -5
)

type Signal string

const (
	SignalQuestion    Signal = "QUESTION"
	SignalAction      Signal = "ACTION"
	SignalDeadline    Signal = "DEADLINE"
	SignalUrgency     Signal = "URGENCY"
	SignalUnsubscribe Signal = "UNSUBSCRIBE"
	SignalSale        Signal = "SALE"
	SignalOffer       Signal = "OFFER"
	SignalNewsletter  Signal = "NEWSLETTER"
	SignalNoReply     Signal = "NO_REPLY"
)

type rule struct {
	signal   Signal
	weight   int
	keywords []string
	// 只匹配发件人
	senderOnly bool
}

var rules = [...]rule{
	{signal: SignalQuestion, weight: WeightQuestion, keywords: []string{"?"}},
	{signal: SignalAction, weight: WeightAction, keywords: []string{"approve", "review", "sign off", "approval"}},
	{signal: SignalDeadline, weight: WeightDeadline, keywords: []string{"deadline", "eod", "end of day", "due by", "by friday"}},
	{signal: SignalUrgency, weight: WeightUrgency, keywords: []string{"urgent", "asap", "immediately", "today"}},
	{signal: SignalUnsubscribe, weight: WeightUnsubscribe, keywords: []string{"unsubscribe"}},
	{signal: SignalSale, weight: WeightSale, keywords: []string{"sale", "% off"}},
	{signal: SignalOffer, weight: WeightOffer, keywords: []string{"limited time", "offer"}},
	{signal: SignalNewsletter, weight: WeightNewsletter, keywords: []string{"newsletter", "digest"}},
	{signal: SignalNoReply, weight: WeightNoReply, keywords: []string{"no-reply", "noreply"}, senderOnly: true},
}

// Weights 返回权重表副本
func Weights() map[Signal]int {
	out := make(map[Signal]int, len(rules))
	for _, r := range rules {
		out[r.signal] = r.weight
	}
	return out
}

// Score 计算信号分，每类关键词最多计一次，大小写不敏感
func Score(sender, subject, body string) int {
	total, _ := Explain(sender, subject, body)
	return total
}

// Explain 返回信号分及命中的信号
func Explain(sender, subject, body string) (int, []Signal) {
	from := strings.ToLower(strings.TrimSpace(sender))
	text := strings.ToLower(strings.TrimSpace(subject + "\n" + body))
	if from == "" && text == "" {
		return 0, nil
	}

	total := 0
	var hits []Signal
	for _, r := range rules {
		haystack := text
		if r.senderOnly {
			haystack = from
		}
		if haystack == "" {
			continue
		}
		for _, kw := range r.keywords {
			if strings.Contains(haystack, kw) {
				total += r.weight
				hits = append(hits, r.signal)
				break
			}
		}
	}
	return total, hits
}
