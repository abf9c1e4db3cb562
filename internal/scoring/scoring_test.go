package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFrozenWeights(t *testing.T) {
	assert.Equal(t, -6, WeightSale)
	assert.Equal(t, -8, WeightNewsletter)
	assert.Equal(t, 4, WeightAction)
	assert.Equal(t, 3, WeightUrgency)

	w := Weights()
	w[SignalSale] = 100
	assert.Equal(t, WeightSale, Weights()[SignalSale])
	assert.Len(t, Weights(), 9)
}

func TestScore(t *testing.T) {
	tests := []struct {
		name    string
		sender  string
		subject string
		body    string
		want    int
	}{
		{"empty", "", "", "", 0},
		{"whitespace", "  ", "\t", "\n", 0},
		{"approval deadline", "boss@corp.com", "Please approve budget by EOD today", "", 10},
		{"promo", "shop@store.com", "50% OFF - Limited Time", "", -12},
		{"question", "a@b.com", "Quick question", "Can we meet?", 3},
		{"question counted once", "a@b.com", "???", "really?", 3},
		{"newsletter from noreply", "noreply@news.com", "Weekly digest", "unsubscribe here", -8 - 5 - 4},
		{"no-reply sender only", "a@b.com", "reply to no-reply", "", 0},
		{"review and approval same family", "", "review and approval", "", 4},
		{"urgent asap", "", "URGENT", "asap please", 3},
		{"sale and offer", "", "Sale", "special offer", -12},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Score(tt.sender, tt.subject, tt.body))
		})
	}
}

func TestExplain(t *testing.T) {
	total, hits := Explain("x@y.com", "Please approve budget by EOD today", "")
	assert.Equal(t, 10, total)
	assert.Equal(t, []Signal{SignalAction, SignalDeadline, SignalUrgency}, hits)
}
