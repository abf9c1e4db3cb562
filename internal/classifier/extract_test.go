package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  string
		ok    bool
	}{
		{"bare", `{"a":1}`, `{"a":1}`, true},
		{"commentary", `Here you go: {"a":1} hope it helps`, `{"a":1}`, true},
		{"fenced", "```json\n{\"a\":{\"b\":2}}\n```", `{"a":{"b":2}}`, true},
		{"brace in string", `{"a":"}{"}`, `{"a":"}{"}`, true},
		{"escaped quote", `{"a":"say \"}\""}`, `{"a":"say \"}\""}`, true},
		{"first of two", `{"a":1} {"b":2}`, `{"a":1}`, true},
		{"skips invalid candidate", `{not json} then {"b":2}`, `{"b":2}`, true},
		{"unbalanced", `{"a":1`, "", false},
		{"none", "no json", "", false},
		{"empty", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractJSONObject(tt.reply)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
