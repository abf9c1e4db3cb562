package classifier

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mailtriage/internal/apperr"
	"mailtriage/pkg/config"
)

func newOpenAITestServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testAIConfig(url string) config.AIConfig {
	return config.AIConfig{Enabled: true, BaseURL: url + "/v1", APIKey: "test", Model: "gpt-4o-mini", Timeout: 5 * time.Second}
}

func TestOpenAIGeneratorSuccess(t *testing.T) {
	srv := newOpenAITestServer(t, http.StatusOK, `{
		"id": "chatcmpl-1",
		"object": "chat.completion",
		"choices": [{"index": 0, "message": {"role": "assistant", "content": "{\"intent\":\"FYI\"}"}, "finish_reason": "stop"}]
	}`)

	g := NewOpenAIGenerator(testAIConfig(srv.URL), zap.NewNop())
	out, err := g.Generate(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, `{"intent":"FYI"}`, out)
}

func TestOpenAIGeneratorRateLimited(t *testing.T) {
	srv := newOpenAITestServer(t, http.StatusTooManyRequests,
		`{"error": {"message": "Rate limit reached", "type": "requests", "code": "rate_limit_exceeded"}}`)

	g := NewOpenAIGenerator(testAIConfig(srv.URL), zap.NewNop())
	_, err := g.Generate(context.Background(), "hello")
	require.Error(t, err)
	assert.True(t, apperr.IsRateLimited(err))
}

func TestOpenAIGeneratorQuota(t *testing.T) {
	srv := newOpenAITestServer(t, http.StatusTooManyRequests,
		`{"error": {"message": "You exceeded your current quota", "type": "insufficient_quota", "code": "insufficient_quota"}}`)

	g := NewOpenAIGenerator(testAIConfig(srv.URL), zap.NewNop())
	_, err := g.Generate(context.Background(), "hello")
	assert.ErrorIs(t, err, apperr.ErrQuotaExhausted)
	assert.False(t, apperr.IsRateLimited(err))
}
