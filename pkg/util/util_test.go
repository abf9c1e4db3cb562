package util

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailtriage/pkg/circuitbreaker"
)

type fakeProviderErr struct{ rateLimited bool }

func (e *fakeProviderErr) Error() string   { return "provider" }
func (e *fakeProviderErr) Retryable() bool { return e.rateLimited }

func TestIsRetryableError(t *testing.T) {
	var syntaxErr error = &json.SyntaxError{}

	tests := []struct {
		name      string
		err       error
		retryable bool
		errType   string
	}{
		{"nil", nil, false, ""},
		{"json", fmt.Errorf("decode: %w", syntaxErr), false, "json_decode_error"},
		{"no rows", fmt.Errorf("find: %w", pgx.ErrNoRows), false, "not_found"},
		{"unique", &pgconn.PgError{Code: "23505"}, false, "duplicate_key"},
		{"breaker", fmt.Errorf("call: %w", circuitbreaker.ErrCircuitBreakerOpen), true, "circuit_open"},
		{"rate limited", fmt.Errorf("x: %w", &fakeProviderErr{rateLimited: true}), true, "provider_rate_limited"},
		{"provider", &fakeProviderErr{}, false, "provider_error"},
		{"deadline", context.DeadlineExceeded, true, "timeout"},
		{"canceled", context.Canceled, false, "context_canceled"},
		{"conn refused", errors.New("dial tcp: connection refused"), true, "db_connection_error"},
		{"unknown", errors.New("weird"), false, "unknown_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			retryable, errType := IsRetryableError(tt.err)
			assert.Equal(t, tt.retryable, retryable)
			assert.Equal(t, tt.errType, errType)
		})
	}
}

func TestShouldRetry(t *testing.T) {
	assert.True(t, ShouldRetry(1, 3, true))
	assert.True(t, ShouldRetry(3, 3, true))
	assert.False(t, ShouldRetry(4, 3, true))
	assert.False(t, ShouldRetry(0, 3, false))
}

func TestJWTRoundTrip(t *testing.T) {
	token, err := GenerateJWT(42, "admin", "secret")
	require.NoError(t, err)

	claims, err := ParseJWT(token, "secret")
	require.NoError(t, err)
	assert.Equal(t, 42, claims.UserID)
	assert.Equal(t, "admin", claims.Role)

	_, err = ParseJWT(token, "other-secret")
	assert.Error(t, err)
}

func TestExtractToken(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, "", ExtractToken(req))

	req.Header.Set("Authorization", "Bearer abc")
	assert.Equal(t, "abc", ExtractToken(req))

	req.Header.Set("Authorization", "Basic abc")
	assert.Equal(t, "", ExtractToken(req))
}

func TestPassword(t *testing.T) {
	hash, err := HashPassword("hunter22")
	require.NoError(t, err)
	assert.True(t, CheckPassword("hunter22", hash))
	assert.False(t, CheckPassword("wrong", hash))
}

func TestKeyFormats(t *testing.T) {
	assert.Equal(t, "dedup:urgent_email:7", FormatDedupKey("urgent_email", 7))
	assert.Equal(t, "retry:urgent_email:7", FormatRetryKey("urgent_email", 7))
	assert.Equal(t, "ratelimit:sync:3", FormatRateLimitKey("sync", 3))
}
