package util

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5"

	"mailtriage/pkg/circuitbreaker"
	"mailtriage/pkg/db"
)

// retryable 由业务错误类型实现，例如模型限流错误
type retryable interface {
	Retryable() bool
}

// IsRetryableError 判断错误是否可以重试
// 返回：(isRetryable, errorType)
func IsRetryableError(err error) (bool, string) {
	if err == nil {
		return false, ""
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return false, "json_decode_error"
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return false, "not_found"
	}
	if db.IsUniqueViolation(err) {
		// 唯一约束冲突，幂等场景不重试
		return false, "duplicate_key"
	}

	if errors.Is(err, circuitbreaker.ErrCircuitBreakerOpen) {
		return true, "circuit_open"
	}

	var r retryable
	if errors.As(err, &r) {
		if r.Retryable() {
			return true, "provider_rate_limited"
		}
		return false, "provider_error"
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true, "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return false, "context_canceled"
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return true, "network_timeout"
		}
		return true, "network_error"
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return true, "network_timeout"
		}
		return true, "network_error"
	}

	errStr := err.Error()
	if strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "connection reset") {
		return true, "db_connection_error"
	}

	// 未知错误保守处理，不重试
	return false, "unknown_error"
}

// ShouldRetry 结合重试次数判断是否继续重试
func ShouldRetry(retryCount int64, maxRetries int64, isRetryable bool) bool {
	if !isRetryable {
		return false
	}
	return retryCount <= maxRetries
}
