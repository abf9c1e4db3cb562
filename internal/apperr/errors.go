// Package apperr 定义业务错误类型，handler 按类型映射 HTTP 状态码
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrIllegalTransition 实体状态机拒绝的状态变化
	ErrIllegalTransition = errors.New("illegal state transition")
	// ErrQuotaExhausted 模型或推送配额耗尽，调用方降级为固定内容
	ErrQuotaExhausted = errors.New("quota exhausted")
	// ErrRateLimited 用户请求过于频繁 → 429
	ErrRateLimited = errors.New("too many requests")
	// ErrInvalidCredentials 登录失败 → 401
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// ValidationError 请求参数不合法 → 400
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func Validation(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// ConflictError 违反唯一性约束 → 409
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

func Conflict(format string, args ...any) error {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

// NotFoundError 实体不存在 → 404
type NotFoundError struct {
	Entity string
	ID     int
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

func NotFound(entity string, id int) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// ClassificationParseError 模型回复中没有可解析的 JSON 对象
type ClassificationParseError struct {
	Reply string
	Err   error
}

func (e *ClassificationParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("classification parse error: %v", e.Err)
	}
	return "classification parse error: no JSON object in reply"
}

func (e *ClassificationParseError) Unwrap() error { return e.Err }

// ClassificationProviderError 模型服务调用失败，RateLimited 时可重试
type ClassificationProviderError struct {
	RateLimited bool
	Err         error
}

func (e *ClassificationProviderError) Error() string {
	if e.RateLimited {
		return fmt.Sprintf("classifier rate limited: %v", e.Err)
	}
	return fmt.Sprintf("classifier provider error: %v", e.Err)
}

func (e *ClassificationProviderError) Unwrap() error { return e.Err }

// Retryable 供 util.IsRetryableError 识别
func (e *ClassificationProviderError) Retryable() bool { return e.RateLimited }

// IsRateLimited 错误链中是否有限流错误
func IsRateLimited(err error) bool {
	var pe *ClassificationProviderError
	return errors.As(err, &pe) && pe.RateLimited
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
