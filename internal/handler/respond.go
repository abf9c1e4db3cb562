// Package handler gin 处理函数，业务错误统一由 writeError 映射为 HTTP 状态码
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mailtriage/internal/apperr"
	"mailtriage/pkg/logger"
)

// ContextUserID 认证中间件写入 gin.Context 的 key
const ContextUserID = "user_id"

// getUserID 统一的 userID 读取工具
func getUserID(c *gin.Context) (int, bool) {
	v, ok := c.Get(ContextUserID)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return 0, false
	}
	uid, ok := v.(int)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "invalid user_id"})
		return 0, false
	}
	return uid, true
}

func paramID(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

func statusFor(err error) int {
	var (
		ve *apperr.ValidationError
		nf *apperr.NotFoundError
		ce *apperr.ConflictError
	)
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.As(err, &nf):
		return http.StatusNotFound
	case errors.As(err, &ce), errors.Is(err, apperr.ErrIllegalTransition):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, apperr.ErrQuotaExhausted):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeError 5xx 记录日志且不向客户端暴露内部错误
func writeError(c *gin.Context, log *zap.Logger, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		logger.WithTrace(c.Request.Context(), log).Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		c.JSON(status, gin.H{"error": "internal server error"})
		return
	}

	msg := err.Error()
	var ve *apperr.ValidationError
	if errors.As(err, &ve) {
		msg = ve.Message
	}
	c.JSON(status, gin.H{"error": msg})
}
