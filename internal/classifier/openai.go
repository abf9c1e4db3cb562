package classifier

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"mailtriage/internal/apperr"
	"mailtriage/pkg/circuitbreaker"
	"mailtriage/pkg/config"
)

// OpenAIGenerator 通过 OpenAI 兼容接口调用模型，外层有熔断保护
type OpenAIGenerator struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.Logger
}

func NewOpenAIGenerator(cfg config.AIConfig, logger *zap.Logger) *OpenAIGenerator {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}

	cbCfg := circuitbreaker.DefaultConfig("classifier")
	// 限流不代表服务故障，交给 Adapter 退避
	cbCfg.IsSuccessful = func(err error) bool {
		return err == nil || apperr.IsRateLimited(err)
	}
	cbCfg.OnStateChange = func(name string, from, to circuitbreaker.State) {
		logger.Warn("Circuit breaker state changed",
			zap.String("breaker", name),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OpenAIGenerator{
		client:  openai.NewClientWithConfig(oc),
		model:   cfg.Model,
		timeout: timeout,
		breaker: circuitbreaker.NewCircuitBreaker(cbCfg),
		logger:  logger,
	}
}

func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	var out string
	err := g.breaker.Execute(func() error {
		cctx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()

		resp, err := g.client.CreateChatCompletion(cctx, openai.ChatCompletionRequest{
			Model: g.model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
			Temperature: 0.2,
		})
		if err != nil {
			return providerError(err)
		}
		if len(resp.Choices) == 0 {
			return &apperr.ClassificationProviderError{Err: errors.New("empty completion")}
		}
		out = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", err
	}
	return out, nil
}

// providerError 429 视为限流；insufficient_quota 视为配额耗尽，不重试
func providerError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Type == "insufficient_quota" {
			return &apperr.ClassificationProviderError{Err: fmt.Errorf("%w: %v", apperr.ErrQuotaExhausted, err)}
		}
		return &apperr.ClassificationProviderError{
			RateLimited: apiErr.HTTPStatusCode == http.StatusTooManyRequests,
			Err:         err,
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &apperr.ClassificationProviderError{
			RateLimited: reqErr.HTTPStatusCode == http.StatusTooManyRequests,
			Err:         err,
		}
	}
	return &apperr.ClassificationProviderError{Err: err}
}
