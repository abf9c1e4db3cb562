package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"mailtriage/pkg/circuitbreaker"
	"mailtriage/pkg/config"
)

const DefaultExpoURL = "https://exp.host/--/api/v2/push/send"

// Message 推送内容；sound 为空表示静音
type Message struct {
	To       string         `json:"to"`
	Sound    *string        `json:"sound"`
	Title    string         `json:"title"`
	Body     string         `json:"body"`
	Data     map[string]any `json:"data"`
	Priority string         `json:"priority"`
}

type expoTicket struct {
	Status  string `json:"status"`
	ID      string `json:"id"`
	Message string `json:"message"`
}

type expoResponse struct {
	Data   []expoTicket      `json:"data"`
	Errors []json.RawMessage `json:"errors"`
}

// DeliveryRejectedError 推送服务返回了非 ok 的回执
type DeliveryRejectedError struct {
	StatusCode int
	Detail     string
}

func (e *DeliveryRejectedError) Error() string {
	return fmt.Sprintf("push delivery rejected (http %d): %s", e.StatusCode, e.Detail)
}

// ExpoNotifier 调用 Expo Push API
type ExpoNotifier struct {
	url         string
	accessToken string
	client      *http.Client
	breaker     *circuitbreaker.CircuitBreaker
	logger      *zap.Logger
}

func NewExpoNotifier(cfg config.NotifyConfig, logger *zap.Logger) *ExpoNotifier {
	url := cfg.ExpoURL
	if url == "" {
		url = DefaultExpoURL
	}

	cbCfg := circuitbreaker.DefaultConfig("expo")
	// 被拒绝的单条推送不代表服务故障
	cbCfg.IsSuccessful = func(err error) bool {
		if err == nil {
			return true
		}
		var rejected *DeliveryRejectedError
		return errors.As(err, &rejected)
	}
	cbCfg.OnStateChange = func(name string, from, to circuitbreaker.State) {
		logger.Warn("Circuit breaker state changed",
			zap.String("breaker", name),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}

	return &ExpoNotifier{
		url:         url,
		accessToken: cfg.AccessToken,
		client:      &http.Client{Timeout: 10 * time.Second},
		breaker:     circuitbreaker.NewCircuitBreaker(cbCfg),
		logger:      logger,
	}
}

func (n *ExpoNotifier) WithHTTPClient(c *http.Client) *ExpoNotifier {
	n.client = c
	return n
}

// Push 成功时返回回执 id
func (n *ExpoNotifier) Push(ctx context.Context, msg Message) (string, error) {
	var receipt string
	err := n.breaker.Execute(func() error {
		id, err := n.post(ctx, msg)
		receipt = id
		return err
	})
	return receipt, err
}

func (n *ExpoNotifier) post(ctx context.Context, msg Message) (string, error) {
	payload, err := json.Marshal([]Message{msg})
	if err != nil {
		return "", fmt.Errorf("failed to marshal push message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build push request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if n.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+n.accessToken)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send push request: %w", err)
	}
	defer resp.Body.Close()

	var out expoResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		if resp.StatusCode >= 500 {
			return "", fmt.Errorf("push service returned http %d", resp.StatusCode)
		}
		return "", &DeliveryRejectedError{StatusCode: resp.StatusCode, Detail: "unreadable response"}
	}
	if resp.StatusCode >= 500 {
		return "", fmt.Errorf("push service returned http %d", resp.StatusCode)
	}
	if len(out.Data) == 0 || out.Data[0].Status != "ok" {
		detail := "empty receipt"
		if len(out.Data) > 0 {
			detail = out.Data[0].Message
		} else if len(out.Errors) > 0 {
			detail = string(out.Errors[0])
		}
		return "", &DeliveryRejectedError{StatusCode: resp.StatusCode, Detail: detail}
	}
	return out.Data[0].ID, nil
}
