package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"mailtriage/pkg/trace"
)

// InsertEventInTx 序列化 payload 并写入 outbox，context 中的 trace_id 一并写入
func InsertEventInTx(
	ctx context.Context,
	tx pgx.Tx,
	repo *Repository,
	aggregateType string,
	aggregateID int64,
	routingKey string,
	payload interface{},
) error {
	payloadJSON, err := encodePayload(ctx, payload)
	if err != nil {
		return err
	}

	id := aggregateID
	return repo.InsertEvent(ctx, tx, &Event{
		AggregateType: aggregateType,
		AggregateID:   &id,
		RoutingKey:    routingKey,
		Payload:       payloadJSON,
		Status:        StatusPending,
	})
}

func encodePayload(ctx context.Context, payload interface{}) (json.RawMessage, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal outbox payload: %w", err)
	}

	traceID := trace.FromContext(ctx)
	if traceID == "" {
		return raw, nil
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		// 非对象 payload 原样写入
		return raw, nil
	}
	if _, exists := m["trace_id"]; !exists {
		m["trace_id"] = traceID
	}
	return json.Marshal(m)
}

// traceFromPayload 从 payload 中提取 trace_id
func traceFromPayload(ctx context.Context, payload json.RawMessage) context.Context {
	var m struct {
		TraceID string `json:"trace_id"`
	}
	if err := json.Unmarshal(payload, &m); err != nil || m.TraceID == "" {
		return ctx
	}
	return trace.WithContext(ctx, m.TraceID)
}
