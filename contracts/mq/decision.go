package mq

import "time"

// DecisionCreatedPayload 用户批准建议动作后生成决策
type DecisionCreatedPayload struct {
	DecisionID   int       `json:"decision_id"`
	UserID       int       `json:"user_id"`
	EmailID      *int      `json:"email_id,omitempty"`
	TaskID       *int      `json:"task_id,omitempty"`
	DecisionType string    `json:"decision_type"`
	DecisionText string    `json:"decision_text"`
	Status       string    `json:"status"`
	FollowUpAt   time.Time `json:"follow_up_at"`
}
