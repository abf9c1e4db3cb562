package mq

import "time"

// EmailClassifiedPayload 邮件完成分类后发布，worker 据此推送紧急邮件
type EmailClassifiedPayload struct {
	EmailID     int       `json:"email_id"`
	UserID      int       `json:"user_id"`
	Subject     string    `json:"subject"`
	FromName    string    `json:"from_name"`
	FromEmail   string    `json:"from_email"`
	Intent      string    `json:"intent"`
	Urgency     string    `json:"urgency"`
	Summary     string    `json:"summary"`
	SignalScore int       `json:"signal_score"`
	Overrides   []string  `json:"policy_overrides,omitempty"`
	ProcessedAt time.Time `json:"processed_at"`
}
