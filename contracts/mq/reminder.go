package mq

import "time"

// ReminderTriggeredPayload 提醒到期后发布，Delivered 为推送结果
type ReminderTriggeredPayload struct {
	ReminderID  int       `json:"reminder_id"`
	UserID      int       `json:"user_id"`
	EmailID     *int      `json:"email_id,omitempty"`
	Delivered   bool      `json:"delivered"`
	Reason      string    `json:"reason"`
	TriggeredAt time.Time `json:"triggered_at"`
}
