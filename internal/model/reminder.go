package model

import (
	"fmt"
	"strings"
	"time"

	"mailtriage/internal/apperr"
)

type ReminderStatus string

const (
	ReminderPending   ReminderStatus = "pending"
	ReminderTriggered ReminderStatus = "triggered"
	ReminderCancelled ReminderStatus = "cancelled"
)

func ParseReminderStatus(s string) (ReminderStatus, bool) {
	switch st := ReminderStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case ReminderPending, ReminderTriggered, ReminderCancelled:
		return st, true
	}
	return "", false
}

// EmailReminder 每封邮件最多一个 pending 提醒，由部分唯一索引保证
type EmailReminder struct {
	ID          int            `json:"id"`
	UserID      int            `json:"userId"`
	EmailID     *int           `json:"emailId"`
	RemindAt    time.Time      `json:"remindAt"`
	Status      ReminderStatus `json:"status"`
	Reason      string         `json:"reason"`
	TriggeredAt *time.Time     `json:"triggeredAt"`
	// 列表查询时关联的邮件主题
	EmailSubject string    `json:"emailSubject,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (r *EmailReminder) Trigger(at time.Time) error {
	if r.Status != ReminderPending {
		return fmt.Errorf("reminder %d %s -> %s: %w", r.ID, r.Status, ReminderTriggered, apperr.ErrIllegalTransition)
	}
	r.Status = ReminderTriggered
	r.TriggeredAt = &at
	return nil
}

func (r *EmailReminder) Cancel() error {
	if r.Status != ReminderPending {
		return fmt.Errorf("reminder %d %s -> %s: %w", r.ID, r.Status, ReminderCancelled, apperr.ErrIllegalTransition)
	}
	r.Status = ReminderCancelled
	return nil
}
