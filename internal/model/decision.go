package model

import (
	"fmt"
	"strings"
	"time"

	"mailtriage/internal/apperr"
)

// FollowUpDelay 决策创建后到首次追问的间隔，snooze 也按此推迟
const FollowUpDelay = 24 * time.Hour

type DecisionType string

const (
	DecisionReply    DecisionType = "REPLY"
	DecisionTask     DecisionType = "TASK"
	DecisionReminder DecisionType = "REMINDER"
)

// DecisionTypeFor 建议动作到决策类型的映射，IGNORE 与未知类型不产生决策
func DecisionTypeFor(a ActionType) (DecisionType, bool) {
	switch a {
	case ActionReply, ActionScheduleMeeting:
		return DecisionReply, true
	case ActionCreateTask:
		return DecisionTask, true
	case ActionFollowUp:
		return DecisionReminder, true
	}
	return "", false
}

type DecisionStatus string

const (
	DecisionPending   DecisionStatus = "PENDING"
	DecisionCompleted DecisionStatus = "COMPLETED"
	DecisionSnoozed   DecisionStatus = "SNOOZED"
	DecisionAbandoned DecisionStatus = "ABANDONED"
)

func ParseResolution(s string) (DecisionStatus, bool) {
	switch r := DecisionStatus(strings.ToUpper(strings.TrimSpace(s))); r {
	case DecisionCompleted, DecisionSnoozed, DecisionAbandoned:
		return r, true
	}
	return "", false
}

type Decision struct {
	ID               int            `json:"id"`
	UserID           int            `json:"userId"`
	EmailID          *int           `json:"emailId"`
	TaskID           *int           `json:"taskId"`
	ReminderID       *int           `json:"reminderId"`
	Type             DecisionType   `json:"decisionType"`
	Text             string         `json:"decisionText"`
	Status           DecisionStatus `json:"status"`
	FollowUpAt       time.Time      `json:"followUpAt"`
	SnoozeCount      int            `json:"snoozeCount"`
	CompletedAt      *time.Time     `json:"completedAt"`
	TimeToCompleteMs *int64         `json:"timeToComplete"`
	Source           string         `json:"source"`
	CreatedAt        time.Time      `json:"createdAt"`
	UpdatedAt        time.Time      `json:"updatedAt"`
}

func (d *Decision) checkPending(to DecisionStatus) error {
	if d.Status != DecisionPending {
		return fmt.Errorf("decision %d %s -> %s: %w", d.ID, d.Status, to, apperr.ErrIllegalTransition)
	}
	return nil
}

// Complete PENDING -> COMPLETED，timeToComplete 不小于 0
func (d *Decision) Complete(at time.Time) error {
	if err := d.checkPending(DecisionCompleted); err != nil {
		return err
	}
	ms := at.Sub(d.CreatedAt).Milliseconds()
	if ms < 0 {
		ms = 0
	}
	d.Status = DecisionCompleted
	d.CompletedAt = &at
	d.TimeToCompleteMs = &ms
	return nil
}

// Snooze 状态保持 PENDING，followUpAt 推迟 24 小时
func (d *Decision) Snooze() error {
	if err := d.checkPending(DecisionSnoozed); err != nil {
		return err
	}
	d.SnoozeCount++
	d.FollowUpAt = d.FollowUpAt.Add(FollowUpDelay)
	return nil
}

func (d *Decision) Abandon() error {
	if err := d.checkPending(DecisionAbandoned); err != nil {
		return err
	}
	d.Status = DecisionAbandoned
	return nil
}

// Resolve 用户对决策的处置
func (d *Decision) Resolve(r DecisionStatus, now time.Time) error {
	switch r {
	case DecisionCompleted:
		return d.Complete(now)
	case DecisionSnoozed:
		return d.Snooze()
	case DecisionAbandoned:
		return d.Abandon()
	}
	return apperr.Validation("resolution", fmt.Sprintf("unsupported resolution %q", r))
}
