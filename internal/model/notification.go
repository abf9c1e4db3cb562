package model

import "time"

type NotificationCategory string

const (
	CategoryReminder         NotificationCategory = "REMINDER"
	CategoryDecisionFollowUp NotificationCategory = "DECISION_FOLLOWUP"
	CategoryUrgentEmail      NotificationCategory = "URGENT_EMAIL"
)

// NotificationSettings 每个用户的推送状态
type NotificationSettings struct {
	UserID                 int        `json:"userId"`
	PushToken              string     `json:"-"`
	Reminders              bool       `json:"reminders"`
	DecisionFollowUps      bool       `json:"decisionFollowUps"`
	UrgentEmails           bool       `json:"urgentEmails"`
	NotificationsSentToday int        `json:"notificationsSentToday"`
	LastNotificationSentAt *time.Time `json:"lastNotificationSentAt"`
}

// DefaultNotificationSettings 新用户默认开启提醒与决策追问
func DefaultNotificationSettings(userID int) *NotificationSettings {
	return &NotificationSettings{
		UserID:            userID,
		Reminders:         true,
		DecisionFollowUps: true,
	}
}

// Allows 分类开关
func (s *NotificationSettings) Allows(c NotificationCategory) bool {
	switch c {
	case CategoryReminder:
		return s.Reminders
	case CategoryDecisionFollowUp:
		return s.DecisionFollowUps
	case CategoryUrgentEmail:
		return s.UrgentEmails
	}
	return false
}

// SentTodayAt 按 loc 的自然日计算当天已发送数量，跨天视为 0
func (s *NotificationSettings) SentTodayAt(now time.Time, loc *time.Location) int {
	if s.LastNotificationSentAt == nil || !SameDay(*s.LastNotificationSentAt, now, loc) {
		return 0
	}
	return s.NotificationsSentToday
}

func SameDay(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}

// NotificationLog 每次发送尝试一条
type NotificationLog struct {
	ID        int                  `json:"id"`
	UserID    int                  `json:"userId"`
	Category  NotificationCategory `json:"category"`
	Title     string               `json:"title"`
	Body      string               `json:"body"`
	Delivered bool                 `json:"delivered"`
	Reason    string               `json:"reason"`
	ReceiptID string               `json:"receiptId"`
	CreatedAt time.Time            `json:"createdAt"`
}
