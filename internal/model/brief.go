package model

import "time"

type BriefState string

const (
	BriefCritical BriefState = "CRITICAL"
	BriefWarning  BriefState = "WARNING"
	BriefClear    BriefState = "CLEAR"
)

type BriefItemType string

const (
	BriefItemBlocking   BriefItemType = "BLOCKING"
	BriefItemReminder   BriefItemType = "REMINDER"
	BriefItemUrgentRead BriefItemType = "URGENT_READ"
)

type BriefItem struct {
	Type       BriefItemType `json:"type"`
	EmailID    int           `json:"emailId"`
	ReminderID *int          `json:"reminderId,omitempty"`
	Title      string        `json:"title"`
	Subtitle   string        `json:"subtitle"`
	At         *time.Time    `json:"at,omitempty"`
}

type Brief struct {
	State    BriefState  `json:"state"`
	Headline string      `json:"headline"`
	Subtext  string      `json:"subtext"`
	Items    []BriefItem `json:"items"`
}

type AIPriority struct {
	Item   string `json:"item"`
	Reason string `json:"reason"`
	Action string `json:"action"`
}

// AIBrief 模型生成的早/晚间摘要
type AIBrief struct {
	Summary     string       `json:"summary"`
	Priorities  []AIPriority `json:"priorities"`
	Suggestions []string     `json:"suggestions"`
}

// Dashboard 带 AI 摘要的 brief，缓存 15 分钟
type Dashboard struct {
	Brief       *Brief    `json:"brief"`
	AIBrief     *AIBrief  `json:"aiBrief"`
	TimeOfDay   string    `json:"timeOfDay"`
	GeneratedAt time.Time `json:"generatedAt"`
	Cached      bool      `json:"cached"`
}

type DashboardStats struct {
	TotalEmails      int `json:"totalEmails"`
	UnreadEmails     int `json:"unreadEmails"`
	HighUrgency      int `json:"highUrgency"`
	PendingActions   int `json:"pendingActions"`
	FailedEmails     int `json:"failedEmails"`
	PendingTasks     int `json:"pendingTasks"`
	PendingDecisions int `json:"pendingDecisions"`
	ActiveReminders  int `json:"activeReminders"`
}
