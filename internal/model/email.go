package model

import (
	"fmt"
	"strings"
	"time"

	"mailtriage/internal/apperr"
)

type Intent string

const (
	IntentMeetingRequest Intent = "MEETING_REQUEST"
	IntentTaskRequest    Intent = "TASK_REQUEST"
	IntentQuestion       Intent = "QUESTION"
	IntentFYI            Intent = "FYI"
	IntentUrgent         Intent = "URGENT"
	IntentMarketing      Intent = "MARKETING"
	IntentNewsletter     Intent = "NEWSLETTER"
	IntentUnknown        Intent = "UNKNOWN"
)

var intents = map[Intent]bool{
	IntentMeetingRequest: true,
	IntentTaskRequest:    true,
	IntentQuestion:       true,
	IntentFYI:            true,
	IntentUrgent:         true,
	IntentMarketing:      true,
	IntentNewsletter:     true,
	IntentUnknown:        true,
}

// ParseIntent 未知值返回 UNKNOWN
func ParseIntent(s string) Intent {
	i := Intent(strings.ToUpper(strings.TrimSpace(s)))
	if intents[i] {
		return i
	}
	return IntentUnknown
}

// NeedsReply 需要回复的意图才生成草稿
func (i Intent) NeedsReply() bool {
	return i == IntentMeetingRequest || i == IntentQuestion || i == IntentTaskRequest
}

type Urgency string

const (
	UrgencyHigh   Urgency = "HIGH"
	UrgencyMedium Urgency = "MEDIUM"
	UrgencyLow    Urgency = "LOW"
)

// ParseUrgency 未知值返回 MEDIUM，由规则引擎再做校正
func ParseUrgency(s string) Urgency {
	switch u := Urgency(strings.ToUpper(strings.TrimSpace(s))); u {
	case UrgencyHigh, UrgencyMedium, UrgencyLow:
		return u
	default:
		return UrgencyMedium
	}
}

type ActionType string

const (
	ActionReply           ActionType = "REPLY"
	ActionCreateTask      ActionType = "CREATE_TASK"
	ActionScheduleMeeting ActionType = "SCHEDULE_MEETING"
	ActionFollowUp        ActionType = "FOLLOW_UP"
	ActionIgnore          ActionType = "IGNORE"
)

func (a ActionType) Valid() bool {
	switch a {
	case ActionReply, ActionCreateTask, ActionScheduleMeeting, ActionFollowUp, ActionIgnore:
		return true
	}
	return false
}

type SuggestedAction struct {
	Type        ActionType `json:"type"`
	Description string     `json:"description"`
	Priority    int        `json:"priority"`
}

// Classification 模型输出，经过规则引擎后为最终结论
type Classification struct {
	Intent           Intent            `json:"intent"`
	Urgency          Urgency           `json:"urgency"`
	Summary          string            `json:"summary"`
	Confidence       float64           `json:"confidenceScore"`
	Reasoning        string            `json:"reasoning"`
	SuggestedActions []SuggestedAction `json:"suggestedActions"`
	SignalScore      int               `json:"signalScore"`
	Overrides        []string          `json:"policyOverrides,omitempty"`
	ModelVersion     string            `json:"modelVersion,omitempty"`
}

type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusCompleted  ProcessingStatus = "completed"
	StatusFailed     ProcessingStatus = "failed"
)

type UserAction string

const (
	UserActionPending  UserAction = "pending"
	UserActionApproved UserAction = "approved"
	UserActionRejected UserAction = "rejected"
	UserActionIgnored  UserAction = "ignored"
)

func ParseUserAction(s string) (UserAction, bool) {
	switch a := UserAction(strings.ToLower(strings.TrimSpace(s))); a {
	case UserActionPending, UserActionApproved, UserActionRejected, UserActionIgnored:
		return a, true
	}
	return "", false
}

type Address struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (a Address) String() string {
	if a.Name == "" {
		return a.Email
	}
	return fmt.Sprintf("%s <%s>", a.Name, a.Email)
}

type Attachment struct {
	Filename string `json:"filename"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size"`
}

type Email struct {
	ID                int          `json:"id"`
	UserID            int          `json:"userId"`
	ExternalMessageID string       `json:"externalMessageId"`
	ThreadID          string       `json:"threadId"`
	From              Address      `json:"from"`
	To                []Address    `json:"to"`
	Subject           string       `json:"subject"`
	Body              string       `json:"body"`
	BodyHTML          string       `json:"bodyHtml,omitempty"`
	Snippet           string       `json:"snippet"`
	Attachments       []Attachment `json:"attachments"`
	ReceivedAt        time.Time    `json:"receivedAt"`

	Classification
	DraftReply  *string    `json:"draftReply"`
	ProcessedAt *time.Time `json:"processedAt"`

	Status     ProcessingStatus `json:"status"`
	RetryCount int              `json:"retryCount"`
	LastError  string           `json:"lastError,omitempty"`

	UserAction     UserAction `json:"userAction"`
	IsRead         bool       `json:"isRead"`
	LastSurfacedAt *time.Time `json:"lastSurfacedAt"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PrimaryAction 第一个建议动作
func (e *Email) PrimaryAction() (SuggestedAction, bool) {
	if len(e.SuggestedActions) == 0 {
		return SuggestedAction{}, false
	}
	return e.SuggestedActions[0], true
}

var emailStatusTransitions = map[ProcessingStatus][]ProcessingStatus{
	StatusPending:    {StatusProcessing},
	StatusProcessing: {StatusCompleted, StatusFailed},
	StatusFailed:     {StatusProcessing},
}

// TransitionStatus 处理状态机
func (e *Email) TransitionStatus(to ProcessingStatus) error {
	if !allowed(emailStatusTransitions[e.Status], to) {
		return fmt.Errorf("email %d status %s -> %s: %w", e.ID, e.Status, to, apperr.ErrIllegalTransition)
	}
	e.Status = to
	return nil
}

// Complete processing -> completed，写入最终分类
func (e *Email) Complete(c Classification, at time.Time) error {
	if err := e.TransitionStatus(StatusCompleted); err != nil {
		return err
	}
	e.Classification = c
	e.ProcessedAt = &at
	e.LastError = ""
	return nil
}

// Fail processing -> failed，记录错误并累加重试次数
func (e *Email) Fail(cause error) error {
	if err := e.TransitionStatus(StatusFailed); err != nil {
		return err
	}
	e.RetryCount++
	e.LastError = cause.Error()
	return nil
}

// ApplyUserAction 只能从 pending 做出一次处置
func (e *Email) ApplyUserAction(a UserAction) error {
	if e.UserAction != UserActionPending || a == UserActionPending {
		return fmt.Errorf("email %d user action %s -> %s: %w", e.ID, e.UserAction, a, apperr.ErrIllegalTransition)
	}
	e.UserAction = a
	return nil
}

func allowed[T comparable](targets []T, to T) bool {
	for _, t := range targets {
		if t == to {
			return true
		}
	}
	return false
}
