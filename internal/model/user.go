package model

import "time"

type User struct {
	ID           int       `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}

// AISuggestion 用户处置时 AI 给出的建议快照
type AISuggestion struct {
	Intent  Intent           `json:"intent"`
	Urgency Urgency          `json:"urgency"`
	Action  *SuggestedAction `json:"action"`
}

// UserActionLog 用户处置邮件的审计记录
type UserActionLog struct {
	ID           int          `json:"id"`
	UserID       int          `json:"userId"`
	EmailID      int          `json:"emailId"`
	Action       UserAction   `json:"action"`
	AISuggestion AISuggestion `json:"aiSuggestion"`
	CreatedAt    time.Time    `json:"createdAt"`
}
