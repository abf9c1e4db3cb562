package model

import (
	"fmt"
	"strings"
	"time"

	"mailtriage/internal/apperr"
)

type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskCancelled  TaskStatus = "cancelled"
)

func ParseTaskStatus(s string) (TaskStatus, bool) {
	switch st := TaskStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case TaskPending, TaskInProgress, TaskCompleted, TaskCancelled:
		return st, true
	}
	return "", false
}

type Task struct {
	ID          int        `json:"id"`
	UserID      int        `json:"userId"`
	EmailID     *int       `json:"emailId"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Priority    Urgency    `json:"priority"`
	Status      TaskStatus `json:"status"`
	DueDate     *time.Time `json:"dueDate"`
	CompletedAt *time.Time `json:"completedAt"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

var taskTransitions = map[TaskStatus][]TaskStatus{
	TaskPending:    {TaskInProgress, TaskCompleted, TaskCancelled},
	TaskInProgress: {TaskCompleted, TaskCancelled, TaskPending},
}

// Transition completed 时写入 completedAt
func (t *Task) Transition(to TaskStatus, now time.Time) error {
	if !allowed(taskTransitions[t.Status], to) {
		return fmt.Errorf("task %d %s -> %s: %w", t.ID, t.Status, to, apperr.ErrIllegalTransition)
	}
	t.Status = to
	if to == TaskCompleted {
		t.CompletedAt = &now
	}
	return nil
}
