package classifier

import (
	"fmt"
	"strings"

	"mailtriage/internal/model"
)

// 送入模型的正文上限，超长邮件截断
const maxBodyChars = 6000

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// ClassificationPrompt 意图、紧急度、摘要与建议动作合并为一次请求
func ClassificationPrompt(sender, subject, body string) string {
	return fmt.Sprintf(`You are an executive assistant triaging email for a busy founder.

Email:
From: %s
Subject: %s
Body: %s

Classify the intent into ONE of:
- MEETING_REQUEST: wants to schedule time, mentions a meeting, call or discussion
- TASK_REQUEST: an action item or deliverable is requested from the recipient
- QUESTION: needs information, a decision or clarification
- FYI: informational only, no action needed
- URGENT: time-sensitive, urgent language or an immediate deadline
- MARKETING: promotional, sales, discounts, offers
- NEWSLETTER: digest, weekly update, automated content

Assess urgency as HIGH, MEDIUM or LOW based on risk, deadline and decision impact.
MARKETING and NEWSLETTER are always LOW.

Suggest 1-3 concrete next actions. Action types:
- REPLY, CREATE_TASK, SCHEDULE_MEETING, FOLLOW_UP, IGNORE

Return ONLY valid JSON in this shape:
{
  "intent": "MEETING_REQUEST",
  "urgency": "MEDIUM",
  "confidence": 0.9,
  "summary": "One short sentence, at most 12 words",
  "reasoning": "Why this intent and urgency",
  "suggestedActions": [
    {"type": "REPLY", "description": "Confirm Tuesday 3pm", "priority": 1}
  ]
}
`, sender, subject, truncate(body, maxBodyChars))
}

// ReplyDraftPrompt 回复草稿
func ReplyDraftPrompt(e *model.Email) string {
	return fmt.Sprintf(`Draft a professional, concise reply for a busy executive.

Guidelines:
- Tone: professional but warm
- Length: 2-4 sentences
- Match the formality of the original email

Email to reply to:
From: %s
Subject: %s
Body: %s

Intent: %s
Sender: %s

Return ONLY the draft reply text (no JSON, no quotes, no markdown).
`, e.From.String(), e.Subject, truncate(e.Body, maxBodyChars), e.Intent, senderName(e.From))
}

func senderName(a model.Address) string {
	if a.Name != "" {
		return a.Name
	}
	return a.Email
}

// DailyBriefPrompt 早/晚间摘要
func DailyBriefPrompt(emails []*model.Email, tasks []*model.Task, timeOfDay string) string {
	focus := "Focus on: today's priorities, urgent items, key meetings"
	if timeOfDay != "morning" {
		focus = "Focus on: unfinished tasks, what needs rescheduling, tomorrow's prep"
	}

	var eb strings.Builder
	for _, e := range emails {
		fmt.Fprintf(&eb, "- From: %s, Subject: %s, Urgency: %s\n", e.From.String(), e.Subject, e.Urgency)
	}
	var tb strings.Builder
	for _, t := range tasks {
		due := "No deadline"
		if t.DueDate != nil {
			due = t.DueDate.Format("2006-01-02")
		}
		fmt.Fprintf(&tb, "- %s (%s, Due: %s)\n", t.Title, t.Priority, due)
	}

	return fmt.Sprintf(`Create a %s brief for a busy founder.

%s

Recent emails (last 24h):
%s
Current tasks:
%s
Return ONLY valid JSON:
{
  "summary": "Brief overview of the day",
  "priorities": [
    {"item": "Respond to client meeting request", "reason": "High urgency", "action": "Reply to confirm"}
  ],
  "suggestions": ["Reschedule low-priority task to next week"]
}

Keep it concise. At most 5 priorities.
`, timeOfDay, focus, eb.String(), tb.String())
}
