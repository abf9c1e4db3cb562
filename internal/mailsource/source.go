// Package mailsource 拉取原始邮件
package mailsource

import (
	"context"
	"time"

	"mailtriage/internal/model"
)

// RawMessage 邮件源产出的原始记录
type RawMessage struct {
	ExternalMessageID string             `json:"externalMessageId"`
	ThreadID          string             `json:"threadId"`
	From              model.Address      `json:"from"`
	To                []model.Address    `json:"to"`
	Subject           string             `json:"subject"`
	Body              string             `json:"body"`
	BodyHTML          string             `json:"bodyHtml"`
	ReceivedAt        time.Time          `json:"receivedAt"`
	Attachments       []model.Attachment `json:"attachments"`
}

// Source 按顺序返回有限个消息，每次同步请求拉取一次
type Source interface {
	Fetch(ctx context.Context, userID int, maxResults int) ([]RawMessage, error)
}

const snippetChars = 160

// Snippet 正文前若干字符，单行
func Snippet(body string) string {
	r := []rune(collapseSpaces(body))
	if len(r) <= snippetChars {
		return string(r)
	}
	return string(r[:snippetChars]) + "..."
}
