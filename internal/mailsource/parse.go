package mailsource

import (
	"fmt"
	"io"
	"strings"

	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"mailtriage/internal/model"
)

// ParseMessage 解析 RFC 5322 邮件，只有 HTML 正文时由 HTML 生成纯文本
func ParseMessage(r io.Reader) (*RawMessage, error) {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create mail reader: %w", err)
	}
	defer mr.Close()

	msg := &RawMessage{}
	h := mr.Header
	if id, err := h.MessageID(); err == nil {
		msg.ExternalMessageID = id
	}
	msg.ThreadID = msg.ExternalMessageID
	if refs, err := h.MsgIDList("References"); err == nil && len(refs) > 0 {
		msg.ThreadID = refs[0]
	} else if irt, err := h.MsgIDList("In-Reply-To"); err == nil && len(irt) > 0 {
		msg.ThreadID = irt[0]
	}
	if subject, err := h.Subject(); err == nil {
		msg.Subject = subject
	}
	if date, err := h.Date(); err == nil {
		msg.ReceivedAt = date
	}
	if from, err := h.AddressList("From"); err == nil && len(from) > 0 {
		msg.From = model.Address{Name: from[0].Name, Email: from[0].Address}
	}
	if to, err := h.AddressList("To"); err == nil {
		for _, a := range to {
			msg.To = append(msg.To, model.Address{Name: a.Name, Email: a.Address})
		}
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read part: %w", err)
		}

		switch ph := part.Header.(type) {
		case *mail.InlineHeader:
			ct, _, _ := ph.ContentType()
			body, err := io.ReadAll(part.Body)
			if err != nil {
				continue
			}
			switch {
			case strings.HasPrefix(ct, "text/html") && msg.BodyHTML == "":
				msg.BodyHTML = string(body)
			case strings.HasPrefix(ct, "text/plain") && msg.Body == "":
				msg.Body = string(body)
			}
		case *mail.AttachmentHeader:
			name, _ := ph.Filename()
			ct, _, _ := ph.ContentType()
			n, _ := io.Copy(io.Discard, part.Body)
			msg.Attachments = append(msg.Attachments, model.Attachment{Filename: name, MimeType: ct, Size: n})
		}
	}

	if strings.TrimSpace(msg.Body) == "" && msg.BodyHTML != "" {
		text, err := HTMLToText(msg.BodyHTML)
		if err != nil {
			return nil, fmt.Errorf("failed to convert html body: %w", err)
		}
		msg.Body = text
	}
	msg.Body = strings.TrimSpace(msg.Body)
	return msg, nil
}
