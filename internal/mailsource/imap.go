package mailsource

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"go.uber.org/zap"

	"mailtriage/pkg/config"
)

const dialTimeout = 30 * time.Second

// IMAPSource 从配置的邮箱拉取最近的邮件，每次同步建立一次连接
type IMAPSource struct {
	cfg    config.MailConfig
	logger *zap.Logger
}

func NewIMAPSource(cfg config.MailConfig, logger *zap.Logger) *IMAPSource {
	return &IMAPSource{cfg: cfg, logger: logger}
}

// Fetch 返回最新的 maxResults 封邮件，新邮件在前
func (s *IMAPSource) Fetch(ctx context.Context, userID int, maxResults int) ([]RawMessage, error) {
	if s.cfg.Server == "" {
		return nil, fmt.Errorf("mail source is not configured")
	}

	dialer := &net.Dialer{Timeout: dialTimeout}
	conn, err := tls.DialWithDialer(dialer, "tcp", s.cfg.Server, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	c, err := client.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create IMAP client: %w", err)
	}
	defer c.Logout()

	// 请求取消时断开连接，使阻塞的 Fetch 返回
	stop := context.AfterFunc(ctx, func() { _ = c.Terminate() })
	defer stop()

	if err := c.Login(s.cfg.Username, s.cfg.Password); err != nil {
		return nil, fmt.Errorf("failed to login: %w", err)
	}

	mailbox := s.cfg.Mailbox
	if mailbox == "" {
		mailbox = "INBOX"
	}
	mbox, err := c.Select(mailbox, true)
	if err != nil {
		return nil, fmt.Errorf("failed to select %s: %w", mailbox, err)
	}
	if mbox.Messages == 0 || maxResults <= 0 {
		return nil, nil
	}

	from := uint32(1)
	if mbox.Messages > uint32(maxResults) {
		from = mbox.Messages - uint32(maxResults) + 1
	}
	seqSet := new(imap.SeqSet)
	seqSet.AddRange(from, mbox.Messages)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, imap.FetchInternalDate, section.FetchItem()}

	messages := make(chan *imap.Message, maxResults)
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqSet, items, messages)
	}()

	var out []RawMessage
	for m := range messages {
		body := m.GetBody(section)
		if body == nil {
			continue
		}
		raw, err := ParseMessage(body)
		if err != nil {
			s.logger.Warn("Failed to parse message",
				zap.Int("user_id", userID),
				zap.Uint32("uid", m.Uid),
				zap.Error(err),
			)
			continue
		}
		if raw.ExternalMessageID == "" {
			raw.ExternalMessageID = fmt.Sprintf("%s:%d:%d", mailbox, mbox.UidValidity, m.Uid)
			if raw.ThreadID == "" {
				raw.ThreadID = raw.ExternalMessageID
			}
		}
		if raw.ReceivedAt.IsZero() {
			raw.ReceivedAt = m.InternalDate
		}
		out = append(out, *raw)
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch: %w", err)
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	s.logger.Info("Fetched messages from IMAP",
		zap.Int("user_id", userID),
		zap.String("mailbox", mailbox),
		zap.Int("count", len(out)),
	)
	return out, nil
}
