//go:generate go run go.uber.org/mock/mockgen -source=sender.go -destination=mock_sender_test.go -package=push

// Package push delivers notifications to the mobile devices of users who are
// not connected when a chat message arrives.
package push

import (
	"context"

	"github.com/dmitrijs2005/whisper/internal/logging"
)

// Notification is one platform push addressed to every device of a user.
type Notification struct {
	Tokens []string
	Title  string
	Body   string
	Data   map[string]string
}

// Sender hands a notification to a push provider. It returns the tokens the
// provider reported as permanently dead so the caller can forget them.
type Sender interface {
	Send(ctx context.Context, n Notification) (dead []string, err error)
}

// LogSender only logs notifications. It is used when no push provider is
// configured.
type LogSender struct {
	logger logging.Logger
}

func NewLogSender(logger logging.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, n Notification) ([]string, error) {
	s.logger.Info(ctx, "push notification (log only)",
		"devices", len(n.Tokens), "title", n.Title, "body", n.Body, "chat_id", n.Data["chatId"])
	return nil, nil
}
