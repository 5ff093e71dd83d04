package push

import (
	"context"
	"database/sql"
	"strconv"

	"github.com/dmitrijs2005/whisper/internal/logging"
	"github.com/dmitrijs2005/whisper/internal/server/models"
	"github.com/dmitrijs2005/whisper/internal/server/repositories/repomanager"
)

// Service turns a stored chat message into a push for one recipient.
type Service struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	sender      Sender
	logger      logging.Logger
}

func NewService(db *sql.DB, rm repomanager.RepositoryManager, sender Sender, logger logging.Logger) *Service {
	return &Service{db: db, repomanager: rm, sender: sender, logger: logger}
}

// Deliver pushes msg to every registered device of userID. Failures are
// logged and swallowed.
func (s *Service) Deliver(ctx context.Context, userID int64, msg *models.Message) {
	log := s.logger.With("user_id", userID, "message_id", msg.ID)

	tokens, err := s.repomanager.Devices(s.db).TokensOf(ctx, userID)
	if err != nil {
		log.Error(ctx, "load device tokens", "err", err)
		return
	}
	if len(tokens) == 0 {
		log.Debug(ctx, "no push devices")
		return
	}

	chat, err := s.repomanager.Chats(s.db).GetByID(ctx, msg.ChatID)
	if err != nil {
		log.Error(ctx, "load chat for push", "chat_id", msg.ChatID, "err", err)
		return
	}

	dead, err := s.sender.Send(ctx, Notification{
		Tokens: tokens,
		Title:  Title(chat, msg),
		Body:   Body(msg),
		Data:   map[string]string{"chatId": strconv.FormatInt(msg.ChatID, 10)},
	})
	if err != nil {
		log.Error(ctx, "push send failed", "err", err)
		return
	}

	devices := s.repomanager.Devices(s.db)
	for _, token := range dead {
		if err := devices.DeleteByToken(ctx, token); err != nil {
			log.Warn(ctx, "delete dead push token", "err", err)
			continue
		}
		log.Info(ctx, "deleted dead push token")
	}
}

// Title is the sender's name in private chats and the group name otherwise.
func Title(chat *models.Chat, msg *models.Message) string {
	if chat.Type == models.ChatTypePrivate {
		return msg.SenderDisplayName
	}
	return chat.Name
}

// Body never reveals message content, except for server-generated SYSTEM
// announcements which are plain text.
func Body(msg *models.Message) string {
	switch msg.Type {
	case models.MessageTypeText:
		return "New text message"
	case models.MessageTypeImage:
		return "Image"
	case models.MessageTypeSystem:
		return msg.Content
	default:
		return "New message"
	}
}
