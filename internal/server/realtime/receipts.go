package realtime

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/dmitrijs2005/whisper/internal/common"
	"github.com/dmitrijs2005/whisper/internal/logging"
	"github.com/dmitrijs2005/whisper/internal/server/models"
)

// ReceiptStore persists read receipts.
type ReceiptStore interface {
	Exists(ctx context.Context, messageID, userID int64) (bool, error)
	// Create reports false when the receipt already existed.
	Create(ctx context.Context, messageID, userID int64) (bool, error)
}

// MessageSource loads stored messages and checks chat membership.
type MessageSource interface {
	GetMessage(ctx context.Context, messageID int64) (*models.Message, error)
	IsParticipant(ctx context.Context, userID, chatID int64) (bool, error)
}

type ReceiptHandler struct {
	registry *Registry
	messages MessageSource
	receipts ReceiptStore
	logger   logging.Logger
}

func NewReceiptHandler(registry *Registry, messages MessageSource, receipts ReceiptStore, logger logging.Logger) *ReceiptHandler {
	return &ReceiptHandler{registry: registry, messages: messages, receipts: receipts, logger: logger}
}

// MarkAsRead records that readerID has read messageID. It returns the
// message's sender and true only when a new receipt was written. Repeated
// marks, unknown messages, the sender's own messages and SYSTEM messages are
// no-ops.
//
// A reader who is not a participant of the message's chat is also ignored.
// This is stricter than plain receipt recording, which would accept any
// authenticated reader; it keeps users from confirming messages of chats
// they cannot see.
func (h *ReceiptHandler) MarkAsRead(ctx context.Context, messageID, readerID int64) (int64, bool) {
	log := h.logger.With("message_id", messageID, "reader_id", readerID)

	exists, err := h.receipts.Exists(ctx, messageID, readerID)
	if err != nil {
		log.Error(ctx, "check receipt", "err", err)
		return 0, false
	}
	if exists {
		return 0, false
	}

	msg, err := h.messages.GetMessage(ctx, messageID)
	if err != nil {
		if !errors.Is(err, common.ErrorNotFound) {
			log.Error(ctx, "load message", "err", err)
		}
		return 0, false
	}
	if msg.SenderID == nil || msg.SentBy(readerID) {
		return 0, false
	}

	member, err := h.messages.IsParticipant(ctx, readerID, msg.ChatID)
	if err != nil {
		log.Error(ctx, "check membership", "err", err)
		return 0, false
	}
	if !member {
		log.Warn(ctx, "read mark from non-participant dropped", "chat_id", msg.ChatID)
		return 0, false
	}

	created, err := h.receipts.Create(ctx, messageID, readerID)
	if err != nil {
		log.Error(ctx, "create receipt", "err", err)
		return 0, false
	}
	if !created {
		return 0, false
	}

	return *msg.SenderID, true
}

// NotifySender pushes a READ_RECEIPT to senderID if they are online.
func (h *ReceiptHandler) NotifySender(ctx context.Context, senderID, messageID, readerID int64) {
	payload, err := json.Marshal(NewReadReceiptFrame(messageID, readerID))
	if err != nil {
		h.logger.Error(ctx, "encode read receipt", "err", err)
		return
	}
	if _, err := h.registry.SendTo(ctx, senderID, payload); err != nil {
		h.logger.Warn(ctx, "read receipt delivery failed", "to_user_id", senderID, "message_id", messageID, "err", err)
	}
}
