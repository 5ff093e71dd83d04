package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/whisper/internal/server/models"
	"github.com/go-playground/validator/v10"
)

// Frame type tags.
const (
	TypeAuth           = "AUTH"
	TypeChatMessage    = "CHAT_MESSAGE"
	TypeMarkAsRead     = "MARK_AS_READ"
	TypePresenceUpdate = "PRESENCE_UPDATE"
	TypeReadReceipt    = "READ_RECEIPT"
	// TypeError is part of the protocol vocabulary but the server never sends it.
	TypeError = "ERROR"
)

var ErrMalformedFrame = errors.New("malformed frame")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Envelope is the raw shape shared by every inbound frame.
type Envelope struct {
	Type        string             `json:"type"`
	Token       string             `json:"token"`
	ChatID      int64              `json:"chatId"`
	Content     string             `json:"content"`
	MessageType models.MessageType `json:"messageType"`
	MessageID   int64              `json:"messageId"`
}

// Frame is one decoded inbound frame: AuthFrame, ChatMessageFrame,
// MarkAsReadFrame or UnknownFrame.
type Frame interface {
	frameType() string
}

type AuthFrame struct {
	Token string
}

type ChatMessageFrame struct {
	ChatID      int64              `validate:"gt=0"`
	Content     string             `validate:"required"`
	MessageType models.MessageType `validate:"oneof=TEXT IMAGE VIDEO VOICE FILE"`
}

type MarkAsReadFrame struct {
	MessageID int64 `validate:"gt=0"`
}

// UnknownFrame carries a type tag this server does not handle.
type UnknownFrame struct {
	Type string
}

func (AuthFrame) frameType() string        { return TypeAuth }
func (ChatMessageFrame) frameType() string { return TypeChatMessage }
func (MarkAsReadFrame) frameType() string  { return TypeMarkAsRead }
func (f UnknownFrame) frameType() string   { return f.Type }

// DecodeEnvelope reads the JSON envelope without checking per-type fields.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}
	return &env, nil
}

// Frame converts the envelope into its typed variant and validates it.
// Clients cannot send SYSTEM messages.
func (e *Envelope) Frame() (Frame, error) {
	var f Frame
	switch e.Type {
	case TypeAuth:
		return AuthFrame{Token: e.Token}, nil
	case TypeChatMessage:
		f = ChatMessageFrame{ChatID: e.ChatID, Content: e.Content, MessageType: e.MessageType}
	case TypeMarkAsRead:
		f = MarkAsReadFrame{MessageID: e.MessageID}
	default:
		return UnknownFrame{Type: e.Type}, nil
	}

	if err := validate.Struct(f); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedFrame, e.Type, err)
	}
	return f, nil
}

// ParseFrame decodes and validates one inbound frame.
func ParseFrame(data []byte) (Frame, error) {
	env, err := DecodeEnvelope(data)
	if err != nil {
		return nil, err
	}
	return env.Frame()
}

// MessageFrame is the delivery projection of a stored chat message.
type MessageFrame struct {
	MessageID         int64              `json:"messageId"`
	SenderID          *int64             `json:"senderId"`
	SenderDisplayName string             `json:"senderDisplayName"`
	ChatID            int64              `json:"chatId"`
	Content           string             `json:"content"`
	Type              models.MessageType `json:"type"`
	Timestamp         time.Time          `json:"timestamp"`
}

func NewMessageFrame(m *models.Message) MessageFrame {
	return MessageFrame{
		MessageID:         m.ID,
		SenderID:          m.SenderID,
		SenderDisplayName: m.SenderDisplayName,
		ChatID:            m.ChatID,
		Content:           m.Content,
		Type:              m.Type,
		Timestamp:         m.Timestamp,
	}
}

type PresenceUpdateFrame struct {
	Type   string `json:"type"`
	UserID int64  `json:"userId"`
	Status Status `json:"status"`
}

func NewPresenceUpdateFrame(userID int64, status Status) PresenceUpdateFrame {
	return PresenceUpdateFrame{Type: TypePresenceUpdate, UserID: userID, Status: status}
}

// ReadReceiptFrame tells a sender that UserID has read MessageID.
type ReadReceiptFrame struct {
	Type      string `json:"type"`
	MessageID int64  `json:"messageId"`
	UserID    int64  `json:"userId"`
}

func NewReadReceiptFrame(messageID, readerID int64) ReadReceiptFrame {
	return ReadReceiptFrame{Type: TypeReadReceipt, MessageID: messageID, UserID: readerID}
}
