package models

import "time"

// MessageType tags the opaque content payload of a message.
type MessageType string

const (
	MessageTypeText   MessageType = "TEXT"
	MessageTypeImage  MessageType = "IMAGE"
	MessageTypeVideo  MessageType = "VIDEO"
	MessageTypeVoice  MessageType = "VOICE"
	MessageTypeFile   MessageType = "FILE"
	MessageTypeSystem MessageType = "SYSTEM"
)

// IsSystem reports whether the message was generated by the server
// (membership and name-change announcements).
func (t MessageType) IsSystem() bool {
	return t == MessageTypeSystem
}

// Message is immutable once stored. SenderID is nil for system messages.
type Message struct {
	ID                int64
	ChatID            int64
	SenderID          *int64
	SenderDisplayName string
	Content           string
	Type              MessageType
	Timestamp         time.Time
}

// SentBy reports whether userID authored the message.
func (m *Message) SentBy(userID int64) bool {
	return m.SenderID != nil && *m.SenderID == userID
}
