// Package chats declares the repository contract for chats and their
// participant sets.
package chats

import (
	"context"

	"github.com/dmitrijs2005/whisper/internal/server/models"
)

// Repository reads chats and manages membership. Participant sets are always
// read fresh; nothing here caches membership.
type Repository interface {
	// GetByID returns common.ErrorNotFound for unknown chats.
	GetByID(ctx context.Context, chatID int64) (*models.Chat, error)
	IsParticipant(ctx context.Context, userID, chatID int64) (bool, error)
	ParticipantsOf(ctx context.Context, chatID int64) ([]int64, error)
	// ChatsOf lists ids of every chat userID participates in.
	ChatsOf(ctx context.Context, userID int64) ([]int64, error)
	// GetParticipant returns common.ErrorNotFound when userID is not a member.
	GetParticipant(ctx context.Context, chatID, userID int64) (*models.Participant, error)
	AddParticipant(ctx context.Context, chatID, userID int64, role models.ParticipantRole) error
	RemoveParticipant(ctx context.Context, chatID, userID int64) error
	UpdateName(ctx context.Context, chatID int64, name string) error
}
