package messages

import (
	"context"

	"github.com/dmitrijs2005/whisper/internal/server/models"
)

type Repository interface {
	// Create stores msg and fills in its ID and Timestamp.
	Create(ctx context.Context, msg *models.Message) error
	// GetByID returns the message with the sender's current display name, or
	// common.ErrorNotFound.
	GetByID(ctx context.Context, id int64) (*models.Message, error)
}
