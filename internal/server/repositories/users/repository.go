// Package users declares the server-side repository contract for user lookups.
package users

import (
	"context"

	"github.com/dmitrijs2005/whisper/internal/server/models"
)

// Repository resolves users by id. Implementations return
// common.ErrorNotFound when the user does not exist.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
}
