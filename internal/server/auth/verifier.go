package auth

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/whisper/internal/common"
	"github.com/dmitrijs2005/whisper/internal/server/repositories/users"
)

// Verifier resolves an access token to an existing user.
type Verifier struct {
	users     users.Repository
	secretKey []byte
}

func NewVerifier(users users.Repository, secretKey []byte) *Verifier {
	return &Verifier{users: users, secretKey: secretKey}
}

// Verify returns the id of the user the token was issued to.
//
// Tokens whose subject names no stored user fail with common.ErrInvalidToken.
// Malformed, badly signed or expired tokens return the underlying parse error.
func (v *Verifier) Verify(ctx context.Context, token string) (int64, error) {
	userID, err := GetUserIDFromToken(token, v.secretKey)
	if err != nil {
		return 0, err
	}

	user, err := v.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return 0, common.ErrInvalidToken
		}
		return 0, err
	}

	return user.ID, nil
}
