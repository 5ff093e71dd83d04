package devices

import "context"

type Repository interface {
	// TokensOf lists every push token registered by userID.
	TokensOf(ctx context.Context, userID int64) ([]string, error)
	// DeleteByToken drops a token the push provider reported as dead.
	DeleteByToken(ctx context.Context, token string) error
}
