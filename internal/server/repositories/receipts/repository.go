package receipts

import "context"

type Repository interface {
	Exists(ctx context.Context, messageID, userID int64) (bool, error)
	// Create inserts a receipt and reports whether a new row was written.
	// An existing receipt for the same pair is left untouched.
	Create(ctx context.Context, messageID, userID int64) (bool, error)
}
