package models

import "time"

// ReadReceipt records that UserID has seen MessageID. At most one exists per pair.
type ReadReceipt struct {
	MessageID int64
	UserID    int64
	ReadAt    time.Time
}

// Device is a push-notification endpoint registered by a user.
type Device struct {
	ID        int64
	UserID    int64
	FCMToken  string
	LastLogin time.Time
}
