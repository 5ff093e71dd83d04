// Package models defines server-side data models persisted in the database.
package models

import "time"

type User struct {
	ID          int64
	Username    string
	DisplayName string
	AvatarURL   string
	CreatedAt   time.Time
}
