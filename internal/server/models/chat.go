package models

import "time"

// ChatType distinguishes one-to-one chats from named groups.
type ChatType string

const (
	ChatTypePrivate ChatType = "PRIVATE"
	ChatTypeGroup   ChatType = "GROUP"
)

type Chat struct {
	ID   int64
	Name string
	Type ChatType
}

// ParticipantRole controls who may manage a group.
type ParticipantRole string

const (
	RoleMember ParticipantRole = "MEMBER"
	RoleAdmin  ParticipantRole = "ADMIN"
)

type Participant struct {
	ChatID   int64
	UserID   int64
	Role     ParticipantRole
	JoinedAt time.Time
}
