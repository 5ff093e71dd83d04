package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/whisper/internal/dbx"
	"github.com/dmitrijs2005/whisper/internal/server/repositories/chats"
	"github.com/dmitrijs2005/whisper/internal/server/repositories/devices"
	"github.com/dmitrijs2005/whisper/internal/server/repositories/messages"
	"github.com/dmitrijs2005/whisper/internal/server/repositories/receipts"
	"github.com/dmitrijs2005/whisper/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to either the pool or an open
// transaction, so services can choose per call.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Chats(db dbx.DBTX) chats.Repository
	Messages(db dbx.DBTX) messages.Repository
	Receipts(db dbx.DBTX) receipts.Repository
	Devices(db dbx.DBTX) devices.Repository
}
