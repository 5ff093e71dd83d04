package messages

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/whisper/internal/common"
	"github.com/dmitrijs2005/whisper/internal/dbx"
	"github.com/dmitrijs2005/whisper/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, msg *models.Message) error {
	query := `
		INSERT INTO messages (chat_id, sender_id, type, content)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`

	var sender sql.NullInt64
	if msg.SenderID != nil {
		sender = sql.NullInt64{Int64: *msg.SenderID, Valid: true}
	}

	err := r.db.QueryRowContext(ctx, query, msg.ChatID, sender, string(msg.Type), msg.Content).
		Scan(&msg.ID, &msg.Timestamp)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*models.Message, error) {
	query := `
		SELECT m.id, m.chat_id, m.sender_id, COALESCE(u.display_name, ''), m.content, m.type, m.created_at
		FROM messages m
		LEFT JOIN users u ON u.id = m.sender_id
		WHERE m.id = $1
	`

	var (
		msg    models.Message
		sender sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx, query, id).
		Scan(&msg.ID, &msg.ChatID, &sender, &msg.SenderDisplayName, &msg.Content, &msg.Type, &msg.Timestamp)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if sender.Valid {
		msg.SenderID = &sender.Int64
	}
	return &msg, nil
}
