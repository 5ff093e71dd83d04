package chats

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/whisper/internal/common"
	"github.com/dmitrijs2005/whisper/internal/dbx"
	"github.com/dmitrijs2005/whisper/internal/server/models"
)

// PostgresRepository implements Repository over dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) GetByID(ctx context.Context, chatID int64) (*models.Chat, error) {
	query := `SELECT id, name, type FROM chats WHERE id = $1`

	chat := &models.Chat{}
	if err := r.db.QueryRowContext(ctx, query, chatID).Scan(&chat.ID, &chat.Name, &chat.Type); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return chat, nil
}

func (r *PostgresRepository) IsParticipant(ctx context.Context, userID, chatID int64) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM chat_participants WHERE chat_id = $1 AND user_id = $2)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, chatID, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}

func (r *PostgresRepository) ParticipantsOf(ctx context.Context, chatID int64) ([]int64, error) {
	query := `SELECT user_id FROM chat_participants WHERE chat_id = $1 ORDER BY user_id`
	return r.selectIDs(ctx, query, chatID)
}

func (r *PostgresRepository) ChatsOf(ctx context.Context, userID int64) ([]int64, error) {
	query := `SELECT chat_id FROM chat_participants WHERE user_id = $1 ORDER BY chat_id`
	return r.selectIDs(ctx, query, userID)
}

func (r *PostgresRepository) GetParticipant(ctx context.Context, chatID, userID int64) (*models.Participant, error) {
	query := `
		SELECT chat_id, user_id, role, joined_at
		FROM chat_participants
		WHERE chat_id = $1 AND user_id = $2
	`
	p := &models.Participant{}
	if err := r.db.QueryRowContext(ctx, query, chatID, userID).Scan(&p.ChatID, &p.UserID, &p.Role, &p.JoinedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) AddParticipant(ctx context.Context, chatID, userID int64, role models.ParticipantRole) error {
	query := `
		INSERT INTO chat_participants (chat_id, user_id, role)
		VALUES ($1, $2, $3)
	`
	if _, err := r.db.ExecContext(ctx, query, chatID, userID, string(role)); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) RemoveParticipant(ctx context.Context, chatID, userID int64) error {
	query := `DELETE FROM chat_participants WHERE chat_id = $1 AND user_id = $2`

	res, err := r.db.ExecContext(ctx, query, chatID, userID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) UpdateName(ctx context.Context, chatID int64, name string) error {
	query := `UPDATE chats SET name = $2 WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, chatID, name)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) selectIDs(ctx context.Context, query string, arg int64) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return ids, nil
}
