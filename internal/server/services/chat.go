// Package services contains server-side business logic. ChatService owns chat
// persistence rules: membership checks, message storage and group management.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/whisper/internal/common"
	"github.com/dmitrijs2005/whisper/internal/dbx"
	"github.com/dmitrijs2005/whisper/internal/server/models"
	"github.com/dmitrijs2005/whisper/internal/server/repositories/repomanager"
)

type ChatService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
}

func NewChatService(db *sql.DB, repomanager repomanager.RepositoryManager) *ChatService {
	return &ChatService{
		db:          db,
		repomanager: repomanager,
	}
}

// SaveMessage validates that chatID exists and senderID belongs to it, then
// stores the message. The result carries the server-assigned id, timestamp
// and the sender's display name.
func (s *ChatService) SaveMessage(ctx context.Context, senderID, chatID int64, content string, msgType models.MessageType) (*models.Message, error) {
	var msg *models.Message

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := s.repomanager.Chats(tx).GetByID(ctx, chatID); err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrChatNotFound
			}
			return err
		}

		ok, err := s.repomanager.Chats(tx).IsParticipant(ctx, senderID, chatID)
		if err != nil {
			return err
		}
		if !ok {
			return common.ErrNotAParticipant
		}

		sender, err := s.repomanager.Users(tx).GetByID(ctx, senderID)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrSenderNotFound
			}
			return err
		}

		msg = &models.Message{
			ChatID:            chatID,
			SenderID:          &sender.ID,
			SenderDisplayName: sender.DisplayName,
			Content:           content,
			Type:              msgType,
		}
		return s.repomanager.Messages(tx).Create(ctx, msg)
	})
	if err != nil {
		return nil, fmt.Errorf("save message: %w", err)
	}

	return msg, nil
}

func (s *ChatService) IsParticipant(ctx context.Context, userID, chatID int64) (bool, error) {
	return s.repomanager.Chats(s.db).IsParticipant(ctx, userID, chatID)
}

func (s *ChatService) ParticipantsOf(ctx context.Context, chatID int64) ([]int64, error) {
	return s.repomanager.Chats(s.db).ParticipantsOf(ctx, chatID)
}

func (s *ChatService) ChatsOf(ctx context.Context, userID int64) ([]int64, error) {
	return s.repomanager.Chats(s.db).ChatsOf(ctx, userID)
}

// GetMessage returns common.ErrorNotFound for unknown ids.
func (s *ChatService) GetMessage(ctx context.Context, messageID int64) (*models.Message, error) {
	return s.repomanager.Messages(s.db).GetByID(ctx, messageID)
}

// PresenceParticipants lists the members of chatID for a caller that belongs
// to it.
func (s *ChatService) PresenceParticipants(ctx context.Context, chatID, actorID int64) ([]int64, error) {
	ok, err := s.IsParticipant(ctx, actorID, chatID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, common.ErrForbidden
	}
	return s.ParticipantsOf(ctx, chatID)
}

// RenameGroup changes a group's name. Only admins may do this.
func (s *ChatService) RenameGroup(ctx context.Context, chatID, actorID int64, name string) (*models.Message, error) {
	var sys *models.Message

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		chat, actor, err := s.adminAccess(ctx, tx, chatID, actorID)
		if err != nil {
			return err
		}
		if chat.Type != models.ChatTypeGroup {
			return common.ErrNotGroupChat
		}

		if err := s.repomanager.Chats(tx).UpdateName(ctx, chatID, name); err != nil {
			return err
		}

		sys, err = s.systemMessage(ctx, tx, chatID, fmt.Sprintf("%s renamed the group to %s", actor.DisplayName, name))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("rename group: %w", err)
	}
	return sys, nil
}

// AddParticipant adds userID to a group as a MEMBER.
func (s *ChatService) AddParticipant(ctx context.Context, chatID, actorID, userID int64) (*models.Message, error) {
	var sys *models.Message

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		chat, actor, err := s.adminAccess(ctx, tx, chatID, actorID)
		if err != nil {
			return err
		}
		if chat.Type != models.ChatTypeGroup {
			return common.ErrNotGroupChat
		}

		chats := s.repomanager.Chats(tx)
		member, err := chats.IsParticipant(ctx, userID, chatID)
		if err != nil {
			return err
		}
		if member {
			return common.ErrAlreadyParticipant
		}

		user, err := s.repomanager.Users(tx).GetByID(ctx, userID)
		if err != nil {
			return err
		}

		if err := chats.AddParticipant(ctx, chatID, userID, models.RoleMember); err != nil {
			return err
		}

		sys, err = s.systemMessage(ctx, tx, chatID, fmt.Sprintf("%s added %s to the group", actor.DisplayName, user.DisplayName))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("add participant: %w", err)
	}
	return sys, nil
}

// RemoveParticipant removes userID from the chat. Only admins may do this.
func (s *ChatService) RemoveParticipant(ctx context.Context, chatID, actorID, userID int64) (*models.Message, error) {
	var sys *models.Message

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		_, actor, err := s.adminAccess(ctx, tx, chatID, actorID)
		if err != nil {
			return err
		}

		user, err := s.repomanager.Users(tx).GetByID(ctx, userID)
		if err != nil {
			return err
		}

		if err := s.repomanager.Chats(tx).RemoveParticipant(ctx, chatID, userID); err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrNotAParticipant
			}
			return err
		}

		sys, err = s.systemMessage(ctx, tx, chatID, fmt.Sprintf("%s removed %s from the group", actor.DisplayName, user.DisplayName))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("remove participant: %w", err)
	}
	return sys, nil
}

// LeaveGroup removes the caller from a group chat. Private chats cannot be left.
func (s *ChatService) LeaveGroup(ctx context.Context, chatID, actorID int64) (*models.Message, error) {
	var sys *models.Message

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		chats := s.repomanager.Chats(tx)

		if _, err := chats.GetParticipant(ctx, chatID, actorID); err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrNotAParticipant
			}
			return err
		}

		chat, err := chats.GetByID(ctx, chatID)
		if err != nil {
			return err
		}
		if chat.Type != models.ChatTypeGroup {
			return common.ErrNotGroupChat
		}

		actor, err := s.repomanager.Users(tx).GetByID(ctx, actorID)
		if err != nil {
			return err
		}

		if err := chats.RemoveParticipant(ctx, chatID, actorID); err != nil {
			return err
		}

		sys, err = s.systemMessage(ctx, tx, chatID, fmt.Sprintf("%s left the group", actor.DisplayName))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("leave group: %w", err)
	}
	return sys, nil
}

// adminAccess loads the chat and the acting user, failing with ErrForbidden
// unless the actor is an ADMIN participant.
func (s *ChatService) adminAccess(ctx context.Context, tx dbx.DBTX, chatID, actorID int64) (*models.Chat, *models.User, error) {
	chats := s.repomanager.Chats(tx)

	p, err := chats.GetParticipant(ctx, chatID, actorID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, nil, common.ErrForbidden
		}
		return nil, nil, err
	}
	if p.Role != models.RoleAdmin {
		return nil, nil, common.ErrForbidden
	}

	chat, err := chats.GetByID(ctx, chatID)
	if err != nil {
		return nil, nil, err
	}

	actor, err := s.repomanager.Users(tx).GetByID(ctx, actorID)
	if err != nil {
		return nil, nil, err
	}

	return chat, actor, nil
}

func (s *ChatService) systemMessage(ctx context.Context, tx dbx.DBTX, chatID int64, content string) (*models.Message, error) {
	msg := &models.Message{
		ChatID:  chatID,
		Content: content,
		Type:    models.MessageTypeSystem,
	}
	if err := s.repomanager.Messages(tx).Create(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}
