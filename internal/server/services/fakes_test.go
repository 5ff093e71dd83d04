package services

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/whisper/internal/common"
	"github.com/dmitrijs2005/whisper/internal/dbx"
	"github.com/dmitrijs2005/whisper/internal/server/models"
	"github.com/dmitrijs2005/whisper/internal/server/repositories/chats"
	"github.com/dmitrijs2005/whisper/internal/server/repositories/devices"
	"github.com/dmitrijs2005/whisper/internal/server/repositories/messages"
	"github.com/dmitrijs2005/whisper/internal/server/repositories/receipts"
	"github.com/dmitrijs2005/whisper/internal/server/repositories/users"
	"github.com/stretchr/testify/require"
)

// store is an in-memory stand-in for the chat tables.
type store struct {
	users        map[int64]*models.User
	chats        map[int64]*models.Chat
	participants map[int64]map[int64]models.ParticipantRole
	messages     []*models.Message
	nextMsgID    int64

	// err, when set, is returned by every call.
	err error
}

func newStore() *store {
	return &store{
		users:        map[int64]*models.User{},
		chats:        map[int64]*models.Chat{},
		participants: map[int64]map[int64]models.ParticipantRole{},
		nextMsgID:    100,
	}
}

func (s *store) addUser(id int64, name string) {
	s.users[id] = &models.User{ID: id, Username: name, DisplayName: name}
}

func (s *store) addChat(id int64, typ models.ChatType, name string, members map[int64]models.ParticipantRole) {
	s.chats[id] = &models.Chat{ID: id, Name: name, Type: typ}
	s.participants[id] = members
}

type fakeUsers struct{ *store }

func (f fakeUsers) GetByID(_ context.Context, id int64) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return u, nil
}

type fakeChats struct{ *store }

func (f fakeChats) GetByID(_ context.Context, chatID int64) (*models.Chat, error) {
	if f.err != nil {
		return nil, f.err
	}
	c, ok := f.chats[chatID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return c, nil
}

func (f fakeChats) IsParticipant(_ context.Context, userID, chatID int64) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	_, ok := f.participants[chatID][userID]
	return ok, nil
}

func (f fakeChats) ParticipantsOf(_ context.Context, chatID int64) ([]int64, error) {
	if f.err != nil {
		return nil, f.err
	}
	var ids []int64
	for id := range f.participants[chatID] {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f fakeChats) ChatsOf(_ context.Context, userID int64) ([]int64, error) {
	if f.err != nil {
		return nil, f.err
	}
	var ids []int64
	for chatID, members := range f.participants {
		if _, ok := members[userID]; ok {
			ids = append(ids, chatID)
		}
	}
	return ids, nil
}

func (f fakeChats) GetParticipant(_ context.Context, chatID, userID int64) (*models.Participant, error) {
	if f.err != nil {
		return nil, f.err
	}
	role, ok := f.participants[chatID][userID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &models.Participant{ChatID: chatID, UserID: userID, Role: role}, nil
}

func (f fakeChats) AddParticipant(_ context.Context, chatID, userID int64, role models.ParticipantRole) error {
	if f.err != nil {
		return f.err
	}
	f.participants[chatID][userID] = role
	return nil
}

func (f fakeChats) RemoveParticipant(_ context.Context, chatID, userID int64) error {
	if f.err != nil {
		return f.err
	}
	if _, ok := f.participants[chatID][userID]; !ok {
		return common.ErrorNotFound
	}
	delete(f.participants[chatID], userID)
	return nil
}

func (f fakeChats) UpdateName(_ context.Context, chatID int64, name string) error {
	if f.err != nil {
		return f.err
	}
	f.chats[chatID].Name = name
	return nil
}

type fakeMessages struct{ *store }

func (f fakeMessages) Create(_ context.Context, msg *models.Message) error {
	if f.err != nil {
		return f.err
	}
	f.nextMsgID++
	msg.ID = f.nextMsgID
	msg.Timestamp = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f.messages = append(f.messages, msg)
	return nil
}

func (f fakeMessages) GetByID(_ context.Context, id int64) (*models.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, m := range f.messages {
		if m.ID == id {
			return m, nil
		}
	}
	return nil, common.ErrorNotFound
}

type fakeRepoMgr struct{ s *store }

func (m fakeRepoMgr) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m fakeRepoMgr) Users(dbx.DBTX) users.Repository { return fakeUsers{m.s} }
func (m fakeRepoMgr) Chats(dbx.DBTX) chats.Repository { return fakeChats{m.s} }
func (m fakeRepoMgr) Messages(dbx.DBTX) messages.Repository { return fakeMessages{m.s} }
func (m fakeRepoMgr) Receipts(dbx.DBTX) receipts.Repository { return nil }
func (m fakeRepoMgr) Devices(dbx.DBTX) devices.Repository { return nil }

func newChatService(t *testing.T, s *store) (*ChatService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewChatService(db, fakeRepoMgr{s}), mock
}
