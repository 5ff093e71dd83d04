package push

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/whisper/internal/common"
	"github.com/dmitrijs2005/whisper/internal/dbx"
	"github.com/dmitrijs2005/whisper/internal/logging"
	"github.com/dmitrijs2005/whisper/internal/server/models"
	"github.com/dmitrijs2005/whisper/internal/server/repositories/chats"
	"github.com/dmitrijs2005/whisper/internal/server/repositories/devices"
	"github.com/dmitrijs2005/whisper/internal/server/repositories/messages"
	"github.com/dmitrijs2005/whisper/internal/server/repositories/receipts"
	"github.com/dmitrijs2005/whisper/internal/server/repositories/users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type fakeDevices struct {
	mu       sync.Mutex
	tokens   map[int64][]string
	deleted  []string
	tokenErr error
}

func (f *fakeDevices) TokensOf(_ context.Context, userID int64) ([]string, error) {
	if f.tokenErr != nil {
		return nil, f.tokenErr
	}
	return f.tokens[userID], nil
}

func (f *fakeDevices) DeleteByToken(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, token)
	return nil
}

type fakeChats struct {
	chats.Repository
	chats map[int64]*models.Chat
}

func (f *fakeChats) GetByID(_ context.Context, id int64) (*models.Chat, error) {
	c, ok := f.chats[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return c, nil
}

type fakeRepoMgr struct {
	devices *fakeDevices
	chats   *fakeChats
}

func (m fakeRepoMgr) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m fakeRepoMgr) Users(dbx.DBTX) users.Repository { return nil }
func (m fakeRepoMgr) Chats(dbx.DBTX) chats.Repository { return m.chats }
func (m fakeRepoMgr) Messages(dbx.DBTX) messages.Repository { return nil }
func (m fakeRepoMgr) Receipts(dbx.DBTX) receipts.Repository { return nil }
func (m fakeRepoMgr) Devices(dbx.DBTX) devices.Repository { return m.devices }

type fakeSender struct {
	mu   sync.Mutex
	sent []Notification
	dead []string
	err  error
}

func (f *fakeSender) Send(_ context.Context, n Notification) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, n)
	return f.dead, f.err
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func newService(t *testing.T, dev *fakeDevices, sender Sender) *Service {
	t.Helper()
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	rm := fakeRepoMgr{
		devices: dev,
		chats: &fakeChats{chats: map[int64]*models.Chat{
			10: {ID: 10, Type: models.ChatTypePrivate},
			20: {ID: 20, Type: models.ChatTypeGroup, Name: "team"},
		}},
	}
	return NewService(db, rm, sender, logging.Discard())
}

func TestDeliver_PrivateChat(t *testing.T) {
	dev := &fakeDevices{tokens: map[int64][]string{2: {"tok-1", "tok-2"}}}
	sender := &fakeSender{}
	svc := newService(t, dev, sender)

	svc.Deliver(context.Background(), 2, &models.Message{ID: 5, ChatID: 10, SenderDisplayName: "Alice", Type: models.MessageTypeText, Content: "secret"})

	require.Len(t, sender.sent, 1)
	n := sender.sent[0]
	assert.Equal(t, []string{"tok-1", "tok-2"}, n.Tokens)
	assert.Equal(t, "Alice", n.Title)
	assert.Equal(t, "New text message", n.Body)
	assert.Equal(t, map[string]string{"chatId": "10"}, n.Data)
}

func TestDeliver_GroupChatUsesChatName(t *testing.T) {
	dev := &fakeDevices{tokens: map[int64][]string{2: {"tok"}}}
	sender := &fakeSender{}
	svc := newService(t, dev, sender)

	svc.Deliver(context.Background(), 2, &models.Message{ChatID: 20, SenderDisplayName: "Alice", Type: models.MessageTypeImage})

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "team", sender.sent[0].Title)
	assert.Equal(t, "Image", sender.sent[0].Body)
}

func TestDeliver_PrunesDeadTokens(t *testing.T) {
	dev := &fakeDevices{tokens: map[int64][]string{2: {"good", "bad"}}}
	sender := &fakeSender{dead: []string{"bad"}}
	svc := newService(t, dev, sender)

	svc.Deliver(context.Background(), 2, &models.Message{ChatID: 10, Type: models.MessageTypeText})

	assert.Equal(t, []string{"bad"}, dev.deleted)
}

func TestDeliver_SkipsQuietly(t *testing.T) {
	t.Run("no devices", func(t *testing.T) {
		sender := &fakeSender{}
		newService(t, &fakeDevices{}, sender).Deliver(context.Background(), 2, &models.Message{ChatID: 10})
		assert.Zero(t, sender.count())
	})

	t.Run("token lookup fails", func(t *testing.T) {
		sender := &fakeSender{}
		newService(t, &fakeDevices{tokenErr: errors.New("db")}, sender).Deliver(context.Background(), 2, &models.Message{ChatID: 10})
		assert.Zero(t, sender.count())
	})

	t.Run("unknown chat", func(t *testing.T) {
		sender := &fakeSender{}
		dev := &fakeDevices{tokens: map[int64][]string{2: {"tok"}}}
		newService(t, dev, sender).Deliver(context.Background(), 2, &models.Message{ChatID: 99})
		assert.Zero(t, sender.count())
	})

	t.Run("sender error is swallowed", func(t *testing.T) {
		sender := &fakeSender{err: errors.New("fcm down"), dead: []string{"tok"}}
		dev := &fakeDevices{tokens: map[int64][]string{2: {"tok"}}}
		newService(t, dev, sender).Deliver(context.Background(), 2, &models.Message{ChatID: 10})
		assert.Equal(t, 1, sender.count())
		assert.Empty(t, dev.deleted)
	})
}

func TestBody(t *testing.T) {
	tests := []struct {
		typ  models.MessageType
		want string
	}{
		{models.MessageTypeText, "New text message"},
		{models.MessageTypeImage, "Image"},
		{models.MessageTypeSystem, "Bob left the group"},
		{models.MessageTypeVideo, "New message"},
		{models.MessageTypeVoice, "New message"},
		{models.MessageTypeFile, "New message"},
	}
	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			assert.Equal(t, tt.want, Body(&models.Message{Type: tt.typ, Content: "Bob left the group"}))
		})
	}
}

func TestLogSender(t *testing.T) {
	dead, err := NewLogSender(logging.Discard()).Send(context.Background(), Notification{Tokens: []string{"a"}})
	require.NoError(t, err)
	assert.Nil(t, dead)
}

func TestDeliver_ThroughDispatcher(t *testing.T) {
	ctrl := gomock.NewController(t)
	sender := NewMockSender(ctrl)

	delivered := make(chan struct{})
	sender.EXPECT().
		Send(gomock.Any(), Notification{
			Tokens: []string{"tok"},
			Title:  "team",
			Body:   "New text message",
			Data:   map[string]string{"chatId": "20"},
		}).
		DoAndReturn(func(context.Context, Notification) ([]string, error) {
			close(delivered)
			return nil, nil
		}).
		Times(1)

	dev := &fakeDevices{tokens: map[int64][]string{2: {"tok"}}}
	d := NewDispatcher(newService(t, dev, sender), 2, 8, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan error, 1)
	go func() { stopped <- d.Run(ctx) }()

	d.Notify(ctx, 2, &models.Message{ID: 1, ChatID: 20, Type: models.MessageTypeText})

	select {
	case <-delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("notification not delivered")
	}
	cancel()
	require.NoError(t, <-stopped)
	assert.Empty(t, dev.deleted)
}
