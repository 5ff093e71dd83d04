package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/whisper/internal/common"
	"github.com/dmitrijs2005/whisper/internal/server/models"
	"github.com/stretchr/testify/require"
)

// fakeConn is an in-memory Conn. Frames pushed with deliver are returned by
// Read; everything written with Send is recorded.
type fakeConn struct {
	id string

	in      chan []byte
	closeCh chan struct{}

	mu          sync.Mutex
	sent        [][]byte
	closed      bool
	closeCode   int
	closeReason string

	sendErr          error
	closeOnSendError bool
	closeErr         error
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id, in: make(chan []byte, 16), closeCh: make(chan struct{})}
}

func (c *fakeConn) ID() string         { return c.id }
func (c *fakeConn) RemoteAddr() string { return "127.0.0.1:0" }

func (c *fakeConn) Read() ([]byte, error) {
	select {
	case data, ok := <-c.in:
		if !ok {
			return nil, io.EOF
		}
		return data, nil
	case <-c.closeCh:
		return nil, ErrConnClosed
	}
}

func (c *fakeConn) Send(_ context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	if c.sendErr != nil {
		if c.closeOnSendError {
			c.closeLocked(CloseGoingAway, "")
		}
		return c.sendErr
	}
	c.sent = append(c.sent, data)
	return nil
}

func (c *fakeConn) Close(code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked(code, reason)
	return c.closeErr
}

func (c *fakeConn) closeLocked(code int, reason string) {
	if c.closed {
		return
	}
	c.closed = true
	c.closeCode = code
	c.closeReason = reason
	close(c.closeCh)
}

func (c *fakeConn) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

func (c *fakeConn) deliver(t *testing.T, v any) {
	t.Helper()
	var data []byte
	switch x := v.(type) {
	case string:
		data = []byte(x)
	default:
		var err error
		data, err = json.Marshal(v)
		require.NoError(t, err)
	}
	c.in <- data
}

func (c *fakeConn) frames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.sent...)
}

func (c *fakeConn) closeInfo() (bool, int, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed, c.closeCode, c.closeReason
}

// framesOfType decodes recorded frames whose "type" matches typ.
func (c *fakeConn) framesOfType(t *testing.T, typ string) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, raw := range c.frames() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(raw, &m))
		if m["type"] == typ {
			out = append(out, m)
		}
	}
	return out
}

// fakeChats is an in-memory chat store covering every collaborator interface
// the core consumes.
type fakeChats struct {
	mu           sync.Mutex
	participants map[int64][]int64
	users        map[int64]string
	messages     map[int64]*models.Message
	nextID       int64
	err          error

	// chatsOfHook, when set, runs before ChatsOf reads the store.
	chatsOfHook func(userID int64)
}

func newFakeChats() *fakeChats {
	return &fakeChats{
		participants: map[int64][]int64{},
		users:        map[int64]string{},
		messages:     map[int64]*models.Message{},
		nextID:       1000,
	}
}

func (f *fakeChats) ParticipantsOf(_ context.Context, chatID int64) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]int64(nil), f.participants[chatID]...), nil
}

func (f *fakeChats) ChatsOf(_ context.Context, userID int64) ([]int64, error) {
	f.mu.Lock()
	hook := f.chatsOfHook
	f.mu.Unlock()
	if hook != nil {
		hook(userID)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []int64
	for chatID, ids := range f.participants {
		for _, id := range ids {
			if id == userID {
				out = append(out, chatID)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeChats) IsParticipant(_ context.Context, userID, chatID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range f.participants[chatID] {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeChats) SaveMessage(ctx context.Context, senderID, chatID int64, content string, msgType models.MessageType) (*models.Message, error) {
	if _, ok := f.participants[chatID]; !ok {
		return nil, common.ErrChatNotFound
	}
	if ok, _ := f.IsParticipant(ctx, senderID, chatID); !ok {
		return nil, common.ErrNotAParticipant
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	sender := senderID
	msg := &models.Message{
		ID:                f.nextID,
		ChatID:            chatID,
		SenderID:          &sender,
		SenderDisplayName: f.users[senderID],
		Content:           content,
		Type:              msgType,
		Timestamp:         time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	f.messages[msg.ID] = msg
	return msg, nil
}

func (f *fakeChats) GetMessage(_ context.Context, messageID int64) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := f.messages[messageID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return msg, nil
}

func (f *fakeChats) storedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

type fakeReceipts struct {
	mu      sync.Mutex
	rows    map[[2]int64]bool
	creates int
}

func newFakeReceipts() *fakeReceipts {
	return &fakeReceipts{rows: map[[2]int64]bool{}}
}

func (f *fakeReceipts) Exists(_ context.Context, messageID, userID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[[2]int64{messageID, userID}], nil
}

func (f *fakeReceipts) Create(_ context.Context, messageID, userID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	key := [2]int64{messageID, userID}
	if f.rows[key] {
		return false, nil
	}
	f.rows[key] = true
	return true, nil
}

func (f *fakeReceipts) createCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creates
}

type fakePush struct {
	mu    sync.Mutex
	calls []int64
}

func (f *fakePush) Notify(_ context.Context, userID int64, _ *models.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, userID)
}

func (f *fakePush) notified() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.calls...)
}

// fakeVerifier accepts tokens of the form "user-<id>".
type fakeVerifier struct {
	err error
}

func (v fakeVerifier) Verify(_ context.Context, token string) (int64, error) {
	if v.err != nil {
		return 0, v.err
	}
	var id int64
	if _, err := fmt.Sscanf(token, "user-%d", &id); err != nil {
		return 0, common.ErrInvalidToken
	}
	return id, nil
}

var errBoom = errors.New("boom")
