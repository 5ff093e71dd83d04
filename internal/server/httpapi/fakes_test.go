package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/dmitrijs2005/whisper/internal/common"
	"github.com/dmitrijs2005/whisper/internal/server/models"
	"github.com/dmitrijs2005/whisper/internal/server/realtime"
)

var errBoom = errors.New("boom")

type fakeVerifier struct{}

func (fakeVerifier) Verify(_ context.Context, token string) (int64, error) {
	var id int64
	if _, err := fmt.Sscanf(token, "user-%d", &id); err != nil {
		return 0, common.ErrInvalidToken
	}
	return id, nil
}

type groupCall struct {
	op      string
	chatID  int64
	actorID int64
	userID  int64
	name    string
}

type fakeGroups struct {
	mu           sync.Mutex
	calls        []groupCall
	participants []int64
	err          error
}

func (f *fakeGroups) record(c groupCall) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	if f.err != nil {
		return nil, f.err
	}
	return &models.Message{ID: 99, ChatID: c.chatID, Content: c.op, Type: models.MessageTypeSystem}, nil
}

func (f *fakeGroups) PresenceParticipants(_ context.Context, chatID, actorID int64) ([]int64, error) {
	if _, err := f.record(groupCall{op: "presence", chatID: chatID, actorID: actorID}); err != nil {
		return nil, err
	}
	return f.participants, nil
}

func (f *fakeGroups) RenameGroup(_ context.Context, chatID, actorID int64, name string) (*models.Message, error) {
	return f.record(groupCall{op: "rename", chatID: chatID, actorID: actorID, name: name})
}

func (f *fakeGroups) AddParticipant(_ context.Context, chatID, actorID, userID int64) (*models.Message, error) {
	return f.record(groupCall{op: "add", chatID: chatID, actorID: actorID, userID: userID})
}

func (f *fakeGroups) RemoveParticipant(_ context.Context, chatID, actorID, userID int64) (*models.Message, error) {
	return f.record(groupCall{op: "remove", chatID: chatID, actorID: actorID, userID: userID})
}

func (f *fakeGroups) LeaveGroup(_ context.Context, chatID, actorID int64) (*models.Message, error) {
	return f.record(groupCall{op: "leave", chatID: chatID, actorID: actorID})
}

func (f *fakeGroups) lastCall() (groupCall, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return groupCall{}, false
	}
	return f.calls[len(f.calls)-1], true
}

type fakeMedia struct {
	lastUser        int64
	lastContentType string
	lastKey         string
	err             error
}

func (f *fakeMedia) UploadURL(_ context.Context, userID int64, contentType string) (string, string, error) {
	f.lastUser = userID
	f.lastContentType = contentType
	if f.err != nil {
		return "", "", f.err
	}
	return "media/1/2026/5/1/abc", "https://s3.local/put", nil
}

func (f *fakeMedia) DownloadURL(_ context.Context, key string) (string, error) {
	f.lastKey = key
	if key == "" {
		return "", common.ErrValidation
	}
	if f.err != nil {
		return "", f.err
	}
	return "https://s3.local/get/" + key, nil
}

type fakeBroadcaster struct {
	mu   sync.Mutex
	msgs []*models.Message
}

func (f *fakeBroadcaster) Broadcast(_ context.Context, msg *models.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
}

func (f *fakeBroadcaster) sent() []*models.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*models.Message(nil), f.msgs...)
}

type fakePresence struct {
	online map[int64]bool
}

func (f fakePresence) Status(userID int64) realtime.Status {
	if f.online[userID] {
		return realtime.StatusOnline
	}
	return realtime.StatusOffline
}

func (f fakePresence) Count() int { return len(f.online) }

type fakeWS struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeWS) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	w.WriteHeader(http.StatusSwitchingProtocols)
}
