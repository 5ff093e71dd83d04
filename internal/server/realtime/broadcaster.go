package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/dmitrijs2005/whisper/internal/logging"
	"github.com/dmitrijs2005/whisper/internal/server/models"
	"github.com/samber/lo"
)

// ParticipantSource resolves a chat's current members.
type ParticipantSource interface {
	ParticipantsOf(ctx context.Context, chatID int64) ([]int64, error)
}

// PushNotifier hands a message to the offline push path. It must not block.
type PushNotifier interface {
	Notify(ctx context.Context, userID int64, msg *models.Message)
}

// Broadcaster delivers stored messages to every chat participant except the
// sender: live when connected, by push otherwise.
type Broadcaster struct {
	registry *Registry
	chats    ParticipantSource
	push     PushNotifier
	logger   logging.Logger
}

func NewBroadcaster(registry *Registry, chats ParticipantSource, push PushNotifier, logger logging.Logger) *Broadcaster {
	return &Broadcaster{registry: registry, chats: chats, push: push, logger: logger}
}

// Broadcast returns once every recipient has been attempted. Recipients are
// written to concurrently and no lock is held during writes.
func (b *Broadcaster) Broadcast(ctx context.Context, msg *models.Message) {
	log := b.logger.With("chat_id", msg.ChatID, "message_id", msg.ID)

	participants, err := b.chats.ParticipantsOf(ctx, msg.ChatID)
	if err != nil {
		log.Error(ctx, "resolve participants", "err", err)
		return
	}

	payload, err := json.Marshal(NewMessageFrame(msg))
	if err != nil {
		log.Error(ctx, "encode message frame", "err", err)
		return
	}

	recipients := lo.Reject(lo.Uniq(participants), func(id int64, _ int) bool { return msg.SentBy(id) })

	var wg sync.WaitGroup
	for _, userID := range recipients {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.deliver(ctx, log, userID, msg, payload)
		}()
	}
	wg.Wait()
}

func (b *Broadcaster) deliver(ctx context.Context, log logging.Logger, userID int64, msg *models.Message, payload []byte) {
	online, err := b.registry.SendTo(ctx, userID, payload)
	if err != nil {
		log.Warn(ctx, "live delivery failed", "user_id", userID, "err", err)
	}
	if online {
		return
	}
	if msg.Type.IsSystem() {
		return
	}
	b.push.Notify(ctx, userID, msg)
}
