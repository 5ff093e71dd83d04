package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/dmitrijs2005/whisper/internal/logging"
	"github.com/samber/lo"
)

// MembershipSource answers which chats a user is in and who else is there.
type MembershipSource interface {
	ChatsOf(ctx context.Context, userID int64) ([]int64, error)
	ParticipantsOf(ctx context.Context, chatID int64) ([]int64, error)
}

// PresenceNotifier tells everyone sharing a chat with a user that the user
// came online or went offline.
//
// Updates for one user are ordered by session generation: an update older
// than the last one written for that user is dropped, so a slow OFFLINE from
// a finished session can never overwrite the ONLINE of a newer one.
type PresenceNotifier struct {
	registry *Registry
	chats    MembershipSource
	logger   logging.Logger

	mu    sync.Mutex
	slots map[int64]*presenceSlot
}

// presenceSlot serializes fan-out for one user and remembers the sequence of
// the last update written.
type presenceSlot struct {
	mu   sync.Mutex
	last uint64
}

func NewPresenceNotifier(registry *Registry, chats MembershipSource, logger logging.Logger) *PresenceNotifier {
	return &PresenceNotifier{
		registry: registry,
		chats:    chats,
		logger:   logger,
		slots:    make(map[int64]*presenceSlot),
	}
}

func (p *PresenceNotifier) slot(userID int64) *presenceSlot {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.slots[userID]
	if !ok {
		s = &presenceSlot{}
		p.slots[userID] = s
	}
	return s
}

// presenceSeq orders updates: ONLINE and OFFLINE of generation gen sort
// before anything from a later generation, OFFLINE after ONLINE.
func presenceSeq(gen uint64, status Status) uint64 {
	seq := gen << 1
	if status == StatusOffline {
		seq |= 1
	}
	return seq
}

// Interested returns every user sharing at least one chat with userID, each
// once, excluding userID.
func (p *PresenceNotifier) Interested(ctx context.Context, userID int64) ([]int64, error) {
	chatIDs, err := p.chats.ChatsOf(ctx, userID)
	if err != nil {
		return nil, err
	}

	var all []int64
	for _, chatID := range chatIDs {
		ids, err := p.chats.ParticipantsOf(ctx, chatID)
		if err != nil {
			return nil, err
		}
		all = append(all, ids...)
	}

	return lo.Without(lo.Uniq(all), userID), nil
}

// Notify pushes a PRESENCE_UPDATE to each interested user that is online.
// gen is the registry generation of the session the update belongs to.
// Stale updates are dropped, as is an OFFLINE for a user who has already
// registered a new connection.
func (p *PresenceNotifier) Notify(ctx context.Context, userID int64, status Status, gen uint64) {
	log := p.logger.With("user_id", userID, "status", status, "gen", gen)

	interested, err := p.Interested(ctx, userID)
	if err != nil {
		log.Error(ctx, "resolve presence audience", "err", err)
		return
	}

	payload, err := json.Marshal(NewPresenceUpdateFrame(userID, status))
	if err != nil {
		log.Error(ctx, "encode presence frame", "err", err)
		return
	}

	slot := p.slot(userID)
	slot.mu.Lock()
	defer slot.mu.Unlock()

	seq := presenceSeq(gen, status)
	if seq <= slot.last {
		log.Debug(ctx, "dropping stale presence update")
		return
	}
	if _, online := p.registry.Lookup(userID); status == StatusOffline && online {
		log.Debug(ctx, "dropping offline update, user has reconnected")
		return
	}
	slot.last = seq

	var wg sync.WaitGroup
	for _, other := range interested {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := p.registry.SendTo(ctx, other, payload); err != nil {
				log.Warn(ctx, "presence delivery failed", "to_user_id", other, "err", err)
			}
		}()
	}
	wg.Wait()
}
