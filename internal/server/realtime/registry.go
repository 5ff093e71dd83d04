package realtime

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/dmitrijs2005/whisper/internal/logging"
)

// Status is a user's derived presence.
type Status string

const (
	StatusOnline  Status = "ONLINE"
	StatusOffline Status = "OFFLINE"
)

const shardCount = 32

type entry struct {
	conn Conn
	gen  uint64
}

type shard struct {
	mu      sync.Mutex
	entries map[int64]entry
}

// Registry maps each user to at most one live connection. Keys are spread
// over independently locked shards so unrelated users never contend.
type Registry struct {
	shards [shardCount]shard
	gen    atomic.Uint64
	logger logging.Logger
}

func NewRegistry(logger logging.Logger) *Registry {
	r := &Registry{logger: logger}
	for i := range r.shards {
		r.shards[i].entries = make(map[int64]entry)
	}
	return r
}

func (r *Registry) shard(userID int64) *shard {
	return &r.shards[uint64(userID)%shardCount]
}

// Register installs conn for userID and returns its generation. Any previous
// connection of the user is closed before Register returns; a failure to
// close it is logged and otherwise ignored.
func (r *Registry) Register(ctx context.Context, userID int64, conn Conn) uint64 {
	gen := r.gen.Add(1)

	s := r.shard(userID)
	s.mu.Lock()
	prev, had := s.entries[userID]
	s.entries[userID] = entry{conn: conn, gen: gen}
	s.mu.Unlock()

	if had && prev.conn != conn {
		r.logger.Info(ctx, "evicting previous session", "user_id", userID, "old_conn_id", prev.conn.ID(), "new_conn_id", conn.ID())
		if err := prev.conn.Close(CloseNormal, "Session replaced"); err != nil {
			r.logger.Warn(ctx, "close evicted session", "user_id", userID, "conn_id", prev.conn.ID(), "err", err)
		}
	}

	r.logger.Debug(ctx, "session registered", "user_id", userID, "conn_id", conn.ID(), "gen", gen)
	return gen
}

// Remove deletes the entry for userID only if it still belongs to generation
// gen. It reports whether an entry was removed; false means a newer login has
// already replaced the caller.
func (r *Registry) Remove(userID int64, gen uint64) bool {
	s := r.shard(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[userID]
	if !ok || e.gen != gen {
		return false
	}
	delete(s.entries, userID)
	return true
}

// Lookup returns the user's connection, if any.
func (r *Registry) Lookup(userID int64) (Conn, bool) {
	s := r.shard(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[userID]
	if !ok {
		return nil, false
	}
	return e.conn, true
}

// Status is ONLINE iff the user has an open registered connection.
func (r *Registry) Status(userID int64) Status {
	if conn, ok := r.Lookup(userID); ok && conn.IsOpen() {
		return StatusOnline
	}
	return StatusOffline
}

// SendTo writes data to userID's connection. It reports false when the user
// has no open connection or the connection closed during the write.
func (r *Registry) SendTo(ctx context.Context, userID int64, data []byte) (bool, error) {
	conn, ok := r.Lookup(userID)
	if !ok || !conn.IsOpen() {
		return false, nil
	}
	if err := conn.Send(ctx, data); err != nil {
		return conn.IsOpen(), err
	}
	return true, nil
}

func (r *Registry) Count() int {
	n := 0
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.Lock()
		n += len(s.entries)
		s.mu.Unlock()
	}
	return n
}

// CloseAll closes every registered connection. Used on shutdown.
func (r *Registry) CloseAll(code int, reason string) {
	var conns []Conn
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.Lock()
		for _, e := range s.entries {
			conns = append(conns, e.conn)
		}
		s.mu.Unlock()
	}
	for _, c := range conns {
		_ = c.Close(code, reason)
	}
}
