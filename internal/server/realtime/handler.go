package realtime

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dmitrijs2005/whisper/internal/common"
	"github.com/dmitrijs2005/whisper/internal/logging"
	"github.com/dmitrijs2005/whisper/internal/server/models"
)

// Close reasons sent with ClosePolicyViolation.
const (
	ReasonAuthRequired         = "Authorization required!"
	ReasonEmptyToken           = "Empty token."
	ReasonIncorrectToken       = "Incorrect token"
	ReasonTokenValidationError = "Token validation error: "
)

// TokenVerifier resolves an access token to a user id. It returns
// common.ErrInvalidToken when the token is well formed but names no valid user.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (int64, error)
}

// MessageStore persists client chat messages after checking membership.
type MessageStore interface {
	SaveMessage(ctx context.Context, senderID, chatID int64, content string, msgType models.MessageType) (*models.Message, error)
}

type connState int

const (
	stateUnauthenticated connState = iota
	stateAuthenticated
	stateClosed
)

// Handler runs the protocol for one connection at a time; it is safe to call
// Serve concurrently for different connections.
type Handler struct {
	registry    *Registry
	verifier    TokenVerifier
	messages    MessageStore
	broadcaster *Broadcaster
	presence    *PresenceNotifier
	receipts    *ReceiptHandler
	logger      logging.Logger

	mu       sync.Mutex
	draining bool
	active   sync.WaitGroup
}

func NewHandler(registry *Registry, verifier TokenVerifier, messages MessageStore, broadcaster *Broadcaster,
	presence *PresenceNotifier, receipts *ReceiptHandler, logger logging.Logger) *Handler {
	return &Handler{
		registry:    registry,
		verifier:    verifier,
		messages:    messages,
		broadcaster: broadcaster,
		presence:    presence,
		receipts:    receipts,
		logger:      logger,
	}
}

// session is the per-connection state owned by the Serve goroutine.
type session struct {
	conn   Conn
	state  connState
	userID int64
	gen    uint64
	log    logging.Logger
}

// Serve reads frames from conn until it closes or ctx is cancelled. After
// Drain has been called new connections are closed immediately.
func (h *Handler) Serve(ctx context.Context, conn Conn) {
	h.mu.Lock()
	if h.draining {
		h.mu.Unlock()
		_ = conn.Close(CloseGoingAway, "Server shutting down")
		return
	}
	h.active.Add(1)
	h.mu.Unlock()
	defer h.active.Done()

	s := &session{
		conn:  conn,
		state: stateUnauthenticated,
		log:   h.logger.With("conn_id", conn.ID(), "remote", conn.RemoteAddr()),
	}
	s.log.Debug(ctx, "connection opened, awaiting AUTH")

	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close(CloseGoingAway, "Server shutting down")
	})
	defer stop()
	defer h.disconnect(ctx, s)

	for s.state != stateClosed {
		data, err := conn.Read()
		if err != nil {
			s.log.Debug(ctx, "read ended", "err", err)
			return
		}

		switch s.state {
		case stateUnauthenticated:
			h.handleUnauthenticated(ctx, s, data)
		case stateAuthenticated:
			h.handleAuthenticated(ctx, s, data)
		}
	}
}

// Drain stops accepting connections and waits for every running Serve call,
// including its disconnect work, to return. It gives up when ctx is done.
func (h *Handler) Drain(ctx context.Context) error {
	h.mu.Lock()
	h.draining = true
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		h.active.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handler) handleUnauthenticated(ctx context.Context, s *session, data []byte) {
	env, err := DecodeEnvelope(data)
	if err != nil {
		s.log.Warn(ctx, "dropping malformed frame", "err", err)
		return
	}
	if env.Type != TypeAuth {
		h.reject(ctx, s, ReasonAuthRequired)
		return
	}

	token := strings.TrimSpace(env.Token)
	if token == "" {
		h.reject(ctx, s, ReasonEmptyToken)
		return
	}

	userID, err := h.verifier.Verify(ctx, token)
	if err != nil {
		if errors.Is(err, common.ErrInvalidToken) {
			h.reject(ctx, s, ReasonIncorrectToken)
		} else {
			h.reject(ctx, s, ReasonTokenValidationError+err.Error())
		}
		return
	}

	s.userID = userID
	s.gen = h.registry.Register(ctx, userID, s.conn)
	s.state = stateAuthenticated
	s.log = s.log.With("user_id", userID)
	s.log.Info(ctx, "authenticated")

	h.presence.Notify(ctx, userID, StatusOnline, s.gen)
}

func (h *Handler) handleAuthenticated(ctx context.Context, s *session, data []byte) {
	frame, err := ParseFrame(data)
	if err != nil {
		s.log.Warn(ctx, "dropping malformed frame", "err", err)
		return
	}

	switch f := frame.(type) {
	case AuthFrame:
		s.log.Debug(ctx, "ignoring repeated AUTH")
	case ChatMessageFrame:
		msg, err := h.messages.SaveMessage(ctx, s.userID, f.ChatID, f.Content, f.MessageType)
		if err != nil {
			s.log.Warn(ctx, "chat message rejected", "chat_id", f.ChatID, "err", err)
			return
		}
		h.broadcaster.Broadcast(ctx, msg)
	case MarkAsReadFrame:
		if senderID, ok := h.receipts.MarkAsRead(ctx, f.MessageID, s.userID); ok {
			h.receipts.NotifySender(ctx, senderID, f.MessageID, s.userID)
		}
	case UnknownFrame:
		s.log.Debug(ctx, "ignoring unknown frame", "type", f.frameType())
	default:
		s.log.Error(ctx, "unhandled frame variant", "frame", fmt.Sprintf("%T", frame))
	}
}

func (h *Handler) reject(ctx context.Context, s *session, reason string) {
	s.log.Info(ctx, "closing unauthenticated connection", "reason", reason)
	if err := s.conn.Close(ClosePolicyViolation, reason); err != nil {
		s.log.Debug(ctx, "close after reject", "err", err)
	}
	s.state = stateClosed
}

// disconnect deregisters an authenticated session and announces OFFLINE,
// unless a newer login has already taken the user's slot.
func (h *Handler) disconnect(ctx context.Context, s *session) {
	wasAuthenticated := s.state == stateAuthenticated
	s.state = stateClosed
	_ = s.conn.Close(CloseNormal, "")

	if !wasAuthenticated {
		s.log.Debug(ctx, "connection closed")
		return
	}

	ctx = context.WithoutCancel(ctx)
	if !h.registry.Remove(s.userID, s.gen) {
		s.log.Info(ctx, "connection closed, session already superseded")
		return
	}
	s.log.Info(ctx, "connection closed")
	h.presence.Notify(ctx, s.userID, StatusOffline, s.gen)
}
