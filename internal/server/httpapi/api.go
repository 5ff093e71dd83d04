package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/dmitrijs2005/whisper/internal/common"
	"github.com/dmitrijs2005/whisper/internal/logging"
	"github.com/dmitrijs2005/whisper/internal/server/models"
	"github.com/dmitrijs2005/whisper/internal/server/realtime"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

// GroupService runs the group-management operations. Each one returns the
// SYSTEM message it stored.
type GroupService interface {
	PresenceParticipants(ctx context.Context, chatID, actorID int64) ([]int64, error)
	RenameGroup(ctx context.Context, chatID, actorID int64, name string) (*models.Message, error)
	AddParticipant(ctx context.Context, chatID, actorID, userID int64) (*models.Message, error)
	RemoveParticipant(ctx context.Context, chatID, actorID, userID int64) (*models.Message, error)
	LeaveGroup(ctx context.Context, chatID, actorID int64) (*models.Message, error)
}

// MediaService presigns object-storage URLs for media messages.
type MediaService interface {
	UploadURL(ctx context.Context, userID int64, contentType string) (string, string, error)
	DownloadURL(ctx context.Context, key string) (string, error)
}

// Broadcaster delivers a stored message to the chat's participants.
type Broadcaster interface {
	Broadcast(ctx context.Context, msg *models.Message)
}

// Presence answers who is connected right now.
type Presence interface {
	Status(userID int64) realtime.Status
	Count() int
}

type API struct {
	ws          http.Handler
	verifier    realtime.TokenVerifier
	groups      GroupService
	media       MediaService
	broadcaster Broadcaster
	presence    Presence
	logger      logging.Logger
}

func NewAPI(ws http.Handler, verifier realtime.TokenVerifier, groups GroupService, media MediaService,
	broadcaster Broadcaster, presence Presence, logger logging.Logger) *API {
	return &API{
		ws:          ws,
		verifier:    verifier,
		groups:      groups,
		media:       media,
		broadcaster: broadcaster,
		presence:    presence,
		logger:      logger.With("module", "http_api"),
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Handler returns the routed API wrapped in CORS handling for allowedOrigins.
func (a *API) Handler(allowedOrigins []string) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", a.health).Methods(http.MethodGet)
	r.Handle("/ws/chat", a.ws).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(a.accessTokenMiddleware)

	api.HandleFunc("/chats/{chatId:[0-9]+}/presence", a.chatPresence).Methods(http.MethodGet)
	api.HandleFunc("/chats/{chatId:[0-9]+}/name", a.renameGroup).Methods(http.MethodPut)
	api.HandleFunc("/chats/{chatId:[0-9]+}/participants", a.addParticipant).Methods(http.MethodPost)
	api.HandleFunc("/chats/{chatId:[0-9]+}/participants/{userId:[0-9]+}", a.removeParticipant).Methods(http.MethodDelete)
	api.HandleFunc("/chats/{chatId:[0-9]+}/leave", a.leaveGroup).Methods(http.MethodPost)

	api.HandleFunc("/media/upload-url", a.uploadURL).Methods(http.MethodPost)
	api.HandleFunc("/media/download-url", a.downloadURL).Methods(http.MethodGet)

	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", common.AuthorizationHeaderName},
		MaxAge:         300,
	})

	return c.Handler(r)
}

type healthResponse struct {
	Status string `json:"status"`
	Online int    `json:"online"`
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "OK", Online: a.presence.Count()})
}

func (a *API) chatPresence(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actorID, _ := UserIDFromContext(ctx)
	chatID := pathID(r, "chatId")

	participants, err := a.groups.PresenceParticipants(ctx, chatID, actorID)
	if err != nil {
		a.fail(ctx, w, "chat presence", err)
		return
	}

	statuses := make(map[int64]realtime.Status, len(participants))
	for _, id := range participants {
		statuses[id] = a.presence.Status(id)
	}
	writeJSON(w, http.StatusOK, statuses)
}

type renameRequest struct {
	Name string `json:"name" validate:"required,max=255"`
}

func (a *API) renameGroup(w http.ResponseWriter, r *http.Request) {
	var req renameRequest
	if !a.decode(w, r, &req) {
		return
	}
	a.groupOp(w, r, "rename group", func(ctx context.Context, chatID, actorID int64) (*models.Message, error) {
		return a.groups.RenameGroup(ctx, chatID, actorID, req.Name)
	})
}

type addParticipantRequest struct {
	UserID int64 `json:"userId" validate:"gt=0"`
}

func (a *API) addParticipant(w http.ResponseWriter, r *http.Request) {
	var req addParticipantRequest
	if !a.decode(w, r, &req) {
		return
	}
	a.groupOp(w, r, "add participant", func(ctx context.Context, chatID, actorID int64) (*models.Message, error) {
		return a.groups.AddParticipant(ctx, chatID, actorID, req.UserID)
	})
}

func (a *API) removeParticipant(w http.ResponseWriter, r *http.Request) {
	userID := pathID(r, "userId")
	a.groupOp(w, r, "remove participant", func(ctx context.Context, chatID, actorID int64) (*models.Message, error) {
		return a.groups.RemoveParticipant(ctx, chatID, actorID, userID)
	})
}

func (a *API) leaveGroup(w http.ResponseWriter, r *http.Request) {
	a.groupOp(w, r, "leave group", a.groups.LeaveGroup)
}

// groupOp runs a group operation and broadcasts the SYSTEM message it
// produced. The broadcast outlives a client that hangs up mid-request.
func (a *API) groupOp(w http.ResponseWriter, r *http.Request, op string,
	run func(ctx context.Context, chatID, actorID int64) (*models.Message, error)) {
	ctx := r.Context()
	actorID, _ := UserIDFromContext(ctx)
	chatID := pathID(r, "chatId")

	msg, err := run(ctx, chatID, actorID)
	if err != nil {
		a.fail(ctx, w, op, err)
		return
	}

	a.broadcaster.Broadcast(context.WithoutCancel(ctx), msg)
	writeJSON(w, http.StatusOK, realtime.NewMessageFrame(msg))
}

type uploadURLRequest struct {
	ContentType string `json:"contentType" validate:"omitempty,max=255"`
}

type uploadURLResponse struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// uploadURL accepts an optional {"contentType": "..."} body.
func (a *API) uploadURL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, _ := UserIDFromContext(ctx)

	var req uploadURLRequest
	if r.ContentLength != 0 && !a.decode(w, r, &req) {
		return
	}

	key, url, err := a.media.UploadURL(ctx, userID, req.ContentType)
	if err != nil {
		a.fail(ctx, w, "presign upload", err)
		return
	}
	writeJSON(w, http.StatusOK, uploadURLResponse{Key: key, URL: url})
}

type downloadURLResponse struct {
	URL string `json:"url"`
}

func (a *API) downloadURL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	url, err := a.media.DownloadURL(ctx, r.URL.Query().Get("key"))
	if err != nil {
		a.fail(ctx, w, "presign download", err)
		return
	}
	writeJSON(w, http.StatusOK, downloadURLResponse{URL: url})
}

// decode reads a JSON body into dst and validates it, answering 400 on failure.
func (a *API) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

// pathID reads a numeric route variable. The route patterns only match
// digits, so the parse fails only on overflow, which yields 0.
func pathID(r *http.Request, name string) int64 {
	id, _ := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	return id
}
