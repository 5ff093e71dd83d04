package realtime

import (
	"net/http"
	"time"

	"github.com/dmitrijs2005/whisper/internal/logging"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
)

// Endpoint upgrades HTTP requests to WebSocket connections and hands them to
// the Handler. Authentication happens afterwards, in-band.
type Endpoint struct {
	handler      *Handler
	upgrader     websocket.Upgrader
	writeTimeout time.Duration
	logger       logging.Logger
}

// NewEndpoint accepts browser connections only from allowedOrigins ("*"
// allows any). Requests without an Origin header come from native clients
// and are always accepted.
func NewEndpoint(handler *Handler, allowedOrigins []string, writeTimeout time.Duration, logger logging.Logger) *Endpoint {
	allowAll := lo.Contains(allowedOrigins, "*")
	allowed := lo.SliceToMap(allowedOrigins, func(o string) (string, struct{}) { return o, struct{}{} })

	return &Endpoint{
		handler: handler,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || allowAll {
					return true
				}
				_, ok := allowed[origin]
				return ok
			},
		},
		writeTimeout: writeTimeout,
		logger:       logger,
	}
}

func (e *Endpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := e.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error response.
		e.logger.Warn(r.Context(), "websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	e.handler.Serve(r.Context(), NewWSConn(ws, e.writeTimeout))
}
