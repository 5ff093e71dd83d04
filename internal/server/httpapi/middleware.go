package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/whisper/internal/common"
)

type ctxKey string

const userIDKey ctxKey = "userID"

// UserIDFromContext returns the id stored by the access-token middleware.
func UserIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDKey).(int64)
	return id, ok
}

func withUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// accessTokenMiddleware requires "Authorization: Bearer <token>" and stores
// the verified user id in the request context.
func (a *API) accessTokenMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		header := r.Header.Get(common.AuthorizationHeaderName)
		token, found := strings.CutPrefix(header, common.BearerPrefix)
		token = strings.TrimSpace(token)
		if !found || token == "" {
			writeError(w, http.StatusUnauthorized, "missing token")
			return
		}

		userID, err := a.verifier.Verify(ctx, token)
		if err != nil {
			a.logger.Warn(ctx, "access token rejected", "path", r.URL.Path, "err", err)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		next.ServeHTTP(w, r.WithContext(withUserID(ctx, userID)))
	})
}
