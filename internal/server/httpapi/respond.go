package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/whisper/internal/common"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// statusFor maps service errors onto HTTP status codes. Rule violations are
// the client's fault; anything unrecognised is a 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, common.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, common.ErrorUnauthorized),
		errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrTokenExpired):
		return http.StatusUnauthorized
	case errors.Is(err, common.ErrValidation),
		errors.Is(err, common.ErrChatNotFound),
		errors.Is(err, common.ErrNotAParticipant),
		errors.Is(err, common.ErrNotGroupChat),
		errors.Is(err, common.ErrAlreadyParticipant),
		errors.Is(err, common.ErrSenderNotFound),
		errors.Is(err, common.ErrorNotFound):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) fail(ctx context.Context, w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		a.logger.Error(ctx, op, "err", err)
		writeError(w, status, "internal error")
		return
	}
	a.logger.Info(ctx, op+" refused", "err", err)
	writeError(w, status, rootMessage(err))
}

// rootMessage strips wrapping context such as "rename group: " so clients
// only see the sentinel text.
func rootMessage(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}
