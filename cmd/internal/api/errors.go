package api

import (
	"errors"
	"net/http"

	"unidash/cmd/internal/delivery"
	"unidash/cmd/internal/member"
)

// writeDomainError maps domain error kinds to HTTP statuses:
//   - invalid input  -> 400 invalid_request (fix the input and retry)
//   - invalid code   -> 400 invalid_code   (user-correctable, retry allowed)
//   - not found      -> 404 not_found
//   - forbidden      -> 403 forbidden
//   - conflict       -> 409 conflict       (re-fetch current state, then decide)
func writeDomainError(w http.ResponseWriter, err error) {
	msg := domainMessage(err)

	switch {
	case delivery.IsInvalidCode(err):
		writeError(w, http.StatusBadRequest, "invalid_code", msg)
	case delivery.IsInvalidInput(err) || errors.Is(err, member.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid_request", msg)
	case delivery.IsNotFound(err) || member.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not_found", msg)
	case delivery.IsForbidden(err):
		writeError(w, http.StatusForbidden, "forbidden", msg)
	case delivery.IsConflict(err) || errors.Is(err, member.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", msg)
	default:
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

// domainMessage surfaces the operation message when the error carries one.
// OpError messages are written for end users and never include codes.
func domainMessage(err error) string {
	var de delivery.OpError
	if errors.As(err, &de) && de.Msg != "" {
		return de.Msg
	}
	var me member.OpError
	if errors.As(err, &me) && me.Msg != "" {
		return me.Msg
	}
	return "request failed"
}

// outcomeLabel is the metrics label for a transition outcome.
func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case delivery.IsConflict(err):
		return "conflict"
	case delivery.IsForbidden(err):
		return "forbidden"
	case delivery.IsInvalidCode(err):
		return "invalid_code"
	case delivery.IsNotFound(err):
		return "not_found"
	case delivery.IsInvalidInput(err):
		return "invalid_input"
	default:
		return "error"
	}
}
