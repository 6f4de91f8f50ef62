// Package httputil centralizes JSON response and error envelope handling for
// HTTP handlers. Keeping the translation here ensures every endpoint speaks
// the same error contract: {"error": <code>, "error_description": <message>}.
package httputil

import (
	"encoding/json"
	"net/http"

	dErrors "lumenpay/pkg/domain-errors"
)

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps a coded domain error onto an HTTP status and JSON envelope.
// Internal errors omit the description so backend details never leak; all
// other codes surface their message so callers can act on it. Indeterminate
// settlement gets its own status (502 would read as failure, which it is not).
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)

	body := map[string]string{"error": string(code)}
	if code != dErrors.CodeInternal {
		if msg := dErrors.MessageOf(err); msg != "" {
			body["error_description"] = msg
		}
	}
	WriteJSON(w, statusOf(code), body)
}

// StatusOf exposes the status mapping for handlers that build composite
// responses (an error envelope carrying a body alongside it).
func StatusOf(err error) int {
	return statusOf(dErrors.CodeOf(err))
}

func statusOf(code dErrors.Code) int {
	switch code {
	case dErrors.CodeValidation, dErrors.CodeInvariantViolation:
		return http.StatusBadRequest
	case dErrors.CodeConflict:
		return http.StatusConflict
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeExternal:
		return http.StatusBadGateway
	case dErrors.CodeIndeterminate:
		// Neither success nor failure: the transfer may have happened.
		return http.StatusAccepted
	default:
		return http.StatusInternalServerError
	}
}
