// Package httputil writes the JSON envelopes every handler shares.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"busybeaver/pkg/platform/sentinel"
)

// Error codes in the "error" field of the envelope.
const (
	CodeBadRequest    = "bad_request"
	CodeNotFound      = "not_found"
	CodeConflict      = "conflict"
	CodeUnavailable   = "unavailable"
	CodeNotSupported  = "not_supported"
	CodeInternal      = "internal_error"
	CodeUnprocessable = "unprocessable"
)

// ErrBadRequest marks client input errors; wrap it to get a 400.
var ErrBadRequest = errors.New("bad request")

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// WriteError translates err to a status and {"error", "message"} body.
// Internal errors never leak their message.
func WriteError(w http.ResponseWriter, err error) {
	status, code := Classify(err)
	body := map[string]string{"error": code}
	if status != http.StatusInternalServerError {
		body["message"] = err.Error()
	}
	WriteJSON(w, status, body)
}

// Classify maps err to an HTTP status and envelope code.
func Classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, CodeBadRequest
	case errors.Is(err, sentinel.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, sentinel.ErrConflict):
		return http.StatusConflict, CodeConflict
	case errors.Is(err, sentinel.ErrInvalidState):
		return http.StatusUnprocessableEntity, CodeUnprocessable
	case errors.Is(err, sentinel.ErrUnsupported):
		return http.StatusNotImplemented, CodeNotSupported
	case errors.Is(err, sentinel.ErrUnavailable):
		return http.StatusServiceUnavailable, CodeUnavailable
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}
