package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pennant-io/pennant/cmd/pennant/internal/store"
	"github.com/pennant-io/pennant/pkg/flags"
)

// Transport error codes. Every non-2xx response carries one of these in
// the error envelope.
const (
	CodeNotFound     = "NOT_FOUND"
	CodeInvalidBody  = "INVALID_BODY"
	CodeWriteFailed  = "WRITE_FAILED"
	CodeUpdateFailed = "UPDATE_FAILED"
	CodeDeleteFailed = "DELETE_FAILED"
	CodeRateLimited  = "RATE_LIMITED"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
	CodeInternal     = "INTERNAL_ERROR"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

func sendError(w http.ResponseWriter, status int, code, message string) {
	sendJSON(w, status, errorBody{Code: code, Message: message})
}

// sendStoreError maps service failures onto the envelope: missing things
// are 404, schema and reference violations are 400, and everything else is
// a 5xx under the operation's failure code.
func sendStoreError(w http.ResponseWriter, err error, failureCode string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		sendError(w, http.StatusNotFound, CodeNotFound, err.Error())
	case errors.Is(err, flags.ErrInvalid):
		sendError(w, http.StatusBadRequest, CodeInvalidBody, err.Error())
	default:
		sendError(w, http.StatusInternalServerError, failureCode, err.Error())
	}
}

// RateLimited is the handler installed on the rate limiter so throttled
// requests get the same envelope as every other error.
func RateLimited(w http.ResponseWriter, _ *http.Request) {
	sendError(w, http.StatusTooManyRequests, CodeRateLimited, "rate limit exceeded, slow down")
}
