package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/Makar0n1/art-automation/pkg/log"
)

// envelope is the uniform response shape of every endpoint.
type envelope struct {
	Success           bool   `json:"success"`
	Data              any    `json:"data,omitempty"`
	Error             string `json:"error,omitempty"`
	Message           string `json:"message,omitempty"`
	IsBlocked         bool   `json:"isBlocked,omitempty"`
	AttemptsRemaining *int   `json:"attemptsRemaining,omitempty"`
}

// apiError carries an HTTP status through handler return paths.
type apiError struct {
	status  int
	message string
}

func (e *apiError) Error() string { return e.message }

func errBadRequest(format string, args ...any) error {
	return &apiError{status: http.StatusBadRequest, message: fmt.Sprintf(format, args...)}
}

func errUnauthorized(message string) error {
	return &apiError{status: http.StatusUnauthorized, message: message}
}

func errForbidden(message string) error {
	return &apiError{status: http.StatusForbidden, message: message}
}

func errNotFound(message string) error {
	return &apiError{status: http.StatusNotFound, message: message}
}

func respond(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger := log.WithComponent("api")
		logger.Error().Err(err).Msg("failed to encode response")
	}
}

func respondData(w http.ResponseWriter, status int, data any) {
	respond(w, status, envelope{Success: true, Data: data})
}

func respondMessage(w http.ResponseWriter, message string) {
	respond(w, http.StatusOK, envelope{Success: true, Message: message})
}

// respondError maps an error to its envelope. Unknown errors are internal:
// the client gets a generic message, the log gets the cause.
func respondError(w http.ResponseWriter, err error) {
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		respond(w, apiErr.status, envelope{Success: false, Error: apiErr.message})
		return
	}
	logger := log.WithComponent("api")
	logger.Error().Err(err).Msg("internal error")
	respond(w, http.StatusInternalServerError, envelope{Success: false, Error: "internal server error"})
}

// decodeBody parses a JSON request body into dst.
func decodeBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errBadRequest("invalid request body")
	}
	return nil
}
