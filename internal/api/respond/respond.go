// Package respond renders the JSON response envelope used by every API
// endpoint: {success, message?, data?, errors?}.
package respond

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"
)

const contentType = "application/json; charset=utf-8"

// FieldError describes a single validation violation.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Type    string `json:"type"`
	Value   any    `json:"value,omitempty"`
}

// Envelope is the uniform response body.
type Envelope struct {
	Success bool         `json:"success"`
	Message string       `json:"message,omitempty"`
	Data    any          `json:"data,omitempty"`
	Errors  []FieldError `json:"errors,omitempty"`
}

// Sentinel errors shared by handlers and middleware.
var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrConflict     = errors.New("conflict")
)

// OK writes a success envelope.
func OK(w http.ResponseWriter, status int, message string, data any) {
	writeEnvelope(w, status, Envelope{Success: true, Message: message, Data: data})
}

// Error writes a failure envelope. The message is always client-safe; err is
// only logged (4xx at warn, 5xx at error) via the request-scoped logger.
func Error(w http.ResponseWriter, r *http.Request, status int, message string, err error) {
	if err != nil && r != nil {
		logger := zerolog.Ctx(r.Context())
		event := logger.Warn()
		if status >= 500 {
			event = logger.Error()
		}
		event.
			Err(err).
			Int("status", status).
			Str("path", r.URL.Path).
			Str("method", r.Method).
			Msg(message)
	}
	writeEnvelope(w, status, Envelope{Success: false, Message: message})
}

// ValidationFailed writes a 400 envelope listing every violation.
func ValidationFailed(w http.ResponseWriter, r *http.Request, errs []FieldError) {
	if r != nil {
		zerolog.Ctx(r.Context()).Warn().
			Int("violations", len(errs)).
			Str("path", r.URL.Path).
			Str("method", r.Method).
			Msg("request validation failed")
	}
	writeEnvelope(w, http.StatusBadRequest, Envelope{
		Success: false,
		Message: "Request validation failed",
		Errors:  errs,
	})
}

func writeEnvelope(w http.ResponseWriter, status int, envelope Envelope) {
	payload, err := json.Marshal(envelope)
	if err != nil {
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"success":false,"message":"Internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}
