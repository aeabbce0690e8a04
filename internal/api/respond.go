package api

import (
	"errors"
	"fmt"
	"net/http"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"gemscope/internal/common"
)

// Error codes carried in the response envelope.
const (
	codeValidation   = "validation_error"
	codeUnauthorized = "unauthorized"
	codeNotFound     = "not_found"
	codeConflict     = "conflict"
	codeUnavailable  = "service_unavailable"
	codeInternal     = "internal_error"
)

type envelope struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *apiError `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// respond writes a success envelope.
func (s *Server) respond(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(envelope{Success: true, Data: data}); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

// respondError maps the sentinel wrapped in err onto a status code and
// writes an error envelope. Unrecognized errors become opaque 500s.
func (s *Server) respondError(w http.ResponseWriter, err error) {
	status, code := http.StatusInternalServerError, codeInternal
	message := err.Error()

	switch {
	case errors.Is(err, common.ErrValidation):
		status, code = http.StatusBadRequest, codeValidation
	case errors.Is(err, common.ErrUnauthorized):
		status, code = http.StatusUnauthorized, codeUnauthorized
	case errors.Is(err, common.ErrNotFound):
		status, code = http.StatusNotFound, codeNotFound
	case errors.Is(err, common.ErrConflict):
		status, code = http.StatusConflict, codeConflict
	case errors.Is(err, common.ErrUnavailable):
		status, code = http.StatusServiceUnavailable, codeUnavailable
	default:
		log.Error().Err(err).Msg("Request failed")
		message = "internal error"
	}

	s.metrics.ErrorsTotal.Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encodeErr := json.NewEncoder(w).Encode(envelope{Error: &apiError{Code: code, Message: message}})
	if encodeErr != nil {
		log.Error().Err(encodeErr).Msg("Failed to encode error response")
	}
}

// decode reads the JSON request body into dst and checks its validate tags.
func (s *Server) decode(r *http.Request, dst any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("malformed request body: %w", common.ErrValidation)
	}
	if err := s.validate.Struct(dst); err != nil {
		return fmt.Errorf("%s: %w", err.Error(), common.ErrValidation)
	}
	return nil
}
