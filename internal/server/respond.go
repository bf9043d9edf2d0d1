package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gezibash/arc-ledger/internal/ledger"
	arcerrors "github.com/gezibash/arc-ledger/pkg/errors"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errBadRequest = fmt.Errorf("request %w", arcerrors.ErrInvalidInput)

var categories = []struct {
	err    error
	status int
	code   string
}{
	{arcerrors.ErrNotFound, http.StatusNotFound, "not_found"},
	{arcerrors.ErrAlreadyExists, http.StatusConflict, "already_exists"},
	{arcerrors.ErrConflict, http.StatusConflict, "conflict"},
	{arcerrors.ErrUnauthorized, http.StatusForbidden, "unauthorized"},
	{arcerrors.ErrUnprocessable, http.StatusUnprocessableEntity, "unprocessable"},
	{arcerrors.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
	{arcerrors.ErrClosed, http.StatusServiceUnavailable, "unavailable"},
}

// classify maps err to a status and a stable code. Ledger errors keep their
// specific reason.
func classify(err error) (int, string) {
	for _, c := range categories {
		if errors.Is(err, c.err) {
			code := ledger.Reason(err)
			if code == "internal" {
				code = c.code
			}
			return c.status, code
		}
	}
	return http.StatusInternalServerError, "internal"
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	s.metrics.ObserveError(r.Pattern, code)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.log.WithError(err).ErrorContext(r.Context(), "request failed", "path", r.URL.Path)
		msg = http.StatusText(status)
	}
	writeJSON(w, status, ErrorResponse{Error: msg, Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeText(w http.ResponseWriter, s string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, s)
}

func writeBool(w http.ResponseWriter, b bool) {
	if b {
		writeText(w, "true")
		return
	}
	writeText(w, "false")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %w", errBadRequest, err)
	}
	return nil
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	b, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errBadRequest, err)
	}
	return b, nil
}
