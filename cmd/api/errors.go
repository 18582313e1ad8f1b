package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/auth"
	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/capture"
	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/dog"
	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/ledger"
	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/resolution"
)

const (
	codeInvalidRequestBody = "invalid_request_body"
	codeInvalidArgument    = "invalid_argument"
	codeUnauthorized       = "unauthorized"
	codeForbidden          = "forbidden"
	codeWrongLogin         = "wrong_login"
	codeNotFound           = "not_found"
	codeDogUnavailable     = "dog_unavailable"
	codeDuplicateRequest   = "duplicate_request"
	codeAlreadyResolved    = "already_resolved"
	codeInvalidTransition  = "invalid_transition"
	codeConflict           = "conflict"
	codeInternalError      = "internal_error"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	payload, err := json.Marshal(v)
	if err != nil {
		_, _ = w.Write([]byte(`{"error":"internal error","code":"internal_error"}`))
		return
	}
	_, _ = w.Write(payload)
}

// classify maps a domain error onto a status and code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, dog.ErrInvalidConfiguration),
		errors.Is(err, dog.ErrInvalidStatus),
		errors.Is(err, ledger.ErrInvalidKind),
		errors.Is(err, resolution.ErrInvalidDecision),
		errors.Is(err, capture.ErrInvalidReason),
		errors.Is(err, capture.ErrInvalidLocation),
		errors.Is(err, capture.ErrInvalidDecision),
		errors.Is(err, capture.ErrMissingSchedule),
		errors.Is(err, auth.ErrWeakPassword),
		errors.Is(err, auth.ErrInvalidProfile):
		return http.StatusBadRequest, codeInvalidArgument
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, codeUnauthorized
	case errors.Is(err, auth.ErrWrongLogin):
		return http.StatusForbidden, codeWrongLogin
	case errors.Is(err, auth.ErrPermissionDenied):
		return http.StatusForbidden, codeForbidden
	case errors.Is(err, dog.ErrNotFound),
		errors.Is(err, ledger.ErrRequestNotFound),
		errors.Is(err, capture.ErrNotFound),
		errors.Is(err, auth.ErrUserNotFound):
		return http.StatusNotFound, codeNotFound
	case errors.Is(err, ledger.ErrDogUnavailable):
		return http.StatusConflict, codeDogUnavailable
	case errors.Is(err, ledger.ErrDuplicateRequest):
		return http.StatusConflict, codeDuplicateRequest
	case errors.Is(err, resolution.ErrAlreadyResolved),
		errors.Is(err, capture.ErrAlreadyResolved):
		return http.StatusConflict, codeAlreadyResolved
	case errors.Is(err, dog.ErrInvalidTransition):
		return http.StatusConflict, codeInvalidTransition
	case errors.Is(err, auth.ErrDuplicateUsername):
		return http.StatusConflict, codeConflict
	default:
		return http.StatusInternalServerError, codeInternalError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	if status == http.StatusInternalServerError || code == codeInvalidTransition {
		s.logger.Error(map[string]any{
			"op":     "http",
			"method": r.Method,
			"path":   r.URL.Path,
			"status": status,
			"error":  err,
		})
	}
	writeError(w, status, code, msg)
}
