package server

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/vango-dev/asyncstate/internal/errors"
)

// errorResponse is the JSON body of a failed request.
type errorResponse struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// statusFor maps an error code to an HTTP status.
func statusFor(code string) int {
	switch code {
	case errors.CodeBadRequest, errors.CodeInvalidIdentifier:
		return http.StatusBadRequest
	case errors.CodeTodoNotFound:
		return http.StatusNotFound
	case errors.CodeStoreUnavailable, errors.CodeRequestAborted:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := errors.CodeBadRequest
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		code = errors.CodeRequestAborted
	}
	e := errors.FromError(err, code)
	detail := e.Detail
	if detail == "" && e.Wrapped != nil {
		detail = e.Wrapped.Error()
	}
	writeJSON(w, statusFor(e.Code), errorResponse{
		Code:    e.Code,
		Message: e.Message,
		Detail:  detail,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
