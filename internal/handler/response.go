package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/adsabs/harbour/internal/apperror"
)

// ErrorResponse is the standard error shape of every endpoint: a stable
// machine-readable kind plus a human-readable message, decoupled from whatever
// the legacy system said.
type ErrorResponse struct {
	Error      string            `json:"error"`
	Message    string            `json:"message"`
	ADSClassic *UpstreamResponse `json:"ads_classic,omitempty"`
}

// UpstreamResponse forwards the remote status and body for diagnostics when
// the legacy system fails in an unexpected way.
type UpstreamResponse struct {
	Message    string `json:"message"`
	StatusCode int    `json:"status_code"`
}

// writeJSON sends a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a bridge failure to its HTTP status class.
//
// Credentials and account problems map to 404 (matching the legacy contract
// consumers already handle), disallowed or malformed input to 400, an upstream
// timeout to 504, and everything else to 500. Unknown errors never leak their
// internals to the client.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, apperror.ErrBadRequest):
			status = http.StatusBadRequest
		case errors.Is(err, apperror.ErrAuthFailed):
			status = http.StatusNotFound
		case errors.Is(err, apperror.ErrUpstreamTimeout):
			status = http.StatusGatewayTimeout
		case errors.Is(err, apperror.ErrUpstream):
			status = http.StatusInternalServerError
		}

		resp := ErrorResponse{
			Error:   appErr.Kind,
			Message: appErr.Message,
		}
		if appErr.Kind == apperror.KindUpstreamUnknown {
			resp.ADSClassic = &UpstreamResponse{
				Message:    appErr.UpstreamBody,
				StatusCode: appErr.UpstreamStatus,
			}
		}
		writeJSON(w, status, resp)
		return
	}

	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}
