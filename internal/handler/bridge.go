// Package handler contains the HTTP layer: it parses requests, calls the
// bridge and writes responses. No business rules live here.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/adsabs/harbour/internal/apperror"
	"github.com/adsabs/harbour/internal/middleware"
	"github.com/adsabs/harbour/internal/service"
)

// BridgeHandler serves all account-linking and library endpoints.
type BridgeHandler struct {
	bridge *service.Bridge
	logger *slog.Logger
}

// NewBridgeHandler creates a BridgeHandler.
func NewBridgeHandler(bridge *service.Bridge, logger *slog.Logger) *BridgeHandler {
	return &BridgeHandler{bridge: bridge, logger: logger}
}

type classicCredentials struct {
	Email    string `json:"classic_email"`
	Password string `json:"classic_password"`
	Mirror   string `json:"classic_mirror"`
}

type twoPointOhCredentials struct {
	Email    string `json:"twopointoh_email"`
	Password string `json:"twopointoh_password"`
}

// HandleAuthClassic links a classic account.
//
// HTTP: POST /auth/classic
// Body: {"classic_email", "classic_password", "classic_mirror"}
func (h *BridgeHandler) HandleAuthClassic(w http.ResponseWriter, r *http.Request) {
	uid, ok := middleware.UIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.MalformedRequest(middleware.UserIDHeader))
		return
	}

	var creds classicCredentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		h.logger.Warn("invalid classic auth body", slog.String("error", err.Error()))
		writeError(w, apperror.MalformedRequest("body"))
		return
	}

	link, err := h.bridge.LinkClassic(r.Context(), uid, creds.Email, creds.Password, creds.Mirror)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, link)
}

// HandleAuthTwoPointOh links an ADS 2.0 account.
//
// HTTP: POST /auth/twopointoh
// Body: {"twopointoh_email", "twopointoh_password"}
func (h *BridgeHandler) HandleAuthTwoPointOh(w http.ResponseWriter, r *http.Request) {
	uid, ok := middleware.UIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.MalformedRequest(middleware.UserIDHeader))
		return
	}

	var creds twoPointOhCredentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		h.logger.Warn("invalid twopointoh auth body", slog.String("error", err.Error()))
		writeError(w, apperror.MalformedRequest("body"))
		return
	}

	link, err := h.bridge.LinkTwoPointOh(r.Context(), uid, creds.Email, creds.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, link)
}

// HandleClassicLibraries returns the reshaped classic libraries for a uid.
//
// HTTP: GET /libraries/classic/{uid}
func (h *BridgeHandler) HandleClassicLibraries(w http.ResponseWriter, r *http.Request) {
	uid, ok := pathUID(w, r)
	if !ok {
		return
	}

	libraries, err := h.bridge.ClassicLibraries(r.Context(), uid)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, libraries)
}

// HandleClassicFeed forwards the myADS feed for a uid.
//
// HTTP: GET /myads/classic/{uid}
func (h *BridgeHandler) HandleClassicFeed(w http.ResponseWriter, r *http.Request) {
	uid, ok := pathUID(w, r)
	if !ok {
		return
	}

	feed, err := h.bridge.ClassicFeed(r.Context(), uid)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, feed)
}

// HandleTwoPointOhLibraries returns the raw ADS 2.0 bundle for a uid.
//
// HTTP: GET /libraries/twopointoh/{uid}
func (h *BridgeHandler) HandleTwoPointOhLibraries(w http.ResponseWriter, r *http.Request) {
	uid, ok := pathUID(w, r)
	if !ok {
		return
	}

	payload, err := h.bridge.TwoPointOhLibraries(r.Context(), uid)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

// HandleExport returns a presigned download URL for the caller's export
// archive.
//
// HTTP: GET /export/twopointoh/{export}
func (h *BridgeHandler) HandleExport(w http.ResponseWriter, r *http.Request) {
	uid, ok := middleware.UIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.MalformedRequest(middleware.UserIDHeader))
		return
	}

	url, err := h.bridge.ExportURL(r.Context(), uid, r.PathValue("export"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

// HandleUser returns the caller's stored link state.
//
// HTTP: GET /user
func (h *BridgeHandler) HandleUser(w http.ResponseWriter, r *http.Request) {
	uid, ok := middleware.UIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.MalformedRequest(middleware.UserIDHeader))
		return
	}

	profile, err := h.bridge.Profile(r.Context(), uid)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// HandleMirrors returns the allow-listed classic mirrors.
//
// HTTP: GET /mirrors
func (h *BridgeHandler) HandleMirrors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.bridge.Mirrors())
}

// pathUID parses the {uid} path parameter, writing the error response itself
// when the value is unusable.
func pathUID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	uid, err := strconv.ParseInt(r.PathValue("uid"), 10, 64)
	if err != nil {
		writeError(w, apperror.MalformedRequest("uid"))
		return 0, false
	}
	return uid, true
}
