// Package middleware contains the HTTP middleware: request logging and the
// trusted identity header.
package middleware

import (
	"context"
	"net/http"
	"strconv"
)

// UserIDHeader carries the trusted numeric identity assigned by the upstream
// API gateway. Every request arrives already authenticated; this service only
// consumes the id.
const UserIDHeader = "X-Adsws-Uid"

// contextKey is unexported so only this package can place or read the uid in a
// request context.
type contextKey string

const uidKey contextKey = "absoluteUID"

// Identity extracts the numeric uid from the identity header and stores it in
// the request context. A missing or non-numeric header is a caller error and
// fails fast with 400 before any core logic runs.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(UserIDHeader)
		if raw == "" {
			http.Error(w, `{"error":"malformed_request","message":"missing identity header"}`, http.StatusBadRequest)
			return
		}
		uid, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			http.Error(w, `{"error":"malformed_request","message":"identity header is not numeric"}`, http.StatusBadRequest)
			return
		}

		ctx := context.WithValue(r.Context(), uidKey, uid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UIDFromContext retrieves the uid placed by Identity. The second return is
// false only on routes that skipped the middleware.
func UIDFromContext(ctx context.Context) (int64, bool) {
	uid, ok := ctx.Value(uidKey).(int64)
	return uid, ok
}
