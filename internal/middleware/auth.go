package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/quillread/peersync-go/internal/audit"
	"github.com/quillread/peersync-go/internal/model"
	"github.com/quillread/peersync-go/internal/repository"
	"github.com/quillread/peersync-go/internal/util"
)

type contextKey string

const (
	SessionContextKey  contextKey = "syncSession"
	DeviceIDContextKey contextKey = "deviceId"
)

func GetSession(ctx context.Context) *model.SyncSession {
	if session, ok := ctx.Value(SessionContextKey).(*model.SyncSession); ok {
		return session
	}
	return nil
}

func GetDeviceID(ctx context.Context) string {
	if deviceID, ok := ctx.Value(DeviceIDContextKey).(string); ok {
		return deviceID
	}
	return ""
}

// SessionAuthMiddleware guards session-scoped peer routes. The caller must
// present the bearer token issued at connect time, and its X-Device-ID must
// be the device the session was opened for.
type SessionAuthMiddleware struct {
	sessionRepo repository.SyncSessionRepository
}

func NewSessionAuthMiddleware(sessionRepo repository.SyncSessionRepository) *SessionAuthMiddleware {
	return &SessionAuthMiddleware{sessionRepo: sessionRepo}
}

func (m *SessionAuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error": "Missing session token",
			})
			return
		}

		session, err := m.sessionRepo.FindActiveByTokenHash(r.Context(), util.HashToken(token))
		if err != nil {
			log.Error().Err(err).Msg("session auth: database error")
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "Authentication failed",
			})
			return
		}

		if session == nil {
			log.Warn().Msg("session auth: invalid token attempt")
			audit.LogFromRequest(r, audit.Event{Type: audit.EventAuthFailure})
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error": "Invalid or expired session token",
			})
			return
		}

		if deviceID := r.Header.Get("X-Device-ID"); deviceID != session.DeviceID {
			log.Warn().
				Str("sessionDevice", session.DeviceID).
				Str("claimedDevice", deviceID).
				Msg("session auth: device mismatch")
			audit.LogFromRequest(r, audit.Event{
				Type:      audit.EventAuthFailure,
				DeviceID:  deviceID,
				SessionID: session.ID,
			})
			writeJSON(w, http.StatusForbidden, map[string]string{
				"error": "Session belongs to a different device",
			})
			return
		}

		ctx := context.WithValue(r.Context(), SessionContextKey, session)
		ctx = context.WithValue(ctx, DeviceIDContextKey, session.DeviceID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}
