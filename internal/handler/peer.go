package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/quillread/peersync-go/internal/audit"
	apperrors "github.com/quillread/peersync-go/internal/errors"
	"github.com/quillread/peersync-go/internal/gateway"
	"github.com/quillread/peersync-go/internal/middleware"
	"github.com/quillread/peersync-go/internal/model"
	"github.com/quillread/peersync-go/internal/repository"
	"github.com/quillread/peersync-go/internal/service"
	"github.com/quillread/peersync-go/internal/util"
)

// PeerHandler serves the peer-to-peer API other daemons call during a sync.
type PeerHandler struct {
	deviceID    string
	deviceName  string
	version     string
	trust       *service.TrustService
	pairing     *service.PairingService
	snapshot    *service.SnapshotService
	sessionRepo repository.SyncSessionRepository
}

func NewPeerHandler(
	deviceID, deviceName, version string,
	trust *service.TrustService,
	pairing *service.PairingService,
	snapshot *service.SnapshotService,
	sessionRepo repository.SyncSessionRepository,
) *PeerHandler {
	return &PeerHandler{
		deviceID:    deviceID,
		deviceName:  deviceName,
		version:     version,
		trust:       trust,
		pairing:     pairing,
		snapshot:    snapshot,
		sessionRepo: sessionRepo,
	}
}

// Device answers discovery probes with this device's identity.
func (h *PeerHandler) Device(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.DeviceInfo{
		DeviceID:   h.deviceID,
		DeviceName: h.deviceName,
		Version:    h.version,
	})
}

// OpenSession opens a sync session for a trusted peer. Untrusted callers are
// told whether they need to pair or merely re-authenticate.
func (h *PeerHandler) OpenSession(w http.ResponseWriter, r *http.Request) {
	var req gateway.ConnectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.ValidationError("invalid request body"))
		return
	}

	deviceID := r.Header.Get("X-Device-ID")
	if deviceID == "" || deviceID != req.DeviceID {
		writeError(w, apperrors.InvalidInput("deviceId", "header and body must agree"))
		return
	}

	device, err := h.trust.GetDevice(r.Context(), deviceID)
	if err != nil {
		writeError(w, err)
		return
	}
	now := time.Now()
	switch {
	case device == nil:
		audit.LogFromRequest(r, audit.Event{Type: audit.EventAuthFailure, DeviceID: deviceID})
		writeError(w, apperrors.NotPaired(deviceID))
		return
	case !device.TrustedAt(now):
		audit.LogFromRequest(r, audit.Event{Type: audit.EventAuthFailure, DeviceID: deviceID})
		writeError(w, apperrors.TrustExpired(deviceID))
		return
	}

	token, err := util.GenerateToken()
	if err != nil {
		writeError(w, apperrors.Internal("failed to generate session token").WithCause(err))
		return
	}

	session, err := h.sessionRepo.Create(r.Context(), model.CreateSyncSessionParams{
		ID:        uuid.NewString(),
		DeviceID:  deviceID,
		TokenHash: util.HashToken(token),
		StartedAt: now,
	})
	if err != nil {
		writeError(w, apperrors.Database(err))
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:      audit.EventSessionOpened,
		DeviceID:  deviceID,
		SessionID: session.ID,
	})

	writeJSON(w, http.StatusCreated, gateway.ConnectResponse{
		SessionID: session.ID,
		Token:     token,
		StartedAt: session.StartedAt,
	})
}

// CloseSession marks the caller's session disconnected.
func (h *PeerHandler) CloseSession(w http.ResponseWriter, r *http.Request) {
	session := middleware.GetSession(r.Context())
	if session == nil || session.ID != chi.URLParam(r, "id") {
		writeError(w, apperrors.NotFound("session"))
		return
	}

	if err := h.sessionRepo.MarkDisconnected(r.Context(), session.ID); err != nil {
		writeError(w, apperrors.Database(err))
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:      audit.EventSessionClosed,
		DeviceID:  session.DeviceID,
		SessionID: session.ID,
	})

	w.WriteHeader(http.StatusNoContent)
}

// ExchangeManifest receives the peer's manifest and answers with ours.
func (h *PeerHandler) ExchangeManifest(w http.ResponseWriter, r *http.Request) {
	session := middleware.GetSession(r.Context())
	if session == nil || session.ID != chi.URLParam(r, "id") {
		writeError(w, apperrors.NotFound("session"))
		return
	}

	var req gateway.ManifestExchangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.ValidationError("invalid request body"))
		return
	}
	if req.Manifest == nil {
		writeError(w, apperrors.MissingRequired("manifest"))
		return
	}

	data, err := h.snapshot.Build(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	log.Debug().
		Str("sessionId", session.ID).
		Str("peerDevice", req.Manifest.DeviceID).
		Msg("manifest exchanged")

	writeJSON(w, http.StatusOK, gateway.ManifestExchangeResponse{
		Manifest: &model.Manifest{
			DeviceID:  data.Metadata.DeviceID,
			Timestamp: data.Metadata.Timestamp,
			Checksum:  data.Metadata.Checksum,
			Snapshot:  data,
		},
	})
}

// Transfer applies the peer's snapshot and resolved conflict winners, then
// completes the session.
func (h *PeerHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	session := middleware.GetSession(r.Context())
	if session == nil || session.ID != chi.URLParam(r, "id") {
		writeError(w, apperrors.NotFound("session"))
		return
	}

	var req gateway.TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.ValidationError("invalid request body"))
		return
	}
	if req.Snapshot == nil {
		writeError(w, apperrors.MissingRequired("snapshot"))
		return
	}

	stats, err := h.snapshot.Apply(r.Context(), req.Snapshot)
	if err != nil {
		if mErr := h.sessionRepo.MarkFailed(r.Context(), session.ID); mErr != nil {
			log.Error().Err(mErr).Str("sessionId", session.ID).Msg("failed to mark session failed")
		}
		writeError(w, err)
		return
	}

	resolved, err := h.snapshot.ApplyResolved(r.Context(), req.Resolved)
	if err != nil {
		if mErr := h.sessionRepo.MarkFailed(r.Context(), session.ID); mErr != nil {
			log.Error().Err(mErr).Str("sessionId", session.ID).Msg("failed to mark session failed")
		}
		writeError(w, err)
		return
	}

	if err := h.sessionRepo.MarkCompleted(r.Context(), session.ID, stats.Applied+resolved); err != nil {
		writeError(w, apperrors.Database(err))
		return
	}

	writeJSON(w, http.StatusOK, gateway.TransferResponse{
		Applied:  stats.Applied,
		Skipped:  stats.Skipped,
		Resolved: resolved,
	})
}

// CompletePairing consumes a PIN the user read off this device's screen.
func (h *PeerHandler) CompletePairing(w http.ResponseWriter, r *http.Request) {
	var req gateway.PairingCompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.ValidationError("invalid request body"))
		return
	}

	if !util.IsValidDeviceID(req.DeviceID) {
		writeError(w, apperrors.InvalidInput("deviceId", "must be 1-128 chars of [0-9A-Za-z._-]"))
		return
	}
	if !util.IsValidPINFormat(req.PIN) {
		writeError(w, apperrors.InvalidPIN())
		return
	}
	deviceName := req.DeviceName
	if deviceName == "" {
		deviceName = req.DeviceID
	}

	device, err := h.pairing.Complete(r.Context(), req.PIN, req.DeviceID, deviceName)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, device)
}
