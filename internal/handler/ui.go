package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/quillread/peersync-go/internal/errors"
	"github.com/quillread/peersync-go/internal/model"
	"github.com/quillread/peersync-go/internal/service"
)

// UIHandler serves the local control API the reading app's UI talks to.
// Everything here assumes a caller on the same machine; peer authentication
// lives on the peer API instead.
type UIHandler struct {
	pairing      *service.PairingService
	trust        *service.TrustService
	orchestrator *service.SyncOrchestrator
	account      *service.AccountSyncService
}

func NewUIHandler(
	pairing *service.PairingService,
	trust *service.TrustService,
	orchestrator *service.SyncOrchestrator,
	account *service.AccountSyncService,
) *UIHandler {
	return &UIHandler{
		pairing:      pairing,
		trust:        trust,
		orchestrator: orchestrator,
		account:      account,
	}
}

// IssuePIN starts a pairing window and returns the PIN to display on screen.
func (h *UIHandler) IssuePIN(w http.ResponseWriter, r *http.Request) {
	challenge, err := h.pairing.Begin(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, challenge)
}

type deviceView struct {
	model.TrustedDevice
	Trusted bool `json:"trusted"`
}

// ListDevices returns every paired device with its computed trust state.
func (h *UIHandler) ListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := h.trust.ListDevices(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	now := time.Now()
	views := make([]deviceView, 0, len(devices))
	for _, d := range devices {
		views = append(views, deviceView{
			TrustedDevice: d,
			Trusted:       d.TrustedAt(now),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": views})
}

// ReauthDevice extends the trust window of a known device.
func (h *UIHandler) ReauthDevice(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "id")

	renewed, err := h.trust.ReauthenticateDevice(r.Context(), deviceID)
	if err != nil {
		writeError(w, err)
		return
	}
	if !renewed {
		writeError(w, apperrors.NotFound("device"))
		return
	}

	device, err := h.trust.GetDevice(r.Context(), deviceID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, device)
}

// RevokeDevice deactivates a device's trust.
func (h *UIHandler) RevokeDevice(w http.ResponseWriter, r *http.Request) {
	if err := h.trust.RevokeDevice(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type syncRequest struct {
	DeviceID string                   `json:"deviceId"`
	Strategy model.ResolutionStrategy `json:"strategy"`
}

// StartSync kicks off a sync in the background and answers immediately.
// Progress streams over the sync-status event topic.
func (h *UIHandler) StartSync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.ValidationError("invalid request body"))
		return
	}
	if req.DeviceID == "" {
		writeError(w, apperrors.MissingRequired("deviceId"))
		return
	}
	if req.Strategy == "" {
		req.Strategy = model.ResolveLatestTimestamp
	}
	if !model.ValidStrategy(req.Strategy) {
		writeError(w, apperrors.InvalidInput("strategy", "unknown resolution strategy"))
		return
	}

	status := h.orchestrator.Status()
	if status.State != model.SyncStateIdle &&
		status.State != model.SyncStateSucceeded &&
		status.State != model.SyncStateFailed {
		writeError(w, apperrors.AlreadyExists("running sync"))
		return
	}

	// The request context dies with this response; the sync must not.
	go func() {
		if _, err := h.orchestrator.SyncWithDevice(context.Background(), req.DeviceID, req.Strategy); err != nil {
			log.Warn().Err(err).Str("deviceId", req.DeviceID).Msg("background sync failed")
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]any{
		"deviceId": req.DeviceID,
		"strategy": req.Strategy,
	})
}

// CancelSync aborts the running sync, if there is one.
func (h *UIHandler) CancelSync(w http.ResponseWriter, r *http.Request) {
	if err := h.orchestrator.Cancel(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.orchestrator.Status())
}

// SyncStatus reports the orchestrator's current state.
func (h *UIHandler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.orchestrator.Status())
}

// AccountStatus reports whether account sync is configured and signed in.
func (h *UIHandler) AccountStatus(w http.ResponseWriter, r *http.Request) {
	available := h.account.CheckSyncAvailability()
	authenticated := false
	if available {
		authenticated = h.account.IsUserAuthenticated(r.Context())
	}
	writeJSON(w, http.StatusOK, map[string]bool{
		"available":     available,
		"authenticated": authenticated,
	})
}

// MergeAccount pulls the account's synced books into the local library.
func (h *UIHandler) MergeAccount(w http.ResponseWriter, r *http.Request) {
	user, err := h.account.CurrentUser(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if user == nil {
		writeError(w, apperrors.Unauthorized("no account user is signed in"))
		return
	}

	result, err := h.account.FetchAndMergeSyncedBooks(r.Context(), user.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
