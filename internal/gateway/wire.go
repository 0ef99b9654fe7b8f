package gateway

import (
	"time"

	"github.com/quillread/peersync-go/internal/model"
)

// Wire DTOs for the peer-to-peer HTTP API. The handler package decodes these
// on the serving side; HTTPGateway encodes them on the calling side.

// ConnectRequest opens a sync session on a peer.
type ConnectRequest struct {
	DeviceID   string `json:"deviceId"`
	DeviceName string `json:"deviceName"`
}

// ConnectResponse returns the session the peer opened for us.
type ConnectResponse struct {
	SessionID string    `json:"sessionId"`
	Token     string    `json:"token"`
	StartedAt time.Time `json:"startedAt"`
}

// ManifestExchangeRequest carries the caller's manifest; the response carries
// the peer's.
type ManifestExchangeRequest struct {
	Manifest *model.Manifest `json:"manifest"`
}

type ManifestExchangeResponse struct {
	Manifest *model.Manifest `json:"manifest"`
}

// TransferRequest is the bulk transfer payload. Snapshot records pass the
// receiver's last-write-wins gate; Resolved records bypass it.
type TransferRequest struct {
	Snapshot *model.SyncData `json:"snapshot"`
	Resolved *model.SyncData `json:"resolved,omitempty"`
}

// TransferResponse reports what the receiver did with the payload.
type TransferResponse struct {
	Applied  int `json:"applied"`
	Skipped  int `json:"skipped"`
	Resolved int `json:"resolved"`
}

// PairingCompleteRequest submits a PIN read off the target device's screen.
type PairingCompleteRequest struct {
	PIN        string `json:"pin"`
	DeviceID   string `json:"deviceId"`
	DeviceName string `json:"deviceName"`
}
