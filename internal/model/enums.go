package model

// SyncState is the orchestrator's position in the sync state machine.
type SyncState string

const (
	SyncStateIdle                SyncState = "idle"
	SyncStateVerifyingDevice     SyncState = "verifying_device"
	SyncStateConnecting          SyncState = "connecting"
	SyncStateExchangingManifests SyncState = "exchanging_manifests"
	SyncStateDetectingConflicts  SyncState = "detecting_conflicts"
	SyncStateResolvingConflicts  SyncState = "resolving_conflicts"
	SyncStateTransferring        SyncState = "transferring"
	SyncStateDisconnecting       SyncState = "disconnecting"
	SyncStateSucceeded           SyncState = "succeeded"
	SyncStateFailed              SyncState = "failed"
)

// SyncStatus is what observers of the status stream receive.
type SyncStatus struct {
	DeviceID string    `json:"deviceId"`
	State    SyncState `json:"state"`
	Error    string    `json:"error,omitempty"`
}

type SyncSessionStatus string

const (
	SessionStatusActive       SyncSessionStatus = "active"
	SessionStatusCompleted    SyncSessionStatus = "completed"
	SessionStatusFailed       SyncSessionStatus = "failed"
	SessionStatusDisconnected SyncSessionStatus = "disconnected"
)
