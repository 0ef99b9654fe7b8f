package service

import (
	"context"

	"github.com/quillread/peersync-go/internal/events"
	"github.com/quillread/peersync-go/internal/model"
)

// Gateway is the orchestrator's view of the network. The orchestrator never
// touches transport concerns directly; it drives this contract and converts
// failures into terminal sync states.
type Gateway interface {
	// GetDeviceInfo resolves a device id to a reachable peer. Returns a
	// NOT_FOUND error when no known peer carries the id.
	GetDeviceInfo(ctx context.Context, deviceID string) (*model.DeviceInfo, error)

	// ConnectToDevice opens a logical sync session with the peer.
	ConnectToDevice(ctx context.Context, device *model.DeviceInfo) (*model.Connection, error)

	// DisconnectFromDevice closes the session. Safe to call on a session the
	// peer already considers closed.
	DisconnectFromDevice(ctx context.Context, conn *model.Connection) error

	// ExchangeManifests sends this device's manifest and returns both sides'.
	ExchangeManifests(ctx context.Context, conn *model.Connection) (local, remote *model.Manifest, err error)

	// PerformSync runs the bulk transfer. Conflict winners travel in
	// local.Resolved and are applied unconditionally on both sides.
	PerformSync(ctx context.Context, conn *model.Connection, local, remote *model.Manifest) (*model.SyncResult, error)

	ObserveDiscoveredDevices() *events.Client
	ObserveSyncStatus() *events.Client

	StartDiscovery(ctx context.Context) error
	StopDiscovery(ctx context.Context) error
	CancelSync(ctx context.Context) error

	// Local data accessors, backed by the storage layer.
	GetBooksToSync(ctx context.Context) ([]model.BookSyncData, error)
	GetReadingProgress(ctx context.Context) ([]model.ReadingProgressData, error)
	GetBookmarks(ctx context.Context) ([]model.BookmarkData, error)
}
