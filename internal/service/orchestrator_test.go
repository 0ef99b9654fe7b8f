package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/quillread/peersync-go/internal/errors"
	"github.com/quillread/peersync-go/internal/events"
	"github.com/quillread/peersync-go/internal/model"
)

type fakeGateway struct {
	deviceErr     error
	connectErr    error
	manifestErr   error
	syncErr       error
	disconnectErr error

	remoteSnapshot *model.SyncData
	books          []model.BookSyncData
	booksErr       error
	progress       []model.ReadingProgressData
	progressErr    error
	bookmarks      []model.BookmarkData
	bookmarksErr   error

	panicInTransfer bool
	blockTransfer   chan struct{}

	disconnects int
	lastLocal   *model.Manifest
	cancelled   bool
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		remoteSnapshot: &model.SyncData{
			Metadata: model.SyncMetadata{DeviceID: "dev-remote", Timestamp: detectorBase, Version: model.SyncDataVersion},
		},
	}
}

func (g *fakeGateway) GetDeviceInfo(_ context.Context, deviceID string) (*model.DeviceInfo, error) {
	if g.deviceErr != nil {
		return nil, g.deviceErr
	}
	return &model.DeviceInfo{DeviceID: deviceID, DeviceName: "Remote", Address: "http://peer"}, nil
}

func (g *fakeGateway) ConnectToDevice(_ context.Context, device *model.DeviceInfo) (*model.Connection, error) {
	if g.connectErr != nil {
		return nil, g.connectErr
	}
	return &model.Connection{ID: "s1", DeviceID: device.DeviceID, Address: device.Address, EstablishedAt: detectorBase}, nil
}

func (g *fakeGateway) DisconnectFromDevice(_ context.Context, _ *model.Connection) error {
	g.disconnects++
	return g.disconnectErr
}

func (g *fakeGateway) ExchangeManifests(_ context.Context, conn *model.Connection) (*model.Manifest, *model.Manifest, error) {
	if g.manifestErr != nil {
		return nil, nil, g.manifestErr
	}
	local := &model.Manifest{DeviceID: "dev-local", Timestamp: detectorBase}
	remote := &model.Manifest{DeviceID: conn.DeviceID, Timestamp: detectorBase, Snapshot: g.remoteSnapshot}
	return local, remote, nil
}

func (g *fakeGateway) PerformSync(ctx context.Context, conn *model.Connection, local, remote *model.Manifest) (*model.SyncResult, error) {
	if g.panicInTransfer {
		panic("transport exploded")
	}
	if g.blockTransfer != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-g.blockTransfer:
		}
	}
	if g.syncErr != nil {
		return nil, g.syncErr
	}
	g.lastLocal = local
	return &model.SyncResult{DeviceID: conn.DeviceID, ItemsTransferred: 4, CompletedAt: detectorBase}, nil
}

func (g *fakeGateway) ObserveDiscoveredDevices() *events.Client { return nil }
func (g *fakeGateway) ObserveSyncStatus() *events.Client        { return nil }
func (g *fakeGateway) StartDiscovery(_ context.Context) error   { return nil }
func (g *fakeGateway) StopDiscovery(_ context.Context) error    { return nil }

func (g *fakeGateway) CancelSync(_ context.Context) error {
	g.cancelled = true
	return nil
}

func (g *fakeGateway) GetBooksToSync(_ context.Context) ([]model.BookSyncData, error) {
	return g.books, g.booksErr
}

func (g *fakeGateway) GetReadingProgress(_ context.Context) ([]model.ReadingProgressData, error) {
	return g.progress, g.progressErr
}

func (g *fakeGateway) GetBookmarks(_ context.Context) ([]model.BookmarkData, error) {
	return g.bookmarks, g.bookmarksErr
}

func newOrchestrator(gw *fakeGateway) *SyncOrchestrator {
	return NewSyncOrchestrator(gw, NewConflictDetector(), NewConflictResolver(), nil)
}

func TestSyncOrchestrator_Success(t *testing.T) {
	gw := newFakeGateway()
	o := newOrchestrator(gw)

	result, err := o.SyncWithDevice(context.Background(), "dev-remote", model.ResolveLatestTimestamp)
	require.NoError(t, err)

	assert.Equal(t, "dev-remote", result.DeviceID)
	assert.Equal(t, 0, result.ConflictsResolved)
	assert.Empty(t, result.Warnings)
	assert.Equal(t, 1, gw.disconnects, "success path disconnects exactly once")
	assert.Equal(t, model.SyncStateSucceeded, o.Status().State)
}

func TestSyncOrchestrator_NoDisconnectBeforeConnection(t *testing.T) {
	t.Run("device verification failure", func(t *testing.T) {
		gw := newFakeGateway()
		gw.deviceErr = apperrors.NotFound("device")
		o := newOrchestrator(gw)

		_, err := o.SyncWithDevice(context.Background(), "dev-remote", model.ResolveLatestTimestamp)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotFound))
		assert.Equal(t, 0, gw.disconnects)
		assert.Equal(t, model.SyncStateFailed, o.Status().State)
	})

	t.Run("connect failure", func(t *testing.T) {
		gw := newFakeGateway()
		gw.connectErr = apperrors.ConnectionFailed("dev-remote", errors.New("refused"))
		o := newOrchestrator(gw)

		_, err := o.SyncWithDevice(context.Background(), "dev-remote", model.ResolveLatestTimestamp)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeConnectionFailed))
		assert.Equal(t, 0, gw.disconnects)
	})
}

func TestSyncOrchestrator_DisconnectOnLateFailures(t *testing.T) {
	t.Run("manifest exchange failure", func(t *testing.T) {
		gw := newFakeGateway()
		gw.manifestErr = errors.New("connection reset")
		o := newOrchestrator(gw)

		_, err := o.SyncWithDevice(context.Background(), "dev-remote", model.ResolveLatestTimestamp)
		require.Error(t, err)
		assert.Equal(t, 1, gw.disconnects)
	})

	t.Run("transfer failure", func(t *testing.T) {
		gw := newFakeGateway()
		gw.syncErr = errors.New("broken pipe")
		o := newOrchestrator(gw)

		_, err := o.SyncWithDevice(context.Background(), "dev-remote", model.ResolveLatestTimestamp)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeSyncFailed))
		assert.Equal(t, 1, gw.disconnects)
	})

	t.Run("panic in transfer is caught and disconnects", func(t *testing.T) {
		gw := newFakeGateway()
		gw.panicInTransfer = true
		o := newOrchestrator(gw)

		_, err := o.SyncWithDevice(context.Background(), "dev-remote", model.ResolveLatestTimestamp)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInternal))
		assert.Equal(t, 1, gw.disconnects)
	})
}

func TestSyncOrchestrator_ManualStrategy(t *testing.T) {
	gw := newFakeGateway()
	gw.progress = []model.ReadingProgressData{progressData("b1", 2, 10, 0.2, detectorBase)}
	gw.remoteSnapshot.ReadingProgress = []model.ReadingProgressData{
		progressData("b1", 7, 10, 0.2, detectorBase.Add(time.Hour)),
	}
	o := newOrchestrator(gw)

	_, err := o.SyncWithDevice(context.Background(), "dev-remote", model.ResolveManual)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeManualResolutionRequired))
	assert.Equal(t, 1, gw.disconnects, "resolution failure must still disconnect")
}

func TestSyncOrchestrator_ResolvedWinnersTravel(t *testing.T) {
	gw := newFakeGateway()
	gw.progress = []model.ReadingProgressData{progressData("b1", 2, 10, 0.2, detectorBase)}
	gw.remoteSnapshot.ReadingProgress = []model.ReadingProgressData{
		progressData("b1", 7, 10, 0.2, detectorBase.Add(time.Hour)),
	}
	o := newOrchestrator(gw)

	result, err := o.SyncWithDevice(context.Background(), "dev-remote", model.ResolveLatestTimestamp)
	require.NoError(t, err)
	assert.Equal(t, 1, result.ConflictsResolved)

	require.NotNil(t, gw.lastLocal)
	require.NotNil(t, gw.lastLocal.Resolved)
	require.Len(t, gw.lastLocal.Resolved.ReadingProgress, 1)
	assert.Equal(t, 7, gw.lastLocal.Resolved.ReadingProgress[0].ChapterIndex, "remote side won on timestamp")
	require.NotNil(t, gw.lastLocal.Snapshot)
	assert.Len(t, gw.lastLocal.Snapshot.ReadingProgress, 1)
}

func TestSyncOrchestrator_PartialLocalStateWarns(t *testing.T) {
	gw := newFakeGateway()
	gw.booksErr = errors.New("disk error")
	o := newOrchestrator(gw)

	result, err := o.SyncWithDevice(context.Background(), "dev-remote", model.ResolveLatestTimestamp)
	require.NoError(t, err, "a partial local read must not abort the sync")
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "local books")
}

func TestSyncOrchestrator_Cancel(t *testing.T) {
	gw := newFakeGateway()
	gw.blockTransfer = make(chan struct{})
	o := newOrchestrator(gw)

	type outcome struct {
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		_, err := o.SyncWithDevice(context.Background(), "dev-remote", model.ResolveLatestTimestamp)
		done <- outcome{err: err}
	}()

	require.Eventually(t, func() bool {
		return o.Status().State == model.SyncStateTransferring
	}, time.Second, time.Millisecond)

	require.NoError(t, o.Cancel(context.Background()))

	select {
	case out := <-done:
		assert.True(t, apperrors.HasCode(out.err, apperrors.ErrCodeSyncCancelled))
	case <-time.After(time.Second):
		t.Fatal("sync did not finish after cancel")
	}

	assert.True(t, gw.cancelled)
	assert.Equal(t, 1, gw.disconnects, "a cancelled sync must not leak its connection")
}

func TestSyncOrchestrator_SingleFlight(t *testing.T) {
	gw := newFakeGateway()
	o := newOrchestrator(gw)

	o.mu.Lock()
	o.syncing = true
	o.mu.Unlock()

	_, err := o.SyncWithDevice(context.Background(), "dev-remote", model.ResolveLatestTimestamp)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeAlreadyExists))

	t.Run("cancel with nothing running", func(t *testing.T) {
		o.mu.Lock()
		o.syncing = false
		o.mu.Unlock()

		err := o.Cancel(context.Background())
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotFound))
	})
}

func TestSyncOrchestrator_StatusStream(t *testing.T) {
	broker := events.NewBroker(nil)
	defer broker.Close()

	client := broker.Subscribe(events.TopicSyncStatus)
	defer broker.Unsubscribe(client)

	gw := newFakeGateway()
	o := NewSyncOrchestrator(gw, NewConflictDetector(), NewConflictResolver(), broker)

	_, err := o.SyncWithDevice(context.Background(), "dev-remote", model.ResolveLatestTimestamp)
	require.NoError(t, err)

	want := []model.SyncState{
		model.SyncStateVerifyingDevice,
		model.SyncStateConnecting,
		model.SyncStateExchangingManifests,
		model.SyncStateDetectingConflicts,
		model.SyncStateTransferring,
		model.SyncStateDisconnecting,
		model.SyncStateSucceeded,
	}
	for _, expected := range want {
		select {
		case event := <-client.Events:
			assert.Equal(t, "status", event.Type)
			assert.Contains(t, string(event.Data), string(expected))
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for state %s", expected)
		}
	}
}
