package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/quillread/peersync-go/internal/audit"
	apperrors "github.com/quillread/peersync-go/internal/errors"
	"github.com/quillread/peersync-go/internal/events"
	"github.com/quillread/peersync-go/internal/model"
)

// SyncOrchestrator drives one sync attempt through its state machine. It
// holds no networking or persistence code of its own; everything flows
// through the Gateway, the detector and the resolver.
//
// One sync runs at a time. The orchestrator does not multiplex connections;
// a second SyncWithDevice while one is running fails immediately.
type SyncOrchestrator struct {
	gateway  Gateway
	detector *ConflictDetector
	resolver *ConflictResolver
	broker   *events.Broker

	mu      sync.Mutex
	state   model.SyncState
	device  string
	syncing bool
	cancel  context.CancelFunc
}

func NewSyncOrchestrator(gateway Gateway, detector *ConflictDetector, resolver *ConflictResolver, broker *events.Broker) *SyncOrchestrator {
	return &SyncOrchestrator{
		gateway:  gateway,
		detector: detector,
		resolver: resolver,
		broker:   broker,
		state:    model.SyncStateIdle,
	}
}

// Status reports the current position in the state machine.
func (o *SyncOrchestrator) Status() model.SyncStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	return model.SyncStatus{DeviceID: o.device, State: o.state}
}

// Cancel aborts the running sync, if any. The aborted sync runs its normal
// disconnect-then-fail path and reports SYNC_CANCELLED to its caller.
func (o *SyncOrchestrator) Cancel(ctx context.Context) error {
	o.mu.Lock()
	cancel := o.cancel
	o.mu.Unlock()

	if cancel == nil {
		return apperrors.NotFound("running sync")
	}
	cancel()
	return o.gateway.CancelSync(ctx)
}

// SyncWithDevice runs the full state machine against one peer. Steps execute
// strictly in order; every failure after a connection was opened disconnects
// exactly once before the failure is returned. Panics anywhere inside the
// run are converted to failure results, never propagated.
func (o *SyncOrchestrator) SyncWithDevice(ctx context.Context, deviceID string, strategy model.ResolutionStrategy) (*model.SyncResult, error) {
	o.mu.Lock()
	if o.syncing {
		o.mu.Unlock()
		return nil, apperrors.AlreadyExists("running sync")
	}
	ctx, cancel := context.WithCancel(ctx)
	o.syncing = true
	o.device = deviceID
	o.cancel = cancel
	o.mu.Unlock()

	defer func() {
		cancel()
		o.mu.Lock()
		o.syncing = false
		o.cancel = nil
		o.mu.Unlock()
	}()

	audit.Log(ctx, audit.Event{Type: audit.EventSyncStarted, DeviceID: deviceID})

	result, err := o.run(ctx, deviceID, strategy)
	if err != nil {
		o.setState(ctx, deviceID, model.SyncStateFailed, err)
		audit.Log(ctx, audit.Event{
			Type:     audit.EventSyncFailed,
			DeviceID: deviceID,
			Details:  map[string]interface{}{"error": err.Error()},
		})
		return nil, err
	}

	o.setState(ctx, deviceID, model.SyncStateSucceeded, nil)
	audit.Log(ctx, audit.Event{
		Type:     audit.EventSyncCompleted,
		DeviceID: deviceID,
		Details:  map[string]interface{}{"items_transferred": result.ItemsTransferred},
	})
	return result, nil
}

func (o *SyncOrchestrator) run(ctx context.Context, deviceID string, strategy model.ResolutionStrategy) (result *model.SyncResult, err error) {
	var conn *model.Connection
	disconnected := false

	// disconnect runs at most once per sync, on the success path and on
	// every failure after Connecting. It survives a cancelled context: a
	// cancelled sync must still close its connection.
	disconnect := func() error {
		if conn == nil || disconnected {
			return nil
		}
		disconnected = true
		o.setState(ctx, deviceID, model.SyncStateDisconnecting, nil)
		return o.gateway.DisconnectFromDevice(context.WithoutCancel(ctx), conn)
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("deviceId", deviceID).Msg("panic during sync")
			if dErr := disconnect(); dErr != nil {
				log.Warn().Err(dErr).Msg("disconnect after panic failed")
			}
			result = nil
			err = apperrors.Internal(fmt.Sprintf("sync panicked: %v", r))
		}
	}()

	// 1. VerifyingDevice — nothing to roll back on failure.
	o.setState(ctx, deviceID, model.SyncStateVerifyingDevice, nil)
	device, err := o.gateway.GetDeviceInfo(ctx, deviceID)
	if err != nil {
		return nil, o.stepFailure(ctx, "device verification", err)
	}

	// 2. Connecting — still no connection on failure.
	o.setState(ctx, deviceID, model.SyncStateConnecting, nil)
	conn, err = o.gateway.ConnectToDevice(ctx, device)
	if err != nil {
		return nil, o.stepFailure(ctx, "connect", err)
	}

	// 3. ExchangingManifests
	o.setState(ctx, deviceID, model.SyncStateExchangingManifests, nil)
	local, remote, err := o.gateway.ExchangeManifests(ctx, conn)
	if err != nil {
		if dErr := disconnect(); dErr != nil {
			log.Warn().Err(dErr).Msg("disconnect after manifest failure failed")
		}
		return nil, o.stepFailure(ctx, "manifest exchange", err)
	}

	// 4. DetectingConflicts — partial local state never aborts the sync.
	o.setState(ctx, deviceID, model.SyncStateDetectingConflicts, nil)
	var warnings []string
	localData := o.gatherLocal(ctx, &warnings)
	localData.Metadata = model.SyncMetadata{
		DeviceID:  local.DeviceID,
		Timestamp: local.Timestamp,
		Version:   model.SyncDataVersion,
	}
	local.Snapshot = localData

	remoteData := remote.Snapshot
	if remoteData == nil {
		warnings = append(warnings, "peer sent no snapshot; treating remote as empty")
		remoteData = &model.SyncData{Metadata: model.SyncMetadata{DeviceID: remote.DeviceID, Timestamp: remote.Timestamp}}
	}

	conflicts := o.detector.Detect(localData, remoteData)

	// 5. ResolvingConflicts — entered only when there is something to resolve.
	if len(conflicts) > 0 {
		o.setState(ctx, deviceID, model.SyncStateResolvingConflicts, nil)
		resolved, rErr := o.resolver.Resolve(conflicts, strategy)
		if rErr != nil {
			if dErr := disconnect(); dErr != nil {
				log.Warn().Err(dErr).Msg("disconnect after resolution failure failed")
			}
			return nil, o.stepFailure(ctx, "conflict resolution", rErr)
		}
		local.Resolved = groupResolved(resolved)
	}

	// 6. Transferring
	o.setState(ctx, deviceID, model.SyncStateTransferring, nil)
	result, err = o.gateway.PerformSync(ctx, conn, local, remote)
	if err != nil {
		if dErr := disconnect(); dErr != nil {
			log.Warn().Err(dErr).Msg("disconnect after transfer failure failed")
		}
		return nil, o.stepFailure(ctx, "transfer", err)
	}

	// 7. Disconnecting — the success path always closes the connection; a
	// failed close degrades to a warning since the data already landed.
	if dErr := disconnect(); dErr != nil {
		warnings = append(warnings, fmt.Sprintf("disconnect failed: %v", dErr))
	}

	result.ConflictsResolved = len(conflicts)
	result.Warnings = warnings
	return result, nil
}

// stepFailure wraps a step error, preferring SYNC_CANCELLED when the context
// was cancelled: a gateway error caused by cancellation is reported as the
// cancellation, not as a network failure.
func (o *SyncOrchestrator) stepFailure(ctx context.Context, step string, err error) error {
	if ctx.Err() != nil {
		return apperrors.SyncCancelled().WithCause(err)
	}
	if apperrors.IsAppError(err) {
		return err
	}
	return apperrors.SyncFailed(step, err)
}

// gatherLocal assembles this device's SyncData via the gateway's local
// accessors. Each failing sub-fetch falls back to an empty list with a
// warning; a half-readable library still syncs what it can.
func (o *SyncOrchestrator) gatherLocal(ctx context.Context, warnings *[]string) *model.SyncData {
	data := &model.SyncData{
		Books:           []model.BookSyncData{},
		ReadingProgress: []model.ReadingProgressData{},
		Bookmarks:       []model.BookmarkData{},
	}

	if books, err := o.gateway.GetBooksToSync(ctx); err != nil {
		*warnings = append(*warnings, fmt.Sprintf("failed to read local books: %v", err))
	} else {
		data.Books = books
	}
	if progress, err := o.gateway.GetReadingProgress(ctx); err != nil {
		*warnings = append(*warnings, fmt.Sprintf("failed to read local reading progress: %v", err))
	} else {
		data.ReadingProgress = progress
	}
	if bookmarks, err := o.gateway.GetBookmarks(ctx); err != nil {
		*warnings = append(*warnings, fmt.Sprintf("failed to read local bookmarks: %v", err))
	} else {
		data.Bookmarks = bookmarks
	}
	return data
}

// groupResolved sorts resolution winners back into snapshot shape for the
// transfer step.
func groupResolved(resolved []any) *model.SyncData {
	if len(resolved) == 0 {
		return nil
	}

	grouped := &model.SyncData{}
	for _, winner := range resolved {
		switch v := winner.(type) {
		case model.ReadingProgressData:
			grouped.ReadingProgress = append(grouped.ReadingProgress, v)
		case model.BookmarkData:
			grouped.Bookmarks = append(grouped.Bookmarks, v)
		case model.BookSyncData:
			grouped.Books = append(grouped.Books, v)
		default:
			log.Warn().Interface("winner", winner).Msg("resolved value of unknown type dropped")
		}
	}
	return grouped
}

func (o *SyncOrchestrator) setState(ctx context.Context, deviceID string, state model.SyncState, cause error) {
	o.mu.Lock()
	o.state = state
	o.device = deviceID
	o.mu.Unlock()

	status := model.SyncStatus{DeviceID: deviceID, State: state}
	if cause != nil {
		status.Error = cause.Error()
	}

	log.Debug().
		Str("deviceId", deviceID).
		Str("state", string(state)).
		Msg("sync state changed")

	if o.broker == nil {
		return
	}
	if err := o.broker.Publish(context.WithoutCancel(ctx), events.TopicSyncStatus, "status", status); err != nil {
		log.Warn().Err(err).Msg("failed to publish sync status")
	}
}
