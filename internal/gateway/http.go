package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/quillread/peersync-go/internal/config"
	apperrors "github.com/quillread/peersync-go/internal/errors"
	"github.com/quillread/peersync-go/internal/events"
	"github.com/quillread/peersync-go/internal/model"
	"github.com/quillread/peersync-go/internal/service"
)

// registryTTL is how long a probed peer stays listed without a fresh answer.
const registryTTL = 3 * config.DiscoveryPollInterval

type registryEntry struct {
	info     model.DeviceInfo
	lastSeen time.Time
}

// HTTPGateway implements service.Gateway against peer daemons' HTTP APIs.
// Discovery is plain polling of the configured peer addresses; there is no
// broadcast protocol, so the peer list comes from configuration.
type HTTPGateway struct {
	client     *http.Client
	deviceID   string
	deviceName string
	peers      []string
	snapshot   *service.SnapshotService
	trust      *service.TrustService
	broker     *events.Broker

	mu              sync.Mutex
	registry        map[string]registryEntry
	discoveryCancel context.CancelFunc
	syncCancel      context.CancelFunc
}

func NewHTTPGateway(cfg *config.Config, snapshot *service.SnapshotService, trust *service.TrustService, broker *events.Broker) *HTTPGateway {
	return &HTTPGateway{
		client:     &http.Client{Timeout: config.PeerRequestTimeout},
		deviceID:   cfg.DeviceID,
		deviceName: cfg.DeviceName,
		peers:      cfg.Peers,
		snapshot:   snapshot,
		trust:      trust,
		broker:     broker,
		registry:   make(map[string]registryEntry),
	}
}

// GetDeviceInfo resolves a device id against the discovery registry, probing
// all configured peers once on a miss before giving up.
func (g *HTTPGateway) GetDeviceInfo(ctx context.Context, deviceID string) (*model.DeviceInfo, error) {
	if info, ok := g.lookup(deviceID); ok {
		return info, nil
	}

	g.probePeers(ctx)

	if info, ok := g.lookup(deviceID); ok {
		return info, nil
	}
	return nil, apperrors.NotFound("device")
}

func (g *HTTPGateway) ConnectToDevice(ctx context.Context, device *model.DeviceInfo) (*model.Connection, error) {
	req := ConnectRequest{DeviceID: g.deviceID, DeviceName: g.deviceName}

	var resp ConnectResponse
	if err := g.doJSON(ctx, http.MethodPost, device.Address+"/peer/v1/sessions", "", req, &resp); err != nil {
		return nil, apperrors.ConnectionFailed(device.DeviceID, err)
	}

	log.Info().
		Str("deviceId", device.DeviceID).
		Str("sessionId", resp.SessionID).
		Msg("sync session opened")

	return &model.Connection{
		ID:            resp.SessionID,
		DeviceID:      device.DeviceID,
		Address:       device.Address,
		Token:         resp.Token,
		EstablishedAt: resp.StartedAt,
	}, nil
}

func (g *HTTPGateway) DisconnectFromDevice(ctx context.Context, conn *model.Connection) error {
	url := fmt.Sprintf("%s/peer/v1/sessions/%s", conn.Address, conn.ID)
	err := g.doJSON(ctx, http.MethodDelete, url, conn.Token, nil, nil)
	if err != nil {
		// A session the peer already dropped is as disconnected as it gets.
		if isNotFoundStatus(err) {
			return nil
		}
		return apperrors.ConnectionFailed(conn.DeviceID, err)
	}

	log.Info().
		Str("deviceId", conn.DeviceID).
		Str("sessionId", conn.ID).
		Msg("sync session closed")
	return nil
}

func (g *HTTPGateway) ExchangeManifests(ctx context.Context, conn *model.Connection) (*model.Manifest, *model.Manifest, error) {
	data, err := g.snapshot.Build(ctx)
	if err != nil {
		return nil, nil, err
	}

	local := &model.Manifest{
		DeviceID:  data.Metadata.DeviceID,
		Timestamp: data.Metadata.Timestamp,
		Checksum:  data.Metadata.Checksum,
		Snapshot:  data,
	}

	url := fmt.Sprintf("%s/peer/v1/sessions/%s/manifest", conn.Address, conn.ID)
	var resp ManifestExchangeResponse
	if err := g.doJSON(ctx, http.MethodPost, url, conn.Token, ManifestExchangeRequest{Manifest: local}, &resp); err != nil {
		return nil, nil, apperrors.ConnectionFailed(conn.DeviceID, err)
	}

	remote := resp.Manifest
	if remote == nil || remote.Snapshot == nil {
		return nil, nil, apperrors.ConnectionFailed(conn.DeviceID, fmt.Errorf("peer returned an empty manifest"))
	}
	if err := remote.Snapshot.Validate(); err != nil {
		return nil, nil, apperrors.ValidationError(err.Error()).WithCause(err)
	}

	return local, remote, nil
}

// PerformSync pushes the local snapshot (plus conflict winners) to the peer
// and applies the peer's snapshot locally. Remote records that lost conflict
// resolution are excluded from the local apply; the winners land via
// ApplyResolved on both sides.
func (g *HTTPGateway) PerformSync(ctx context.Context, conn *model.Connection, local, remote *model.Manifest) (*model.SyncResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g.setSyncCancel(cancel)
	defer g.setSyncCancel(nil)

	url := fmt.Sprintf("%s/peer/v1/sessions/%s/transfer", conn.Address, conn.ID)
	var resp TransferResponse
	req := TransferRequest{Snapshot: local.Snapshot, Resolved: local.Resolved}
	if err := g.doJSON(ctx, http.MethodPost, url, conn.Token, req, &resp); err != nil {
		return nil, apperrors.ConnectionFailed(conn.DeviceID, err)
	}

	incoming := withoutResolved(remote.Snapshot, local.Resolved)
	stats, err := g.snapshot.Apply(ctx, incoming)
	if err != nil {
		return nil, err
	}
	resolvedApplied, err := g.snapshot.ApplyResolved(ctx, local.Resolved)
	if err != nil {
		return nil, err
	}

	return &model.SyncResult{
		DeviceID:         conn.DeviceID,
		ItemsTransferred: resp.Applied + stats.Applied,
		ItemsMerged:      resolvedApplied + resp.Resolved,
		CompletedAt:      time.Now(),
	}, nil
}

func (g *HTTPGateway) ObserveDiscoveredDevices() *events.Client {
	return g.broker.Subscribe(events.TopicDiscovery)
}

func (g *HTTPGateway) ObserveSyncStatus() *events.Client {
	return g.broker.Subscribe(events.TopicSyncStatus)
}

// StartDiscovery begins polling configured peers. Starting twice restarts
// the poll loop.
func (g *HTTPGateway) StartDiscovery(ctx context.Context) error {
	g.mu.Lock()
	if g.discoveryCancel != nil {
		g.discoveryCancel()
	}
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	g.discoveryCancel = cancel
	g.mu.Unlock()

	go g.discoveryLoop(loopCtx)

	log.Info().
		Int("peers", len(g.peers)).
		Dur("interval", config.DiscoveryPollInterval).
		Msg("peer discovery started")
	return nil
}

func (g *HTTPGateway) StopDiscovery(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.discoveryCancel != nil {
		g.discoveryCancel()
		g.discoveryCancel = nil
	}
	return nil
}

// CancelSync aborts the in-flight transfer, if any. The orchestrator treats
// the aborted request like any other step failure.
func (g *HTTPGateway) CancelSync(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.syncCancel != nil {
		g.syncCancel()
	}
	return nil
}

func (g *HTTPGateway) GetBooksToSync(ctx context.Context) ([]model.BookSyncData, error) {
	data, err := g.snapshot.Build(ctx)
	if err != nil {
		return nil, err
	}
	return data.Books, nil
}

func (g *HTTPGateway) GetReadingProgress(ctx context.Context) ([]model.ReadingProgressData, error) {
	data, err := g.snapshot.Build(ctx)
	if err != nil {
		return nil, err
	}
	return data.ReadingProgress, nil
}

func (g *HTTPGateway) GetBookmarks(ctx context.Context) ([]model.BookmarkData, error) {
	data, err := g.snapshot.Build(ctx)
	if err != nil {
		return nil, err
	}
	return data.Bookmarks, nil
}

func (g *HTTPGateway) discoveryLoop(ctx context.Context) {
	ticker := time.NewTicker(config.DiscoveryPollInterval)
	defer ticker.Stop()

	g.probePeers(ctx)
	g.publishDiscovered(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.probePeers(ctx)
			g.publishDiscovered(ctx)
		}
	}
}

func (g *HTTPGateway) probePeers(ctx context.Context) {
	for _, addr := range g.peers {
		var info model.DeviceInfo
		if err := g.doJSON(ctx, http.MethodGet, addr+"/peer/v1/device", "", nil, &info); err != nil {
			log.Debug().Err(err).Str("address", addr).Msg("peer probe failed")
			continue
		}
		info.Address = addr

		g.mu.Lock()
		g.registry[info.DeviceID] = registryEntry{info: info, lastSeen: time.Now()}
		g.mu.Unlock()
	}
}

func (g *HTTPGateway) publishDiscovered(ctx context.Context) {
	devices := g.listDiscovered(ctx)
	if err := g.broker.Publish(ctx, events.TopicDiscovery, "devices", devices); err != nil {
		log.Warn().Err(err).Msg("failed to publish discovered devices")
	}
}

// listDiscovered returns live registry entries with their trust state
// attached. Trust lookup failures degrade to untrusted.
func (g *HTTPGateway) listDiscovered(ctx context.Context) []model.DiscoveredDevice {
	now := time.Now()

	g.mu.Lock()
	entries := make([]registryEntry, 0, len(g.registry))
	for id, entry := range g.registry {
		if now.Sub(entry.lastSeen) > registryTTL {
			delete(g.registry, id)
			continue
		}
		entries = append(entries, entry)
	}
	g.mu.Unlock()

	devices := make([]model.DiscoveredDevice, 0, len(entries))
	for _, entry := range entries {
		trusted, err := g.trust.CheckDeviceTrust(ctx, entry.info.DeviceID)
		if err != nil {
			trusted = false
		}
		devices = append(devices, model.DiscoveredDevice{
			DeviceID:   entry.info.DeviceID,
			DeviceName: entry.info.DeviceName,
			Address:    entry.info.Address,
			Trusted:    trusted,
			LastSeenAt: entry.lastSeen,
		})
	}
	return devices
}

func (g *HTTPGateway) lookup(deviceID string) (*model.DeviceInfo, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	entry, ok := g.registry[deviceID]
	if !ok || time.Since(entry.lastSeen) > registryTTL {
		return nil, false
	}
	info := entry.info
	return &info, true
}

func (g *HTTPGateway) setSyncCancel(cancel context.CancelFunc) {
	g.mu.Lock()
	g.syncCancel = cancel
	g.mu.Unlock()
}

type statusError struct {
	status int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.status)
}

func isNotFoundStatus(err error) bool {
	var se *statusError
	return errors.As(err, &se) && se.status == http.StatusNotFound
}

// doJSON sends one request to a peer. Every request identifies this device;
// session-scoped requests additionally carry the session token.
func (g *HTTPGateway) doJSON(ctx context.Context, method, url, token string, in, out any) error {
	var body *bytes.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Device-ID", g.deviceID)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &statusError{status: resp.StatusCode}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// withoutResolved strips records whose natural keys appear in the resolved
// set, so losers of conflict resolution never pass through the LWW gate.
func withoutResolved(snapshot, resolved *model.SyncData) *model.SyncData {
	if resolved == nil || snapshot == nil {
		return snapshot
	}

	books := make(map[string]struct{}, len(resolved.Books))
	for _, b := range resolved.Books {
		books[b.BookID] = struct{}{}
	}
	progress := make(map[string]struct{}, len(resolved.ReadingProgress))
	for _, p := range resolved.ReadingProgress {
		progress[p.BookID] = struct{}{}
	}
	bookmarks := make(map[string]struct{}, len(resolved.Bookmarks))
	for _, bm := range resolved.Bookmarks {
		bookmarks[bm.BookmarkID] = struct{}{}
	}

	filtered := &model.SyncData{Metadata: snapshot.Metadata}
	for _, b := range snapshot.Books {
		if _, skip := books[b.BookID]; !skip {
			filtered.Books = append(filtered.Books, b)
		}
	}
	for _, p := range snapshot.ReadingProgress {
		if _, skip := progress[p.BookID]; !skip {
			filtered.ReadingProgress = append(filtered.ReadingProgress, p)
		}
	}
	for _, bm := range snapshot.Bookmarks {
		if _, skip := bookmarks[bm.BookmarkID]; !skip {
			filtered.Bookmarks = append(filtered.Bookmarks, bm)
		}
	}
	return filtered
}
