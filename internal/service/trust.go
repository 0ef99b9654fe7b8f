package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/quillread/peersync-go/internal/audit"
	apperrors "github.com/quillread/peersync-go/internal/errors"
	"github.com/quillread/peersync-go/internal/model"
	"github.com/quillread/peersync-go/internal/repository"
)

// TrustService owns the device trust store. A device is trusted when its
// record is active and its expiry lies strictly in the future; everything
// else, including an expiring-right-now record, requires re-authentication.
type TrustService struct {
	devices repository.TrustedDeviceRepository
	window  time.Duration
	now     func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewTrustService(devices repository.TrustedDeviceRepository, window time.Duration) *TrustService {
	return &TrustService{
		devices: devices,
		window:  window,
		now:     time.Now,
		locks:   make(map[string]*sync.Mutex),
	}
}

// lockDevice serializes writes per trust record, so a reauth racing a revoke
// cannot interleave its read-modify-write.
func (s *TrustService) lockDevice(deviceID string) func() {
	s.mu.Lock()
	lock, ok := s.locks[deviceID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[deviceID] = lock
	}
	s.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// CheckDeviceTrust reports whether the device may sync right now. Unknown
// devices are simply untrusted, not errors.
func (s *TrustService) CheckDeviceTrust(ctx context.Context, deviceID string) (bool, error) {
	device, err := s.devices.Get(ctx, deviceID)
	if err != nil {
		return false, apperrors.Database(err)
	}
	if device == nil {
		return false, nil
	}
	return device.TrustedAt(s.now()), nil
}

// GetDevice returns the trust record for a device, nil when it never paired.
func (s *TrustService) GetDevice(ctx context.Context, deviceID string) (*model.TrustedDevice, error) {
	device, err := s.devices.Get(ctx, deviceID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return device, nil
}

// TrustDevice records a successful pairing. Re-pairing an existing device
// refreshes its name, expiry and active flag but keeps the original pairedAt.
func (s *TrustService) TrustDevice(ctx context.Context, deviceID, deviceName string) (*model.TrustedDevice, error) {
	unlock := s.lockDevice(deviceID)
	defer unlock()

	now := s.now()

	device := model.TrustedDevice{
		DeviceID:   deviceID,
		DeviceName: deviceName,
		PairedAt:   now,
		ExpiresAt:  now.Add(s.window),
		IsActive:   true,
	}
	if err := s.devices.Upsert(ctx, device); err != nil {
		return nil, apperrors.Database(err)
	}

	stored, err := s.devices.Get(ctx, deviceID)
	if err != nil {
		return nil, apperrors.Database(err)
	}

	log.Info().
		Str("deviceId", deviceID).
		Str("deviceName", deviceName).
		Time("expiresAt", stored.ExpiresAt).
		Msg("device trusted")

	return stored, nil
}

// ReauthenticateDevice extends the trust window for a known device and
// reactivates it if it was revoked. Returns false when the device has never
// paired: re-authentication cannot create trust, only renew it.
func (s *TrustService) ReauthenticateDevice(ctx context.Context, deviceID string) (bool, error) {
	unlock := s.lockDevice(deviceID)
	defer unlock()

	device, err := s.devices.Get(ctx, deviceID)
	if err != nil {
		return false, apperrors.Database(err)
	}
	if device == nil {
		return false, nil
	}

	device.ExpiresAt = s.now().Add(s.window)
	device.IsActive = true
	if err := s.devices.Upsert(ctx, *device); err != nil {
		return false, apperrors.Database(err)
	}

	audit.Log(ctx, audit.Event{
		Type:     audit.EventTrustRenewed,
		DeviceID: deviceID,
		Details:  map[string]interface{}{"expires_at": device.ExpiresAt.Format(time.RFC3339)},
	})

	return true, nil
}

// RevokeDevice deactivates a device without deleting its record, so a later
// re-pairing keeps the original pairedAt.
func (s *TrustService) RevokeDevice(ctx context.Context, deviceID string) error {
	unlock := s.lockDevice(deviceID)
	defer unlock()

	device, err := s.devices.Get(ctx, deviceID)
	if err != nil {
		return apperrors.Database(err)
	}
	if device == nil {
		return apperrors.NotFound("device")
	}

	device.IsActive = false
	if err := s.devices.Upsert(ctx, *device); err != nil {
		return apperrors.Database(err)
	}

	audit.Log(ctx, audit.Event{
		Type:     audit.EventTrustRevoked,
		DeviceID: deviceID,
	})

	return nil
}

func (s *TrustService) ListDevices(ctx context.Context) ([]model.TrustedDevice, error) {
	devices, err := s.devices.List(ctx)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return devices, nil
}
