package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/quillread/peersync-go/internal/audit"
	apperrors "github.com/quillread/peersync-go/internal/errors"
	"github.com/quillread/peersync-go/internal/events"
	"github.com/quillread/peersync-go/internal/model"
	"github.com/quillread/peersync-go/internal/util"
)

// GeneratePIN returns a 6-digit pairing PIN drawn uniformly from
// [0, 1000000) and zero-padded, so "004217" is as likely as "994217".
func GeneratePIN() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("failed to generate PIN: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// VerifyPIN reports whether entered matches expected. Empty strings never
// match anything, including each other.
func VerifyPIN(expected, entered string) bool {
	if expected == "" || entered == "" {
		return false
	}
	return util.ConstantTimeEqual(expected, entered)
}

type activePIN struct {
	pin       string
	expiresAt time.Time
}

// PairingService issues short-lived pairing PINs and turns a correct entry
// into a trust-store record. At most one PIN is outstanding at a time;
// issuing a new one invalidates the previous. PINs live only in memory.
type PairingService struct {
	trust  *TrustService
	broker *events.Broker
	ttl    time.Duration
	now    func() time.Time

	mu     sync.Mutex
	active *activePIN
}

func NewPairingService(trust *TrustService, broker *events.Broker, ttl time.Duration) *PairingService {
	return &PairingService{
		trust:  trust,
		broker: broker,
		ttl:    ttl,
		now:    time.Now,
	}
}

// PINChallenge is what the UI displays to the user on this device.
type PINChallenge struct {
	PIN       string    `json:"pin"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Begin issues a fresh pairing PIN, replacing any outstanding one.
func (s *PairingService) Begin(ctx context.Context) (*PINChallenge, error) {
	pin, err := GeneratePIN()
	if err != nil {
		return nil, apperrors.Internal("failed to generate pairing PIN").WithCause(err)
	}

	expiresAt := s.now().Add(s.ttl)

	s.mu.Lock()
	s.active = &activePIN{pin: pin, expiresAt: expiresAt}
	s.mu.Unlock()

	audit.Log(ctx, audit.Event{Type: audit.EventPINIssued})
	log.Info().
		Str("pin", util.MaskPIN(pin)).
		Time("expiresAt", expiresAt).
		Msg("pairing PIN issued")

	s.publishPairingEvent(ctx, "pin_issued", map[string]any{
		"expiresAt": expiresAt,
	})

	return &PINChallenge{PIN: pin, ExpiresAt: expiresAt}, nil
}

// Complete consumes the outstanding PIN. On a correct, unexpired entry the
// peer is recorded in the trust store; any failure leaves the trust store
// untouched. The PIN is single-use either way once it matches.
func (s *PairingService) Complete(ctx context.Context, pin, deviceID, deviceName string) (*model.TrustedDevice, error) {
	now := s.now()

	s.mu.Lock()
	active := s.active
	if active != nil && !active.expiresAt.After(now) {
		// Expired PINs are cleared eagerly so a stale entry cannot linger.
		s.active = nil
		active = nil
	}
	matched := active != nil && VerifyPIN(active.pin, pin)
	if matched {
		s.active = nil
	}
	s.mu.Unlock()

	if !matched {
		audit.Log(ctx, audit.Event{
			Type:     audit.EventPairingFailure,
			DeviceID: deviceID,
		})
		return nil, apperrors.InvalidPIN()
	}

	device, err := s.trust.TrustDevice(ctx, deviceID, deviceName)
	if err != nil {
		return nil, err
	}

	audit.Log(ctx, audit.Event{
		Type:     audit.EventPairingSuccess,
		DeviceID: deviceID,
		Details:  map[string]interface{}{"device_name": deviceName},
	})

	s.publishPairingEvent(ctx, "paired", device)

	return device, nil
}

// HasActivePIN reports whether an unexpired PIN is outstanding.
func (s *PairingService) HasActivePIN() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil && s.active.expiresAt.After(s.now())
}

func (s *PairingService) publishPairingEvent(ctx context.Context, eventType string, payload any) {
	if s.broker == nil {
		return
	}
	if err := s.broker.Publish(ctx, events.TopicPairing, eventType, payload); err != nil {
		log.Warn().Err(err).Msg("failed to publish pairing event")
	}
}
