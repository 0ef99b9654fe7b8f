package model

import "time"

// TrustedDevice is the durable record of a peer this device has paired with.
// Records are never deleted by the engine; revocation clears is_active and
// re-authentication restores it.
type TrustedDevice struct {
	DeviceID   string    `db:"device_id" json:"deviceId"`
	DeviceName string    `db:"device_name" json:"deviceName"`
	PairedAt   time.Time `db:"paired_at" json:"pairedAt"`
	ExpiresAt  time.Time `db:"expires_at" json:"expiresAt"`
	IsActive   bool      `db:"is_active" json:"isActive"`
}

// TrustedAt reports whether the device is trusted at the given instant.
// The expiry comparison is strict: a device expiring exactly now must
// re-authenticate.
func (d *TrustedDevice) TrustedAt(now time.Time) bool {
	return d.IsActive && d.ExpiresAt.After(now)
}

// DeviceInfo is what a peer reports about itself before a connection is opened.
type DeviceInfo struct {
	DeviceID   string `json:"deviceId"`
	DeviceName string `json:"deviceName"`
	Address    string `json:"address"`
	Version    string `json:"version"`
}

// DiscoveredDevice is a reachable peer surfaced to the discovery UI.
type DiscoveredDevice struct {
	DeviceID   string    `json:"deviceId"`
	DeviceName string    `json:"deviceName"`
	Address    string    `json:"address"`
	Trusted    bool      `json:"trusted"`
	LastSeenAt time.Time `json:"lastSeenAt"`
}

// Connection is an open logical sync connection to a peer.
type Connection struct {
	ID            string    `json:"id"`
	DeviceID      string    `json:"deviceId"`
	Address       string    `json:"address"`
	Token         string    `json:"-"`
	EstablishedAt time.Time `json:"establishedAt"`
}

// Manifest is the compact summary exchanged at the start of a sync. The
// snapshot travels with it so conflict detection runs on real remote data
// rather than the summary alone.
type Manifest struct {
	DeviceID  string    `json:"deviceId"`
	Timestamp time.Time `json:"timestamp"`
	Checksum  string    `json:"checksum,omitempty"`
	Snapshot  *SyncData `json:"snapshot,omitempty"`

	// Resolved carries conflict winners chosen after manifest exchange. They
	// are applied unconditionally on both sides, bypassing the transfer
	// step's last-write-wins gate.
	Resolved *SyncData `json:"resolved,omitempty"`
}
