package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/quillread/peersync-go/internal/model"
)

type TrustedDeviceRepository interface {
	Get(ctx context.Context, deviceID string) (*model.TrustedDevice, error)
	Upsert(ctx context.Context, device model.TrustedDevice) error
	List(ctx context.Context) ([]model.TrustedDevice, error)
}

type trustedDeviceRepo struct {
	db *sqlx.DB
}

func NewTrustedDeviceRepository(db *sqlx.DB) TrustedDeviceRepository {
	return &trustedDeviceRepo{db: db}
}

func (r *trustedDeviceRepo) Get(ctx context.Context, deviceID string) (*model.TrustedDevice, error) {
	var device model.TrustedDevice
	err := r.db.GetContext(ctx, &device, `
		SELECT * FROM trusted_devices WHERE device_id = $1
	`, deviceID)
	return HandleNotFound(&device, err)
}

// Upsert inserts the device or updates an existing row. paired_at is written
// only on insert: the first successful pairing owns it for the life of the
// record.
func (r *trustedDeviceRepo) Upsert(ctx context.Context, device model.TrustedDevice) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO trusted_devices (device_id, device_name, paired_at, expires_at, is_active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (device_id) DO UPDATE SET
			device_name = excluded.device_name,
			expires_at = excluded.expires_at,
			is_active = excluded.is_active
	`, device.DeviceID, device.DeviceName, device.PairedAt, device.ExpiresAt, device.IsActive)
	return err
}

func (r *trustedDeviceRepo) List(ctx context.Context) ([]model.TrustedDevice, error) {
	var devices []model.TrustedDevice
	err := r.db.SelectContext(ctx, &devices, `
		SELECT * FROM trusted_devices ORDER BY paired_at
	`)
	return devices, err
}
