package model

import "time"

// SyncSession is the durable record of one logical connection from a peer.
type SyncSession struct {
	ID          string            `db:"id" json:"id"`
	DeviceID    string            `db:"device_id" json:"deviceId"`
	TokenHash   string            `db:"token_hash" json:"-"`
	Status      SyncSessionStatus `db:"status" json:"status"`
	StartedAt   time.Time         `db:"started_at" json:"startedAt"`
	FinishedAt  *time.Time        `db:"finished_at" json:"finishedAt,omitempty"`
	ItemsSynced int               `db:"items_synced" json:"itemsSynced"`
}

type CreateSyncSessionParams struct {
	ID        string
	DeviceID  string
	TokenHash string
	StartedAt time.Time
}
