package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/quillread/peersync-go/internal/model"
)

type SyncSessionRepository interface {
	Create(ctx context.Context, params model.CreateSyncSessionParams) (*model.SyncSession, error)
	FindByID(ctx context.Context, id string) (*model.SyncSession, error)
	FindActiveByTokenHash(ctx context.Context, tokenHash string) (*model.SyncSession, error)
	MarkCompleted(ctx context.Context, id string, itemsSynced int) error
	MarkFailed(ctx context.Context, id string) error
	MarkDisconnected(ctx context.Context, id string) error
	DeleteStale(ctx context.Context, olderThan time.Time) (int64, error)
}

// syncSessionDB is an interface satisfied by both *sqlx.DB and *sqlx.Tx
type syncSessionDB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type syncSessionRepo struct {
	db syncSessionDB
}

func NewSyncSessionRepository(db *sqlx.DB) SyncSessionRepository {
	return &syncSessionRepo{db: db}
}

func (r *syncSessionRepo) Create(ctx context.Context, params model.CreateSyncSessionParams) (*model.SyncSession, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_sessions (id, device_id, token_hash, status, started_at)
		VALUES ($1, $2, $3, $4, $5)
	`, params.ID, params.DeviceID, params.TokenHash, model.SessionStatusActive, params.StartedAt)
	if err != nil {
		return nil, err
	}
	return r.FindByID(ctx, params.ID)
}

func (r *syncSessionRepo) FindByID(ctx context.Context, id string) (*model.SyncSession, error) {
	var session model.SyncSession
	err := r.db.GetContext(ctx, &session, `
		SELECT * FROM sync_sessions WHERE id = $1
	`, id)
	return HandleNotFound(&session, err)
}

func (r *syncSessionRepo) FindActiveByTokenHash(ctx context.Context, tokenHash string) (*model.SyncSession, error) {
	var session model.SyncSession
	err := r.db.GetContext(ctx, &session, `
		SELECT * FROM sync_sessions
		WHERE token_hash = $1 AND status = 'active'
	`, tokenHash)
	return HandleNotFound(&session, err)
}

func (r *syncSessionRepo) MarkCompleted(ctx context.Context, id string, itemsSynced int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sync_sessions SET
			status = 'completed',
			items_synced = $2,
			finished_at = $3
		WHERE id = $1
	`, id, itemsSynced, time.Now())
	return err
}

func (r *syncSessionRepo) MarkFailed(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sync_sessions SET
			status = 'failed',
			finished_at = $2
		WHERE id = $1
	`, id, time.Now())
	return err
}

func (r *syncSessionRepo) MarkDisconnected(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sync_sessions SET
			status = 'disconnected',
			finished_at = $2
		WHERE id = $1 AND status = 'active'
	`, id, time.Now())
	return err
}

// DeleteStale removes finished sessions and any active session that has been
// running since before olderThan (a crashed peer never disconnects cleanly).
func (r *syncSessionRepo) DeleteStale(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM sync_sessions
		WHERE status IN ('completed', 'failed', 'disconnected')
		OR (status = 'active' AND started_at < $1)
	`, olderThan)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
