package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/quillread/peersync-go/internal/errors"
	"github.com/quillread/peersync-go/internal/model"
	"github.com/quillread/peersync-go/internal/repository"
)

// SnapshotService builds this device's sync snapshot from the local library
// and applies incoming records back to it. Snapshots are built fresh for
// every sync attempt; nothing here is cached.
type SnapshotService struct {
	library  repository.LibraryRepository
	deviceID string
	now      func() time.Time
}

func NewSnapshotService(library repository.LibraryRepository, deviceID string) *SnapshotService {
	return &SnapshotService{
		library:  library,
		deviceID: deviceID,
		now:      time.Now,
	}
}

// Build assembles the full snapshot. Only favorited books travel: rows with
// is_favorite cleared are removed-book history and stay local, though their
// progress and bookmarks still sync.
func (s *SnapshotService) Build(ctx context.Context) (*model.SyncData, error) {
	books, err := s.library.ListBooks(ctx)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	progress, err := s.library.ListReadingProgress(ctx)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	bookmarks, err := s.library.ListBookmarks(ctx)
	if err != nil {
		return nil, apperrors.Database(err)
	}

	data := &model.SyncData{
		Books:           make([]model.BookSyncData, 0, len(books)),
		ReadingProgress: make([]model.ReadingProgressData, 0, len(progress)),
		Bookmarks:       make([]model.BookmarkData, 0, len(bookmarks)),
	}

	for _, b := range books {
		if !b.IsFavorite {
			continue
		}
		data.Books = append(data.Books, model.BookSyncData{
			BookID:    b.BookID,
			Title:     b.Title,
			Author:    b.Author,
			Cover:     b.Cover,
			Source:    b.Source,
			URL:       b.URL,
			DateAdded: b.DateAdded,
			UpdatedAt: b.UpdatedAt,
			FileHash:  b.FileHash,
		})
	}
	for _, p := range progress {
		data.ReadingProgress = append(data.ReadingProgress, model.ReadingProgressData(p))
	}
	for _, bm := range bookmarks {
		data.Bookmarks = append(data.Bookmarks, model.BookmarkData(bm))
	}

	data.Metadata = model.SyncMetadata{
		DeviceID:  s.deviceID,
		Timestamp: s.now(),
		Version:   model.SyncDataVersion,
	}
	data.Metadata.Checksum = data.Checksum()

	return data, nil
}

// ApplyStats counts what an incoming snapshot did to the local store.
type ApplyStats struct {
	Applied int `json:"applied"`
	Skipped int `json:"skipped"`
}

// Apply writes incoming records into the local library with per-item
// last-write-wins: a record lands only when the local store has no version
// of it, or the incoming one is strictly newer on its authoritative
// timestamp. Older or equal-aged records are skipped, which makes Apply
// safe to replay.
func (s *SnapshotService) Apply(ctx context.Context, incoming *model.SyncData) (*ApplyStats, error) {
	if err := incoming.Validate(); err != nil {
		return nil, apperrors.ValidationError(err.Error())
	}

	stats := &ApplyStats{}

	localBooks, err := s.library.ListBooks(ctx)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	bookUpdated := make(map[string]time.Time, len(localBooks))
	for _, b := range localBooks {
		bookUpdated[b.BookID] = b.UpdatedAt
	}

	for _, b := range incoming.Books {
		if local, ok := bookUpdated[b.BookID]; ok && !b.UpdatedAt.After(local) {
			stats.Skipped++
			continue
		}
		err := s.library.UpsertBook(ctx, model.Book{
			BookID:     b.BookID,
			Title:      b.Title,
			Author:     b.Author,
			Cover:      b.Cover,
			Source:     b.Source,
			URL:        b.URL,
			FileHash:   b.FileHash,
			IsFavorite: true,
			DateAdded:  b.DateAdded,
			UpdatedAt:  b.UpdatedAt,
		})
		if err != nil {
			return nil, apperrors.Database(err)
		}
		stats.Applied++
	}

	localProgress, err := s.library.ListReadingProgress(ctx)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	progressReadAt := make(map[string]time.Time, len(localProgress))
	for _, p := range localProgress {
		progressReadAt[p.BookID] = p.LastReadAt
	}

	for _, p := range incoming.ReadingProgress {
		if local, ok := progressReadAt[p.BookID]; ok && !p.LastReadAt.After(local) {
			stats.Skipped++
			continue
		}
		if err := s.library.UpsertReadingProgress(ctx, model.ReadingProgress(p)); err != nil {
			return nil, apperrors.Database(err)
		}
		stats.Applied++
	}

	localBookmarks, err := s.library.ListBookmarks(ctx)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	bookmarkCreated := make(map[string]time.Time, len(localBookmarks))
	for _, bm := range localBookmarks {
		bookmarkCreated[bm.BookmarkID] = bm.CreatedAt
	}

	for _, bm := range incoming.Bookmarks {
		if local, ok := bookmarkCreated[bm.BookmarkID]; ok && !bm.CreatedAt.After(local) {
			stats.Skipped++
			continue
		}
		if err := s.library.UpsertBookmark(ctx, model.Bookmark(bm)); err != nil {
			return nil, apperrors.Database(err)
		}
		stats.Applied++
	}

	log.Debug().
		Str("fromDevice", incoming.Metadata.DeviceID).
		Int("applied", stats.Applied).
		Int("skipped", stats.Skipped).
		Msg("applied incoming snapshot")

	return stats, nil
}

// ApplyResolved writes conflict winners unconditionally. Resolution already
// decided these records; gating them on timestamps again would undo a
// LOCAL_WINS choice whenever the loser happened to be newer.
func (s *SnapshotService) ApplyResolved(ctx context.Context, resolved *model.SyncData) (int, error) {
	if resolved == nil {
		return 0, nil
	}

	applied := 0
	for _, b := range resolved.Books {
		err := s.library.UpsertBook(ctx, model.Book{
			BookID:     b.BookID,
			Title:      b.Title,
			Author:     b.Author,
			Cover:      b.Cover,
			Source:     b.Source,
			URL:        b.URL,
			FileHash:   b.FileHash,
			IsFavorite: true,
			DateAdded:  b.DateAdded,
			UpdatedAt:  b.UpdatedAt,
		})
		if err != nil {
			return applied, apperrors.Database(err)
		}
		applied++
	}
	for _, p := range resolved.ReadingProgress {
		if err := s.library.UpsertReadingProgress(ctx, model.ReadingProgress(p)); err != nil {
			return applied, apperrors.Database(err)
		}
		applied++
	}
	for _, bm := range resolved.Bookmarks {
		if err := s.library.UpsertBookmark(ctx, model.Bookmark(bm)); err != nil {
			return applied, apperrors.Database(err)
		}
		applied++
	}
	return applied, nil
}
