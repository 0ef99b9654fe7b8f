package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillread/peersync-go/internal/model"
)

var detectorBase = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func progressData(bookID string, chapter, offset int, progress float64, readAt time.Time) model.ReadingProgressData {
	return model.ReadingProgressData{
		BookID:       bookID,
		ChapterID:    "ch",
		ChapterIndex: chapter,
		Offset:       offset,
		Progress:     progress,
		LastReadAt:   readAt,
	}
}

func bookmarkData(id string, position int, note *string, createdAt time.Time) model.BookmarkData {
	return model.BookmarkData{
		BookmarkID: id,
		BookID:     "b1",
		ChapterID:  "ch",
		Position:   position,
		Note:       note,
		CreatedAt:  createdAt,
	}
}

func bookData(id, title, hash string, updatedAt time.Time) model.BookSyncData {
	return model.BookSyncData{
		BookID:    id,
		Title:     title,
		Author:    "Author",
		Source:    "gutenberg",
		URL:       "https://example.org/" + id,
		DateAdded: detectorBase,
		UpdatedAt: updatedAt,
		FileHash:  hash,
	}
}

func snapshot(deviceID string) *model.SyncData {
	return &model.SyncData{
		Books:           []model.BookSyncData{},
		ReadingProgress: []model.ReadingProgressData{},
		Bookmarks:       []model.BookmarkData{},
		Metadata:        model.SyncMetadata{DeviceID: deviceID, Timestamp: detectorBase, Version: model.SyncDataVersion},
	}
}

func TestConflictDetector_Idempotence(t *testing.T) {
	detector := NewConflictDetector()

	data := snapshot("dev-a")
	data.Books = append(data.Books, bookData("b1", "Title", "h1", detectorBase))
	data.ReadingProgress = append(data.ReadingProgress, progressData("b1", 2, 10, 0.2, detectorBase))
	note := "n"
	data.Bookmarks = append(data.Bookmarks, bookmarkData("bm1", 5, &note, detectorBase))

	assert.Empty(t, detector.Detect(data, data))
}

func TestConflictDetector_ReadingProgress(t *testing.T) {
	detector := NewConflictDetector()

	t.Run("timestamp divergence alone is not a conflict", func(t *testing.T) {
		local := snapshot("dev-a")
		remote := snapshot("dev-b")
		local.ReadingProgress = []model.ReadingProgressData{progressData("b1", 2, 10, 0.2, detectorBase)}
		remote.ReadingProgress = []model.ReadingProgressData{progressData("b1", 2, 10, 0.2, detectorBase.Add(time.Hour))}

		assert.Empty(t, detector.Detect(local, remote))
	})

	t.Run("equal timestamps with differing data is not a conflict", func(t *testing.T) {
		local := snapshot("dev-a")
		remote := snapshot("dev-b")
		local.ReadingProgress = []model.ReadingProgressData{progressData("b1", 2, 10, 0.2, detectorBase)}
		remote.ReadingProgress = []model.ReadingProgressData{progressData("b1", 7, 99, 0.9, detectorBase)}

		assert.Empty(t, detector.Detect(local, remote))
	})

	t.Run("diverged timestamp and chapter yields one conflict", func(t *testing.T) {
		local := snapshot("dev-a")
		remote := snapshot("dev-b")
		local.ReadingProgress = []model.ReadingProgressData{progressData("b1", 2, 10, 0.2, detectorBase)}
		remote.ReadingProgress = []model.ReadingProgressData{progressData("b1", 7, 10, 0.2, detectorBase.Add(time.Hour))}

		conflicts := detector.Detect(local, remote)
		require.Len(t, conflicts, 1)
		assert.Equal(t, model.ConflictReadingProgress, conflicts[0].Type)
		assert.Equal(t, "chapterIndex", conflicts[0].Field)

		localData, remoteData, ok := conflicts[0].ReadingProgress()
		require.True(t, ok)
		assert.Equal(t, 2, localData.ChapterIndex)
		assert.Equal(t, 7, remoteData.ChapterIndex)
	})

	t.Run("one-sided records are not conflicts", func(t *testing.T) {
		local := snapshot("dev-a")
		remote := snapshot("dev-b")
		local.ReadingProgress = []model.ReadingProgressData{progressData("only-local", 2, 10, 0.2, detectorBase)}
		remote.ReadingProgress = []model.ReadingProgressData{progressData("only-remote", 7, 10, 0.2, detectorBase.Add(time.Hour))}

		assert.Empty(t, detector.Detect(local, remote))
	})
}

func TestConflictDetector_Bookmarks(t *testing.T) {
	detector := NewConflictDetector()

	noteA := "alpha"
	noteB := "beta"

	t.Run("diverged note yields conflict", func(t *testing.T) {
		local := snapshot("dev-a")
		remote := snapshot("dev-b")
		local.Bookmarks = []model.BookmarkData{bookmarkData("bm1", 5, &noteA, detectorBase)}
		remote.Bookmarks = []model.BookmarkData{bookmarkData("bm1", 5, &noteB, detectorBase.Add(time.Minute))}

		conflicts := detector.Detect(local, remote)
		require.Len(t, conflicts, 1)
		assert.Equal(t, model.ConflictBookmark, conflicts[0].Type)
		assert.Equal(t, "note", conflicts[0].Field)
	})

	t.Run("nil versus set note counts as divergence", func(t *testing.T) {
		local := snapshot("dev-a")
		remote := snapshot("dev-b")
		local.Bookmarks = []model.BookmarkData{bookmarkData("bm1", 5, nil, detectorBase)}
		remote.Bookmarks = []model.BookmarkData{bookmarkData("bm1", 5, &noteB, detectorBase.Add(time.Minute))}

		conflicts := detector.Detect(local, remote)
		require.Len(t, conflicts, 1)
	})

	t.Run("identical payload with diverged createdAt is not a conflict", func(t *testing.T) {
		local := snapshot("dev-a")
		remote := snapshot("dev-b")
		local.Bookmarks = []model.BookmarkData{bookmarkData("bm1", 5, &noteA, detectorBase)}
		remote.Bookmarks = []model.BookmarkData{bookmarkData("bm1", 5, &noteA, detectorBase.Add(time.Minute))}

		assert.Empty(t, detector.Detect(local, remote))
	})
}

func TestConflictDetector_Books(t *testing.T) {
	detector := NewConflictDetector()

	local := snapshot("dev-a")
	remote := snapshot("dev-b")
	local.Books = []model.BookSyncData{bookData("b1", "Old Title", "h1", detectorBase)}
	remote.Books = []model.BookSyncData{bookData("b1", "New Title", "h1", detectorBase.Add(time.Hour))}

	conflicts := detector.Detect(local, remote)
	require.Len(t, conflicts, 1)
	assert.Equal(t, model.ConflictBookMetadata, conflicts[0].Type)
	assert.Equal(t, "title", conflicts[0].Field)
}

func TestConflictDetector_GroupOrder(t *testing.T) {
	detector := NewConflictDetector()

	local := snapshot("dev-a")
	remote := snapshot("dev-b")

	local.Books = []model.BookSyncData{bookData("b1", "A", "h1", detectorBase)}
	remote.Books = []model.BookSyncData{bookData("b1", "B", "h1", detectorBase.Add(time.Hour))}

	local.ReadingProgress = []model.ReadingProgressData{progressData("b1", 1, 0, 0.1, detectorBase)}
	remote.ReadingProgress = []model.ReadingProgressData{progressData("b1", 2, 0, 0.1, detectorBase.Add(time.Hour))}

	note := "n"
	other := "m"
	local.Bookmarks = []model.BookmarkData{bookmarkData("bm1", 1, &note, detectorBase)}
	remote.Bookmarks = []model.BookmarkData{bookmarkData("bm1", 1, &other, detectorBase.Add(time.Hour))}

	conflicts := detector.Detect(local, remote)
	require.Len(t, conflicts, 3)
	assert.Equal(t, model.ConflictReadingProgress, conflicts[0].Type)
	assert.Equal(t, model.ConflictBookmark, conflicts[1].Type)
	assert.Equal(t, model.ConflictBookMetadata, conflicts[2].Type)
}
