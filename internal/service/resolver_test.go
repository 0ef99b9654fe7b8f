package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/quillread/peersync-go/internal/errors"
	"github.com/quillread/peersync-go/internal/model"
)

func progressConflict(localChapter, remoteChapter int, localReadAt, remoteReadAt time.Time) model.DataConflict {
	return model.DataConflict{
		Type:   model.ConflictReadingProgress,
		Local:  progressData("b1", localChapter, 10, 0.2, localReadAt),
		Remote: progressData("b1", remoteChapter, 20, 0.7, remoteReadAt),
		Field:  "chapterIndex",
	}
}

func TestConflictResolver_EmptyInput(t *testing.T) {
	resolver := NewConflictResolver()

	for _, strategy := range []model.ResolutionStrategy{
		model.ResolveLocalWins,
		model.ResolveRemoteWins,
		model.ResolveLatestTimestamp,
		model.ResolveMerge,
		model.ResolveManual,
	} {
		t.Run(string(strategy), func(t *testing.T) {
			resolved, err := resolver.Resolve(nil, strategy)
			require.NoError(t, err)
			assert.Empty(t, resolved)
		})
	}
}

func TestConflictResolver_Strategies(t *testing.T) {
	resolver := NewConflictResolver()

	// local read chapter 5 at t+1000, remote read chapter 7 at t+2000
	conflict := progressConflict(5, 7, detectorBase.Add(1000*time.Millisecond), detectorBase.Add(2000*time.Millisecond))

	chapterOf := func(v any) int {
		rp, ok := v.(model.ReadingProgressData)
		require.True(t, ok)
		return rp.ChapterIndex
	}

	tests := []struct {
		strategy    model.ResolutionStrategy
		wantChapter int
	}{
		{model.ResolveLocalWins, 5},
		{model.ResolveRemoteWins, 7},
		{model.ResolveLatestTimestamp, 7},
		{model.ResolveMerge, 7},
	}

	for _, tt := range tests {
		t.Run(string(tt.strategy), func(t *testing.T) {
			resolved, err := resolver.Resolve([]model.DataConflict{conflict}, tt.strategy)
			require.NoError(t, err)
			require.Len(t, resolved, 1)
			assert.Equal(t, tt.wantChapter, chapterOf(resolved[0]))
		})
	}

	t.Run("manual fails with non-empty input", func(t *testing.T) {
		_, err := resolver.Resolve([]model.DataConflict{conflict}, model.ResolveManual)
		require.Error(t, err)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeManualResolutionRequired))
	})

	t.Run("unknown strategy is an error", func(t *testing.T) {
		_, err := resolver.Resolve([]model.DataConflict{conflict}, model.ResolutionStrategy("bogus"))
		assert.Error(t, err)
	})
}

func TestConflictResolver_LatestTimestampTies(t *testing.T) {
	resolver := NewConflictResolver()

	conflict := progressConflict(5, 7, detectorBase, detectorBase)

	resolved, err := resolver.Resolve([]model.DataConflict{conflict}, model.ResolveLatestTimestamp)
	require.NoError(t, err)
	require.Len(t, resolved, 1)

	rp := resolved[0].(model.ReadingProgressData)
	assert.Equal(t, 5, rp.ChapterIndex, "ties must favor local")
}

func TestConflictResolver_Merge(t *testing.T) {
	resolver := NewConflictResolver()

	t.Run("prefers larger chapter index regardless of timestamp", func(t *testing.T) {
		// local is further along even though remote is newer
		conflict := progressConflict(9, 7, detectorBase, detectorBase.Add(time.Hour))

		resolved, err := resolver.Resolve([]model.DataConflict{conflict}, model.ResolveMerge)
		require.NoError(t, err)
		rp := resolved[0].(model.ReadingProgressData)
		assert.Equal(t, 9, rp.ChapterIndex)
	})

	t.Run("equal chapters prefer larger offset", func(t *testing.T) {
		local := progressData("b1", 5, 10, 0.2, detectorBase)
		remote := progressData("b1", 5, 300, 0.3, detectorBase.Add(time.Hour))
		conflict := model.DataConflict{
			Type: model.ConflictReadingProgress, Local: local, Remote: remote, Field: "offset",
		}

		resolved, err := resolver.Resolve([]model.DataConflict{conflict}, model.ResolveMerge)
		require.NoError(t, err)
		rp := resolved[0].(model.ReadingProgressData)
		assert.Equal(t, 300, rp.Offset)
	})

	t.Run("bookmarks fall back to latest timestamp", func(t *testing.T) {
		noteA, noteB := "a", "b"
		conflict := model.DataConflict{
			Type:   model.ConflictBookmark,
			Local:  bookmarkData("bm1", 5, &noteA, detectorBase),
			Remote: bookmarkData("bm1", 9, &noteB, detectorBase.Add(time.Hour)),
			Field:  "position",
		}

		resolved, err := resolver.Resolve([]model.DataConflict{conflict}, model.ResolveMerge)
		require.NoError(t, err)
		bm := resolved[0].(model.BookmarkData)
		assert.Equal(t, 9, bm.Position)
	})

	t.Run("book metadata falls back to latest timestamp", func(t *testing.T) {
		conflict := model.DataConflict{
			Type:   model.ConflictBookMetadata,
			Local:  bookData("b1", "Local Title", "h1", detectorBase.Add(time.Hour)),
			Remote: bookData("b1", "Remote Title", "h2", detectorBase),
			Field:  "title",
		}

		resolved, err := resolver.Resolve([]model.DataConflict{conflict}, model.ResolveMerge)
		require.NoError(t, err)
		b := resolved[0].(model.BookSyncData)
		assert.Equal(t, "Local Title", b.Title)
	})
}

func TestConflictResolver_MixedListPreservesOrder(t *testing.T) {
	resolver := NewConflictResolver()

	noteA, noteB := "a", "b"
	conflicts := []model.DataConflict{
		progressConflict(5, 7, detectorBase, detectorBase.Add(time.Hour)),
		{
			Type:   model.ConflictBookmark,
			Local:  bookmarkData("bm1", 5, &noteA, detectorBase),
			Remote: bookmarkData("bm1", 9, &noteB, detectorBase.Add(time.Hour)),
			Field:  "position",
		},
		{
			Type:   model.ConflictBookMetadata,
			Local:  bookData("b1", "L", "h1", detectorBase),
			Remote: bookData("b1", "R", "h2", detectorBase.Add(time.Hour)),
			Field:  "title",
		},
	}

	resolved, err := resolver.Resolve(conflicts, model.ResolveRemoteWins)
	require.NoError(t, err)
	require.Len(t, resolved, 3)

	_, isProgress := resolved[0].(model.ReadingProgressData)
	_, isBookmark := resolved[1].(model.BookmarkData)
	_, isBook := resolved[2].(model.BookSyncData)
	assert.True(t, isProgress)
	assert.True(t, isBookmark)
	assert.True(t, isBook)
}
