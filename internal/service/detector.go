package service

import (
	"github.com/rs/zerolog/log"

	"github.com/quillread/peersync-go/internal/model"
)

// ConflictDetector compares two snapshots and reports the records that
// changed independently on both sides. Items present on only one side are
// not conflicts; they are one-sided additions the transfer step handles.
type ConflictDetector struct{}

func NewConflictDetector() *ConflictDetector {
	return &ConflictDetector{}
}

// Detect returns reading-progress conflicts first, then bookmarks, then book
// metadata. Order within a group is not guaranteed. A record conflicts only
// when its authoritative timestamp diverged AND at least one payload field
// diverged: equal timestamps mean no new information, and a pure timestamp
// bump with identical data is not worth surfacing.
func (d *ConflictDetector) Detect(local, remote *model.SyncData) []model.DataConflict {
	var conflicts []model.DataConflict

	conflicts = append(conflicts, d.detectReadingProgress(local, remote)...)
	conflicts = append(conflicts, d.detectBookmarks(local, remote)...)
	conflicts = append(conflicts, d.detectBooks(local, remote)...)

	if len(conflicts) > 0 {
		log.Debug().
			Int("count", len(conflicts)).
			Str("localDevice", local.Metadata.DeviceID).
			Str("remoteDevice", remote.Metadata.DeviceID).
			Msg("conflicts detected")
	}

	return conflicts
}

func (d *ConflictDetector) detectReadingProgress(local, remote *model.SyncData) []model.DataConflict {
	remoteByBook := make(map[string]model.ReadingProgressData, len(remote.ReadingProgress))
	for _, rp := range remote.ReadingProgress {
		remoteByBook[rp.BookID] = rp
	}

	var conflicts []model.DataConflict
	for _, lp := range local.ReadingProgress {
		rp, shared := remoteByBook[lp.BookID]
		if !shared || lp.LastReadAt.Equal(rp.LastReadAt) {
			continue
		}

		var field string
		switch {
		case lp.ChapterIndex != rp.ChapterIndex:
			field = "chapterIndex"
		case lp.Offset != rp.Offset:
			field = "offset"
		case lp.Progress != rp.Progress:
			field = "progress"
		default:
			continue
		}

		conflicts = append(conflicts, model.DataConflict{
			Type:   model.ConflictReadingProgress,
			Local:  lp,
			Remote: rp,
			Field:  field,
		})
	}
	return conflicts
}

func (d *ConflictDetector) detectBookmarks(local, remote *model.SyncData) []model.DataConflict {
	remoteByID := make(map[string]model.BookmarkData, len(remote.Bookmarks))
	for _, bm := range remote.Bookmarks {
		remoteByID[bm.BookmarkID] = bm
	}

	var conflicts []model.DataConflict
	for _, lb := range local.Bookmarks {
		rb, shared := remoteByID[lb.BookmarkID]
		if !shared || lb.CreatedAt.Equal(rb.CreatedAt) {
			continue
		}

		var field string
		switch {
		case lb.Position != rb.Position:
			field = "position"
		case !noteEqual(lb.Note, rb.Note):
			field = "note"
		default:
			continue
		}

		conflicts = append(conflicts, model.DataConflict{
			Type:   model.ConflictBookmark,
			Local:  lb,
			Remote: rb,
			Field:  field,
		})
	}
	return conflicts
}

func (d *ConflictDetector) detectBooks(local, remote *model.SyncData) []model.DataConflict {
	remoteByID := make(map[string]model.BookSyncData, len(remote.Books))
	for _, b := range remote.Books {
		remoteByID[b.BookID] = b
	}

	var conflicts []model.DataConflict
	for _, lb := range local.Books {
		rb, shared := remoteByID[lb.BookID]
		if !shared || lb.UpdatedAt.Equal(rb.UpdatedAt) {
			continue
		}

		var field string
		switch {
		case lb.Title != rb.Title:
			field = "title"
		case lb.Author != rb.Author:
			field = "author"
		case lb.FileHash != rb.FileHash:
			field = "fileHash"
		default:
			continue
		}

		conflicts = append(conflicts, model.DataConflict{
			Type:   model.ConflictBookMetadata,
			Local:  lb,
			Remote: rb,
			Field:  field,
		})
	}
	return conflicts
}

func noteEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
