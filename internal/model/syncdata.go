package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// BookSyncData is the wire form of one library entry.
type BookSyncData struct {
	BookID    string    `json:"bookId"`
	Title     string    `json:"title"`
	Author    string    `json:"author"`
	Cover     *string   `json:"cover,omitempty"`
	Source    string    `json:"source"`
	URL       string    `json:"url"`
	DateAdded time.Time `json:"dateAdded"`
	UpdatedAt time.Time `json:"updatedAt"`
	FileHash  string    `json:"fileHash"`
}

// ReadingProgressData is the wire form of per-book reading position.
type ReadingProgressData struct {
	BookID       string    `json:"bookId"`
	ChapterID    string    `json:"chapterId"`
	ChapterIndex int       `json:"chapterIndex"`
	Offset       int       `json:"offset"`
	Progress     float64   `json:"progress"`
	LastReadAt   time.Time `json:"lastReadAt"`
}

// BookmarkData is the wire form of one bookmark.
type BookmarkData struct {
	BookmarkID string    `json:"bookmarkId"`
	BookID     string    `json:"bookId"`
	ChapterID  string    `json:"chapterId"`
	Position   int       `json:"position"`
	Note       *string   `json:"note,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// SyncMetadata identifies and fingerprints a snapshot.
type SyncMetadata struct {
	DeviceID  string    `json:"deviceId"`
	Timestamp time.Time `json:"timestamp"`
	Version   int       `json:"version"`
	Checksum  string    `json:"checksum"`
}

// SyncData is the full reconciliation snapshot considered during one sync
// attempt. Snapshots are built fresh per attempt and discarded afterward.
type SyncData struct {
	Books           []BookSyncData        `json:"books"`
	ReadingProgress []ReadingProgressData `json:"readingProgress"`
	Bookmarks       []BookmarkData        `json:"bookmarks"`
	Metadata        SyncMetadata          `json:"metadata"`
}

// SyncDataVersion is the current snapshot format version.
const SyncDataVersion = 1

// Checksum fingerprints the snapshot contents (metadata excluded, since the
// checksum itself lives there).
func (d *SyncData) Checksum() string {
	payload := struct {
		Books           []BookSyncData        `json:"books"`
		ReadingProgress []ReadingProgressData `json:"readingProgress"`
		Bookmarks       []BookmarkData        `json:"bookmarks"`
	}{d.Books, d.ReadingProgress, d.Bookmarks}

	raw, err := json.Marshal(payload)
	if err != nil {
		// Marshalling plain data structs cannot fail; keep the signature clean.
		return ""
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// Validate checks natural-key uniqueness within the snapshot.
func (d *SyncData) Validate() error {
	books := make(map[string]struct{}, len(d.Books))
	for _, b := range d.Books {
		if _, dup := books[b.BookID]; dup {
			return fmt.Errorf("duplicate book id %q in snapshot", b.BookID)
		}
		books[b.BookID] = struct{}{}
	}

	progress := make(map[string]struct{}, len(d.ReadingProgress))
	for _, p := range d.ReadingProgress {
		if _, dup := progress[p.BookID]; dup {
			return fmt.Errorf("duplicate reading progress for book %q in snapshot", p.BookID)
		}
		progress[p.BookID] = struct{}{}
	}

	bookmarks := make(map[string]struct{}, len(d.Bookmarks))
	for _, bm := range d.Bookmarks {
		if _, dup := bookmarks[bm.BookmarkID]; dup {
			return fmt.Errorf("duplicate bookmark id %q in snapshot", bm.BookmarkID)
		}
		bookmarks[bm.BookmarkID] = struct{}{}
	}

	return nil
}
