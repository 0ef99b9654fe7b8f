package model

import "time"

// Book is a local library record. IsFavorite marks membership in the user's
// library proper; non-favorite rows are retained history (e.g. removed books
// whose progress we still know about).
type Book struct {
	BookID     string    `db:"book_id" json:"bookId"`
	Title      string    `db:"title" json:"title"`
	Author     string    `db:"author" json:"author"`
	Cover      *string   `db:"cover" json:"cover,omitempty"`
	Source     string    `db:"source" json:"source"`
	URL        string    `db:"url" json:"url"`
	FileHash   string    `db:"file_hash" json:"fileHash"`
	IsFavorite bool      `db:"is_favorite" json:"isFavorite"`
	DateAdded  time.Time `db:"date_added" json:"dateAdded"`
	UpdatedAt  time.Time `db:"updated_at" json:"updatedAt"`
}

// SyncedBook is the account service's record of a book synced under a user.
type SyncedBook struct {
	BookID string `json:"bookId"`
	Title  string `json:"title"`
	Author string `json:"author"`
	Source string `json:"source"`
	URL    string `json:"url"`
}

// User is the account service's current-user payload.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// ReadingProgress is the local store's per-book reading position row.
type ReadingProgress struct {
	BookID       string    `db:"book_id" json:"bookId"`
	ChapterID    string    `db:"chapter_id" json:"chapterId"`
	ChapterIndex int       `db:"chapter_index" json:"chapterIndex"`
	Offset       int       `db:"offset" json:"offset"`
	Progress     float64   `db:"progress" json:"progress"`
	LastReadAt   time.Time `db:"last_read_at" json:"lastReadAt"`
}

// Bookmark is the local store's bookmark row.
type Bookmark struct {
	BookmarkID string    `db:"bookmark_id" json:"bookmarkId"`
	BookID     string    `db:"book_id" json:"bookId"`
	ChapterID  string    `db:"chapter_id" json:"chapterId"`
	Position   int       `db:"position" json:"position"`
	Note       *string   `db:"note" json:"note,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}
