package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/quillread/peersync-go/internal/model"
)

type LibraryRepository interface {
	GetBook(ctx context.Context, bookID string) (*model.Book, error)
	ListBooks(ctx context.Context) ([]model.Book, error)
	InsertBook(ctx context.Context, book model.Book) error
	UpsertBook(ctx context.Context, book model.Book) error
	MarkFavorite(ctx context.Context, bookID string, dateAdded time.Time) error
	ListReadingProgress(ctx context.Context) ([]model.ReadingProgress, error)
	UpsertReadingProgress(ctx context.Context, progress model.ReadingProgress) error
	ListBookmarks(ctx context.Context) ([]model.Bookmark, error)
	UpsertBookmark(ctx context.Context, bookmark model.Bookmark) error
}

type libraryRepo struct {
	db *sqlx.DB
}

func NewLibraryRepository(db *sqlx.DB) LibraryRepository {
	return &libraryRepo{db: db}
}

func (r *libraryRepo) GetBook(ctx context.Context, bookID string) (*model.Book, error) {
	var book model.Book
	err := r.db.GetContext(ctx, &book, `
		SELECT * FROM books WHERE book_id = $1
	`, bookID)
	return HandleNotFound(&book, err)
}

func (r *libraryRepo) ListBooks(ctx context.Context) ([]model.Book, error) {
	var books []model.Book
	err := r.db.SelectContext(ctx, &books, `
		SELECT * FROM books ORDER BY date_added
	`)
	return books, err
}

func (r *libraryRepo) InsertBook(ctx context.Context, book model.Book) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO books (book_id, title, author, cover, source, url, file_hash, is_favorite, date_added, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, book.BookID, book.Title, book.Author, book.Cover, book.Source, book.URL,
		book.FileHash, book.IsFavorite, book.DateAdded, book.UpdatedAt)
	return err
}

// UpsertBook inserts or replaces a book's metadata. date_added and
// is_favorite keep their local values on update; incoming snapshots do not
// get to re-shelve or un-favorite local books.
func (r *libraryRepo) UpsertBook(ctx context.Context, book model.Book) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO books (book_id, title, author, cover, source, url, file_hash, is_favorite, date_added, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (book_id) DO UPDATE SET
			title = excluded.title,
			author = excluded.author,
			cover = excluded.cover,
			source = excluded.source,
			url = excluded.url,
			file_hash = excluded.file_hash,
			updated_at = excluded.updated_at
	`, book.BookID, book.Title, book.Author, book.Cover, book.Source, book.URL,
		book.FileHash, book.IsFavorite, book.DateAdded, book.UpdatedAt)
	return err
}

// MarkFavorite restores a book into the visible library, bumping date_added
// so it surfaces as recently re-added.
func (r *libraryRepo) MarkFavorite(ctx context.Context, bookID string, dateAdded time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE books SET
			is_favorite = TRUE,
			date_added = $2,
			updated_at = $2
		WHERE book_id = $1
	`, bookID, dateAdded)
	return err
}

func (r *libraryRepo) ListReadingProgress(ctx context.Context) ([]model.ReadingProgress, error) {
	var progress []model.ReadingProgress
	err := r.db.SelectContext(ctx, &progress, `
		SELECT * FROM reading_progress ORDER BY book_id
	`)
	return progress, err
}

func (r *libraryRepo) UpsertReadingProgress(ctx context.Context, progress model.ReadingProgress) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO reading_progress (book_id, chapter_id, chapter_index, "offset", progress, last_read_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (book_id) DO UPDATE SET
			chapter_id = excluded.chapter_id,
			chapter_index = excluded.chapter_index,
			"offset" = excluded."offset",
			progress = excluded.progress,
			last_read_at = excluded.last_read_at
	`, progress.BookID, progress.ChapterID, progress.ChapterIndex, progress.Offset,
		progress.Progress, progress.LastReadAt)
	return err
}

func (r *libraryRepo) ListBookmarks(ctx context.Context) ([]model.Bookmark, error) {
	var bookmarks []model.Bookmark
	err := r.db.SelectContext(ctx, &bookmarks, `
		SELECT * FROM bookmarks ORDER BY created_at
	`)
	return bookmarks, err
}

func (r *libraryRepo) UpsertBookmark(ctx context.Context, bookmark model.Bookmark) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO bookmarks (bookmark_id, book_id, chapter_id, position, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (bookmark_id) DO UPDATE SET
			chapter_id = excluded.chapter_id,
			position = excluded.position,
			note = excluded.note,
			created_at = excluded.created_at
	`, bookmark.BookmarkID, bookmark.BookID, bookmark.ChapterID, bookmark.Position,
		bookmark.Note, bookmark.CreatedAt)
	return err
}
