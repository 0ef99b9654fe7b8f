package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/quillread/peersync-go/internal/errors"
	"github.com/quillread/peersync-go/internal/model"
	"github.com/quillread/peersync-go/internal/repository"
)

// mergeWorkers bounds the parallelism of the account merge batch.
const mergeWorkers = 4

// RemoteRepository is the account service's sync API.
type RemoteRepository interface {
	GetCurrentUser(ctx context.Context) (*model.User, error)
	GetSyncedBooks(ctx context.Context, userID string) ([]model.SyncedBook, error)
	SyncBook(ctx context.Context, userID string, book model.SyncedBook) error
}

// BookCatalog fetches full book details from a book's source. Implemented by
// the reading app proper; the sync daemon only consumes it.
type BookCatalog interface {
	FetchBookDetails(ctx context.Context, source, url string) (*model.Book, error)
}

// AccountSyncService merges the account service's book list into the local
// library. The account path is an optional enhancement: availability and
// authentication checks fail closed instead of surfacing errors.
type AccountSyncService struct {
	remote  RemoteRepository // nil when no account endpoint is configured
	catalog BookCatalog
	library repository.LibraryRepository
	now     func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewAccountSyncService(remote RemoteRepository, catalog BookCatalog, library repository.LibraryRepository) *AccountSyncService {
	return &AccountSyncService{
		remote:  remote,
		catalog: catalog,
		library: library,
		now:     time.Now,
		locks:   make(map[string]*sync.Mutex),
	}
}

// CheckSyncAvailability reports whether account sync can run at all.
func (s *AccountSyncService) CheckSyncAvailability() bool {
	return s.remote != nil
}

// IsUserAuthenticated reports whether the account service recognizes us.
// Every failure mode reads as "not authenticated".
func (s *AccountSyncService) IsUserAuthenticated(ctx context.Context) bool {
	if s.remote == nil {
		return false
	}
	user, err := s.remote.GetCurrentUser(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("current-user lookup failed")
		return false
	}
	return user != nil
}

// CurrentUser returns the authenticated account user, nil when there is none.
func (s *AccountSyncService) CurrentUser(ctx context.Context) (*model.User, error) {
	if s.remote == nil {
		return nil, nil
	}
	user, err := s.remote.GetCurrentUser(ctx)
	if err != nil {
		return nil, apperrors.External("account", err)
	}
	return user, nil
}

// FetchAndMergeSyncedBooks pulls the user's synced book list and folds it
// into the local library. Books process in parallel, but writes to any one
// book's record are serialized so concurrent duplicates cannot race each
// other into lost updates. A failing book counts as an error and the batch
// moves on.
func (s *AccountSyncService) FetchAndMergeSyncedBooks(ctx context.Context, userID string) (*model.MergeResult, error) {
	if s.remote == nil {
		return nil, apperrors.New(apperrors.ErrCodeExternal, "account sync is not configured")
	}

	synced, err := s.remote.GetSyncedBooks(ctx, userID)
	if err != nil {
		return nil, apperrors.External("account", err)
	}

	result := &model.MergeResult{Total: len(synced)}
	var resultMu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(mergeWorkers)

	for _, book := range synced {
		book := book
		g.Go(func() error {
			outcome, err := s.mergeOne(ctx, book)

			resultMu.Lock()
			defer resultMu.Unlock()
			if err != nil {
				log.Warn().Err(err).Str("bookId", book.BookID).Msg("failed to merge synced book")
				result.Errors++
				return nil
			}
			switch outcome {
			case mergeAdded, mergeRestored:
				result.Added++
			case mergeSkipped:
				result.Skipped++
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	log.Info().
		Int("total", result.Total).
		Int("added", result.Added).
		Int("skipped", result.Skipped).
		Int("errors", result.Errors).
		Msg("account merge finished")

	return result, nil
}

type mergeOutcome int

const (
	mergeSkipped mergeOutcome = iota
	mergeRestored
	mergeAdded
)

func (s *AccountSyncService) mergeOne(ctx context.Context, synced model.SyncedBook) (mergeOutcome, error) {
	unlock := s.lockBook(synced.BookID)
	defer unlock()

	local, err := s.library.GetBook(ctx, synced.BookID)
	if err != nil {
		return mergeSkipped, err
	}

	switch {
	case local != nil && local.IsFavorite:
		return mergeSkipped, nil

	case local != nil:
		if err := s.library.MarkFavorite(ctx, synced.BookID, s.now()); err != nil {
			return mergeSkipped, err
		}
		return mergeRestored, nil

	default:
		details, err := s.catalog.FetchBookDetails(ctx, synced.Source, synced.URL)
		if err != nil {
			return mergeSkipped, err
		}
		now := s.now()
		details.BookID = synced.BookID
		details.IsFavorite = true
		details.DateAdded = now
		details.UpdatedAt = now
		if err := s.library.InsertBook(ctx, *details); err != nil {
			return mergeSkipped, err
		}
		return mergeAdded, nil
	}
}

// PushBook records a local book as synced under the user's account.
func (s *AccountSyncService) PushBook(ctx context.Context, userID, bookID string) error {
	if s.remote == nil {
		return apperrors.New(apperrors.ErrCodeExternal, "account sync is not configured")
	}

	book, err := s.library.GetBook(ctx, bookID)
	if err != nil {
		return apperrors.Database(err)
	}
	if book == nil {
		return apperrors.NotFound("book")
	}

	err = s.remote.SyncBook(ctx, userID, model.SyncedBook{
		BookID: book.BookID,
		Title:  book.Title,
		Author: book.Author,
		Source: book.Source,
		URL:    book.URL,
	})
	if err != nil {
		return apperrors.External("account", err)
	}
	return nil
}

// lockBook serializes writes per logical book record.
func (s *AccountSyncService) lockBook(bookID string) func() {
	s.mu.Lock()
	lock, ok := s.locks[bookID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[bookID] = lock
	}
	s.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
