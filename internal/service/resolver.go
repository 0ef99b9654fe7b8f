package service

import (
	"time"

	apperrors "github.com/quillread/peersync-go/internal/errors"
	"github.com/quillread/peersync-go/internal/model"
)

// ConflictResolver applies a resolution strategy to detected conflicts,
// yielding one winning record per conflict in input order.
type ConflictResolver struct{}

func NewConflictResolver() *ConflictResolver {
	return &ConflictResolver{}
}

// Resolve picks a winner for each conflict. An empty conflict list succeeds
// under every strategy, including manual. The manual strategy never resolves
// anything: with a non-empty list it fails before touching the first
// conflict, so callers can surface the whole set to the user.
func (r *ConflictResolver) Resolve(conflicts []model.DataConflict, strategy model.ResolutionStrategy) ([]any, error) {
	if len(conflicts) == 0 {
		return []any{}, nil
	}

	if strategy == model.ResolveManual {
		return nil, apperrors.ManualResolutionRequired(len(conflicts))
	}

	resolved := make([]any, 0, len(conflicts))
	for _, conflict := range conflicts {
		winner, err := r.resolveOne(conflict, strategy)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, winner)
	}
	return resolved, nil
}

func (r *ConflictResolver) resolveOne(conflict model.DataConflict, strategy model.ResolutionStrategy) (any, error) {
	switch strategy {
	case model.ResolveLocalWins:
		return conflict.Local, nil
	case model.ResolveRemoteWins:
		return conflict.Remote, nil
	case model.ResolveLatestTimestamp:
		return r.resolveLatest(conflict)
	case model.ResolveMerge:
		return r.resolveMerge(conflict)
	default:
		return nil, apperrors.InvalidInput("strategy", string(strategy))
	}
}

// resolveLatest compares the type's authoritative timestamp. Ties favor
// local: syncing identical clocks should never import the remote copy.
func (r *ConflictResolver) resolveLatest(conflict model.DataConflict) (any, error) {
	localTS, remoteTS, err := authoritativeTimestamps(conflict)
	if err != nil {
		return nil, err
	}
	if localTS.Before(remoteTS) {
		return conflict.Remote, nil
	}
	return conflict.Local, nil
}

// resolveMerge field-merges where that is meaningful. Reading progress keeps
// whichever side read further; bookmarks and book metadata have no sensible
// field merge and fall back to the latest-timestamp rule.
func (r *ConflictResolver) resolveMerge(conflict model.DataConflict) (any, error) {
	if conflict.Type != model.ConflictReadingProgress {
		return r.resolveLatest(conflict)
	}

	local, remote, ok := conflict.ReadingProgress()
	if !ok {
		return nil, apperrors.ValidationError("reading progress conflict carries mismatched payload types")
	}

	if remote.ChapterIndex > local.ChapterIndex {
		return remote, nil
	}
	if remote.ChapterIndex == local.ChapterIndex && remote.Offset > local.Offset {
		return remote, nil
	}
	return local, nil
}

func authoritativeTimestamps(conflict model.DataConflict) (local, remote time.Time, err error) {
	switch conflict.Type {
	case model.ConflictReadingProgress:
		l, r, ok := conflict.ReadingProgress()
		if !ok {
			return time.Time{}, time.Time{}, apperrors.ValidationError("reading progress conflict carries mismatched payload types")
		}
		return l.LastReadAt, r.LastReadAt, nil
	case model.ConflictBookmark:
		l, r, ok := conflict.Bookmark()
		if !ok {
			return time.Time{}, time.Time{}, apperrors.ValidationError("bookmark conflict carries mismatched payload types")
		}
		return l.CreatedAt, r.CreatedAt, nil
	case model.ConflictBookMetadata:
		l, r, ok := conflict.Book()
		if !ok {
			return time.Time{}, time.Time{}, apperrors.ValidationError("book metadata conflict carries mismatched payload types")
		}
		return l.UpdatedAt, r.UpdatedAt, nil
	default:
		return time.Time{}, time.Time{}, apperrors.InvalidInput("conflictType", string(conflict.Type))
	}
}
