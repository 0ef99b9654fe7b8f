package model

type ConflictType string

const (
	ConflictReadingProgress ConflictType = "reading_progress"
	ConflictBookmark        ConflictType = "bookmark"
	ConflictBookMetadata    ConflictType = "book_metadata"
)

type ResolutionStrategy string

// ValidStrategy reports whether s names a known resolution strategy.
func ValidStrategy(s ResolutionStrategy) bool {
	switch s {
	case ResolveLocalWins, ResolveRemoteWins, ResolveLatestTimestamp, ResolveMerge, ResolveManual:
		return true
	}
	return false
}

const (
	ResolveLocalWins       ResolutionStrategy = "local_wins"
	ResolveRemoteWins      ResolutionStrategy = "remote_wins"
	ResolveLatestTimestamp ResolutionStrategy = "latest_timestamp"
	ResolveMerge           ResolutionStrategy = "merge"
	ResolveManual          ResolutionStrategy = "manual"
)

// DataConflict pairs the local and remote versions of one logical record
// that diverged on both sides. Local and Remote always hold the same
// concrete type, matching Type; the accessors below give resolvers typed
// access without scattered casts.
type DataConflict struct {
	Type   ConflictType `json:"conflictType"`
	Local  any          `json:"localData"`
	Remote any          `json:"remoteData"`
	Field  string       `json:"conflictField"`
}

func (c *DataConflict) ReadingProgress() (local, remote ReadingProgressData, ok bool) {
	local, lok := c.Local.(ReadingProgressData)
	remote, rok := c.Remote.(ReadingProgressData)
	return local, remote, lok && rok
}

func (c *DataConflict) Bookmark() (local, remote BookmarkData, ok bool) {
	local, lok := c.Local.(BookmarkData)
	remote, rok := c.Remote.(BookmarkData)
	return local, remote, lok && rok
}

func (c *DataConflict) Book() (local, remote BookSyncData, ok bool) {
	local, lok := c.Local.(BookSyncData)
	remote, rok := c.Remote.(BookSyncData)
	return local, remote, lok && rok
}
