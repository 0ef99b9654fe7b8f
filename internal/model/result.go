package model

import "time"

// SyncResult is the outcome of one completed pairwise sync.
type SyncResult struct {
	DeviceID          string    `json:"deviceId"`
	ItemsTransferred  int       `json:"itemsTransferred"`
	ItemsMerged       int       `json:"itemsMerged"`
	ConflictsResolved int       `json:"conflictsResolved"`
	Warnings          []string  `json:"warnings,omitempty"`
	CompletedAt       time.Time `json:"completedAt"`
}

// MergeResult aggregates the outcome of a synced-books merge batch.
type MergeResult struct {
	Total   int `json:"total"`
	Added   int `json:"added"`
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`
}
