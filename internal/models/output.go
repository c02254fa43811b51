package models

import "time"

type OutputType string

const (
	OutputTypeImage OutputType = "image"
	OutputTypeVideo OutputType = "video"
)

// OutputState is the full lifecycle of a generated asset. Removed assets are
// invisible to every read path except the audit log.
type OutputState string

const (
	// OutputStateActive is the default transient state; the retention sweep
	// may reclaim storage once the asset ages past the configured horizon.
	OutputStateActive OutputState = "active"
	// OutputStatePersisted means the owner pinned the asset, optionally with
	// a deadline in PersistUntil (nil = indefinite).
	OutputStatePersisted OutputState = "persisted"
	OutputStateRemoved   OutputState = "removed"
)

type OutputAsset struct {
	ID           string
	JobID        string
	Type         OutputType
	Bucket       string
	ObjectKey    string
	URL          string
	State        OutputState
	PersistUntil *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
