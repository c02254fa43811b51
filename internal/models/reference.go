package models

import "time"

// ReferenceImage is a reusable image: an uploaded avatar or a saved
// generation output. When derived from an output it shares the same object
// key; no bytes are copied.
type ReferenceImage struct {
	ID             string
	UserID         string
	SourceOutputID *string
	Bucket         string
	ObjectKey      string
	URL            string
	IsAvatar       bool
	CreatedAt      time.Time
}
