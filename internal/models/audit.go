package models

import "time"

type AuditEntry struct {
	ID        string
	UserID    string
	Action    string
	TargetID  string
	Detail    string
	CreatedAt time.Time
}
