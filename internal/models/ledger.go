package models

import "time"

type LedgerKind string

const (
	LedgerKindDebit  LedgerKind = "debit"
	LedgerKindRefund LedgerKind = "refund"
	LedgerKindGrant  LedgerKind = "grant"
)

// LedgerEntry records one balance movement. Amount is always positive; Kind
// determines direction. At most one refund row may exist per job.
type LedgerEntry struct {
	ID           string
	UserID       string
	JobID        *string
	Kind         LedgerKind
	Reason       string
	Amount       int64
	BalanceAfter int64
	CreatedAt    time.Time
}
