// Package bankroll implements the bankroll ledger core: record types, the
// reconciliation engine that turns sparse sessions into a dense daily
// series, period aggregation, and the audited mutation protocol.
package bankroll

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/laurentRibous/poker-bankroll-tracker/internal/calendar"
)

// Account is an independently tracked bankroll with its own start date and
// initial balance.
type Account struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
	StartDate      calendar.Date   `json:"start_date"`
}

// Session records one calendar day's activity for one account: the number
// of tournaments played, the signed deposit/withdrawal flow, and the
// measured end-of-day balance. At most one session exists per
// (account, date).
type Session struct {
	ID          string          `json:"id"`
	AccountID   string          `json:"account_id"`
	Date        calendar.Date   `json:"date"`
	Tournaments int             `json:"tournaments"`
	Flow        decimal.Decimal `json:"flow"`
	Balance     decimal.Decimal `json:"balance"`
}

// ReconciledDay is one derived entry of the gap-filled daily series. It is
// recomputed on every read and never persisted.
type ReconciledDay struct {
	Date        calendar.Date
	Balance     decimal.Decimal // forward-filled end-of-day balance
	Flow        decimal.Decimal
	Tournaments int
	PrevBalance decimal.Decimal // prior day's filled balance (initial balance on day one)
	Profit      decimal.Decimal // (Balance - Flow) - PrevBalance
}

// AuditAction identifies the kind of mutation an audit entry records.
type AuditAction string

const (
	ActionCreate        AuditAction = "CREATE"
	ActionUpdate        AuditAction = "UPDATE"
	ActionDelete        AuditAction = "DELETE"
	ActionDeleteCascade AuditAction = "DELETE_CASCADE"
	ActionUpdateInitial AuditAction = "UPDATE_INITIAL"
)

// Sentinels for the old/new sides of an audit entry when no record state
// exists on that side.
const (
	AuditAbsent  = "ABSENT"  // old side of a CREATE
	AuditDeleted = "DELETED" // new side of a DELETE / DELETE_CASCADE
)

// AuditEntry is one immutable record of a mutation. Entries are hash-chained:
// Hash covers PrevHash, the timestamp and the entry payload, so any
// retroactive edit of the trail is detectable.
type AuditEntry struct {
	ID       int64
	Table    string
	RecordID string
	OldValue string
	NewValue string
	Time     time.Time
	Action   AuditAction
	PrevHash string
	Hash     string
}
