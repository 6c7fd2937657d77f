package bankroll

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/laurentRibous/poker-bankroll-tracker/internal/calendar"
)

// Store is the minimal durable-storage contract the ledger core consumes.
// Every mutating method is atomic: the record write and its audit entries
// either all persist or none do. Implementations live in internal/store.
type Store interface {
	// CreateAccount persists a new account and returns it with its
	// assigned id. A name collision yields ErrDuplicateAccount.
	CreateAccount(ctx context.Context, a Account) (Account, error)

	// GetAccount looks an account up by its unique name.
	GetAccount(ctx context.Context, name string) (Account, error)

	// ListAccounts returns all accounts ordered by name.
	ListAccounts(ctx context.Context) ([]Account, error)

	// UpsertSession applies the upsert-by-date protocol for the
	// (accountID, date) key: create when absent, otherwise add
	// tournaments and flow to the stored values and overwrite balance.
	// It returns the resulting row and whether it was created.
	UpsertSession(ctx context.Context, accountID string, date calendar.Date,
		tournaments int, flow, balance decimal.Decimal) (Session, bool, error)

	// GetSession looks a session up by id.
	GetSession(ctx context.Context, id string) (Session, error)

	// ListSessions returns an account's sessions ordered by date.
	// A zero from date means no lower bound.
	ListSessions(ctx context.Context, accountID string, from calendar.Date) ([]Session, error)

	// UpdateSession overwrites a session row after capturing its prior
	// state into the audit trail. Moving the session onto a date already
	// taken for the account yields ErrConflict.
	UpdateSession(ctx context.Context, s Session) error

	// DeleteSession removes one session, capturing it into the audit
	// trail first.
	DeleteSession(ctx context.Context, id string) error

	// DeleteAccount removes an account and all its sessions in one
	// atomic unit, writing one audit entry for the account followed by
	// one per session in date order. It returns the number of sessions
	// removed.
	DeleteAccount(ctx context.Context, accountID string) (int, error)

	// CorrectInitial rewrites an account's paired (initial balance,
	// start date) baseline, logged as UPDATE_INITIAL.
	CorrectInitial(ctx context.Context, accountID string, balance decimal.Decimal, start calendar.Date) error

	// AuditTrail returns every audit entry in append order.
	AuditTrail(ctx context.Context) ([]AuditEntry, error)
}
