package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/laurentRibous/poker-bankroll-tracker/internal/bankroll"
	"github.com/laurentRibous/poker-bankroll-tracker/internal/calendar"
	"github.com/laurentRibous/poker-bankroll-tracker/pkg/audit"
)

// uniqueViolation is the PostgreSQL error code for a unique constraint
// breach, the signature of two writers racing on the same key.
const uniqueViolation = "23505"

// auditChainLockID keys the advisory lock that serializes audit chain
// appends across connections.
const auditChainLockID = int64(0x62616e6b726f6c6c)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS accounts (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL UNIQUE,
	initial_balance TEXT NOT NULL,
	start_date      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
	id          TEXT PRIMARY KEY,
	account_id  TEXT NOT NULL REFERENCES accounts(id),
	date        TEXT NOT NULL,
	tournaments INTEGER NOT NULL DEFAULT 0,
	flow        TEXT NOT NULL,
	balance     TEXT NOT NULL,
	UNIQUE(account_id, date)
);

CREATE INDEX IF NOT EXISTS idx_sessions_account_date ON sessions(account_id, date);

CREATE TABLE IF NOT EXISTS audit_log (
	id         BIGSERIAL PRIMARY KEY,
	table_name TEXT NOT NULL,
	record_id  TEXT NOT NULL,
	old_value  TEXT NOT NULL,
	new_value  TEXT NOT NULL,
	edit_time  TEXT NOT NULL,
	action     TEXT NOT NULL,
	prev_hash  TEXT NOT NULL,
	hash       TEXT NOT NULL
);
`

// Postgres is the PostgreSQL Ledger Store. Row locking (SELECT ... FOR
// UPDATE) makes the upsert's check-then-merge-then-write sequence atomic
// per (account, date) key; a unique-violation on insert means another
// writer won the race and surfaces as a conflict.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to PostgreSQL and ensures the schema exists.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close closes the connection pool.
func (p *Postgres) Close() { p.pool.Close() }

// CreateAccount inserts a new account and its CREATE audit entry.
func (p *Postgres) CreateAccount(ctx context.Context, a bankroll.Account) (bankroll.Account, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return bankroll.Account{}, fmt.Errorf("%w: begin: %v", bankroll.ErrIntegrity, err)
	}
	defer tx.Rollback(ctx)

	a.ID = uuid.New().String()
	_, err = tx.Exec(ctx, `
		INSERT INTO accounts (id, name, initial_balance, start_date)
		VALUES ($1, $2, $3, $4)
	`, a.ID, a.Name, a.InitialBalance.String(), a.StartDate.String())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return bankroll.Account{}, fmt.Errorf("%w: %q", bankroll.ErrDuplicateAccount, a.Name)
		}
		return bankroll.Account{}, fmt.Errorf("%w: insert account: %v", bankroll.ErrIntegrity, err)
	}

	snapshot, err := accountSnapshot(a)
	if err != nil {
		return bankroll.Account{}, fmt.Errorf("%w: %v", bankroll.ErrIntegrity, err)
	}
	if err := p.appendAudit(ctx, tx, "accounts", a.ID, bankroll.AuditAbsent, snapshot, bankroll.ActionCreate); err != nil {
		return bankroll.Account{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return bankroll.Account{}, fmt.Errorf("%w: commit: %v", bankroll.ErrIntegrity, err)
	}
	return a, nil
}

// GetAccount looks an account up by name.
func (p *Postgres) GetAccount(ctx context.Context, name string) (bankroll.Account, error) {
	acct, err := scanAccount(p.pool.QueryRow(ctx, `
		SELECT id, name, initial_balance, start_date FROM accounts WHERE name = $1
	`, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return bankroll.Account{}, fmt.Errorf("%w: account %q", bankroll.ErrNotFound, name)
	}
	return acct, err
}

// ListAccounts returns all accounts ordered by name.
func (p *Postgres) ListAccounts(ctx context.Context) ([]bankroll.Account, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, name, initial_balance, start_date FROM accounts ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []bankroll.Account
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acct)
	}
	return accounts, rows.Err()
}

// UpsertSession creates or additively merges the session for the
// (accountID, date) key. The existing row is locked FOR UPDATE so
// concurrent upserts to the same key cannot interleave into a lost update.
func (p *Postgres) UpsertSession(ctx context.Context, accountID string, date calendar.Date,
	tournaments int, flow, balance decimal.Decimal) (bankroll.Session, bool, error) {

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return bankroll.Session{}, false, fmt.Errorf("%w: begin: %v", bankroll.ErrIntegrity, err)
	}
	defer tx.Rollback(ctx)

	prior, err := scanSession(tx.QueryRow(ctx, `
		SELECT id, account_id, date, tournaments, flow, balance
		FROM sessions WHERE account_id = $1 AND date = $2
		FOR UPDATE
	`, accountID, date.String()))

	var result bankroll.Session
	created := false
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		created = true
		result = bankroll.Session{
			ID:          uuid.New().String(),
			AccountID:   accountID,
			Date:        date,
			Tournaments: tournaments,
			Flow:        flow,
			Balance:     balance,
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO sessions (id, account_id, date, tournaments, flow, balance)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, result.ID, result.AccountID, result.Date.String(), result.Tournaments,
			result.Flow.String(), result.Balance.String())
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return bankroll.Session{}, false, fmt.Errorf("%w: concurrent upsert on %s", bankroll.ErrConflict, date)
			}
			return bankroll.Session{}, false, fmt.Errorf("%w: insert session: %v", bankroll.ErrIntegrity, err)
		}
		snapshot, err := sessionSnapshot(result)
		if err != nil {
			return bankroll.Session{}, false, fmt.Errorf("%w: %v", bankroll.ErrIntegrity, err)
		}
		if err := p.appendAudit(ctx, tx, "sessions", result.ID, bankroll.AuditAbsent, snapshot, bankroll.ActionCreate); err != nil {
			return bankroll.Session{}, false, err
		}

	case err != nil:
		return bankroll.Session{}, false, fmt.Errorf("%w: read session: %v", bankroll.ErrIntegrity, err)

	default:
		oldSnapshot, err := sessionSnapshot(prior)
		if err != nil {
			return bankroll.Session{}, false, fmt.Errorf("%w: %v", bankroll.ErrIntegrity, err)
		}
		result = prior
		result.Tournaments += tournaments
		result.Flow = result.Flow.Add(flow)
		result.Balance = balance
		_, err = tx.Exec(ctx, `
			UPDATE sessions SET tournaments = $1, flow = $2, balance = $3 WHERE id = $4
		`, result.Tournaments, result.Flow.String(), result.Balance.String(), result.ID)
		if err != nil {
			return bankroll.Session{}, false, fmt.Errorf("%w: merge session: %v", bankroll.ErrIntegrity, err)
		}
		newSnapshot, err := sessionSnapshot(result)
		if err != nil {
			return bankroll.Session{}, false, fmt.Errorf("%w: %v", bankroll.ErrIntegrity, err)
		}
		if err := p.appendAudit(ctx, tx, "sessions", result.ID, oldSnapshot, newSnapshot, bankroll.ActionUpdate); err != nil {
			return bankroll.Session{}, false, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return bankroll.Session{}, false, fmt.Errorf("%w: commit: %v", bankroll.ErrIntegrity, err)
	}
	return result, created, nil
}

// GetSession looks a session up by id.
func (p *Postgres) GetSession(ctx context.Context, id string) (bankroll.Session, error) {
	sess, err := scanSession(p.pool.QueryRow(ctx, `
		SELECT id, account_id, date, tournaments, flow, balance FROM sessions WHERE id = $1
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return bankroll.Session{}, fmt.Errorf("%w: session %s", bankroll.ErrNotFound, id)
	}
	return sess, err
}

// ListSessions returns an account's sessions ordered by date. A zero from
// date means no lower bound.
func (p *Postgres) ListSessions(ctx context.Context, accountID string, from calendar.Date) ([]bankroll.Session, error) {
	query := `
		SELECT id, account_id, date, tournaments, flow, balance
		FROM sessions WHERE account_id = $1
	`
	args := []interface{}{accountID}
	if !from.IsZero() {
		query += " AND date >= $2"
		args = append(args, from.String())
	}
	query += " ORDER BY date"

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []bankroll.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// UpdateSession overwrites a session row, capturing the prior row into the
// audit trail first.
func (p *Postgres) UpdateSession(ctx context.Context, sess bankroll.Session) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", bankroll.ErrIntegrity, err)
	}
	defer tx.Rollback(ctx)

	prior, err := scanSession(tx.QueryRow(ctx, `
		SELECT id, account_id, date, tournaments, flow, balance
		FROM sessions WHERE id = $1 FOR UPDATE
	`, sess.ID))
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: session %s", bankroll.ErrNotFound, sess.ID)
	}
	if err != nil {
		return fmt.Errorf("%w: read session: %v", bankroll.ErrIntegrity, err)
	}

	oldSnapshot, err := sessionSnapshot(prior)
	if err != nil {
		return fmt.Errorf("%w: %v", bankroll.ErrIntegrity, err)
	}
	newSnapshot, err := sessionSnapshot(sess)
	if err != nil {
		return fmt.Errorf("%w: %v", bankroll.ErrIntegrity, err)
	}
	if err := p.appendAudit(ctx, tx, "sessions", sess.ID, oldSnapshot, newSnapshot, bankroll.ActionUpdate); err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		UPDATE sessions SET date = $1, tournaments = $2, flow = $3, balance = $4 WHERE id = $5
	`, sess.Date.String(), sess.Tournaments, sess.Flow.String(), sess.Balance.String(), sess.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: a session already exists for %s", bankroll.ErrConflict, sess.Date)
		}
		return fmt.Errorf("%w: update session: %v", bankroll.ErrIntegrity, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit: %v", bankroll.ErrIntegrity, err)
	}
	return nil
}

// DeleteSession removes one session after capturing it into the audit
// trail.
func (p *Postgres) DeleteSession(ctx context.Context, id string) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", bankroll.ErrIntegrity, err)
	}
	defer tx.Rollback(ctx)

	prior, err := scanSession(tx.QueryRow(ctx, `
		SELECT id, account_id, date, tournaments, flow, balance
		FROM sessions WHERE id = $1 FOR UPDATE
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: session %s", bankroll.ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("%w: read session: %v", bankroll.ErrIntegrity, err)
	}

	snapshot, err := sessionSnapshot(prior)
	if err != nil {
		return fmt.Errorf("%w: %v", bankroll.ErrIntegrity, err)
	}
	if err := p.appendAudit(ctx, tx, "sessions", id, snapshot, bankroll.AuditDeleted, bankroll.ActionDelete); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, "DELETE FROM sessions WHERE id = $1", id); err != nil {
		return fmt.Errorf("%w: delete session: %v", bankroll.ErrIntegrity, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit: %v", bankroll.ErrIntegrity, err)
	}
	return nil
}

// DeleteAccount removes an account and all its sessions in one transaction:
// one audit entry for the account, then one DELETE_CASCADE entry per
// session in date order.
func (p *Postgres) DeleteAccount(ctx context.Context, accountID string) (int, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: begin: %v", bankroll.ErrIntegrity, err)
	}
	defer tx.Rollback(ctx)

	acct, err := scanAccount(tx.QueryRow(ctx, `
		SELECT id, name, initial_balance, start_date FROM accounts WHERE id = $1 FOR UPDATE
	`, accountID))
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("%w: account %s", bankroll.ErrNotFound, accountID)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: read account: %v", bankroll.ErrIntegrity, err)
	}

	acctSnapshot, err := accountSnapshot(acct)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", bankroll.ErrIntegrity, err)
	}
	if err := p.appendAudit(ctx, tx, "accounts", accountID, acctSnapshot, bankroll.AuditDeleted, bankroll.ActionDelete); err != nil {
		return 0, err
	}

	rows, err := tx.Query(ctx, `
		SELECT id, account_id, date, tournaments, flow, balance
		FROM sessions WHERE account_id = $1 ORDER BY date
	`, accountID)
	if err != nil {
		return 0, fmt.Errorf("%w: query sessions: %v", bankroll.ErrIntegrity, err)
	}
	var sessions []bankroll.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			rows.Close()
			return 0, fmt.Errorf("%w: %v", bankroll.ErrIntegrity, err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", bankroll.ErrIntegrity, err)
	}

	for _, sess := range sessions {
		snapshot, err := sessionSnapshot(sess)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", bankroll.ErrIntegrity, err)
		}
		if err := p.appendAudit(ctx, tx, "sessions", sess.ID, snapshot, bankroll.AuditDeleted, bankroll.ActionDeleteCascade); err != nil {
			return 0, err
		}
	}

	if _, err := tx.Exec(ctx, "DELETE FROM sessions WHERE account_id = $1", accountID); err != nil {
		return 0, fmt.Errorf("%w: delete sessions: %v", bankroll.ErrIntegrity, err)
	}
	if _, err := tx.Exec(ctx, "DELETE FROM accounts WHERE id = $1", accountID); err != nil {
		return 0, fmt.Errorf("%w: delete account: %v", bankroll.ErrIntegrity, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("%w: commit: %v", bankroll.ErrIntegrity, err)
	}
	return len(sessions), nil
}

// CorrectInitial rewrites the paired (initial balance, start date) baseline
// with an UPDATE_INITIAL audit entry capturing both sides.
func (p *Postgres) CorrectInitial(ctx context.Context, accountID string, balance decimal.Decimal, start calendar.Date) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", bankroll.ErrIntegrity, err)
	}
	defer tx.Rollback(ctx)

	acct, err := scanAccount(tx.QueryRow(ctx, `
		SELECT id, name, initial_balance, start_date FROM accounts WHERE id = $1 FOR UPDATE
	`, accountID))
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: account %s", bankroll.ErrNotFound, accountID)
	}
	if err != nil {
		return fmt.Errorf("%w: read account: %v", bankroll.ErrIntegrity, err)
	}

	oldSnapshot, err := initialSnapshot(acct.InitialBalance, acct.StartDate)
	if err != nil {
		return fmt.Errorf("%w: %v", bankroll.ErrIntegrity, err)
	}
	newSnapshot, err := initialSnapshot(balance, start)
	if err != nil {
		return fmt.Errorf("%w: %v", bankroll.ErrIntegrity, err)
	}
	if err := p.appendAudit(ctx, tx, "accounts", accountID, oldSnapshot, newSnapshot, bankroll.ActionUpdateInitial); err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		UPDATE accounts SET initial_balance = $1, start_date = $2 WHERE id = $3
	`, balance.String(), start.String(), accountID)
	if err != nil {
		return fmt.Errorf("%w: update account: %v", bankroll.ErrIntegrity, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit: %v", bankroll.ErrIntegrity, err)
	}
	return nil
}

// AuditTrail returns every audit entry in append order.
func (p *Postgres) AuditTrail(ctx context.Context) ([]bankroll.AuditEntry, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, table_name, record_id, old_value, new_value, edit_time, action, prev_hash, hash
		FROM audit_log ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var entries []bankroll.AuditEntry
	for rows.Next() {
		var e bankroll.AuditEntry
		var editTime, action string
		if err := rows.Scan(&e.ID, &e.Table, &e.RecordID, &e.OldValue, &e.NewValue,
			&editTime, &action, &e.PrevHash, &e.Hash); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Time, err = time.Parse(time.RFC3339, editTime)
		if err != nil {
			return nil, fmt.Errorf("parse audit time %q: %w", editTime, err)
		}
		e.Action = bankroll.AuditAction(action)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// appendAudit writes one hash-chained audit entry within the caller's
// transaction. Reading the head and inserting the new link must not
// interleave across transactions: two writers seeing the same head would
// both chain onto it and fork the trail, so the head read is guarded by a
// transaction-scoped advisory lock held until commit.
func (p *Postgres) appendAudit(ctx context.Context, tx pgx.Tx, table, recordID, oldValue, newValue string, action bankroll.AuditAction) error {
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", auditChainLockID); err != nil {
		return fmt.Errorf("%w: lock audit chain: %v", bankroll.ErrIntegrity, err)
	}

	prev := audit.Genesis
	err := tx.QueryRow(ctx, "SELECT hash FROM audit_log ORDER BY id DESC LIMIT 1").Scan(&prev)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: read audit head: %v", bankroll.ErrIntegrity, err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	hash := audit.Hash(prev, now, audit.Payload(table, recordID, string(action), oldValue, newValue))

	_, err = tx.Exec(ctx, `
		INSERT INTO audit_log (table_name, record_id, old_value, new_value, edit_time, action, prev_hash, hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, table, recordID, oldValue, newValue, now.Format(time.RFC3339), string(action), prev, hash)
	if err != nil {
		return fmt.Errorf("%w: append audit entry: %v", bankroll.ErrIntegrity, err)
	}
	return nil
}
