package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/laurentRibous/poker-bankroll-tracker/internal/bankroll"
	"github.com/laurentRibous/poker-bankroll-tracker/internal/calendar"
	"github.com/laurentRibous/poker-bankroll-tracker/pkg/audit"
)

const sqliteSchema = `
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
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
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

// SQLite is the embedded Ledger Store. A single pooled connection keeps
// :memory: databases stable and serializes writers, which SQLite requires
// anyway; the mutex makes the check-then-merge-then-write upsert sequence
// one indivisible unit per process.
type SQLite struct {
	db *sql.DB
	mu sync.Mutex
}

// OpenSQLite opens (creating if necessary) a SQLite ledger database.
func OpenSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database %q: %w", dsn, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLite) Close() error { return s.db.Close() }

// CreateAccount inserts a new account and its CREATE audit entry.
func (s *SQLite) CreateAccount(ctx context.Context, a bankroll.Account) (bankroll.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return bankroll.Account{}, fmt.Errorf("%w: begin: %v", bankroll.ErrIntegrity, err)
	}
	defer tx.Rollback()

	var exists bool
	err = tx.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM accounts WHERE name = ?)", a.Name).Scan(&exists)
	if err != nil {
		return bankroll.Account{}, fmt.Errorf("%w: check name: %v", bankroll.ErrIntegrity, err)
	}
	if exists {
		return bankroll.Account{}, fmt.Errorf("%w: %q", bankroll.ErrDuplicateAccount, a.Name)
	}

	a.ID = uuid.New().String()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO accounts (id, name, initial_balance, start_date)
		VALUES (?, ?, ?, ?)
	`, a.ID, a.Name, a.InitialBalance.String(), a.StartDate.String())
	if err != nil {
		return bankroll.Account{}, fmt.Errorf("%w: insert account: %v", bankroll.ErrIntegrity, err)
	}

	snapshot, err := accountSnapshot(a)
	if err != nil {
		return bankroll.Account{}, fmt.Errorf("%w: %v", bankroll.ErrIntegrity, err)
	}
	if err := s.appendAudit(ctx, tx, "accounts", a.ID, bankroll.AuditAbsent, snapshot, bankroll.ActionCreate); err != nil {
		return bankroll.Account{}, err
	}

	if err := tx.Commit(); err != nil {
		return bankroll.Account{}, fmt.Errorf("%w: commit: %v", bankroll.ErrIntegrity, err)
	}
	return a, nil
}

// GetAccount looks an account up by name.
func (s *SQLite) GetAccount(ctx context.Context, name string) (bankroll.Account, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, initial_balance, start_date FROM accounts WHERE name = ?
	`, name)
	acct, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return bankroll.Account{}, fmt.Errorf("%w: account %q", bankroll.ErrNotFound, name)
	}
	return acct, err
}

// ListAccounts returns all accounts ordered by name.
func (s *SQLite) ListAccounts(ctx context.Context) ([]bankroll.Account, error) {
	rows, err := s.db.QueryContext(ctx, `
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
// (accountID, date) key. Tournaments and flow accumulate across calls;
// the balance is overwritten by the latest measurement. The read, merge and
// write happen under one transaction and the store-wide write lock.
func (s *SQLite) UpsertSession(ctx context.Context, accountID string, date calendar.Date,
	tournaments int, flow, balance decimal.Decimal) (bankroll.Session, bool, error) {

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return bankroll.Session{}, false, fmt.Errorf("%w: begin: %v", bankroll.ErrIntegrity, err)
	}
	defer tx.Rollback()

	prior, err := scanSession(tx.QueryRowContext(ctx, `
		SELECT id, account_id, date, tournaments, flow, balance
		FROM sessions WHERE account_id = ? AND date = ?
	`, accountID, date.String()))

	var result bankroll.Session
	created := false
	switch {
	case errors.Is(err, sql.ErrNoRows):
		created = true
		result = bankroll.Session{
			ID:          uuid.New().String(),
			AccountID:   accountID,
			Date:        date,
			Tournaments: tournaments,
			Flow:        flow,
			Balance:     balance,
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO sessions (id, account_id, date, tournaments, flow, balance)
			VALUES (?, ?, ?, ?, ?, ?)
		`, result.ID, result.AccountID, result.Date.String(), result.Tournaments,
			result.Flow.String(), result.Balance.String())
		if err != nil {
			return bankroll.Session{}, false, fmt.Errorf("%w: insert session: %v", bankroll.ErrIntegrity, err)
		}
		snapshot, err := sessionSnapshot(result)
		if err != nil {
			return bankroll.Session{}, false, fmt.Errorf("%w: %v", bankroll.ErrIntegrity, err)
		}
		if err := s.appendAudit(ctx, tx, "sessions", result.ID, bankroll.AuditAbsent, snapshot, bankroll.ActionCreate); err != nil {
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
		_, err = tx.ExecContext(ctx, `
			UPDATE sessions SET tournaments = ?, flow = ?, balance = ? WHERE id = ?
		`, result.Tournaments, result.Flow.String(), result.Balance.String(), result.ID)
		if err != nil {
			return bankroll.Session{}, false, fmt.Errorf("%w: merge session: %v", bankroll.ErrIntegrity, err)
		}
		newSnapshot, err := sessionSnapshot(result)
		if err != nil {
			return bankroll.Session{}, false, fmt.Errorf("%w: %v", bankroll.ErrIntegrity, err)
		}
		if err := s.appendAudit(ctx, tx, "sessions", result.ID, oldSnapshot, newSnapshot, bankroll.ActionUpdate); err != nil {
			return bankroll.Session{}, false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return bankroll.Session{}, false, fmt.Errorf("%w: commit: %v", bankroll.ErrIntegrity, err)
	}
	return result, created, nil
}

// GetSession looks a session up by id.
func (s *SQLite) GetSession(ctx context.Context, id string) (bankroll.Session, error) {
	sess, err := scanSession(s.db.QueryRowContext(ctx, `
		SELECT id, account_id, date, tournaments, flow, balance FROM sessions WHERE id = ?
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return bankroll.Session{}, fmt.Errorf("%w: session %s", bankroll.ErrNotFound, id)
	}
	return sess, err
}

// ListSessions returns an account's sessions ordered by date. A zero from
// date means no lower bound.
func (s *SQLite) ListSessions(ctx context.Context, accountID string, from calendar.Date) ([]bankroll.Session, error) {
	query := `
		SELECT id, account_id, date, tournaments, flow, balance
		FROM sessions WHERE account_id = ?
	`
	args := []interface{}{accountID}
	if !from.IsZero() {
		query += " AND date >= ?"
		args = append(args, from.String())
	}
	query += " ORDER BY date"

	rows, err := s.db.QueryContext(ctx, query, args...)
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
func (s *SQLite) UpdateSession(ctx context.Context, sess bankroll.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", bankroll.ErrIntegrity, err)
	}
	defer tx.Rollback()

	prior, err := scanSession(tx.QueryRowContext(ctx, `
		SELECT id, account_id, date, tournaments, flow, balance FROM sessions WHERE id = ?
	`, sess.ID))
	if errors.Is(err, sql.ErrNoRows) {
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

	if err := s.appendAudit(ctx, tx, "sessions", sess.ID, oldSnapshot, newSnapshot, bankroll.ActionUpdate); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE sessions SET date = ?, tournaments = ?, flow = ?, balance = ? WHERE id = ?
	`, sess.Date.String(), sess.Tournaments, sess.Flow.String(), sess.Balance.String(), sess.ID)
	if err != nil {
		var serr sqlite3.Error
		if errors.As(err, &serr) && serr.Code == sqlite3.ErrConstraint {
			return fmt.Errorf("%w: a session already exists for %s", bankroll.ErrConflict, sess.Date)
		}
		return fmt.Errorf("%w: update session: %v", bankroll.ErrIntegrity, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", bankroll.ErrIntegrity, err)
	}
	return nil
}

// DeleteSession removes one session after capturing it into the audit
// trail.
func (s *SQLite) DeleteSession(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", bankroll.ErrIntegrity, err)
	}
	defer tx.Rollback()

	prior, err := scanSession(tx.QueryRowContext(ctx, `
		SELECT id, account_id, date, tournaments, flow, balance FROM sessions WHERE id = ?
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: session %s", bankroll.ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("%w: read session: %v", bankroll.ErrIntegrity, err)
	}

	snapshot, err := sessionSnapshot(prior)
	if err != nil {
		return fmt.Errorf("%w: %v", bankroll.ErrIntegrity, err)
	}
	if err := s.appendAudit(ctx, tx, "sessions", id, snapshot, bankroll.AuditDeleted, bankroll.ActionDelete); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id); err != nil {
		return fmt.Errorf("%w: delete session: %v", bankroll.ErrIntegrity, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", bankroll.ErrIntegrity, err)
	}
	return nil
}

// DeleteAccount removes an account and all its sessions in one transaction:
// one audit entry for the account, then one DELETE_CASCADE entry per
// session in date order.
func (s *SQLite) DeleteAccount(ctx context.Context, accountID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: begin: %v", bankroll.ErrIntegrity, err)
	}
	defer tx.Rollback()

	acct, err := scanAccount(tx.QueryRowContext(ctx, `
		SELECT id, name, initial_balance, start_date FROM accounts WHERE id = ?
	`, accountID))
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: account %s", bankroll.ErrNotFound, accountID)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: read account: %v", bankroll.ErrIntegrity, err)
	}

	acctSnapshot, err := accountSnapshot(acct)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", bankroll.ErrIntegrity, err)
	}
	if err := s.appendAudit(ctx, tx, "accounts", accountID, acctSnapshot, bankroll.AuditDeleted, bankroll.ActionDelete); err != nil {
		return 0, err
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT id, account_id, date, tournaments, flow, balance
		FROM sessions WHERE account_id = ? ORDER BY date
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
		rows.Close()
		return 0, fmt.Errorf("%w: %v", bankroll.ErrIntegrity, err)
	}
	rows.Close()

	for _, sess := range sessions {
		snapshot, err := sessionSnapshot(sess)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", bankroll.ErrIntegrity, err)
		}
		if err := s.appendAudit(ctx, tx, "sessions", sess.ID, snapshot, bankroll.AuditDeleted, bankroll.ActionDeleteCascade); err != nil {
			return 0, err
		}
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM sessions WHERE account_id = ?", accountID); err != nil {
		return 0, fmt.Errorf("%w: delete sessions: %v", bankroll.ErrIntegrity, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM accounts WHERE id = ?", accountID); err != nil {
		return 0, fmt.Errorf("%w: delete account: %v", bankroll.ErrIntegrity, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: commit: %v", bankroll.ErrIntegrity, err)
	}
	return len(sessions), nil
}

// CorrectInitial rewrites the paired (initial balance, start date) baseline
// with an UPDATE_INITIAL audit entry capturing both sides.
func (s *SQLite) CorrectInitial(ctx context.Context, accountID string, balance decimal.Decimal, start calendar.Date) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", bankroll.ErrIntegrity, err)
	}
	defer tx.Rollback()

	acct, err := scanAccount(tx.QueryRowContext(ctx, `
		SELECT id, name, initial_balance, start_date FROM accounts WHERE id = ?
	`, accountID))
	if errors.Is(err, sql.ErrNoRows) {
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
	if err := s.appendAudit(ctx, tx, "accounts", accountID, oldSnapshot, newSnapshot, bankroll.ActionUpdateInitial); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE accounts SET initial_balance = ?, start_date = ? WHERE id = ?
	`, balance.String(), start.String(), accountID)
	if err != nil {
		return fmt.Errorf("%w: update account: %v", bankroll.ErrIntegrity, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", bankroll.ErrIntegrity, err)
	}
	return nil
}

// AuditTrail returns every audit entry in append order.
func (s *SQLite) AuditTrail(ctx context.Context) ([]bankroll.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
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
// transaction. The audit table is append-only: no code path updates or
// deletes rows from it.
func (s *SQLite) appendAudit(ctx context.Context, tx *sql.Tx, table, recordID, oldValue, newValue string, action bankroll.AuditAction) error {
	prev := audit.Genesis
	err := tx.QueryRowContext(ctx, "SELECT hash FROM audit_log ORDER BY id DESC LIMIT 1").Scan(&prev)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: read audit head: %v", bankroll.ErrIntegrity, err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	hash := audit.Hash(prev, now, audit.Payload(table, recordID, string(action), oldValue, newValue))

	_, err = tx.ExecContext(ctx, `
		INSERT INTO audit_log (table_name, record_id, old_value, new_value, edit_time, action, prev_hash, hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, table, recordID, oldValue, newValue, now.Format(time.RFC3339), string(action), prev, hash)
	if err != nil {
		return fmt.Errorf("%w: append audit entry: %v", bankroll.ErrIntegrity, err)
	}
	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAccount(row rowScanner) (bankroll.Account, error) {
	var a bankroll.Account
	var initial, start string
	if err := row.Scan(&a.ID, &a.Name, &initial, &start); err != nil {
		return bankroll.Account{}, err
	}
	var err error
	if a.InitialBalance, err = decimal.NewFromString(initial); err != nil {
		return bankroll.Account{}, fmt.Errorf("parse initial balance %q: %w", initial, err)
	}
	if a.StartDate, err = calendar.ParseDate(start); err != nil {
		return bankroll.Account{}, fmt.Errorf("parse start date: %w", err)
	}
	return a, nil
}

func scanSession(row rowScanner) (bankroll.Session, error) {
	var s bankroll.Session
	var date, flow, balance string
	if err := row.Scan(&s.ID, &s.AccountID, &date, &s.Tournaments, &flow, &balance); err != nil {
		return bankroll.Session{}, err
	}
	var err error
	if s.Date, err = calendar.ParseDate(date); err != nil {
		return bankroll.Session{}, fmt.Errorf("parse session date: %w", err)
	}
	if s.Flow, err = decimal.NewFromString(flow); err != nil {
		return bankroll.Session{}, fmt.Errorf("parse flow %q: %w", flow, err)
	}
	if s.Balance, err = decimal.NewFromString(balance); err != nil {
		return bankroll.Session{}, fmt.Errorf("parse balance %q: %w", balance, err)
	}
	return s, nil
}
