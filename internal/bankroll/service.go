package bankroll

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/laurentRibous/poker-bankroll-tracker/internal/calendar"
	"github.com/laurentRibous/poker-bankroll-tracker/pkg/audit"
)

// Service provides the high-level ledger API consumed by the CLI. Writes go
// through the audited mutation protocol; reads are pure computations over a
// snapshot of the store and never mutate state.
type Service struct {
	store Store
}

// NewService creates a new ledger service over a store.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// CreateAccount validates and persists a new account.
func (s *Service) CreateAccount(ctx context.Context, name string, initialBalance decimal.Decimal, start calendar.Date) (Account, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Account{}, fmt.Errorf("%w: account name is required", ErrInvalidInput)
	}
	if initialBalance.IsNegative() {
		return Account{}, fmt.Errorf("%w: initial balance %s is negative", ErrInvalidInput, initialBalance)
	}
	if start.IsZero() {
		return Account{}, fmt.Errorf("%w: start date is required", ErrInvalidInput)
	}
	return s.store.CreateAccount(ctx, Account{
		Name:           name,
		InitialBalance: initialBalance,
		StartDate:      start,
	})
}

// RecordSession applies the upsert-by-date protocol for one account day.
// Recording twice on the same date adds tournaments and flow but overwrites
// the balance with the latest measurement: flow and activity are period
// deltas, the balance is a point-in-time fact.
func (s *Service) RecordSession(ctx context.Context, accountName string, date calendar.Date,
	tournaments int, flow, balance decimal.Decimal) (Session, bool, error) {

	if err := validateSessionInput(date, tournaments, balance); err != nil {
		return Session{}, false, err
	}
	acct, err := s.store.GetAccount(ctx, accountName)
	if err != nil {
		return Session{}, false, err
	}
	return s.store.UpsertSession(ctx, acct.ID, date, tournaments, flow, balance)
}

// UpdateSession replaces a session row wholesale (a manual correction).
// The prior row is captured into the audit trail before the write.
func (s *Service) UpdateSession(ctx context.Context, id string, date calendar.Date,
	tournaments int, flow, balance decimal.Decimal) error {

	if err := validateSessionInput(date, tournaments, balance); err != nil {
		return err
	}
	prior, err := s.store.GetSession(ctx, id)
	if err != nil {
		return err
	}
	prior.Date = date
	prior.Tournaments = tournaments
	prior.Flow = flow
	prior.Balance = balance
	return s.store.UpdateSession(ctx, prior)
}

// DeleteSession removes one session with full audit capture.
func (s *Service) DeleteSession(ctx context.Context, id string) error {
	return s.store.DeleteSession(ctx, id)
}

// DeleteAccount removes an account and cascades to all its sessions in one
// atomic, fully audited unit. It returns the number of sessions removed.
func (s *Service) DeleteAccount(ctx context.Context, name string) (int, error) {
	acct, err := s.store.GetAccount(ctx, name)
	if err != nil {
		return 0, err
	}
	return s.store.DeleteAccount(ctx, acct.ID)
}

// CorrectInitial rewrites an account's initial balance together with its
// start date. The two are corrected as a pair: moving the start date
// without the matching balance would invalidate the reconciliation
// baseline. Sessions dated before a later corrected start date are kept in
// storage but no longer appear in reconciled series.
func (s *Service) CorrectInitial(ctx context.Context, name string, balance decimal.Decimal, start calendar.Date) error {
	if balance.IsNegative() {
		return fmt.Errorf("%w: initial balance %s is negative", ErrInvalidInput, balance)
	}
	if start.IsZero() {
		return fmt.Errorf("%w: start date is required", ErrInvalidInput)
	}
	acct, err := s.store.GetAccount(ctx, name)
	if err != nil {
		return err
	}
	return s.store.CorrectInitial(ctx, acct.ID, balance, start)
}

// Reconcile produces the dense daily series for one account, from its start
// date through asOf inclusive.
func (s *Service) Reconcile(ctx context.Context, accountName string, asOf calendar.Date) ([]ReconciledDay, error) {
	acct, err := s.store.GetAccount(ctx, accountName)
	if err != nil {
		return nil, err
	}
	sessions, err := s.store.ListSessions(ctx, acct.ID, acct.StartDate)
	if err != nil {
		return nil, err
	}
	return Reconcile(acct, sessions, asOf)
}

// MergeAccounts reconciles every account through asOf and merges the series
// into the portfolio-wide daily view.
func (s *Service) MergeAccounts(ctx context.Context, asOf calendar.Date) ([]PortfolioDay, error) {
	accounts, err := s.store.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	var all [][]ReconciledDay
	for _, acct := range accounts {
		sessions, err := s.store.ListSessions(ctx, acct.ID, acct.StartDate)
		if err != nil {
			return nil, err
		}
		series, err := Reconcile(acct, sessions, asOf)
		if err != nil {
			return nil, err
		}
		all = append(all, series)
	}
	return Merge(all...), nil
}

// AccountSummary is the dashboard rollup for one account.
type AccountSummary struct {
	Account        Account
	CurrentBalance decimal.Decimal
	Sessions       int
	Tournaments    int
	TotalFlow      decimal.Decimal
	GrossProfit    decimal.Decimal // current balance - initial balance
	NetProfit      decimal.Decimal // gross profit - total flow
	ROI            decimal.Decimal // net profit / initial balance, percent
}

// Summary computes the per-account dashboard: current balance (latest
// session, or the initial balance when none exists), totals, and gross/net
// profit.
func (s *Service) Summary(ctx context.Context) ([]AccountSummary, error) {
	accounts, err := s.store.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	summaries := make([]AccountSummary, 0, len(accounts))
	for _, acct := range accounts {
		sessions, err := s.store.ListSessions(ctx, acct.ID, calendar.Date{})
		if err != nil {
			return nil, err
		}
		sum := AccountSummary{Account: acct, CurrentBalance: acct.InitialBalance}
		for _, sess := range sessions {
			sum.Sessions++
			sum.Tournaments += sess.Tournaments
			sum.TotalFlow = sum.TotalFlow.Add(sess.Flow)
			sum.CurrentBalance = sess.Balance // sessions are date-ordered
		}
		sum.GrossProfit = sum.CurrentBalance.Sub(acct.InitialBalance)
		sum.NetProfit = sum.GrossProfit.Sub(sum.TotalFlow)
		if acct.InitialBalance.IsPositive() {
			sum.ROI = sum.NetProfit.Div(acct.InitialBalance).Mul(decimal.NewFromInt(100))
		}
		summaries = append(summaries, sum)
	}
	return summaries, nil
}

// HistoryEntry is one session in the history listing, with its profit
// relative to the account's previous session.
type HistoryEntry struct {
	Session       Session
	AccountName   string
	SessionProfit decimal.Decimal // balance delta vs previous session
	PureProfit    decimal.Decimal // flow-adjusted delta vs previous session
}

// History lists sessions most recent first. With an account name it is
// limited to that account; with an empty name it covers every account.
// Session profit is the raw balance delta against the previous session;
// pure profit additionally subtracts the session's flow. The first session
// compares against the initial balance.
func (s *Service) History(ctx context.Context, accountName string) ([]HistoryEntry, error) {
	var accounts []Account
	if accountName != "" {
		acct, err := s.store.GetAccount(ctx, accountName)
		if err != nil {
			return nil, err
		}
		accounts = []Account{acct}
	} else {
		all, err := s.store.ListAccounts(ctx)
		if err != nil {
			return nil, err
		}
		accounts = all
	}

	var entries []HistoryEntry
	for _, acct := range accounts {
		sessions, err := s.store.ListSessions(ctx, acct.ID, calendar.Date{})
		if err != nil {
			return nil, err
		}
		prevBalance := acct.InitialBalance
		for _, sess := range sessions {
			entries = append(entries, HistoryEntry{
				Session:       sess,
				AccountName:   acct.Name,
				SessionProfit: sess.Balance.Sub(prevBalance),
				PureProfit:    sess.Balance.Sub(sess.Flow).Sub(prevBalance),
			})
			prevBalance = sess.Balance
		}
	}
	// Most recent first, matching the history screen.
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[j].Session.Date.Before(entries[i].Session.Date)
	})
	return entries, nil
}

// AuditTrail returns the full audit log and whether its hash chain is
// intact.
func (s *Service) AuditTrail(ctx context.Context) ([]AuditEntry, bool, error) {
	entries, err := s.store.AuditTrail(ctx)
	if err != nil {
		return nil, false, err
	}
	links := make([]audit.Link, len(entries))
	for i, e := range entries {
		links[i] = audit.Link{
			PrevHash: e.PrevHash,
			Hash:     e.Hash,
			Time:     e.Time,
			Payload:  audit.Payload(e.Table, e.RecordID, string(e.Action), e.OldValue, e.NewValue),
		}
	}
	return entries, audit.Verify(links), nil
}

func validateSessionInput(date calendar.Date, tournaments int, balance decimal.Decimal) error {
	if date.IsZero() {
		return fmt.Errorf("%w: session date is required", ErrInvalidInput)
	}
	if tournaments < 0 {
		return fmt.Errorf("%w: tournament count %d is negative", ErrInvalidInput, tournaments)
	}
	if balance.IsNegative() {
		return fmt.Errorf("%w: balance %s is negative", ErrInvalidInput, balance)
	}
	return nil
}
