// Package store provides the durable Ledger Store implementations: SQLite
// as the primary embedded store and PostgreSQL behind the same interface.
// Every mutation runs in a single database transaction that covers both the
// row write and its audit entries.
package store

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/laurentRibous/poker-bankroll-tracker/internal/bankroll"
	"github.com/laurentRibous/poker-bankroll-tracker/internal/calendar"
)

// sessionSnapshot serializes a session row for an audit entry.
func sessionSnapshot(s bankroll.Session) (string, error) {
	b, err := json.Marshal(struct {
		Date        calendar.Date   `json:"date"`
		Tournaments int             `json:"tournaments"`
		Flow        decimal.Decimal `json:"flow"`
		Balance     decimal.Decimal `json:"balance"`
	}{s.Date, s.Tournaments, s.Flow, s.Balance})
	if err != nil {
		return "", fmt.Errorf("serialize session %s: %w", s.ID, err)
	}
	return string(b), nil
}

// accountSnapshot serializes an account row for an audit entry.
func accountSnapshot(a bankroll.Account) (string, error) {
	b, err := json.Marshal(struct {
		Name           string          `json:"name"`
		InitialBalance decimal.Decimal `json:"initial_balance"`
		StartDate      calendar.Date   `json:"start_date"`
	}{a.Name, a.InitialBalance, a.StartDate})
	if err != nil {
		return "", fmt.Errorf("serialize account %s: %w", a.ID, err)
	}
	return string(b), nil
}

// initialSnapshot serializes the paired (initial balance, start date)
// baseline for an UPDATE_INITIAL audit entry.
func initialSnapshot(balance decimal.Decimal, start calendar.Date) (string, error) {
	b, err := json.Marshal(struct {
		InitialBalance decimal.Decimal `json:"initial_balance"`
		StartDate      calendar.Date   `json:"start_date"`
	}{balance, start})
	if err != nil {
		return "", fmt.Errorf("serialize initial baseline: %w", err)
	}
	return string(b), nil
}
