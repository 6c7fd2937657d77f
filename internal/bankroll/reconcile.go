package bankroll

import (
	"fmt"

	"github.com/laurentRibous/poker-bankroll-tracker/internal/calendar"
)

// Reconcile turns an account's sparse sessions into a dense daily series,
// one entry per calendar day from the account's start date through asOf
// inclusive. Days without a session inherit the nearest prior balance
// (forward-fill) and carry zero flow and zero tournaments. The first day's
// previous balance is the account's initial balance by definition, even
// when that day has a session.
//
// Each day's profit isolates organic gain from owner cash movement:
//
//	profit = (balance - flow) - previous balance
//
// Sessions dated before the start date or after asOf are ignored. An asOf
// earlier than the start date yields an empty series, not an error.
func Reconcile(acct Account, sessions []Session, asOf calendar.Date) ([]ReconciledDay, error) {
	if acct.StartDate.IsZero() {
		return nil, fmt.Errorf("%w: account %q has no start date", ErrInvalidInput, acct.Name)
	}
	if asOf.Before(acct.StartDate) {
		return nil, nil
	}

	grid := calendar.NewRange(acct.StartDate, asOf)
	byDate := make(map[calendar.Date]Session, len(sessions))
	for _, s := range sessions {
		if grid.Contains(s.Date) {
			byDate[s.Date] = s
		}
	}

	days := make([]ReconciledDay, 0, acct.StartDate.DaysUntil(asOf)+1)
	prev := acct.InitialBalance
	for d := range grid.Days() {
		day := ReconciledDay{Date: d, Balance: prev, PrevBalance: prev}
		if s, ok := byDate[d]; ok {
			day.Balance = s.Balance
			day.Flow = s.Flow
			day.Tournaments = s.Tournaments
		}
		day.Profit = day.Balance.Sub(day.Flow).Sub(day.PrevBalance)
		prev = day.Balance
		days = append(days, day)
	}
	return days, nil
}
