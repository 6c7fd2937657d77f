package bankroll

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/laurentRibous/poker-bankroll-tracker/internal/calendar"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func date(y int, m time.Month, d int) calendar.Date { return calendar.NewDate(y, m, d) }

func TestReconcileFlowAdjustedProfit(t *testing.T) {
	acct := Account{
		Name:           "winamax",
		InitialBalance: dec("100"),
		StartDate:      date(2024, time.January, 1),
	}
	sessions := []Session{
		{Date: date(2024, time.January, 3), Tournaments: 4, Flow: dec("50"), Balance: dec("170")},
	}

	days, err := Reconcile(acct, sessions, date(2024, time.January, 3))
	require.NoError(t, err)
	require.Len(t, days, 3)

	// Days 1 and 2 have no session: balance forward-fills from the initial
	// balance and profit is zero.
	assert.Equal(t, "100", days[0].Balance.String())
	assert.True(t, days[0].Profit.IsZero())
	assert.Equal(t, "100", days[1].Balance.String())
	assert.True(t, days[1].Profit.IsZero())

	// Day 3: 170 measured, but 50 of it was deposited, so only 20 was won.
	assert.Equal(t, "170", days[2].Balance.String())
	assert.Equal(t, "50", days[2].Flow.String())
	assert.Equal(t, 4, days[2].Tournaments)
	assert.Equal(t, "20", days[2].Profit.String())
}

func TestReconcileDenseGrid(t *testing.T) {
	acct := Account{
		Name:           "stars",
		InitialBalance: dec("200"),
		StartDate:      date(2024, time.March, 10),
	}
	asOf := date(2024, time.April, 20)

	days, err := Reconcile(acct, nil, asOf)
	require.NoError(t, err)

	// One entry per calendar day, consecutive, endpoints inclusive.
	require.Len(t, days, acct.StartDate.DaysUntil(asOf)+1)
	assert.Equal(t, acct.StartDate, days[0].Date)
	assert.Equal(t, asOf, days[len(days)-1].Date)
	for i := 1; i < len(days); i++ {
		assert.Equal(t, days[i-1].Date.Add(1), days[i].Date)
	}
}

func TestReconcileFirstDaySession(t *testing.T) {
	acct := Account{
		Name:           "ggpoker",
		InitialBalance: dec("100"),
		StartDate:      date(2024, time.January, 1),
	}
	sessions := []Session{
		{Date: date(2024, time.January, 1), Tournaments: 2, Flow: dec("0"), Balance: dec("130")},
	}

	days, err := Reconcile(acct, sessions, date(2024, time.January, 1))
	require.NoError(t, err)
	require.Len(t, days, 1)

	// The first day's previous balance is the initial balance even when the
	// day itself has a session.
	assert.Equal(t, "100", days[0].PrevBalance.String())
	assert.Equal(t, "30", days[0].Profit.String())
}

func TestReconcileForwardFill(t *testing.T) {
	acct := Account{
		Name:           "winamax",
		InitialBalance: dec("100"),
		StartDate:      date(2024, time.January, 1),
	}
	sessions := []Session{
		{Date: date(2024, time.January, 2), Balance: dec("150")},
		{Date: date(2024, time.January, 5), Balance: dec("120")},
	}

	days, err := Reconcile(acct, sessions, date(2024, time.January, 6))
	require.NoError(t, err)
	require.Len(t, days, 6)

	balances := make([]string, len(days))
	for i, d := range days {
		balances[i] = d.Balance.String()
	}
	assert.Equal(t, []string{"100", "150", "150", "150", "120", "120"}, balances)

	// Filled days earn nothing: the whole loss lands on the session day.
	assert.True(t, days[2].Profit.IsZero())
	assert.True(t, days[3].Profit.IsZero())
	assert.Equal(t, "-30", days[4].Profit.String())
	assert.True(t, days[5].Profit.IsZero())
}

func TestReconcileForwardFillIdempotence(t *testing.T) {
	acct := Account{
		Name:           "winamax",
		InitialBalance: dec("100"),
		StartDate:      date(2024, time.January, 1),
	}
	sessions := []Session{
		{Date: date(2024, time.January, 2), Balance: dec("150")},
	}
	asOf := date(2024, time.January, 6)

	before, err := Reconcile(acct, sessions, asOf)
	require.NoError(t, err)

	// A session that restates the already-filled balance with no flow and
	// no activity changes nothing.
	restated := append(sessions, Session{Date: date(2024, time.January, 4), Balance: dec("150")})
	after, err := Reconcile(acct, restated, asOf)
	require.NoError(t, err)

	require.Len(t, after, len(before))
	for i := range before {
		assert.Equal(t, before[i].Date, after[i].Date)
		assert.True(t, before[i].Balance.Equal(after[i].Balance))
		assert.True(t, before[i].Profit.Equal(after[i].Profit))
	}
}

func TestReconcileProfitReconstructsBalance(t *testing.T) {
	acct := Account{
		Name:           "stars",
		InitialBalance: dec("250.50"),
		StartDate:      date(2024, time.June, 1),
	}
	sessions := []Session{
		{Date: date(2024, time.June, 2), Flow: dec("-40"), Balance: dec("190.25")},
		{Date: date(2024, time.June, 5), Flow: dec("100"), Balance: dec("305")},
		{Date: date(2024, time.June, 9), Balance: dec("280.10")},
	}

	days, err := Reconcile(acct, sessions, date(2024, time.June, 10))
	require.NoError(t, err)

	// Summing profit and flow over the series reconstructs the final
	// balance from the initial one.
	total := acct.InitialBalance
	for _, d := range days {
		total = total.Add(d.Profit).Add(d.Flow)
	}
	assert.True(t, total.Equal(days[len(days)-1].Balance),
		"initial + profits + flows = %s, want %s", total, days[len(days)-1].Balance)
}

func TestReconcileBounds(t *testing.T) {
	acct := Account{
		Name:           "winamax",
		InitialBalance: dec("100"),
		StartDate:      date(2024, time.January, 10),
	}

	t.Run("asOf before start", func(t *testing.T) {
		days, err := Reconcile(acct, nil, date(2024, time.January, 9))
		require.NoError(t, err)
		assert.Empty(t, days)
	})

	t.Run("sessions outside the grid are ignored", func(t *testing.T) {
		sessions := []Session{
			{Date: date(2024, time.January, 5), Balance: dec("999")},
			{Date: date(2024, time.January, 20), Balance: dec("999")},
		}
		days, err := Reconcile(acct, sessions, date(2024, time.January, 12))
		require.NoError(t, err)
		require.Len(t, days, 3)
		for _, d := range days {
			assert.Equal(t, "100", d.Balance.String())
		}
	})

	t.Run("missing start date", func(t *testing.T) {
		_, err := Reconcile(Account{Name: "broken"}, nil, date(2024, time.January, 1))
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}
