package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-01-03")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-03", d.String())

	// Single-digit month and day are accepted on input.
	lenient, err := ParseDate("2024-1-3")
	require.NoError(t, err)
	assert.Equal(t, d, lenient)

	_, err = ParseDate("03/01/2024")
	assert.Error(t, err)

	_, err = ParseDate("")
	assert.Error(t, err)
}

func TestTodayIsLocal(t *testing.T) {
	y, m, d := time.Now().Date()
	assert.Equal(t, NewDate(y, m, d), Today())
}

func TestDateNormalization(t *testing.T) {
	// Out-of-range components roll over like time.Date.
	assert.Equal(t, "2024-03-01", NewDate(2024, time.February, 30).String())
	assert.Equal(t, "2023-12-31", NewDate(2024, time.January, 0).String())
}

func TestDateOrdering(t *testing.T) {
	a := NewDate(2024, time.January, 3)
	b := NewDate(2024, time.January, 4)

	assert.True(t, a.Before(b))
	assert.True(t, b.After(a))
	assert.False(t, a.Before(a))
	assert.True(t, Date{}.IsZero())
	assert.False(t, a.IsZero())
}

func TestDateArithmetic(t *testing.T) {
	d := NewDate(2024, time.January, 31)

	assert.Equal(t, "2024-02-01", d.Add(1).String())
	assert.Equal(t, "2024-01-30", d.Add(-1).String())
	assert.Equal(t, 29, d.DaysUntil(NewDate(2024, time.February, 29)))
	assert.Equal(t, -1, d.DaysUntil(NewDate(2024, time.January, 30)))
	assert.Equal(t, 0, d.DaysUntil(d))
}

func TestDateTextRoundTrip(t *testing.T) {
	d := NewDate(2024, time.January, 3)
	b, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "2024-01-03", string(b))

	var parsed Date
	require.NoError(t, parsed.UnmarshalText(b))
	assert.Equal(t, d, parsed)
}

func TestStartOfWeekly(t *testing.T) {
	// 2024-01-01 is a Monday.
	monday := NewDate(2024, time.January, 1)
	for i := 0; i < 7; i++ {
		assert.Equal(t, monday, monday.Add(i).StartOf(Weekly), "day %d of the week", i)
	}
	assert.Equal(t, monday.Add(6), monday.EndOf(Weekly))

	// Sunday belongs to the week started the previous Monday.
	sunday := NewDate(2024, time.January, 7)
	assert.Equal(t, monday, sunday.StartOf(Weekly))
}

func TestStartEndOfPeriods(t *testing.T) {
	d := NewDate(2024, time.February, 15)

	assert.Equal(t, d, d.StartOf(Daily))
	assert.Equal(t, d, d.EndOf(Daily))
	assert.Equal(t, "2024-02-01", d.StartOf(Monthly).String())
	assert.Equal(t, "2024-02-29", d.EndOf(Monthly).String())
	assert.Equal(t, "2024-01-01", d.StartOf(Yearly).String())
	assert.Equal(t, "2024-12-31", d.EndOf(Yearly).String())
}

func TestRangeDays(t *testing.T) {
	from := NewDate(2024, time.January, 1)
	to := NewDate(2024, time.January, 5)
	r := NewRange(from, to)

	var got []string
	for d := range r.Days() {
		got = append(got, d.String())
	}
	assert.Equal(t, []string{"2024-01-01", "2024-01-02", "2024-01-03", "2024-01-04", "2024-01-05"}, got)

	assert.True(t, r.Contains(from))
	assert.True(t, r.Contains(to))
	assert.False(t, r.Contains(to.Add(1)))

	// Reversed bounds are swapped.
	assert.Equal(t, r, NewRange(to, from))

	single := NewRange(from, from)
	count := 0
	for range single.Days() {
		count++
	}
	assert.Equal(t, 1, count)
}

func TestParsePeriod(t *testing.T) {
	cases := map[string]Period{
		"day":     Daily,
		"daily":   Daily,
		"week":    Weekly,
		"WEEKLY":  Weekly,
		"month":   Monthly,
		"monthly": Monthly,
		"year":    Yearly,
		" yearly": Yearly,
	}
	for in, want := range cases {
		got, err := ParsePeriod(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParsePeriod("fortnight")
	assert.Error(t, err)
}

func TestPeriodLabels(t *testing.T) {
	d := NewDate(2024, time.February, 1)

	assert.Equal(t, "2024-02-01", Daily.Label(d))
	assert.Equal(t, "2024-02", Monthly.Label(d))
	assert.Equal(t, "2024", Yearly.Label(d))

	// ISO week labels follow the ISO year, not the calendar year.
	assert.Equal(t, "2024-W05", Weekly.Label(NewDate(2024, time.January, 29)))
	assert.Equal(t, "2020-W53", Weekly.Label(NewDate(2021, time.January, 1)))
}

func TestPeriodRange(t *testing.T) {
	d := NewDate(2024, time.February, 15)
	r := Monthly.Range(d)
	assert.Equal(t, "2024-02-01", r.From.String())
	assert.Equal(t, "2024-02-29", r.To.String())
}
