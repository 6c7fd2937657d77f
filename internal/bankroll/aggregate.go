package bankroll

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/laurentRibous/poker-bankroll-tracker/internal/calendar"
)

// Bucket is one period of a resampled series. Profit and tournaments are
// summed over the bucket's days; balance is a point-in-time state and is
// only meaningful on the daily grid, so buckets do not carry it.
type Bucket struct {
	Label       string
	Range       calendar.Range
	Profit      decimal.Decimal
	Tournaments int
}

// Resample groups a daily series into week/month/year buckets. Weeks start
// on Monday and are labeled by ISO year and week number. Only periods that
// contain at least one day of the series appear; since the input grid is
// dense, the buckets partition it exactly: the sum of bucket profits equals
// the sum of daily profits.
func Resample(series []ReconciledDay, p calendar.Period) []Bucket {
	var buckets []Bucket
	for _, day := range series {
		start := day.Date.StartOf(p)
		if n := len(buckets); n == 0 || buckets[n-1].Range.From != start {
			buckets = append(buckets, Bucket{
				Label: p.Label(start),
				Range: p.Range(start),
			})
		}
		b := &buckets[len(buckets)-1]
		b.Profit = b.Profit.Add(day.Profit)
		b.Tournaments += day.Tournaments
	}
	return buckets
}

// PortfolioDay is one date of the cross-account merged series: date-aligned
// sums over every account active on that date.
type PortfolioDay struct {
	Date        calendar.Date
	Balance     decimal.Decimal
	Profit      decimal.Decimal
	Tournaments int
}

// Merge combines per-account daily series into a single portfolio series
// over the union of their dates. Each account contributes only from its own
// start date onward: an account that starts later simply adds nothing to
// earlier dates, never a synthetic zero balance. Summation is commutative,
// so the merge order does not matter.
func Merge(series ...[]ReconciledDay) []PortfolioDay {
	byDate := make(map[calendar.Date]*PortfolioDay)
	for _, s := range series {
		for _, day := range s {
			total, ok := byDate[day.Date]
			if !ok {
				total = &PortfolioDay{Date: day.Date}
				byDate[day.Date] = total
			}
			total.Balance = total.Balance.Add(day.Balance)
			total.Profit = total.Profit.Add(day.Profit)
			total.Tournaments += day.Tournaments
		}
	}

	merged := make([]PortfolioDay, 0, len(byDate))
	for _, total := range byDate {
		merged = append(merged, *total)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Date.Before(merged[j].Date) })
	return merged
}

// ResampleMerged buckets a merged portfolio series the same way Resample
// buckets a single account's series.
func ResampleMerged(series []PortfolioDay, p calendar.Period) []Bucket {
	var buckets []Bucket
	for _, day := range series {
		start := day.Date.StartOf(p)
		if n := len(buckets); n == 0 || buckets[n-1].Range.From != start {
			buckets = append(buckets, Bucket{
				Label: p.Label(start),
				Range: p.Range(start),
			})
		}
		b := &buckets[len(buckets)-1]
		b.Profit = b.Profit.Add(day.Profit)
		b.Tournaments += day.Tournaments
	}
	return buckets
}

// CumulativeProfit returns the running sum of daily profit, aligned with
// the input series. This feeds the cumulative net-profit view.
func CumulativeProfit(series []ReconciledDay) []decimal.Decimal {
	sums := make([]decimal.Decimal, len(series))
	var running decimal.Decimal
	for i, day := range series {
		running = running.Add(day.Profit)
		sums[i] = running
	}
	return sums
}
