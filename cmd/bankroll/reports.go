package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/google/subcommands"

	"github.com/laurentRibous/poker-bankroll-tracker/internal/bankroll"
	"github.com/laurentRibous/poker-bankroll-tracker/internal/calendar"
)

func newTable() *tabwriter.Writer {
	return tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
}

type reportCmd struct {
	account string
	asOf    string
}

func (*reportCmd) Name() string     { return "report" }
func (*reportCmd) Synopsis() string { return "show the gap-filled daily series for one account" }
func (*reportCmd) Usage() string {
	return `bankroll report -account <room> [-as-of <YYYY-MM-DD>]

  Shows one reconciled row per calendar day from the account's start
  date: forward-filled bankroll, flow, tournaments, daily pure profit
  and the cumulative profit.
`
}

func (c *reportCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.account, "account", "", "room name")
	f.StringVar(&c.asOf, "as-of", "", "end date (defaults to today)")
}

func (c *reportCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	asOf, err := parseDate(c.asOf)
	if err != nil {
		return fail(err)
	}
	series, err := service(args).Reconcile(ctx, c.account, asOf)
	if err != nil {
		return fail(err)
	}
	cumulative := bankroll.CumulativeProfit(series)

	w := newTable()
	fmt.Fprintln(w, "DATE\tBANKROLL\tFLOW\tTOURNAMENTS\tPROFIT\tCUMULATIVE")
	for i, day := range series {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			day.Date, money(day.Balance), money(day.Flow), day.Tournaments,
			money(day.Profit), money(cumulative[i]))
	}
	w.Flush()
	return subcommands.ExitSuccess
}

type summaryCmd struct {
	account string
	period  string
	asOf    string
}

func (*summaryCmd) Name() string     { return "summary" }
func (*summaryCmd) Synopsis() string { return "show profit and tournaments per week, month or year" }
func (*summaryCmd) Usage() string {
	return `bankroll summary -account <room> -period <week|month|year> [-as-of <YYYY-MM-DD>]

  Buckets the daily series into calendar periods. Weeks start on Monday
  and are labeled by ISO week.
`
}

func (c *summaryCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.account, "account", "", "room name")
	f.StringVar(&c.period, "period", "month", "bucket period: week, month or year")
	f.StringVar(&c.asOf, "as-of", "", "end date (defaults to today)")
}

func (c *summaryCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	period, err := calendar.ParsePeriod(c.period)
	if err != nil {
		return fail(err)
	}
	asOf, err := parseDate(c.asOf)
	if err != nil {
		return fail(err)
	}
	series, err := service(args).Reconcile(ctx, c.account, asOf)
	if err != nil {
		return fail(err)
	}

	w := newTable()
	fmt.Fprintln(w, "PERIOD\tPROFIT\tTOURNAMENTS")
	for _, b := range bankroll.Resample(series, period) {
		fmt.Fprintf(w, "%s\t%s\t%d\n", b.Label, money(b.Profit), b.Tournaments)
	}
	w.Flush()
	return subcommands.ExitSuccess
}

type portfolioCmd struct {
	asOf   string
	period string
}

func (*portfolioCmd) Name() string     { return "portfolio" }
func (*portfolioCmd) Synopsis() string { return "show the merged cross-room daily series" }
func (*portfolioCmd) Usage() string {
	return `bankroll portfolio [-as-of <YYYY-MM-DD>] [-period <day|week|month|year>]

  Merges every room's daily series into a portfolio-wide view. Rooms
  contribute only from their own start dates. With a period other than
  day, profit and tournaments are bucketed.
`
}

func (c *portfolioCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.asOf, "as-of", "", "end date (defaults to today)")
	f.StringVar(&c.period, "period", "day", "bucket period: day, week, month or year")
}

func (c *portfolioCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	period, err := calendar.ParsePeriod(c.period)
	if err != nil {
		return fail(err)
	}
	asOf, err := parseDate(c.asOf)
	if err != nil {
		return fail(err)
	}
	merged, err := service(args).MergeAccounts(ctx, asOf)
	if err != nil {
		return fail(err)
	}

	w := newTable()
	if period == calendar.Daily {
		fmt.Fprintln(w, "DATE\tBANKROLL\tPROFIT\tTOURNAMENTS")
		for _, day := range merged {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", day.Date, money(day.Balance), money(day.Profit), day.Tournaments)
		}
	} else {
		fmt.Fprintln(w, "PERIOD\tPROFIT\tTOURNAMENTS")
		for _, b := range bankroll.ResampleMerged(merged, period) {
			fmt.Fprintf(w, "%s\t%s\t%d\n", b.Label, money(b.Profit), b.Tournaments)
		}
	}
	w.Flush()
	return subcommands.ExitSuccess
}

type dashboardCmd struct{}

func (*dashboardCmd) Name() string     { return "dashboard" }
func (*dashboardCmd) Synopsis() string { return "show the per-room rollup with gross/net profit" }
func (*dashboardCmd) Usage() string {
	return `bankroll dashboard

  Shows every room's current bankroll, totals and profit at a glance.
`
}

func (*dashboardCmd) SetFlags(*flag.FlagSet) {}

func (c *dashboardCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	summaries, err := service(args).Summary(ctx)
	if err != nil {
		return fail(err)
	}

	w := newTable()
	fmt.Fprintln(w, "ROOM\tINITIAL\tCURRENT\tSESSIONS\tTOURNAMENTS\tGROSS\tNET\tROI%")
	for _, s := range summaries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\t%s\t%s\n",
			s.Account.Name, money(s.Account.InitialBalance), money(s.CurrentBalance),
			s.Sessions, s.Tournaments, money(s.GrossProfit), money(s.NetProfit),
			s.ROI.StringFixed(1))
	}
	w.Flush()
	return subcommands.ExitSuccess
}

type historyCmd struct {
	account string
}

func (*historyCmd) Name() string { return "history" }
func (*historyCmd) Synopsis() string {
	return "list sessions most recent first with per-session profit"
}
func (*historyCmd) Usage() string {
	return `bankroll history [-account <room>]

  Lists recorded sessions with their ids (for update/delete), the raw
  balance delta and the flow-adjusted pure profit per session.
`
}

func (c *historyCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.account, "account", "", "room name (all rooms when empty)")
}

func (c *historyCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	entries, err := service(args).History(ctx, c.account)
	if err != nil {
		return fail(err)
	}

	w := newTable()
	fmt.Fprintln(w, "ID\tROOM\tDATE\tTOURNAMENTS\tFLOW\tBANKROLL\tPROFIT\tPURE PROFIT")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
			e.Session.ID, e.AccountName, e.Session.Date, e.Session.Tournaments,
			money(e.Session.Flow), money(e.Session.Balance),
			money(e.SessionProfit), money(e.PureProfit))
	}
	w.Flush()
	return subcommands.ExitSuccess
}

type auditCmd struct{}

func (*auditCmd) Name() string     { return "audit" }
func (*auditCmd) Synopsis() string { return "list the audit trail and verify its hash chain" }
func (*auditCmd) Usage() string {
	return `bankroll audit

  Lists every recorded mutation and checks the tamper-evidence chain.
`
}

func (*auditCmd) SetFlags(*flag.FlagSet) {}

func (c *auditCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	entries, intact, err := service(args).AuditTrail(ctx)
	if err != nil {
		return fail(err)
	}

	w := newTable()
	fmt.Fprintln(w, "TIME\tACTION\tTABLE\tRECORD\tOLD\tNEW")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Time.Format("2006-01-02 15:04:05"), e.Action, e.Table, e.RecordID, e.OldValue, e.NewValue)
	}
	w.Flush()

	if !intact {
		fmt.Fprintln(os.Stderr, "WARNING: audit hash chain is broken")
		return subcommands.ExitFailure
	}
	fmt.Printf("%d entries, hash chain intact\n", len(entries))
	return subcommands.ExitSuccess
}
