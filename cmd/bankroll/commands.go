package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
	"github.com/shopspring/decimal"

	"github.com/laurentRibous/poker-bankroll-tracker/internal/bankroll"
	"github.com/laurentRibous/poker-bankroll-tracker/internal/calendar"
)

// service extracts the ledger service handed to subcommands.Execute.
func service(args []interface{}) *bankroll.Service {
	return args[0].(*bankroll.Service)
}

func fail(err error) subcommands.ExitStatus {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return subcommands.ExitFailure
}

// parseDate parses a -date style flag, defaulting to today when empty.
func parseDate(s string) (calendar.Date, error) {
	if s == "" {
		return calendar.Today(), nil
	}
	return calendar.ParseDate(s)
}

func parseMoney(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return d, nil
}

// money formats an amount for display, rounding only here at the edge.
func money(d decimal.Decimal) string { return d.StringFixed(2) + "€" }

type initCmd struct {
	name    string
	balance string
	date    string
}

func (*initCmd) Name() string     { return "init" }
func (*initCmd) Synopsis() string { return "create a room account with its starting bankroll" }
func (*initCmd) Usage() string {
	return `bankroll init -name <room> -balance <amount> [-date <YYYY-MM-DD>]

  Creates a new room account tracked from the given start date.
`
}

func (c *initCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.name, "name", "", "room name (unique)")
	f.StringVar(&c.balance, "balance", "0", "initial bankroll")
	f.StringVar(&c.date, "date", "", "start date (defaults to today)")
}

func (c *initCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	balance, err := parseMoney(c.balance)
	if err != nil {
		return fail(err)
	}
	date, err := parseDate(c.date)
	if err != nil {
		return fail(err)
	}
	acct, err := service(args).CreateAccount(ctx, c.name, balance, date)
	if err != nil {
		return fail(err)
	}
	fmt.Printf("Created %s with %s starting %s\n", acct.Name, money(acct.InitialBalance), acct.StartDate)
	return subcommands.ExitSuccess
}

type recordCmd struct {
	account     string
	date        string
	tournaments int
	flow        string
	balance     string
}

func (*recordCmd) Name() string { return "record" }
func (*recordCmd) Synopsis() string {
	return "record a session; same-day records merge tournaments and flow"
}
func (*recordCmd) Usage() string {
	return `bankroll record -account <room> -balance <amount> [-date <YYYY-MM-DD>] [-tournaments n] [-flow <amount>]

  Records one day's session. Recording twice on the same date adds
  tournaments and flow and overwrites the balance with the latest value.
  Flow is positive for a deposit, negative for a withdrawal.
`
}

func (c *recordCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.account, "account", "", "room name")
	f.StringVar(&c.date, "date", "", "session date (defaults to today)")
	f.IntVar(&c.tournaments, "tournaments", 0, "number of tournaments played")
	f.StringVar(&c.flow, "flow", "0", "deposit (positive) or withdrawal (negative)")
	f.StringVar(&c.balance, "balance", "", "bankroll after the session")
}

func (c *recordCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	date, err := parseDate(c.date)
	if err != nil {
		return fail(err)
	}
	flow, err := parseMoney(c.flow)
	if err != nil {
		return fail(err)
	}
	balance, err := parseMoney(c.balance)
	if err != nil {
		return fail(err)
	}
	sess, created, err := service(args).RecordSession(ctx, c.account, date, c.tournaments, flow, balance)
	if err != nil {
		return fail(err)
	}
	verb := "Merged into"
	if created {
		verb = "Recorded"
	}
	fmt.Printf("%s session %s on %s: %d tournaments, flow %s, balance %s\n",
		verb, sess.ID, sess.Date, sess.Tournaments, money(sess.Flow), money(sess.Balance))
	return subcommands.ExitSuccess
}

type updateCmd struct {
	id          string
	date        string
	tournaments int
	flow        string
	balance     string
}

func (*updateCmd) Name() string     { return "update" }
func (*updateCmd) Synopsis() string { return "correct a session by id, replacing all its fields" }
func (*updateCmd) Usage() string {
	return `bankroll update -id <session-id> -date <YYYY-MM-DD> -tournaments n -flow <amount> -balance <amount>

  Replaces a session wholesale. The prior row is captured in the audit
  trail before the write.
`
}

func (c *updateCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.id, "id", "", "session id")
	f.StringVar(&c.date, "date", "", "session date")
	f.IntVar(&c.tournaments, "tournaments", 0, "number of tournaments played")
	f.StringVar(&c.flow, "flow", "0", "deposit (positive) or withdrawal (negative)")
	f.StringVar(&c.balance, "balance", "", "bankroll after the session")
}

func (c *updateCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	date, err := parseDate(c.date)
	if err != nil {
		return fail(err)
	}
	flow, err := parseMoney(c.flow)
	if err != nil {
		return fail(err)
	}
	balance, err := parseMoney(c.balance)
	if err != nil {
		return fail(err)
	}
	if err := service(args).UpdateSession(ctx, c.id, date, c.tournaments, flow, balance); err != nil {
		return fail(err)
	}
	fmt.Printf("Updated session %s\n", c.id)
	return subcommands.ExitSuccess
}

type deleteSessionCmd struct {
	id string
}

func (*deleteSessionCmd) Name() string     { return "delete-session" }
func (*deleteSessionCmd) Synopsis() string { return "delete one session by id" }
func (*deleteSessionCmd) Usage() string {
	return `bankroll delete-session -id <session-id>

  Deletes a session after capturing it in the audit trail.
`
}

func (c *deleteSessionCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.id, "id", "", "session id")
}

func (c *deleteSessionCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	if err := service(args).DeleteSession(ctx, c.id); err != nil {
		return fail(err)
	}
	fmt.Printf("Deleted session %s\n", c.id)
	return subcommands.ExitSuccess
}

type deleteAccountCmd struct {
	name string
}

func (*deleteAccountCmd) Name() string     { return "delete-account" }
func (*deleteAccountCmd) Synopsis() string { return "delete a room account and all its sessions" }
func (*deleteAccountCmd) Usage() string {
	return `bankroll delete-account -name <room>

  Deletes the account and cascades to its sessions as one atomic,
  fully audited unit.
`
}

func (c *deleteAccountCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.name, "name", "", "room name")
}

func (c *deleteAccountCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	removed, err := service(args).DeleteAccount(ctx, c.name)
	if err != nil {
		return fail(err)
	}
	fmt.Printf("Deleted %s and %d sessions\n", c.name, removed)
	return subcommands.ExitSuccess
}

type correctCmd struct {
	name    string
	balance string
	date    string
}

func (*correctCmd) Name() string { return "correct" }
func (*correctCmd) Synopsis() string {
	return "correct an account's initial bankroll and start date together"
}
func (*correctCmd) Usage() string {
	return `bankroll correct -name <room> -balance <amount> -date <YYYY-MM-DD>

  Rewrites the paired (initial bankroll, start date) baseline. Sessions
  dated before a later start date are kept but excluded from reports.
`
}

func (c *correctCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.name, "name", "", "room name")
	f.StringVar(&c.balance, "balance", "", "corrected initial bankroll")
	f.StringVar(&c.date, "date", "", "corrected start date")
}

func (c *correctCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	balance, err := parseMoney(c.balance)
	if err != nil {
		return fail(err)
	}
	date, err := parseDate(c.date)
	if err != nil {
		return fail(err)
	}
	if err := service(args).CorrectInitial(ctx, c.name, balance, date); err != nil {
		return fail(err)
	}
	fmt.Printf("Corrected %s to %s starting %s\n", c.name, money(balance), date)
	return subcommands.ExitSuccess
}
