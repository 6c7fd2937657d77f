// Command bankroll tracks poker bankrolls across rooms: sparse per-day
// session records are reconciled into dense daily series with a
// flow-adjusted profit metric, and every mutation is captured in an
// append-only audit trail.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/laurentRibous/poker-bankroll-tracker/internal/bankroll"
	"github.com/laurentRibous/poker-bankroll-tracker/internal/config"
	"github.com/laurentRibous/poker-bankroll-tracker/internal/store"
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")

	subcommands.Register(&initCmd{}, "accounts")
	subcommands.Register(&correctCmd{}, "accounts")
	subcommands.Register(&deleteAccountCmd{}, "accounts")

	subcommands.Register(&recordCmd{}, "sessions")
	subcommands.Register(&updateCmd{}, "sessions")
	subcommands.Register(&deleteSessionCmd{}, "sessions")

	subcommands.Register(&dashboardCmd{}, "reports")
	subcommands.Register(&reportCmd{}, "reports")
	subcommands.Register(&summaryCmd{}, "reports")
	subcommands.Register(&portfolioCmd{}, "reports")
	subcommands.Register(&historyCmd{}, "reports")
	subcommands.Register(&auditCmd{}, "reports")

	flag.Parse()
	os.Exit(int(run(context.Background())))
}

func run(ctx context.Context) subcommands.ExitStatus {
	cfg, err := config.Load()
	if err != nil {
		return fail(err)
	}
	ledgerStore, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return fail(err)
	}
	defer closeStore()

	return subcommands.Execute(ctx, bankroll.NewService(ledgerStore))
}

// openStore opens the configured store, returning it with its close
// function so run's defer fires on every exit path.
func openStore(ctx context.Context, cfg *config.Config) (bankroll.Store, func(), error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		pg, err := store.OpenPostgres(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres store: %w", err)
		}
		return pg, pg.Close, nil
	default:
		lite, err := store.OpenSQLite(cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return lite, func() { lite.Close() }, nil
	}
}
