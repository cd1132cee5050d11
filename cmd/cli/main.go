package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/amirasaad/treasury/infra/initializer"
	"github.com/amirasaad/treasury/pkg/app"
	"github.com/amirasaad/treasury/pkg/config"
	"github.com/amirasaad/treasury/pkg/domain/ledger"
	"github.com/amirasaad/treasury/pkg/money"
	"github.com/fatih/color"
)

const usage = `Usage: cli <command> [arguments]
Commands:
  migrate                  apply database migrations and sync pools
  pools                    list pools with balances
  balance <pool>           show a pool balance
  proceeds <ref> <gross>   allocate gross proceeds, e.g. proceeds order-42 1500.00
  aggregate                build a payout batch from unbatched earnings
  check-sunset             recompute sunset progress`

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		return
	}
	if err := run(context.Background(), os.Stdout, os.Args[1], os.Args[2:]); err != nil {
		color.New(color.FgRed).Fprintln(os.Stderr, "Error:", err) //nolint:errcheck
		os.Exit(1)
	}
}

func run(ctx context.Context, out io.Writer, cmd string, args []string) error {
	cfg, err := config.Load(".env")
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if cmd == "migrate" {
		cfg.DB.AutoMigrate = true
	}
	deps, err := initializer.InitializeDependencies(cfg)
	if err != nil {
		return err
	}
	a, err := app.New(deps, cfg)
	if err != nil {
		return err
	}
	return dispatch(ctx, out, a, cmd, args)
}

func dispatch(ctx context.Context, out io.Writer, a *app.App, cmd string, args []string) error {
	switch cmd {
	case "migrate":
		if err := a.SyncPools(ctx); err != nil {
			return err
		}
		_, err := fmt.Fprintln(out, "Migrations applied, pools synced")
		return err
	case "pools":
		pools, err := a.Ledger.ListPools(ctx)
		if err != nil {
			return err
		}
		for _, p := range pools {
			fmt.Fprintf(out, "%-10s %s  alloc=%s%%  usdt=%s  held=%s  available=%s\n", //nolint:errcheck
				p.Pool.Name, p.Pool.CustodyAddress, p.Pool.AllocationPct().String(),
				p.Balance.USDT.StringFixed(), p.Held.StringFixed(), p.Available.StringFixed())
		}
		return nil
	case "balance":
		if len(args) < 1 {
			return fmt.Errorf("usage: balance <pool>")
		}
		pool, err := ledger.ParsePoolName(args[0])
		if err != nil {
			return err
		}
		bal, err := a.Ledger.GetBalance(ctx, pool, nil)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "Pool %s balance: %s USDT, %s GAS\n", pool, bal.USDT.StringFixed(), bal.Gas.StringFixed())
		return err
	case "proceeds":
		if len(args) < 2 {
			return fmt.Errorf("usage: proceeds <ref> <gross>")
		}
		gross, err := money.Parse(args[1], money.USDTCurrency)
		if err != nil {
			return err
		}
		res, err := a.Ledger.ReceiveProceeds(ctx, args[0], gross.Amount())
		if err != nil {
			return err
		}
		for _, tx := range res.Transactions {
			fmt.Fprintf(out, "credited %-10s %s\n", tx.Pool, tx.Money().StringFixed()) //nolint:errcheck
		}
		return nil
	case "aggregate":
		b, err := a.Payouts.Aggregate(ctx, time.Time{})
		if err != nil {
			return err
		}
		if b == nil {
			_, err = fmt.Fprintln(out, "Nothing to aggregate")
			return err
		}
		_, err = fmt.Fprintf(out, "Batch %s: %d affiliates, total %s USDT\n", b.ID, b.AffiliateCount, b.Total().StringFixed())
		return err
	case "check-sunset":
		p, err := a.Sunset.CheckSunset(ctx)
		if err != nil {
			return err
		}
		line := color.New(color.FgGreen)
		if p.IsTriggered {
			line = color.New(color.FgYellow, color.Bold)
		}
		_, err = line.Fprintf(out, "Sunset progress %s%% (avg %s / %d), triggered=%t\n",
			p.Percentage.StringFixed(2), p.Rolling3moAvg.StringFixed(2), p.Threshold, p.IsTriggered)
		return err
	default:
		return fmt.Errorf("unknown command %q\n%s", cmd, usage)
	}
}
