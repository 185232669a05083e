package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/udaykiran1867/tce-project1/cmd/ledgerctl/cli"
	"github.com/udaykiran1867/tce-project1/internal/app"
	"github.com/udaykiran1867/tce-project1/internal/inventory"
	"github.com/udaykiran1867/tce-project1/internal/platform/cache"
	"github.com/udaykiran1867/tce-project1/internal/platform/db"
	"github.com/udaykiran1867/tce-project1/internal/reporting"
	"github.com/udaykiran1867/tce-project1/internal/shared"
)

const usage = `usage: ledgerctl <command> [flags]

commands:
  drift [-json]      compare stored availability with the movement log
  repair [-json]     rewrite drifted availability from the movement log
  enqueue <task>     queue drift | repair | warmup | cleanup on the worker
  queue              print default queue statistics
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		_, _ = fmt.Fprint(stderr, usage)
		return cli.ExitError
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "ledgerctl: load config: %v\n", err)
		return cli.ExitError
	}

	command, rest := args[0], args[1:]
	switch command {
	case "drift", "repair":
		fs := flag.NewFlagSet(command, flag.ContinueOnError)
		fs.SetOutput(stderr)
		asJSON := fs.Bool("json", false, "print JSON output")
		if err := fs.Parse(rest); err != nil {
			return cli.ExitError
		}
		service, cleanup, err := buildLedger(ctx, cfg)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "ledgerctl: %v\n", err)
			return cli.ExitError
		}
		defer cleanup()
		ledger, err := cli.NewLedgerCLI(service)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "ledgerctl: %v\n", err)
			return cli.ExitError
		}
		opts := cli.LedgerOptions{JSONOutput: *asJSON, Stdout: stdout, Stderr: stderr}
		if command == "repair" {
			return ledger.RepairCommand(ctx, opts)
		}
		return ledger.DriftCommand(ctx, opts)
	case "enqueue", "queue":
		jobsCLI := cli.NewJobsCLI(asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer func() { _ = jobsCLI.Close() }()
		if command == "queue" {
			stats, err := jobsCLI.InspectQueue(ctx)
			if err != nil {
				_, _ = fmt.Fprintf(stderr, "ledgerctl: %v\n", err)
				return cli.ExitError
			}
			_ = json.NewEncoder(stdout).Encode(stats)
			return cli.ExitClean
		}
		if len(rest) != 1 {
			_, _ = fmt.Fprint(stderr, usage)
			return cli.ExitError
		}
		info, err := jobsCLI.Trigger(ctx, rest[0])
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "ledgerctl: %v\n", err)
			return cli.ExitError
		}
		_, _ = fmt.Fprintf(stdout, "queued %s as %s\n", info.Type, info.ID)
		return cli.ExitClean
	}
	_, _ = fmt.Fprint(stderr, usage)
	return cli.ExitError
}

func buildLedger(ctx context.Context, cfg *app.Config) (*inventory.Service, func(), error) {
	logger := app.NewLogger(cfg)
	loc, err := cfg.Location()
	if err != nil {
		return nil, nil, err
	}
	pool, err := db.New(ctx, cfg.PGDSN, 2)
	if err != nil {
		return nil, nil, err
	}
	cleanup := pool.Close
	var invalidator inventory.CacheInvalidator
	if client, err := cache.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB); err != nil {
		logger.Warn("redis unavailable, report cache will not be invalidated", slog.Any("error", err))
	} else {
		invalidator = reporting.NewCache(client, cfg.ReportCacheTTL)
		cleanup = func() {
			_ = client.Close()
			pool.Close()
		}
	}
	service := inventory.NewService(
		inventory.NewRepository(pool),
		shared.NewIdempotencyStore(pool, cfg.IdempotencyClaimTTL),
		invalidator,
		inventory.ServiceConfig{RequireDefectRemark: cfg.DefectRemarkRequired, Location: loc},
		logger,
	)
	return service, cleanup, nil
}
