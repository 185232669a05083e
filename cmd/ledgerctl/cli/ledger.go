package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/udaykiran1867/tce-project1/internal/inventory"
)

// Exit codes shared by the ledger commands.
const (
	ExitClean = 0
	ExitError = 1
	ExitDrift = 2
)

// Ledger is the part of the inventory service the CLI drives.
type Ledger interface {
	CheckLedger(ctx context.Context) ([]inventory.Drift, error)
	RepairLedger(ctx context.Context) ([]inventory.Drift, error)
}

// LedgerCLI runs drift checks and repairs against the stock ledger.
type LedgerCLI struct {
	ledger Ledger
}

// NewLedgerCLI constructs the helper.
func NewLedgerCLI(ledger Ledger) (*LedgerCLI, error) {
	if ledger == nil {
		return nil, errors.New("ledger cli: service required")
	}
	return &LedgerCLI{ledger: ledger}, nil
}

// LedgerOptions controls output of the ledger commands.
type LedgerOptions struct {
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// DriftSummary is the JSON document printed by drift and repair.
type DriftSummary struct {
	OK    bool              `json:"ok"`
	Drift []inventory.Drift `json:"drift"`
}

// DriftCommand reports drifted products. It exits with ExitDrift when any
// product disagrees with its movement log.
func (c *LedgerCLI) DriftCommand(ctx context.Context, opts LedgerOptions) int {
	opts = withDefaults(opts)
	rows, err := c.ledger.CheckLedger(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "ledger drift: %v\n", err)
		return ExitError
	}
	if err := render(opts, "Ledger drift check", rows); err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "ledger drift: %v\n", err)
		return ExitError
	}
	if len(rows) > 0 {
		return ExitDrift
	}
	return ExitClean
}

// RepairCommand rewrites drifted products from the movement log. Repaired
// drift counts as success.
func (c *LedgerCLI) RepairCommand(ctx context.Context, opts LedgerOptions) int {
	opts = withDefaults(opts)
	rows, err := c.ledger.RepairLedger(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "ledger repair: %v\n", err)
		return ExitError
	}
	if err := render(opts, "Ledger repair", rows); err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "ledger repair: %v\n", err)
		return ExitError
	}
	return ExitClean
}

func withDefaults(opts LedgerOptions) LedgerOptions {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	return opts
}

func render(opts LedgerOptions, title string, rows []inventory.Drift) error {
	sorted := append([]inventory.Drift{}, rows...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ProductID < sorted[j].ProductID })
	if opts.JSONOutput {
		return json.NewEncoder(opts.Stdout).Encode(DriftSummary{OK: len(sorted) == 0, Drift: sorted})
	}
	if len(sorted) == 0 {
		_, err := fmt.Fprintf(opts.Stdout, "%s: ledger matches movement log.\n", title)
		return err
	}
	if _, err := fmt.Fprintf(opts.Stdout, "%s: %d product(s)\n", title, len(sorted)); err != nil {
		return err
	}
	for _, row := range sorted {
		state := ""
		if row.Repaired {
			state = " (repaired)"
		}
		if _, err := fmt.Fprintf(opts.Stdout, " - product %d: stored %d, replayed %d, master %d, delta %+d%s\n",
			row.ProductID, row.Stored, row.Replayed, row.Master, row.Delta(), state); err != nil {
			return err
		}
	}
	return nil
}
