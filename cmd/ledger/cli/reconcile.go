package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/odyssey-erp/inventory-ledger/internal/inventory"
	"github.com/odyssey-erp/inventory-ledger/jobs"
)

// ReconcileOptions defines available flags for the reconcile command.
type ReconcileOptions struct {
	Warehouses string
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// ReconcileSummary describes the JSON response for reconcile.
type ReconcileSummary struct {
	OK            bool                   `json:"ok"`
	Discrepancies []ReconcileDiscrepancy `json:"discrepancies"`
}

// ReconcileDiscrepancy is one stock cell that disagrees with its movements.
type ReconcileDiscrepancy struct {
	ProductID   int64  `json:"product_id"`
	WarehouseID int64  `json:"warehouse_id"`
	Quantity    string `json:"quantity"`
	MovementSum string `json:"movement_sum"`
}

// ReconcileCLI runs the reconciliation synchronously against the database.
type ReconcileCLI struct {
	source jobs.ReconcileSource
	logger *slog.Logger
}

// NewReconcileCLI constructs the command around a reconcile source.
func NewReconcileCLI(source jobs.ReconcileSource, logger *slog.Logger) *ReconcileCLI {
	return &ReconcileCLI{source: source, logger: logger}
}

// Command executes reconcile and prints the outcome. It exits 10 when
// discrepancies are found.
func (c *ReconcileCLI) Command(ctx context.Context, opts ReconcileOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	warehouseIDs, err := ParseIDs(opts.Warehouses)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "reconcile: %v\n", err)
		return 1
	}
	job := jobs.NewReconcileJob(c.source, c.logger, nil)
	found, err := job.Run(ctx, warehouseIDs)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "reconcile: %v\n", err)
		return 1
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(buildReconcileSummary(found)); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "reconcile: encode json: %v\n", err)
			return 1
		}
	} else {
		renderReconcileHuman(opts.Stdout, found)
	}
	if len(found) > 0 {
		return 10
	}
	return 0
}

// ParseIDs reads a comma separated list of positive ids. Empty input yields nil.
func ParseIDs(raw string) ([]int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid warehouse id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func buildReconcileSummary(found []inventory.Discrepancy) ReconcileSummary {
	rows := make([]ReconcileDiscrepancy, 0, len(found))
	for _, d := range found {
		rows = append(rows, ReconcileDiscrepancy{
			ProductID:   d.ProductID,
			WarehouseID: d.WarehouseID,
			Quantity:    d.Quantity.String(),
			MovementSum: d.MovementSum.String(),
		})
	}
	return ReconcileSummary{OK: len(rows) == 0, Discrepancies: rows}
}

func renderReconcileHuman(out io.Writer, found []inventory.Discrepancy) {
	if len(found) == 0 {
		_, _ = fmt.Fprintln(out, "Stock quantities match the movement log.")
		return
	}
	_, _ = fmt.Fprintf(out, "%d discrepancy(ies) detected:\n", len(found))
	for _, d := range found {
		_, _ = fmt.Fprintf(out, "  product %d @ warehouse %d: quantity %s, movements %s\n",
			d.ProductID, d.WarehouseID, d.Quantity.String(), d.MovementSum.String())
	}
}
