package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/inventory-ledger/internal/inventory"
)

type stubSource struct {
	warehouses []int64
	found      map[int64][]inventory.Discrepancy
	err        error
}

func (s stubSource) ListWarehouseIDs(context.Context) ([]int64, error) {
	return s.warehouses, nil
}

func (s stubSource) Reconcile(_ context.Context, warehouseID int64) ([]inventory.Discrepancy, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.found[warehouseID], nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestReconcileCommandJSONClean(t *testing.T) {
	var stdout, stderr bytes.Buffer
	cmd := NewReconcileCLI(stubSource{warehouses: []int64{1, 2}}, quietLogger())

	code := cmd.Command(context.Background(), ReconcileOptions{JSONOutput: true, Stdout: &stdout, Stderr: &stderr})
	require.Equal(t, 0, code)

	var summary ReconcileSummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	require.True(t, summary.OK)
	require.Empty(t, summary.Discrepancies)
}

func TestReconcileCommandReportsDiscrepancies(t *testing.T) {
	var stdout, stderr bytes.Buffer
	source := stubSource{found: map[int64][]inventory.Discrepancy{
		7: {{
			Cell:        inventory.Cell{ProductID: 3, WarehouseID: 7},
			Quantity:    decimal.NewFromInt(12),
			MovementSum: decimal.NewFromInt(10),
		}},
	}}
	cmd := NewReconcileCLI(source, quietLogger())

	code := cmd.Command(context.Background(), ReconcileOptions{Warehouses: "7", Stdout: &stdout, Stderr: &stderr})
	require.Equal(t, 10, code)
	require.Contains(t, stdout.String(), "product 3 @ warehouse 7: quantity 12, movements 10")
}

func TestReconcileCommandErrors(t *testing.T) {
	var stdout, stderr bytes.Buffer
	cmd := NewReconcileCLI(stubSource{err: errors.New("db down")}, quietLogger())

	require.Equal(t, 1, cmd.Command(context.Background(), ReconcileOptions{Warehouses: "1,x", Stdout: &stdout, Stderr: &stderr}))
	require.Contains(t, stderr.String(), `invalid warehouse id "x"`)

	stderr.Reset()
	require.Equal(t, 1, cmd.Command(context.Background(), ReconcileOptions{Warehouses: "1", Stdout: &stdout, Stderr: &stderr}))
	require.Contains(t, stderr.String(), "db down")
}

func TestParseIDs(t *testing.T) {
	ids, err := ParseIDs(" 4, 9 ")
	require.NoError(t, err)
	require.Equal(t, []int64{4, 9}, ids)

	ids, err = ParseIDs("")
	require.NoError(t, err)
	require.Nil(t, ids)

	_, err = ParseIDs("0")
	require.Error(t, err)
}
