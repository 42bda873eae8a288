package services

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Lllllllleong/bolledger/internal/metrics"
	"github.com/Lllllllleong/bolledger/internal/models"
	"github.com/Lllllllleong/bolledger/internal/tabular"
)

// AppendResult reports what a ledger append did.
type AppendResult struct {
	Appended      int
	Duplicates    int
	HeaderWritten bool
}

// LedgerWriter appends linked records to the ledger, deduplicated by order number.
// Existing rows are never modified.
type LedgerWriter struct {
	table   tabular.Table
	now     func() time.Time
	log     zerolog.Logger
	metrics *metrics.PipelineMetrics
}

func NewLedgerWriter(table tabular.Table, now func() time.Time, log zerolog.Logger, m *metrics.PipelineMetrics) *LedgerWriter {
	if now == nil {
		now = time.Now
	}
	return &LedgerWriter{table: table, now: now, log: log, metrics: m}
}

// Append writes the records whose order number is not already in the ledger.
// The first occurrence of a key wins, both against the ledger and within the batch.
// Records with an empty order number are always written.
func (w *LedgerWriter) Append(ctx context.Context, records []models.LinkedRecord) (AppendResult, error) {
	var result AppendResult
	if len(records) == 0 {
		return result, nil
	}

	values, err := w.table.Values(ctx)
	if err != nil {
		return result, fmt.Errorf("read ledger: %w", err)
	}

	var header []string
	var out [][]string
	if len(values) == 0 {
		header = models.LedgerColumns
		out = append(out, header)
		result.HeaderWritten = true
	} else {
		header, err = w.ensureHeader(ctx, values[0])
		if err != nil {
			return result, err
		}
	}

	seen := make(map[string]struct{}, len(values))
	for _, row := range values[min(1, len(values)):] {
		if key := models.LedgerRowFromValues(header, row).OrderNumber(); key != "" {
			seen[key] = struct{}{}
		}
	}

	stamp := w.now().Format(models.LedgerTimestampForm)
	for _, rec := range records {
		row := models.NewLedgerRow(rec)
		key := row.OrderNumber()
		if key != "" {
			if _, dup := seen[key]; dup {
				result.Duplicates++
				w.log.Info().Str("order_number", key).Msg("order already in ledger, skipping")
				continue
			}
			seen[key] = struct{}{}
		}
		row = row.Set(models.ColCurrentDatetime, stamp).Set(models.ColReviewed, models.ReviewedFalse)
		out = append(out, row.Values(header))
		result.Appended++
	}

	w.metrics.AddLedgerRows("duplicate", result.Duplicates)
	if result.Appended == 0 {
		result.HeaderWritten = false
		return result, nil
	}
	if err := w.table.Append(ctx, out); err != nil {
		return AppendResult{}, fmt.Errorf("append %d ledger rows: %w", result.Appended, err)
	}
	w.metrics.AddLedgerRows("appended", result.Appended)
	w.log.Info().Int("appended", result.Appended).Int("duplicates", result.Duplicates).Msg("ledger updated")
	return result, nil
}

// ensureHeader adds any ledger columns missing from an existing header, to its right.
func (w *LedgerWriter) ensureHeader(ctx context.Context, existing []string) ([]string, error) {
	header := append([]string(nil), existing...)
	for _, col := range models.LedgerColumns {
		if tabular.ColumnIndex(header, col) >= 0 {
			continue
		}
		if err := w.table.UpdateCell(ctx, 0, len(header), col); err != nil {
			return nil, fmt.Errorf("add ledger column %q: %w", col, err)
		}
		header = append(header, col)
	}
	return trimmedHeader(header), nil
}
