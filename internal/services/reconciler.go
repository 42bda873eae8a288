package services

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"github.com/Lllllllleong/bolledger/internal/blobstore"
	"github.com/Lllllllleong/bolledger/internal/metrics"
	"github.com/Lllllllleong/bolledger/internal/models"
	"github.com/Lllllllleong/bolledger/internal/sellercloud"
	"github.com/Lllllllleong/bolledger/internal/tabular"
)

// OrderSystem is the external order management system.
type OrderSystem interface {
	Token(ctx context.Context) (string, error)
	ListOrders(ctx context.Context, token string) ([]models.ExternalOrder, error)
	UploadDocument(ctx context.Context, token, orderID, base64Content, fileName string) (int, error)
}

// UploadCandidate is a ledger row matched to an external order and not yet uploaded.
type UploadCandidate struct {
	OrderID     string
	PDFLink     string
	OrderNumber string
}

// ReconcileReport summarizes one reconciliation pass.
type ReconcileReport struct {
	Matched         int
	Unmatched       int
	AlreadyUploaded int
	Uploaded        int
	Failed          int
	Skipped         int
	// Errors aggregates per-candidate upload failures.
	Errors error
}

// Reconciler matches ledger rows to external orders, records their status and
// pushes the page PDF of every newly matched row to its order.
type Reconciler struct {
	table   tabular.Table
	orders  OrderSystem
	store   blobstore.Store
	log     zerolog.Logger
	metrics *metrics.PipelineMetrics
}

func NewReconciler(table tabular.Table, orders OrderSystem, store blobstore.Store, log zerolog.Logger, m *metrics.PipelineMetrics) *Reconciler {
	return &Reconciler{table: table, orders: orders, store: store, log: log, metrics: m}
}

// Reconcile runs one pass. Errors wrapping ErrCycleFatal mean nothing was written.
func (r *Reconciler) Reconcile(ctx context.Context) (*ReconcileReport, error) {
	token, err := r.orders.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: order system token: %v", ErrCycleFatal, err)
	}
	orders, err := r.orders.ListOrders(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%w: list orders: %v", ErrCycleFatal, err)
	}
	values, err := r.table.Values(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: read ledger: %v", ErrCycleFatal, err)
	}

	report := &ReconcileReport{}
	if len(values) < 2 {
		r.log.Info().Msg("ledger is empty, nothing to reconcile")
		return report, nil
	}

	header := values[0]
	rows := make([]models.LedgerRow, 0, len(values)-1)
	for _, v := range values[1:] {
		rows = append(rows, models.LedgerRowFromValues(trimmedHeader(header), v))
	}

	updated, candidates := Classify(rows, orders)
	for _, row := range updated {
		if row.IsBlank() {
			continue
		}
		status := row.Status()
		switch {
		case status.IsUploaded():
			report.AlreadyUploaded++
		case status == models.StatusUnmatched:
			report.Unmatched++
		default:
			report.Matched++
		}
		r.metrics.IncReconciled(string(status))
	}

	if err := r.writeStatuses(ctx, header, updated); err != nil {
		return report, fmt.Errorf("persist statuses: %w", err)
	}
	r.log.Info().
		Int("matched", report.Matched).
		Int("unmatched", report.Unmatched).
		Int("already_uploaded", report.AlreadyUploaded).
		Int("candidates", len(candidates)).
		Msg("ledger statuses updated")

	for _, c := range candidates {
		outcome := r.safeUpload(ctx, token, c)
		switch {
		case outcome.OK:
			report.Uploaded++
			r.metrics.IncUpload("uploaded")
		case outcome.Skipped:
			report.Skipped++
			r.metrics.IncUpload(string(OutcomeSkipped))
		default:
			report.Failed++
			report.Errors = multierr.Append(report.Errors, outcome.Err)
			r.metrics.IncUpload(string(OutcomeFailed))
		}
	}
	return report, nil
}

// Classify is the pure matching step. Rows are returned in input order with
// their new status. Uploaded and blank rows are never changed.
func Classify(rows []models.LedgerRow, orders []models.ExternalOrder) ([]models.LedgerRow, []UploadCandidate) {
	orderIDs := make(map[string]string, len(orders))
	for _, o := range orders {
		number := strings.TrimSpace(o.OrderNumber)
		if number == "" || number == sellercloud.MissingOrderNumber {
			continue
		}
		if _, ok := orderIDs[number]; !ok {
			orderIDs[number] = o.OrderID
		}
	}

	updated := make([]models.LedgerRow, len(rows))
	var candidates []UploadCandidate
	for i, row := range rows {
		if row.IsBlank() || row.Status().IsUploaded() {
			updated[i] = row
			continue
		}
		orderID, ok := orderIDs[row.OrderNumber()]
		if row.OrderNumber() == "" || !ok {
			updated[i] = row.Set(models.ColStatus, string(models.StatusUnmatched))
			continue
		}
		updated[i] = row.Set(models.ColStatus, string(models.StatusNotUploaded))
		candidates = append(candidates, UploadCandidate{
			OrderID:     orderID,
			PDFLink:     row.PDFLink(),
			OrderNumber: row.OrderNumber(),
		})
	}
	return updated, candidates
}

// Upload pushes one candidate's PDF to its order and marks the ledger row Uploaded.
// The row's current status is re-read first so an uploaded row is never sent twice.
func (r *Reconciler) Upload(ctx context.Context, token string, c UploadCandidate) models.UploadOutcome {
	logCtx := r.log.With().Str("order_number", c.OrderNumber).Str("order_id", c.OrderID).Logger()
	if c.PDFLink == "" || c.OrderID == "" {
		logCtx.Warn().Msg("candidate has no pdf link or order id, skipping")
		return models.UploadOutcome{Skipped: true}
	}

	values, err := r.table.Values(ctx)
	if err != nil {
		return failedUpload(0, fmt.Errorf("order %s: re-read ledger: %w", c.OrderNumber, err))
	}
	if len(values) == 0 {
		logCtx.Warn().Msg("ledger is empty, skipping")
		return models.UploadOutcome{Skipped: true}
	}
	rowIdx := tabular.FindRow(values, models.ColOrderNumber, c.OrderNumber)
	statusCol := tabular.ColumnIndex(values[0], models.ColStatus)
	if rowIdx < 0 || statusCol < 0 {
		logCtx.Warn().Msg("ledger row no longer present, skipping")
		return models.UploadOutcome{Skipped: true}
	}
	if statusCol < len(values[rowIdx]) && models.Status(values[rowIdx][statusCol]).IsUploaded() {
		logCtx.Info().Msg("order already uploaded, skipping")
		return models.UploadOutcome{Skipped: true}
	}

	data, err := r.store.Download(ctx, c.PDFLink)
	if err != nil {
		return failedUpload(0, fmt.Errorf("order %s: download pdf: %w", c.OrderNumber, err))
	}
	code, err := r.orders.UploadDocument(ctx, token, c.OrderID, blobstore.Base64(data), sellercloud.UploadFileName(c.OrderNumber))
	if err != nil {
		return failedUpload(0, fmt.Errorf("%w: order %s: %v", ErrUploadFailed, c.OrderNumber, err))
	}
	if code != http.StatusOK {
		logCtx.Warn().Int("status_code", code).Msg("order system rejected document")
		return failedUpload(code, fmt.Errorf("%w: order %s: status %d", ErrUploadFailed, c.OrderNumber, code))
	}

	if err := r.table.UpdateCell(ctx, rowIdx, statusCol, string(models.StatusUploaded)); err != nil {
		return failedUpload(code, fmt.Errorf("order %s uploaded but ledger not updated: %w", c.OrderNumber, err))
	}
	logCtx.Info().Msg("document uploaded to order")
	return models.UploadOutcome{OK: true, StatusCode: code}
}

func (r *Reconciler) safeUpload(ctx context.Context, token string, c UploadCandidate) (outcome models.UploadOutcome) {
	defer func() {
		if rec := recover(); rec != nil {
			outcome = failedUpload(0, fmt.Errorf("%w: order %s: panic: %v", ErrUploadFailed, c.OrderNumber, rec))
		}
		if outcome.Err != nil {
			r.log.Error().Err(outcome.Err).Str("order_number", c.OrderNumber).Msg("order upload failed")
		}
	}()
	return r.Upload(ctx, token, c)
}

// writeStatuses rewrites the status column in place, adding the header cell when absent.
func (r *Reconciler) writeStatuses(ctx context.Context, header []string, rows []models.LedgerRow) error {
	statusCol := tabular.ColumnIndex(header, models.ColStatus)
	if statusCol < 0 {
		statusCol = len(header)
	}
	column := make([]string, 0, len(rows)+1)
	column = append(column, models.ColStatus)
	for _, row := range rows {
		column = append(column, string(row.Status()))
	}
	return r.table.WriteColumn(ctx, statusCol, column)
}

func failedUpload(code int, err error) models.UploadOutcome {
	return models.UploadOutcome{StatusCode: code, Err: err}
}

func trimmedHeader(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		out[i] = strings.TrimSpace(h)
	}
	return out
}
