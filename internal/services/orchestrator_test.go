package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/bolledger/internal/models"
)

type memTracker struct {
	mu       sync.Mutex
	statuses map[string]string
	records  map[string]int
}

func newMemTracker() *memTracker {
	return &memTracker{statuses: map[string]string{}, records: map[string]int{}}
}

func (m *memTracker) Start(_ context.Context, hash, _, _ string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.statuses[hash] == models.DocumentStatusCompleted {
		return true, nil
	}
	m.statuses[hash] = models.DocumentStatusSplitting
	return false, nil
}

func (m *memTracker) MarkExtracting(_ context.Context, hash string, _ int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[hash] = models.DocumentStatusExtracting
	return nil
}

func (m *memTracker) MarkCompleted(_ context.Context, hash string, n int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[hash] = models.DocumentStatusCompleted
	m.records[hash] = n
	return nil
}

func (m *memTracker) MarkFailed(_ context.Context, hash, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[hash] = models.DocumentStatusFailed
	return nil
}

type pipelineFixture struct {
	table  *memTable
	store  *memStore
	orders *fakeOrders
	orch   *Orchestrator
}

func newPipeline(t *testing.T, source fakeSource, answer func(context.Context, []byte) (string, error), tracker DocumentTracker) *pipelineFixture {
	t.Helper()
	table := &memTable{}
	store := newMemStore()
	orders := &fakeOrders{orders: []models.ExternalOrder{{OrderID: "101", OrderNumber: "A1"}}}

	orch, err := NewOrchestrator(OrchestratorParams{
		Source:     source,
		Splitter:   fakeSplitter{},
		Extractor:  NewShipmentExtractor(fakeModel{answer: answer}, ShipmentExtractorConfig{Concurrency: 2, Timeout: time.Second}, testLogger, nil),
		Linker:     NewLinker(store, LinkerConfig{ParentID: "bols"}, testLogger, nil),
		Ledger:     NewLedgerWriter(table, fixedNow, testLogger, nil),
		Reconciler: NewReconciler(table, orders, store, testLogger, nil),
		Tracker:    tracker,
		Logger:     testLogger,
		NewRunID:   func() string { return "run-1" },
	})
	require.NoError(t, err)
	return &pipelineFixture{table: table, store: store, orders: orders, orch: orch}
}

func byImage(answers map[string]string) func(context.Context, []byte) (string, error) {
	return func(_ context.Context, image []byte) (string, error) {
		if a, ok := answers[string(image)]; ok {
			return a, nil
		}
		return "", errors.New("model refused the page")
	}
}

func TestRunTwoPagesSecondFails(t *testing.T) {
	source := fakeSource{docs: []models.RawDocument{{FileName: "batch.pdf", Data: []byte("%PDF\np1\np2")}}}
	p := newPipeline(t, source, byImage(map[string]string{"p1": shipmentJSON("A1", "S1", "+1-555")}), nil)

	report, err := p.orch.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "run-1", report.RunID)
	assert.Equal(t, 1, report.Documents)
	assert.Equal(t, 2, report.Pages)
	assert.Equal(t, 1, report.Extracted)
	assert.Equal(t, 1, report.Missed)
	assert.Equal(t, 1, report.Linked)
	assert.Equal(t, 1, report.Ledger.Appended)

	require.Len(t, p.table.rows, 2, "header plus one row")
	assert.Equal(t, "A1", p.table.cell(1, models.ColOrderNumber))
	assert.Equal(t, "1555", p.table.cell(1, models.ColShipFromNumber))
	assert.Equal(t, "https://blob.test/bols/Order A1 - Shipment S1.pdf", p.table.cell(1, models.ColPDFLink))

	require.NotNil(t, report.Reconcile)
	assert.Equal(t, 1, report.Reconcile.Uploaded)
	assert.Equal(t, "Uploaded", p.table.cell(1, models.ColStatus))
	require.Len(t, p.orders.calls, 1)
	assert.Equal(t, "Order-NOA1.pdf", p.orders.calls[0].FileName)
}

func TestRunIsIdempotent(t *testing.T) {
	source := fakeSource{docs: []models.RawDocument{{FileName: "batch.pdf", Data: []byte("%PDF\np1\np2")}}}
	p := newPipeline(t, source, byImage(map[string]string{
		"p1": shipmentJSON("A1", "S1", ""),
		"p2": shipmentJSON("B2", "S2", ""),
	}), nil)

	_, err := p.orch.Run(context.Background())
	require.NoError(t, err)
	snapshot, _ := p.table.Values(context.Background())

	report, err := p.orch.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Ledger.Appended)
	assert.Equal(t, 2, report.Ledger.Duplicates)

	after, _ := p.table.Values(context.Background())
	assert.Equal(t, snapshot, after)
	assert.Len(t, p.orders.calls, 1)
}

func TestRunContinuesPastBadDocument(t *testing.T) {
	source := fakeSource{docs: []models.RawDocument{
		{FileName: "broken.pdf", Data: []byte("garbage")},
		{FileName: "good.pdf", Data: []byte("%PDF\np1")},
	}}
	p := newPipeline(t, source, byImage(map[string]string{"p1": shipmentJSON("C3", "S3", "")}), nil)

	report, err := p.orch.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.DocumentsFailed)
	assert.Equal(t, 1, report.Ledger.Appended)
	assert.Equal(t, 1, report.Reconcile.Unmatched)
	assert.Equal(t, "Unmatched", p.table.cell(1, models.ColStatus))
}

func TestRunReconcilesWhenFetchFails(t *testing.T) {
	p := newPipeline(t, fakeSource{err: errors.New("imap: connection refused")}, byImage(nil), nil)
	p.table.rows = [][]string{{"order_number", "pdf_link"}, {"A1", ""}}

	report, err := p.orch.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	require.NotNil(t, report.Reconcile)
	assert.Equal(t, 1, report.Reconcile.Matched)
	assert.Equal(t, "Not Uploaded", p.table.rows[1][2])
}

func TestRunReconcilesWhenLedgerAppendFails(t *testing.T) {
	source := fakeSource{docs: []models.RawDocument{{FileName: "batch.pdf", Data: []byte("%PDF\np1")}}}
	tracker := newMemTracker()
	p := newPipeline(t, source, byImage(map[string]string{"p1": shipmentJSON("A1", "S1", "")}), tracker)
	p.table.appendErr = errors.New("sheets quota")

	report, err := p.orch.Run(context.Background())
	require.Error(t, err)
	assert.NotNil(t, report.Reconcile, "reconciliation still runs")
	assert.Equal(t, models.DocumentStatusFailed, tracker.statuses[DocumentHash([]byte("%PDF\np1"))])
}

func TestRunSkipsCompletedDocuments(t *testing.T) {
	doc := models.RawDocument{FileName: "batch.pdf", Data: []byte("%PDF\np1")}
	tracker := newMemTracker()
	p := newPipeline(t, fakeSource{docs: []models.RawDocument{doc}}, byImage(map[string]string{"p1": shipmentJSON("A1", "S1", "")}), tracker)

	_, err := p.orch.Run(context.Background())
	require.NoError(t, err)
	hash := DocumentHash(doc.Data)
	assert.Equal(t, models.DocumentStatusCompleted, tracker.statuses[hash])
	assert.Equal(t, 1, tracker.records[hash])

	report, err := p.orch.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.DocumentsSkipped)
	assert.Zero(t, report.Pages)
	assert.Len(t, p.store.uploads, 1)
}

func TestRunRetriesDocumentWithFailedPages(t *testing.T) {
	doc := models.RawDocument{FileName: "batch.pdf", Data: []byte("%PDF\np1\np2")}
	hash := DocumentHash(doc.Data)
	tracker := newMemTracker()
	answers := map[string]string{"p1": shipmentJSON("A1", "S1", "")}
	p := newPipeline(t, fakeSource{docs: []models.RawDocument{doc}}, byImage(answers), tracker)

	report, err := p.orch.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Missed)
	assert.Equal(t, models.DocumentStatusFailed, tracker.statuses[hash])

	answers["p2"] = shipmentJSON("A2", "S2", "")
	report, err = p.orch.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.DocumentsSkipped)
	assert.Equal(t, 1, report.Ledger.Appended)
	assert.Equal(t, 1, report.Ledger.Duplicates)
	assert.Equal(t, models.DocumentStatusCompleted, tracker.statuses[hash])
	assert.Equal(t, 2, tracker.records[hash])

	require.Len(t, p.table.rows, 3)
	assert.Equal(t, "A1", p.table.cell(1, models.ColOrderNumber))
	assert.Equal(t, "A2", p.table.cell(2, models.ColOrderNumber))
}

func TestRunMarksDocumentFailedWhenLinkFails(t *testing.T) {
	doc := models.RawDocument{FileName: "batch.pdf", Data: []byte("%PDF\np1")}
	tracker := newMemTracker()
	p := newPipeline(t, fakeSource{docs: []models.RawDocument{doc}}, byImage(map[string]string{"p1": shipmentJSON("A1", "S1", "")}), tracker)
	p.store.uploadErr = errors.New("drive unavailable")

	report, err := p.orch.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.LinkFailed)
	assert.Equal(t, models.DocumentStatusFailed, tracker.statuses[DocumentHash(doc.Data)])
}

func TestRunReconcileFatalIsReported(t *testing.T) {
	p := newPipeline(t, fakeSource{}, byImage(nil), nil)
	p.orders.tokenErr = errors.New("401")

	report, err := p.orch.Run(context.Background())
	require.ErrorIs(t, err, ErrCycleFatal)
	assert.Nil(t, report.Reconcile)
	assert.Empty(t, p.table.rows)
}

func TestReconcileOnly(t *testing.T) {
	p := newPipeline(t, fakeSource{err: errors.New("must not be called")}, byImage(nil), nil)
	p.table.rows = [][]string{{"order_number"}, {"Z1"}}

	report, err := p.orch.ReconcileOnly(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Reconcile.Unmatched)
	assert.Zero(t, report.Documents)
}

func TestNewOrchestratorValidates(t *testing.T) {
	_, err := NewOrchestrator(OrchestratorParams{})
	require.Error(t, err)
}
