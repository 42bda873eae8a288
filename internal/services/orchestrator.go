package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"github.com/Lllllllleong/bolledger/internal/mail"
	"github.com/Lllllllleong/bolledger/internal/metrics"
	"github.com/Lllllllleong/bolledger/internal/models"
)

type Splitter interface {
	Split(ctx context.Context, doc models.RawDocument) (*PageSequence, error)
}

type Extractor interface {
	ExtractAll(ctx context.Context, pages []models.PageUnit) []ExtractResult
}

type RecordLinker interface {
	Link(ctx context.Context, shipment models.Shipment, page models.PageUnit) (models.LinkedRecord, error)
}

type LedgerAppender interface {
	Append(ctx context.Context, records []models.LinkedRecord) (AppendResult, error)
}

type ReconcileRunner interface {
	Reconcile(ctx context.Context) (*ReconcileReport, error)
}

// OrchestratorParams wires the pipeline stages. Tracker and Metrics are optional.
type OrchestratorParams struct {
	Source     mail.Source
	Splitter   Splitter
	Extractor  Extractor
	Linker     RecordLinker
	Ledger     LedgerAppender
	Reconciler ReconcileRunner
	Tracker    DocumentTracker
	Metrics    *metrics.PipelineMetrics
	Logger     zerolog.Logger
	NewRunID   func() string
}

// RunReport summarizes one pipeline cycle.
type RunReport struct {
	RunID            string
	Documents        int
	DocumentsSkipped int
	DocumentsFailed  int
	Pages            int
	Extracted        int
	Missed           int
	Linked           int
	LinkFailed       int
	Ledger           AppendResult
	Reconcile        *ReconcileReport
	// Errors aggregates stage failures: fetch, ledger append and reconciliation.
	Errors error
}

// Orchestrator runs one ingestion and reconciliation cycle at a time. Callers serialize runs.
type Orchestrator struct {
	source     mail.Source
	splitter   Splitter
	extractor  Extractor
	linker     RecordLinker
	ledger     LedgerAppender
	reconciler ReconcileRunner
	tracker    DocumentTracker
	metrics    *metrics.PipelineMetrics
	log        zerolog.Logger
	newRunID   func() string
}

func NewOrchestrator(p OrchestratorParams) (*Orchestrator, error) {
	switch {
	case p.Source == nil:
		return nil, errors.New("document source required")
	case p.Splitter == nil:
		return nil, errors.New("splitter required")
	case p.Extractor == nil:
		return nil, errors.New("extractor required")
	case p.Linker == nil:
		return nil, errors.New("linker required")
	case p.Ledger == nil:
		return nil, errors.New("ledger writer required")
	case p.Reconciler == nil:
		return nil, errors.New("reconciler required")
	}
	newRunID := p.NewRunID
	if newRunID == nil {
		newRunID = uuid.NewString
	}
	return &Orchestrator{
		source:     p.Source,
		splitter:   p.Splitter,
		extractor:  p.Extractor,
		linker:     p.Linker,
		ledger:     p.Ledger,
		reconciler: p.Reconciler,
		tracker:    p.Tracker,
		metrics:    p.Metrics,
		log:        p.Logger,
		newRunID:   newRunID,
	}, nil
}

type trackedDocument struct {
	hash    string
	records int
	// unlinked counts pages that produced no ledger record this run.
	unlinked int
}

// Run fetches, splits, extracts, links and appends, then reconciles once.
// Reconciliation runs whatever happened upstream. The report is always returned.
func (o *Orchestrator) Run(ctx context.Context) (*RunReport, error) {
	start := time.Now()
	report := &RunReport{RunID: o.newRunID()}
	logCtx := o.log.With().Str("run_id", report.RunID).Logger()
	logCtx.Info().Msg("pipeline run starting")

	docs, err := o.source.Fetch(ctx)
	if err != nil {
		logCtx.Error().Err(err).Msg("failed to fetch documents")
		report.Errors = multierr.Append(report.Errors, fmt.Errorf("fetch documents: %w", err))
	}
	report.Documents = len(docs)

	var records []models.LinkedRecord
	var tracked []trackedDocument
	for _, doc := range docs {
		if ctx.Err() != nil {
			break
		}
		recs, td := o.processDocument(ctx, logCtx, report, doc)
		records = append(records, recs...)
		if td != nil {
			tracked = append(tracked, *td)
		}
	}

	appendResult, appendErr := o.ledger.Append(ctx, records)
	report.Ledger = appendResult
	if appendErr != nil {
		logCtx.Error().Err(appendErr).Int("records", len(records)).Msg("ledger append failed")
		report.Errors = multierr.Append(report.Errors, appendErr)
	}
	for _, td := range tracked {
		if appendErr != nil {
			o.trackFailed(ctx, logCtx, td.hash, appendErr)
			continue
		}
		if td.unlinked > 0 {
			// Left unfinished so the next run picks the document up again.
			o.trackFailed(ctx, logCtx, td.hash, fmt.Errorf("%d of %d pages produced no ledger record", td.unlinked, td.unlinked+td.records))
			continue
		}
		if o.tracker != nil {
			if err := o.tracker.MarkCompleted(ctx, td.hash, td.records); err != nil {
				logCtx.Warn().Err(err).Str("file_hash", td.hash).Msg("failed to record document completion")
			}
		}
	}

	o.reconcile(ctx, logCtx, report)

	duration := time.Since(start)
	o.metrics.ObserveRun(duration, report.Errors)
	logCtx.Info().
		Dur("duration", duration).
		Int("documents", report.Documents).
		Int("pages", report.Pages).
		Int("extracted", report.Extracted).
		Int("missed", report.Missed).
		Int("linked", report.Linked).
		Int("appended", report.Ledger.Appended).
		Err(report.Errors).
		Msg("pipeline run finished")
	return report, report.Errors
}

// ReconcileOnly runs the reconciliation stage on its own.
func (o *Orchestrator) ReconcileOnly(ctx context.Context) (*RunReport, error) {
	start := time.Now()
	report := &RunReport{RunID: o.newRunID()}
	logCtx := o.log.With().Str("run_id", report.RunID).Logger()
	o.reconcile(ctx, logCtx, report)
	o.metrics.ObserveRun(time.Since(start), report.Errors)
	return report, report.Errors
}

func (o *Orchestrator) reconcile(ctx context.Context, logCtx zerolog.Logger, report *RunReport) {
	rec, err := o.reconciler.Reconcile(ctx)
	report.Reconcile = rec
	if err != nil {
		logCtx.Error().Err(err).Msg("reconciliation failed")
		report.Errors = multierr.Append(report.Errors, err)
		return
	}
	logCtx.Info().
		Int("uploaded", rec.Uploaded).
		Int("upload_failed", rec.Failed).
		Int("upload_skipped", rec.Skipped).
		Int("unmatched", rec.Unmatched).
		Msg("reconciliation complete")
}

func (o *Orchestrator) processDocument(ctx context.Context, runLog zerolog.Logger, report *RunReport, doc models.RawDocument) (records []models.LinkedRecord, td *trackedDocument) {
	hash := DocumentHash(doc.Data)
	logCtx := runLog.With().Str("file", doc.FileName).Str("file_hash", hash).Logger()
	defer func() {
		if r := recover(); r != nil {
			logCtx.Error().Interface("panic", r).Msg("document processing panicked")
			report.DocumentsFailed++
			o.metrics.IncDocumentFailed()
			o.trackFailed(ctx, logCtx, hash, fmt.Errorf("panic: %v", r))
			records, td = nil, nil
		}
	}()

	if o.tracker != nil {
		done, err := o.tracker.Start(ctx, hash, doc.FileName, report.RunID)
		if err != nil {
			logCtx.Warn().Err(err).Msg("document tracking unavailable")
		}
		if done {
			logCtx.Info().Msg("document already processed in an earlier run, skipping")
			report.DocumentsSkipped++
			return nil, nil
		}
	}

	seq, err := o.splitter.Split(ctx, doc)
	if err != nil {
		logCtx.Error().Err(err).Msg("failed to split document")
		report.DocumentsFailed++
		o.metrics.IncDocumentFailed()
		o.trackFailed(ctx, logCtx, hash, err)
		return nil, nil
	}
	pages := seq.Drain()
	report.Pages += len(pages)
	if o.tracker != nil {
		if err := o.tracker.MarkExtracting(ctx, hash, len(pages)); err != nil {
			logCtx.Warn().Err(err).Msg("failed to record extraction start")
		}
	}

	for _, res := range o.extractor.ExtractAll(ctx, pages) {
		if res.Outcome != OutcomeSuccess || res.Shipment == nil {
			report.Missed++
			continue
		}
		report.Extracted++
		rec, err := o.linker.Link(ctx, *res.Shipment, res.Page)
		if err != nil {
			report.LinkFailed++
			continue
		}
		report.Linked++
		records = append(records, rec)
	}
	return records, &trackedDocument{hash: hash, records: len(records), unlinked: len(pages) - len(records)}
}

func (o *Orchestrator) trackFailed(ctx context.Context, logCtx zerolog.Logger, hash string, cause error) {
	if o.tracker == nil {
		return
	}
	if err := o.tracker.MarkFailed(ctx, hash, cause.Error()); err != nil {
		logCtx.Warn().Err(err).Str("file_hash", hash).Msg("failed to record document failure")
	}
}
