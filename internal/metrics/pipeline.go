package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics records per-run counters for the BOL pipeline. A nil
// *PipelineMetrics is valid and records nothing.
type PipelineMetrics struct {
	pagesSplit      prometheus.Counter
	documentsFailed prometheus.Counter
	extractions     *prometheus.CounterVec
	links           *prometheus.CounterVec
	ledgerRows      *prometheus.CounterVec
	reconciled      *prometheus.CounterVec
	uploads         *prometheus.CounterVec
	runDuration     prometheus.Histogram
	runs            *prometheus.CounterVec
}

// NewPipelineMetrics registers the pipeline collectors on the provided registerer.
func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	if reg == nil {
		return &PipelineMetrics{}
	}
	m := &PipelineMetrics{
		pagesSplit: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bol_pages_split_total",
			Help: "Pages cut out of inbound BOL documents.",
		}),
		documentsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bol_documents_failed_total",
			Help: "Inbound documents that could not be split.",
		}),
		extractions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bol_extractions_total",
			Help: "Page extraction attempts by outcome.",
		}, []string{"outcome"}),
		links: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bol_links_total",
			Help: "Blob uploads of page PDFs by outcome.",
		}, []string{"outcome"}),
		ledgerRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bol_ledger_rows_total",
			Help: "Incoming ledger rows by disposition (appended, duplicate).",
		}, []string{"disposition"}),
		reconciled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bol_reconciled_rows_total",
			Help: "Ledger rows classified during reconciliation by status.",
		}, []string{"status"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bol_order_uploads_total",
			Help: "Order system document uploads by outcome.",
		}, []string{"outcome"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bol_run_duration_seconds",
			Help:    "Duration of pipeline runs in seconds.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bol_runs_total",
			Help: "Pipeline runs by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.pagesSplit, m.documentsFailed, m.extractions, m.links, m.ledgerRows, m.reconciled, m.uploads, m.runDuration, m.runs)
	return m
}

func (m *PipelineMetrics) AddPagesSplit(n int) {
	if m == nil || m.pagesSplit == nil {
		return
	}
	m.pagesSplit.Add(float64(n))
}

func (m *PipelineMetrics) IncDocumentFailed() {
	if m == nil || m.documentsFailed == nil {
		return
	}
	m.documentsFailed.Inc()
}

func (m *PipelineMetrics) IncExtraction(outcome string) {
	if m == nil || m.extractions == nil {
		return
	}
	m.extractions.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *PipelineMetrics) IncLink(outcome string) {
	if m == nil || m.links == nil {
		return
	}
	m.links.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *PipelineMetrics) AddLedgerRows(disposition string, n int) {
	if m == nil || m.ledgerRows == nil || n == 0 {
		return
	}
	m.ledgerRows.WithLabelValues(normalizeLabel(disposition)).Add(float64(n))
}

func (m *PipelineMetrics) IncReconciled(status string) {
	if m == nil || m.reconciled == nil {
		return
	}
	m.reconciled.WithLabelValues(normalizeLabel(status)).Inc()
}

func (m *PipelineMetrics) IncUpload(outcome string) {
	if m == nil || m.uploads == nil {
		return
	}
	m.uploads.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// ObserveRun records one finished run.
func (m *PipelineMetrics) ObserveRun(duration time.Duration, err error) {
	if m == nil || m.runDuration == nil {
		return
	}
	m.runDuration.Observe(duration.Seconds())
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.runs.WithLabelValues(result).Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
