package services

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Lllllllleong/bolledger/internal/blobstore"
	"github.com/Lllllllleong/bolledger/internal/metrics"
	"github.com/Lllllllleong/bolledger/internal/models"
)

type LinkerConfig struct {
	// ParentID is the folder or prefix page PDFs are uploaded into.
	ParentID string
	Timeout  time.Duration
}

// Linker uploads a shipment's page PDF and attaches the link to the record.
type Linker struct {
	store   blobstore.Store
	config  LinkerConfig
	log     zerolog.Logger
	metrics *metrics.PipelineMetrics
}

func NewLinker(store blobstore.Store, cfg LinkerConfig, log zerolog.Logger, m *metrics.PipelineMetrics) *Linker {
	return &Linker{store: store, config: cfg, log: log, metrics: m}
}

// Link normalizes contact numbers and uploads the page. Upload failures are returned, not retried.
func (l *Linker) Link(ctx context.Context, shipment models.Shipment, page models.PageUnit) (models.LinkedRecord, error) {
	shipment = shipment.WithCleanPhones()
	name := shipment.PDFName()
	logCtx := l.log.With().Int("page", page.Index).Str("file_name", name).Logger()

	callCtx := ctx
	if l.config.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, l.config.Timeout)
		defer cancel()
	}

	link, err := l.store.Upload(callCtx, page.PDF, name, l.config.ParentID)
	if err != nil {
		l.metrics.IncLink(string(OutcomeFailed))
		logCtx.Error().Err(err).Msg("failed to upload page pdf")
		return models.LinkedRecord{}, fmt.Errorf("link page %d: %w", page.Index, err)
	}

	l.metrics.IncLink(string(OutcomeSuccess))
	logCtx.Info().Str("pdf_link", link).Msg("page pdf uploaded")
	return models.LinkedRecord{
		Shipment: shipment,
		PDFLink:  link,
		FileName: name,
	}, nil
}
