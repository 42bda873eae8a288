package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"github.com/Lllllllleong/bolledger/internal/blobstore"
	"github.com/Lllllllleong/bolledger/internal/config"
	"github.com/Lllllllleong/bolledger/internal/gcp"
	"github.com/Lllllllleong/bolledger/internal/mail"
	"github.com/Lllllllleong/bolledger/internal/metrics"
	"github.com/Lllllllleong/bolledger/internal/pdfraster"
	"github.com/Lllllllleong/bolledger/internal/runlock"
	"github.com/Lllllllleong/bolledger/internal/sellercloud"
	"github.com/Lllllllleong/bolledger/internal/tabular"
)

// Pipeline is the fully wired production pipeline and the lock that serializes its runs.
type Pipeline struct {
	Orchestrator *Orchestrator
	Lock         runlock.Lock
	closers      []func() error
}

// NewPipeline builds every client named by cfg. Call Close when done.
func NewPipeline(ctx context.Context, cfg *config.Config, log zerolog.Logger, m *metrics.PipelineMetrics) (_ *Pipeline, err error) {
	p := &Pipeline{}
	defer func() {
		if err != nil {
			_ = p.Close()
		}
	}()
	opts := gcp.ClientOptions(cfg.GCP.CredentialsFile)

	vertexClient, err := gcp.NewVertexClient(ctx, cfg.GCP.ProjectID, cfg.GCP.VertexAIRegion, cfg.GCP.VertexAIModel, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create vertex client: %w", err)
	}
	p.closers = append(p.closers, vertexClient.Close)

	sheetsService, err := gcp.NewSheetsService(ctx, opts...)
	if err != nil {
		return nil, err
	}
	ledger := tabular.NewSheets(sheetsService, cfg.Sheets.SpreadsheetID, cfg.Sheets.LedgerSheet)

	var store blobstore.Store
	switch strings.ToLower(cfg.Blob.Backend) {
	case config.BlobBackendGCS:
		storageClient, err := gcp.NewStorageClient(ctx, opts...)
		if err != nil {
			return nil, err
		}
		p.closers = append(p.closers, storageClient.Close)
		store = blobstore.NewGCS(storageClient, cfg.Blob.GCSBucket)
	default:
		driveService, err := gcp.NewDriveService(ctx, opts...)
		if err != nil {
			return nil, err
		}
		store = blobstore.NewDrive(driveService)
	}

	orders, err := sellercloud.NewClient(cfg.SellerCloud.Username, cfg.SellerCloud.Password,
		sellercloud.WithBaseURL(cfg.SellerCloud.BaseURL),
		sellercloud.WithTimeout(cfg.SellerCloud.Timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sellercloud client: %w", err)
	}

	var tracker DocumentTracker
	if cfg.Firestore.Collection != "" {
		firestoreClient, err := gcp.NewFirestoreClient(ctx, cfg.GCP.ProjectID, opts...)
		if err != nil {
			return nil, err
		}
		p.closers = append(p.closers, firestoreClient.Close)
		tracker = NewFirestoreTracker(firestoreClient, cfg.Firestore.Collection)
	}

	if cfg.Redis.URL != "" {
		redisClient, err := runlock.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			return nil, err
		}
		p.closers = append(p.closers, redisClient.Close)
		if p.Lock, err = runlock.NewRedisLock(redisClient, cfg.Redis.LockKey, cfg.Redis.LockTTL); err != nil {
			return nil, err
		}
	} else {
		p.Lock = runlock.NewLocalLock()
	}

	source := mail.NewIMAPSource(mail.IMAPConfig{
		Server:       cfg.Mail.IMAPServer,
		Address:      cfg.Mail.Address,
		Password:     cfg.Mail.Password,
		Mailbox:      cfg.Mail.Mailbox,
		SubjectWord:  cfg.Mail.SubjectWord,
		LookbackDays: cfg.Mail.LookbackDays,
		MaxMessages:  cfg.Mail.MaxMessages,
		DialTimeout:  cfg.Mail.DialTimeout,
	}, log.With().Str("component", "mail").Logger())

	p.Orchestrator, err = NewOrchestrator(OrchestratorParams{
		Source: source,
		Splitter: NewPageSplitter(pdfraster.NewMuPDF(cfg.Pipeline.RasterDPI),
			PageSplitterConfig{Concurrency: cfg.Pipeline.SplitConcurrency},
			log.With().Str("component", "splitter").Logger(), m),
		Extractor: NewShipmentExtractor(vertexClient,
			ShipmentExtractorConfig{Concurrency: cfg.Pipeline.ExtractConcurrency, Timeout: cfg.Pipeline.ExtractTimeout},
			log.With().Str("component", "extractor").Logger(), m),
		Linker: NewLinker(store,
			LinkerConfig{ParentID: cfg.Blob.ParentID(), Timeout: cfg.Pipeline.BlobTimeout},
			log.With().Str("component", "linker").Logger(), m),
		Ledger:     NewLedgerWriter(ledger, nil, log.With().Str("component", "ledger").Logger(), m),
		Reconciler: NewReconciler(ledger, orders, store, log.With().Str("component", "reconciler").Logger(), m),
		Tracker:    tracker,
		Metrics:    m,
		Logger:     log,
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Close releases every client opened by NewPipeline.
func (p *Pipeline) Close() error {
	var err error
	for i := len(p.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, p.closers[i]())
	}
	p.closers = nil
	return err
}
