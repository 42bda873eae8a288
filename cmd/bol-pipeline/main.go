package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/Lllllllleong/bolledger/internal/config"
	"github.com/Lllllllleong/bolledger/internal/logger"
	"github.com/Lllllllleong/bolledger/internal/metrics"
	"github.com/Lllllllleong/bolledger/internal/scheduler"
	"github.com/Lllllllleong/bolledger/internal/services"
)

var (
	pipeline *services.Pipeline
	log      zerolog.Logger
	once     sync.Once
	initErr  error
)

func init() {
	log = logger.New(logger.Options{ServiceName: "bol-pipeline", Level: zerolog.InfoLevel})
	functions.CloudEvent("RunPipeline", runPipeline)
}

// main is required by the Go Functions Framework.
func main() {}

// runPipeline is the Cloud Function entry point, triggered by Cloud Scheduler through Pub/Sub.
func runPipeline(ctx context.Context, e cloudevents.Event) error {
	once.Do(func() {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn().Err(err).Msg("failed to load .env")
		}
		cfg, err := config.Load()
		if err != nil {
			initErr = err
			return
		}
		log = logger.New(logger.Options{
			ServiceName: "bol-pipeline",
			Level:       logger.ParseLevel(cfg.App.LogLevel),
			Format:      cfg.App.LogFormat,
		})
		// A function instance has no scrape endpoint. Run counts go to the run log instead.
		pipeline, initErr = services.NewPipeline(context.Background(), cfg, log, metrics.NewPipelineMetrics(nil))
	})
	if initErr != nil {
		log.Error().Err(initErr).Msg("critical error during function initialization")
		return initErr
	}

	req, err := services.DecodeRunRequest(e.Data())
	if err != nil {
		log.Error().Err(err).Str("data", string(e.Data())).Msg("failed to decode trigger")
		return err
	}
	logCtx := log.With().Str("event_id", e.ID()).Str("trigger", req.Trigger).Bool("reconcile_only", req.ReconcileOnly).Logger()

	service, err := scheduler.NewService(scheduler.ServiceParams{
		Logger: logCtx,
		Lock:   pipeline.Lock,
		Job:    pipeline.Job(req),
	})
	if err != nil {
		return err
	}
	if _, err := service.RunOnce(ctx); err != nil {
		// Item failures are already on the ledger. Only cycle failures ask for redelivery.
		if errors.Is(err, services.ErrCycleFatal) {
			return fmt.Errorf("pipeline cycle: %w", err)
		}
		logCtx.Warn().Err(err).Msg("pipeline cycle finished with item errors")
	}
	return nil
}
