package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/Lllllllleong/bolledger/internal/config"
	"github.com/Lllllllleong/bolledger/internal/logger"
	"github.com/Lllllllleong/bolledger/internal/metrics"
	"github.com/Lllllllleong/bolledger/internal/models"
	"github.com/Lllllllleong/bolledger/internal/scheduler"
	"github.com/Lllllllleong/bolledger/internal/services"
)

func main() {
	bootLog := logger.New(logger.Options{ServiceName: "bol-worker", Level: zerolog.InfoLevel})
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		bootLog.Warn().Err(err).Msg("failed to load .env")
	}

	cfg, err := config.Load()
	if err != nil {
		bootLog.Fatal().Err(err).Msg("failed to load config")
	}

	log := logger.New(logger.Options{
		ServiceName: "bol-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	pipelineMetrics := metrics.NewPipelineMetrics(registry)
	shutdownMetrics := metrics.StartServer(cfg.Worker.MetricsPort, registry, log)

	pipeline, err := services.NewPipeline(ctx, cfg, log, pipelineMetrics)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build pipeline")
	}
	defer func() {
		if err := pipeline.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close pipeline clients")
		}
	}()

	service, err := scheduler.NewService(scheduler.ServiceParams{
		Logger:   log.With().Str("component", "scheduler").Logger(),
		Lock:     pipeline.Lock,
		Job:      pipeline.Job(models.RunRequest{Trigger: "interval"}),
		Interval: cfg.Worker.Interval,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create scheduler")
	}

	log.Info().Dur("interval", cfg.Worker.Interval).Msg("bol worker starting")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("bol worker stopped")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownMetrics(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("metrics server shutdown")
	}
	log.Info().Msg("bol worker shut down")
}
