package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Lllllllleong/bolledger/internal/metrics"
	"github.com/Lllllllleong/bolledger/internal/models"
)

// ShipmentModel is the remote vision model that reads one BOL page image.
type ShipmentModel interface {
	ExtractShipmentJSON(ctx context.Context, image []byte, mimeType string) (string, error)
}

// ExtractResult is the outcome for a single page. Shipment is set only on success.
type ExtractResult struct {
	Page     models.PageUnit
	Outcome  Outcome
	Shipment *models.Shipment
	Reason   error
}

type ShipmentExtractorConfig struct {
	Concurrency int
	Timeout     time.Duration
}

// ShipmentExtractor turns page images into validated shipments. Failures are
// misses and never retried.
type ShipmentExtractor struct {
	model    ShipmentModel
	validate *validator.Validate
	config   ShipmentExtractorConfig
	log      zerolog.Logger
	metrics  *metrics.PipelineMetrics
}

func NewShipmentExtractor(model ShipmentModel, cfg ShipmentExtractorConfig, log zerolog.Logger, m *metrics.PipelineMetrics) *ShipmentExtractor {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &ShipmentExtractor{
		model:    model,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		config:   cfg,
		log:      log,
		metrics:  m,
	}
}

// Extract reads one page. It never panics and never returns an error; a miss carries its reason.
func (e *ShipmentExtractor) Extract(ctx context.Context, page models.PageUnit) (res ExtractResult) {
	logCtx := e.log.With().Int("page", page.Index).Logger()
	res = ExtractResult{Page: page}
	defer func() {
		if r := recover(); r != nil {
			res.Outcome = OutcomeMiss
			res.Shipment = nil
			res.Reason = fmt.Errorf("%w: extractor panic: %v", ErrExtractionMiss, r)
		}
		if res.Outcome == OutcomeMiss {
			logCtx.Warn().Err(res.Reason).Msg("page extraction missed")
		}
		e.metrics.IncExtraction(string(res.Outcome))
	}()

	callCtx := ctx
	if e.config.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.config.Timeout)
		defer cancel()
	}

	raw, err := e.model.ExtractShipmentJSON(callCtx, page.Image, page.ImageMIMEType)
	if err != nil {
		res.Outcome = OutcomeMiss
		res.Reason = fmt.Errorf("%w: %v", ErrExtractionMiss, err)
		return res
	}
	shipment, err := e.DecodeShipment(raw)
	if err != nil {
		res.Outcome = OutcomeMiss
		res.Reason = err
		return res
	}

	res.Outcome = OutcomeSuccess
	res.Shipment = shipment
	logCtx.Debug().Str("order_number", shipment.OrderNumber()).Msg("page extracted")
	return res
}

// ExtractAll runs Extract over pages on a bounded pool. Results follow page order.
func (e *ShipmentExtractor) ExtractAll(ctx context.Context, pages []models.PageUnit) []ExtractResult {
	results := make([]ExtractResult, len(pages))
	var eg errgroup.Group
	eg.SetLimit(e.config.Concurrency)
	for i, page := range pages {
		i, page := i, page
		eg.Go(func() error {
			results[i] = e.Extract(ctx, page)
			return nil
		})
	}
	_ = eg.Wait()
	return results
}

// DecodeShipment parses and validates the model's JSON answer.
func (e *ShipmentExtractor) DecodeShipment(raw string) (*models.Shipment, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || trimmed == "null" || !strings.HasPrefix(trimmed, "{") {
		return nil, fmt.Errorf("%w: response is not a JSON object", ErrExtractionMiss)
	}
	var shipment models.Shipment
	if err := json.Unmarshal([]byte(trimmed), &shipment); err != nil {
		return nil, fmt.Errorf("%w: malformed response: %v", ErrExtractionMiss, err)
	}
	if err := e.validate.Struct(shipment); err != nil {
		return nil, fmt.Errorf("%w: invalid shipment: %v", ErrExtractionMiss, err)
	}
	if w := shipment.CustomerOrderInformation.Weight; w != nil && w.IsNegative() {
		return nil, fmt.Errorf("%w: invalid shipment: negative weight %s", ErrExtractionMiss, w.String())
	}
	return &shipment, nil
}
