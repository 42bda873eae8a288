package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Lllllllleong/bolledger/internal/metrics"
	"github.com/Lllllllleong/bolledger/internal/models"
	"github.com/Lllllllleong/bolledger/internal/pdfraster"
)

// PageSequence is a finite, ordered, single-pass sequence of pages.
type PageSequence struct {
	pages []models.PageUnit
	next  int
}

// Next returns the following page, or false once the sequence is exhausted.
func (s *PageSequence) Next() (models.PageUnit, bool) {
	if s == nil || s.next >= len(s.pages) {
		return models.PageUnit{}, false
	}
	p := s.pages[s.next]
	s.next++
	return p, true
}

// Len is the total number of pages, consumed or not.
func (s *PageSequence) Len() int {
	if s == nil {
		return 0
	}
	return len(s.pages)
}

// Drain returns the pages not yet consumed.
func (s *PageSequence) Drain() []models.PageUnit {
	var out []models.PageUnit
	for p, ok := s.Next(); ok; p, ok = s.Next() {
		out = append(out, p)
	}
	return out
}

type PageSplitterConfig struct {
	// Concurrency bounds parallel page rasterization.
	Concurrency int
}

// PageSplitter cuts a multi-page PDF into single-page PDFs with a rendered image each.
type PageSplitter struct {
	raster  pdfraster.Rasterizer
	config  PageSplitterConfig
	log     zerolog.Logger
	metrics *metrics.PipelineMetrics
}

func NewPageSplitter(raster pdfraster.Rasterizer, cfg PageSplitterConfig, log zerolog.Logger, m *metrics.PipelineMetrics) *PageSplitter {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &PageSplitter{raster: raster, config: cfg, log: log, metrics: m}
}

// Split returns every page of doc or an error wrapping ErrInvalidPDF. It never returns partial output.
func (s *PageSplitter) Split(ctx context.Context, doc models.RawDocument) (*PageSequence, error) {
	logCtx := s.log.With().Str("file", doc.FileName).Logger()
	if len(doc.Data) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrInvalidPDF, doc.FileName)
	}

	tempDir, err := os.MkdirTemp("", "bol-splitter-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	sourcePdfPath := filepath.Join(tempDir, "source.pdf")
	if err := os.WriteFile(sourcePdfPath, doc.Data, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write source pdf: %w", err)
	}

	optimizedPdfPath := filepath.Join(tempDir, "optimized.pdf")
	if err := optimizePDF(sourcePdfPath, optimizedPdfPath); err != nil {
		return nil, fmt.Errorf("%w: failed to validate/optimize %s: %v", ErrInvalidPDF, doc.FileName, err)
	}
	pageCount, err := api.PageCountFile(optimizedPdfPath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get page count: %v", ErrInvalidPDF, err)
	}
	if pageCount == 0 {
		return nil, fmt.Errorf("%w: %s has no pages", ErrInvalidPDF, doc.FileName)
	}

	pagesDir := filepath.Join(tempDir, "pages")
	if err := os.Mkdir(pagesDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create pages dir: %w", err)
	}
	if err := api.SplitFile(optimizedPdfPath, pagesDir, 1, nil); err != nil {
		return nil, fmt.Errorf("%w: failed to split pdf: %v", ErrInvalidPDF, err)
	}

	pages := make([]models.PageUnit, pageCount)
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(s.config.Concurrency)
	for i := 1; i <= pageCount; i++ {
		pageNumber := i
		eg.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			pagePDF, err := readSplitPage(pagesDir, optimizedPdfPath, pageNumber, pageCount)
			if err != nil {
				return fmt.Errorf("page %d: %w", pageNumber, err)
			}
			img, err := s.raster.RenderPNG(pagePDF)
			if err != nil {
				return fmt.Errorf("page %d: %w: %v", pageNumber, ErrInvalidPDF, err)
			}
			pages[pageNumber-1] = models.PageUnit{
				Index:         pageNumber,
				PDF:           pagePDF,
				Image:         img,
				ImageMIMEType: pdfraster.PNGMIMEType,
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	s.metrics.AddPagesSplit(pageCount)
	logCtx.Info().Int("pages", pageCount).Msg("split document into pages")
	return &PageSequence{pages: pages}, nil
}

// readSplitPage loads the file pdfcpu wrote for one page. A single-page
// document may not be rewritten, in which case the optimized file is the page.
func readSplitPage(pagesDir, optimizedPdfPath string, pageNumber, pageCount int) ([]byte, error) {
	base := strings.TrimSuffix(filepath.Base(optimizedPdfPath), filepath.Ext(optimizedPdfPath))
	data, err := os.ReadFile(filepath.Join(pagesDir, fmt.Sprintf("%s_%d.pdf", base, pageNumber)))
	if err == nil {
		return data, nil
	}
	if os.IsNotExist(err) && pageCount == 1 {
		return os.ReadFile(optimizedPdfPath)
	}
	return nil, fmt.Errorf("failed to read split page: %w", err)
}

func optimizePDF(inPath, outPath string) error {
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	return api.OptimizeFile(inPath, outPath, cfg)
}
