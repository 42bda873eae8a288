// Package pdfraster renders PDF pages to images.
package pdfraster

import (
	"fmt"

	"github.com/gen2brain/go-fitz"
)

// PNGMIMEType is the MIME type of images produced by Rasterizer implementations.
const PNGMIMEType = "image/png"

// Rasterizer renders the first page of a PDF to a PNG image.
type Rasterizer interface {
	RenderPNG(pdf []byte) ([]byte, error)
}

// MuPDF renders pages with MuPDF through go-fitz.
type MuPDF struct {
	DPI float64
}

func NewMuPDF(dpi float64) *MuPDF {
	if dpi <= 0 {
		dpi = 150
	}
	return &MuPDF{DPI: dpi}
}

func (m *MuPDF) RenderPNG(pdf []byte) ([]byte, error) {
	doc, err := fitz.NewFromMemory(pdf)
	if err != nil {
		return nil, fmt.Errorf("open pdf for rasterizing: %w", err)
	}
	defer doc.Close()

	if doc.NumPage() < 1 {
		return nil, fmt.Errorf("pdf has no pages to rasterize")
	}
	img, err := doc.ImagePNG(0, m.DPI)
	if err != nil {
		return nil, fmt.Errorf("render page as png: %w", err)
	}
	return img, nil
}
