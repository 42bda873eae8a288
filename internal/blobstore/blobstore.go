// Package blobstore uploads page PDFs and returns shareable links to them.
package blobstore

import (
	"context"
	"encoding/base64"
)

// PDFContentType is the content type used for page uploads.
const PDFContentType = "application/pdf"

// Store is a file store addressed by shareable links.
type Store interface {
	// Upload stores data as name inside parentID and returns a shareable link.
	Upload(ctx context.Context, data []byte, name, parentID string) (string, error)
	// Download fetches the bytes behind a link returned by Upload.
	Download(ctx context.Context, link string) ([]byte, error)
}

// Base64 encodes data with standard padding.
func Base64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}
