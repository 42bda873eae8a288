package models

import "time"

// Document statuses recorded in the Firestore audit trail.
const (
	DocumentStatusSplitting  = "SPLITTING"
	DocumentStatusExtracting = "EXTRACTING"
	DocumentStatusCompleted  = "COMPLETED"
	DocumentStatusFailed     = "FAILED"
)

// Document represents the audit record for one inbound BOL attachment in Firestore.
// It is keyed by the SHA-256 of the attachment bytes and tracks how far the pipeline got.
type Document struct {
	FileHash         string    `firestore:"fileHash,omitempty"`
	OriginalFilename string    `firestore:"originalFilename,omitempty"`
	Status           string    `firestore:"status,omitempty"`
	ErrorDetails     string    `firestore:"errorDetails,omitempty"`
	PageCount        int       `firestore:"pageCount,omitempty"`
	RecordCount      int       `firestore:"recordCount,omitempty"`
	RunID            string    `firestore:"runId,omitempty"` // For traceability
	CreatedAt        time.Time `firestore:"createdAt,omitempty"`
}

// RawDocument is one email attachment, possibly holding several BOL pages.
type RawDocument struct {
	FileName string
	Data     []byte
}

// PageUnit is a single page cut out of a RawDocument.
type PageUnit struct {
	// Index is the 1-based physical page number in the source document.
	Index         int
	PDF           []byte
	Image         []byte
	ImageMIMEType string
}
