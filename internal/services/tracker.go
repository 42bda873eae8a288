package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Lllllllleong/bolledger/internal/models"
)

// DocumentTracker records how far each inbound document got. Documents are keyed by content hash.
type DocumentTracker interface {
	// Start registers a document for this run. done is true when an earlier run completed it.
	Start(ctx context.Context, hash, fileName, runID string) (done bool, err error)
	MarkExtracting(ctx context.Context, hash string, pageCount int) error
	MarkCompleted(ctx context.Context, hash string, recordCount int) error
	MarkFailed(ctx context.Context, hash, details string) error
}

// DocumentHash is the hex SHA-256 of a document's bytes.
func DocumentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// FirestoreTracker keeps one models.Document per hash in a collection.
type FirestoreTracker struct {
	client     *firestore.Client
	collection string
	now        func() time.Time
}

func NewFirestoreTracker(client *firestore.Client, collection string) *FirestoreTracker {
	return &FirestoreTracker{client: client, collection: collection, now: time.Now}
}

func (t *FirestoreTracker) Start(ctx context.Context, hash, fileName, runID string) (bool, error) {
	docRef := t.client.Collection(t.collection).Doc(hash)
	snap, err := docRef.Get(ctx)
	if err != nil && status.Code(err) != codes.NotFound {
		return false, fmt.Errorf("failed to read document %s: %w", hash, err)
	}
	if err == nil && snap.Exists() {
		var existing models.Document
		if err := snap.DataTo(&existing); err != nil {
			return false, fmt.Errorf("failed to decode document %s: %w", hash, err)
		}
		if existing.Status == models.DocumentStatusCompleted {
			return true, nil
		}
	}

	doc := models.Document{
		FileHash:         hash,
		OriginalFilename: fileName,
		Status:           models.DocumentStatusSplitting,
		RunID:            runID,
		CreatedAt:        t.now(),
	}
	if _, err := docRef.Set(ctx, doc); err != nil {
		return false, fmt.Errorf("failed to create document %s: %w", hash, err)
	}
	return false, nil
}

func (t *FirestoreTracker) MarkExtracting(ctx context.Context, hash string, pageCount int) error {
	return t.update(ctx, hash, []firestore.Update{
		{Path: "status", Value: models.DocumentStatusExtracting},
		{Path: "pageCount", Value: pageCount},
	})
}

func (t *FirestoreTracker) MarkCompleted(ctx context.Context, hash string, recordCount int) error {
	return t.update(ctx, hash, []firestore.Update{
		{Path: "status", Value: models.DocumentStatusCompleted},
		{Path: "recordCount", Value: recordCount},
	})
}

func (t *FirestoreTracker) MarkFailed(ctx context.Context, hash, details string) error {
	return t.update(ctx, hash, []firestore.Update{
		{Path: "status", Value: models.DocumentStatusFailed},
		{Path: "errorDetails", Value: details},
	})
}

func (t *FirestoreTracker) update(ctx context.Context, hash string, updates []firestore.Update) error {
	if _, err := t.client.Collection(t.collection).Doc(hash).Update(ctx, updates); err != nil {
		return fmt.Errorf("failed to update document %s: %w", hash, err)
	}
	return nil
}
