package blobstore

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/Lllllllleong/bolledger/internal/gcp"
)

const gcsLinkPrefix = "https://storage.cloud.google.com/"

// GCS stores files as objects in a single bucket. parentID is used as the object prefix.
type GCS struct {
	client *storage.Client
	bucket string
}

func NewGCS(client *storage.Client, bucket string) *GCS {
	return &GCS{client: client, bucket: bucket}
}

// Upload never overwrites. An object that already exists is treated as uploaded.
func (g *GCS) Upload(ctx context.Context, data []byte, name, parentID string) (string, error) {
	object := path.Join(parentID, name)
	if _, err := gcp.SaveToGCSAtomically(ctx, g.client.Bucket(g.bucket), object, data, PDFContentType); err != nil {
		return "", fmt.Errorf("gcs upload %q: %w", object, err)
	}
	return GCSLink(g.bucket, object), nil
}

func (g *GCS) Download(ctx context.Context, link string) ([]byte, error) {
	bucket, object, err := ParseGCSLink(link)
	if err != nil {
		return nil, err
	}
	r, err := g.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs open %s/%s: %w", bucket, object, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("gcs read %s/%s: %w", bucket, object, err)
	}
	return data, nil
}

// GCSLink is the authenticated browser URL of an object.
func GCSLink(bucket, object string) string {
	return gcsLinkPrefix + bucket + "/" + object
}

// ParseGCSLink reverses GCSLink.
func ParseGCSLink(link string) (bucket, object string, err error) {
	rest, ok := strings.CutPrefix(link, gcsLinkPrefix)
	if !ok {
		return "", "", fmt.Errorf("not a gcs link: %q", link)
	}
	bucket, object, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || object == "" {
		return "", "", fmt.Errorf("gcs link %q has no object", link)
	}
	return bucket, object, nil
}
