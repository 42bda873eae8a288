package blobstore

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

func TestBase64(t *testing.T) {
	assert.Equal(t, "JVBERi0=", Base64([]byte("%PDF-")))
	assert.Equal(t, "", Base64(nil))
}

func TestDriveFileID(t *testing.T) {
	tests := []struct {
		link    string
		want    string
		wantErr bool
	}{
		{link: "https://drive.google.com/file/d/1AbC_d-9/view?usp=drivesdk", want: "1AbC_d-9"},
		{link: "https://drive.google.com/open?id=XYZ123", want: "XYZ123"},
		{link: "https://drive.google.com/drive/folders", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.link, func(t *testing.T) {
			got, err := DriveFileID(tt.link)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGCSLinkRoundTrip(t *testing.T) {
	link := GCSLink("bol-pages", "bols/Order A1 - Shipment S1.pdf")
	assert.Equal(t, "https://storage.cloud.google.com/bol-pages/bols/Order A1 - Shipment S1.pdf", link)

	bucket, object, err := ParseGCSLink(link)
	require.NoError(t, err)
	assert.Equal(t, "bol-pages", bucket)
	assert.Equal(t, "bols/Order A1 - Shipment S1.pdf", object)

	_, _, err = ParseGCSLink("https://example.com/x")
	require.Error(t, err)
	_, _, err = ParseGCSLink(gcsLinkPrefix + "bucket-only")
	require.Error(t, err)
}

func newTestDrive(t *testing.T, handler http.HandlerFunc) *Drive {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	svc, err := drive.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)
	return NewDrive(svc)
}

func TestDriveUploadReturnsWebViewLink(t *testing.T) {
	d := newTestDrive(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		_, _ = io.Copy(io.Discard, r.Body)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"id":          "file-1",
			"webViewLink": "https://drive.google.com/file/d/file-1/view",
		})
	})

	link, err := d.Upload(context.Background(), []byte("%PDF-1.7"), "Order A1 - Shipment S1.pdf", "folder-1")
	require.NoError(t, err)
	assert.Equal(t, "https://drive.google.com/file/d/file-1/view", link)
}

func TestDriveUploadError(t *testing.T) {
	d := newTestDrive(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	_, err := d.Upload(context.Background(), []byte("%PDF-1.7"), "x.pdf", "folder-1")
	require.Error(t, err)
}

func TestDriveDownload(t *testing.T) {
	d := newTestDrive(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "media", r.URL.Query().Get("alt"))
		_, _ = w.Write([]byte("%PDF-1.7 page"))
	})

	data, err := d.Download(context.Background(), "https://drive.google.com/file/d/file-1/view")
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7 page", string(data))
}
