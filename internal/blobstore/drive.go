package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"regexp"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
)

// Drive stores files in Google Drive folders.
type Drive struct {
	svc *drive.Service
}

func NewDrive(svc *drive.Service) *Drive {
	return &Drive{svc: svc}
}

func (d *Drive) Upload(ctx context.Context, data []byte, name, parentID string) (string, error) {
	meta := &drive.File{
		Name:     name,
		MimeType: PDFContentType,
	}
	if parentID != "" {
		meta.Parents = []string{parentID}
	}
	file, err := d.svc.Files.Create(meta).
		Media(bytes.NewReader(data), googleapi.ContentType(PDFContentType)).
		Fields("id, webViewLink").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("drive upload %q: %w", name, err)
	}
	if file.WebViewLink == "" {
		return "", fmt.Errorf("drive upload %q: no link returned for file %s", name, file.Id)
	}
	return file.WebViewLink, nil
}

func (d *Drive) Download(ctx context.Context, link string) ([]byte, error) {
	id, err := DriveFileID(link)
	if err != nil {
		return nil, err
	}
	resp, err := d.svc.Files.Get(id).SupportsAllDrives(true).Context(ctx).Download()
	if err != nil {
		return nil, fmt.Errorf("drive download %s: %w", id, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("drive download %s: read body: %w", id, err)
	}
	return data, nil
}

var drivePathID = regexp.MustCompile(`/d/([A-Za-z0-9_-]+)`)

// DriveFileID pulls the file ID out of a Drive share link. Both the
// /file/d/{id}/view and the ?id={id} forms are accepted.
func DriveFileID(link string) (string, error) {
	u, err := url.Parse(link)
	if err != nil {
		return "", fmt.Errorf("parse drive link %q: %w", link, err)
	}
	if m := drivePathID.FindStringSubmatch(u.Path); m != nil {
		return m[1], nil
	}
	if id := u.Query().Get("id"); id != "" {
		return id, nil
	}
	return "", fmt.Errorf("no file id in drive link %q", link)
}
