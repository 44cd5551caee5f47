// Package blob archives raw media bytes to an external object store.
package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// UploadTimeout bounds a single archival upload.
const UploadTimeout = 30 * time.Second

// Uploader stores a blob under a key. Implementations must be safe for
// concurrent use.
type Uploader interface {
	Upload(ctx context.Context, key, contentType string, data []byte) error
}

// HTTPUploader uploads blobs with a PUT per object, authenticated by a
// bearer token. Matches the ingest API of the archive service.
type HTTPUploader struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

func NewHTTPUploader(endpoint, apiKey string) *HTTPUploader {
	return &HTTPUploader{
		endpoint: endpoint,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: UploadTimeout},
	}
}

func (u *HTTPUploader) Upload(ctx context.Context, key, contentType string, data []byte) error {
	target := fmt.Sprintf("%s/%s", u.endpoint, url.PathEscape(key))
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+u.apiKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := u.http.Do(req)
	if err != nil {
		return fmt.Errorf("upload blob %s: %w", key, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 300 {
		return fmt.Errorf("upload blob %s: status %d", key, resp.StatusCode)
	}
	return nil
}
