package storage

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"strings"
)

// UploadResult describes a stored object. Location is empty when no public
// base URL is configured.
type UploadResult struct {
	Key      string
	Location string
	ETag     string
}

// FileUploader stores ticket passes in object storage. Keys are
// "passes/{event}/{ticket}.json"; uploading to an existing key replaces the
// object, and deleting a missing key is not an error.
type FileUploader interface {
	Upload(ctx context.Context, key string, contentType string, reader io.Reader) (*UploadResult, error)
	Delete(ctx context.Context, key string) error
	GetPublicURL(key string) string
}

// publicURL joins the configured public base and an object key.
func publicURL(base, key string) string {
	if base == "" || key == "" {
		return ""
	}

	baseURL, err := url.Parse(base)
	if err != nil {
		slog.Warn("invalid public base url", "base_url", base, "error", err)
		return ""
	}
	if !strings.HasSuffix(baseURL.Path, "/") {
		baseURL.Path += "/"
	}

	pathURL, err := url.Parse(strings.TrimPrefix(key, "/"))
	if err != nil {
		slog.Warn("invalid object key", "key", key, "error", err)
		return ""
	}
	return baseURL.ResolveReference(pathURL).String()
}
