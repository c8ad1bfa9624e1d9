package imagesource

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aager/image-backfill/pkg/core"
	"github.com/aager/image-backfill/pkg/limits"
)

// Fetcher implements core.ImageFetcher. Downloads are bounded in both
// time and size; payloads that are not images are rejected before any
// further processing spends quota on them.
type Fetcher struct {
	client   *http.Client
	maxBytes int64
}

// NewFetcher creates a bounded downloader.
func NewFetcher(timeout time.Duration, maxBytes int64) *Fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Fetcher{
		client:   &http.Client{Timeout: timeout},
		maxBytes: limits.ClampDownloadBytes(maxBytes),
	}
}

// Fetch downloads the candidate image at rawURL.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (core.ImagePayload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return core.ImagePayload{}, core.Permanent("malformed_candidate_url", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return core.ImagePayload{}, core.Transient("download_failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		// The candidate URL points at nothing anymore.
		return core.ImagePayload{}, core.Permanent(core.ReasonNoImageFound, httpError(resp))
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return core.ImagePayload{}, core.Transient("download_unavailable", httpError(resp))
	default:
		return core.ImagePayload{}, core.Permanent("download_rejected", httpError(resp))
	}

	// One byte past the cap distinguishes an oversize payload from one
	// that is exactly at the limit.
	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return core.ImagePayload{}, core.Transient("download_truncated", err)
	}
	if int64(len(data)) > f.maxBytes {
		return core.ImagePayload{}, core.Permanent("image_too_large",
			fmt.Errorf("download exceeds %d byte limit", f.maxBytes))
	}

	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		return core.ImagePayload{}, core.Permanent(core.ReasonMalformedImage,
			fmt.Errorf("payload is %s, not an image", contentType))
	}

	return core.ImagePayload{Data: data, ContentType: contentType}, nil
}
