// Package removal provides background-removal capability adapters.
//
// The HTTPRemover calls an external removal service; the NoopRemover
// passes images through unchanged and stands in when the capability is
// disabled. Selection happens once at wiring time, so the processor
// never checks whether removal is available.
package removal

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aager/image-backfill/pkg/core"
)

// HTTPRemover implements core.BackgroundRemover against an HTTP service
// that accepts raw image bytes and responds with a processed PNG.
type HTTPRemover struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger
}

// NewHTTPRemover creates a remover for the service at baseURL.
func NewHTTPRemover(baseURL, apiKey string, timeout time.Duration) *HTTPRemover {
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &HTTPRemover{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		logger:  slog.Default().With("component", "removal"),
	}
}

// Remove sends the image for background removal and returns the
// processed payload.
func (r *HTTPRemover) Remove(ctx context.Context, payload core.ImagePayload) (core.ImagePayload, error) {
	endpoint := r.baseURL + "/v1/remove-background"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload.Data))
	if err != nil {
		return core.ImagePayload{}, core.Transient("removal_request", err)
	}
	req.Header.Set("Content-Type", payload.ContentType)
	req.Header.Set("Accept", "image/png")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return core.ImagePayload{}, core.Transient("removal_unreachable", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusRequestEntityTooLarge,
		resp.StatusCode == http.StatusUnsupportedMediaType,
		resp.StatusCode == http.StatusUnprocessableEntity:
		// The input image is the problem; retrying the same bytes is futile.
		return core.ImagePayload{}, core.Permanent(core.ReasonRemovalRejected, httpError(resp))
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return core.ImagePayload{}, core.Transient("removal_unavailable", httpError(resp))
	default:
		return core.ImagePayload{}, core.Permanent(core.ReasonRemovalRejected, httpError(resp))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return core.ImagePayload{}, core.Transient("removal_truncated", err)
	}
	if len(data) == 0 {
		return core.ImagePayload{}, core.Transient("removal_empty_response", fmt.Errorf("empty body from %s", endpoint))
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	r.logger.DebugContext(ctx, "background removed",
		"item", core.ItemIDFromContext(ctx),
		"in_bytes", len(payload.Data),
		"out_bytes", len(data))
	return core.ImagePayload{Data: data, ContentType: contentType}, nil
}

func httpError(resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("request failed: %s %s", resp.Status, strings.TrimSpace(string(msg)))
}

// NoopRemover passes payloads through unchanged.
type NoopRemover struct{}

// NewNoopRemover creates the pass-through remover.
func NewNoopRemover() *NoopRemover {
	return &NoopRemover{}
}

func (*NoopRemover) Remove(_ context.Context, payload core.ImagePayload) (core.ImagePayload, error) {
	return payload, nil
}
