// Package imagesource resolves and downloads candidate images from an
// external image search service.
package imagesource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/aager/image-backfill/pkg/core"
	"github.com/aager/image-backfill/pkg/limits"
)

// SearchClient implements core.ImageSearcher against an HTTP JSON API.
type SearchClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger
}

// NewSearchClient creates a search client for the service at baseURL.
func NewSearchClient(baseURL, apiKey string, timeout time.Duration) *SearchClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SearchClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		logger:  slog.Default().With("component", "imagesource"),
	}
}

type searchResponse struct {
	Results []searchResult `json:"results"`
}

type searchResult struct {
	URL    string `json:"url"`
	Rank   int    `json:"rank"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Source string `json:"source"`
}

// Search returns ranked candidates for the lookup key. An empty result
// means the key resolves to no image anywhere; that is not an error.
func (c *SearchClient) Search(ctx context.Context, lookupKey string) ([]core.ImageCandidate, error) {
	if err := limits.ValidateLookupKey(lookupKey); err != nil {
		return nil, core.Permanent("invalid_lookup_key", err)
	}

	endpoint := fmt.Sprintf("%s/v1/images?lookup_key=%s", c.baseURL, url.QueryEscape(lookupKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, core.Permanent("invalid_lookup_key", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, core.Transient("search_unreachable", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		// The provider's way of saying the key is unknown to it.
		return nil, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, core.Transient("search_unavailable", httpError(resp))
	default:
		return nil, core.Permanent("search_rejected", httpError(resp))
	}

	var out searchResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return nil, core.Transient("search_malformed_response", err)
	}

	candidates := make([]core.ImageCandidate, 0, len(out.Results))
	for _, r := range out.Results {
		if r.URL == "" {
			continue
		}
		candidates = append(candidates, core.ImageCandidate{
			URL:    r.URL,
			Rank:   r.Rank,
			Width:  r.Width,
			Height: r.Height,
			Source: r.Source,
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Rank < candidates[j].Rank
	})

	c.logger.DebugContext(ctx, "search completed",
		"item", core.ItemIDFromContext(ctx),
		"lookup_key", lookupKey,
		"candidates", len(candidates))
	return candidates, nil
}

func httpError(resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("request failed: %s %s", resp.Status, strings.TrimSpace(string(msg)))
}
