package imagesource

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aager/image-backfill/pkg/core"
)

// gifPayload is a minimal payload http.DetectContentType sniffs as image/gif.
func gifPayload(size int) []byte {
	payload := make([]byte, size)
	copy(payload, "GIF89a")
	return payload
}

func TestFetchReturnsImagePayload(t *testing.T) {
	body := gifPayload(2048)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(body)
	}))
	defer server.Close()

	fetcher := NewFetcher(time.Second, 1<<20)
	payload, err := fetcher.Fetch(context.Background(), server.URL+"/candidate.gif")
	require.NoError(t, err)

	assert.True(t, bytes.Equal(body, payload.Data))
	assert.Equal(t, "image/gif", payload.ContentType)
}

func TestFetchGoneCandidateIsPermanentNoImage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
	}))
	defer server.Close()

	fetcher := NewFetcher(time.Second, 1<<20)
	_, err := fetcher.Fetch(context.Background(), server.URL)

	require.Error(t, err)
	assert.True(t, core.IsPermanent(err))
	assert.Equal(t, core.ReasonNoImageFound, core.FailureReason(err))
}

func TestFetchServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	fetcher := NewFetcher(time.Second, 1<<20)
	_, err := fetcher.Fetch(context.Background(), server.URL)

	require.Error(t, err)
	assert.True(t, core.IsTransient(err))
}

func TestFetchOversizePayloadIsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(gifPayload(4096))
	}))
	defer server.Close()

	fetcher := NewFetcher(time.Second, 1024)
	_, err := fetcher.Fetch(context.Background(), server.URL)

	require.Error(t, err)
	assert.True(t, core.IsPermanent(err))
	assert.Equal(t, "image_too_large", core.FailureReason(err))
}

func TestFetchNonImagePayloadIsPermanentMalformed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html><body>hotlinking denied</body></html>"))
	}))
	defer server.Close()

	fetcher := NewFetcher(time.Second, 1<<20)
	_, err := fetcher.Fetch(context.Background(), server.URL)

	require.Error(t, err)
	assert.True(t, core.IsPermanent(err))
	assert.Equal(t, core.ReasonMalformedImage, core.FailureReason(err))
}

func TestFetchTimeoutIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	fetcher := NewFetcher(20*time.Millisecond, 1<<20)
	_, err := fetcher.Fetch(context.Background(), server.URL)

	require.Error(t, err)
	assert.True(t, core.IsTransient(err))
}

func TestFetchExactlyAtLimitSucceeds(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(gifPayload(1024))
	}))
	defer server.Close()

	fetcher := NewFetcher(time.Second, 1024)
	payload, err := fetcher.Fetch(context.Background(), server.URL)

	require.NoError(t, err)
	assert.Len(t, payload.Data, 1024)
}
