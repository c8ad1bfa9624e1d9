package removal

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aager/image-backfill/pkg/core"
)

func TestRemoveReturnsProcessedImage(t *testing.T) {
	processed := []byte("\x89PNG\r\n\x1a\nprocessed")
	var gotContentType string
	var gotBody []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(processed)
	}))
	defer server.Close()

	remover := NewHTTPRemover(server.URL, "key", time.Second)
	out, err := remover.Remove(context.Background(), core.ImagePayload{
		Data:        []byte("original-jpeg-bytes"),
		ContentType: "image/jpeg",
	})
	require.NoError(t, err)

	assert.Equal(t, "image/jpeg", gotContentType)
	assert.Equal(t, []byte("original-jpeg-bytes"), gotBody)
	assert.Equal(t, processed, out.Data)
	assert.Equal(t, "image/png", out.ContentType)
}

func TestRemoveRejectedInputIsPermanent(t *testing.T) {
	for _, status := range []int{
		http.StatusRequestEntityTooLarge,
		http.StatusUnsupportedMediaType,
		http.StatusUnprocessableEntity,
	} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))

		remover := NewHTTPRemover(server.URL, "", time.Second)
		_, err := remover.Remove(context.Background(), core.ImagePayload{Data: []byte("x")})
		server.Close()

		require.Error(t, err, "status %d", status)
		assert.True(t, core.IsPermanent(err), "status %d", status)
		assert.Equal(t, core.ReasonRemovalRejected, core.FailureReason(err), "status %d", status)
	}
}

func TestRemoveServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model crashed", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	remover := NewHTTPRemover(server.URL, "", time.Second)
	_, err := remover.Remove(context.Background(), core.ImagePayload{Data: []byte("x")})

	require.Error(t, err)
	assert.True(t, core.IsTransient(err))
}

func TestRemoveTimeoutIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	remover := NewHTTPRemover(server.URL, "", 20*time.Millisecond)
	_, err := remover.Remove(context.Background(), core.ImagePayload{Data: []byte("x")})

	require.Error(t, err)
	assert.True(t, core.IsTransient(err))
}

func TestNoopRemoverPassesThrough(t *testing.T) {
	payload := core.ImagePayload{Data: []byte("untouched"), ContentType: "image/jpeg"}

	out, err := NewNoopRemover().Remove(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, payload, out)
}
