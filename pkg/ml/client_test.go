package ml

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"tabkeeper-be/internal/pkg/logger"
	"tabkeeper-be/pkg/httpclient"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Analyze(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/analyze", r.URL.Path)

		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "golang generics", req["text"])
		assert.Equal(t, "https://go.dev", req["url"])

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"summary":   "About generics",
			"category":  "technology",
			"keywords":  []string{"go", "generics"},
			"entities":  []map[string]string{{"text": "Go", "label": "PRODUCT"}},
			"embedding": []float64{0.1, 0.2, 0.3},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second, logger.NewNopLogger())
	analysis, err := client.Analyze(context.Background(), "golang generics", "https://go.dev")
	require.NoError(t, err)

	assert.Equal(t, "About generics", analysis.Summary)
	assert.Equal(t, "technology", analysis.Category)
	assert.Equal(t, []string{"go", "generics"}, analysis.Tags)
	assert.Contains(t, analysis.Entities, "items")
	assert.InDeltaSlice(t, []float32{0.1, 0.2, 0.3}, analysis.Embedding, 1e-6)
}

func TestClient_ClientErrorDoesNotTripBreaker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"Text is required"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second, logger.NewNopLogger())
	for i := 0; i < 10; i++ {
		_, err := client.Embed(context.Background(), "")
		require.Error(t, err)
		assert.True(t, httpclient.IsClientError(err))
	}
	assert.Equal(t, gobreaker.StateClosed, client.State())
}

func TestClient_ServerErrorsOpenBreaker(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second, logger.NewNopLogger())
	for i := 0; i < 5; i++ {
		_, err := client.Embed(context.Background(), "text")
		require.Error(t, err)
		assert.False(t, httpclient.IsClientError(err))
	}
	assert.Equal(t, gobreaker.StateOpen, client.State())

	_, err := client.Embed(context.Background(), "text")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(5), calls.Load())
}
