package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/poiesic/notebase/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// embeddingServer answers /embeddings with one vector per input, whose
// first component is the input length.
func embeddingServer(t *testing.T, requests *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/embeddings") {
			http.NotFound(w, r)
			return
		}
		requests.Add(1)
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		type item struct {
			Object    string    `json:"object"`
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		data := make([]item, len(req.Input))
		for i, in := range req.Input {
			data[i] = item{Object: "embedding", Embedding: []float32{float32(len(in)), 1, 0}, Index: i}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  req.Model,
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestEmbedder(t *testing.T) {
	var requests atomic.Int32
	srv := embeddingServer(t, &requests)
	e, err := NewEmbedder(ai.NewConfig(ai.WithHost(srv.URL)))
	require.NoError(t, err)
	ctx := context.Background()

	vec, err := e.EmbedText(ctx, "badger")
	require.NoError(t, err)
	assert.Equal(t, []float32{6, 1, 0}, vec)

	vecs, err := e.EmbedTexts(ctx, []string{"a", "sett"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, float32(1), vecs[0][0])
	assert.Equal(t, float32(4), vecs[1][0])

	before := requests.Load()
	vecs, err = e.EmbedTexts(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, vecs)
	assert.Equal(t, before, requests.Load(), "no request for an empty batch")
}

func TestEmbedderServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"message": "model not loaded"}}`, http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	e, err := NewEmbedder(ai.NewConfig(ai.WithHost(srv.URL)))
	require.NoError(t, err)
	_, err = e.EmbedText(context.Background(), "badger")
	assert.Error(t, err)
}
