// Package vectorstore is a minimal REST client for Qdrant, the similarity
// index holding chunk embeddings. Cosine distance throughout.
package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"web-rag-engine/models"
)

type Store struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

func NewStore(cfg Config) *Store {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Store{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
	}
}

// EnsureCollection creates the chunk collection if it does not exist.
// Already-exists is a no-op; anything else is a provisioning failure and is
// reported, not swallowed.
func (s *Store) EnsureCollection(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("vectorstore: invalid dimension")
	}

	status, _, err := s.do(ctx, http.MethodGet, fmt.Sprintf("%s/collections/%s", s.url, s.collection), nil)
	if err != nil {
		return err
	}
	if status == http.StatusOK {
		return nil
	}
	if status != http.StatusNotFound {
		return fmt.Errorf("vectorstore: unexpected status %d checking collection %s", status, s.collection)
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	status, respBody, err := s.do(ctx, http.MethodPut, fmt.Sprintf("%s/collections/%s", s.url, s.collection), body)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("vectorstore: create collection %s failed: status %d: %s", s.collection, status, respBody)
	}
	return nil
}

// Upsert writes chunks and their vectors keyed by chunk_id. Re-processing a
// document upserts over the prior points because chunk IDs are deterministic
// per (doc_id, order).
func (s *Store) Upsert(ctx context.Context, chunks []models.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("vectorstore: %d chunks but %d vectors", len(chunks), len(vectors))
	}
	points := make([]map[string]any, len(chunks))
	for i, ch := range chunks {
		points[i] = map[string]any{
			"id":     ch.ChunkID,
			"vector": vectors[i],
			"payload": map[string]any{
				"chunk_id": ch.ChunkID,
				"doc_id":   ch.DocID,
				"url":      ch.URL,
				"text":     ch.Text,
			},
		}
	}
	body := map[string]any{"points": points}
	status, respBody, err := s.do(ctx, http.MethodPut, fmt.Sprintf("%s/collections/%s/points?wait=true", s.url, s.collection), body)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("vectorstore: upsert failed: status %d: %s", status, respBody)
	}
	return nil
}

// Search returns up to k hits above the score floor, descending by cosine
// similarity.
func (s *Store) Search(ctx context.Context, vector []float32, k int, scoreFloor float64) ([]models.SearchHit, error) {
	req := map[string]any{
		"vector":          vector,
		"limit":           k,
		"with_payload":    true,
		"score_threshold": scoreFloor,
	}
	status, respBody, err := s.do(ctx, http.MethodPost, fmt.Sprintf("%s/collections/%s/points/search", s.url, s.collection), req)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("vectorstore: search failed: status %d: %s", status, respBody)
	}

	var parsed struct {
		Result []struct {
			Score   float64 `json:"score"`
			Payload struct {
				ChunkID string `json:"chunk_id"`
				DocID   string `json:"doc_id"`
				URL     string `json:"url"`
				Text    string `json:"text"`
			} `json:"payload"`
		} `json:"result"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("vectorstore: decode search response: %w", err)
	}

	hits := make([]models.SearchHit, 0, len(parsed.Result))
	for _, r := range parsed.Result {
		hits = append(hits, models.SearchHit{
			Score: r.Score,
			Chunk: models.Chunk{
				ChunkID: r.Payload.ChunkID,
				DocID:   r.Payload.DocID,
				URL:     r.Payload.URL,
				Text:    r.Payload.Text,
			},
		})
	}
	return hits, nil
}

// Ping checks reachability for health reporting.
func (s *Store) Ping(ctx context.Context) error {
	status, _, err := s.do(ctx, http.MethodGet, s.url+"/collections", nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("vectorstore: ping status %d", status)
	}
	return nil
}

func (s *Store) do(ctx context.Context, method, url string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("vectorstore: marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("vectorstore: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("vectorstore: %s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("vectorstore: read response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}
