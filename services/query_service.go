package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"web-rag-engine/models"
)

// NoRelevantDocsMessage is returned when no indexed chunk clears the
// similarity floor. The generator is never invoked with empty context.
const NoRelevantDocsMessage = "No relevant documents found."

// QueryEmbedder embeds a single query text.
type QueryEmbedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// VectorSearcher returns chunks nearest to the query vector, descending by
// score, already filtered by the similarity floor.
type VectorSearcher interface {
	Search(ctx context.Context, vector []float32, k int, scoreFloor float64) ([]models.SearchHit, error)
}

// Generator produces an answer from a fully assembled prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Answer is the query caller's response: the generated text and the
// deduplicated source URLs of the chunks it was grounded on.
type Answer struct {
	Response string   `json:"response"`
	Sources  []string `json:"sources"`
}

// QueryService orchestrates retrieval: embed the query, search the index,
// assemble a bounded context, invoke the generator.
type QueryService struct {
	embedder  QueryEmbedder
	store     VectorSearcher
	generator Generator

	topK          int
	scoreFloor    float64
	contextChunks int
	callTimeout   time.Duration
}

func NewQueryService(embedder QueryEmbedder, store VectorSearcher, generator Generator,
	topK int, scoreFloor float64, contextChunks int, callTimeout time.Duration) *QueryService {
	if contextChunks > topK {
		contextChunks = topK
	}
	return &QueryService{
		embedder:      embedder,
		store:         store,
		generator:     generator,
		topK:          topK,
		scoreFloor:    scoreFloor,
		contextChunks: contextChunks,
		callTimeout:   callTimeout,
	}
}

const contextSeparator = "\n\n---\n\n"

// Answer resolves a natural-language query against the indexed corpus.
// Any upstream failure surfaces as a single retrieval error with the cause
// attached; partial results are never returned.
func (s *QueryService) Answer(ctx context.Context, query string) (*Answer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	embedCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	vector, err := s.embedder.EmbedText(embedCtx, query)
	if err != nil {
		return nil, upstream("query embedding", err)
	}

	searchCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	hits, err := s.store.Search(searchCtx, vector, s.topK, s.scoreFloor)
	if err != nil {
		return nil, upstream("vector search", err)
	}

	if len(hits) == 0 {
		return &Answer{Response: NoRelevantDocsMessage, Sources: []string{}}, nil
	}

	// Context and attribution come from the used hits only, not all K
	used := hits
	if len(used) > s.contextChunks {
		used = used[:s.contextChunks]
	}

	contextTexts := make([]string, len(used))
	for i, hit := range used {
		contextTexts[i] = hit.Chunk.Text
	}
	prompt := buildPrompt(strings.Join(contextTexts, contextSeparator), query)

	genCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	response, err := s.generator.Generate(genCtx, prompt)
	if err != nil {
		return nil, upstream("generation", err)
	}

	return &Answer{Response: response, Sources: sourceURLs(used)}, nil
}

func buildPrompt(contextBlock, query string) string {
	return fmt.Sprintf(`You are an assistant that answers questions using the provided context.
If the context does not contain enough information, answer based on your general knowledge.

Context:
%s

Question: %s

Answer:`, contextBlock, query)
}

// sourceURLs deduplicates hit URLs preserving first-seen order.
func sourceURLs(hits []models.SearchHit) []string {
	seen := make(map[string]struct{}, len(hits))
	sources := make([]string, 0, len(hits))
	for _, hit := range hits {
		url := hit.Chunk.URL
		if url == "" {
			continue
		}
		if _, ok := seen[url]; ok {
			continue
		}
		seen[url] = struct{}{}
		sources = append(sources, url)
	}
	return sources
}
