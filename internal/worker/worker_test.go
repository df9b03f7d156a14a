package worker

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"web-rag-engine/internal/queue"
	"web-rag-engine/models"
)

type memRegistry struct {
	docs       map[string]*models.Document
	jobStatus  map[string]string
	casErr     error
	lookupErr  error
	transitions []string
}

func newMemRegistry() *memRegistry {
	return &memRegistry{
		docs:      map[string]*models.Document{},
		jobStatus: map[string]string{},
	}
}

func (m *memRegistry) seed(docID, url, status string) *models.Document {
	doc := &models.Document{DocID: docID, URL: url, Status: status}
	m.docs[docID] = doc
	return doc
}

func (m *memRegistry) FindByDocID(_ context.Context, docID string) (*models.Document, error) {
	if m.lookupErr != nil {
		return nil, m.lookupErr
	}
	doc, ok := m.docs[docID]
	if !ok {
		return nil, errors.New("document not found")
	}
	return doc, nil
}

func (m *memRegistry) CompareAndSetStatus(_ context.Context, docID string, expected []string, newStatus string) (bool, error) {
	if m.casErr != nil {
		return false, m.casErr
	}
	doc, ok := m.docs[docID]
	if !ok {
		return false, nil
	}
	for _, s := range expected {
		if doc.Status == s {
			doc.Status = newStatus
			m.transitions = append(m.transitions, newStatus)
			return true, nil
		}
	}
	return false, nil
}

func (m *memRegistry) SetDocumentError(_ context.Context, docID, cause string) error {
	if doc, ok := m.docs[docID]; ok {
		doc.Error = cause
	}
	return nil
}

func (m *memRegistry) MarkJobStatus(_ context.Context, jobID, status string) error {
	m.jobStatus[jobID] = status
	return nil
}

type memQueue struct {
	jobs []queue.JobPayload
	err  error
}

func (m *memQueue) Dequeue(_ context.Context) (*queue.JobPayload, error) {
	if m.err != nil {
		return nil, m.err
	}
	if len(m.jobs) == 0 {
		return nil, nil
	}
	job := m.jobs[0]
	m.jobs = m.jobs[1:]
	return &job, nil
}

type stubFetcher struct {
	body string
	err  error
}

func (s *stubFetcher) Fetch(_ context.Context, _ string) (string, error) {
	return s.body, s.err
}

type stubChunker struct {
	chunks []string
}

func (s *stubChunker) Chunk(_ string) []string { return s.chunks }

type stubEmbedder struct {
	err      error
	gotTexts []string
}

func (s *stubEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	s.gotTexts = texts
	if s.err != nil {
		return nil, s.err
	}
	vectors := make([][]float32, len(texts))
	for i := range vectors {
		vectors[i] = []float32{float32(i)}
	}
	return vectors, nil
}

type stubStore struct {
	ensureErr  error
	upsertErr  error
	ensured    bool
	dimension  int
	gotChunks  []models.Chunk
	gotVectors [][]float32
}

func (s *stubStore) EnsureCollection(_ context.Context, dimension int) error {
	s.ensured = true
	s.dimension = dimension
	return s.ensureErr
}

func (s *stubStore) Upsert(_ context.Context, chunks []models.Chunk, vectors [][]float32) error {
	if s.upsertErr != nil {
		return s.upsertErr
	}
	s.gotChunks = chunks
	s.gotVectors = vectors
	return nil
}

func passthroughExtract(html string) (string, error) { return html, nil }

func testOptions(reg *memRegistry, store *stubStore) Options {
	return Options{
		Registry:         reg,
		Fetcher:          &stubFetcher{body: "some page text"},
		Extract:          passthroughExtract,
		Chunker:          &stubChunker{chunks: []string{"first chunk", "second chunk"}},
		Embedder:         &stubEmbedder{},
		Store:            store,
		VectorDimensions: 768,
		PollInterval:     time.Millisecond,
	}
}

func TestProcessJobSuccess(t *testing.T) {
	reg := newMemRegistry()
	reg.seed("doc-1", "https://example.com/a", models.StatusQueued)
	store := &stubStore{}

	w := New(testOptions(reg, store))
	w.processJob(context.Background(), &queue.JobPayload{JobID: "job-1", DocID: "doc-1", URL: "https://example.com/a"})

	assert.Equal(t, models.StatusCompleted, reg.docs["doc-1"].Status)
	assert.Equal(t, []string{models.StatusProcessing, models.StatusCompleted}, reg.transitions,
		"document passes through processing before completed")
	assert.Equal(t, models.StatusCompleted, reg.jobStatus["job-1"])

	require.Len(t, store.gotChunks, 2)
	require.Len(t, store.gotVectors, 2)
	for i, chunk := range store.gotChunks {
		assert.Equal(t, "doc-1", chunk.DocID)
		assert.Equal(t, "https://example.com/a", chunk.URL)
		assert.Equal(t, i, chunk.Order)
		assert.NotEmpty(t, chunk.ChunkID)
	}
}

func TestProcessJobDuplicateDeliverySkipped(t *testing.T) {
	reg := newMemRegistry()
	reg.seed("doc-1", "https://example.com/a", models.StatusProcessing)
	store := &stubStore{}

	w := New(testOptions(reg, store))
	w.processJob(context.Background(), &queue.JobPayload{JobID: "job-2", DocID: "doc-1", URL: "https://example.com/a"})

	assert.Equal(t, models.StatusProcessing, reg.docs["doc-1"].Status, "another worker's claim stands")
	assert.Empty(t, store.gotChunks, "duplicate delivery must not write chunks")
	assert.Empty(t, reg.jobStatus)
}

func TestProcessJobCompletedDocSkipped(t *testing.T) {
	reg := newMemRegistry()
	reg.seed("doc-1", "https://example.com/a", models.StatusCompleted)
	store := &stubStore{}

	w := New(testOptions(reg, store))
	w.processJob(context.Background(), &queue.JobPayload{JobID: "job-2", DocID: "doc-1", URL: "https://example.com/a"})

	assert.Equal(t, models.StatusCompleted, reg.docs["doc-1"].Status)
	assert.Empty(t, store.gotChunks)
}

func TestProcessJobFetchFailure(t *testing.T) {
	reg := newMemRegistry()
	reg.seed("doc-1", "https://example.com/a", models.StatusQueued)
	store := &stubStore{}

	opts := testOptions(reg, store)
	opts.Fetcher = &stubFetcher{err: errors.New("404 from origin")}
	w := New(opts)
	w.processJob(context.Background(), &queue.JobPayload{JobID: "job-1", DocID: "doc-1", URL: "https://example.com/a"})

	assert.Equal(t, models.StatusFailed, reg.docs["doc-1"].Status)
	assert.Contains(t, reg.docs["doc-1"].Error, "404 from origin")
	assert.Equal(t, models.StatusFailed, reg.jobStatus["job-1"])
	assert.Empty(t, store.gotChunks)
}

func TestProcessJobEmptyExtraction(t *testing.T) {
	reg := newMemRegistry()
	reg.seed("doc-1", "https://example.com/a", models.StatusQueued)
	store := &stubStore{}

	opts := testOptions(reg, store)
	opts.Chunker = &stubChunker{chunks: nil}
	w := New(opts)
	w.processJob(context.Background(), &queue.JobPayload{JobID: "job-1", DocID: "doc-1", URL: "https://example.com/a"})

	assert.Equal(t, models.StatusFailed, reg.docs["doc-1"].Status)
	assert.Contains(t, reg.docs["doc-1"].Error, "no chunks extracted")
}

func TestProcessJobEmbedFailure(t *testing.T) {
	reg := newMemRegistry()
	reg.seed("doc-1", "https://example.com/a", models.StatusQueued)
	store := &stubStore{}

	opts := testOptions(reg, store)
	opts.Embedder = &stubEmbedder{err: errors.New("quota exceeded")}
	w := New(opts)
	w.processJob(context.Background(), &queue.JobPayload{JobID: "job-1", DocID: "doc-1", URL: "https://example.com/a"})

	assert.Equal(t, models.StatusFailed, reg.docs["doc-1"].Status)
	assert.Contains(t, reg.docs["doc-1"].Error, "quota exceeded")
	assert.Empty(t, store.gotChunks, "nothing is upserted after an embed failure")
}

func TestProcessJobUnknownDocumentDropped(t *testing.T) {
	reg := newMemRegistry()
	store := &stubStore{}

	w := New(testOptions(reg, store))
	w.processJob(context.Background(), &queue.JobPayload{JobID: "job-1", DocID: "ghost", URL: "https://example.com/a"})

	assert.Empty(t, store.gotChunks)
	assert.Empty(t, reg.transitions)
}

func TestChunkIDDeterministic(t *testing.T) {
	assert.Equal(t, chunkID("doc-1", 0), chunkID("doc-1", 0),
		"re-processing must address the same points")
	assert.NotEqual(t, chunkID("doc-1", 0), chunkID("doc-1", 1))
	assert.NotEqual(t, chunkID("doc-1", 0), chunkID("doc-2", 0))
	assert.Len(t, strings.Split(chunkID("doc-1", 0), "-"), 5, "chunk IDs are UUIDs")
}

func TestProcessJobReprocessOverwritesInPlace(t *testing.T) {
	reg := newMemRegistry()
	reg.seed("doc-1", "https://example.com/a", models.StatusQueued)
	store := &stubStore{}

	w := New(testOptions(reg, store))
	w.processJob(context.Background(), &queue.JobPayload{JobID: "job-1", DocID: "doc-1", URL: "https://example.com/a"})
	firstIDs := chunkIDs(store.gotChunks)

	reg.docs["doc-1"].Status = models.StatusFailed
	w.processJob(context.Background(), &queue.JobPayload{JobID: "job-2", DocID: "doc-1", URL: "https://example.com/a"})

	assert.Equal(t, firstIDs, chunkIDs(store.gotChunks), "retries reuse chunk IDs, overwriting prior points")
}

func chunkIDs(chunks []models.Chunk) []string {
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ChunkID
	}
	return ids
}

func TestRunProvisionsCollectionFirst(t *testing.T) {
	reg := newMemRegistry()
	store := &stubStore{ensureErr: errors.New("qdrant unreachable")}

	w := New(testOptions(reg, store))
	err := w.Run(context.Background())

	require.Error(t, err, "run must not consume jobs without a collection")
	assert.Contains(t, err.Error(), "provision vector collection")
	assert.True(t, store.ensured)
	assert.Equal(t, 768, store.dimension)
}

func TestRunDrainsQueueAndStopsOnCancel(t *testing.T) {
	reg := newMemRegistry()
	reg.seed("doc-1", "https://example.com/a", models.StatusQueued)
	reg.seed("doc-2", "https://example.com/b", models.StatusQueued)
	store := &stubStore{}

	opts := testOptions(reg, store)
	opts.Jobs = &memQueue{jobs: []queue.JobPayload{
		{JobID: "job-1", DocID: "doc-1", URL: "https://example.com/a"},
		{JobID: "job-2", DocID: "doc-2", URL: "https://example.com/b"},
	}}
	w := New(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	err := w.Run(ctx)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, models.StatusCompleted, reg.docs["doc-1"].Status)
	assert.Equal(t, models.StatusCompleted, reg.docs["doc-2"].Status)
}

func TestRunSurvivesDequeueErrors(t *testing.T) {
	reg := newMemRegistry()
	store := &stubStore{}

	opts := testOptions(reg, store)
	opts.Jobs = &memQueue{err: errors.New("redis connection refused")}
	w := New(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := w.Run(ctx)

	assert.ErrorIs(t, err, context.DeadlineExceeded, "dequeue errors back off instead of crashing the loop")
}
