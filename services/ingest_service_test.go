package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"web-rag-engine/internal/queue"
	"web-rag-engine/internal/registry"
	"web-rag-engine/models"
)

type fakeRegistry struct {
	byURL map[string]*models.Document
	byID  map[string]*models.Document
	jobs  []*models.IngestionJob

	lookupErr error
	createErr error
	jobErr    error
	casErr    error
	casMiss   bool
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		byURL: map[string]*models.Document{},
		byID:  map[string]*models.Document{},
	}
}

func (f *fakeRegistry) seed(url, status string) *models.Document {
	doc := &models.Document{DocID: uuid.New().String(), URL: url, Status: status}
	f.byURL[url] = doc
	f.byID[doc.DocID] = doc
	return doc
}

func (f *fakeRegistry) FindByURL(_ context.Context, url string) (*models.Document, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	if doc, ok := f.byURL[url]; ok {
		return doc, nil
	}
	return nil, registry.ErrNotFound
}

func (f *fakeRegistry) Create(_ context.Context, url, source string) (*models.Document, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	doc := &models.Document{DocID: uuid.New().String(), URL: url, Source: source, Status: models.StatusPending}
	f.byURL[url] = doc
	f.byID[doc.DocID] = doc
	return doc, nil
}

func (f *fakeRegistry) CompareAndSetStatus(_ context.Context, docID string, expected []string, newStatus string) (bool, error) {
	if f.casErr != nil {
		return false, f.casErr
	}
	if f.casMiss {
		return false, nil
	}
	doc, ok := f.byID[docID]
	if !ok {
		return false, nil
	}
	for _, s := range expected {
		if doc.Status == s {
			doc.Status = newStatus
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRegistry) CreateJob(_ context.Context, job *models.IngestionJob) error {
	if f.jobErr != nil {
		return f.jobErr
	}
	f.jobs = append(f.jobs, job)
	return nil
}

type fakeEnqueuer struct {
	enqueued []queue.JobPayload
	err      error
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, job queue.JobPayload) error {
	if f.err != nil {
		return f.err
	}
	f.enqueued = append(f.enqueued, job)
	return nil
}

func TestSubmitNewURL(t *testing.T) {
	reg := newFakeRegistry()
	q := &fakeEnqueuer{}
	svc := NewIngestService(reg, q)

	res, err := svc.Submit(context.Background(), "https://example.com/a", "web")
	require.NoError(t, err)

	assert.NotEmpty(t, res.DocID)
	assert.NotEmpty(t, res.JobID)
	assert.Equal(t, "Ingestion job queued", res.Message)

	require.Len(t, q.enqueued, 1)
	assert.Equal(t, res.DocID, q.enqueued[0].DocID)
	assert.Equal(t, "https://example.com/a", q.enqueued[0].URL)

	// Enqueue moved the document out of pending
	assert.Equal(t, models.StatusQueued, reg.byURL["https://example.com/a"].Status)
	require.Len(t, reg.jobs, 1)
}

func TestSubmitDuplicateWhileQueued(t *testing.T) {
	reg := newFakeRegistry()
	q := &fakeEnqueuer{}
	svc := NewIngestService(reg, q)

	first, err := svc.Submit(context.Background(), "https://example.com/a", "web")
	require.NoError(t, err)

	second, err := svc.Submit(context.Background(), "https://example.com/a", "web")
	require.NoError(t, err)

	assert.Equal(t, first.DocID, second.DocID, "same URL must never get two documents")
	assert.Empty(t, second.JobID)
	assert.Equal(t, "URL ingestion already queued", second.Message)
	assert.Len(t, q.enqueued, 1, "no second job for an in-flight document")
}

func TestSubmitDuplicateWhileProcessing(t *testing.T) {
	reg := newFakeRegistry()
	doc := reg.seed("https://example.com/a", models.StatusProcessing)
	q := &fakeEnqueuer{}
	svc := NewIngestService(reg, q)

	res, err := svc.Submit(context.Background(), "https://example.com/a", "web")
	require.NoError(t, err)

	assert.Equal(t, doc.DocID, res.DocID)
	assert.Equal(t, "URL ingestion already in progress", res.Message)
	assert.Empty(t, q.enqueued)
}

func TestSubmitCompletedURL(t *testing.T) {
	reg := newFakeRegistry()
	doc := reg.seed("https://example.com/a", models.StatusCompleted)
	q := &fakeEnqueuer{}
	svc := NewIngestService(reg, q)

	res, err := svc.Submit(context.Background(), "https://example.com/a", "web")
	require.NoError(t, err)

	assert.Equal(t, doc.DocID, res.DocID)
	assert.Equal(t, "URL already ingested", res.Message)
	assert.Empty(t, res.JobID)
	assert.Empty(t, q.enqueued)
}

func TestSubmitFailedURLRetries(t *testing.T) {
	reg := newFakeRegistry()
	doc := reg.seed("https://example.com/a", models.StatusFailed)
	q := &fakeEnqueuer{}
	svc := NewIngestService(reg, q)

	res, err := svc.Submit(context.Background(), "https://example.com/a", "web")
	require.NoError(t, err)

	assert.Equal(t, doc.DocID, res.DocID, "retry reuses the doc_id")
	assert.NotEmpty(t, res.JobID)
	require.Len(t, q.enqueued, 1)
	assert.Equal(t, doc.DocID, q.enqueued[0].DocID)
	assert.Equal(t, models.StatusQueued, doc.Status)
}

func TestSubmitRetryGetsFreshJobID(t *testing.T) {
	reg := newFakeRegistry()
	q := &fakeEnqueuer{}
	svc := NewIngestService(reg, q)

	first, err := svc.Submit(context.Background(), "https://example.com/a", "web")
	require.NoError(t, err)

	reg.byURL["https://example.com/a"].Status = models.StatusFailed

	second, err := svc.Submit(context.Background(), "https://example.com/a", "web")
	require.NoError(t, err)

	assert.Equal(t, first.DocID, second.DocID)
	assert.NotEqual(t, first.JobID, second.JobID, "every enqueue attempt gets its own job_id")
}

func TestSubmitInvalidURL(t *testing.T) {
	reg := newFakeRegistry()
	q := &fakeEnqueuer{}
	svc := NewIngestService(reg, q)

	for _, bad := range []string{"", "not-a-url", "ftp://example.com/x", "http://"} {
		_, err := svc.Submit(context.Background(), bad, "web")
		assert.ErrorIs(t, err, ErrInvalidURL, "url=%q", bad)
	}
	assert.Empty(t, reg.byURL, "input errors must precede side effects")
	assert.Empty(t, q.enqueued)
}

func TestSubmitRegistryLookupFailure(t *testing.T) {
	reg := newFakeRegistry()
	reg.lookupErr = errors.New("connection reset")
	svc := NewIngestService(reg, &fakeEnqueuer{})

	_, err := svc.Submit(context.Background(), "https://example.com/a", "web")

	var upstreamErr *UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
	assert.Equal(t, "registry lookup", upstreamErr.Op)
}

func TestSubmitEnqueueFailure(t *testing.T) {
	reg := newFakeRegistry()
	q := &fakeEnqueuer{err: errors.New("redis down")}
	svc := NewIngestService(reg, q)

	_, err := svc.Submit(context.Background(), "https://example.com/a", "web")

	var upstreamErr *UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
	assert.Equal(t, "queue enqueue", upstreamErr.Op)

	// Document stays pending and reachable by URL, so a retry can proceed
	assert.Equal(t, models.StatusPending, reg.byURL["https://example.com/a"].Status)
}

func TestSubmitLostQueuedRaceIsHarmless(t *testing.T) {
	reg := newFakeRegistry()
	reg.seed("https://example.com/a", models.StatusPending)
	reg.casMiss = true // a racing submission already moved the document
	q := &fakeEnqueuer{}
	svc := NewIngestService(reg, q)

	res, err := svc.Submit(context.Background(), "https://example.com/a", "web")
	require.NoError(t, err, "losing the queued transition is not a caller error")
	assert.NotEmpty(t, res.JobID)
	assert.Len(t, q.enqueued, 1, "the duplicate job stays on the queue for the worker to skip")
}
