package services

import (
	"context"
	"errors"
	"log/slog"
	"net/url"

	"github.com/google/uuid"

	"web-rag-engine/internal/queue"
	"web-rag-engine/internal/registry"
	"web-rag-engine/models"
)

// DocumentRegistry is the registry surface the submission path needs.
type DocumentRegistry interface {
	FindByURL(ctx context.Context, url string) (*models.Document, error)
	Create(ctx context.Context, url, source string) (*models.Document, error)
	CompareAndSetStatus(ctx context.Context, docID string, expected []string, newStatus string) (bool, error)
	CreateJob(ctx context.Context, job *models.IngestionJob) error
}

// JobEnqueuer pushes ingestion jobs onto the shared queue.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, job queue.JobPayload) error
}

// SubmitResult is what the ingestion caller sees: always a doc_id, a job_id
// when new work was enqueued, and a human-readable disposition.
type SubmitResult struct {
	DocID   string `json:"doc_id"`
	JobID   string `json:"job_id,omitempty"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// IngestService deduplicates incoming URLs against the registry and hands
// new work to the queue.
type IngestService struct {
	registry DocumentRegistry
	jobs     JobEnqueuer
}

func NewIngestService(reg DocumentRegistry, jobs JobEnqueuer) *IngestService {
	return &IngestService{registry: reg, jobs: jobs}
}

// Submit registers a URL for ingestion. A URL whose document is already
// completed or in flight is a no-op response, not an error; pending and
// failed documents get a fresh job under the same doc_id.
func (s *IngestService) Submit(ctx context.Context, rawURL, source string) (*SubmitResult, error) {
	if err := validateURL(rawURL); err != nil {
		return nil, err
	}
	if source == "" {
		source = "web"
	}

	doc, err := s.registry.FindByURL(ctx, rawURL)
	if err != nil && !errors.Is(err, registry.ErrNotFound) {
		return nil, upstream("registry lookup", err)
	}
	if doc == nil {
		doc, err = s.registry.Create(ctx, rawURL, source)
		if err != nil {
			return nil, upstream("registry create", err)
		}
	}

	switch doc.Status {
	case models.StatusCompleted:
		return &SubmitResult{
			DocID:   doc.DocID,
			Message: "URL already ingested",
			Status:  doc.Status,
		}, nil
	case models.StatusProcessing:
		return &SubmitResult{
			DocID:   doc.DocID,
			Message: "URL ingestion already in progress",
			Status:  doc.Status,
		}, nil
	case models.StatusQueued:
		return &SubmitResult{
			DocID:   doc.DocID,
			Message: "URL ingestion already queued",
			Status:  doc.Status,
		}, nil
	}

	// pending or failed: enqueue a fresh job under the existing doc_id
	job := queue.JobPayload{
		JobID: uuid.New().String(),
		DocID: doc.DocID,
		URL:   doc.URL,
	}

	if err := s.registry.CreateJob(ctx, &models.IngestionJob{
		JobID: job.JobID,
		DocID: job.DocID,
		URL:   job.URL,
	}); err != nil {
		return nil, upstream("registry job create", err)
	}

	if err := s.jobs.Enqueue(ctx, job); err != nil {
		return nil, upstream("queue enqueue", err)
	}

	// A failed transition means a racing submission already queued this
	// document. The extra job is a harmless duplicate: the worker's
	// compare-and-set detects and skips it.
	moved, err := s.registry.CompareAndSetStatus(ctx, doc.DocID,
		[]string{models.StatusPending, models.StatusFailed}, models.StatusQueued)
	if err != nil {
		return nil, upstream("registry status update", err)
	}
	if !moved {
		slog.Debug("lost queued transition race, duplicate enqueue tolerated",
			"doc_id", doc.DocID, "job_id", job.JobID)
	}

	return &SubmitResult{
		DocID:   doc.DocID,
		JobID:   job.JobID,
		Message: "Ingestion job queued",
		Status:  models.StatusQueued,
	}, nil
}

func validateURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ErrInvalidURL
	}
	if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return ErrInvalidURL
	}
	return nil
}
