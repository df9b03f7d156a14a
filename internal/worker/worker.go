// Package worker runs the ingestion consumer loop: claim a job, drive
// fetch -> extract -> chunk -> embed -> upsert, and advance the document
// state machine. Any number of workers may share one queue; the registry's
// compare-and-set is the only coordination between them.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"web-rag-engine/internal/queue"
	"web-rag-engine/models"
)

// Registry is the document/job registry surface the worker needs.
type Registry interface {
	FindByDocID(ctx context.Context, docID string) (*models.Document, error)
	CompareAndSetStatus(ctx context.Context, docID string, expected []string, newStatus string) (bool, error)
	SetDocumentError(ctx context.Context, docID, cause string) error
	MarkJobStatus(ctx context.Context, jobID, status string) error
}

// JobSource hands out queued ingestion jobs; nil job means empty queue.
type JobSource interface {
	Dequeue(ctx context.Context) (*queue.JobPayload, error)
}

// Fetcher retrieves raw page content for a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Chunker splits extracted text into retrieval units.
type Chunker interface {
	Chunk(text string) []string
}

// Embedder turns chunk texts into vectors, index-aligned with the input.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorStore persists chunk vectors and provisions the collection.
type VectorStore interface {
	EnsureCollection(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, chunks []models.Chunk, vectors [][]float32) error
}

// ExtractFunc strips markup and boilerplate from fetched content.
type ExtractFunc func(html string) (string, error)

type Options struct {
	Registry Registry
	Jobs     JobSource
	Fetcher  Fetcher
	Extract  ExtractFunc
	Chunker  Chunker
	Embedder Embedder
	Store    VectorStore

	VectorDimensions int
	PollInterval     time.Duration // idle wait when the queue is empty
	FetchTimeout     time.Duration
	UpstreamTimeout  time.Duration // per embed/upsert call
}

type Worker struct {
	opts Options
}

func New(opts Options) *Worker {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 15 * time.Second
	}
	if opts.UpstreamTimeout <= 0 {
		opts.UpstreamTimeout = 60 * time.Second
	}
	return &Worker{opts: opts}
}

// Run provisions the vector collection, then consumes jobs until the context
// is cancelled. A failing job never stops the loop; dequeue errors back off
// by one poll interval.
func (w *Worker) Run(ctx context.Context) error {
	ensureCtx, cancel := context.WithTimeout(ctx, w.opts.UpstreamTimeout)
	err := w.opts.Store.EnsureCollection(ensureCtx, w.opts.VectorDimensions)
	cancel()
	if err != nil {
		return fmt.Errorf("worker: provision vector collection: %w", err)
	}

	slog.Info("ingestion worker started", "poll_interval", w.opts.PollInterval)

	for {
		job, err := w.opts.Jobs.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Error("dequeue failed", "error", err)
			if !w.idle(ctx) {
				return ctx.Err()
			}
			continue
		}
		if job == nil {
			if !w.idle(ctx) {
				return ctx.Err()
			}
			continue
		}
		w.processJob(ctx, job)
	}
}

// idle waits one poll interval; false means the context was cancelled.
func (w *Worker) idle(ctx context.Context) bool {
	timer := time.NewTimer(w.opts.PollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// processJob drives one job through the pipeline and lands the document in
// completed or failed. Errors are terminal for the job, never for the loop.
func (w *Worker) processJob(ctx context.Context, job *queue.JobPayload) {
	log := slog.With("job_id", job.JobID, "doc_id", job.DocID, "url", job.URL)

	if _, err := w.opts.Registry.FindByDocID(ctx, job.DocID); err != nil {
		log.Error("document lookup failed, dropping job", "error", err)
		return
	}

	claimed, err := w.opts.Registry.CompareAndSetStatus(ctx, job.DocID,
		[]string{models.StatusPending, models.StatusQueued, models.StatusFailed}, models.StatusProcessing)
	if err != nil {
		log.Error("claim transition failed", "error", err)
		return
	}
	if !claimed {
		// Duplicate delivery: the document is already processing or
		// completed under another job. Detected, skipped, not an error.
		log.Debug("skipping duplicate job delivery")
		return
	}

	log.Info("processing job")
	start := time.Now()

	chunkCount, err := w.runPipeline(ctx, job)
	if err != nil {
		w.failJob(ctx, job, err)
		return
	}

	completed, err := w.opts.Registry.CompareAndSetStatus(ctx, job.DocID,
		[]string{models.StatusProcessing}, models.StatusCompleted)
	if err != nil || !completed {
		log.Error("completion transition failed", "error", err, "moved", completed)
		return
	}
	if err := w.opts.Registry.MarkJobStatus(ctx, job.JobID, models.StatusCompleted); err != nil {
		log.Warn("job bookkeeping update failed", "error", err)
	}

	log.Info("job completed", "chunks", chunkCount, "elapsed", time.Since(start))
}

// runPipeline executes fetch -> extract -> chunk -> embed -> upsert and
// returns the number of chunks written.
func (w *Worker) runPipeline(ctx context.Context, job *queue.JobPayload) (int, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, w.opts.FetchTimeout)
	defer cancel()
	raw, err := w.opts.Fetcher.Fetch(fetchCtx, job.URL)
	if err != nil {
		return 0, err
	}

	text, err := w.opts.Extract(raw)
	if err != nil {
		return 0, err
	}

	texts := w.opts.Chunker.Chunk(text)
	if len(texts) == 0 {
		return 0, errors.New("no chunks extracted from URL")
	}

	chunks := make([]models.Chunk, len(texts))
	for i, t := range texts {
		chunks[i] = models.Chunk{
			ChunkID: chunkID(job.DocID, i),
			DocID:   job.DocID,
			URL:     job.URL,
			Text:    t,
			Order:   i,
		}
	}

	embedCtx, cancel := context.WithTimeout(ctx, w.opts.UpstreamTimeout)
	defer cancel()
	vectors, err := w.opts.Embedder.EmbedTexts(embedCtx, texts)
	if err != nil {
		return 0, err
	}

	upsertCtx, cancel := context.WithTimeout(ctx, w.opts.UpstreamTimeout)
	defer cancel()
	if err := w.opts.Store.Upsert(upsertCtx, chunks, vectors); err != nil {
		return 0, err
	}

	return len(chunks), nil
}

// failJob lands the document in failed with the cause recorded. No retry is
// scheduled here; retries happen only via a fresh submission that observes
// the failed status.
func (w *Worker) failJob(ctx context.Context, job *queue.JobPayload, cause error) {
	log := slog.With("job_id", job.JobID, "doc_id", job.DocID, "url", job.URL)
	log.Error("job failed", "error", cause)

	moved, err := w.opts.Registry.CompareAndSetStatus(ctx, job.DocID,
		[]string{models.StatusProcessing}, models.StatusFailed)
	if err != nil {
		log.Error("failure transition errored", "error", err)
	} else if !moved {
		log.Warn("failure transition lost, document no longer processing")
	}
	if err := w.opts.Registry.SetDocumentError(ctx, job.DocID, cause.Error()); err != nil {
		log.Warn("failed to record failure cause", "error", err)
	}
	if err := w.opts.Registry.MarkJobStatus(ctx, job.JobID, models.StatusFailed); err != nil {
		log.Warn("job bookkeeping update failed", "error", err)
	}
}

// chunkID derives a deterministic ID from the document and chunk position,
// so re-processing a document overwrites its previous chunk set in place
// instead of orphaning it.
func chunkID(docID string, index int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("%s/%d", docID, index))).String()
}
