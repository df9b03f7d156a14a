package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"

	"web-rag-engine/models"
)

// StuckDocumentRegistry is the registry surface the reconciler needs.
type StuckDocumentRegistry interface {
	FindStuckProcessing(ctx context.Context, ttl time.Duration) ([]models.Document, error)
	CompareAndSetStatus(ctx context.Context, docID string, expected []string, newStatus string) (bool, error)
	SetDocumentError(ctx context.Context, docID, cause string) error
}

// Reconciler sweeps documents abandoned in processing by a crashed worker.
// A worker crash after dequeue loses the job payload, so the document would
// otherwise sit in processing forever. Swept documents go to failed and
// become retryable through a fresh submission.
type Reconciler struct {
	registry  StuckDocumentRegistry
	ttl       time.Duration
	scheduler *gocron.Scheduler
}

func NewReconciler(reg StuckDocumentRegistry, ttl, interval time.Duration) (*Reconciler, error) {
	r := &Reconciler{
		registry:  reg,
		ttl:       ttl,
		scheduler: gocron.NewScheduler(time.UTC),
	}
	if _, err := r.scheduler.Every(interval).Tag("stuck-processing-sweep").Do(r.Sweep); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Reconciler) Start() {
	r.scheduler.StartAsync()
}

func (r *Reconciler) Stop() {
	r.scheduler.Stop()
}

// Sweep fails every document stuck in processing beyond the TTL. The
// compare-and-set guards against racing a worker that finished in the
// meantime: a lost race is simply skipped.
func (r *Reconciler) Sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	stuck, err := r.registry.FindStuckProcessing(ctx, r.ttl)
	if err != nil {
		slog.Error("stuck-processing scan failed", "error", err)
		return
	}

	for _, doc := range stuck {
		moved, err := r.registry.CompareAndSetStatus(ctx, doc.DocID,
			[]string{models.StatusProcessing}, models.StatusFailed)
		if err != nil {
			slog.Error("stuck document transition failed", "doc_id", doc.DocID, "error", err)
			continue
		}
		if !moved {
			continue
		}
		if err := r.registry.SetDocumentError(ctx, doc.DocID, "processing timed out, worker presumed crashed"); err != nil {
			slog.Warn("failed to record sweep cause", "doc_id", doc.DocID, "error", err)
		}
		slog.Warn("swept stuck document to failed", "doc_id", doc.DocID, "url", doc.URL,
			"stuck_since", doc.UpdatedAt)
	}
}
