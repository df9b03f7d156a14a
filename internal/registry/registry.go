// Package registry tracks document and job lifecycle records in MongoDB.
// All status mutation goes through CompareAndSetStatus; plain writes are
// reserved for record creation.
package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"web-rag-engine/models"
)

// ErrNotFound is returned when no record matches the given key.
var ErrNotFound = errors.New("registry: record not found")

type DocumentRegistry struct {
	documents *mongo.Collection
	jobs      *mongo.Collection
}

func NewDocumentRegistry(db *mongo.Database) *DocumentRegistry {
	return &DocumentRegistry{
		documents: db.Collection("documents"),
		jobs:      db.Collection("ingestion_jobs"),
	}
}

// FindByURL returns the document owning the given URL, or ErrNotFound.
func (r *DocumentRegistry) FindByURL(ctx context.Context, url string) (*models.Document, error) {
	var doc models.Document
	err := r.documents.FindOne(ctx, bson.M{"url": url}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("registry lookup by url failed: %w", err)
	}
	return &doc, nil
}

// FindByDocID returns the document with the given doc_id, or ErrNotFound.
func (r *DocumentRegistry) FindByDocID(ctx context.Context, docID string) (*models.Document, error) {
	var doc models.Document
	err := r.documents.FindOne(ctx, bson.M{"doc_id": docID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("registry lookup by doc_id failed: %w", err)
	}
	return &doc, nil
}

// Create inserts a new pending document for the URL and returns it.
// The unique index on url turns a concurrent duplicate insert into an error
// instead of a second record.
func (r *DocumentRegistry) Create(ctx context.Context, url, source string) (*models.Document, error) {
	now := time.Now().UTC()
	doc := &models.Document{
		DocID:     uuid.New().String(),
		URL:       url,
		Source:    source,
		Status:    models.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := r.documents.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			// Lost the creation race; hand back the winner's record
			return r.FindByURL(ctx, url)
		}
		return nil, fmt.Errorf("registry create failed: %w", err)
	}
	return doc, nil
}

// CompareAndSetStatus atomically moves the document to newStatus only if its
// current status is in expected. Returns false without writing otherwise.
// Implemented as a filtered UpdateOne, checking the modified count — the
// single concurrency-control primitive of the whole system.
func (r *DocumentRegistry) CompareAndSetStatus(ctx context.Context, docID string, expected []string, newStatus string) (bool, error) {
	update := bson.M{"$set": bson.M{
		"status":     newStatus,
		"updated_at": time.Now().UTC(),
	}}
	res, err := r.documents.UpdateOne(ctx, bson.M{
		"doc_id": docID,
		"status": bson.M{"$in": expected},
	}, update)
	if err != nil {
		return false, fmt.Errorf("registry compare-and-set failed: %w", err)
	}
	return res.ModifiedCount == 1, nil
}

// SetDocumentError records the failure cause on the document without
// touching its status.
func (r *DocumentRegistry) SetDocumentError(ctx context.Context, docID, cause string) error {
	_, err := r.documents.UpdateOne(ctx, bson.M{"doc_id": docID},
		bson.M{"$set": bson.M{"error": cause, "updated_at": time.Now().UTC()}})
	return err
}

// FindStuckProcessing returns documents that have sat in processing longer
// than ttl. Used by the reconciliation sweep.
func (r *DocumentRegistry) FindStuckProcessing(ctx context.Context, ttl time.Duration) ([]models.Document, error) {
	cutoff := time.Now().UTC().Add(-ttl)
	cursor, err := r.documents.Find(ctx, bson.M{
		"status":     models.StatusProcessing,
		"updated_at": bson.M{"$lt": cutoff},
	})
	if err != nil {
		return nil, fmt.Errorf("registry stuck-processing scan failed: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []models.Document
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("registry stuck-processing decode failed: %w", err)
	}
	return docs, nil
}

// CreateJob records a new ingestion job row for bookkeeping. Job rows never
// gate the document state machine.
func (r *DocumentRegistry) CreateJob(ctx context.Context, job *models.IngestionJob) error {
	job.CreatedAt = time.Now().UTC()
	job.UpdatedAt = job.CreatedAt
	if job.Status == "" {
		job.Status = models.StatusQueued
	}
	if _, err := r.jobs.InsertOne(ctx, job); err != nil {
		return fmt.Errorf("registry job create failed: %w", err)
	}
	return nil
}

// MarkJobStatus updates the bookkeeping row for a job.
func (r *DocumentRegistry) MarkJobStatus(ctx context.Context, jobID, status string) error {
	_, err := r.jobs.UpdateOne(ctx, bson.M{"job_id": jobID},
		bson.M{"$set": bson.M{"status": status, "updated_at": time.Now().UTC()}})
	if err != nil {
		return fmt.Errorf("registry job update failed: %w", err)
	}
	return nil
}
