package models

import "time"

// Document represents one logical ingestion target, identified by URL.
// At most one non-terminal document exists per distinct URL.
type Document struct {
	DocID     string    `bson:"doc_id" json:"doc_id"`
	URL       string    `bson:"url" json:"url"`
	Source    string    `bson:"source" json:"source"`
	Status    string    `bson:"status" json:"status"` // pending, queued, processing, completed, failed
	Error     string    `bson:"error,omitempty" json:"error,omitempty"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// IngestionJob is one durable unit of ingestion work. Jobs are immutable
// once enqueued; re-enqueuing the same document creates a new job_id.
type IngestionJob struct {
	JobID     string    `bson:"job_id" json:"job_id"`
	DocID     string    `bson:"doc_id" json:"doc_id"`
	URL       string    `bson:"url" json:"url"`
	Status    string    `bson:"status" json:"status"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// Chunk is one retrievable text unit derived from a document. Chunks are
// written to the vector store once per successful processing pass.
type Chunk struct {
	ChunkID string `json:"chunk_id"`
	DocID   string `json:"doc_id"`
	URL     string `json:"url"`
	Text    string `json:"text"`
	Order   int    `json:"order"`
}

// SearchHit is one scored chunk returned by the vector store,
// descending by score.
type SearchHit struct {
	Score float64
	Chunk Chunk
}

// Document status constants
const (
	StatusPending    = "pending"
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// NonTerminalStatuses are the states in which a document still owns its URL
// for dedup purposes.
var NonTerminalStatuses = []string{StatusPending, StatusQueued, StatusProcessing}
