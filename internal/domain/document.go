package domain

import "time"

// DocumentStatus tracks a document through the indexing pipeline.
type DocumentStatus string

const (
	DocumentStatusPending  DocumentStatus = "pending"
	DocumentStatusIndexing DocumentStatus = "indexing"
	DocumentStatusIndexed  DocumentStatus = "indexed"
	DocumentStatusFailed   DocumentStatus = "failed"
)

// Document is an uploaded file kept in the library for repeated querying.
// Content is stored raw; the indexing worker splits it into chunks.
type Document struct {
	ID         string
	OwnerID    string
	Filename   string
	Content    string
	Status     DocumentStatus
	Attempts   int
	LastError  string
	ChunkCount int
	CreatedAt  time.Time
	UpdatedAt  time.Time
	IndexedAt  *time.Time
}

// Chunk is a retrievable fragment of an indexed document.
type Chunk struct {
	ID         string
	DocumentID string
	Position   int
	Content    string
}
