package docqa

import (
	"context"
	"time"

	"github.com/askpaper/askpaper/internal/domain"
)

// Repository defines the interface for document, chunk and conversation
// storage.
type Repository interface {
	CreateDocument(ctx context.Context, doc *domain.Document) error
	GetDocument(ctx context.Context, id string) (*domain.Document, error)
	ListDocumentsByOwner(ctx context.Context, ownerID string) ([]domain.Document, error)
	DeleteDocument(ctx context.Context, id string) error

	// ClaimPendingDocuments atomically moves up to limit due pending
	// documents to the indexing state and returns them. Safe for
	// concurrent workers.
	ClaimPendingDocuments(ctx context.Context, limit int) ([]domain.Document, error)
	MarkDocumentIndexed(ctx context.Context, id string, chunkCount int) error
	// MarkDocumentFailed records an indexing failure. A nil
	// nextAttemptAt marks the document permanently failed; otherwise it
	// goes back to pending, due at the given time.
	MarkDocumentFailed(ctx context.Context, id string, lastError string, nextAttemptAt *time.Time) error
	GetQueueStats(ctx context.Context) (map[domain.DocumentStatus]int, error)

	ReplaceChunks(ctx context.Context, documentID string, chunks []domain.Chunk) error
	// SearchChunks returns the chunks of a document best matching the
	// query, most relevant first.
	SearchChunks(ctx context.Context, documentID, query string, limit int) ([]domain.Chunk, error)
	ListChunks(ctx context.Context, documentID string, limit int) ([]domain.Chunk, error)

	CreateConversation(ctx context.Context, conv *domain.Conversation) error
	GetConversation(ctx context.Context, id string) (*domain.Conversation, error)
	AppendMessage(ctx context.Context, msg *domain.Message) error
	// ListMessages returns the most recent limit messages of a
	// conversation in chronological order.
	ListMessages(ctx context.Context, conversationID string, limit int) ([]domain.Message, error)
}
