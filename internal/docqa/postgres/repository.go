// Package postgres provides the PostgreSQL implementation of the docqa
// repository. Chunk retrieval uses Postgres full-text search.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/askpaper/askpaper/internal/docqa"
	"github.com/askpaper/askpaper/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements the docqa.Repository interface using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// CreateDocument inserts a new document in the pending state.
func (r *Repository) CreateDocument(ctx context.Context, doc *domain.Document) error {
	query := `
		INSERT INTO documents (owner_id, filename, content, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		doc.OwnerID,
		doc.Filename,
		doc.Content,
		doc.Status,
	).Scan(&doc.ID, &doc.CreatedAt, &doc.UpdatedAt)

	if err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

const documentColumns = `id, owner_id, filename, content, status, attempts, last_error, chunk_count, created_at, updated_at, indexed_at`

func scanDocument(row pgx.Row) (*domain.Document, error) {
	var doc domain.Document
	err := row.Scan(
		&doc.ID,
		&doc.OwnerID,
		&doc.Filename,
		&doc.Content,
		&doc.Status,
		&doc.Attempts,
		&doc.LastError,
		&doc.ChunkCount,
		&doc.CreatedAt,
		&doc.UpdatedAt,
		&doc.IndexedAt,
	)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// GetDocument retrieves a document by id.
func (r *Repository) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	query := fmt.Sprintf(`SELECT %s FROM documents WHERE id = $1`, documentColumns)

	doc, err := scanDocument(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, docqa.ErrDocumentNotFound
		}
		return nil, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

// ListDocumentsByOwner retrieves all documents owned by a user.
func (r *Repository) ListDocumentsByOwner(ctx context.Context, ownerID string) ([]domain.Document, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM documents
		WHERE owner_id = $1
		ORDER BY created_at DESC, id
	`, documentColumns)

	rows, err := r.db.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []domain.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}

// DeleteDocument removes a document. Chunks cascade at the schema level.
func (r *Repository) DeleteDocument(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return docqa.ErrDocumentNotFound
	}
	return nil
}

// staleClaimAge is how long a document may sit in the indexing state
// before it is considered abandoned by a crashed worker and reclaimed.
const staleClaimAge = 10 * time.Minute

// ClaimPendingDocuments moves up to limit due pending documents to the
// indexing state and returns them. SKIP LOCKED keeps concurrent workers
// from claiming the same rows. Documents stuck in indexing longer than
// staleClaimAge are claimed again.
func (r *Repository) ClaimPendingDocuments(ctx context.Context, limit int) ([]domain.Document, error) {
	query := fmt.Sprintf(`
		UPDATE documents
		SET status = 'indexing', updated_at = now()
		WHERE id IN (
			SELECT id FROM documents
			WHERE (status = 'pending' AND next_attempt_at <= now())
			   OR (status = 'indexing' AND updated_at < now() - make_interval(secs => $2))
			ORDER BY created_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING %s
	`, documentColumns)

	rows, err := r.db.Query(ctx, query, limit, staleClaimAge.Seconds())
	if err != nil {
		return nil, fmt.Errorf("claim pending documents: %w", err)
	}
	defer rows.Close()

	var docs []domain.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan claimed document: %w", err)
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate claimed documents: %w", err)
	}
	return docs, nil
}

// MarkDocumentIndexed records a successful indexing run.
func (r *Repository) MarkDocumentIndexed(ctx context.Context, id string, chunkCount int) error {
	query := `
		UPDATE documents
		SET status = 'indexed', chunk_count = $2, last_error = '',
		    indexed_at = now(), updated_at = now()
		WHERE id = $1
	`
	if _, err := r.db.Exec(ctx, query, id, chunkCount); err != nil {
		return fmt.Errorf("mark document indexed: %w", err)
	}
	return nil
}

// MarkDocumentFailed records an indexing failure. With a non-nil
// nextAttemptAt the document returns to the pending state for a retry.
func (r *Repository) MarkDocumentFailed(ctx context.Context, id string, lastError string, nextAttemptAt *time.Time) error {
	var err error
	if nextAttemptAt != nil {
		query := `
			UPDATE documents
			SET status = 'pending', attempts = attempts + 1,
			    last_error = $2, next_attempt_at = $3, updated_at = now()
			WHERE id = $1
		`
		_, err = r.db.Exec(ctx, query, id, lastError, *nextAttemptAt)
	} else {
		query := `
			UPDATE documents
			SET status = 'failed', attempts = attempts + 1,
			    last_error = $2, updated_at = now()
			WHERE id = $1
		`
		_, err = r.db.Exec(ctx, query, id, lastError)
	}
	if err != nil {
		return fmt.Errorf("mark document failed: %w", err)
	}
	return nil
}

// GetQueueStats returns document counts by status.
func (r *Repository) GetQueueStats(ctx context.Context) (map[domain.DocumentStatus]int, error) {
	rows, err := r.db.Query(ctx, `SELECT status, count(*) FROM documents GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("get queue stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[domain.DocumentStatus]int)
	for rows.Next() {
		var status domain.DocumentStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan queue stats: %w", err)
		}
		stats[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate queue stats: %w", err)
	}
	return stats, nil
}

// ReplaceChunks atomically replaces all chunks of a document.
func (r *Repository) ReplaceChunks(ctx context.Context, documentID string, chunks []domain.Chunk) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("delete old chunks: %w", err)
	}

	for i := range chunks {
		err := tx.QueryRow(ctx, `
			INSERT INTO document_chunks (document_id, position, content)
			VALUES ($1, $2, $3)
			RETURNING id
		`, chunks[i].DocumentID, chunks[i].Position, chunks[i].Content).Scan(&chunks[i].ID)
		if err != nil {
			return fmt.Errorf("insert chunk %d: %w", i, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// SearchChunks returns the chunks of a document best matching the query
// by full-text rank.
func (r *Repository) SearchChunks(ctx context.Context, documentID, query string, limit int) ([]domain.Chunk, error) {
	sql := `
		SELECT id, document_id, position, content
		FROM document_chunks
		WHERE document_id = $1
		  AND content_tsv @@ plainto_tsquery('english', $2)
		ORDER BY ts_rank(content_tsv, plainto_tsquery('english', $2)) DESC, position
		LIMIT $3
	`
	return r.queryChunks(ctx, sql, documentID, query, limit)
}

// ListChunks returns the first chunks of a document in document order.
func (r *Repository) ListChunks(ctx context.Context, documentID string, limit int) ([]domain.Chunk, error) {
	sql := `
		SELECT id, document_id, position, content
		FROM document_chunks
		WHERE document_id = $1
		ORDER BY position
		LIMIT $2
	`
	return r.queryChunks(ctx, sql, documentID, limit)
}

func (r *Repository) queryChunks(ctx context.Context, sql string, args ...any) ([]domain.Chunk, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []domain.Chunk
	for rows.Next() {
		var chunk domain.Chunk
		if err := rows.Scan(&chunk.ID, &chunk.DocumentID, &chunk.Position, &chunk.Content); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		chunks = append(chunks, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return chunks, nil
}

// CreateConversation inserts a new conversation.
func (r *Repository) CreateConversation(ctx context.Context, conv *domain.Conversation) error {
	query := `
		INSERT INTO conversations (owner_id)
		VALUES ($1)
		RETURNING id, created_at, updated_at
	`
	if err := r.db.QueryRow(ctx, query, conv.OwnerID).Scan(&conv.ID, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
		return fmt.Errorf("create conversation: %w", err)
	}
	return nil
}

// GetConversation retrieves a conversation by id.
func (r *Repository) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	query := `
		SELECT id, owner_id, created_at, updated_at
		FROM conversations
		WHERE id = $1
	`
	var conv domain.Conversation
	err := r.db.QueryRow(ctx, query, id).Scan(&conv.ID, &conv.OwnerID, &conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, docqa.ErrConversationNotFound
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return &conv, nil
}

// AppendMessage adds a message to a conversation.
func (r *Repository) AppendMessage(ctx context.Context, msg *domain.Message) error {
	query := `
		INSERT INTO conversation_messages (conversation_id, role, content)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`
	err := r.db.QueryRow(ctx, query,
		msg.ConversationID,
		msg.Role,
		msg.Content,
	).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}

	if _, err := r.db.Exec(ctx, `UPDATE conversations SET updated_at = now() WHERE id = $1`, msg.ConversationID); err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	return nil
}

// ListMessages returns the most recent limit messages of a conversation
// in chronological order.
func (r *Repository) ListMessages(ctx context.Context, conversationID string, limit int) ([]domain.Message, error) {
	query := `
		SELECT id, conversation_id, role, content, created_at
		FROM (
			SELECT id, conversation_id, role, content, created_at
			FROM conversation_messages
			WHERE conversation_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		) recent
		ORDER BY created_at, id
	`
	rows, err := r.db.Query(ctx, query, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var msg domain.Message
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}
