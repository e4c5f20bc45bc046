// Package docqa provides document question answering: uploaded documents
// are chunked and indexed, questions retrieve the most relevant chunks
// and are answered by an external text generation provider with the
// conversation history in the prompt.
package docqa

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/askpaper/askpaper/internal/domain"
	"github.com/google/uuid"
)

const historyLimit = 20

// Generator produces a completion for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Config contains service tunables.
type Config struct {
	ChunkSize     int
	ChunkOverlap  int
	RetrievalTopK int
}

// Service provides document question-answering business logic.
type Service struct {
	repo      Repository
	generator Generator
	splitter  *Splitter
	topK      int
}

// NewService creates a new docqa service.
func NewService(repo Repository, generator Generator, cfg Config) *Service {
	topK := cfg.RetrievalTopK
	if topK <= 0 {
		topK = 3
	}
	return &Service{
		repo:      repo,
		generator: generator,
		splitter:  NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap),
		topK:      topK,
	}
}

// Splitter exposes the configured splitter for the indexing worker.
func (s *Service) Splitter() *Splitter {
	return s.splitter
}

// UploadDocument stores a document in the caller's library. Indexing
// happens asynchronously; the returned document is in the pending state.
func (s *Service) UploadDocument(ctx context.Context, ownerID, filename string, data []byte) (*domain.Document, error) {
	text, err := ExtractText(filename, data)
	if err != nil {
		return nil, err
	}

	doc := &domain.Document{
		OwnerID:  ownerID,
		Filename: filename,
		Content:  text,
		Status:   domain.DocumentStatusPending,
	}
	if err := s.repo.CreateDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}
	return doc, nil
}

// ListDocuments returns the caller's documents.
func (s *Service) ListDocuments(ctx context.Context, ownerID string) ([]domain.Document, error) {
	return s.repo.ListDocumentsByOwner(ctx, ownerID)
}

// DeleteDocument removes a document owned by the caller. Documents of
// other users are indistinguishable from missing ones.
func (s *Service) DeleteDocument(ctx context.Context, ownerID, id string) error {
	doc, err := s.getOwnedDocument(ctx, ownerID, id)
	if err != nil {
		return err
	}
	return s.repo.DeleteDocument(ctx, doc.ID)
}

// QueryInput describes a question against an optional document.
type QueryInput struct {
	UserID         string
	Message        string
	ConversationID string
	// DocumentID references an indexed library document.
	DocumentID string
	// InlineFilename/InlineData carry a file attached to this query
	// only; it is chunked in memory and discarded after the answer.
	InlineFilename string
	InlineData     []byte
}

// QueryResult is the outcome of a question.
type QueryResult struct {
	Response       string
	ConversationID string
	// Document is the filename that supplied context, if any.
	Document string
}

// Query answers a question, using document context when a document is
// supplied and carrying the conversation history in the prompt. The new
// turn is appended to the conversation afterwards.
func (s *Service) Query(ctx context.Context, input QueryInput) (*QueryResult, error) {
	conv, err := s.resolveConversation(ctx, input.UserID, input.ConversationID)
	if err != nil {
		return nil, err
	}

	contextText, documentName, err := s.gatherContext(ctx, input)
	if err != nil {
		return nil, err
	}

	history, err := s.repo.ListMessages(ctx, conv.ID, historyLimit)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	prompt := buildPrompt(contextText, history, input.Message)

	response, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	if err := s.appendTurn(ctx, conv.ID, input.Message, response); err != nil {
		return nil, err
	}

	return &QueryResult{
		Response:       response,
		ConversationID: conv.ID,
		Document:       documentName,
	}, nil
}

func (s *Service) resolveConversation(ctx context.Context, userID, conversationID string) (*domain.Conversation, error) {
	if conversationID == "" {
		conv := &domain.Conversation{OwnerID: userID}
		if err := s.repo.CreateConversation(ctx, conv); err != nil {
			return nil, fmt.Errorf("create conversation: %w", err)
		}
		return conv, nil
	}

	if uuid.Validate(conversationID) != nil {
		return nil, ErrConversationNotFound
	}

	conv, err := s.repo.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.OwnerID != userID {
		return nil, ErrConversationNotFound
	}
	return conv, nil
}

func (s *Service) gatherContext(ctx context.Context, input QueryInput) (contextText, documentName string, err error) {
	switch {
	case len(input.InlineData) > 0:
		text, err := ExtractText(input.InlineFilename, input.InlineData)
		if err != nil {
			return "", "", err
		}
		chunks := s.splitter.Split(text)
		return joinChunks(rankChunks(chunks, input.Message, s.topK)), input.InlineFilename, nil

	case input.DocumentID != "":
		doc, err := s.getOwnedDocument(ctx, input.UserID, input.DocumentID)
		if err != nil {
			return "", "", err
		}
		if doc.Status != domain.DocumentStatusIndexed {
			return "", "", ErrDocumentNotReady
		}

		chunks, err := s.repo.SearchChunks(ctx, doc.ID, input.Message, s.topK)
		if err != nil {
			return "", "", fmt.Errorf("search chunks: %w", err)
		}
		if len(chunks) == 0 {
			// No lexical overlap with the query: fall back to the
			// opening chunks so the prompt still sees the document.
			chunks, err = s.repo.ListChunks(ctx, doc.ID, s.topK)
			if err != nil {
				return "", "", fmt.Errorf("list chunks: %w", err)
			}
		}

		parts := make([]string, len(chunks))
		for i, chunk := range chunks {
			parts[i] = chunk.Content
		}
		return strings.Join(parts, "\n\n"), doc.Filename, nil
	}

	return "", "", nil
}

func (s *Service) getOwnedDocument(ctx context.Context, ownerID, id string) (*domain.Document, error) {
	if uuid.Validate(id) != nil {
		return nil, ErrDocumentNotFound
	}
	doc, err := s.repo.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.OwnerID != ownerID {
		return nil, ErrDocumentNotFound
	}
	return doc, nil
}

func (s *Service) appendTurn(ctx context.Context, conversationID, question, answer string) error {
	userMsg := &domain.Message{
		ConversationID: conversationID,
		Role:           domain.MessageRoleUser,
		Content:        question,
	}
	if err := s.repo.AppendMessage(ctx, userMsg); err != nil {
		return fmt.Errorf("append user message: %w", err)
	}

	assistantMsg := &domain.Message{
		ConversationID: conversationID,
		Role:           domain.MessageRoleAssistant,
		Content:        answer,
	}
	if err := s.repo.AppendMessage(ctx, assistantMsg); err != nil {
		return fmt.Errorf("append assistant message: %w", err)
	}
	return nil
}

func buildPrompt(contextText string, history []domain.Message, question string) string {
	var b strings.Builder
	b.WriteString("You are a helpful assistant.\n")

	if contextText != "" {
		b.WriteString("Document content:\n---\n")
		b.WriteString(contextText)
		b.WriteString("\n---\n")
	}

	if len(history) > 0 {
		b.WriteString("Below is the conversation history so far:\n")
		for _, msg := range history {
			switch msg.Role {
			case domain.MessageRoleUser:
				b.WriteString("Human: ")
			case domain.MessageRoleAssistant:
				b.WriteString("Assistant: ")
			}
			b.WriteString(msg.Content)
			b.WriteString("\n")
		}
	}

	b.WriteString("User's question: ")
	b.WriteString(question)
	b.WriteString("\nAnswer as best you can, referencing both the document content and conversation history.")
	return b.String()
}

// rankChunks orders chunks by lexical overlap with the query and keeps
// the top k. Used for inline files that never reach the index.
func rankChunks(chunks []string, query string, k int) []string {
	queryTerms := terms(query)

	type scored struct {
		index int
		score int
	}
	ranked := make([]scored, len(chunks))
	for i, chunk := range chunks {
		ranked[i] = scored{index: i, score: overlapScore(terms(chunk), queryTerms)}
	}
	sort.SliceStable(ranked, func(a, b int) bool {
		return ranked[a].score > ranked[b].score
	})

	if k > len(ranked) {
		k = len(ranked)
	}
	top := make([]string, k)
	for i := 0; i < k; i++ {
		top[i] = chunks[ranked[i].index]
	}
	return top
}

func joinChunks(chunks []string) string {
	return strings.Join(chunks, "\n\n")
}

func terms(text string) map[string]int {
	counts := make(map[string]int)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,;:!?\"'()[]{}")
		if len(word) > 2 {
			counts[word]++
		}
	}
	return counts
}

func overlapScore(chunkTerms, queryTerms map[string]int) int {
	score := 0
	for term := range queryTerms {
		score += chunkTerms[term]
	}
	return score
}
