package docqa

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/askpaper/askpaper/internal/domain"
)

// WorkerConfig contains indexing worker configuration.
type WorkerConfig struct {
	BatchSize      int
	PollInterval   time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	NumWorkers     int
}

// DefaultWorkerConfig returns default worker configuration.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		BatchSize:      10,
		PollInterval:   5 * time.Second,
		MaxAttempts:    3,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     5 * time.Minute,
		NumWorkers:     2,
	}
}

// Worker indexes pending documents: it claims them from the queue,
// splits their content into chunks and stores the chunks for retrieval.
type Worker struct {
	config   WorkerConfig
	repo     Repository
	splitter *Splitter

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewWorker creates a new indexing worker.
func NewWorker(config WorkerConfig, repo Repository, splitter *Splitter) *Worker {
	return &Worker{
		config:   config,
		repo:     repo,
		splitter: splitter,
		stopCh:   make(chan struct{}),
	}
}

// Start launches worker goroutines.
func (w *Worker) Start(ctx context.Context) {
	slog.Info("starting document indexing worker",
		"workers", w.config.NumWorkers,
		"batch_size", w.config.BatchSize,
		"poll_interval", w.config.PollInterval,
	)

	for i := 0; i < w.config.NumWorkers; i++ {
		w.wg.Add(1)
		go w.run(ctx, i)
	}
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() {
	close(w.stopCh)
	w.wg.Wait()
	slog.Info("document indexing worker stopped")
}

func (w *Worker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.processBatch(ctx, workerID)
		}
	}
}

func (w *Worker) processBatch(ctx context.Context, workerID int) {
	docs, err := w.repo.ClaimPendingDocuments(ctx, w.config.BatchSize)
	if err != nil {
		slog.Error("failed to claim pending documents", "worker", workerID, "error", err)
		return
	}

	if len(docs) == 0 {
		return
	}

	slog.Debug("indexing documents", "worker", workerID, "count", len(docs))

	for i := range docs {
		w.indexDocument(ctx, &docs[i])
	}
}

func (w *Worker) indexDocument(ctx context.Context, doc *domain.Document) {
	start := time.Now()

	pieces := w.splitter.Split(doc.Content)
	if len(pieces) == 0 {
		w.handleIndexError(ctx, doc, ErrEmptyDocument)
		return
	}

	chunks := make([]domain.Chunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = domain.Chunk{
			DocumentID: doc.ID,
			Position:   i,
			Content:    piece,
		}
	}

	if err := w.repo.ReplaceChunks(ctx, doc.ID, chunks); err != nil {
		w.handleIndexError(ctx, doc, err)
		return
	}

	if err := w.repo.MarkDocumentIndexed(ctx, doc.ID, len(chunks)); err != nil {
		slog.Error("failed to mark document indexed", "document_id", doc.ID, "error", err)
		return
	}

	recordDocumentIndexed("success", time.Since(start))

	slog.Info("document indexed",
		"document_id", doc.ID,
		"chunks", len(chunks),
		"duration", time.Since(start),
	)
}

func (w *Worker) handleIndexError(ctx context.Context, doc *domain.Document, err error) {
	attempt := doc.Attempts + 1

	slog.Warn("indexing failed",
		"document_id", doc.ID,
		"attempt", attempt,
		"max_attempts", w.config.MaxAttempts,
		"error", err,
	)

	var nextAttemptAt *time.Time
	if attempt < w.config.MaxAttempts {
		due := time.Now().Add(w.backoff(attempt))
		nextAttemptAt = &due
	}

	if markErr := w.repo.MarkDocumentFailed(ctx, doc.ID, err.Error(), nextAttemptAt); markErr != nil {
		slog.Error("failed to mark document failed", "document_id", doc.ID, "error", markErr)
	}

	recordDocumentIndexed("failed", 0)
}

// backoff returns the exponential retry delay for the given attempt,
// capped at MaxBackoff.
func (w *Worker) backoff(attempt int) time.Duration {
	delay := w.config.InitialBackoff
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= w.config.MaxBackoff {
			return w.config.MaxBackoff
		}
	}
	if delay > w.config.MaxBackoff {
		delay = w.config.MaxBackoff
	}
	return delay
}
