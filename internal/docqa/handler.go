package docqa

import (
	"io"
	"net/http"

	"github.com/askpaper/askpaper/internal/domain"
	"github.com/askpaper/askpaper/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
)

// Handler handles HTTP requests for the docqa module. All routes
// require an authenticated identity in the request context.
type Handler struct {
	service        *Service
	maxUploadBytes int64
}

// NewHandler creates a new docqa handler.
func NewHandler(service *Service, maxUploadBytes int64) *Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 10 << 20
	}
	return &Handler{
		service:        service,
		maxUploadBytes: maxUploadBytes,
	}
}

// RegisterRoutes registers docqa routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/rag", func(r chi.Router) {
		r.Post("/query", h.Query)
		r.Route("/documents", func(r chi.Router) {
			r.Get("/", h.ListDocuments)
			r.Post("/", h.UploadDocument)
			r.Delete("/{id}", h.DeleteDocument)
		})
	})
}

// QueryResponse is the answer to a question.
type QueryResponse struct {
	Response       string `json:"response"`
	User           string `json:"user"`
	ConversationID string `json:"conversation_id"`
	Document       string `json:"document,omitempty"`
}

// Query handles POST /rag/query. The body is a multipart form with a
// required "message" field, an optional attached "file" and optional
// "conversation_id" and "document_id" fields.
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	user := httputil.GetUser(r.Context())

	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	message := r.FormValue("message")
	if message == "" {
		httputil.Error(w, http.StatusBadRequest, "message is required")
		return
	}

	input := QueryInput{
		UserID:         user.ID,
		Message:        message,
		ConversationID: r.FormValue("conversation_id"),
		DocumentID:     r.FormValue("document_id"),
	}

	if file, header, err := r.FormFile("file"); err == nil {
		defer func() { _ = file.Close() }()
		data, err := io.ReadAll(io.LimitReader(file, h.maxUploadBytes))
		if err != nil {
			httputil.Error(w, http.StatusBadRequest, "failed to read file")
			return
		}
		input.InlineFilename = header.Filename
		input.InlineData = data
	}

	result, err := h.service.Query(r.Context(), input)
	if err != nil {
		RecordQuery("error")
		h.handleServiceError(r, w, err)
		return
	}

	RecordQuery("success")
	httputil.JSON(w, http.StatusOK, QueryResponse{
		Response:       result.Response,
		User:           user.FullName,
		ConversationID: result.ConversationID,
		Document:       result.Document,
	})
}

// DocumentResponse is the sanitized document representation. Raw content
// is never returned.
type DocumentResponse struct {
	ID         string `json:"id"`
	Filename   string `json:"filename"`
	Status     string `json:"status"`
	ChunkCount int    `json:"chunk_count"`
	LastError  string `json:"last_error,omitempty"`
	CreatedAt  int64  `json:"created_at"`
}

func toDocumentResponse(doc *domain.Document) DocumentResponse {
	return DocumentResponse{
		ID:         doc.ID,
		Filename:   doc.Filename,
		Status:     string(doc.Status),
		ChunkCount: doc.ChunkCount,
		LastError:  doc.LastError,
		CreatedAt:  doc.CreatedAt.Unix(),
	}
}

// UploadDocument handles POST /rag/documents. The body is a multipart
// form with a required "file" field.
func (h *Handler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	user := httputil.GetUser(r.Context())

	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "file is required")
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(io.LimitReader(file, h.maxUploadBytes))
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "failed to read file")
		return
	}

	doc, err := h.service.UploadDocument(r.Context(), user.ID, header.Filename, data)
	if err != nil {
		h.handleServiceError(r, w, err)
		return
	}

	httputil.Success(w, http.StatusCreated, toDocumentResponse(doc))
}

// ListDocuments handles GET /rag/documents.
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	user := httputil.GetUser(r.Context())

	docs, err := h.service.ListDocuments(r.Context(), user.ID)
	if err != nil {
		h.handleServiceError(r, w, err)
		return
	}

	responses := make([]DocumentResponse, 0, len(docs))
	for i := range docs {
		responses = append(responses, toDocumentResponse(&docs[i]))
	}
	httputil.Success(w, http.StatusOK, responses)
}

// DeleteDocument handles DELETE /rag/documents/{id}.
func (h *Handler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	user := httputil.GetUser(r.Context())

	if err := h.service.DeleteDocument(r.Context(), user.ID, chi.URLParam(r, "id")); err != nil {
		h.handleServiceError(r, w, err)
		return
	}
	httputil.Success(w, http.StatusOK, map[string]string{"message": "document deleted successfully"})
}

func (h *Handler) handleServiceError(r *http.Request, w http.ResponseWriter, err error) {
	httputil.HandleError(r.Context(), w, err, []httputil.ErrorMapping{
		{Error: ErrDocumentNotFound, Status: http.StatusNotFound},
		{Error: ErrConversationNotFound, Status: http.StatusNotFound},
		{Error: ErrDocumentNotReady, Status: http.StatusConflict},
		{Error: ErrUnsupportedFormat, Status: http.StatusBadRequest},
		{Error: ErrEmptyDocument, Status: http.StatusBadRequest},
	})
}
