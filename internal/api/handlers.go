package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"docqa/internal/apperr"
	"docqa/internal/extract"
	"docqa/internal/middleware"
	"docqa/internal/models"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// UserHeader identifies the caller. There is no authentication; a missing
// header means "anonymous".
const UserHeader = "X-User-ID"

const anonymousUser = "anonymous"

const (
	// maxDocumentBody leaves room for JSON escaping around the largest content.
	maxDocumentBody = 2*extract.MaxFileSize + 1<<20
	maxQuestionBody = 1 << 20
)

// Handler handles HTTP requests
type Handler struct {
	documents DocumentService
	qa        QAService
	logger    *zap.Logger

	// statusPoll is how often the status stream polls for changes.
	statusPoll time.Duration
}

func NewHandler(documents DocumentService, qa QAService, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		documents:  documents,
		qa:         qa,
		logger:     logger.Named("api"),
		statusPoll: time.Second,
	}
}

// Document handlers

func (h *Handler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	var req models.DocumentCreate
	if err := decodeJSON(w, r, maxDocumentBody, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	doc, err := h.documents.Create(r.Context(), userID(r), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, doc)
}

func (h *Handler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	// Leave room for the multipart envelope around the file.
	r.Body = http.MaxBytesReader(w, r.Body, extract.MaxFileSize+1<<20)
	if err := r.ParseMultipartForm(extract.MaxFileSize); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.writeError(w, r, apperr.Validation("file exceeds %d bytes", extract.MaxFileSize))
			return
		}
		h.writeError(w, r, apperr.Validation("invalid multipart form: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, r, apperr.Validation("missing file field: %v", err))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.writeError(w, r, apperr.Validation("failed to read upload: %v", err))
		return
	}

	doc, err := h.documents.Upload(r.Context(), models.Upload{
		Title:    r.FormValue("title"),
		Filename: header.Filename,
		FileType: header.Header.Get("Content-Type"),
		Data:     data,
		OwnerID:  userID(r),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, doc)
}

func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)
	q := r.URL.Query()

	var ascending bool
	switch order := strings.ToLower(q.Get("order")); order {
	case "", "desc":
	case "asc":
		ascending = true
	default:
		h.writeError(w, r, apperr.Validation("unknown sort order %q", order))
		return
	}

	docs, pagination, err := h.documents.List(r.Context(), models.DocumentQuery{
		OwnerID:   q.Get("owner"),
		Status:    models.Status(q.Get("status")),
		Search:    q.Get("search"),
		Sort:      models.DocumentSort(q.Get("sort")),
		Ascending: ascending,
		Page:      page,
		Limit:     limit,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"documents":  docs,
		"pagination": pagination,
	})
}

func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := h.documents.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, doc)
}

func (h *Handler) UpdateDocument(w http.ResponseWriter, r *http.Request) {
	var update models.DocumentUpdate
	if err := decodeJSON(w, r, maxDocumentBody, &update); err != nil {
		h.writeError(w, r, err)
		return
	}

	doc, err := h.documents.Update(r.Context(), mux.Vars(r)["id"], update)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, doc)
}

func (h *Handler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := h.documents.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Ingestion handlers

func (h *Handler) IngestDocument(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.documents.Ingest(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"document_id": id,
		"message":     "ingestion queued",
	})
}

func (h *Handler) GetIngestionStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.documents.IngestionStatus(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, status)
}

func (h *Handler) ListIngestionJobs(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	jobs, err := h.documents.ListJobs(r.Context(), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

// Q&A handlers

type askRequest struct {
	Question    string   `json:"question"`
	DocumentIDs []string `json:"document_ids"`
}

func (h *Handler) AskQuestion(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := decodeJSON(w, r, maxQuestionBody, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	session, err := h.qa.Ask(r.Context(), userID(r), req.Question, req.DocumentIDs)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

func (h *Handler) QAHistory(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)

	sessions, pagination, err := h.qa.History(r.Context(), userID(r), page, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sessions":   sessions,
		"pagination": pagination,
	})
}

func (h *Handler) GetQASession(w http.ResponseWriter, r *http.Request) {
	session, err := h.qa.Session(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.documents.Stats(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeError maps err to a status code. Internal errors are logged and not
// shown to the caller.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		middleware.AddSpanError(r.Context(), err)
		h.logger.Error("request failed",
			zap.String("request_id", middleware.GetRequestID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		message = "internal server error"
	}

	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func userID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(UserHeader)); id != "" {
		return id
	}
	return anonymousUser
}

// decodeJSON reads at most limit bytes of JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return apperr.Validation("request body exceeds %d bytes", limit)
		}
		return apperr.Validation("invalid request body: %v", err)
	}
	return nil
}

func pageParams(r *http.Request) (int, int) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	return page, limit
}
