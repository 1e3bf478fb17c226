package api

import (
	"net/http"

	"docqa/internal/middleware"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func SetupRoutes(h *Handler, logger *zap.Logger) *mux.Router {
	r := mux.NewRouter()

	// Middleware runs in order: tracing, recovery, metrics, CORS.
	r.Use(middleware.TracingMiddleware(logger))
	r.Use(middleware.ErrorRecoveryMiddleware(logger))
	r.Use(middleware.MetricsMiddleware(middleware.NewHTTPMetrics()))
	r.Use(middleware.CORSMiddleware)

	api := r.PathPrefix("/api").Subrouter()

	// Document endpoints
	api.HandleFunc("/documents", h.CreateDocument).Methods(http.MethodPost)
	api.HandleFunc("/documents/upload", h.UploadDocument).Methods(http.MethodPost)
	api.HandleFunc("/documents", h.ListDocuments).Methods(http.MethodGet)
	api.HandleFunc("/documents/{id}", h.GetDocument).Methods(http.MethodGet)
	api.HandleFunc("/documents/{id}", h.UpdateDocument).Methods(http.MethodPut)
	api.HandleFunc("/documents/{id}", h.DeleteDocument).Methods(http.MethodDelete)

	// Ingestion endpoints
	api.HandleFunc("/documents/{id}/ingest", h.IngestDocument).Methods(http.MethodPost)
	api.HandleFunc("/documents/{id}/status", h.GetIngestionStatus).Methods(http.MethodGet)
	api.HandleFunc("/ingestion/jobs", h.ListIngestionJobs).Methods(http.MethodGet)

	// Q&A endpoints
	api.HandleFunc("/qa/ask", h.AskQuestion).Methods(http.MethodPost)
	api.HandleFunc("/qa/history", h.QAHistory).Methods(http.MethodGet)
	api.HandleFunc("/qa/sessions/{id}", h.GetQASession).Methods(http.MethodGet)

	api.HandleFunc("/stats", h.GetStats).Methods(http.MethodGet)
	api.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	// WebSocket routes
	r.HandleFunc("/ws/documents/{id}/status", h.StreamIngestionStatus)

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	return r
}
