package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"leilao-insights/models"
	"leilao-insights/utils"
)

// PreAnalyzer is the pipeline entry point served by the handlers.
type PreAnalyzer interface {
	GetOrExtract(ctx context.Context, raw string, force bool) (*models.FrontendRecord, error)
	Purge(ctx context.Context, raw string) (models.PurgeResult, error)
}

// Reporter serves the extraction report routes.
type Reporter interface {
	Report(ctx context.Context) (*models.ExtractionReport, error)
	DebugLogs(ctx context.Context, portal string) ([]models.ExtractionLog, error)
}

// Reloader re-reads the trust lists.
type Reloader interface {
	Reload() error
}

type Handler struct {
	pipeline PreAnalyzer
	reports  Reporter
	trust    Reloader
	logger   *utils.Logger
}

func NewHandler(pipeline PreAnalyzer, reports Reporter, trust Reloader, logger *utils.Logger) *Handler {
	return &Handler{pipeline: pipeline, reports: reports, trust: trust, logger: logger.With("api")}
}

// Router registers every route on a gorilla/mux router.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(h.logRequests)
	r.HandleFunc("/health", h.HandleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/pre-analysis", h.HandleGetPreAnalysis).Methods(http.MethodGet)
	api.HandleFunc("/pre-analysis", h.HandlePurge).Methods(http.MethodDelete)
	api.HandleFunc("/extraction-report", h.HandleReport).Methods(http.MethodGet)
	api.HandleFunc("/debug/logs", h.HandleDebugLogs).Methods(http.MethodGet)
	api.HandleFunc("/trust-lists/reload", h.HandleReloadTrustLists).Methods(http.MethodPost)
	return r
}

func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleGetPreAnalysis serves GET /api/pre-analysis?url=<listing>&force=<bool>.
func (h *Handler) HandleGetPreAnalysis(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	force := false
	if raw := q.Get("force"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "force must be a boolean")
			return
		}
		force = v
	}

	rec, err := h.pipeline.GetOrExtract(r.Context(), q.Get("url"), force)
	if err != nil {
		h.fail(w, err)
		return
	}
	status := http.StatusOK
	if rec.Status == models.ResponsePending {
		status = http.StatusAccepted
	}
	writeJSON(w, status, rec)
}

// HandlePurge serves DELETE /api/pre-analysis?url=<listing>.
func (h *Handler) HandlePurge(w http.ResponseWriter, r *http.Request) {
	res, err := h.pipeline.Purge(r.Context(), r.URL.Query().Get("url"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) HandleReport(w http.ResponseWriter, r *http.Request) {
	rep, err := h.reports.Report(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (h *Handler) HandleDebugLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := h.reports.DebugLogs(r.Context(), r.URL.Query().Get("portal"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

func (h *Handler) HandleReloadTrustLists(w http.ResponseWriter, r *http.Request) {
	if err := h.trust.Reload(); err != nil {
		h.logger.Error("trust list reload failed: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.logger.Info("trust lists reloaded")
	writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}

// fail maps pipeline errors to status codes: bad input is the caller's
// fault, an unreachable datastore is a service failure.
func (h *Handler) fail(w http.ResponseWriter, err error) {
	var verr *models.ValidationError
	var perr *models.PersistenceError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error())
	case errors.As(err, &perr):
		h.logger.Error("%v", err)
		writeError(w, http.StatusServiceUnavailable, "datastore unavailable")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "request cancelled")
	default:
		h.logger.Error("%v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		h.logger.Info("%s %s -> %d (%s)", r.Method, r.URL.RequestURI(), sw.status, time.Since(start).Round(time.Millisecond))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (s *statusWriter) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
