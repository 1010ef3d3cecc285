package httphandler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/ericfisherdev/tradeconfirm/internal/application"
	"github.com/ericfisherdev/tradeconfirm/internal/domain/model"
	"github.com/ericfisherdev/tradeconfirm/internal/templates"
)

const (
	defaultManualReviewLimit = 50
	maxManualReviewLimit     = 500
)

// StatusProvider reports engine state.
type StatusProvider interface {
	Report(ctx context.Context) (application.StatusReport, error)
	ManualReview(ctx context.Context, limit int) ([]model.DedupEntry, error)
}

// Poller controls the running discovery loop.
type Poller interface {
	TriggerCycle(ctx context.Context) (int, error)
	Stop()
}

// ThreadOps performs monthly thread maintenance on demand.
type ThreadOps interface {
	RotateMonthly(ctx context.Context) (application.RotationResult, error)
	LockPrevious(ctx context.Context) (int, error)
}

// TemplateInvalidator drops cached message templates.
type TemplateInvalidator interface {
	Invalidate(name string)
	InvalidateAll()
}

// LabelRefresher drops the cached label template list.
type LabelRefresher interface {
	RefreshLabelTemplates()
}

// Handler is the HTTP driving adapter that serves the operations API.
type Handler struct {
	status    StatusProvider
	poller    Poller
	threads   ThreadOps
	templates TemplateInvalidator
	labels    LabelRefresher
	logger    *slog.Logger
}

// NewHandler creates a Handler. poller, threads, templates and labels may be
// nil; the endpoints that need them then answer 503.
func NewHandler(
	status StatusProvider,
	poller Poller,
	threads ThreadOps,
	templates TemplateInvalidator,
	labels LabelRefresher,
	logger *slog.Logger,
) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		status:    status,
		poller:    poller,
		threads:   threads,
		templates: templates,
		labels:    labels,
		logger:    logger,
	}
}

// RegisterAPIRoutes adds the /api/v1 routes to mux.
func RegisterAPIRoutes(mux *http.ServeMux, h *Handler) {
	mux.HandleFunc("GET /api/v1/health", h.Health)
	mux.HandleFunc("GET /api/v1/status", h.Status)
	mux.HandleFunc("GET /api/v1/manual-review", h.ListManualReview)
	mux.HandleFunc("POST /api/v1/cycle", h.TriggerCycle)
	mux.HandleFunc("POST /api/v1/rotate", h.Rotate)
	mux.HandleFunc("POST /api/v1/lock", h.Lock)
	mux.HandleFunc("POST /api/v1/templates/invalidate", h.InvalidateTemplates)
	mux.HandleFunc("POST /api/v1/stop", h.Stop)
}

// ApplyMiddleware wraps next with logging and recovery middleware.
func ApplyMiddleware(next http.Handler, logger *slog.Logger) http.Handler {
	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, next)
	return loggingMiddleware(logger, wrapped)
}

// Health returns a simple liveness response.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}

// Status returns the engine status report.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	report, err := h.status.Report(r.Context())
	if err != nil {
		h.logger.Error("failed to build status report", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// ListManualReview returns comments parked for moderator attention.
func (h *Handler) ListManualReview(w http.ResponseWriter, r *http.Request) {
	limit := defaultManualReviewLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxManualReviewLimit {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	entries, err := h.status.ManualReview(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list manual review entries", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]ManualReviewResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, toManualReviewResponse(e))
	}
	writeJSON(w, http.StatusOK, resp)
}

// TriggerCycle asks the poll loop for an immediate discovery.
func (h *Handler) TriggerCycle(w http.ResponseWriter, r *http.Request) {
	if h.poller == nil {
		writeError(w, http.StatusServiceUnavailable, "poll loop is not configured")
		return
	}

	n, err := h.poller.TriggerCycle(r.Context())
	if err != nil {
		if errors.Is(err, application.ErrNotRunning) {
			writeError(w, http.StatusConflict, "poll loop is not running")
			return
		}
		h.logger.Error("triggered cycle failed", "error", err)
		writeError(w, http.StatusBadGateway, "discovery failed")
		return
	}
	writeJSON(w, http.StatusOK, CycleResponse{Discovered: n})
}

// Rotate creates this month's confirmation thread if it does not exist.
func (h *Handler) Rotate(w http.ResponseWriter, r *http.Request) {
	if h.threads == nil {
		writeError(w, http.StatusServiceUnavailable, "thread service is not configured")
		return
	}

	res, err := h.threads.RotateMonthly(r.Context())
	if err != nil {
		h.logger.Error("rotation failed", "error", err)
		writeError(w, http.StatusBadGateway, "rotation failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Lock locks previous confirmation threads.
func (h *Handler) Lock(w http.ResponseWriter, r *http.Request) {
	if h.threads == nil {
		writeError(w, http.StatusServiceUnavailable, "thread service is not configured")
		return
	}

	n, err := h.threads.LockPrevious(r.Context())
	if err != nil {
		h.logger.Error("lock previous threads failed", "locked", n, "error", err)
		writeError(w, http.StatusBadGateway, "lock failed")
		return
	}
	writeJSON(w, http.StatusOK, LockResponse{Locked: n})
}

// InvalidateTemplates drops cached templates. An empty body or empty name
// drops every message template and the label template list.
func (h *Handler) InvalidateTemplates(w http.ResponseWriter, r *http.Request) {
	if h.templates == nil {
		writeError(w, http.StatusServiceUnavailable, "template cache is not configured")
		return
	}

	var req InvalidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name != "" {
		if !slices.Contains(templates.Names(), req.Name) {
			writeError(w, http.StatusNotFound, "unknown template")
			return
		}
		h.templates.Invalidate(req.Name)
		h.logger.Info("template cache invalidated", "template", req.Name)
		writeJSON(w, http.StatusOK, InvalidateResponse{Invalidated: []string{req.Name}})
		return
	}

	h.templates.InvalidateAll()
	if h.labels != nil {
		h.labels.RefreshLabelTemplates()
	}
	h.logger.Info("all template caches invalidated")
	writeJSON(w, http.StatusOK, InvalidateResponse{Invalidated: templates.Names(), Labels: h.labels != nil})
}

// Stop ends the poll loop. In-flight work drains before the process exits.
func (h *Handler) Stop(w http.ResponseWriter, _ *http.Request) {
	if h.poller == nil {
		writeError(w, http.StatusServiceUnavailable, "poll loop is not configured")
		return
	}
	h.poller.Stop()
	h.logger.Info("stop requested via api")
	writeJSON(w, http.StatusAccepted, StopResponse{Status: "stopping"})
}
