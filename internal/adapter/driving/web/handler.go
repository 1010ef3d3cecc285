// Package web implements the HTML dashboard driving adapter using templ components.
package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/a-h/templ"

	layout "github.com/ericfisherdev/tradeconfirm/internal/adapter/driving/web/templates"
	"github.com/ericfisherdev/tradeconfirm/internal/adapter/driving/web/templates/pages"
	vm "github.com/ericfisherdev/tradeconfirm/internal/adapter/driving/web/viewmodel"
	"github.com/ericfisherdev/tradeconfirm/internal/application"
	"github.com/ericfisherdev/tradeconfirm/internal/domain/model"
	"github.com/ericfisherdev/tradeconfirm/internal/templates"
)

const (
	manualReviewLimit = 25
	topCounterLimit   = 10
)

// StatusSource supplies the dashboard's status data.
type StatusSource interface {
	Report(ctx context.Context) (application.StatusReport, error)
	ManualReview(ctx context.Context, limit int) ([]model.DedupEntry, error)
	TopCounters(ctx context.Context, limit int) ([]model.UserCounter, error)
}

// TemplateSource resolves message template text and drops cached copies.
type TemplateSource interface {
	Text(ctx context.Context, name string) (string, bool, error)
	InvalidateAll()
}

// Poller runs an immediate discovery cycle.
type Poller interface {
	TriggerCycle(ctx context.Context) (int, error)
}

// ThreadOps performs monthly thread maintenance.
type ThreadOps interface {
	RotateMonthly(ctx context.Context) (application.RotationResult, error)
	LockPrevious(ctx context.Context) (int, error)
}

// LabelRefresher reloads label-based templates.
type LabelRefresher interface {
	RefreshLabelTemplates()
}

// Deps groups the Handler's collaborators. Status and Templates are
// required; actions whose dependency is nil report that they are unavailable.
type Deps struct {
	Status    StatusSource
	Templates TemplateSource
	Poller    Poller
	Threads   ThreadOps
	Labels    LabelRefresher

	// SecureCookies marks the CSRF cookie Secure when served over HTTPS.
	SecureCookies bool
}

// Handler is the web GUI driving adapter that serves HTML via templ components.
type Handler struct {
	deps   Deps
	logger *slog.Logger
	now    func() time.Time
}

// NewHandler creates a Handler.
func NewHandler(deps Deps, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{deps: deps, logger: logger, now: time.Now}
}

// Dashboard renders the main page with status, parked comments, top traders
// and templates.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	token := h.csrfToken(w, r)

	report, err := h.deps.Status.Report(ctx)
	if err != nil {
		h.logger.Error("failed to build status report", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	now := h.now()
	page := vm.DashboardViewModel{
		Status:    toStatusViewModel(report, now),
		Templates: toTemplateRows(templates.Names()),
		CSRFToken: token,
		Flash:     r.URL.Query().Get("flash"),
	}

	if entries, err := h.deps.Status.ManualReview(ctx, manualReviewLimit); err != nil {
		h.logger.Warn("failed to list manual review", "error", err)
	} else {
		page.ManualReview = toManualReviewRows(entries, now)
	}
	if counters, err := h.deps.Status.TopCounters(ctx, topCounterLimit); err != nil {
		h.logger.Warn("failed to list counters", "error", err)
	} else {
		page.TopCounters = toCounterRows(counters)
	}

	h.render(w, r, http.StatusOK, "Trade confirmations", pages.Dashboard(page))
}

// TemplatePreview renders one message template with sample values.
func (h *Handler) TemplatePreview(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	page := vm.TemplatePreviewViewModel{Name: name}

	if !slices.Contains(templates.Names(), name) {
		page.Error = fmt.Sprintf("No template named %q.", name)
		h.render(w, r, http.StatusNotFound, "Unknown template", pages.TemplatePreview(page))
		return
	}

	text, override, err := h.deps.Templates.Text(r.Context(), name)
	if err != nil {
		h.logger.Error("failed to resolve template", "template", name, "error", err)
		page.Error = "Template could not be loaded: " + err.Error()
		h.render(w, r, http.StatusBadGateway, name, pages.TemplatePreview(page))
		return
	}

	page.Source = text
	page.Override = override
	page.HTML, page.Missing = PreviewTemplate(text)
	h.render(w, r, http.StatusOK, name, pages.TemplatePreview(page))
}

// RunCycle queues an immediate discovery cycle.
func (h *Handler) RunCycle(w http.ResponseWriter, r *http.Request) {
	if h.deps.Poller == nil {
		h.redirect(w, r, "Polling is not configured.")
		return
	}
	n, err := h.deps.Poller.TriggerCycle(r.Context())
	switch {
	case errors.Is(err, application.ErrNotRunning):
		h.redirect(w, r, "The poll loop is not running.")
	case err != nil:
		h.logger.Error("manual cycle failed", "error", err)
		h.redirect(w, r, "Discovery failed: "+err.Error())
	default:
		h.redirect(w, r, fmt.Sprintf("Queued %d new comments.", n))
	}
}

// Rotate runs the monthly thread rotation.
func (h *Handler) Rotate(w http.ResponseWriter, r *http.Request) {
	if h.deps.Threads == nil {
		h.redirect(w, r, "Thread maintenance is not configured.")
		return
	}
	res, err := h.deps.Threads.RotateMonthly(r.Context())
	if err != nil {
		h.logger.Error("rotation failed", "error", err)
		h.redirect(w, r, "Rotation failed: "+err.Error())
		return
	}
	if res.Created {
		h.redirect(w, r, fmt.Sprintf("Created the %s thread (%s).", res.Period, res.SubmissionID))
		return
	}
	h.redirect(w, r, fmt.Sprintf("The %s thread already exists (%s).", res.Period, res.SubmissionID))
}

// Lock locks previous monthly threads.
func (h *Handler) Lock(w http.ResponseWriter, r *http.Request) {
	if h.deps.Threads == nil {
		h.redirect(w, r, "Thread maintenance is not configured.")
		return
	}
	n, err := h.deps.Threads.LockPrevious(r.Context())
	if err != nil {
		h.logger.Error("lock failed", "error", err)
		h.redirect(w, r, "Locking failed: "+err.Error())
		return
	}
	h.redirect(w, r, fmt.Sprintf("Locked %d threads.", n))
}

// Invalidate drops every cached template so the next use refetches it.
func (h *Handler) Invalidate(w http.ResponseWriter, r *http.Request) {
	h.deps.Templates.InvalidateAll()
	if h.deps.Labels != nil {
		h.deps.Labels.RefreshLabelTemplates()
	}
	h.logger.Info("templates invalidated from dashboard")
	h.redirect(w, r, "Templates reloaded.")
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, title string, body templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := layout.Layout(title, body).Render(r.Context(), w); err != nil {
		h.logger.Error("failed to render page", "title", title, "error", err)
	}
}

func (h *Handler) redirect(w http.ResponseWriter, r *http.Request, flash string) {
	http.Redirect(w, r, "/?flash="+url.QueryEscape(flash), http.StatusSeeOther)
}
