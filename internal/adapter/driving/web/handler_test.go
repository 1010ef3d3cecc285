package web_test

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/tradeconfirm/internal/adapter/driving/web"
	"github.com/ericfisherdev/tradeconfirm/internal/application"
	"github.com/ericfisherdev/tradeconfirm/internal/domain/model"
)

type fakeStatus struct {
	report   application.StatusReport
	entries  []model.DedupEntry
	counters []model.UserCounter
	err      error
}

func (f *fakeStatus) Report(context.Context) (application.StatusReport, error) {
	return f.report, f.err
}

func (f *fakeStatus) ManualReview(context.Context, int) ([]model.DedupEntry, error) {
	return f.entries, nil
}

func (f *fakeStatus) TopCounters(context.Context, int) ([]model.UserCounter, error) {
	return f.counters, nil
}

type fakeTemplates struct {
	text        string
	override    bool
	err         error
	invalidated bool
}

func (f *fakeTemplates) Text(context.Context, string) (string, bool, error) {
	return f.text, f.override, f.err
}

func (f *fakeTemplates) InvalidateAll() { f.invalidated = true }

type fakePoller struct {
	n   int
	err error
}

func (f *fakePoller) TriggerCycle(context.Context) (int, error) { return f.n, f.err }

type fakeThreads struct {
	rotation application.RotationResult
	locked   int
}

func (f *fakeThreads) RotateMonthly(context.Context) (application.RotationResult, error) {
	return f.rotation, nil
}

func (f *fakeThreads) LockPrevious(context.Context) (int, error) { return f.locked, nil }

func newMux(deps web.Deps) *http.ServeMux {
	mux := http.NewServeMux()
	web.RegisterRoutes(mux, web.NewHandler(deps, slog.Default()))
	return mux
}

func defaultDeps() web.Deps {
	return web.Deps{
		Status: &fakeStatus{
			report: application.StatusReport{
				Status:          "ok",
				Subreddit:       "testsub",
				BotName:         "TradeBot",
				CurrentThreadID: "abc123",
				Watermark:       "c9",
				GeneratedAt:     time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
			},
			entries: []model.DedupEntry{{
				CommentID: "c7",
				Outcome:   "manual_review:retries_exhausted",
				Attempts:  3,
				CreatedAt: time.Now().Add(-2 * time.Hour),
			}},
			counters: []model.UserCounter{{Username: "Alice", Count: 12}},
		},
		Templates: &fakeTemplates{text: "Confirmed u/{comment_author}"},
		Poller:    &fakePoller{n: 4},
		Threads:   &fakeThreads{rotation: application.RotationResult{Period: "2026-03", SubmissionID: "new1", Created: true}, locked: 2},
	}
}

// postAction submits a form with a matching csrf cookie and field.
func postAction(t *testing.T, mux http.Handler, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	form := url.Values{"csrf_token": {token}}
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: "tok"})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func flashOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	require.Equal(t, http.StatusSeeOther, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	return loc.Query().Get("flash")
}

func TestDashboard_Renders(t *testing.T) {
	mux := newMux(defaultDeps())
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?flash=hello+there", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, "r/testsub")
	assert.Contains(t, body, "https://www.reddit.com/comments/abc123")
	assert.Contains(t, body, "<code>c7</code>")
	assert.Contains(t, body, "retries exhausted")
	assert.Contains(t, body, "u/Alice")
	assert.Contains(t, body, `href="/templates/trade_confirmation"`)
	assert.Contains(t, body, "hello there")

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "csrf_token", cookies[0].Name)
	assert.Contains(t, body, cookies[0].Value)
}

func TestDashboard_EscapesFlash(t *testing.T) {
	mux := newMux(defaultDeps())
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?flash="+url.QueryEscape("<script>x</script>"), nil))

	assert.NotContains(t, rec.Body.String(), "<script>x</script>")
	assert.Contains(t, rec.Body.String(), "&lt;script&gt;")
}

func TestDashboard_ReportError(t *testing.T) {
	deps := defaultDeps()
	deps.Status = &fakeStatus{err: errors.New("db down")}
	rec := httptest.NewRecorder()
	newMux(deps).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestTemplatePreview(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		templates  *fakeTemplates
		wantStatus int
		wantBody   string
	}{
		{
			name:       "bundled",
			path:       "/templates/trade_confirmation",
			templates:  &fakeTemplates{text: "Confirmed u/{comment_author}"},
			wantStatus: http.StatusOK,
			wantBody:   "bundled default",
		},
		{
			name:       "override",
			path:       "/templates/no_parent",
			templates:  &fakeTemplates{text: "Hi **{comment_author}**", override: true},
			wantStatus: http.StatusOK,
			wantBody:   "<strong>Alice</strong>",
		},
		{
			name:       "unknown name",
			path:       "/templates/nope",
			templates:  &fakeTemplates{},
			wantStatus: http.StatusNotFound,
			wantBody:   "No template named",
		},
		{
			name:       "fetch error",
			path:       "/templates/no_parent",
			templates:  &fakeTemplates{err: errors.New("wiki unavailable")},
			wantStatus: http.StatusBadGateway,
			wantBody:   "wiki unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := defaultDeps()
			deps.Templates = tt.templates
			rec := httptest.NewRecorder()
			newMux(deps).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
		})
	}
}

func TestActions_RequireCSRF(t *testing.T) {
	mux := newMux(defaultDeps())

	for _, path := range []string{"/actions/cycle", "/actions/rotate", "/actions/lock", "/actions/invalidate"} {
		t.Run(path, func(t *testing.T) {
			rec := postAction(t, mux, path, "wrong")
			assert.Equal(t, http.StatusForbidden, rec.Code)
		})
	}
}

func TestActions_Redirect(t *testing.T) {
	tests := []struct {
		name      string
		path      string
		mutate    func(*web.Deps)
		wantFlash string
	}{
		{name: "cycle", path: "/actions/cycle", wantFlash: "Queued 4 new comments."},
		{
			name:      "cycle not running",
			path:      "/actions/cycle",
			mutate:    func(d *web.Deps) { d.Poller = &fakePoller{err: application.ErrNotRunning} },
			wantFlash: "The poll loop is not running.",
		},
		{
			name:      "cycle unconfigured",
			path:      "/actions/cycle",
			mutate:    func(d *web.Deps) { d.Poller = nil },
			wantFlash: "Polling is not configured.",
		},
		{name: "rotate", path: "/actions/rotate", wantFlash: "Created the 2026-03 thread (new1)."},
		{name: "lock", path: "/actions/lock", wantFlash: "Locked 2 threads."},
		{name: "invalidate", path: "/actions/invalidate", wantFlash: "Templates reloaded."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := defaultDeps()
			if tt.mutate != nil {
				tt.mutate(&deps)
			}
			rec := postAction(t, newMux(deps), tt.path, "tok")
			assert.Equal(t, tt.wantFlash, flashOf(t, rec))
		})
	}
}

func TestInvalidate_DropsCache(t *testing.T) {
	deps := defaultDeps()
	tmpl := &fakeTemplates{}
	deps.Templates = tmpl

	rec := postAction(t, newMux(deps), "/actions/invalidate", "tok")

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.True(t, tmpl.invalidated)
}

func TestStaticAssets(t *testing.T) {
	rec := httptest.NewRecorder()
	newMux(defaultDeps()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/static/app.css", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "font-family")
}
