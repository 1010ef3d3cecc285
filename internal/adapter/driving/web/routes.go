package web

import (
	"io/fs"
	"net/http"
)

// RegisterRoutes registers the dashboard routes on the provided mux.
// Static assets are served from the embedded filesystem at /static/*.
func RegisterRoutes(mux *http.ServeMux, h *Handler) {
	staticFS, _ := fs.Sub(StaticFS, "static")
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(staticFS)))

	mux.HandleFunc("GET /{$}", h.Dashboard)
	mux.HandleFunc("GET /templates/{name}", h.TemplatePreview)

	mux.HandleFunc("POST /actions/cycle", h.requireCSRF(h.RunCycle))
	mux.HandleFunc("POST /actions/rotate", h.requireCSRF(h.Rotate))
	mux.HandleFunc("POST /actions/lock", h.requireCSRF(h.Lock))
	mux.HandleFunc("POST /actions/invalidate", h.requireCSRF(h.Invalidate))
}
