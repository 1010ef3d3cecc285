package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ericfisherdev/tradeconfirm/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the JSON representation of a health check.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// CycleResponse reports how many comments a triggered cycle queued.
type CycleResponse struct {
	Discovered int `json:"discovered"`
}

// LockResponse reports how many threads were locked.
type LockResponse struct {
	Locked int `json:"locked"`
}

// StopResponse acknowledges a stop request.
type StopResponse struct {
	Status string `json:"status"`
}

// InvalidateRequest names the template to drop; empty means all.
type InvalidateRequest struct {
	Name string `json:"name"`
}

// InvalidateResponse lists the templates dropped from the cache.
type InvalidateResponse struct {
	Invalidated []string `json:"invalidated"`
	Labels      bool     `json:"labels"`
}

// ManualReviewResponse is the JSON representation of a parked comment.
type ManualReviewResponse struct {
	CommentID string `json:"comment_id"`
	ParentID  string `json:"parent_id,omitempty"`
	Outcome   string `json:"outcome"`
	Attempts  int    `json:"attempts"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func toManualReviewResponse(e model.DedupEntry) ManualReviewResponse {
	return ManualReviewResponse{
		CommentID: e.CommentID,
		ParentID:  e.ParentID,
		Outcome:   e.Outcome,
		Attempts:  e.Attempts,
		CreatedAt: formatTime(e.CreatedAt),
		UpdatedAt: formatTime(e.UpdatedAt),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
