package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fairyhunter13/stock-adjustment-service/internal/config"
	httpopenapi "github.com/fairyhunter13/stock-adjustment-service/internal/http/openapi"
	"github.com/fairyhunter13/stock-adjustment-service/internal/model"
	"github.com/fairyhunter13/stock-adjustment-service/internal/obs"
	"github.com/fairyhunter13/stock-adjustment-service/internal/queue"
	"github.com/fairyhunter13/stock-adjustment-service/internal/session"
)

// JournalReader lists recorded adjustments, newest first.
type JournalReader interface {
	List(limit int) ([]model.AdjustmentEvent, error)
}

type App struct {
	Cfg     config.Config
	Session *session.Controller
	Manager *queue.Manager
	// Journal is nil when no journal is configured.
	Journal JournalReader

	closing atomic.Bool
	started time.Time
}

func NewApp(cfg config.Config, s *session.Controller, m *queue.Manager, j JournalReader) *App {
	return &App{Cfg: cfg, Session: s, Manager: m, Journal: j, started: time.Now()}
}

// StartShutdown rejects further operator intents.
func (a *App) StartShutdown() { a.closing.Store(true) }

func (a *App) rejectClosing(w http.ResponseWriter) bool {
	if a.closing.Load() {
		WriteJSONError(w, http.StatusServiceUnavailable, "shutting_down", "")
		return true
	}
	return false
}

// decodeJSON reads a JSON body into dst. An empty body leaves dst untouched
// when optional is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, optional bool) bool {
	if optional && r.ContentLength == 0 {
		return true
	}
	ct := r.Header.Get("Content-Type")
	if !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		WriteJSONError(w, http.StatusUnsupportedMediaType, "unsupported_media_type", "expected application/json")
		return false
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		WriteJSONError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// operationContext detaches gateway writes from the client connection: a
// dropped request must not abandon a write half way.
func operationContext(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

func (a *App) sessionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}
	writeJSON(w, http.StatusOK, a.Session.State())
}

type scanRequest struct {
	Code string `json:"code"`
}

type scanAck struct {
	Status    string `json:"status"`
	RequestID string `json:"request_id"`
	Code      string `json:"code"`
	Version   uint64 `json:"version"`
}

func (a *App) scanHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}
	if a.rejectClosing(w) {
		return
	}
	var req scanRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	a.Session.Lookup(req.Code)
	st := a.Session.State()
	writeJSON(w, http.StatusAccepted, scanAck{
		Status:    "accepted",
		RequestID: RequestIDFromContext(r.Context()),
		Code:      st.Code,
		Version:   st.Version,
	})
}

type pendingRequest struct {
	Value any `json:"value"`
}

type stepRequest struct {
	Delta *int64 `json:"delta"`
}

type pendingResponse struct {
	Pending int64 `json:"pending"`
}

func (a *App) pendingHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		WriteJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}
	if a.rejectClosing(w) {
		return
	}
	var req pendingRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	var n int64
	switch v := req.Value.(type) {
	case json.Number:
		n = a.Session.SetPendingText(v.String())
	case string:
		n = a.Session.SetPendingText(v)
	case nil:
		WriteJSONError(w, http.StatusBadRequest, "validation_error", "value is required")
		return
	default:
		n = a.Session.SetPending(1)
	}
	writeJSON(w, http.StatusOK, pendingResponse{Pending: n})
}

func (a *App) stepHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}
	if a.rejectClosing(w) {
		return
	}
	var req stepRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	if req.Delta == nil {
		WriteJSONError(w, http.StatusBadRequest, "validation_error", "delta is required")
		return
	}
	writeJSON(w, http.StatusOK, pendingResponse{Pending: a.Session.AdjustPendingBy(*req.Delta)})
}

func (a *App) commitHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}
	if a.rejectClosing(w) {
		return
	}
	entry, err := a.Session.Commit(operationContext(r))
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

type priceRequest struct {
	Price any `json:"price"`
}

func (a *App) priceHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}
	if a.rejectClosing(w) {
		return
	}
	var req priceRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	var text string
	switch v := req.Price.(type) {
	case json.Number:
		text = v.String()
	case string:
		text = v
	case nil:
		WriteJSONError(w, http.StatusBadRequest, "validation_error", "price is required")
		return
	}
	price, err := session.ParsePrice(text)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	entry, err := a.Session.CommitPrice(operationContext(r), price)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

type undoRequest struct {
	Confirm bool `json:"confirm"`
}

func (a *App) undoHandler(w http.ResponseWriter, r *http.Request) {
	const prefix, suffix = "/session/history/", "/undo"
	if !strings.HasPrefix(r.URL.Path, prefix) || !strings.HasSuffix(r.URL.Path, suffix) {
		WriteJSONError(w, http.StatusNotFound, "not_found", "")
		return
	}
	id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, prefix), suffix)
	if id == "" || strings.Contains(id, "/") {
		WriteJSONError(w, http.StatusNotFound, "not_found", "")
		return
	}
	if r.Method != http.MethodPost {
		WriteJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}
	if a.rejectClosing(w) {
		return
	}
	var req undoRequest
	if !decodeJSON(w, r, &req, true) {
		return
	}
	entry, err := a.Session.Undo(operationContext(r), id, func(model.HistoryEntry) bool { return req.Confirm })
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (a *App) noticeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		WriteJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}
	a.Session.DismissNotice()
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) journalHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}
	if a.Journal == nil {
		WriteJSONError(w, http.StatusNotFound, "journal_disabled", "")
		return
	}
	limit := 100
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			WriteJSONError(w, http.StatusBadRequest, "validation_error", "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	items, err := a.Journal.List(limit)
	if err != nil {
		obs.Logger.Error("journal_list_failed", "error", err)
		WriteJSONError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if a.closing.Load() {
		status = "shutting_down"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

func (a *App) metricsHandler(w http.ResponseWriter, r *http.Request) {
	enq, proc, backlog, depth := a.Manager.QueueMetrics()
	st := a.Session.State()
	m := map[string]any{
		"events_enqueued":  enq,
		"events_processed": proc,
		"backlog_size":     backlog,
		"queue_depth":      depth,
		"worker_count":     a.Manager.WorkerCount(),
		"sink_failures":    a.Manager.SinkFailures(),
		"session_version":  st.Version,
		"history_length":   len(st.History),
		"uptime_sec":       time.Since(a.started).Seconds(),
	}
	writeJSON(w, http.StatusOK, m)
}

func (a *App) openapiHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(httpopenapi.YAML)
}

func (a *App) docsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	html := `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>Stock Adjustment API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/openapi.yaml',
        dom_id: '#swagger-ui'
      });
    </script>
  </body>
</html>`
	_, _ = w.Write([]byte(html))
}
