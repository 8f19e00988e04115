package httpapi

import (
	"expvar"
	"net/http"
)

// NewRouter registers HTTP routes and returns the handler with middleware.
func NewRouter(app *App) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/session", app.sessionHandler)
	mux.HandleFunc("/session/events", app.streamHandler)
	mux.HandleFunc("/session/scan", app.scanHandler)
	mux.HandleFunc("/session/pending", app.pendingHandler)
	mux.HandleFunc("/session/pending/step", app.stepHandler)
	mux.HandleFunc("/session/commit", app.commitHandler)
	mux.HandleFunc("/session/price", app.priceHandler)
	mux.HandleFunc("/session/history/", app.undoHandler)
	mux.HandleFunc("/session/notice", app.noticeHandler)
	mux.HandleFunc("/journal", app.journalHandler)
	mux.HandleFunc("/healthz", app.healthHandler)
	mux.HandleFunc("/debug/metrics", app.metricsHandler)
	mux.Handle("/debug/vars", expvar.Handler())
	mux.HandleFunc("/openapi.yaml", app.openapiHandler)
	mux.HandleFunc("/docs", app.docsHandler)
	return WithRequestID(WithLogging(mux, app.Session.SessionID()))
}
