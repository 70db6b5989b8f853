package httpapi

import (
	"net/http"
	"time"

	"github.com/paperindex/docsearch/internal/engine"
	"github.com/paperindex/docsearch/pkg/health"
	"github.com/paperindex/docsearch/pkg/metrics"
	"github.com/paperindex/docsearch/pkg/middleware"
)

// NewRouter builds the full HTTP mux: search, autocomplete, upload,
// download, and operational endpoints, wrapped in the request-id, metrics,
// CORS, and request-timeout middleware chain. requestTimeout bounds every
// request's context; a zero value disables the timeout wrapper.
func NewRouter(e *engine.Engine, checker *health.Checker, requestTimeout time.Duration) http.Handler {
	h := New(e)
	mux := http.NewServeMux()

	mux.HandleFunc("GET /search", h.Search)
	mux.HandleFunc("GET /autocomplete", h.Autocomplete)
	mux.HandleFunc("POST /upload", h.Upload)
	mux.HandleFunc("GET /download/", h.Download)
	mux.HandleFunc("GET /upload-progress", h.UploadProgressHandler)
	mux.HandleFunc("GET /stats", h.Stats)

	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /healthz", checker.LiveHandler())
	mux.HandleFunc("GET /readyz", checker.ReadyHandler())

	var handler http.Handler = mux
	if requestTimeout > 0 {
		handler = middleware.Timeout(requestTimeout)(handler)
	}
	handler = middleware.CORS()(handler)
	handler = middleware.Metrics(e.Metrics)(handler)
	handler = middleware.RequestID()(handler)
	return handler
}
