// internal/api/router.go
//
// Top-level router for `crm serve`.
//
// Context
//   Ambient middleware runs outermost, then the entity API is mounted at
//   /api.  /metrics and /healthz sit beside it for operators.
//
//------------------------------------------------------------------------------

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/yanizio/adept-crm/internal/middleware"
)

// RouterOptions selects the ambient middleware.
type RouterOptions struct {
	Logger     *zap.SugaredLogger
	ForceHTTPS bool
}

// NewRouter wraps h with request IDs, panic recovery, request logging, and
// security headers, and adds /metrics and /healthz.
func NewRouter(h *Handler, opts RouterOptions) http.Handler {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	r := chi.NewRouter()
	r.Use(
		middleware.ForceHTTPS(opts.ForceHTTPS),
		chimw.RequestID,
		chimw.Recoverer,
		middleware.RequestLogger(opts.Logger),
		middleware.Security,
	)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Mount("/api", h.Routes())
	return r
}
