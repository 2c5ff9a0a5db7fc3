// Package status serves a read-mostly HTTP view of the simulator: mailbox
// contents, driver counters and the fault vector.
package status

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/notnil/vcucan"
	"github.com/notnil/vcucan/fault"
)

// Handler exposes one driver over HTTP. Every request takes lock, the same
// locker the driver loop holds while ticking.
type Handler struct {
	drv    *vcucan.Driver
	faults *fault.Vector
	lock   sync.Locker
	logger *slog.Logger
}

// NewHandler returns a handler for drv. faults may be nil.
func NewHandler(drv *vcucan.Driver, faults *fault.Vector, lock sync.Locker, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{drv: drv, faults: faults, lock: lock, logger: logger}
}

// NewRouter registers the status routes.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Get("/healthz", h.healthz)
	r.Get("/stats", h.stats)
	r.Route("/mailboxes", func(r chi.Router) {
		r.Get("/", h.mailboxes)
		r.Get("/inbound/{id}", h.inbox)
		r.Get("/outbound/{id}", h.outbox)
		r.Post("/outbound/{id}/send", h.send)
		r.Post("/recent/clear", h.clearRecent)
	})
	r.Post("/faults/clear", h.clearFaults)
	return r
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		code := rec.statusCode
		if code == 0 {
			code = http.StatusOK
		}
		h.logger.Debug("status request",
			"method", r.Method,
			"path", r.URL.Path,
			"status_code", code,
			"duration", time.Since(start),
		)
	})
}
