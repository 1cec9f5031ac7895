// Package httpapi serves the collection catalog over REST. Every response,
// including errors, is an apiresponse envelope.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"workspace-collections/internal/apiresponse"
	"workspace-collections/internal/catalog"
	"workspace-collections/internal/logging"
	"workspace-collections/internal/naming"
	"workspace-collections/internal/observability"
)

const surface = "rest"

// CatalogSource provides the catalog to serve. *catalog.Manager satisfies it.
type CatalogSource interface {
	Catalog() *catalog.Catalog
}

// Config configures the REST handlers.
type Config struct {
	Source          CatalogSource
	DefaultPageSize int
	MaxPageSize     int
}

// Handler serves the /api routes.
type Handler struct {
	source          CatalogSource
	defaultPageSize int
	maxPageSize     int
}

// New returns a Handler. Page sizes fall back to 20 and 100.
func New(cfg Config) *Handler {
	h := &Handler{
		source:          cfg.Source,
		defaultPageSize: cfg.DefaultPageSize,
		maxPageSize:     cfg.MaxPageSize,
	}
	if h.defaultPageSize <= 0 {
		h.defaultPageSize = 20
	}
	if h.maxPageSize < h.defaultPageSize {
		h.maxPageSize = max(h.defaultPageSize, 100)
	}
	return h
}

// routes are the read-only paths under /api. Each is served for GET and
// answers every other method with a 405 envelope.
var routes = []string{
	"/api/collections",
	"/api/collections/{$}",
	"/api/collections/{schema}",
	"/api/resolve/{$}",
	"/api/resolve/{collection}",
}

// Register mounts the routes on mux, including a catch-all for /api/ so that
// unmatched requests still get an envelope rather than a plain-text reply.
func (h *Handler) Register(mux *http.ServeMux) {
	handlers := map[string]http.HandlerFunc{
		"/api/collections":          h.listCollections,
		"/api/collections/{$}":      missingName("schema"),
		"/api/collections/{schema}": h.getCollection,
		"/api/resolve/{$}":          missingName("collection"),
		"/api/resolve/{collection}": h.resolveCollection,
	}
	for _, pattern := range routes {
		mux.HandleFunc(http.MethodGet+" "+pattern, handlers[pattern])
		mux.HandleFunc(pattern, methodNotAllowed)
	}
	mux.HandleFunc("/api/", notFound)
}

func missingName(what string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		write(r.Context(), w, apiresponse.Error(http.StatusBadRequest, what+" name is required"))
	}
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Allow", "GET, HEAD")
	write(r.Context(), w, apiresponse.Error(http.StatusMethodNotAllowed, "method not allowed"))
}

func notFound(w http.ResponseWriter, r *http.Request) {
	write(r.Context(), w, apiresponse.Error(http.StatusNotFound, "not found"))
}

func (h *Handler) listCollections(w http.ResponseWriter, r *http.Request) {
	page, ok := h.queryInt(w, r, "page", 1)
	if !ok {
		return
	}
	pageSize, ok := h.queryInt(w, r, "page_size", h.defaultPageSize)
	if !ok {
		return
	}
	pageSize = min(pageSize, h.maxPageSize)

	entries, pagination := h.source.Catalog().Page(page, pageSize)
	write(r.Context(), w, apiresponse.Paginated(entries, pagination))
}

func (h *Handler) getCollection(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entry, err := h.source.Catalog().Lookup(r.PathValue("schema"))
	if errors.Is(err, naming.ErrEmptySchemaName) {
		write(ctx, w, apiresponse.Error(http.StatusBadRequest, "schema name is required"))
		return
	}
	if err != nil {
		logging.FromContext(ctx).Error("collection lookup failed", slog.String("error", err.Error()))
		write(ctx, w, apiresponse.Error(http.StatusInternalServerError, "lookup failed"))
		return
	}

	observability.APIMetricsFromContext(ctx).RecordLookup(ctx, surface, entry.Registered)
	write(ctx, w, apiresponse.OK(entry))
}

func (h *Handler) resolveCollection(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entry, err := h.source.Catalog().Resolve(r.PathValue("collection"))
	observability.APIMetricsFromContext(ctx).RecordResolve(ctx, surface, err == nil)
	if errors.Is(err, catalog.ErrUnknownCollection) {
		// The suggested schema travels with the 404 so clients can show it.
		write(ctx, w, apiresponse.Response[catalog.Entry]{
			Data:    entry,
			Code:    http.StatusNotFound,
			Message: "unknown collection",
		})
		return
	}
	if err != nil {
		logging.FromContext(ctx).Error("collection resolve failed", slog.String("error", err.Error()))
		write(ctx, w, apiresponse.Error(http.StatusInternalServerError, "resolve failed"))
		return
	}
	write(ctx, w, apiresponse.OK(entry))
}

// queryInt reads a positive integer query parameter, answering 400 itself
// when the value is malformed.
func (h *Handler) queryInt(w http.ResponseWriter, r *http.Request, key string, fallback int) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, true
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 1 {
		write(r.Context(), w, apiresponse.Error(http.StatusBadRequest, key+" must be a positive integer"))
		return 0, false
	}
	return value, true
}

// Refresher forces a catalog refresh. *catalog.Manager satisfies it.
type Refresher interface {
	RefreshNow(ctx context.Context) (*catalog.Snapshot, error)
}

// RefreshStatus is the payload of a successful refresh.
type RefreshStatus struct {
	RefreshedAt time.Time `json:"refreshed_at"`
	Collections int       `json:"collections"`
	Fingerprint string    `json:"fingerprint"`
}

// RefreshHandler re-inspects storage on POST. Callers are expected to put it
// behind admin authentication.
func RefreshHandler(refresher Refresher, timeout time.Duration) http.HandlerFunc {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		reqLogger := logging.FromContext(ctx)

		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			write(ctx, w, apiresponse.Error(http.StatusMethodNotAllowed, "method not allowed"))
			return
		}
		reqLogger.Info("admin endpoint accessed",
			slog.String("operation", "refresh_catalog"),
			slog.String("remote_addr", r.RemoteAddr),
		)

		refreshCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		snapshot, err := refresher.RefreshNow(refreshCtx)
		switch {
		case errors.Is(err, catalog.ErrStorageDisabled):
			write(ctx, w, apiresponse.Error(http.StatusConflict, "storage inspection is disabled"))
			return
		case err != nil:
			reqLogger.Error("catalog refresh failed", slog.String("error", err.Error()))
			write(ctx, w, apiresponse.Error(http.StatusInternalServerError, "catalog refresh failed"))
			return
		}

		write(ctx, w, apiresponse.OK(RefreshStatus{
			RefreshedAt: snapshot.RefreshedAt,
			Collections: snapshot.Catalog.Len(),
			Fingerprint: snapshot.Fingerprint,
		}))
	}
}

// Pinger checks storage connectivity. *sql.DB satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthStatus is the payload of the health endpoint.
type HealthStatus struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

// HealthHandler reports service health. With a nil pinger the database is
// reported as disabled and the service is always healthy.
func HealthHandler(pinger Pinger, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if pinger == nil {
			write(ctx, w, apiresponse.OK(HealthStatus{Status: "healthy", Database: "disabled"}))
			return
		}

		pingCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if err := pinger.PingContext(pingCtx); err != nil {
			logging.FromContext(ctx).Error("health check failed",
				slog.String("error", err.Error()),
				slog.String("check", "database"),
			)
			write(ctx, w, apiresponse.Response[HealthStatus]{
				Data:    HealthStatus{Status: "unhealthy", Database: "failed"},
				Code:    http.StatusServiceUnavailable,
				Message: "unhealthy",
			})
			return
		}
		write(ctx, w, apiresponse.OK(HealthStatus{Status: "healthy", Database: "ok"}))
	}
}

func write[T any](ctx context.Context, w http.ResponseWriter, resp apiresponse.Response[T]) {
	if err := apiresponse.Write(w, resp); err != nil {
		logging.FromContext(ctx).Warn("failed to write response", slog.String("error", err.Error()))
	}
}
