package adminapi

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/relaymesh/conduit/internal/admin"
	"github.com/relaymesh/conduit/internal/config"
)

const maxBodyBytes = 1 << 20

var (
	promOnce        sync.Once
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
)

func promVecs() (*prometheus.CounterVec, *prometheus.HistogramVec) {
	promOnce.Do(func() {
		requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "conduit_admin_http_requests_total",
			Help: "Admin API requests by route pattern and status code.",
		}, []string{"method", "route", "status"})
		requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "conduit_admin_http_request_duration_seconds",
			Help:    "Admin API request latency by route pattern.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"})
		prometheus.MustRegister(requestsTotal, requestDuration)
	})
	return requestsTotal, requestDuration
}

// Router serves the admin REST surface plus the WS and SSE event streams.
// Mount it at the admin base path.
type Router struct {
	admin    *admin.AdminCore
	cfg      *config.Config
	basePath string
	version  string
	started  time.Time
	routes   []compiledRoute
}

// NewRouter builds the router over an admin core. cfg is read for the
// sanitized config view and the WS settings.
func NewRouter(cfg *config.Config, core *admin.AdminCore, version string) *Router {
	r := &Router{
		admin:    core,
		cfg:      cfg,
		basePath: cfg.AdminBasePath(),
		version:  version,
		started:  time.Now(),
	}
	for _, route := range r.routeTable() {
		r.routes = append(r.routes, compile(route))
	}
	return r
}

// BasePath returns the mount prefix, e.g. "/admin/api/v1".
func (r *Router) BasePath() string { return r.basePath }

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().
				Interface("error", rec).
				Str("path", req.URL.Path).
				Bytes("stack", debug.Stack()).
				Msg("Panic recovered in admin handler")
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		}
	}()

	path := strings.TrimPrefix(req.URL.Path, r.basePath)
	if path == "" {
		path = "/"
	}

	// Streaming surfaces need the raw connection and bypass the table.
	switch path {
	case r.cfg.Admin.WS.Path:
		if r.cfg.Admin.WS.Enabled {
			r.serveWS(w, req)
			return
		}
	case "/events":
		r.serveSSE(w, req)
		return
	case "/prometheus":
		if !r.authenticate(w, req) {
			return
		}
		promhttp.Handler().ServeHTTP(w, req)
		return
	}

	r.dispatch(w, req, path)
}

func (r *Router) dispatch(w http.ResponseWriter, req *http.Request, path string) {
	start := time.Now()
	route, params, status := r.matchRoute(req.Method, path)
	if route == nil {
		writeJSON(w, status, map[string]string{"error": http.StatusText(status)})
		return
	}

	ctx := &Ctx{
		Admin:  r.admin,
		Params: params,
		Query:  req.URL.Query(),
	}

	if route.RequiresAuth {
		ctx.Auth = r.admin.Auth.AuthenticateRequest(req.Header)
		if !ctx.Auth.Valid {
			r.finish(w, req, route, start, Result{
				Status: http.StatusUnauthorized,
				Body:   map[string]string{"error": "unauthorized"},
			})
			return
		}
		if ctx.Auth.Role == admin.RoleViewer && req.Method != http.MethodGet {
			r.finish(w, req, route, start, Result{
				Status: http.StatusForbidden,
				Body:   map[string]string{"error": "forbidden"},
			})
			return
		}
	}

	if req.Method != http.MethodGet {
		body, ok := r.readBody(w, req)
		if !ok {
			return
		}
		ctx.Body = body
	}

	r.finish(w, req, route, start, route.Handler(ctx))
}

// matchRoute finds the first route matching method and path. A path that
// matches some route but with no method agreement yields 405.
func (r *Router) matchRoute(method, path string) (*compiledRoute, map[string]string, int) {
	pathKnown := false
	for i := range r.routes {
		route := &r.routes[i]
		params, ok := route.match(path)
		if !ok {
			continue
		}
		pathKnown = true
		if route.Method == method {
			return route, params, 0
		}
	}
	if pathKnown {
		return nil, nil, http.StatusMethodNotAllowed
	}
	return nil, nil, http.StatusNotFound
}

// readBody enforces the size cap and the JSON content type on mutating
// requests that carry a body.
func (r *Router) readBody(w http.ResponseWriter, req *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, req.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "request body too large"})
		return nil, false
	}
	if len(body) > 0 {
		ct, _, _ := mime.ParseMediaType(req.Header.Get("Content-Type"))
		if ct != "application/json" {
			writeJSON(w, http.StatusUnsupportedMediaType, map[string]string{"error": "Content-Type must be application/json"})
			return nil, false
		}
	}
	return body, true
}

func (r *Router) finish(w http.ResponseWriter, req *http.Request, route *compiledRoute, start time.Time, res Result) {
	if res.Status == 0 {
		res.Status = http.StatusOK
	}
	for k, v := range res.Headers {
		w.Header().Set(k, v)
	}
	writeJSON(w, res.Status, res.Body)

	counter, duration := promVecs()
	counter.WithLabelValues(req.Method, route.Path, strconv.Itoa(res.Status)).Inc()
	duration.WithLabelValues(req.Method, route.Path).Observe(time.Since(start).Seconds())
}

// authenticate runs header auth for the surfaces outside the route table.
func (r *Router) authenticate(w http.ResponseWriter, req *http.Request) bool {
	res := r.admin.Auth.AuthenticateRequest(req.Header)
	if !res.Valid {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Debug().Err(err).Msg("Failed to encode admin response")
	}
}
