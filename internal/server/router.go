package server

import (
	"net/http"
	"strings"

	"github.com/klauspost/compress/gzhttp"

	"github.com/watzon/lambdev/internal/metrics"
	"github.com/watzon/lambdev/internal/server/handlers"
)

const functionURLPrefix = "/lambda-url/"

// Router dispatches to the Lambda APIs, function URLs and the dev API.
// Function URLs accept any path, which would overlap the Runtime API's
// /{function}/... patterns, so they live on their own mux.
type Router struct {
	server      *Server
	mux         *http.ServeMux
	urls        *http.ServeMux
	middlewares []Middleware
	handler     http.Handler
}

type Middleware func(http.Handler) http.Handler

func NewRouter(srv *Server) *Router {
	r := &Router{
		server: srv,
		mux:    http.NewServeMux(),
		urls:   http.NewServeMux(),
	}

	r.setupMiddleware()
	r.setupRoutes()
	r.handler = r.chain(http.HandlerFunc(r.dispatch))

	return r
}

func (r *Router) setupMiddleware() {
	r.Use(RecoveryMiddleware)
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)

	if r.server.cfg.Metrics.Enabled {
		r.Use(MetricsMiddleware(r.server.cfg.Metrics.Path))
	}

	if r.server.cfg.Server.CORS.Enabled {
		r.Use(CORSMiddleware(r.server.cfg.Server.CORS))
	}
}

func (r *Router) Use(mw Middleware) {
	r.middlewares = append(r.middlewares, mw)
}

func (r *Router) setupRoutes() {
	srv := r.server
	maxBody := srv.cfg.Server.MaxBodySize

	rt := handlers.NewRuntimeHandlers(srv.scheduler, maxBody, srv.invoker.Timeout)
	r.mux.HandleFunc("GET /{function}/2018-06-01/runtime/invocation/next", rt.Next)
	r.mux.HandleFunc("POST /{function}/2018-06-01/runtime/invocation/{id}/response", rt.Response)
	r.mux.HandleFunc("POST /{function}/2018-06-01/runtime/invocation/{id}/error", rt.Error)
	r.mux.HandleFunc("POST /{function}/2018-06-01/runtime/init/error", rt.InitError)

	invoke := handlers.NewInvokeHandlers(srv.invoker, srv.cfg.Functions.Version, maxBody)
	r.mux.HandleFunc("POST /2015-03-31/functions/{function}/invocations", invoke.Invoke)

	urls := handlers.NewURLHandlers(srv.invoker, srv.cfg.Functions.AccountID, maxBody)
	r.urls.HandleFunc(functionURLPrefix+"{function}", urls.Serve)
	r.urls.HandleFunc(functionURLPrefix+"{function}/{path...}", urls.Serve)

	health := handlers.NewHealthHandlers(srv.db, srv.scheduler, srv.catalog, srv.version)
	r.mux.HandleFunc("GET /{$}", health.Health)
	r.mux.HandleFunc("GET /health", health.Health)

	dev := handlers.NewDevHandlers(srv.scheduler, srv.catalog, srv.invoker, srv.history, srv.triggers, srv.version)
	if srv.watcher != nil {
		dev.OnRefresh(srv.watcher.Refresh)
	}
	r.mux.Handle("GET /_lambdev/status", gzip(dev.Status))
	r.mux.Handle("GET /_lambdev/stats", gzip(health.Stats))
	r.mux.Handle("GET /_lambdev/functions", gzip(dev.ListFunctions))
	r.mux.HandleFunc("POST /_lambdev/functions/refresh", dev.RefreshCatalog)
	r.mux.HandleFunc("POST /_lambdev/functions/{function}/reload", dev.ReloadFunction)
	r.mux.Handle("GET /_lambdev/invocations", gzip(dev.ListInvocations))
	r.mux.Handle("GET /_lambdev/invocations/{id}", gzip(dev.GetInvocation))
	r.mux.HandleFunc("POST /_lambdev/schedules/{name}/fire", dev.FireSchedule)

	ev := handlers.NewEventsHandler(srv.bus)
	r.mux.HandleFunc("GET /_lambdev/events", ev.HandleWebSocket)

	if srv.cfg.Metrics.Enabled {
		r.mux.Handle("GET "+srv.cfg.Metrics.Path, metrics.Handler())
	}
}

func gzip(fn handlers.HandlerFunc) http.Handler {
	return gzhttp.GzipHandler(http.HandlerFunc(fn))
}

func (r *Router) dispatch(w http.ResponseWriter, req *http.Request) {
	if strings.HasPrefix(req.URL.Path, functionURLPrefix) {
		r.urls.ServeHTTP(w, req)
		return
	}
	r.mux.ServeHTTP(w, req)
}

func (r *Router) chain(handler http.Handler) http.Handler {
	for i := len(r.middlewares) - 1; i >= 0; i-- {
		handler = r.middlewares[i](handler)
	}
	return handler
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.handler.ServeHTTP(w, req)
}
