package transport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/gorilla/mux"
)

// Router wraps gorilla/mux the way the teacher's own router does: a get/post
// subrouter per path, with per-route middleware chains plus a global chain
// applied to everything.
type Router struct {
	r *mux.Router
}

func newRouter() *Router {
	r := mux.NewRouter()
	r.PathPrefix("/").Methods(http.MethodOptions)
	return &Router{r: r}
}

func (ro *Router) get(uri string, f http.HandlerFunc, mid ...mux.MiddlewareFunc) {
	sub := ro.r.Path(uri).Subrouter()
	sub.HandleFunc("", f).Methods(http.MethodGet)
	sub.Use(mid...)
}

func (ro *Router) post(uri string, f http.HandlerFunc, mid ...mux.MiddlewareFunc) {
	sub := ro.r.Path(uri).Subrouter()
	sub.HandleFunc("", f).Methods(http.MethodPost)
	sub.Use(mid...)
}

func (ro *Router) use(mid ...mux.MiddlewareFunc) {
	ro.r.Use(mid...)
}

// Handler returns the configured router as an http.Handler.
func (ro *Router) Handler() http.Handler {
	return ro.r
}

// Config tunes the rate limiter applied to every inbound RPC.
type Config struct {
	MaxRequestsPerInterval uint64
	RateLimitInterval      time.Duration
}

// ConfiguredRouter builds the fully wired HTTP entry point: CORS and
// trace-id on every route, then JSON-RPC dispatch over every RPC exposed by
// svc, rate-limited and instrumented via otelhttp, plus a liveness probe.
func ConfiguredRouter(svc orchestrator, cfg Config) (*Router, error) {
	rpcService := NewRPCService(svc)
	server := rpc.NewServer()
	if err := server.RegisterName("node", rpcService); err != nil {
		return nil, fmt.Errorf("registering json-rpc service: %w", err)
	}

	rateLim, err := RateLimitController(RateLimiterConfig{
		Default: RateLimiterRouteConfig{
			MaxRPI:   cfg.MaxRequestsPerInterval,
			Interval: cfg.RateLimitInterval,
		},
		JSONRPCRoute: "/rpc",
	})
	if err != nil {
		return nil, fmt.Errorf("creating rate limit controller: %w", err)
	}

	router := newRouter()
	router.use(CORS, TraceID)

	router.post("/rpc", func(w http.ResponseWriter, r *http.Request) {
		server.ServeHTTP(w, r)
	}, WithLogging, OtelHTTP("rpc"), rateLim)

	router.get("/healthz", healthHandler)
	router.get("/health", healthHandler)

	return router, nil
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
