package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
	"github.com/sethvargo/go-limiter/httplimit"
	"github.com/sethvargo/go-limiter/memorystore"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/hushnetwork/node-cache/pkg/apierrors"
)

// CORS sets the headers needed for browser-based clients talking directly to
// the node, and short-circuits the preflight OPTIONS request.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Accept-Language, Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			return
		}
		next.ServeHTTP(w, r)
	})
}

// TraceID attaches a fresh trace id to the request logger and echoes it back
// as a response header.
func TraceID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.NewRandom()
		if err != nil {
			log.Warn().Err(err).Msg("failed to generate a trace id")
			next.ServeHTTP(w, r)
			return
		}
		logger := log.With().Str("traceId", id.String()).Logger()
		r = r.WithContext(logger.WithContext(r.Context()))
		w.Header().Set("Trace-ID", id.String())
		next.ServeHTTP(w, r)
	})
}

// WithLogging records a warning for every non-200 response, tagging it with
// the caller's IP address.
func WithLogging(h http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		clientIP, err := extractClientIP(r)
		if err != nil {
			log.Warn().Err(err).Msg("can't extract client ip")
		}
		r = r.WithContext(context.WithValue(r.Context(), ContextIPAddress, clientIP))

		logged := &statusCapturingWriter{ResponseWriter: rw}
		h.ServeHTTP(logged, r)

		if logged.statusCode != 0 && logged.statusCode != http.StatusOK {
			log.Ctx(r.Context()).Warn().
				Int("statusCode", logged.statusCode).
				Str("clientIP", clientIP).
				Msg("non-200 status code response")
		}
	})
}

type statusCapturingWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusCapturingWriter) WriteHeader(statusCode int) {
	w.ResponseWriter.WriteHeader(statusCode)
	w.statusCode = statusCode
}

// OtelHTTP wraps the handler with request-duration/count metrics tagged with
// operation.
func OtelHTTP(operation string) func(h http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		return otelhttp.NewHandler(h, operation)
	}
}

// RateLimiterConfig configures the default limiter plus, optionally, a
// per-JSON-RPC-method override applied only to requests against
// JSONRPCRoute.
type RateLimiterConfig struct {
	Default RateLimiterRouteConfig

	JSONRPCRoute        string
	JSONRPCMethodLimits map[string]RateLimiterRouteConfig
}

// RateLimiterRouteConfig bounds a route to MaxRPI requests per Interval.
type RateLimiterRouteConfig struct {
	MaxRPI   uint64
	Interval time.Duration
}

// RateLimitController builds a rate-limiting middleware keyed by the
// caller's IP address (there is no signed-request identity at this layer —
// every RPC takes its acting address as an explicit request field instead).
func RateLimitController(cfg RateLimiterConfig) (mux.MiddlewareFunc, error) {
	keyFunc := func(r *http.Request) (string, error) {
		return extractClientIP(r)
	}

	defaultRL, err := createRateLimiter(cfg.Default, keyFunc)
	if err != nil {
		return nil, fmt.Errorf("creating default rate limiter: %w", err)
	}
	customRLs := make(map[string]*httplimit.Middleware, len(cfg.JSONRPCMethodLimits))
	for method, routeCfg := range cfg.JSONRPCMethodLimits {
		customRLs[method], err = createRateLimiter(routeCfg, keyFunc)
		if err != nil {
			return nil, fmt.Errorf("creating custom rate limiter for method %s: %w", method, err)
		}
	}

	return func(next http.Handler) http.Handler {
		defaultHandler := defaultRL.Handle(next)
		customHandlers := make(map[string]http.Handler, len(customRLs))
		for method, rl := range customRLs {
			customHandlers[method] = rl.Handle(next)
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m := defaultHandler
			if r.URL.Path == cfg.JSONRPCRoute {
				body, err := io.ReadAll(r.Body)
				if err != nil {
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(apierrors.ServiceError{Message: "reading request body"})
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(body))

				var probe struct {
					Method string `json:"method"`
				}
				if err := json.Unmarshal(body, &probe); err == nil {
					if custom, ok := customHandlers[probe.Method]; ok {
						m = custom
					}
				}
			}
			m.ServeHTTP(w, r)
		})
	}, nil
}

func createRateLimiter(cfg RateLimiterRouteConfig, kf httplimit.KeyFunc) (*httplimit.Middleware, error) {
	store, err := memorystore.New(&memorystore.Config{Tokens: cfg.MaxRPI, Interval: cfg.Interval})
	if err != nil {
		return nil, fmt.Errorf("creating memory store: %w", err)
	}
	return httplimit.NewMiddleware(store, kf)
}

func extractClientIP(r *http.Request) (string, error) {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.Split(xff, ",")[0], nil
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "", fmt.Errorf("getting ip from remote addr: %w", err)
	}
	return ip, nil
}
