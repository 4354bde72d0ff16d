// Package rpc serves the RAM index HTTP API.
package rpc

import (
	_ "embed"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/greymass/ramindex/libraries/logger"
	"github.com/greymass/ramindex/libraries/openapi"
	"github.com/greymass/ramindex/libraries/server"
	"github.com/greymass/ramindex/services/ramindex/internal/apierr"
	"github.com/greymass/ramindex/services/ramindex/internal/feed"
	"github.com/greymass/ramindex/services/ramindex/internal/ledger"
	"github.com/greymass/ramindex/services/ramindex/internal/metrics"
	"github.com/greymass/ramindex/services/ramindex/internal/query"
)

//go:embed openapi.yaml
var openapiYAML []byte

type Config struct {
	Version        string
	DebugEndpoints bool
	QueryTrace     bool
	RateLimitRPS   float64
	RateLimitBurst int
}

// FeedStatus reports the trace feed state; nil when the service is read-only.
type FeedStatus interface {
	Status() feed.Status
}

type Server struct {
	cfg       Config
	history   *query.History
	evaluator *query.Evaluator
	ledger    *ledger.Ledger
	feed      FeedStatus
	spec      *openapi.Spec

	mux          *http.ServeMux
	routes       []openapi.Route
	handler      http.Handler
	shuttingDown atomic.Bool
}

func New(cfg Config, history *query.History, evaluator *query.Evaluator, l *ledger.Ledger, fs FeedStatus) (*Server, error) {
	spec, err := openapi.Load(openapiYAML, cfg.Version)
	if err != nil {
		return nil, err
	}
	if !cfg.DebugEndpoints {
		if spec, err = spec.Filter(func(path string) bool { return !strings.HasPrefix(path, "/debug/") }); err != nil {
			return nil, err
		}
	}

	s := &Server{
		cfg:       cfg,
		history:   history,
		evaluator: evaluator,
		ledger:    l,
		feed:      fs,
		spec:      spec,
		mux:       http.NewServeMux(),
	}

	s.handle("/v1/ram/get_actions", s.handleGetActions, http.MethodGet, http.MethodPost)
	s.handle("/v1/ram/get_account_actions", s.handleGetAccountActions, http.MethodGet, http.MethodPost)
	s.handle("/v1/ram/evaluate", s.handleEvaluate, http.MethodGet, http.MethodPost)
	s.handle("/health", s.handleHealth, http.MethodGet)
	if cfg.DebugEndpoints {
		s.handle("/debug/snapshot", s.handleDebugSnapshot, http.MethodGet)
		s.handle("/debug/properties", s.handleDebugProperties, http.MethodGet)
	}
	s.mux.Handle("/openapi.json", spec.Handler())
	s.mux.Handle("/openapi.yaml", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-yaml")
		w.Write(spec.YAML())
	}))

	if err := s.validateRoutes(); err != nil {
		return nil, err
	}

	s.handler = s.mux
	if cfg.RateLimitRPS > 0 {
		s.handler = NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst).Middleware(s.mux)
	}
	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

// SetShuttingDown makes every API route answer 503.
func (s *Server) SetShuttingDown() {
	s.shuttingDown.Store(true)
}

func (s *Server) validateRoutes() error {
	result := s.spec.ValidateRoutes(s.routes, nil)
	if result.Valid {
		return nil
	}
	var errMsgs []string
	for _, missing := range result.MissingHandlers {
		errMsgs = append(errMsgs, "documented but not registered: "+missing)
	}
	for _, extra := range result.ExtraHandlers {
		errMsgs = append(errMsgs, "registered but not documented: "+extra)
	}
	sort.Strings(errMsgs)
	return fmt.Errorf("OpenAPI route validation failed:\n  %s", strings.Join(errMsgs, "\n  "))
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// handle registers fn for path, restricted to methods, with shutdown gating,
// panic recovery, request logging and metrics.
func (s *Server) handle(path string, fn http.HandlerFunc, methods ...string) {
	for _, m := range methods {
		s.routes = append(s.routes, openapi.Route{Method: m, Path: path})
	}

	s.mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("Panic in %s: %v", path, rec)
				writeError(sw, fmt.Errorf("internal error"))
			}
			duration := time.Since(start)
			metrics.RequestsTotal.WithLabelValues(path, fmt.Sprint(sw.status)).Inc()
			metrics.RequestDuration.WithLabelValues(path).Observe(duration.Seconds())
			logger.Printf("http", "%s %s %s - %d - %dms", clientIP(r), r.Method, r.URL.Path, sw.status, duration.Milliseconds())
		}()

		allowed := false
		for _, m := range methods {
			if r.Method == m {
				allowed = true
				break
			}
		}
		if !allowed {
			sw.Header().Set("Allow", strings.Join(methods, ", "))
			server.WriteError(sw, http.StatusMethodNotAllowed, string(apierr.KindBadRequest), "method not allowed")
			return
		}
		if s.shuttingDown.Load() {
			server.WriteError(sw, http.StatusServiceUnavailable, string(apierr.KindUnavailable), "service is shutting down")
			return
		}
		fn(sw, r)
	})
}

func writeJSON(w http.ResponseWriter, data any) {
	server.WriteJSON(w, http.StatusOK, data)
}

func writeError(w http.ResponseWriter, err error) {
	status := apierr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Printf("http", "ERROR: %v", err)
	}
	server.WriteError(w, status, string(apierr.KindOf(err)), apierr.Message(err))
}
