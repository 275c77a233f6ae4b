// Package http implements the REST API of the tuition hub: the public
// rate-limited balance query, the banking endpoints and the admin endpoints.
package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/campus-finance/tuition-hub/internal/application/command"
	"github.com/campus-finance/tuition-hub/internal/application/query"
	"github.com/campus-finance/tuition-hub/internal/domain/ratelimit"
	"github.com/campus-finance/tuition-hub/internal/interface/http/handlers"
	"github.com/campus-finance/tuition-hub/pkg/logger"
)

// Config contains HTTP server configuration.
type Config struct {
	Host string
	Port int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// RequestTimeout bounds each handler's context.
	RequestTimeout time.Duration

	// MaxRequestBytes caps JSON bodies; MaxUploadBytes caps batch CSV files.
	MaxRequestBytes int64
	MaxUploadBytes  int64

	// RateLimitEndpoint identifies the gated endpoint in counter keys.
	RateLimitEndpoint string

	Version string
}

func DefaultConfig() Config {
	return Config{
		Host:              "0.0.0.0",
		Port:              8080,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		RequestTimeout:    20 * time.Second,
		MaxRequestBytes:   1 << 20,
		MaxUploadBytes:    10 << 20,
		RateLimitEndpoint: "/api/v1/tuition/query",
		Version:           "v1",
	}
}

func (c Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Dependencies are the application handlers the routes call into.
type Dependencies struct {
	UpsertTuition *command.UpsertTuitionHandler
	ApplyPayment  *command.ApplyPaymentHandler
	ImportBatch   *command.ImportBatchHandler

	GetBalance      *query.GetBalanceHandler
	ListOutstanding *query.ListOutstandingHandler
	GetPayments     *query.GetPaymentsHandler

	// Limiter gates the public balance query only. Nil disables the quota.
	Limiter *ratelimit.Limiter

	Logger *logger.Logger
	// Health backs /health and /ready. Nil reports healthy.
	Health handlers.Reporter
}

// Server owns the routes and the underlying http.Server.
type Server struct {
	config  Config
	deps    Dependencies
	logger  *logger.Logger
	handler http.Handler
	srv     *http.Server
	started time.Time
}

func NewServer(config Config, deps Dependencies) *Server {
	def := DefaultConfig()
	if config.MaxRequestBytes <= 0 {
		config.MaxRequestBytes = def.MaxRequestBytes
	}
	if config.MaxUploadBytes <= 0 {
		config.MaxUploadBytes = def.MaxUploadBytes
	}
	if config.RateLimitEndpoint == "" {
		config.RateLimitEndpoint = def.RateLimitEndpoint
	}

	s := &Server{config: config, deps: deps, logger: deps.Logger, started: time.Now()}
	if s.logger == nil {
		s.logger = logger.Default()
	}

	s.handler = handlers.Wrap(s.routes(),
		s.withRequestID,
		s.withRecovery,
		s.withAccessLog,
		handlers.SecurityHeaders,
		handlers.Deadline(config.RequestTimeout),
		handlers.LimitBody(config.MaxRequestBytes, func(r *http.Request) bool {
			return r.URL.Path == batchPath
		}),
	)
	s.srv = &http.Server{
		Addr:              config.Address(),
		Handler:           s.handler,
		ReadTimeout:       config.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      config.WriteTimeout,
		IdleTimeout:       config.IdleTimeout,
	}
	return s
}

// Handler is the fully wrapped handler.
func (s *Server) Handler() http.Handler { return s.handler }

// Uptime is measured from NewServer.
func (s *Server) Uptime() time.Duration { return time.Since(s.started) }

// Start serves until Shutdown. A clean shutdown returns nil.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", logger.String("address", s.srv.Addr))
	if err := s.srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests
// until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.srv.Shutdown(ctx)
}

const batchPath = "/api/v1/admin/tuition/batch"

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)

	// Public, rate limited
	mux.HandleFunc("GET /api/v1/tuition/query/{studentNo}", s.handleQueryTuition)

	// Banking
	mux.HandleFunc("GET /api/v1/banking/tuition/{studentNo}", s.handleBankingTuition)
	mux.HandleFunc("POST /api/v1/banking/pay", s.handlePay)
	mux.HandleFunc("GET /api/v1/banking/payments/{studentNo}/{term}", s.handlePayments)

	// Admin
	mux.HandleFunc("POST /api/v1/admin/tuition", s.handleAddTuition)
	mux.HandleFunc("POST "+batchPath, s.handleBatchUpload)
	mux.HandleFunc("GET /api/v1/admin/unpaid/{term}", s.handleUnpaid)
	return mux
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

type requestIDKey struct{}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// withRequestID honours an incoming X-Request-ID and otherwise mints a UUID.
// The id is echoed in the response and attached to the request logger.
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)

		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		ctx = logger.WithContext(ctx, s.logger.WithRequestID(id))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			logger.FromContext(r.Context()).Error("panic recovered",
				logger.Any("error", rec),
				logger.String("stack", string(debug.Stack())),
				logger.String("path", r.URL.Path),
			)
			writeAPIError(w, r, http.StatusInternalServerError, codeInternal, "An unexpected error occurred", nil)
		}()
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (s *Server) withAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		begin := time.Now()
		sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sr, r)

		logger.FromContext(r.Context()).Info("http request",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status", sr.status),
			logger.Latency(time.Since(begin)),
			logger.String("ip", clientIP(r)),
		)
	})
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
