// Package api provides the HTTP API server for the price normalizer
// Exposes normalization, conversion and reference lookups
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/didip/tollbooth/v8"
	"github.com/didip/tollbooth/v8/limiter"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"subscription-cost/decision/input"
	"subscription-cost/decision/normalize"
	"subscription-cost/decision/policy"
	"subscription-cost/decision/rates"
	perrors "subscription-cost/pkg/errors"
	"subscription-cost/pkg/platform"
)

// RateSource supplies the current rate table
type RateSource interface {
	Latest(ctx context.Context) (rates.Table, error)
}

// Pinger reports backend readiness
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the HTTP API server
type Server struct {
	httpServer   *http.Server
	engine       *normalize.Engine
	policyEngine *policy.Engine
	rates        RateSource
	store        Pinger
	config       *Config
	logger       zerolog.Logger
}

// Config holds server configuration
type Config struct {
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestSize int64
	CORSOrigins    []string
	RateLimit      float64  // requests per second per client on /api
	APIKeys        []string // required in X-API-Key on /api when set
}

// DefaultConfig returns default server configuration
func DefaultConfig() *Config {
	return &Config{
		Port:           8080,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   60 * time.Second,
		MaxRequestSize: 10 * 1024 * 1024, // 10MB
		CORSOrigins:    []string{"*"},
		RateLimit:      5,
	}
}

// NewServer creates a new API server
func NewServer(engine *normalize.Engine, source RateSource, config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	if engine == nil {
		engine = normalize.NewEngine(nil)
	}

	return &Server{
		engine:       engine,
		policyEngine: policy.NewEngine(),
		rates:        source,
		config:       config,
		logger:       zerolog.Nop(),
	}
}

// WithStore makes /ready depend on an archive backend
func (s *Server) WithStore(p Pinger) *Server {
	s.store = p
	return s
}

// WithPolicyEngine replaces the default quality policies
func (s *Server) WithPolicyEngine(p *policy.Engine) *Server {
	s.policyEngine = p
	return s
}

// WithLogger sets the request logger
func (s *Server) WithLogger(l zerolog.Logger) *Server {
	s.logger = l
	return s
}

// Router builds the route tree with middleware applied
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.loggingMiddleware)

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)

	lmt := tollbooth.NewLimiter(s.config.RateLimit, &limiter.ExpirableOptions{DefaultExpirationTTL: time.Hour})
	lmt.SetIPLookup(limiter.IPLookup{Name: "RemoteAddr"})
	lmt.SetMessageContentType("application/json")
	lmt.SetMessage(`{"error":"rate limit exceeded"}`)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler { return tollbooth.LimitHandler(lmt, next) })
		r.Use(platform.APIKeyMiddleware(s.config.APIKeys))
		r.Get("/countries", s.handleCountries)
		r.Get("/convert", s.handleConvert)
		r.Post("/normalize", s.handleNormalize)
	})

	c := cors.New(cors.Options{
		AllowedOrigins: s.config.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", platform.APIKeyHeader},
		MaxAge:         86400,
	})
	return c.Handler(r)
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.Router(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info().Int("port", s.config.Port).Msg("API server starting")
	return s.httpServer.ListenAndServe()
}

// StartWithGracefulShutdown starts server with graceful shutdown handling
func (s *Server) StartWithGracefulShutdown() error {
	errChan := make(chan error, 1)
	go func() {
		if err := s.Start(); err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case <-quit:
		s.logger.Info().Msg("shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(ctx)
	}
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote", r.RemoteAddr).
			Str("request_id", middleware.GetReqID(r.Context())).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

// =============================================================================
// HEALTH ENDPOINTS
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "1.0.0",
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := s.store.Ping(ctx); err != nil {
			s.jsonError(w, http.StatusServiceUnavailable, "database not ready")
			return
		}
	}

	s.jsonResponse(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}

// =============================================================================
// REFERENCE ENDPOINTS
// =============================================================================

type countryResponse struct {
	Code        string `json:"code"`
	DisplayName string `json:"display_name"`
	Currency    string `json:"currency"`
	Symbol      string `json:"symbol"`
}

func (s *Server) handleCountries(w http.ResponseWriter, r *http.Request) {
	lang := r.URL.Query().Get("lang")
	profiles := s.engine.Reference().Countries()

	resp := make([]countryResponse, len(profiles))
	for i, p := range profiles {
		resp[i] = countryResponse{
			Code:        p.Code,
			DisplayName: p.DisplayName(lang),
			Currency:    p.Currency,
			Symbol:      p.Symbol,
		}
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

// =============================================================================
// CONVERSION ENDPOINTS
// =============================================================================

type convertResponse struct {
	Amount    string `json:"amount"`
	From      string `json:"from"`
	To        string `json:"to"`
	Converted string `json:"converted"`
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	amount, err := decimal.NewFromString(q.Get("amount"))
	if err != nil || amount.IsNegative() {
		s.jsonError(w, http.StatusBadRequest, "amount must be a non-negative number")
		return
	}
	from := strings.ToUpper(q.Get("from"))
	to := strings.ToUpper(q.Get("to"))
	if to == "" {
		to = rates.ReportingCurrency
	}
	if from == "" {
		s.jsonError(w, http.StatusBadRequest, "from is required")
		return
	}

	table, err := s.latestRates(r.Context())
	if err != nil {
		s.jsonError(w, http.StatusBadGateway, fmt.Sprintf("exchange rates unavailable: %v", err))
		return
	}
	converted, ok := table.Convert(amount, from, to)
	if !ok {
		s.jsonError(w, http.StatusUnprocessableEntity, fmt.Sprintf("no rate for %s to %s", from, to))
		return
	}

	s.jsonResponse(w, http.StatusOK, convertResponse{
		Amount:    amount.String(),
		From:      from,
		To:        to,
		Converted: converted.StringFixed(2),
	})
}

// =============================================================================
// NORMALIZE ENDPOINTS
// =============================================================================

// NormalizeRequest carries a scrape set and optional rates
type NormalizeRequest struct {
	Prices  json.RawMessage `json:"prices"`
	Rates   json.RawMessage `json:"rates,omitempty"`
	Keyword string          `json:"keyword,omitempty"`
}

// NormalizeResponse wraps the report with run metadata
type NormalizeResponse struct {
	Report      *normalize.Report        `json:"report"`
	Stats       normalize.Stats          `json:"stats"`
	Diagnostics []*perrors.Diagnostic    `json:"diagnostics"`
	Policy      *policy.EvaluationResult `json:"policy"`
}

func (s *Server) handleNormalize(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)

	var req NormalizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}
	if len(req.Prices) == 0 {
		s.jsonError(w, http.StatusBadRequest, "prices is required")
		return
	}

	countries, err := input.ParseScrapeSet(bytes.NewReader(req.Prices))
	if err != nil {
		s.jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	var table rates.Table
	if len(req.Rates) > 0 {
		feed, err := input.ParseRates(bytes.NewReader(req.Rates))
		if err == nil {
			table, err = rates.FromFloats(feed)
		}
		if err != nil {
			s.jsonError(w, http.StatusBadRequest, err.Error())
			return
		}
	} else {
		if table, err = s.latestRates(ctx); err != nil {
			s.jsonError(w, http.StatusBadGateway, fmt.Sprintf("exchange rates unavailable: %v", err))
			return
		}
	}

	result, err := s.engine.Run(ctx, normalize.Input{Countries: countries, Rates: table, Keyword: req.Keyword})
	if err != nil {
		s.jsonError(w, http.StatusInternalServerError, fmt.Sprintf("normalization failed: %v", err))
		return
	}

	decision, err := s.policyEngine.Evaluate(ctx, result)
	if err != nil {
		s.jsonError(w, http.StatusInternalServerError, fmt.Sprintf("policy evaluation failed: %v", err))
		return
	}

	s.jsonResponse(w, http.StatusOK, NormalizeResponse{
		Report:      result.Report,
		Stats:       result.Stats,
		Diagnostics: result.Diagnostics,
		Policy:      decision,
	})
}

func (s *Server) latestRates(ctx context.Context) (rates.Table, error) {
	if s.rates == nil {
		return rates.Table{}, fmt.Errorf("no rate source configured")
	}
	return s.rates.Latest(ctx)
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn().Err(err).Msg("failed to write response")
	}
}

func (s *Server) jsonError(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{
		"error": message,
	})
}
