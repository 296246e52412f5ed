// Package api exposes the decision engine over HTTP.
//
// Endpoints:
//
//	GET  /health               health check
//	POST /tickets/{id}/approve run the review for a ticket (?async=true hands
//	                           it to the worker Lambda and returns 202)
//
// The handler is served through API Gateway HTTP API v2, so the caller's
// identity comes from the JWT authorizer claims attached to the request
// context.
package api

import (
	"context"
	"net/http"
	"time"

	lambdasvc "github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/go-chi/chi/v5"

	"github.com/fpang/ticket-decision-engine/internal/review"
)

// Processor runs one ticket through the engine.
type Processor interface {
	ProcessTicket(ctx context.Context, ticketID string, user *review.UserContext) review.Result
}

// InvokeAPI is the subset of the Lambda client used for async dispatch.
type InvokeAPI interface {
	Invoke(ctx context.Context, params *lambdasvc.InvokeInput, optFns ...func(*lambdasvc.Options)) (*lambdasvc.InvokeOutput, error)
}

// ClaimsFunc extracts JWT claims from a request.
type ClaimsFunc func(r *http.Request) map[string]string

// Server holds the dependencies of the HTTP API.
type Server struct {
	router      *chi.Mux
	engine      Processor
	invoker     InvokeAPI
	workerARN   string
	corsOrigins []string
	claims      ClaimsFunc
	startTime   time.Time
}

// Option configures the Server.
type Option func(*Server)

// WithWorker enables ?async=true by dispatching to the worker Lambda.
func WithWorker(inv InvokeAPI, workerARN string) Option {
	return func(s *Server) {
		s.invoker = inv
		s.workerARN = workerARN
	}
}

// WithCORSOrigins sets allowed CORS origins (default "*").
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) { s.corsOrigins = origins }
}

// WithClaims overrides where JWT claims are read from.
func WithClaims(f ClaimsFunc) Option {
	return func(s *Server) { s.claims = f }
}

// NewServer builds a Server around engine.
func NewServer(engine Processor, opts ...Option) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		engine:      engine,
		corsOrigins: []string{"*"},
		claims:      GatewayClaims,
		startTime:   time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// asyncEnabled reports whether async dispatch is configured.
func (s *Server) asyncEnabled() bool {
	return s.invoker != nil && s.workerARN != ""
}

// Routes returns the configured http.Handler.
func (s *Server) Routes() http.Handler {
	r := s.router
	r.Use(withRequestID)
	r.Use(withRecover)
	r.Use(withMetrics)
	r.Use(CORSMiddleware(s.corsOrigins))

	r.Get("/health", s.handleHealth)
	r.Post("/tickets/{id}/approve", s.handleApprove)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}
