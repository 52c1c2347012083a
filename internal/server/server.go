package server

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/rumor-ml/commons.systems/pjledger/internal/handlers"
	"github.com/rumor-ml/commons.systems/pjledger/internal/middleware"
)

// Deps are the services the API serves.
type Deps struct {
	Reports     handlers.Reports
	Importer    handlers.Importer
	Settlements handlers.Settlements
	Verifier    middleware.TokenVerifier
	Logger      zerolog.Logger

	RateLimitRPS   float64
	RateLimitBurst int
	AllowedOrigin  string
}

// Server represents the ledger API server
type Server struct {
	deps Deps
	mux  *http.ServeMux
}

// New creates a new server instance
func New(deps Deps) *Server {
	s := &Server{
		deps: deps,
		mux:  http.NewServeMux(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	// Health check (no auth required)
	s.mux.HandleFunc("GET /health", handlers.HealthCheck)

	api := handlers.NewAPIHandler(s.deps.Reports, s.deps.Importer, s.deps.Settlements)
	auth := middleware.NewAuthMiddleware(s.deps.Verifier)
	protect := func(h http.HandlerFunc) http.Handler {
		return auth.RequireAuth(h)
	}

	// Reports
	s.mux.Handle("GET /api/reports/cost-tree", protect(api.GetCostTree))
	s.mux.Handle("GET /api/reports/cash-flow", protect(api.GetCashFlow))
	s.mux.Handle("GET /api/reports/insights", protect(api.GetInsights))

	// Ingestion and classification
	s.mux.Handle("POST /api/imports", protect(api.Import))
	s.mux.Handle("PUT /api/transactions/{id}/classification", protect(api.Reclassify))

	// Sales and reconciliation
	s.mux.Handle("POST /api/sales", protect(api.CreateSale))
	s.mux.Handle("GET /api/sales/{saleID}/legs/{legID}/suggestions", protect(api.GetSuggestions))
	s.mux.Handle("POST /api/sales/{saleID}/legs/{legID}/matches", protect(api.ConfirmMatch))
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	limiter := middleware.NewRateLimiter(s.deps.RateLimitRPS, s.deps.RateLimitBurst)

	var handler http.Handler = s.mux
	handler = limiter.Limit(handler)
	handler = middleware.CORS(s.deps.AllowedOrigin)(handler)
	handler = middleware.Logging(s.deps.Logger)(handler)
	return handler
}
