package api

import (
	"net/http"
	"time"

	"options-core/internal/approval"
	"options-core/internal/authz"
	"options-core/internal/events"
	"options-core/internal/ledger"
	"options-core/internal/monitor"
	"options-core/internal/settings"
	"options-core/internal/settlement"
	"options-core/pkg/db"

	"github.com/gin-gonic/gin"
)

// Server wires HTTP endpoints around the domain services.
type Server struct {
	Router    *gin.Engine
	Bus       *events.Bus
	DB        *db.Database
	Ledger    *ledger.Ledger
	Engine    *settlement.Engine
	Approvals *approval.Service
	Settings  *settings.Store
	Metrics   *monitor.SystemMetrics
	JWTSecret string
}

func NewServer(bus *events.Bus, database *db.Database, lgr *ledger.Ledger, engine *settlement.Engine, approvals *approval.Service, st *settings.Store, metrics *monitor.SystemMetrics, jwtSecret string) *Server {
	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())              // Panic recovery (first)
	r.Use(RequestIDMiddleware())       // Request ID tracking
	r.Use(RequestLogger(metrics))      // Request logging (after ID is set)
	r.Use(RateLimitMiddleware())       // Rate limiting
	// Security headers handled by Nginx
	r.Use(TimeoutMiddleware(30 * time.Second)) // Request timeout (30s)
	r.Use(CORSMiddleware())                    // CORS (last before routes)

	s := &Server{
		Router:    r,
		Bus:       bus,
		DB:        database,
		Ledger:    lgr,
		Engine:    engine,
		Approvals: approvals,
		Settings:  st,
		Metrics:   metrics,
		JWTSecret: jwtSecret,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocket)

	api := s.Router.Group("/api")
	{
		// Auth endpoints (no auth required)
		auth := api.Group("/auth")
		{
			auth.POST("/register", s.registerUser)
			auth.POST("/login", s.loginUser)
		}

		// Authenticated user surface
		protected := api.Group("")
		protected.Use(AuthMiddleware(s.JWTSecret))
		{
			protected.GET("/balance", s.getBalance)
			protected.GET("/tiers", s.getTiers)
			protected.GET("/trades", s.getTrades)
			protected.POST("/trades", s.openTrade)
			protected.POST("/withdrawals", s.requestWithdrawal)
			protected.POST("/deposits", s.submitDeposit)
		}

		// Admin surface; each route names the capability it requires.
		admin := api.Group("/admin")
		admin.Use(AuthMiddleware(s.JWTSecret))
		{
			admin.POST("/trades/manual-control",
				RequireAction(authz.ActionManualTradeControl), s.manualTradeControl)

			admin.GET("/withdrawals",
				RequireAction(authz.ActionReviewWithdrawal), s.listPendingWithdrawals)
			admin.POST("/withdrawals/approve",
				RequireAction(authz.ActionReviewWithdrawal), s.approveWithdrawal)
			admin.POST("/withdrawals/reject",
				RequireAction(authz.ActionReviewWithdrawal), s.rejectWithdrawal)

			admin.POST("/deposits/approve",
				RequireAction(authz.ActionReviewDeposit), s.approveDeposit)
			admin.POST("/deposits/reject",
				RequireAction(authz.ActionReviewDeposit), s.rejectDeposit)

			admin.GET("/global-trade-settings",
				RequireAction(authz.ActionReadSettings), s.getTradeSettings)
			admin.POST("/global-trade-settings",
				RequireAction(authz.ActionWriteSettings), s.updateTradeSettings)

			admin.POST("/settle-expired",
				RequireAction(authz.ActionTriggerSweep), s.settleExpired)
			admin.GET("/metrics",
				RequireAction(authz.ActionReadMetrics), s.getMetrics)
		}
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) Start(addr string) error {
	return s.Router.Run(addr)
}
