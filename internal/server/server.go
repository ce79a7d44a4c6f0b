package server

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dukerupert/gemloyalty/internal/analytics"
	"github.com/dukerupert/gemloyalty/internal/backup"
	"github.com/dukerupert/gemloyalty/internal/config"
	"github.com/dukerupert/gemloyalty/internal/handler"
	"github.com/dukerupert/gemloyalty/internal/ledger"
	"github.com/dukerupert/gemloyalty/internal/middleware"
	"github.com/dukerupert/gemloyalty/internal/store"
	ws "github.com/dukerupert/gemloyalty/internal/websocket"
)

// Events come from other museum systems, a handful of hosts; this only
// stops a runaway client.
const eventsPerMinutePerIP = 600

type Server struct {
	db             *sql.DB
	hub            *ws.Hub
	engine         *ledger.Engine
	refresher      *analytics.Refresher
	backups        *backup.Manager
	eventH         *handler.EventHandler
	accountH       *handler.AccountHandler
	referralH      *handler.ReferralHandler
	rewardH        *handler.RewardHandler
	analyticsH     *handler.AnalyticsHandler
	backupH        *handler.BackupHandler
	eventLimiter   *middleware.RateLimiter
	redeemLimiter  *middleware.RateLimiter
	adminTokenHash string
	originPatterns []string
	logger         *slog.Logger
}

func New(db *sql.DB, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	hub := ws.NewHub(logger.With("component", "websocket"))

	engine, err := ledger.NewEngine(db, cfg.Ledger, hub, logger.With("component", "ledger"))
	if err != nil {
		return nil, fmt.Errorf("create ledger engine: %w", err)
	}

	analyticsLogger := logger.With("component", "analytics")
	refresher := analytics.NewRefresher(analytics.NewAggregator(db), cfg.AnalyticsInterval, analyticsLogger)

	backups := backup.NewManager(cfg.Backup, db, logger.With("component", "backup"))

	httpLogger := logger.With("component", "http")
	redeemLimiter := middleware.NewRateLimiter(cfg.RedeemRateLimit, time.Minute)

	s := &Server{
		db:             db,
		hub:            hub,
		engine:         engine,
		refresher:      refresher,
		backups:        backups,
		eventH:         handler.NewEventHandler(engine, redeemLimiter, httpLogger),
		accountH:       handler.NewAccountHandler(engine, httpLogger),
		referralH:      handler.NewReferralHandler(engine, httpLogger),
		rewardH:        handler.NewRewardHandler(store.NewRewardStore(db), httpLogger),
		analyticsH:     handler.NewAnalyticsHandler(refresher, analyticsLogger),
		backupH:        handler.NewBackupHandler(backups, httpLogger),
		eventLimiter:   middleware.NewRateLimiter(eventsPerMinutePerIP, time.Minute),
		redeemLimiter:  redeemLimiter,
		adminTokenHash: cfg.AdminTokenHash,
		originPatterns: cfg.FeedOrigins,
		logger:         logger,
	}
	if s.adminTokenHash == "" {
		logger.Warn("LOYALTY_ADMIN_TOKEN_HASH not set, catalog admin routes are disabled")
	}
	return s, nil
}

func (s *Server) Engine() *ledger.Engine {
	return s.engine
}

func (s *Server) Refresher() *analytics.Refresher {
	return s.refresher
}

func (s *Server) Backups() *backup.Manager {
	return s.backups
}

// CleanupLimiters drops idle rate limit buckets.
func (s *Server) CleanupLimiters() {
	s.eventLimiter.Cleanup()
	s.redeemLimiter.Cleanup()
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /ws", ws.HandleFeed(s.hub, s.logger.With("component", "websocket"), s.originPatterns))

	// Inbound events
	mux.HandleFunc("POST /api/events/survey-completed", s.rateLimited(s.eventH.SurveyCompleted))
	mux.HandleFunc("POST /api/events/referral-completed", s.rateLimited(s.eventH.ReferralCompleted))
	mux.HandleFunc("POST /api/events/profile-completed", s.rateLimited(s.eventH.ProfileCompleted))
	mux.HandleFunc("POST /api/events/redemption-requested", s.rateLimited(s.eventH.RedemptionRequested))

	// Referrals
	mux.HandleFunc("POST /api/referrals", s.rateLimited(s.referralH.Invite))
	mux.HandleFunc("POST /api/referrals/{code}/complete", s.rateLimited(s.referralH.Complete))

	// Accounts
	mux.HandleFunc("POST /api/accounts/{id}/enroll", s.accountH.Enroll)
	mux.HandleFunc("GET /api/accounts/{id}/summary", s.accountH.Summary)
	mux.HandleFunc("GET /api/accounts/{id}/rewards", s.accountH.Rewards)
	mux.HandleFunc("GET /api/accounts/{id}/redemptions", s.accountH.Redemptions)
	mux.HandleFunc("GET /api/accounts/{id}/transactions", s.accountH.Transactions)
	mux.HandleFunc("GET /api/accounts/{id}/verify", s.accountH.Verify)
	mux.HandleFunc("GET /api/accounts/{id}/pending-referrals", s.accountH.PendingReferrals)

	// Catalog and reporting
	mux.HandleFunc("GET /api/rewards", s.rewardH.ListActive)
	mux.HandleFunc("GET /api/analytics", s.analyticsH.Get)

	// Staff catalog edits and backups
	adminMux := http.NewServeMux()
	adminMux.HandleFunc("GET /admin/rewards", s.rewardH.List)
	adminMux.HandleFunc("POST /admin/rewards", s.rewardH.Create)
	adminMux.HandleFunc("PUT /admin/rewards/{id}", s.rewardH.Update)
	adminMux.HandleFunc("POST /admin/rewards/{id}/active", s.rewardH.SetActive)
	adminMux.HandleFunc("DELETE /admin/rewards/{id}", s.rewardH.Delete)
	adminMux.HandleFunc("GET /admin/backups", s.backupH.List)
	adminMux.HandleFunc("GET /admin/backups/status", s.backupH.Status)
	adminMux.HandleFunc("POST /admin/backups", s.backupH.Run)
	mux.Handle("/admin/", middleware.RequireAdminToken(s.adminTokenHash)(adminMux))

	return middleware.RequestLogger(s.logger.With("component", "http"))(mux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if err := s.db.PingContext(r.Context()); err != nil {
		s.logger.Error("health check: database unreachable", "error", err)
		status, code = "database unavailable", http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{
		"status":       status,
		"feed_clients": s.hub.ClientCount(),
	})
}

func (s *Server) rateLimited(h http.HandlerFunc) http.HandlerFunc {
	return middleware.RateLimit(s.eventLimiter, middleware.RealIP)(h).ServeHTTP
}
