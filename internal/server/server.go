package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/alexedwards/scs/v2"
	"gorm.io/gorm"

	"recipecost/internal/costing"
	"recipecost/internal/handlers"
	applog "recipecost/internal/log"
	"recipecost/internal/metrics"
	"recipecost/internal/recipes"
	"recipecost/internal/store"
)

// Config captures the runtime configuration for the HTTP server.
type Config struct {
	Addr     string
	Session  SessionConfig
	Database *gorm.DB
	// Rates are used until hourly rates are stored through the settings API.
	Rates costing.Rates
}

// SessionConfig controls the cookie of the import session.
type SessionConfig struct {
	Lifetime     time.Duration
	CookieName   string
	CookieDomain string
	CookieSecure bool
}

// Server wraps an http.Server serving the costing API.
type Server struct {
	config     Config
	httpServer *http.Server
}

// New wires the handlers to the database and builds the HTTP server.
func New(cfg Config) (*Server, error) {
	if cfg.Database == nil {
		return nil, errors.New("server: database is required")
	}
	applog.Debug(context.Background(), "initializing server",
		"addr", cfg.Addr,
		"sessionLifetime", cfg.Session.Lifetime.String(),
		"sessionCookie", cfg.Session.CookieName,
	)

	sessionCfg := cfg.Session
	if sessionCfg.Lifetime <= 0 {
		sessionCfg.Lifetime = 12 * time.Hour
	}
	if strings.TrimSpace(sessionCfg.CookieName) == "" {
		sessionCfg.CookieName = "recipecost_session"
	}

	sessionManager := scs.New()
	sessionManager.Lifetime = sessionCfg.Lifetime
	sessionManager.Cookie.Name = sessionCfg.CookieName
	sessionManager.Cookie.Domain = sessionCfg.CookieDomain
	sessionManager.Cookie.HttpOnly = true
	sessionManager.Cookie.Persist = true
	sessionManager.Cookie.SameSite = http.SameSiteLaxMode
	sessionManager.Cookie.Secure = sessionCfg.CookieSecure

	rates := store.NewParameterRates(cfg.Database, cfg.Rates)
	costService := recipes.NewService(cfg.Database, rates, recipes.WithRecorder(metrics.Recorder{}))

	// Stored costs may predate a change of the configured default rates.
	count, err := costService.RecomputeAll(context.Background())
	if err != nil {
		return nil, fmt.Errorf("server: reconcile recipe costs: %w", err)
	}
	applog.Info(context.Background(), "recipe costs reconciled", "recipes", count)

	handlers.Configure(handlers.Dependencies{
		Sessions: sessionManager,
		Database: cfg.Database,
		Recipes:  costService,
		Rates:    rates,
	})
	applog.Debug(context.Background(), "handler dependencies configured",
		"laborRate", cfg.Rates.Labor.String(),
		"energyRate", cfg.Rates.Energy.String(),
	)

	return &Server{
		config: cfg,
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           sessionManager.LoadAndSave(newRouter()),
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

// Start begins serving HTTP traffic using the underlying http.Server.
func (s *Server) Start() error {
	applog.Info(context.Background(), "server listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Stop gracefully shuts down the HTTP server with a timeout.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	applog.Debug(ctx, "server initiating graceful shutdown")
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the configured HTTP handler, enabling integration tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}
