// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package api

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/tvarchive/internal/api/handlers"
	"github.com/autobrr/tvarchive/internal/api/middleware"
	"github.com/autobrr/tvarchive/internal/auth"
	"github.com/autobrr/tvarchive/internal/config"
	"github.com/autobrr/tvarchive/internal/database"
	"github.com/autobrr/tvarchive/internal/metrics/collector"
	"github.com/autobrr/tvarchive/internal/models"
	"github.com/autobrr/tvarchive/internal/services/archive"
	"github.com/autobrr/tvarchive/internal/services/audit"
	"github.com/autobrr/tvarchive/internal/services/blacklist"
	"github.com/autobrr/tvarchive/internal/services/imdb"
	"github.com/autobrr/tvarchive/internal/web/swagger"
	"github.com/autobrr/tvarchive/pkg/httphelpers"
)

const (
	compressMinSize    = 1024
	userIPSampleWindow = 15 * time.Minute
	// image links embedded in <img> tags cannot send headers
	imageTokenParam = "access_token"
)

type Dependencies struct {
	Config           *config.AppConfig
	Logger           *zerolog.Logger
	DB               *database.DB
	AuthService      *auth.Service
	SessionManager   *scs.SessionManager
	ArchiveService   *archive.Service
	AuditService     *audit.Service
	BlacklistService *blacklist.Service
	UserIPStore      *models.UserIPStore
	IMDbClient       *imdb.Client
	Activity         *collector.ActivityCollector
}

type Server struct {
	mu     sync.Mutex
	server *http.Server
	deps   *Dependencies
}

func NewServer(deps *Dependencies) *Server {
	return &Server{deps: deps}
}

// ListenAndServe blocks until the listener fails or Shutdown is called.
func (s *Server) ListenAndServe() error {
	handler, err := s.Handler()
	if err != nil {
		return err
	}

	cfg := s.deps.Config.Current()
	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	s.mu.Lock()
	s.server = srv
	s.mu.Unlock()

	log.Info().Str("addr", srv.Addr).Str("base", cfg.BaseURL).Msg("starting http server")
	return srv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// loginFailures applies the failed-login policy to the request address.
type loginFailures struct {
	svc *blacklist.Service
}

func (l loginFailures) RecordFailedLogin(r *http.Request) bool {
	ip := middleware.ClientIP(r)
	banned, err := l.svc.RecordFailedLogin(r.Context(), ip)
	if err != nil {
		log.Error().Err(err).Str("ip", ip).Msg("failed to record failed login")
	}
	return banned
}

func (l loginFailures) ClearFailures(r *http.Request) {
	ip := middleware.ClientIP(r)
	if err := l.svc.ClearFailures(r.Context(), ip); err != nil {
		log.Warn().Err(err).Str("ip", ip).Msg("failed to clear login failures")
	}
}

// Handler builds the full router. The API is mounted below the configured
// base URL.
func (s *Server) Handler() (*chi.Mux, error) {
	deps := s.deps
	cfg := deps.Config.Current()

	compress, err := middleware.Compress(compressMinSize)
	if err != nil {
		return nil, err
	}

	logger := log.Logger
	if deps.Logger != nil {
		logger = *deps.Logger
	}

	trustedProxies, err := cfg.ParseTrustedProxies()
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.TrustedRealIP(trustedProxies))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Metrics(deps.Activity))
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowOriginFunc:  allowOriginFunc(cfg.CORSAllowedOrigins),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler)
	r.Use(compress)
	if deps.BlacklistService != nil {
		r.Use(middleware.BlockBlacklisted(deps.BlacklistService))
	}

	healthDeps := []handlers.Pinger{}
	if deps.DB != nil {
		healthDeps = append(healthDeps, deps.DB)
	}
	healthHandler := handlers.NewHealthHandler(healthDeps...)
	versionHandler := handlers.NewVersionHandler()

	var failures handlers.FailedLoginRecorder
	if deps.BlacklistService != nil {
		failures = loginFailures{svc: deps.BlacklistService}
	}
	authHandler := handlers.NewAuthHandler(deps.AuthService, deps.SessionManager, failures)
	archiveHandler := handlers.NewArchiveHandler(deps.ArchiveService, deps.IMDbClient, cfg.MaxImageSize)
	groupingHandler := handlers.NewGroupingHandler(deps.ArchiveService)
	adminHandler := handlers.NewAdminHandler(deps.AuditService, deps.BlacklistService, deps.AuthService, deps.UserIPStore)

	basePath := httphelpers.NormalizeBasePath(cfg.BaseURL)
	docs := swagger.NewHandler(basePath)

	authenticated := func(r chi.Router) {
		r.Use(middleware.IsAuthenticated(deps.AuthService, deps.SessionManager))
		if deps.UserIPStore != nil {
			r.Use(middleware.RecordUserIP(deps.UserIPStore, userIPSampleWindow))
		}
	}

	routes := func(r chi.Router) {
		r.Route("/health", healthHandler.Routes)

		r.Route("/api", func(r chi.Router) {
			r.Use(deps.SessionManager.LoadAndSave)

			r.Get("/version", versionHandler.GetVersion)
			docs.RegisterRoutes(r)

			r.Route("/auth", func(r chi.Router) {
				authHandler.PublicRoutes(r)
				r.Group(func(r chi.Router) {
					authenticated(r)
					authHandler.Routes(r)
				})
			})

			r.Group(func(r chi.Router) {
				r.Use(middleware.BearerFromQuery(imageTokenParam))
				authenticated(r)

				r.Route("/archives/tvseries", archiveHandler.Routes)
				r.Route("/archives/groupings", groupingHandler.Routes)
				r.Route("/administration", func(r chi.Router) {
					r.Use(middleware.RequireStaff)
					adminHandler.Routes(r)
				})
			})
		})
	}

	if basePath == "" {
		routes(r)
	} else {
		r.Route(basePath, routes)
	}

	return r, nil
}

// allowOriginFunc permits the configured origins. An empty list allows any
// origin.
func allowOriginFunc(allowed []string) func(string) bool {
	if len(allowed) > 0 {
		return nil
	}
	return func(string) bool { return true }
}
