// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/autobrr/tvarchive/internal/api"
	"github.com/autobrr/tvarchive/internal/auth"
	"github.com/autobrr/tvarchive/internal/buildinfo"
	"github.com/autobrr/tvarchive/internal/domain"
	"github.com/autobrr/tvarchive/internal/logger"
	"github.com/autobrr/tvarchive/internal/metrics"
	"github.com/autobrr/tvarchive/internal/metrics/collector"
	"github.com/autobrr/tvarchive/internal/models"
	"github.com/autobrr/tvarchive/internal/services/archive"
	"github.com/autobrr/tvarchive/internal/services/audit"
	"github.com/autobrr/tvarchive/internal/services/blacklist"
	"github.com/autobrr/tvarchive/internal/services/imdb"
	"github.com/autobrr/tvarchive/internal/services/mailer"
	"github.com/autobrr/tvarchive/pkg/sessionstore"
)

const (
	sessionCookieName    = "tvarchive_session"
	sessionLifetime      = 24 * time.Hour
	blacklistPruneEvery  = 10 * time.Minute
	changeLogPurgeEvery  = 6 * time.Hour
	shutdownGracePeriod  = 15 * time.Second
	mailDrainGracePeriod = 10 * time.Second
)

func RunServeCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := openApp(configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			return serve(ctx, a)
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func serve(ctx context.Context, a *app) error {
	cfg := a.cfg.Current()
	log.Info().Str("version", buildinfo.Version).Str("config", a.cfg.Path()).Str("engine", cfg.DatabaseEngine).Msg("starting tvarchive")

	cidrs, err := cfg.ParseBlacklistCIDRs()
	if err != nil {
		return err
	}

	var (
		archiveService   *archive.Service
		blacklistService *blacklist.Service
	)
	metricsManager := metrics.NewManager(a.db, collector.ArchiveSourceFunc(func(ctx context.Context) (collector.ArchiveTotals, error) {
		totals, err := archiveService.ArchiveTotals(ctx)
		if err != nil {
			return totals, err
		}
		totals.Blacklisted, err = blacklistService.CountActive(ctx)
		return totals, err
	}))
	activity := metricsManager.Activity

	archiveService = archive.NewService(a.db, archive.Options{
		ImageDir:     a.cfg.GetImageDir(),
		MaxImageSize: cfg.MaxImageSize,
		Metrics:      activity,
	})
	blacklistService = blacklist.NewService(a.db, cidrs, blacklist.PolicyFromConfig(cfg), activity)
	auditService := audit.NewService(a.db)

	mailService := mailer.NewService(newMailSender(cfg), log.Logger.With().Str("module", "mailer").Logger(), mailer.Options{
		BaseURL: cfg.LinkBaseURL(),
		Workers: cfg.MailWorkers,
		Metrics: activity,
	})

	tokens := auth.NewTokenIssuer(cfg.SessionSecret, cfg.AccessTokenDuration(), cfg.RefreshTokenDuration())
	authService := auth.NewService(a.db, tokens, mailService)

	store := sessionstore.New(a.db)
	defer store.StopCleanup()

	sessionManager := scs.New()
	sessionManager.Store = store
	sessionManager.Lifetime = sessionLifetime
	sessionManager.Cookie.Name = sessionCookieName
	sessionManager.Cookie.HttpOnly = true
	sessionManager.Cookie.SameSite = http.SameSiteLaxMode
	sessionManager.Cookie.Path = cfg.BaseURL
	sessionManager.Cookie.Persist = false

	a.cfg.OnReload(func(next *domain.Config) {
		logger.SetLevel(next.LogLevel)

		cidrs, err := next.ParseBlacklistCIDRs()
		if err != nil {
			log.Error().Err(err).Msg("Ignoring invalid blacklist CIDRs")
			return
		}
		blacklistService.Reconfigure(cidrs, blacklist.PolicyFromConfig(next))
		log.Info().Str("level", next.LogLevel).Msg("configuration reloaded")
	})
	a.cfg.Watch()

	if removed, err := archiveService.PruneOrphanImages(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to prune orphan images")
	} else if removed > 0 {
		log.Info().Int("files", removed).Msg("pruned orphan images on startup")
	}

	srv := api.NewServer(&api.Dependencies{
		Config:           a.cfg,
		DB:               a.db,
		AuthService:      authService,
		SessionManager:   sessionManager,
		ArchiveService:   archiveService,
		AuditService:     auditService,
		BlacklistService: blacklistService,
		UserIPStore:      models.NewUserIPStore(a.db),
		IMDbClient:       imdb.NewClient(),
		Activity:         activity,
	})

	// mail workers outlive the request context so Stop can drain the queue
	mailCtx, cancelMail := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelMail()
	mailService.Start(mailCtx)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		blacklistService.Run(ctx, blacklistPruneEvery)
		return nil
	})
	g.Go(func() error {
		auditService.Run(ctx, changeLogPurgeEvery, func() int {
			return a.cfg.Current().ChangeLogRetentionDays
		})
		return nil
	})

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		log.Info().Msg("shutting down http server")
		return srv.Shutdown(shutdownCtx)
	})

	if cfg.MetricsEnabled {
		metricsServer := metrics.NewMetricsServer(metricsManager, cfg.MetricsHost, cfg.MetricsPort, cfg.MetricsBasicAuthUsers)
		g.Go(func() error {
			log.Info().Str("addr", net.JoinHostPort(cfg.MetricsHost, strconv.Itoa(cfg.MetricsPort))).Msg("starting metrics server")
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
			defer cancel()
			return metricsServer.Shutdown(shutdownCtx)
		})
	}

	if cfg.PprofEnabled {
		pprofServer := api.NewPprofServer(cfg.PprofHost, cfg.PprofPort)
		g.Go(func() error {
			log.Warn().Str("addr", pprofServer.Addr).Msg("pprof enabled, do not expose this listener")
			if err := pprofServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
			defer cancel()
			return pprofServer.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()

	drainCtx, cancel := context.WithTimeout(context.Background(), mailDrainGracePeriod)
	defer cancel()
	if stopErr := mailService.Stop(drainCtx); stopErr != nil {
		log.Warn().Err(stopErr).Msg("mail queue not fully drained")
	}

	log.Info().Msg("tvarchive stopped")
	return err
}

// newMailSender returns an SMTP sender when a relay is configured and a
// log sender otherwise.
func newMailSender(cfg *domain.Config) mailer.Sender {
	if cfg.SMTPHost == "" {
		return &mailer.LogSender{Logger: log.Logger.With().Str("module", "mail").Logger()}
	}
	return &mailer.SMTPSender{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	}
}
