// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package blacklist

import (
	"context"
	"errors"
	"net/netip"
	"sync"
	"time"

	"github.com/autobrr/autobrr/pkg/ttlcache"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/tvarchive/internal/dbinterface"
	"github.com/autobrr/tvarchive/internal/domain"
	"github.com/autobrr/tvarchive/internal/metrics/collector"
	"github.com/autobrr/tvarchive/internal/models"
)

const (
	SourceList = "list"
	SourceCIDR = "cidr"

	cacheTTL         = 30 * time.Second
	LoginBanReason   = "too many failed logins"
	defaultLimit     = 5
	defaultWindow    = 10 * time.Minute
	defaultBanLength = time.Hour
)

type Policy struct {
	Limit  int
	Window time.Duration
	Ban    time.Duration
}

func PolicyFromConfig(cfg *domain.Config) Policy {
	return Policy{
		Limit:  cfg.LoginFailureLimit,
		Window: cfg.LoginFailureWindowDuration(),
		Ban:    cfg.LoginFailureBanDuration(),
	}
}

func (p Policy) withDefaults() Policy {
	if p.Limit <= 0 {
		p.Limit = defaultLimit
	}
	if p.Window <= 0 {
		p.Window = defaultWindow
	}
	if p.Ban <= 0 {
		p.Ban = defaultBanLength
	}
	return p
}

type verdict struct {
	blocked bool
	until   time.Time
}

// Service decides whether a client address may use the API. Lookups in the
// ip_blacklist table are cached briefly per address.
type Service struct {
	store    *models.BlacklistStore
	attempts *models.LoginAttemptStore
	cache    *ttlcache.Cache[string, verdict]
	metrics  *collector.ActivityCollector
	now      func() time.Time

	mu     sync.RWMutex
	cidrs  []netip.Prefix
	policy Policy
}

func NewService(db dbinterface.Querier, cidrs []netip.Prefix, policy Policy, metrics *collector.ActivityCollector) *Service {
	return &Service{
		store:    models.NewBlacklistStore(db),
		attempts: models.NewLoginAttemptStore(db),
		cache:    ttlcache.New(ttlcache.Options[string, verdict]{}.SetDefaultTTL(cacheTTL)),
		metrics:  metrics,
		now:      time.Now,
		cidrs:    cidrs,
		policy:   policy.withDefaults(),
	}
}

// Reconfigure swaps the static CIDR list and the failed-login policy.
func (s *Service) Reconfigure(cidrs []netip.Prefix, policy Policy) {
	s.mu.Lock()
	s.cidrs = cidrs
	s.policy = policy.withDefaults()
	s.mu.Unlock()
}

func (s *Service) currentPolicy() Policy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.policy
}

func (s *Service) inCIDRs(addr netip.Addr) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, prefix := range s.cidrs {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// Check reports whether ip is blocked and by which source.
func (s *Service) Check(ctx context.Context, ip string) (bool, string, error) {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false, "", err
	}
	addr = addr.Unmap().WithZone("")

	if s.inCIDRs(addr) {
		s.metrics.ObserveBlacklistReject(SourceCIDR)
		return true, SourceCIDR, nil
	}

	key := addr.String()
	now := s.now()

	v, found := s.cache.Get(key)
	if !found || (v.blocked && !v.until.IsZero() && !now.Before(v.until)) {
		v, err = s.lookup(ctx, key, now)
		if err != nil {
			return false, "", err
		}
		s.cache.Set(key, v, ttlcache.DefaultTTL)
	}

	if v.blocked {
		s.metrics.ObserveBlacklistReject(SourceList)
		return true, SourceList, nil
	}
	return false, "", nil
}

func (s *Service) lookup(ctx context.Context, ip string, now time.Time) (verdict, error) {
	entry, err := s.store.Get(ctx, ip)
	if err != nil {
		if errors.Is(err, models.ErrBlacklistNotFound) {
			return verdict{}, nil
		}
		return verdict{}, err
	}
	if !entry.ActiveAt(now) {
		return verdict{}, nil
	}
	return verdict{blocked: true, until: entry.ExpiresAt()}, nil
}

// Add blocks ip for stretch (zero means permanently).
func (s *Service) Add(ctx context.Context, ip string, stretch time.Duration, reason string) (*models.BlacklistEntry, error) {
	normalized, err := models.NormalizeIP(ip)
	if err != nil {
		return nil, err
	}
	if stretch < 0 {
		return nil, models.FieldError("stretch", "must not be negative")
	}
	if stretch > 0 && stretch < time.Second {
		stretch = time.Second
	}
	stretch = stretch.Round(time.Second)

	entry := &models.BlacklistEntry{
		IP:         normalized,
		RecordTime: models.Now(),
		Stretch:    stretch,
		Reason:     reason,
	}
	if err := s.store.Upsert(ctx, entry); err != nil {
		return nil, err
	}
	s.cache.Delete(normalized)

	log.Info().Str("ip", normalized).Dur("stretch", stretch).Str("reason", reason).Msg("ip blacklisted")
	return entry, nil
}

func (s *Service) Remove(ctx context.Context, ip string) error {
	normalized, err := models.NormalizeIP(ip)
	if err != nil {
		return err
	}
	if err := s.store.Remove(ctx, normalized); err != nil {
		return err
	}
	s.cache.Delete(normalized)

	log.Info().Str("ip", normalized).Msg("ip removed from blacklist")
	return nil
}

func (s *Service) Get(ctx context.Context, ip string) (*models.BlacklistEntry, error) {
	normalized, err := models.NormalizeIP(ip)
	if err != nil {
		return nil, err
	}
	return s.store.Get(ctx, normalized)
}

func (s *Service) List(ctx context.Context, activeOnly bool) ([]*models.BlacklistEntry, error) {
	return s.store.List(ctx, activeOnly)
}

func (s *Service) CountActive(ctx context.Context) (int, error) {
	entries, err := s.store.List(ctx, true)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// RecordFailedLogin counts a failed login from ip and bans the address once
// the policy limit is reached inside the window. It reports whether a ban
// was issued.
func (s *Service) RecordFailedLogin(ctx context.Context, ip string) (bool, error) {
	normalized, err := models.NormalizeIP(ip)
	if err != nil {
		return false, err
	}

	if err := s.attempts.RecordFailure(ctx, normalized); err != nil {
		return false, err
	}

	policy := s.currentPolicy()
	count, err := s.attempts.CountSince(ctx, normalized, s.now().Add(-policy.Window))
	if err != nil {
		return false, err
	}
	if count < policy.Limit {
		return false, nil
	}

	if _, err := s.Add(ctx, normalized, policy.Ban, LoginBanReason); err != nil {
		return false, err
	}
	if err := s.attempts.Clear(ctx, normalized); err != nil {
		return true, err
	}

	s.metrics.ObserveLoginBan()
	log.Warn().Str("ip", normalized).Int("failures", count).Msg("ip banned after failed logins")
	return true, nil
}

func (s *Service) ClearFailures(ctx context.Context, ip string) error {
	normalized, err := models.NormalizeIP(ip)
	if err != nil {
		return err
	}
	return s.attempts.Clear(ctx, normalized)
}

// Prune removes expired entries and stale login attempts.
func (s *Service) Prune(ctx context.Context) error {
	removed, err := s.store.PruneExpired(ctx)
	if err != nil {
		return err
	}

	policy := s.currentPolicy()
	attempts, err := s.attempts.PruneBefore(ctx, s.now().Add(-policy.Window))
	if err != nil {
		return err
	}

	if removed > 0 || attempts > 0 {
		log.Debug().Int("entries", removed).Int64("attempts", attempts).Msg("blacklist pruned")
	}
	return nil
}

// Run prunes periodically until ctx is cancelled.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Prune(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("failed to prune blacklist")
			}
		}
	}
}
