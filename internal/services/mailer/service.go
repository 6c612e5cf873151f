// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package mailer

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/autobrr/tvarchive/internal/metrics/collector"
	"github.com/autobrr/tvarchive/internal/models"
)

const (
	defaultQueueSize = 100
	defaultWorkers   = 2
	sendAttempts     = 3
)

var ErrQueueFull = errors.New("mail queue is full")

type Kind string

const (
	KindActivation      Kind = "activation"
	KindConfirmation    Kind = "confirmation"
	KindPasswordReset   Kind = "password_reset"
	KindPasswordChanged Kind = "password_changed"
)

type job struct {
	kind Kind
	msg  Message
}

type Options struct {
	BaseURL    string
	Workers    int
	QueueSize  int
	RetryDelay time.Duration
	Metrics    *collector.ActivityCollector
}

// Service is an in-process mail queue drained by a fixed set of workers.
type Service struct {
	sender  Sender
	logger  zerolog.Logger
	baseURL string
	workers int
	delay   time.Duration
	metrics *collector.ActivityCollector

	queue     chan job
	startOnce sync.Once
	stopOnce  sync.Once
	wg        sync.WaitGroup
	stop      chan struct{}
}

func NewService(sender Sender, logger zerolog.Logger, opts Options) *Service {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}

	return &Service{
		sender:  sender,
		logger:  logger,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		workers: opts.Workers,
		delay:   opts.RetryDelay,
		metrics: opts.Metrics,
		queue:   make(chan job, opts.QueueSize),
		stop:    make(chan struct{}),
	}
}

func (s *Service) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		for range s.workers {
			s.wg.Add(1)
			go s.worker(ctx)
		}
	})
}

// Stop asks the workers to finish the queued jobs and waits for them until
// ctx expires.
func (s *Service) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stop) })

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrapf(ctx.Err(), "mailer: %d jobs left in queue", len(s.queue))
	}
}

func (s *Service) worker(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.queue:
			s.deliver(ctx, j)
		case <-s.stop:
			for {
				select {
				case j := <-s.queue:
					s.deliver(ctx, j)
				default:
					return
				}
			}
		}
	}
}

func (s *Service) deliver(ctx context.Context, j job) {
	err := retry.Do(
		func() error { return s.sender.Send(ctx, j.msg) },
		retry.Context(ctx),
		retry.Attempts(sendAttempts),
		retry.Delay(s.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Debug().Err(err).Uint("attempt", n+1).Str("kind", string(j.kind)).Msg("mailer: retrying send")
		}),
	)
	if err != nil {
		s.metrics.ObserveMailJob(string(j.kind), "failed")
		s.logger.Error().Err(errors.Wrap(err, "deliver mail")).Str("kind", string(j.kind)).Str("to", j.msg.To).Msg("mailer: giving up")
		return
	}

	s.metrics.ObserveMailJob(string(j.kind), "sent")
	s.logger.Debug().Str("kind", string(j.kind)).Str("to", j.msg.To).Msg("mailer: sent")
}

func (s *Service) enqueue(kind Kind, msg Message) error {
	select {
	case s.queue <- job{kind: kind, msg: msg}:
		return nil
	default:
		s.metrics.ObserveMailJob(string(kind), "dropped")
		s.logger.Warn().Str("kind", string(kind)).Msg("mailer: queue full, dropping job")
		return ErrQueueFull
	}
}

func (s *Service) link(path, token string) string {
	return fmt.Sprintf("%s/%s/%s", s.baseURL, path, token)
}

func (s *Service) SendActivation(_ context.Context, user *models.User, token string) error {
	return s.enqueue(KindActivation, Message{
		To:      user.Email,
		Subject: "Activate your tvarchive account",
		Body: fmt.Sprintf("Hello %s,\n\nactivate your account by opening:\n%s\n\nThe link is valid for 72 hours.\n",
			user.Username, s.link("activate", token)),
	})
}

func (s *Service) SendConfirmation(_ context.Context, user *models.User) error {
	return s.enqueue(KindConfirmation, Message{
		To:      user.Email,
		Subject: "Your tvarchive account is active",
		Body:    fmt.Sprintf("Hello %s,\n\nyour account has been activated.\n", user.Username),
	})
}

func (s *Service) SendPasswordReset(_ context.Context, user *models.User, token string) error {
	return s.enqueue(KindPasswordReset, Message{
		To:      user.Email,
		Subject: "Reset your tvarchive password",
		Body: fmt.Sprintf("Hello %s,\n\nchoose a new password at:\n%s\n\nIgnore this mail if you did not ask for a reset.\n",
			user.Username, s.link("password/reset/confirm", token)),
	})
}

func (s *Service) SendPasswordChanged(_ context.Context, user *models.User) error {
	return s.enqueue(KindPasswordChanged, Message{
		To:      user.Email,
		Subject: "Your tvarchive password was changed",
		Body:    fmt.Sprintf("Hello %s,\n\nthe password of your account was just changed.\n", user.Username),
	})
}
