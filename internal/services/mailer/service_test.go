// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package mailer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/tvarchive/internal/metrics/collector"
	"github.com/autobrr/tvarchive/internal/models"
)

type fakeSender struct {
	mu       sync.Mutex
	failures int
	calls    int
	sent     []Message
}

func (f *fakeSender) Send(_ context.Context, msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return errors.New("relay unavailable")
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeSender) snapshot() (int, []Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls, append([]Message(nil), f.sent...)
}

func testUser() *models.User {
	return &models.User{ID: 1, Username: "alice", Email: "alice@example.com"}
}

func TestService_DeliversQueuedMail(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	svc := NewService(sender, zerolog.Nop(), Options{BaseURL: "https://tv.example.com/", RetryDelay: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)

	require.NoError(t, svc.SendActivation(ctx, testUser(), "tok123"))
	require.NoError(t, svc.SendPasswordReset(ctx, testUser(), "reset456"))

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	require.NoError(t, svc.Stop(stopCtx))

	_, sent := sender.snapshot()
	require.Len(t, sent, 2)

	bodies := sent[0].Body + sent[1].Body
	assert.Contains(t, bodies, "https://tv.example.com/activate/tok123")
	assert.Contains(t, bodies, "https://tv.example.com/password/reset/confirm/reset456")
	for _, msg := range sent {
		assert.Equal(t, "alice@example.com", msg.To)
	}
}

func TestService_RetriesTransientFailures(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{failures: 2}
	metrics := collector.NewActivityCollector(prometheus.NewRegistry())
	svc := NewService(sender, zerolog.Nop(), Options{Workers: 1, RetryDelay: time.Millisecond, Metrics: metrics})

	svc.deliver(context.Background(), job{kind: KindConfirmation, msg: Message{To: "a@example.com"}})

	calls, sent := sender.snapshot()
	assert.Equal(t, 3, calls)
	assert.Len(t, sent, 1)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.MailJobsTotal.WithLabelValues("confirmation", "sent")), 0)
}

func TestService_GivesUpAfterAttempts(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{failures: 10}
	metrics := collector.NewActivityCollector(prometheus.NewRegistry())
	svc := NewService(sender, zerolog.Nop(), Options{RetryDelay: time.Millisecond, Metrics: metrics})

	svc.deliver(context.Background(), job{kind: KindPasswordChanged, msg: Message{To: "a@example.com"}})

	calls, sent := sender.snapshot()
	assert.Equal(t, sendAttempts, calls)
	assert.Empty(t, sent)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.MailJobsTotal.WithLabelValues("password_changed", "failed")), 0)
}

func TestService_QueueFull(t *testing.T) {
	t.Parallel()

	svc := NewService(&fakeSender{}, zerolog.Nop(), Options{QueueSize: 1})

	// workers are not started, so the second job cannot be queued
	require.NoError(t, svc.SendConfirmation(context.Background(), testUser()))
	assert.ErrorIs(t, svc.SendConfirmation(context.Background(), testUser()), ErrQueueFull)
}

func TestSMTPSender_Render(t *testing.T) {
	t.Parallel()

	s := &SMTPSender{From: "noreply@example.com"}
	raw := string(s.render(Message{To: "bob@example.com", Subject: "Hi", Body: "line1\nline2"}))

	assert.True(t, strings.HasPrefix(raw, "From: noreply@example.com\r\n"))
	assert.Contains(t, raw, "Subject: Hi\r\n")
	assert.Contains(t, raw, "\r\n\r\nline1\r\nline2")
}
