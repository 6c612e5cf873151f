// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package blacklist

import (
	"context"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/tvarchive/internal/models"
	"github.com/autobrr/tvarchive/internal/testdb"
)

func newTestService(t *testing.T, cidrs []netip.Prefix, policy Policy) *Service {
	t.Helper()
	return NewService(testdb.Open(t), cidrs, policy, nil)
}

func TestService_CheckCIDR(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}, Policy{})
	ctx := context.Background()

	blocked, source, err := svc.Check(ctx, "10.1.2.3")
	require.NoError(t, err)
	assert.True(t, blocked)
	assert.Equal(t, SourceCIDR, source)

	blocked, _, err = svc.Check(ctx, "::ffff:10.1.2.3")
	require.NoError(t, err)
	assert.True(t, blocked)

	blocked, _, err = svc.Check(ctx, "192.168.1.1")
	require.NoError(t, err)
	assert.False(t, blocked)

	svc.Reconfigure(nil, Policy{})
	blocked, _, err = svc.Check(ctx, "10.1.2.3")
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestService_AddRemove(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, nil, Policy{})
	ctx := context.Background()

	blocked, _, err := svc.Check(ctx, "203.0.113.7")
	require.NoError(t, err)
	assert.False(t, blocked)

	// a cached negative verdict must not hide a new entry
	_, err = svc.Add(ctx, "203.0.113.7", 0, "spam")
	require.NoError(t, err)

	blocked, source, err := svc.Check(ctx, "203.0.113.7")
	require.NoError(t, err)
	assert.True(t, blocked)
	assert.Equal(t, SourceList, source)

	require.NoError(t, svc.Remove(ctx, "203.0.113.7"))
	blocked, _, err = svc.Check(ctx, "203.0.113.7")
	require.NoError(t, err)
	assert.False(t, blocked)

	assert.ErrorIs(t, svc.Remove(ctx, "203.0.113.7"), models.ErrBlacklistNotFound)

	_, err = svc.Add(ctx, "not-an-ip", 0, "")
	assert.True(t, models.IsValidationError(err))
}

func TestService_CountActive(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, nil, Policy{})
	ctx := context.Background()

	count, err := svc.CountActive(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	for _, ip := range []string{"203.0.113.1", "203.0.113.2"} {
		_, err := svc.Add(ctx, ip, time.Hour, "spam")
		require.NoError(t, err)
	}
	require.NoError(t, svc.Remove(ctx, "203.0.113.1"))

	count, err = svc.CountActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestService_TemporaryEntryExpires(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, nil, Policy{})
	ctx := context.Background()

	_, err := svc.Add(ctx, "198.51.100.1", time.Minute, "cool down")
	require.NoError(t, err)

	blocked, _, err := svc.Check(ctx, "198.51.100.1")
	require.NoError(t, err)
	assert.True(t, blocked)

	later := time.Now().Add(2 * time.Minute)
	svc.now = func() time.Time { return later }

	blocked, _, err = svc.Check(ctx, "198.51.100.1")
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestService_RecordFailedLogin(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, nil, Policy{Limit: 3, Window: time.Minute, Ban: time.Hour})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		banned, err := svc.RecordFailedLogin(ctx, "192.0.2.10")
		require.NoError(t, err)
		assert.False(t, banned)
	}

	banned, err := svc.RecordFailedLogin(ctx, "192.0.2.10")
	require.NoError(t, err)
	assert.True(t, banned)

	entry, err := svc.Get(ctx, "192.0.2.10")
	require.NoError(t, err)
	assert.Equal(t, LoginBanReason, entry.Reason)
	assert.Equal(t, time.Hour, entry.Stretch)

	blocked, _, err := svc.Check(ctx, "192.0.2.10")
	require.NoError(t, err)
	assert.True(t, blocked)

	// other addresses are unaffected
	blocked, _, err = svc.Check(ctx, "192.0.2.11")
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestService_ClearFailures(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, nil, Policy{Limit: 2, Window: time.Minute, Ban: time.Hour})
	ctx := context.Background()

	banned, err := svc.RecordFailedLogin(ctx, "192.0.2.20")
	require.NoError(t, err)
	assert.False(t, banned)

	require.NoError(t, svc.ClearFailures(ctx, "192.0.2.20"))

	banned, err = svc.RecordFailedLogin(ctx, "192.0.2.20")
	require.NoError(t, err)
	assert.False(t, banned)
}

func TestService_Prune(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, nil, Policy{})
	ctx := context.Background()

	err := svc.store.Upsert(ctx, &models.BlacklistEntry{
		IP:         "198.51.100.2",
		RecordTime: time.Now().Add(-2 * time.Hour),
		Stretch:    time.Hour,
		Reason:     "expired",
	})
	require.NoError(t, err)
	_, err = svc.Add(ctx, "198.51.100.3", 0, "forever")
	require.NoError(t, err)

	require.NoError(t, svc.Prune(ctx))

	entries, err := svc.List(ctx, false)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "198.51.100.3", entries[0].IP)
}
