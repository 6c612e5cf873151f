// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package buildinfo

import (
	"encoding/json"
	"runtime"
	"runtime/debug"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSON(t *testing.T) {
	t.Parallel()

	data, err := JSON()
	require.NoError(t, err)

	var info Info
	require.NoError(t, json.Unmarshal(data, &info))
	assert.Equal(t, Version, info.Version)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform)
}

func TestUserAgent(t *testing.T) {
	t.Parallel()

	assert.True(t, strings.HasPrefix(UserAgent, "tvarchive/"+Version+" "))
	assert.Contains(t, UserAgent, runtime.GOOS)
}

func TestApplyVCS(t *testing.T) {
	t.Parallel()

	settings := []debug.BuildSetting{
		{Key: "vcs.revision", Value: "4f2a9c1"},
		{Key: "vcs.time", Value: "2026-01-02T03:04:05Z"},
		{Key: "vcs.modified", Value: "true"},
	}

	info := Info{Version: "v1.2.0"}
	applyVCS(&info, settings)
	assert.Equal(t, "4f2a9c1", info.Commit)
	assert.Equal(t, "2026-01-02T03:04:05Z", info.Date)
	assert.True(t, info.Modified)

	linked := Info{Commit: "abcdef0", Date: "2026-02-01"}
	applyVCS(&linked, settings)
	assert.Equal(t, "abcdef0", linked.Commit, "ldflags win over the vcs stamp")
	assert.Equal(t, "2026-02-01", linked.Date)
}

func TestInfoString(t *testing.T) {
	t.Parallel()

	s := Info{Version: "v1.2.0", Commit: "4f2a9c1", Modified: true, Date: "2026-01-02", GoVersion: "go1.25.0", Platform: "linux/amd64"}.String()
	lines := strings.Split(strings.TrimSpace(s), "\n")

	assert.Equal(t, []string{
		"Version: v1.2.0",
		"Commit: 4f2a9c1 (modified)",
		"Build date: 2026-01-02",
		"Go: go1.25.0 linux/amd64",
	}, lines)
}
