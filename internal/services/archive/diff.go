// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package archive

import "reflect"

// diffState returns {field: {"old": x, "new": y}} for every field whose value
// differs between the two snapshots. Fields present on one side only are
// reported with a nil counterpart.
func diffState(before, after map[string]any) map[string]any {
	diff := map[string]any{}

	for field, oldValue := range before {
		newValue, ok := after[field]
		if ok && reflect.DeepEqual(oldValue, newValue) {
			continue
		}
		diff[field] = map[string]any{"old": oldValue, "new": newValue}
	}
	for field, newValue := range after {
		if _, ok := before[field]; ok {
			continue
		}
		diff[field] = map[string]any{"old": nil, "new": newValue}
	}

	return diff
}
