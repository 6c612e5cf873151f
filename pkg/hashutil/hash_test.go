// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package hashutil

import "testing"

func TestSum(t *testing.T) {
	a := Sum([]byte("poster bytes"))
	if len(a) != 16 {
		t.Fatalf("Sum length = %d, want 16", len(a))
	}
	if a != Sum([]byte("poster bytes")) {
		t.Errorf("Sum is not deterministic")
	}
	if a == Sum([]byte("other bytes")) {
		t.Errorf("Sum collided for different input")
	}
	if got := Sum(nil); got != "ef46db3751d8e999" {
		t.Errorf("Sum(nil) = %q, want the xxhash64 of empty input", got)
	}
}
