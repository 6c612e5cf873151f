// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package middleware

import (
	"net/http"

	"github.com/CAFxX/httpcompression"
)

// compressibleTypes limits compression to API payloads. Image downloads are
// already compressed.
var compressibleTypes = []string{
	"application/json",
	"application/yaml",
	"text/plain",
	"text/html",
}

// Compress returns a middleware that compresses responses above minSize
// with the best encoding the client accepts.
func Compress(minSize int) (func(http.Handler) http.Handler, error) {
	if minSize < 0 {
		minSize = 1024
	}
	return httpcompression.DefaultAdapter(
		httpcompression.MinSize(minSize),
		httpcompression.ContentTypes(compressibleTypes, false),
	)
}
