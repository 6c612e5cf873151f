// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package imdb fetches IMDb title pages and extracts the series name and
// airing years.
package imdb

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/autobrr/autobrr/pkg/ttlcache"
	"github.com/avast/retry-go"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/tvarchive/internal/buildinfo"
	"github.com/autobrr/tvarchive/internal/models"
	"github.com/autobrr/tvarchive/pkg/httphelpers"
)

const (
	defaultBaseURL = "https://www.imdb.com"
	cacheTTL       = time.Hour
	maxPageSize    = 4 << 20
	)

var (
	ErrTitleNotFound = errors.New("imdb title not found")

	yearRange = regexp.MustCompile(`(\d{4})\s*[–-]\s*(\d{4})?|(\d{4})`)
)

type Title struct {
	URL        string `json:"imdb_url"`
	Name       string `json:"name"`
	StartYear  string `json:"start_year,omitempty"`
	EndYear    string `json:"end_year,omitempty"`
	IsFinished bool   `json:"is_finished"`
}

type Client struct {
	// BaseURL replaces https://www.imdb.com when fetching.
	BaseURL string
	HTTP    *http.Client

	cache *ttlcache.Cache[string, *Title]
}

func NewClient() *Client {
	return &Client{
		BaseURL: defaultBaseURL,
		HTTP:    &http.Client{Timeout: 15 * time.Second},
		cache:   ttlcache.New(ttlcache.Options[string, *Title]{}.SetDefaultTTL(cacheTTL)),
	}
}

// Lookup validates rawURL as an IMDb title URL and returns the parsed title.
func (c *Client) Lookup(ctx context.Context, rawURL string) (*Title, error) {
	canonical, err := models.NormalizeImdbURL(rawURL)
	if err != nil {
		return nil, err
	}
	if title, ok := c.cache.Get(canonical); ok {
		return title, nil
	}

	fetchURL := strings.TrimRight(c.BaseURL, "/") + strings.TrimPrefix(canonical, defaultBaseURL)

	var page []byte
	err = retry.Do(
		func() error {
			var ferr error
			page, ferr = c.fetch(ctx, fetchURL)
			return ferr
		},
		retry.Context(ctx),
		retry.Attempts(2),
		retry.Delay(500*time.Millisecond),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, ErrTitleNotFound) && httphelpers.IsRetryable(err)
		}),
	)
	if err != nil {
		return nil, err
	}

	title, err := Parse(page)
	if err != nil {
		return nil, err
	}
	title.URL = canonical

	c.cache.Set(canonical, title, ttlcache.DefaultTTL)
	log.Debug().Str("url", canonical).Str("name", title.Name).Msg("imdb lookup")
	return title, nil
}

func (c *Client) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", buildinfo.UserAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.8")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}

	page, err := httphelpers.ReadBody(resp, maxPageSize)
	var statusErr *httphelpers.StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
		return nil, ErrTitleNotFound
	}
	return page, err
}

// Parse extracts the title from an IMDb title page. The og:title meta tag is
// preferred, e.g. "Breaking Bad (TV Series 2008–2013) ⭐ 9.5 | Drama".
func Parse(html []byte) (*Title, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, err
	}

	raw, _ := doc.Find(`meta[property="og:title"]`).First().Attr("content")
	if strings.TrimSpace(raw) == "" {
		raw = doc.Find(`h1[data-testid="hero__pageTitle"]`).First().Text()
	}
	if strings.TrimSpace(raw) == "" {
		raw = strings.TrimSuffix(strings.TrimSpace(doc.Find("title").First().Text()), " - IMDb")
	}

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrTitleNotFound
	}

	title := &Title{Name: raw}
	if i := strings.Index(raw, " ("); i > 0 {
		title.Name = strings.TrimSpace(raw[:i])
		meta := raw[i:]
		if end := strings.Index(meta, ")"); end > 0 {
			meta = meta[:end]
		}
		if m := yearRange.FindStringSubmatch(meta); m != nil {
			if m[3] != "" {
				title.StartYear = m[3]
			} else {
				title.StartYear = m[1]
				title.EndYear = m[2]
			}
		}
	}
	title.IsFinished = title.EndYear != ""

	if runes := []rune(title.Name); len(runes) > models.SeriesNameMaxLength {
		title.Name = string(runes[:models.SeriesNameMaxLength])
	}
	return title, nil
}
