// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package stringutils

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	unicodeNormalizer = NewNormalizer(defaultNormalizerTTL, foldUnicode)
	titleNormalizer   = NewNormalizer(defaultNormalizerTTL, normalizeTitle)
)

// letters NFKD leaves alone
var ligatures = strings.NewReplacer(
	"æ", "ae", "Æ", "AE",
	"œ", "oe", "Œ", "OE",
	"ø", "o", "Ø", "O",
	"ß", "ss",
	"ð", "d", "Ð", "D",
	"þ", "th", "Þ", "TH",
)

var titlePunctuation = strings.NewReplacer(
	"'", "", "’", "", "‘", "", "`", "",
	":", "", ".", " ", ",", " ",
	"&", " and ",
	"-", " ", "_", " ",
)

func foldUnicode(s string) string {
	s = ligatures.Replace(s)

	// transform.Chain is not safe for concurrent use
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
	result, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return result
}

func normalizeTitle(s string) string {
	s = unicodeNormalizer.Normalize(s)
	s = strings.ToLower(s)
	s = titlePunctuation.Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeTitle folds a series title for matching. It removes diacritics,
// lowercases, drops apostrophes and colons, spells out "&" and turns
// hyphens, dots and underscores into spaces.
//
//   - "Shōgun" → "shogun"
//   - "Bob's Burgers" → "bobs burgers"
//   - "CSI: Miami" → "csi miami"
//   - "Marvel's Agents of S.H.I.E.L.D." → "marvels agents of s h i e l d"
//   - "Law & Order" → "law and order"
func NormalizeTitle(s string) string {
	return titleNormalizer.Normalize(s)
}
