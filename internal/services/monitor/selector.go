// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package monitor

import (
	"strconv"
	"strings"

	"github.com/moistari/rls"

	"github.com/autobrr/arrwarden/internal/arr"
)

var rejectionMarkers = []string{"blocklisted", "Unknown Movie"}

// SkippedRelease records why a release was not considered.
type SkippedRelease struct {
	Release arr.Release
	Reason  string
}

// Selection is the outcome of SelectCandidate.
type Selection struct {
	Best    *arr.Release
	Skipped []SkippedRelease
}

// SelectCandidate picks the release to grab for a stale item. Releases without
// a guid or seeders, rejected by the service, or in a language the item does
// not accept are dropped. The survivor with the most seeders wins, then the
// highest resolution; on a tie the earlier release is kept.
func SelectCandidate(releases []arr.Release, accepted []arr.Language) Selection {
	var sel Selection
	var bestKey candidateKey

	for i := range releases {
		r := releases[i]

		if reason := rejectReason(r, accepted); reason != "" {
			sel.Skipped = append(sel.Skipped, SkippedRelease{Release: r, Reason: reason})
			continue
		}

		key := candidateKey{seeders: *r.Seeders, resolution: effectiveResolution(r)}
		if sel.Best == nil || bestKey.less(key) {
			sel.Best = &releases[i]
			bestKey = key
		}
	}

	return sel
}

type candidateKey struct {
	seeders    int
	resolution int
}

func (k candidateKey) less(other candidateKey) bool {
	if k.seeders != other.seeders {
		return k.seeders < other.seeders
	}
	return k.resolution < other.resolution
}

func rejectReason(r arr.Release, accepted []arr.Language) string {
	if r.GUID == nil || *r.GUID == "" {
		return "missing guid"
	}
	if r.Seeders == nil || *r.Seeders <= 0 {
		return "no seeders"
	}
	for _, rejection := range r.Rejections {
		for _, marker := range rejectionMarkers {
			if strings.Contains(rejection, marker) {
				return "rejected: " + rejection
			}
		}
	}
	if !hasAcceptedLanguage(r.Languages, accepted) {
		return "language not accepted"
	}
	return ""
}

func hasAcceptedLanguage(langs, accepted []arr.Language) bool {
	for _, lang := range langs {
		if lang.ID == arr.UnknownLanguageID {
			return true
		}
		for _, ok := range accepted {
			if ok.ID == lang.ID {
				return true
			}
		}
	}
	return false
}

// effectiveResolution falls back to the resolution in the release title when
// the service did not report one.
func effectiveResolution(r arr.Release) int {
	if r.Quality.Quality.Resolution > 0 || r.Title == "" {
		return r.Quality.Quality.Resolution
	}
	parsed := rls.ParseString(r.Title)
	return resolutionFromTag(parsed.Resolution)
}

func resolutionFromTag(tag string) int {
	tag = strings.ToLower(strings.TrimSpace(tag))
	switch tag {
	case "":
		return 0
	case "4k", "uhd":
		return 2160
	case "8k":
		return 4320
	}
	n, err := strconv.Atoi(strings.TrimRight(tag, "pi"))
	if err != nil {
		return 0
	}
	return n
}
