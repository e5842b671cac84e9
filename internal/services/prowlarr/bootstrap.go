// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package prowlarr registers every public indexer definition Prowlarr ships
// with, so a fresh install has something to search.
package prowlarr

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/autobrr/arrwarden/internal/arr"
)

const DefaultAppProfileID = 1

// Definition is one entry of GET /indexer/schema. The schema is large and
// loosely typed, so fields are read on demand and written back untouched.
type Definition map[string]json.RawMessage

// String returns a string field. ok is false when the key is missing or not a string.
func (d Definition) String(key string) (string, bool) {
	raw, present := d[key]
	if !present {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// Int returns an integer field. ok is false when the key is missing or not a number.
func (d Definition) Int(key string) (int, bool) {
	raw, present := d[key]
	if !present {
		return 0, false
	}
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, false
	}
	return n, true
}

// Set encodes value under key.
func (d Definition) Set(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	d[key] = raw
	return nil
}

// Name is the definition name used in logs.
func (d Definition) Name() string {
	for _, key := range []string{"definitionName", "name"} {
		if name, ok := d.String(key); ok && name != "" {
			return name
		}
	}
	return "<unnamed>"
}

// IsPublic reports whether the definition is for a public tracker.
func (d Definition) IsPublic() bool {
	privacy, ok := d.String("privacy")
	return ok && strings.EqualFold(privacy, "public")
}

// API is the part of the HTTP client the bootstrap needs.
type API interface {
	Do(ctx context.Context, method, path string, body, out any) error
}

// NewClient returns an API client for a Prowlarr v1 root such as http://localhost:9696/api/v1.
func NewClient(baseURL, apiKey string, logger zerolog.Logger) *arr.Client {
	return arr.NewClient(baseURL, apiKey, arr.WithLogger(logger))
}

// Failure is a definition Prowlarr refused to add.
type Failure struct {
	Name string
	Err  error
}

// Added is a definition Prowlarr accepted. ID is zero when the response did
// not carry one.
type Added struct {
	Name string
	ID   int
}

// Summary reports what Bootstrap did.
type Summary struct {
	Added   []Added
	Failed  []Failure
	Skipped int
}

// Bootstrap adds every public indexer definition with the given app profile.
// A definition that fails to add is reported and the rest are still tried.
func Bootstrap(ctx context.Context, api API, appProfileID int, logger zerolog.Logger) (Summary, error) {
	var summary Summary

	var definitions []Definition
	if err := api.Do(ctx, http.MethodGet, "indexer/schema", nil, &definitions); err != nil {
		return summary, fmt.Errorf("failed to list indexer definitions: %w", err)
	}

	for _, def := range definitions {
		if def == nil || !def.IsPublic() {
			summary.Skipped++
			continue
		}

		name := def.Name()
		if err := def.Set("appProfileId", appProfileID); err != nil {
			summary.Failed = append(summary.Failed, Failure{Name: name, Err: err})
			continue
		}

		created := Definition{}
		if err := api.Do(ctx, http.MethodPost, "indexer", def, &created); err != nil {
			logger.Error().Err(err).Msgf("failed to add %s", name)
			summary.Failed = append(summary.Failed, Failure{Name: name, Err: err})
			continue
		}

		id, _ := created.Int("id")
		logger.Info().Int("id", id).Msgf("added %s", name)
		summary.Added = append(summary.Added, Added{Name: name, ID: id})
	}

	return summary, nil
}
