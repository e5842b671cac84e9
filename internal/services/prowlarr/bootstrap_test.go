// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package prowlarr

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const schemaPayload = `[
	{"definitionName": "1337x", "privacy": "public", "name": "1337x", "fields": [{"name": "baseUrl"}]},
	{"definitionName": "private-one", "privacy": "private"},
	{"definitionName": "broken", "privacy": "public"},
	{"definitionName": "semi", "privacy": "semiPrivate"},
	{"name": "nameless-public", "privacy": "public"},
	{"definitionName": "no-privacy"},
	{"definitionName": "odd-privacy", "privacy": 3}
]`

func TestDefinitionAccessors(t *testing.T) {
	var defs []Definition
	require.NoError(t, json.Unmarshal([]byte(schemaPayload), &defs))

	name, ok := defs[0].String("definitionName")
	assert.True(t, ok)
	assert.Equal(t, "1337x", name)

	_, ok = defs[0].String("missing")
	assert.False(t, ok)

	_, ok = defs[0].String("fields")
	assert.False(t, ok, "non-string values are reported as absent")

	_, ok = defs[6].String("privacy")
	assert.False(t, ok)
	assert.False(t, defs[6].IsPublic())
	assert.False(t, defs[5].IsPublic())

	assert.Equal(t, "nameless-public", defs[4].Name())
	assert.Equal(t, "<unnamed>", Definition{}.Name())

	require.NoError(t, defs[0].Set("appProfileId", 1))
	id, ok := defs[0].Int("appProfileId")
	assert.True(t, ok)
	assert.Equal(t, 1, id)

	_, ok = defs[0].Int("definitionName")
	assert.False(t, ok)
}

func TestBootstrapAddsPublicIndexers(t *testing.T) {
	var mu sync.Mutex
	var posted []map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.Header.Get("X-Api-Key"))
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/indexer/schema":
			_, _ = io.WriteString(w, schemaPayload)
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/indexer":
			var body map[string]any
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			mu.Lock()
			posted = append(posted, body)
			mu.Unlock()
			if body["definitionName"] == "broken" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = io.WriteString(w, `[{"errorMessage":"Unable to connect to indexer"}]`)
				return
			}
			w.WriteHeader(http.StatusCreated)
			if body["definitionName"] == "1337x" {
				_, _ = io.WriteString(w, `{"id": 12, "definitionName": "1337x"}`)
			}
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)

	client := NewClient(srv.URL+"/api/v1", "key", zerolog.Nop())
	summary, err := Bootstrap(context.Background(), client, DefaultAppProfileID, zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, []Added{{Name: "1337x", ID: 12}, {Name: "nameless-public"}}, summary.Added)
	require.Len(t, summary.Failed, 1)
	assert.Equal(t, "broken", summary.Failed[0].Name)
	assert.Equal(t, 4, summary.Skipped)

	require.Len(t, posted, 3)
	for _, body := range posted {
		assert.Equal(t, float64(DefaultAppProfileID), body["appProfileId"])
	}
	assert.NotNil(t, posted[0]["fields"], "unknown fields are sent back unchanged")
}

func TestBootstrapSchemaFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	client := NewClient(srv.URL, "wrong", zerolog.Nop())
	_, err := Bootstrap(context.Background(), client, DefaultAppProfileID, zerolog.Nop())
	assert.Error(t, err)
}
