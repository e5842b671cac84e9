// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package arr

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string     { return &s }
func floatPtr(f float64) *float64 { return &f }

func TestQueueItemFinished(t *testing.T) {
	tests := []struct {
		name     string
		timeleft *string
		sizeleft *float64
		status   string
		want     bool
	}{
		{name: "all conditions hold", timeleft: strPtr("00:00:00"), sizeleft: floatPtr(0), status: "completed", want: true},
		{name: "time remaining left", timeleft: strPtr("00:00:01"), sizeleft: floatPtr(0), status: "completed", want: false},
		{name: "bytes remaining", timeleft: strPtr("00:00:00"), sizeleft: floatPtr(10), status: "completed", want: false},
		{name: "still downloading", timeleft: strPtr("00:00:00"), sizeleft: floatPtr(0), status: "downloading", want: false},
		{name: "no time remaining", timeleft: nil, sizeleft: floatPtr(0), status: "completed", want: false},
		{name: "no size remaining", timeleft: strPtr("00:00:00"), sizeleft: nil, status: "completed", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := QueueItem{ID: 1, Timeleft: tt.timeleft, Sizeleft: tt.sizeleft, Status: tt.status}
			assert.Equal(t, tt.want, item.Finished())
		})
	}
}

func TestQueueItemPredicates(t *testing.T) {
	item := QueueItem{ID: 42}
	assert.False(t, item.HasError())
	assert.False(t, item.FailedToImport())
	assert.Equal(t, "42", item.TitleOrID())

	item.ErrorMessage = strPtr("")
	assert.True(t, item.HasError(), "an empty message still counts as an error")

	item.StatusMessages = []StatusMessage{
		{Title: "Some.Release.mkv", Messages: []string{"Not an upgrade"}},
		{Title: FailedToImportTitle},
	}
	assert.True(t, item.FailedToImport())

	item.Title = strPtr("Some.Movie.2021.1080p")
	assert.Equal(t, "Some.Movie.2021.1080p", item.TitleOrID())
}

func TestQueueItemMedia(t *testing.T) {
	item := QueueItem{Series: &MediaRef{ID: 7}}
	require.NotNil(t, item.Media())
	assert.Equal(t, 7, item.Media().ID)

	item.Movie = &MediaRef{ID: 3}
	assert.Equal(t, 3, item.Media().ID)

	assert.Nil(t, (&QueueItem{}).Media())
}

func TestQueueItemParsedFields(t *testing.T) {
	item := QueueItem{}
	_, ok, err := item.TimeRemaining()
	require.NoError(t, err)
	assert.False(t, ok)

	item.Timeleft = strPtr("01:00:00")
	left, ok, err := item.TimeRemaining()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3600.0, left.Seconds())

	item.Timeleft = strPtr("soon")
	_, ok, err = item.TimeRemaining()
	assert.True(t, ok)
	assert.Error(t, err)

	item.Added = strPtr("2024-01-01T00:00:00Z")
	added, ok, err := item.AddedAt()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1704067200.0, added.Seconds())
}

func TestQueuePageDecode(t *testing.T) {
	payload := `{
		"page": 1,
		"pageSize": 1000,
		"totalRecords": 2,
		"records": [
			{
				"id": 11,
				"movieId": 5,
				"size": 1073741824,
				"languages": [{"id": 1, "name": "English"}],
				"status": "downloading",
				"sizeleft": 536870912,
				"timeleft": "00:12:30",
				"title": "Some.Movie.2021.1080p",
				"added": "2024-01-01T00:00:00Z",
				"movie": {"id": 5, "title": "Some Movie"}
			},
			{
				"id": 12,
				"size": 0,
				"status": "queued",
				"errorMessage": "tracker unreachable",
				"statusMessages": [{"title": "x", "messages": ["y"]}]
			}
		]
	}`

	var page QueuePage
	require.NoError(t, json.Unmarshal([]byte(payload), &page))
	require.Len(t, page.Records, 2)

	first, ok := page.Lookup(11)
	require.True(t, ok)
	require.NotNil(t, first.MovieID)
	assert.Equal(t, 5, *first.MovieID)
	assert.True(t, first.HasLanguage(1))
	assert.False(t, first.HasLanguage(2))
	assert.Equal(t, "00:12:30", *first.Timeleft)

	second, ok := page.Lookup(12)
	require.True(t, ok)
	assert.Nil(t, second.Timeleft)
	assert.Nil(t, second.MovieID)
	assert.True(t, second.HasError())

	_, ok = page.Lookup(99)
	assert.False(t, ok)

	var nilPage *QueuePage
	_, ok = nilPage.Lookup(11)
	assert.False(t, ok)
}

func TestParseAppVersion(t *testing.T) {
	tests := []struct {
		raw       string
		want      string
		supported bool
		wantErr   bool
	}{
		{raw: "5.2.6.8376", want: "5.2.6", supported: true},
		{raw: "4.0.0", want: "4.0.0", supported: true},
		{raw: "v3.0.10", want: "3.0.10", supported: true},
		{raw: "2.0.0.5344", want: "2.0.0", supported: false},
		{raw: "nightly", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			status := SystemStatus{AppName: "Radarr", Version: tt.raw}
			supported, err := status.Supported()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.supported, supported)

			v, err := ParseAppVersion(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, v.String())
		})
	}
}
