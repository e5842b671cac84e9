// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/arrwarden/internal/arr"
	"github.com/autobrr/arrwarden/internal/models"
	"github.com/autobrr/arrwarden/internal/timeval"
)

func trackedIDs(rec *models.RunRecord) []int {
	ids := make([]int, 0, rec.Len())
	for _, item := range rec.Items {
		ids = append(ids, item.ID)
	}
	return ids
}

func TestReconcileTracksOnlyStartedItems(t *testing.T) {
	now := time.Now()
	queued := arr.QueueItem{ID: 2, Title: strPtr("Queued.Movie")}
	page := &arr.QueuePage{Records: []arr.QueueItem{downloading(1, "01:00:00", now), queued}}

	rec := models.NewRunRecord(timeval.Now(), 0)
	added, removed := Reconcile(rec, page)

	assert.Equal(t, []int{1}, added)
	assert.Empty(t, removed)
	assert.Equal(t, []int{1}, trackedIDs(rec))

	item, ok := rec.Get(1)
	require.True(t, ok)
	assert.Equal(t, "Some.Movie.2021.1080p", item.Title)
	assert.Nil(t, item.ErrorTime)
	assert.Zero(t, item.NumTimeleftSamples)
	assert.Zero(t, item.NumTimeleftSamplesExceedingMax)

	// starts downloading later
	page.Records[1].Timeleft = strPtr("02:00:00")
	added, _ = Reconcile(rec, page)
	assert.Equal(t, []int{2}, added)
	assert.ElementsMatch(t, []int{1, 2}, trackedIDs(rec))
}

func TestReconcileFallsBackToIDForTitle(t *testing.T) {
	item := arr.QueueItem{ID: 55, Timeleft: strPtr("00:10:00")}
	rec := models.NewRunRecord(timeval.Now(), 0)

	Reconcile(rec, &arr.QueuePage{Records: []arr.QueueItem{item}})

	tracked, ok := rec.Get(55)
	require.True(t, ok)
	assert.Equal(t, "55", tracked.Title)
}

func TestReconcileDropsVanishedItems(t *testing.T) {
	errTime := timeval.FromSeconds(10)
	rec := models.NewRunRecord(timeval.Now(), 0)
	rec.Track(models.TrackedItem{ID: 1, Title: "kept", NumTimeleftSamples: 3})
	rec.Track(models.TrackedItem{ID: 2, Title: "gone", ErrorTime: &errTime})
	rec.Track(models.TrackedItem{ID: 3, Title: "also gone"})

	page := &arr.QueuePage{Records: []arr.QueueItem{downloading(1, "00:30:00", time.Now())}}
	added, removed := Reconcile(rec, page)

	assert.Empty(t, added)
	assert.ElementsMatch(t, []int{2, 3}, removed)
	assert.Equal(t, []int{1}, trackedIDs(rec))

	kept, _ := rec.Get(1)
	assert.Equal(t, 3, kept.NumTimeleftSamples, "existing history is preserved")
}

func TestReconcileIsIdempotent(t *testing.T) {
	now := time.Now()
	page := &arr.QueuePage{Records: []arr.QueueItem{
		downloading(1, "01:00:00", now),
		downloading(2, "00:05:00", now),
		{ID: 3},
	}}

	rec := models.NewRunRecord(timeval.Now(), 0)
	rec.Track(models.TrackedItem{ID: 9, Title: "stale"})

	Reconcile(rec, page)
	once := rec.Clone()

	added, removed := Reconcile(rec, page)
	assert.Empty(t, added)
	assert.Empty(t, removed)
	assert.Equal(t, once.Items, rec.Items)
}

func TestReconcileEmptySnapshotClearsRecord(t *testing.T) {
	rec := models.NewRunRecord(timeval.Now(), 0)
	rec.Track(models.TrackedItem{ID: 1})

	_, removed := Reconcile(rec, &arr.QueuePage{})
	assert.Equal(t, []int{1}, removed)
	assert.Zero(t, rec.Len())
}
