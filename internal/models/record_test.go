// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/arrwarden/internal/timeval"
)

func newLockedStore(t *testing.T) *RecordStore {
	t.Helper()
	store := NewRecordStore(filepath.Join(t.TempDir(), "data", "radarr.json"))
	require.NoError(t, store.Lock())
	t.Cleanup(func() { _ = store.Unlock() })
	return store
}

func TestRecordStoreLoadMissingFile(t *testing.T) {
	store := newLockedStore(t)
	now := timeval.FromSeconds(1700000000)

	rec, err := store.Load(now, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, rec.CurIter)
	assert.True(t, rec.LastRun.Equal(now))
	assert.Zero(t, rec.Len())
}

func TestRecordStoreRoundTrip(t *testing.T) {
	store := newLockedStore(t)

	errTime := timeval.FromSeconds(1700000100.25)
	rec := NewRunRecord(timeval.FromSeconds(1700000000), 12)
	require.True(t, rec.Track(TrackedItem{Title: "Some.Movie.2021", ID: 1, NumTimeleftSamples: 5, NumTimeleftSamplesExceedingMax: 3}))
	require.True(t, rec.Track(TrackedItem{Title: "2", ID: 2, ErrorTime: &errTime}))

	require.NoError(t, store.Save(rec))

	loaded, err := store.Load(timeval.Now(), 0)
	require.NoError(t, err)
	assert.Equal(t, 12, loaded.CurIter)
	assert.True(t, loaded.LastRun.Equal(rec.LastRun))
	require.Len(t, loaded.Items, 2)

	for _, want := range rec.Items {
		got, ok := loaded.Get(want.ID)
		require.True(t, ok)
		assert.Equal(t, want.Title, got.Title)
		assert.Equal(t, want.NumTimeleftSamples, got.NumTimeleftSamples)
		assert.Equal(t, want.NumTimeleftSamplesExceedingMax, got.NumTimeleftSamplesExceedingMax)
		if want.ErrorTime == nil {
			assert.Nil(t, got.ErrorTime)
		} else {
			require.NotNil(t, got.ErrorTime)
			assert.True(t, want.ErrorTime.Equal(*got.ErrorTime))
		}
	}
}

func TestRecordStoreSaveLeavesNoTempFiles(t *testing.T) {
	store := newLockedStore(t)
	rec := NewRunRecord(timeval.Now(), 0)

	require.NoError(t, store.Save(rec))
	require.NoError(t, store.Save(rec))

	entries, err := os.ReadDir(filepath.Dir(store.Path()))
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"radarr.json", "radarr.json.lock"}, names)
}

func TestRecordStoreLockIsExclusive(t *testing.T) {
	store := newLockedStore(t)

	other := NewRecordStore(store.Path())
	err := other.Lock()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRecordLocked))

	_, err = other.Load(timeval.Now(), 0)
	assert.ErrorIs(t, err, ErrStoreNotOwned)
	assert.ErrorIs(t, other.Save(NewRunRecord(timeval.Now(), 0)), ErrStoreNotOwned)
}

func TestRecordStoreRejectsCorruptFile(t *testing.T) {
	store := newLockedStore(t)
	require.NoError(t, os.WriteFile(store.Path(), []byte("{not json"), 0644))

	_, err := store.Load(timeval.Now(), 0)
	assert.Error(t, err)
}

func TestRecordStoreRejectsDuplicateIDs(t *testing.T) {
	store := newLockedStore(t)
	payload := `{"lastRun":"2024-01-01T00:00:00Z","curIter":1,"items":[{"title":"a","id":1},{"title":"b","id":1}]}`
	require.NoError(t, os.WriteFile(store.Path(), []byte(payload), 0644))

	_, err := store.Load(timeval.Now(), 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateItem))
}

func TestRecordStoreLoadsLegacyLayout(t *testing.T) {
	store := newLockedStore(t)
	payload := `{
 "lastRun": "486123:10:05.123",
 "curIter": 42,
 "movies": [
  {"title": "Some.Movie.2021", "id": 7, "error_time": "486123:05:00", "num_timeleft_samples": 3, "num_timeleft_samples_exceeding_max": 2},
  {"title": "Other.Movie.2020", "id": 8, "error_time": null, "num_timeleft_samples": 0, "num_timeleft_samples_exceeding_max": 0}
 ]
}`
	require.NoError(t, os.MkdirAll(filepath.Dir(store.Path()), 0755))
	require.NoError(t, os.WriteFile(store.Path(), []byte(payload), 0644))

	rec, err := store.Load(timeval.Now(), 0)
	require.NoError(t, err)
	assert.Equal(t, 42, rec.CurIter)
	assert.InDelta(t, 486123*3600+10*60+5.123, rec.LastRun.Seconds(), 1e-6)
	require.Len(t, rec.Items, 2)

	first, ok := rec.Get(7)
	require.True(t, ok)
	require.NotNil(t, first.ErrorTime)
	assert.Equal(t, float64(486123*3600+5*60), first.ErrorTime.Seconds())
	assert.Equal(t, 3, first.NumTimeleftSamples)
	assert.Equal(t, 2, first.NumTimeleftSamplesExceedingMax)

	second, ok := rec.Get(8)
	require.True(t, ok)
	assert.Nil(t, second.ErrorTime)

	require.NoError(t, store.Save(rec))
	data, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"items"`)
	assert.NotContains(t, string(data), `"movies"`)
}

func TestRunRecordMutations(t *testing.T) {
	rec := NewRunRecord(timeval.Now(), 0)
	assert.True(t, rec.Track(TrackedItem{ID: 1, Title: "one"}))
	assert.False(t, rec.Track(TrackedItem{ID: 1, Title: "again"}))
	assert.True(t, rec.Track(TrackedItem{ID: 2, Title: "two"}))
	assert.True(t, rec.Track(TrackedItem{ID: 3, Title: "three"}))

	item, ok := rec.Get(1)
	require.True(t, ok)
	assert.Equal(t, "one", item.Title)

	item.NumTimeleftSamples = 9
	again, _ := rec.Get(1)
	assert.Equal(t, 9, again.NumTimeleftSamples, "Get returns a reference into the record")

	assert.True(t, rec.Remove(2))
	assert.False(t, rec.Remove(2))

	rec.Retain(func(it *TrackedItem) bool { return it.ID != 3 })
	assert.Equal(t, 1, rec.Len())

	clone := rec.Clone()
	clone.Items[0].Title = "changed"
	assert.Equal(t, "one", rec.Items[0].Title)
}

func TestTrackedItemHopelessRatio(t *testing.T) {
	assert.Zero(t, (&TrackedItem{}).HopelessRatio())
	assert.Equal(t, 0.5, (&TrackedItem{NumTimeleftSamples: 4, NumTimeleftSamplesExceedingMax: 2}).HopelessRatio())
}
