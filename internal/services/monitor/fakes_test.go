// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/autobrr/arrwarden/internal/arr"
	"github.com/autobrr/arrwarden/internal/domain"
	"github.com/autobrr/arrwarden/internal/models"
	"github.com/autobrr/arrwarden/internal/timeval"
)

type removeCall struct {
	ID   int
	Opts arr.RemoveOptions
}

type grabCall struct {
	GUID      string
	IndexerID int
}

type fakeClient struct {
	mu sync.Mutex

	page     *arr.QueuePage
	queueErr error
	releases []arr.Release
	status   *arr.SystemStatus

	removed   []removeCall
	cleared   []int
	searched  []arr.ReleaseQuery
	grabbed   []grabCall
	removeErr error
}

func (f *fakeClient) GetQueue(context.Context) (*arr.QueuePage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queueErr != nil {
		return nil, f.queueErr
	}
	if f.page == nil {
		return &arr.QueuePage{}, nil
	}
	return f.page, nil
}

func (f *fakeClient) RemoveFromQueue(_ context.Context, id int, opts arr.RemoveOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, removeCall{ID: id, Opts: opts})
	return f.removeErr
}

func (f *fakeClient) ClearBlocklist(_ context.Context, mediaID *int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if mediaID != nil {
		f.cleared = append(f.cleared, *mediaID)
	}
	return nil
}

func (f *fakeClient) SearchReleases(_ context.Context, q arr.ReleaseQuery) ([]arr.Release, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searched = append(f.searched, q)
	return f.releases, nil
}

func (f *fakeClient) GrabRelease(_ context.Context, guid string, indexerID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.grabbed = append(f.grabbed, grabCall{GUID: guid, IndexerID: indexerID})
	return nil
}

func (f *fakeClient) SystemStatus(context.Context) (*arr.SystemStatus, error) {
	if f.status == nil {
		return nil, errors.New("status unavailable")
	}
	return f.status, nil
}

func (f *fakeClient) removals() []removeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]removeCall(nil), f.removed...)
}

// memStore keeps the record in memory and counts commits.
type memStore struct {
	mu      sync.Mutex
	rec     *models.RunRecord
	saves   int
	loadErr error
}

func (s *memStore) Load(now timeval.Time, curIter int) (*models.RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	if s.rec == nil {
		return models.NewRunRecord(now, curIter), nil
	}
	return s.rec.Clone(), nil
}

func (s *memStore) Save(rec *models.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec = rec.Clone()
	s.saves++
	return nil
}

func (s *memStore) snapshot() (*models.RunRecord, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec.Clone(), s.saves
}

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock(t time.Time) *fixedClock {
	return &fixedClock{now: t}
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testConfig() domain.MonitorConfig {
	return domain.MonitorConfig{
		Name:               "radarr",
		LogFilePath:        "log/radarr.log",
		RecordFilePath:     "data/radarr.json",
		APIEndpoint:        "http://localhost:7878/api/v3",
		APIKey:             "secret",
		RunIntervalSecs:    30,
		MaxLogSizeBytes:    1 << 20,
		MaxMediaSizeBytes:  10 << 30,
		MaxDownloadTimeSec: 3600,
		MaxErrTimeSecs:     600,
		ReapIntervalSecs:   3 * 86400,
		HopelessThreshold:  0.5,
		WarmupTimeSecs:     60,
	}
}

func strPtr(s string) *string     { return &s }
func intPtr(i int) *int           { return &i }
func floatPtr(f float64) *float64 { return &f }

// downloading builds a queue item that is actively downloading.
func downloading(id int, timeleft string, added time.Time) arr.QueueItem {
	return arr.QueueItem{
		ID:        id,
		MovieID:   intPtr(100 + id),
		Size:      1 << 30,
		Languages: []arr.Language{{ID: 1, Name: "English"}},
		Status:    "downloading",
		Sizeleft:  floatPtr(1 << 29),
		Timeleft:  strPtr(timeleft),
		Title:     strPtr("Some.Movie.2021.1080p"),
		Added:     strPtr(added.UTC().Format(time.RFC3339)),
	}
}
