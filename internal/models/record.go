// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/arrwarden/internal/timeval"
)

var (
	ErrRecordLocked  = errors.New("record file is in use by another process")
	ErrDuplicateItem = errors.New("duplicate tracked item id")
	ErrStoreNotOwned = errors.New("record store is not locked")
)

// TrackedItem is the persisted history of one queue item under observation.
type TrackedItem struct {
	Title     string        `json:"title"`
	ID        int           `json:"id"`
	ErrorTime *timeval.Time `json:"errorTime"`
	// NumTimeleftSamples counts every time-remaining sample taken.
	NumTimeleftSamples int `json:"numTimeleftSamples"`
	// NumTimeleftSamplesExceedingMax counts the samples above the download time limit.
	NumTimeleftSamplesExceedingMax int `json:"numTimeleftSamplesExceedingMax"`
}

// HopelessRatio is the fraction of samples that exceeded the limit.
func (t *TrackedItem) HopelessRatio() float64 {
	if t.NumTimeleftSamples == 0 {
		return 0
	}
	return float64(t.NumTimeleftSamplesExceedingMax) / float64(t.NumTimeleftSamples)
}

// RunRecord is the per-monitor document rewritten after every iteration.
type RunRecord struct {
	LastRun timeval.Time  `json:"lastRun"`
	CurIter int           `json:"curIter"`
	Items   []TrackedItem `json:"items"`
}

func NewRunRecord(now timeval.Time, curIter int) *RunRecord {
	return &RunRecord{LastRun: now, CurIter: curIter, Items: []TrackedItem{}}
}

// Get returns the tracked item with the given queue id.
func (r *RunRecord) Get(id int) (*TrackedItem, bool) {
	for i := range r.Items {
		if r.Items[i].ID == id {
			return &r.Items[i], true
		}
	}
	return nil, false
}

// Track adds an item unless its id is already tracked.
func (r *RunRecord) Track(item TrackedItem) bool {
	if _, exists := r.Get(item.ID); exists {
		return false
	}
	r.Items = append(r.Items, item)
	return true
}

// Remove drops the tracked item with the given id.
func (r *RunRecord) Remove(id int) bool {
	for i := range r.Items {
		if r.Items[i].ID == id {
			r.Items = append(r.Items[:i], r.Items[i+1:]...)
			return true
		}
	}
	return false
}

// Retain keeps only the items for which keep returns true.
func (r *RunRecord) Retain(keep func(*TrackedItem) bool) {
	kept := r.Items[:0]
	for i := range r.Items {
		if keep(&r.Items[i]) {
			kept = append(kept, r.Items[i])
		}
	}
	r.Items = kept
}

func (r *RunRecord) Len() int {
	return len(r.Items)
}

// Clone returns a deep copy.
func (r *RunRecord) Clone() *RunRecord {
	if r == nil {
		return nil
	}
	out := &RunRecord{LastRun: r.LastRun, CurIter: r.CurIter, Items: make([]TrackedItem, len(r.Items))}
	for i, item := range r.Items {
		if item.ErrorTime != nil {
			errTime := *item.ErrorTime
			item.ErrorTime = &errTime
		}
		out.Items[i] = item
	}
	return out
}

func (r *RunRecord) validate() error {
	seen := make(map[int]struct{}, len(r.Items))
	for _, item := range r.Items {
		if _, dup := seen[item.ID]; dup {
			return errors.Wrapf(ErrDuplicateItem, "id %d", item.ID)
		}
		seen[item.ID] = struct{}{}
	}
	return nil
}

// ReadRecordFile decodes a record file without taking ownership of it.
func ReadRecordFile(path string) (*RunRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	rec, err := decodeRecord(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode record file %s: %w", path, err)
	}
	if rec.Items == nil {
		rec.Items = []TrackedItem{}
	}
	if err := rec.validate(); err != nil {
		return nil, fmt.Errorf("record file %s: %w", path, err)
	}
	return rec, nil
}

// legacyRecord is the layout written by earlier releases: tracked items under
// "movies" with snake_case counters and HH:MM:SS timestamps.
type legacyRecord struct {
	LastRun timeval.Time `json:"lastRun"`
	CurIter int          `json:"curIter"`
	Movies  []struct {
		Title                          string        `json:"title"`
		ID                             int           `json:"id"`
		ErrorTime                      *timeval.Time `json:"error_time"`
		NumTimeleftSamples             int           `json:"num_timeleft_samples"`
		NumTimeleftSamplesExceedingMax int           `json:"num_timeleft_samples_exceeding_max"`
	} `json:"movies"`
}

func decodeRecord(data []byte) (*RunRecord, error) {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, err
	}

	_, hasItems := keys["items"]
	if _, hasMovies := keys["movies"]; !hasMovies || hasItems {
		var rec RunRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, err
		}
		return &rec, nil
	}

	var legacy legacyRecord
	if err := json.Unmarshal(data, &legacy); err != nil {
		return nil, err
	}

	rec := &RunRecord{
		LastRun: legacy.LastRun,
		CurIter: legacy.CurIter,
		Items:   make([]TrackedItem, 0, len(legacy.Movies)),
	}
	for _, m := range legacy.Movies {
		rec.Items = append(rec.Items, TrackedItem{
			Title:                          m.Title,
			ID:                             m.ID,
			ErrorTime:                      m.ErrorTime,
			NumTimeleftSamples:             m.NumTimeleftSamples,
			NumTimeleftSamplesExceedingMax: m.NumTimeleftSamplesExceedingMax,
		})
	}
	log.Info().Int("items", len(rec.Items)).Msg("Converted legacy record layout")
	return rec, nil
}

// RecordStore owns one monitor's record file. Writes replace the file
// atomically and an advisory lock keeps other processes away from it.
type RecordStore struct {
	path string
	lock *flock.Flock
}

func NewRecordStore(path string) *RecordStore {
	return &RecordStore{
		path: path,
		lock: flock.New(path + ".lock"),
	}
}

func (s *RecordStore) Path() string {
	return s.path
}

// Lock takes exclusive ownership of the record file.
func (s *RecordStore) Lock() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create record directory: %w", err)
	}
	ok, err := s.lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock %s: %w", s.lock.Path(), err)
	}
	if !ok {
		return errors.Wrap(ErrRecordLocked, s.path)
	}
	return nil
}

// Unlock releases ownership.
func (s *RecordStore) Unlock() error {
	return s.lock.Unlock()
}

// Load reads the record, or starts a fresh one when no file exists yet.
func (s *RecordStore) Load(now timeval.Time, curIter int) (*RunRecord, error) {
	if !s.lock.Locked() {
		return nil, ErrStoreNotOwned
	}

	rec, err := ReadRecordFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewRunRecord(now, curIter), nil
		}
		return nil, err
	}
	return rec, nil
}

// Save writes the whole record to a temporary file and renames it over the
// previous one.
func (s *RecordStore) Save(rec *RunRecord) error {
	if !s.lock.Locked() {
		return ErrStoreNotOwned
	}
	if err := rec.validate(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(rec, "", " ")
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	data = append(data, '\n')

	return writeFileAtomic(s.path, data, 0644)
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
