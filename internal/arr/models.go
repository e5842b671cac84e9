// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package arr

import (
	"strconv"

	"github.com/autobrr/arrwarden/internal/timeval"
)

// FailedToImportTitle is the status message title Radarr attaches to a
// completed download whose files could not be imported.
const FailedToImportTitle = "One or more movies expected in this release were not imported or missing"

// StatusCompleted is the queue status of a finished download.
const StatusCompleted = "completed"

// Language is an *arr language reference. ID 0 is "Unknown".
type Language struct {
	ID   int    `json:"id"`
	Name string `json:"name,omitempty"`
}

// UnknownLanguageID is the sentinel id *arr uses when a release language is unknown.
const UnknownLanguageID = 0

type StatusMessage struct {
	Title    string   `json:"title,omitempty"`
	Messages []string `json:"messages,omitempty"`
}

// MediaRef is the minimal identity of a movie or series attached to a queue item.
type MediaRef struct {
	ID    int     `json:"id"`
	Title *string `json:"title,omitempty"`
}

// QueueItem is one record of GET /queue. Optional fields are pointers so an
// absent value is never confused with a zero value.
type QueueItem struct {
	ID             int             `json:"id"`
	MovieID        *int            `json:"movieId,omitempty"`
	SeriesID       *int            `json:"seriesId,omitempty"`
	EpisodeID      *int            `json:"episodeId,omitempty"`
	SeasonNumber   *int            `json:"seasonNumber,omitempty"`
	Size           float64         `json:"size"`
	Languages      []Language      `json:"languages,omitempty"`
	Status         string          `json:"status,omitempty"`
	Sizeleft       *float64        `json:"sizeleft,omitempty"`
	Timeleft       *string         `json:"timeleft,omitempty"`
	ErrorMessage   *string         `json:"errorMessage,omitempty"`
	StatusMessages []StatusMessage `json:"statusMessages,omitempty"`
	Title          *string         `json:"title,omitempty"`
	Added          *string         `json:"added,omitempty"`
	DownloadClient string          `json:"downloadClient,omitempty"`
	Protocol       string          `json:"protocol,omitempty"`

	Movie  *MediaRef `json:"movie,omitempty"`
	Series *MediaRef `json:"series,omitempty"`
}

// TitleOrID returns the display title, falling back to the queue id.
func (q *QueueItem) TitleOrID() string {
	if q.Title != nil {
		return *q.Title
	}
	return strconv.Itoa(q.ID)
}

// Media returns the movie when present, otherwise the series.
func (q *QueueItem) Media() *MediaRef {
	if q.Movie != nil {
		return q.Movie
	}
	return q.Series
}

// Finished reports a completed download with nothing left to fetch.
func (q *QueueItem) Finished() bool {
	return q.Timeleft != nil && *q.Timeleft == "00:00:00" &&
		q.Sizeleft != nil && *q.Sizeleft == 0 &&
		q.Status == StatusCompleted
}

func (q *QueueItem) HasError() bool {
	return q.ErrorMessage != nil
}

// FailedToImport reports whether any status message carries the import failure title.
func (q *QueueItem) FailedToImport() bool {
	for _, msg := range q.StatusMessages {
		if msg.Title == FailedToImportTitle {
			return true
		}
	}
	return false
}

// TimeRemaining parses the time-remaining string. ok is false when absent.
func (q *QueueItem) TimeRemaining() (t timeval.Time, ok bool, err error) {
	if q.Timeleft == nil {
		return timeval.Time{}, false, nil
	}
	t, err = timeval.FromDuration(*q.Timeleft)
	if err != nil {
		return timeval.Time{}, true, err
	}
	return t, true, nil
}

// AddedAt parses the added timestamp. ok is false when absent.
func (q *QueueItem) AddedAt() (t timeval.Time, ok bool, err error) {
	if q.Added == nil {
		return timeval.Time{}, false, nil
	}
	t, err = timeval.FromISO8601(*q.Added)
	if err != nil {
		return timeval.Time{}, true, err
	}
	return t, true, nil
}

// HasLanguage reports whether the item accepts the given language id.
func (q *QueueItem) HasLanguage(id int) bool {
	for _, lang := range q.Languages {
		if lang.ID == id {
			return true
		}
	}
	return false
}

// QueuePage is one poll of the queue.
type QueuePage struct {
	Page         int         `json:"page"`
	PageSize     int         `json:"pageSize"`
	TotalRecords int         `json:"totalRecords"`
	Records      []QueueItem `json:"records"`
}

// Lookup returns the record with the given queue id.
func (p *QueuePage) Lookup(id int) (*QueueItem, bool) {
	if p == nil {
		return nil, false
	}
	for i := range p.Records {
		if p.Records[i].ID == id {
			return &p.Records[i], true
		}
	}
	return nil, false
}

type Quality struct {
	ID         int    `json:"id"`
	Name       string `json:"name,omitempty"`
	Source     string `json:"source,omitempty"`
	Resolution int    `json:"resolution"`
}

type QualityModel struct {
	Quality Quality `json:"quality"`
}

// Release is one result of GET /release.
type Release struct {
	GUID       *string      `json:"guid,omitempty"`
	Title      string       `json:"title,omitempty"`
	Indexer    string       `json:"indexer,omitempty"`
	IndexerID  int          `json:"indexerId"`
	Size       int64        `json:"size,omitempty"`
	Quality    QualityModel `json:"quality"`
	Seeders    *int         `json:"seeders,omitempty"`
	Leechers   *int         `json:"leechers,omitempty"`
	Languages  []Language   `json:"languages,omitempty"`
	Rejections []string     `json:"rejections,omitempty"`
}

// GrabRequest is the body of POST /release.
type GrabRequest struct {
	GUID      string `json:"guid"`
	IndexerID int    `json:"indexerId"`
}

// CommandRequest is the body of POST /command.
type CommandRequest struct {
	Name string `json:"name"`
}

// SystemStatus is the subset of GET /system/status the monitor reports.
type SystemStatus struct {
	AppName string `json:"appName"`
	Version string `json:"version"`
	Branch  string `json:"branch,omitempty"`
}
