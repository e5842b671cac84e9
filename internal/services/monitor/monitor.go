// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package monitor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/autobrr/arrwarden/internal/arr"
	"github.com/autobrr/arrwarden/internal/domain"
	"github.com/autobrr/arrwarden/internal/models"
	"github.com/autobrr/arrwarden/internal/timeval"
)

// State is the run loop position of a monitor.
type State string

const (
	StateIdle        State = "idle"
	StatePolling     State = "polling"
	StateReconciling State = "reconciling"
	StateDeciding    State = "deciding"
	StatePersisting  State = "persisting"
	StateSleeping    State = "sleeping"
	StateStopped     State = "stopped"
)

const defaultActionConcurrency = 4

// ArrClient is the subset of the *arr API a monitor uses.
type ArrClient interface {
	GetQueue(ctx context.Context) (*arr.QueuePage, error)
	RemoveFromQueue(ctx context.Context, id int, opts arr.RemoveOptions) error
	ClearBlocklist(ctx context.Context, mediaID *int) error
	SearchReleases(ctx context.Context, query arr.ReleaseQuery) ([]arr.Release, error)
	GrabRelease(ctx context.Context, guid string, indexerID int) error
	SystemStatus(ctx context.Context) (*arr.SystemStatus, error)
}

// RecordStore loads and commits a monitor's run record.
type RecordStore interface {
	Load(now timeval.Time, curIter int) (*models.RunRecord, error)
	Save(rec *models.RunRecord) error
}

// recordLocker is implemented by stores that need exclusive ownership.
type recordLocker interface {
	Lock() error
	Unlock() error
}

// Recorder receives iteration and action outcomes, typically for metrics.
type Recorder interface {
	ObserveIteration(monitor string, elapsed time.Duration, queueOK bool, tracked int)
	ObserveDecision(monitor string, outcome Outcome)
	ObserveAction(monitor string, kind ActionKind, reason Reason, err error)
	ObserveState(monitor string, state State)
}

type nopRecorder struct{}

func (nopRecorder) ObserveIteration(string, time.Duration, bool, int) {}
func (nopRecorder) ObserveDecision(string, Outcome)                   {}
func (nopRecorder) ObserveAction(string, ActionKind, Reason, error)   {}
func (nopRecorder) ObserveState(string, State)                        {}

// Status is a point-in-time view of a monitor for status endpoints.
type Status struct {
	Name      string     `json:"name"`
	Endpoint  string     `json:"endpoint"`
	State     State      `json:"state"`
	Iteration int        `json:"iteration"`
	LastRun   *time.Time `json:"lastRun,omitempty"`
	Tracked   int        `json:"tracked"`
	LastError string     `json:"lastError,omitempty"`
}

// Monitor watches one *arr queue.
type Monitor struct {
	cfg         domain.MonitorConfig
	client      ArrClient
	store       RecordStore
	logger      zerolog.Logger
	recorder    Recorder
	now         func() time.Time
	concurrency int

	mu        sync.RWMutex
	state     State
	iteration int
	lastRun   time.Time
	tracked   int
	lastErr   error
}

type Option func(*Monitor)

func WithRecorder(r Recorder) Option {
	return func(m *Monitor) {
		if r != nil {
			m.recorder = r
		}
	}
}

// WithClock replaces the wall clock used for decisions.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		if now != nil {
			m.now = now
		}
	}
}

// WithConcurrency bounds how many remediation requests run at once.
func WithConcurrency(n int) Option {
	return func(m *Monitor) {
		if n > 0 {
			m.concurrency = n
		}
	}
}

func New(cfg domain.MonitorConfig, client ArrClient, store RecordStore, logger zerolog.Logger, opts ...Option) *Monitor {
	m := &Monitor{
		cfg:         cfg,
		client:      client,
		store:       store,
		logger:      logger,
		recorder:    nopRecorder{},
		now:         time.Now,
		concurrency: defaultActionConcurrency,
		state:       StateIdle,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Monitor) Name() string {
	return m.cfg.Name
}

// State returns the current run loop state.
func (m *Monitor) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Monitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Status{
		Name:      m.cfg.Name,
		Endpoint:  m.cfg.APIEndpoint,
		State:     m.state,
		Iteration: m.iteration,
		Tracked:   m.tracked,
	}
	if !m.lastRun.IsZero() {
		lastRun := m.lastRun
		s.LastRun = &lastRun
	}
	if m.lastErr != nil {
		s.LastError = m.lastErr.Error()
	}
	return s
}

func (m *Monitor) setState(state State) {
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()

	m.logger.Debug().Str("state", string(state)).Msg("Monitor state changed")
	m.recorder.ObserveState(m.cfg.Name, state)
}

// Run polls the queue every run interval until ctx is cancelled. An iteration
// that has started always persists its record before Run returns. A non-nil
// error means the monitor stopped on a fault.
func (m *Monitor) Run(ctx context.Context) (err error) {
	if locker, ok := m.store.(recordLocker); ok {
		if err := locker.Lock(); err != nil {
			m.setState(StateStopped)
			return fmt.Errorf("monitor %s: %w", m.cfg.Name, err)
		}
		defer func() {
			if unlockErr := locker.Unlock(); unlockErr != nil {
				m.logger.Warn().Err(unlockErr).Msg("Failed to release record lock")
			}
		}()
	}

	m.logger.Info().
		Str("endpoint", m.cfg.APIEndpoint).
		Str("interval", m.cfg.RunInterval().String()).
		Msg("Monitor started")
	m.probe(ctx)

	interval := m.cfg.RunInterval()
	for curIter := 0; ctx.Err() == nil; curIter++ {
		if err := m.RunIteration(ctx, curIter); err != nil {
			m.setState(StateStopped)
			m.logger.Error().Err(err).Msg("Monitor stopped on fault")
			return fmt.Errorf("monitor %s: %w", m.cfg.Name, err)
		}

		m.setState(StateSleeping)
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
		}
	}

	m.setState(StateStopped)
	m.logger.Info().Msg("Monitor stopped")
	return nil
}

func (m *Monitor) probe(ctx context.Context) {
	status, err := m.client.SystemStatus(ctx)
	if err != nil {
		m.logger.Warn().Err(err).Msg("Could not read system status")
		return
	}

	supported, err := status.Supported()
	switch {
	case err != nil:
		m.logger.Warn().Err(err).Str("app", status.AppName).Msg("Unrecognised application version")
	case !supported:
		m.logger.Warn().Str("app", status.AppName).Str("version", status.Version).Msg("Application version predates the v3 API")
	default:
		m.logger.Info().Str("app", status.AppName).Str("version", status.Version).Msg("Connected")
	}
}

// RunIteration performs one poll, reconcile, decide and persist pass. The
// record is written back on every exit path once it has been loaded,
// including a panic, which is then returned as an error.
func (m *Monitor) RunIteration(ctx context.Context, curIter int) (err error) {
	logger := m.logger.With().Str("iteration", uuid.NewString()).Int("iter", curIter).Logger()
	started := m.now()

	m.setState(StatePolling)
	logger.Debug().Msgf("===== Running monitor iteration %d =====", curIter)
	page, queueErr := m.client.GetQueue(ctx)

	rec, err := m.store.Load(timeval.FromTime(started), curIter)
	if err != nil {
		m.setLastError(err)
		return fmt.Errorf("load record: %w", err)
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Str("stack", string(debug.Stack())).Msgf("Iteration panicked: %v", r)
			err = fmt.Errorf("iteration %d panicked: %v", curIter, r)
		}

		m.setState(StatePersisting)
		rec.LastRun = timeval.FromTime(m.now())
		rec.CurIter = curIter
		if saveErr := m.store.Save(rec); saveErr != nil {
			err = errors.Join(err, fmt.Errorf("save record: %w", saveErr))
		}

		m.mu.Lock()
		m.iteration = curIter
		m.lastRun = rec.LastRun.Time()
		m.tracked = rec.Len()
		m.lastErr = err
		m.mu.Unlock()

		m.recorder.ObserveIteration(m.cfg.Name, m.now().Sub(started), queueErr == nil, rec.Len())
	}()

	if queueErr != nil {
		logger.Warn().Err(queueErr).Msg("Queue unavailable, skipping this iteration")
		return nil
	}

	m.setState(StateReconciling)
	added, removed := Reconcile(rec, page)
	if len(added) > 0 || len(removed) > 0 {
		logger.Debug().Ints("added", added).Ints("removed", removed).Int("tracked", rec.Len()).Msg("Record synced with queue")
	}

	m.setState(StateDeciding)
	now := timeval.FromTime(m.now())
	var actions []Action
	for i := range rec.Items {
		tracked := &rec.Items[i]
		item, ok := page.Lookup(tracked.ID)
		if !ok {
			logger.Error().Int("id", tracked.ID).Msgf("Queue record for %s not found in queue", tracked.Title)
			continue
		}

		d, evalErr := evaluate(m.cfg, now, tracked, item)
		if evalErr != nil {
			logger.Error().Err(evalErr).Str("title", item.TitleOrID()).Msg("Skipping queue item")
			continue
		}
		if d.Anomaly != nil {
			logger.Warn().Err(d.Anomaly).Str("title", item.TitleOrID()).Msg("Queue item has malformed data")
		}

		m.recorder.ObserveDecision(m.cfg.Name, d.Outcome)
		m.logDecision(logger, tracked, item, d)
		actions = append(actions, d.Actions...)
	}

	m.dispatch(ctx, logger, actions)
	return nil
}

func (m *Monitor) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Monitor) logDecision(logger zerolog.Logger, tracked *models.TrackedItem, item *arr.QueueItem, d Decision) {
	title := item.TitleOrID()

	switch d.Outcome {
	case OutcomeErrorFirstSeen:
		logger.Info().Str("error", *item.ErrorMessage).Msgf("%s reported an error, watching it", title)
	case OutcomeErrorExpired:
		logger.Info().Msgf("%s has error [ %s ] for too long, blocklisting...", title, *item.ErrorMessage)
	case OutcomeFailedImport:
		logger.Info().Msgf("%s is finished but failed to import, removing from queue...", title)
	case OutcomeOversized:
		logger.Info().Msgf("%s is too large (%s, limit %s), blocklisting...",
			title, humanize.IBytes(uint64(item.Size)), humanize.IBytes(uint64(m.cfg.MaxMediaSizeBytes)))
	case OutcomeSampled:
		logger.Debug().
			Bool("exceeded", d.Exceeded).
			Int("samples", tracked.NumTimeleftSamples).
			Int("exceeding", tracked.NumTimeleftSamplesExceedingMax).
			Msgf("Sampled time remaining for %s", title)
	}

	for _, a := range d.Actions {
		switch a.Reason {
		case ReasonHopeless:
			logger.Info().Msgf("%s is hopeless (num_timeleft_samples_exceeding_max=%d, num_timeleft_samples=%d), blocklisting...",
				title, tracked.NumTimeleftSamplesExceedingMax, tracked.NumTimeleftSamples)
		case ReasonStale:
			logger.Info().Msgf("%s has been stuck for too long, reaping...", title)
		}
	}
}

// dispatch issues every action concurrently and waits for all of them.
// Requests run detached from ctx so shutdown never aborts one mid-flight.
func (m *Monitor) dispatch(ctx context.Context, logger zerolog.Logger, actions []Action) {
	if len(actions) == 0 {
		return
	}

	actx := context.WithoutCancel(ctx)
	var g errgroup.Group
	g.SetLimit(m.concurrency)

	for _, action := range actions {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("%s action for queue item %d panicked: %v", action.Kind, action.Item.ID, r)
				}
				m.recorder.ObserveAction(m.cfg.Name, action.Kind, action.Reason, err)
			}()
			return m.execute(actx, logger, action)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Warn().Err(err).Int("actions", len(actions)).Msg("One or more remediation requests failed")
	}
}

func (m *Monitor) execute(ctx context.Context, logger zerolog.Logger, a Action) error {
	switch a.Kind {
	case ActionBlocklistRedownload:
		return m.client.RemoveFromQueue(ctx, a.Item.ID, arr.RemoveOptions{
			RemoveFromClient: true,
			Blocklist:        true,
			Redownload:       true,
		})
	case ActionRemove:
		return m.client.RemoveFromQueue(ctx, a.Item.ID, arr.RemoveOptions{RemoveFromClient: true})
	case ActionReap:
		return m.reap(ctx, logger, &a.Item)
	default:
		return fmt.Errorf("unknown action %q", a.Kind)
	}
}

// reap clears the media's blocklist and grabs the best remaining release.
func (m *Monitor) reap(ctx context.Context, logger zerolog.Logger, item *arr.QueueItem) error {
	title := item.TitleOrID()

	if mediaID := mediaIDOf(item); mediaID != nil {
		if err := m.client.ClearBlocklist(ctx, mediaID); err != nil {
			logger.Warn().Err(err).Int("media_id", *mediaID).Msgf("Could not clear blocklist for %s", title)
		}
	}

	query := arr.ReleaseQuery{MovieID: item.MovieID, EpisodeID: item.EpisodeID}
	if query.MovieID == nil && query.EpisodeID == nil {
		return fmt.Errorf("queue item %d has no movie or episode id to search for", item.ID)
	}

	releases, err := m.client.SearchReleases(ctx, query)
	if err != nil {
		return err
	}

	logger.Info().Int("releases", len(releases)).Msgf("searching for %s manually", title)

	sel := SelectCandidate(releases, item.Languages)
	for _, skipped := range sel.Skipped {
		logger.Debug().Str("release", releaseLabel(skipped.Release)).Str("reason", skipped.Reason).Msg("Release skipped")
	}

	if sel.Best == nil {
		logger.Warn().Msgf("%s has no viable candidate", title)
		return nil
	}

	best := sel.Best
	logger.Info().
		Int("seeders", *best.Seeders).
		Int("resolution", effectiveResolution(*best)).
		Str("size", humanize.IBytes(uint64(max(best.Size, 0)))).
		Int("indexer_id", best.IndexerID).
		Msgf("attempt downloading %s with %s", title, *best.GUID)

	return m.client.GrabRelease(ctx, *best.GUID, best.IndexerID)
}

func mediaIDOf(item *arr.QueueItem) *int {
	if item.MovieID != nil {
		return item.MovieID
	}
	if media := item.Media(); media != nil {
		id := media.ID
		return &id
	}
	return item.SeriesID
}

func releaseLabel(r arr.Release) string {
	if r.Title != "" {
		return r.Title
	}
	if r.GUID != nil {
		return *r.GUID
	}
	return "<unknown>"
}
