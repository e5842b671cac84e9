// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package monitor

import (
	"fmt"

	"github.com/autobrr/arrwarden/internal/arr"
	"github.com/autobrr/arrwarden/internal/domain"
	"github.com/autobrr/arrwarden/internal/models"
	"github.com/autobrr/arrwarden/internal/timeval"
)

// ActionKind is the remediation requested for a queue item.
type ActionKind string

const (
	// ActionBlocklistRedownload removes the item, blocklists the release and lets the service search again.
	ActionBlocklistRedownload ActionKind = "blocklist_redownload"
	// ActionRemove removes the item without blocklisting or searching again.
	ActionRemove ActionKind = "remove"
	// ActionReap clears the media's blocklist and grabs a release picked by SelectCandidate.
	ActionReap ActionKind = "reap"
)

// Reason explains why an action was requested.
type Reason string

const (
	ReasonErrorTimeout Reason = "error_timeout"
	ReasonFailedImport Reason = "failed_import"
	ReasonOversized    Reason = "oversized"
	ReasonHopeless     Reason = "hopeless"
	ReasonStale        Reason = "stale"
)

// Action is one remediation request produced by evaluate.
type Action struct {
	Kind   ActionKind
	Reason Reason
	Item   arr.QueueItem
}

// Outcome names the branch an item's evaluation stopped at.
type Outcome string

const (
	OutcomeErrorFirstSeen Outcome = "error_first_seen"
	OutcomeErrorTolerated Outcome = "error_tolerated"
	OutcomeErrorExpired   Outcome = "error_expired"
	OutcomeFailedImport   Outcome = "failed_import"
	OutcomeNotStarted     Outcome = "not_started"
	OutcomeOversized      Outcome = "oversized"
	OutcomeSampled        Outcome = "sampled"
)

// Decision is the result of evaluating one tracked item.
type Decision struct {
	Outcome  Outcome
	Exceeded bool
	Actions  []Action
	// Anomaly is set when a non-fatal value could not be parsed.
	Anomaly error
}

// Has reports whether the decision requests an action of the given kind.
func (d Decision) Has(kind ActionKind) bool {
	for _, a := range d.Actions {
		if a.Kind == kind {
			return true
		}
	}
	return false
}

// evaluate classifies one tracked item against its queue entry, mutating the
// tracked record in place. The checks run in a fixed order and stop at the
// first one that applies, except that a sampled item may be judged hopeless
// and stale in the same pass. A stale item that was just judged hopeless is
// not reaped in that pass.
//
// A non-nil error means the item had to be skipped and the record was not
// touched.
func evaluate(cfg domain.MonitorConfig, now timeval.Time, tracked *models.TrackedItem, item *arr.QueueItem) (Decision, error) {
	if item.HasError() {
		if tracked.ErrorTime == nil {
			started := now
			tracked.ErrorTime = &started
			return Decision{Outcome: OutcomeErrorFirstSeen}, nil
		}
		if now.Sub(*tracked.ErrorTime).Exceeds(cfg.MaxErrTimeSecs) {
			return Decision{
				Outcome: OutcomeErrorExpired,
				Actions: []Action{{Kind: ActionBlocklistRedownload, Reason: ReasonErrorTimeout, Item: *item}},
			}, nil
		}
		return Decision{Outcome: OutcomeErrorTolerated}, nil
	}

	if item.Finished() && item.FailedToImport() {
		return Decision{
			Outcome: OutcomeFailedImport,
			Actions: []Action{{Kind: ActionRemove, Reason: ReasonFailedImport, Item: *item}},
		}, nil
	}

	left, ok, err := item.TimeRemaining()
	if !ok {
		return Decision{Outcome: OutcomeNotStarted}, nil
	}
	if err != nil {
		return Decision{}, fmt.Errorf("queue item %d time remaining: %w", item.ID, err)
	}

	if item.Size > float64(cfg.MaxMediaSizeBytes) {
		return Decision{
			Outcome: OutcomeOversized,
			Actions: []Action{{Kind: ActionBlocklistRedownload, Reason: ReasonOversized, Item: *item}},
		}, nil
	}

	d := Decision{Outcome: OutcomeSampled}

	tracked.NumTimeleftSamples++
	if left.Exceeds(cfg.MaxDownloadTimeSec) {
		tracked.NumTimeleftSamplesExceedingMax++
		d.Exceeded = true
	}

	if isHopeless(cfg, tracked) {
		d.Actions = append(d.Actions, Action{Kind: ActionBlocklistRedownload, Reason: ReasonHopeless, Item: *item})
	}

	added, ok, err := item.AddedAt()
	switch {
	case !ok:
	case err != nil:
		d.Anomaly = fmt.Errorf("queue item %d added timestamp: %w", item.ID, err)
	case now.Sub(added).Exceeds(cfg.ReapIntervalSecs) && !d.Has(ActionBlocklistRedownload):
		d.Actions = append(d.Actions, Action{Kind: ActionReap, Reason: ReasonStale, Item: *item})
	}

	return d, nil
}

// isHopeless judges the sample ratio once the warm-up sample count is reached.
// Every sample counts toward the total, so the ratio stays within [0, 1].
func isHopeless(cfg domain.MonitorConfig, tracked *models.TrackedItem) bool {
	if tracked.NumTimeleftSamples == 0 || tracked.NumTimeleftSamples < cfg.WarmupSamples() {
		return false
	}
	return tracked.HopelessRatio() > cfg.HopelessThreshold
}
