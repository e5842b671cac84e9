// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// Runner is a monitor instance managed by a Supervisor.
type Runner interface {
	Name() string
	Run(ctx context.Context) error
	Status() Status
}

// Supervisor runs every monitor concurrently. A failing monitor never stops
// its siblings; Run reports every failure once all monitors have returned.
type Supervisor struct {
	runners []Runner
}

func NewSupervisor(runners ...Runner) *Supervisor {
	return &Supervisor{runners: runners}
}

func (s *Supervisor) Run(ctx context.Context) error {
	if len(s.runners) == 0 {
		log.Warn().Msg("No monitors configured, nothing to do")
		return nil
	}

	errs := make([]error, len(s.runners))
	var wg sync.WaitGroup

	for i, runner := range s.runners {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					errs[i] = fmt.Errorf("monitor %s panicked: %v", runner.Name(), r)
				}
			}()

			if err := runner.Run(ctx); err != nil {
				log.Error().Err(err).Str("monitor", runner.Name()).Msg("Monitor terminated")
				errs[i] = err
			}
		}()
	}

	wg.Wait()
	return errors.Join(errs...)
}

// Statuses returns a snapshot of every monitor in configuration order.
func (s *Supervisor) Statuses() []Status {
	out := make([]Status, 0, len(s.runners))
	for _, r := range s.runners {
		out = append(out, r.Status())
	}
	return out
}
