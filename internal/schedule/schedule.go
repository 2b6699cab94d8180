// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package schedule triggers periodic triage runs from a cron expression.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"

	"github.com/bcem/mailtriage/internal/config"
)

// retryDelay is the pause after a failed next-tick computation.
const retryDelay = 30 * time.Second

// Job is one scheduled unit of work.
type Job func(ctx context.Context)

// Scheduler runs a job at every tick of a cron expression.
type Scheduler struct {
	expr string
	job  Job
	now  func() time.Time
}

// New creates a scheduler. The expression is validated up front.
func New(expr string, job Job) (*Scheduler, error) {
	if !gronx.IsValid(expr) {
		return nil, fmt.Errorf("%w: invalid cron expression %q", config.ErrInvalid, expr)
	}
	return &Scheduler{expr: expr, job: job, now: time.Now}, nil
}

// Next returns the first tick strictly after t.
func (s *Scheduler) Next(t time.Time) (time.Time, error) {
	return gronx.NextTickAfter(s.expr, t.UTC(), false)
}

// Run starts the schedule loop. It blocks until the context is cancelled.
// Jobs run on the loop goroutine, so a slow job delays the next tick rather
// than overlapping it.
func (s *Scheduler) Run(ctx context.Context) {
	slog.Info("scheduler starting", "cron", s.expr)

	for {
		next, err := s.Next(s.now())
		if err != nil {
			slog.Error("next tick failed", "cron", s.expr, "error", err)
			if !sleep(ctx, retryDelay) {
				slog.Info("scheduler stopping")
				return
			}
			continue
		}

		slog.Debug("next scheduled run", "at", next.Format(time.RFC3339))
		if !sleep(ctx, time.Until(next)) {
			slog.Info("scheduler stopping")
			return
		}

		slog.Info("scheduled run triggered", "cron", s.expr)
		s.job(ctx)
	}
}

// sleep waits for d or until ctx is done; it reports whether d elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
