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

// Package pipeline sequences the derivation stages over a batch of inbox
// messages and hands the finished records to the configured sinks.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bcem/mailtriage/internal/config"
	"github.com/bcem/mailtriage/internal/extract"
	"github.com/bcem/mailtriage/internal/metrics"
	"github.com/bcem/mailtriage/internal/models"
	"github.com/bcem/mailtriage/internal/routing"
	"github.com/bcem/mailtriage/internal/stage"
	"github.com/bcem/mailtriage/internal/textutil"
)

// Source lists and fetches inbox messages.
type Source interface {
	ListMessageIDs(ctx context.Context, since time.Time, limit int) ([]string, error)
	FetchMessage(ctx context.Context, id string) (*models.Message, error)
}

// Sink is a destination for finished records. Open is called once per run
// before any Create; an Open failure aborts that sink for the run.
type Sink interface {
	Name() string
	Open(ctx context.Context) error
	Create(ctx context.Context, rec *models.AnalysisRecord) error
}

// Locker guards against overlapping runs.
type Locker interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// RunRecorder persists the report of each finished run.
type RunRecorder interface {
	RecordRun(ctx context.Context, stats *models.RunStats) error
}

// Request defines the scope of one run. Zero values use the configured
// batch policy.
type Request struct {
	LookbackDays int
	MaxResults   int
	DryRun       bool
}

// Result is the output of a run: the records in source order and the report.
type Result struct {
	Records []*models.AnalysisRecord
	Stats   *models.RunStats
}

// Runner performs triage runs.
type Runner struct {
	source   Source
	analyzer *stage.Analyzer
	resolver *routing.Resolver
	sinks    []Sink
	locker   Locker
	runs     RunRecorder
	cfg      *config.Pipeline
	account  string
	now      func() time.Time
}

// RunnerConfig holds dependencies for the runner.
type RunnerConfig struct {
	Source   Source
	Gateway  stage.Invoker
	Pipeline *config.Pipeline
	Sinks    []Sink      // first sink is the primary workspace
	Locker   Locker      // optional
	Runs     RunRecorder // optional
	Account  string      // mailbox shown in reports
	Now      func() time.Time
}

// NewRunner creates a runner.
func NewRunner(cfg RunnerConfig) *Runner {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Runner{
		source:   cfg.Source,
		analyzer: stage.NewAnalyzer(cfg.Gateway, cfg.Pipeline),
		resolver: routing.NewResolver(cfg.Pipeline),
		sinks:    cfg.Sinks,
		locker:   cfg.Locker,
		runs:     cfg.Runs,
		cfg:      cfg.Pipeline,
		account:  cfg.Account,
		now:      now,
	}
}

// Run pulls the batch selected by req, analyses every message independently
// and syncs the resulting records. The returned error is non-nil only for
// configuration problems; every other failure is reflected in the stats.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	if err := r.cfg.Validate(); err != nil {
		return nil, err
	}

	start := r.now()
	stats := &models.RunStats{
		RunID:     uuid.NewString(),
		Account:   r.account,
		StartedAt: start.UTC(),
		DryRun:    req.DryRun,
	}
	result := &Result{Stats: stats}

	if r.locker != nil {
		acquired, err := r.locker.Acquire(ctx)
		switch {
		case err != nil:
			slog.Warn("run lock unavailable, continuing without it", "error", err)
		case !acquired:
			stats.Status = models.RunBusy
			slog.Info("run skipped, another run holds the lock", "run_id", stats.RunID)
			return result, nil
		default:
			defer func() {
				if err := r.locker.Release(context.WithoutCancel(ctx)); err != nil {
					slog.Warn("release run lock", "error", err)
				}
			}()
		}
	}

	r.run(ctx, req, result)

	stats.Elapsed = r.now().Sub(start)
	metrics.RunDuration.WithLabelValues(string(stats.Status)).Observe(stats.Elapsed.Seconds())

	if r.runs != nil && !req.DryRun {
		if err := r.runs.RecordRun(ctx, stats); err != nil {
			slog.Warn("record run report", "run_id", stats.RunID, "error", err)
		}
	}

	slog.Info("triage run complete",
		"run_id", stats.RunID,
		"status", stats.Status,
		"scanned", stats.Scanned,
		"processed", stats.Processed,
		"filtered", stats.Filtered,
		"skipped", stats.Skipped,
		"elapsed", stats.Elapsed,
	)

	return result, nil
}

func (r *Runner) run(ctx context.Context, req Request, result *Result) {
	stats := result.Stats

	days := req.LookbackDays
	if days <= 0 {
		days = r.cfg.LookbackDays
	}
	limit := req.MaxResults
	if limit <= 0 {
		limit = r.cfg.MaxResults
	}
	since := r.now().UTC().AddDate(0, 0, -days)

	slog.Info("starting triage run",
		"run_id", stats.RunID,
		"since", since.Format(time.RFC3339),
		"max_results", limit,
		"dry_run", req.DryRun,
	)

	ids, err := r.source.ListMessageIDs(ctx, since, limit)
	if err != nil {
		slog.Error("list messages failed", "run_id", stats.RunID, "error", err)
		stats.Status = models.RunSourceUnavailable
		stats.Error = err.Error()
		return
	}
	stats.Scanned = len(ids)

	for i, id := range ids {
		slog.Debug("processing message", "index", i+1, "total", len(ids), "message_id", id)

		rec, err := r.process(ctx, stats.RunID, id)
		switch {
		case err != nil:
			slog.Warn("message skipped", "message_id", id, "error", err)
			stats.Skipped++
			metrics.Messages.WithLabelValues("skipped").Inc()
		case rec == nil:
			stats.Filtered++
			metrics.Messages.WithLabelValues("filtered").Inc()
		default:
			result.Records = append(result.Records, rec)
			metrics.Messages.WithLabelValues("processed").Inc()
		}
	}
	stats.Processed = len(result.Records)

	if stats.Processed == 0 {
		stats.Status = models.RunNoWork
		return
	}

	r.summarise(result)
	if !req.DryRun {
		stats.Sinks = r.sync(ctx, result.Records)
	}
	stats.Status = models.RunCompleted
}

// process analyses one message. It returns a nil record when the message is
// dropped by the content filter.
func (r *Runner) process(ctx context.Context, runID, id string) (*models.AnalysisRecord, error) {
	msg, err := r.source.FetchMessage(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch message: %w", err)
	}
	if msg == nil {
		return nil, fmt.Errorf("fetch message: empty response")
	}

	body := textutil.Truncate(extract.Body(msg.Body), r.cfg.MaxBodyChars)
	if textutil.Len(strings.TrimSpace(body)) < r.cfg.MinContentChars {
		slog.Debug("message filtered, content too short", "message_id", id)
		return nil, nil
	}

	subject := textutil.Truncate(msg.Subject, r.cfg.SubjectChars)
	rec := &models.AnalysisRecord{
		ID:         uuid.NewString(),
		RunID:      runID,
		MessageID:  msg.ID,
		Subject:    subject,
		Sender:     textutil.Truncate(msg.Sender, r.cfg.SenderChars),
		ReceivedAt: msg.ReceivedAt,
		Body:       body,
	}

	a := r.analyzer
	rec.Language = a.DetectLanguage(ctx, body)
	rec.Summary = a.Summarize(ctx, body, rec.Language)
	rec.Commands = a.ClassifyIntents(ctx, subject, rec.Summary, rec.Language)
	rec.Draft1, rec.Draft2 = a.DraftReplies(ctx, subject, body, rec.Commands, rec.Language)
	rec.Tone = a.AnalyzeTone(ctx, body, rec.Language)
	rec.Confidence = stage.ScoreConfidence(rec.Draft1, rec.Commands, r.cfg)
	rec.Teams = r.resolver.Teams(rec.Commands)
	rec.Action = r.resolver.ActionLabel(rec.Draft1, rec.Commands)
	rec.CreatedAt = r.now().UTC()

	slog.Info("message analysed",
		"message_id", msg.ID,
		"language", rec.Language,
		"commands", strings.Join(rec.Commands, ","),
		"action", rec.Action.Name,
		"confidence", rec.Confidence,
	)
	return rec, nil
}

// summarise fills the aggregate fields of the report from the records.
func (r *Runner) summarise(result *Result) {
	stats := result.Stats
	languages := make(map[string]bool)
	commands := make(map[string]bool)

	for _, rec := range result.Records {
		languages[rec.Language] = true
		priority := false
		for _, cmd := range rec.Commands {
			if cmd == r.cfg.NoActionCommand {
				continue
			}
			commands[cmd] = true
			if contains(r.cfg.Scoring.HighValueCommands, cmd) {
				priority = true
			}
		}
		if priority {
			stats.Priority++
		}
	}

	stats.Languages = sortedKeys(languages)
	stats.Commands = sortedKeys(commands)
	for _, cmd := range r.cfg.Scoring.HighValueCommands {
		if commands[cmd] {
			stats.HighValue = append(stats.HighValue, cmd)
		}
	}
}

// sync writes records to every sink in order. A sink that cannot be opened
// is skipped entirely; a failed write is counted and the sink continues.
func (r *Runner) sync(ctx context.Context, records []*models.AnalysisRecord) []models.SinkReport {
	reports := make([]models.SinkReport, 0, len(r.sinks))

	for _, sink := range r.sinks {
		rep := models.SinkReport{Sink: sink.Name()}

		if err := sink.Open(ctx); err != nil {
			slog.Error("sink connection failed, skipping sync",
				"sink", sink.Name(),
				"records", len(records),
				"error", err,
			)
			rep.Aborted = true
			rep.Error = err.Error()
			metrics.SinkWrites.WithLabelValues(sink.Name(), "aborted").Add(float64(len(records)))
			reports = append(reports, rep)
			continue
		}

		for _, rec := range records {
			if err := sink.Create(ctx, rec); err != nil {
				slog.Warn("sync failed",
					"sink", sink.Name(),
					"message_id", rec.MessageID,
					"error", err,
				)
				rep.Failed++
				metrics.SinkWrites.WithLabelValues(sink.Name(), "failed").Inc()
				continue
			}
			rep.Synced++
			metrics.SinkWrites.WithLabelValues(sink.Name(), "synced").Inc()
		}

		slog.Info("sink sync complete",
			"sink", sink.Name(),
			"synced", rep.Synced,
			"failed", rep.Failed,
		)
		reports = append(reports, rep)
	}
	return reports
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
