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

// Package app assembles the triage runner and its optional backing services
// from configuration. Both the HTTP service and the CLI use it.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bcem/mailtriage/internal/api"
	"github.com/bcem/mailtriage/internal/config"
	"github.com/bcem/mailtriage/internal/gmail"
	"github.com/bcem/mailtriage/internal/llm"
	"github.com/bcem/mailtriage/internal/mbox"
	"github.com/bcem/mailtriage/internal/notion"
	"github.com/bcem/mailtriage/internal/pipeline"
	"github.com/bcem/mailtriage/internal/queue"
	"github.com/bcem/mailtriage/internal/runlock"
	"github.com/bcem/mailtriage/internal/store"
)

// App is a wired runner plus the services it holds open.
type App struct {
	Runner       *pipeline.Runner
	Dependencies []api.Dependency
	History      api.History // nil without Postgres
	Account      string

	closers []func()
}

// Options tune which optional services are connected.
type Options struct {
	// SkipArchive leaves Postgres and Redis unconnected, e.g. for dry runs.
	SkipArchive bool
}

// Build validates cfg and assembles everything the runner needs. Errors
// from settings are wrapped with config.ErrInvalid. Postgres and Redis are
// configured without being dialled.
func Build(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	if err := cfg.Validate(true); err != nil {
		return nil, err
	}

	a := &App{}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	source, account, err := buildSource(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Account = account

	backend, err := llm.New(ctx, cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("llm backend: %w", err)
	}
	gateway := llm.NewGateway(backend, cfg.LLM.SystemPrompt)

	sinks := []pipeline.Sink{notion.NewSink(cfg.Notion, &http.Client{Timeout: 30 * time.Second})}

	var (
		locker pipeline.Locker
		runs   pipeline.RunRecorder
	)

	// Secondary services are not dialled here. An outage surfaces through
	// the sink's Open, which aborts only that sink, and through /health.
	if cfg.DatabaseURL != "" && !opts.SkipArchive {
		pool, err := store.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		a.closers = append(a.closers, pool.Close)

		archive := store.NewStore(pool)
		sinks = append(sinks, archive)
		runs = archive
		a.History = archive
		a.Dependencies = append(a.Dependencies, archive)
		slog.Info("postgres archive configured")
	}

	if cfg.RedisURL != "" && !opts.SkipArchive {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid REDIS_URL: %v", config.ErrInvalid, err)
		}
		rdb := redis.NewClient(opt)
		a.closers = append(a.closers, func() { rdb.Close() })

		publisher := queue.NewPublisher(rdb, cfg.RecordsQueue)
		sinks = append(sinks, publisher)
		locker = runlock.New(rdb, cfg.LockKey, cfg.LockTTL)
		a.Dependencies = append(a.Dependencies, publisher)
		slog.Info("redis queue configured", "queue", cfg.RecordsQueue)
	}

	a.Runner = pipeline.NewRunner(pipeline.RunnerConfig{
		Source:   source,
		Gateway:  gateway,
		Pipeline: &cfg.Pipeline,
		Sinks:    sinks,
		Locker:   locker,
		Runs:     runs,
		Account:  account,
	})

	ok = true
	return a, nil
}

// Close releases every connection Build opened, newest first.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func buildSource(ctx context.Context, cfg *config.Config) (pipeline.Source, string, error) {
	switch cfg.Mail.Source {
	case "mbox":
		return mbox.NewSource(cfg.Mail.MboxPath), cfg.Mail.MboxPath, nil
	default:
		httpClient, err := gmail.NewHTTPClient(ctx, cfg.Mail.ServiceAccountKeyFile, cfg.Mail.DelegatedUser)
		if err != nil {
			return nil, "", err
		}
		client, err := gmail.NewClient(ctx, httpClient, cfg.Mail.GmailBaseURL, "me")
		if err != nil {
			return nil, "", err
		}

		// A failed profile lookup is not fatal; each run reports the source
		// as unavailable instead.
		account := cfg.Mail.DelegatedUser
		if profile, err := client.Profile(ctx); err != nil {
			slog.Warn("gmail profile lookup failed", "user", account, "error", err)
		} else {
			account = profile.EmailAddress
			slog.Info("gmail mailbox connected", "user", account, "messages_total", profile.MessagesTotal)
		}
		return client, account, nil
	}
}

// LogLevel maps a LOG_LEVEL value to a slog level, defaulting to info.
func LogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
