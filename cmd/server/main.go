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

// Mail triage service.
//
// Entry point for the HTTP service. It:
//  1. Loads configuration from config.yaml, .env and the environment
//  2. Wires the mail source, model gateway and record sinks
//  3. Serves the trigger, health, status and metrics endpoints
//  4. Optionally runs the pipeline on a cron schedule
//  5. Handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/bcem/mailtriage/internal/api"
	"github.com/bcem/mailtriage/internal/app"
	"github.com/bcem/mailtriage/internal/config"
	"github.com/bcem/mailtriage/internal/pipeline"
	"github.com/bcem/mailtriage/internal/schedule"
)

func main() {
	// A missing .env is normal in containers.
	_ = godotenv.Load()

	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: app.LogLevel(os.Getenv("LOG_LEVEL")),
	}))
	slog.SetDefault(logger)

	slog.Info("starting mail triage service")

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"mail_source", cfg.Mail.Source,
		"llm_provider", cfg.LLM.Provider,
		"lookback_days", cfg.Pipeline.LookbackDays,
		"max_results", cfg.Pipeline.MaxResults,
		"schedule", cfg.Schedule,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Wire the pipeline ---
	// An incomplete configuration still starts the server so /health can
	// report what is missing; triggers answer with a configuration error.
	hcfg := api.HandlerConfig{Config: cfg}
	wired, err := app.Build(ctx, cfg, app.Options{})
	switch {
	case errors.Is(err, config.ErrInvalid):
		slog.Warn("pipeline not configured", "error", err)
	case err != nil:
		slog.Error("failed to initialise pipeline", "error", err)
		os.Exit(1)
	default:
		defer wired.Close()
		hcfg.Runner = wired.Runner
		hcfg.Dependencies = wired.Dependencies
		hcfg.History = wired.History
		slog.Info("pipeline ready", "account", wired.Account)
	}

	handler := api.NewHandler(hcfg)

	ready, stopped, err := api.Serve(ctx, cfg.Port, handler.Routes())
	if err != nil {
		slog.Error("failed to start http server", "error", err)
		os.Exit(1)
	}
	<-ready

	// --- Scheduled runs ---
	if cfg.Schedule != "" && hcfg.Runner != nil {
		sched, err := schedule.New(cfg.Schedule, func(ctx context.Context) {
			res, err := handler.Trigger(ctx, pipeline.Request{})
			if err != nil {
				slog.Error("scheduled run failed", "error", err)
				return
			}
			slog.Info("scheduled run finished",
				"run_id", res.Stats.RunID,
				"status", res.Stats.Status,
				"processed", res.Stats.Processed,
			)
		})
		if err != nil {
			slog.Error("invalid schedule", "error", err)
			os.Exit(1)
		}
		go sched.Run(ctx)
		slog.Info("scheduled runs enabled", "schedule", cfg.Schedule)
	}

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh

	slog.Info("received shutdown signal", "signal", sig)
	cancel()
	<-stopped

	slog.Info("mail triage service stopped")
}
