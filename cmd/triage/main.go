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

// Mail triage, single run.
//
// Standalone CLI that performs one triage run and prints the report.
// Intended for cron jobs and for trying a configuration before deploying
// the service.
//
// Usage:
//
//	go run ./cmd/triage/ [--since 7] [--max 30] [--dry-run] [--json]
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/bcem/mailtriage/internal/app"
	"github.com/bcem/mailtriage/internal/config"
	"github.com/bcem/mailtriage/internal/models"
	"github.com/bcem/mailtriage/internal/pipeline"
)

func main() {
	_ = godotenv.Load()

	// Logs go to stderr so the report on stdout stays clean.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: app.LogLevel(os.Getenv("LOG_LEVEL")),
	}))
	slog.SetDefault(logger)

	// --- CLI Flags ---
	sinceFlag := flag.Int("since", 0, "Lookback window in days (0 = configured default)")
	maxFlag := flag.Int("max", 0, "Maximum messages to scan (0 = configured default)")
	dryRunFlag := flag.Bool("dry-run", false, "Analyse without writing to any sink")
	jsonFlag := flag.Bool("json", false, "Print the run statistics as JSON instead of the text report")
	flag.Parse()

	if *sinceFlag < 0 || *maxFlag < 0 {
		fmt.Fprintf(os.Stderr, "Error: --since and --max must not be negative\n\n")
		flag.Usage()
		os.Exit(1)
	}

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	wired, err := app.Build(ctx, cfg, app.Options{SkipArchive: *dryRunFlag})
	if err != nil {
		if errors.Is(err, config.ErrInvalid) {
			fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		} else {
			slog.Error("failed to initialise pipeline", "error", err)
		}
		os.Exit(1)
	}

	res, err := wired.Runner.Run(ctx, pipeline.Request{
		LookbackDays: *sinceFlag,
		MaxResults:   *maxFlag,
		DryRun:       *dryRunFlag,
	})
	wired.Close()
	if err != nil {
		slog.Error("triage run failed", "error", err)
		os.Exit(1)
	}

	if *jsonFlag {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res.Stats); err != nil {
			slog.Error("encode stats", "error", err)
			os.Exit(1)
		}
	} else {
		fmt.Println(res.Stats.Report())
	}

	switch res.Stats.Status {
	case models.RunSourceUnavailable, models.RunBusy:
		os.Exit(2)
	}
}
