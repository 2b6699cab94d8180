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

package app

import (
	"context"
	"errors"
	"os"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/bcem/mailtriage/internal/config"
)

func mboxConfig(t *testing.T) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "inbox.mbox")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatalf("write mbox: %v", err)
	}
	return &config.Config{
		Mail:     config.MailConfig{Source: "mbox", MboxPath: path},
		LLM:      config.LLMConfig{Provider: "openai", APIKey: "sk-test"},
		Notion:   config.NotionConfig{Token: "secret", DatabaseID: "db-1"},
		Pipeline: config.DefaultPipeline(),
	}
}

// TestBuild_Mbox verifies an mbox deployment wires without backing services.
func TestBuild_Mbox(t *testing.T) {
	cfg := mboxConfig(t)

	a, err := Build(context.Background(), cfg, Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer a.Close()

	if a.Runner == nil {
		t.Fatal("Runner should be set")
	}
	if a.Account != cfg.Mail.MboxPath {
		t.Errorf("Account = %q, want %q", a.Account, cfg.Mail.MboxPath)
	}
	if a.History != nil {
		t.Error("History should be nil without Postgres")
	}
	if len(a.Dependencies) != 0 {
		t.Errorf("Dependencies = %d, want 0", len(a.Dependencies))
	}
}

// TestBuild_InvalidConfig verifies settings errors carry the configuration kind.
func TestBuild_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"missing api key", func(c *config.Config) { c.LLM.APIKey = "" }},
		{"unknown provider", func(c *config.Config) { c.LLM.Provider = "llama" }},
		{"bad redis url", func(c *config.Config) { c.RedisURL = "not-a-url" }},
		{"missing key file", func(c *config.Config) {
			c.Mail = config.MailConfig{
				Source:                "gmail",
				DelegatedUser:         "ops@example.com",
				ServiceAccountKeyFile: filepath.Join(t.TempDir(), "absent.json"),
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := mboxConfig(t)
			tt.mutate(cfg)

			_, err := Build(context.Background(), cfg, Options{})
			if !errors.Is(err, config.ErrInvalid) {
				t.Errorf("Build error = %v, want ErrInvalid", err)
			}
		})
	}
}

// TestBuild_UnreachableServices verifies an outage of Postgres or Redis does
// not prevent start-up and is visible through the health dependencies.
func TestBuild_UnreachableServices(t *testing.T) {
	cfg := mboxConfig(t)
	cfg.DatabaseURL = "postgres://nobody@127.0.0.1:1/none?connect_timeout=1"
	cfg.RedisURL = "redis://127.0.0.1:1/0"

	a, err := Build(context.Background(), cfg, Options{})
	if err != nil {
		t.Fatalf("Build with unreachable services: %v", err)
	}
	defer a.Close()

	if a.Runner == nil {
		t.Fatal("Runner should be set")
	}
	if a.History == nil {
		t.Error("History should be set when Postgres is configured")
	}
	if len(a.Dependencies) != 2 {
		t.Fatalf("Dependencies = %d, want 2", len(a.Dependencies))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, d := range a.Dependencies {
		if err := d.Ping(ctx); err == nil {
			t.Errorf("%s ping should fail against a closed port", d.Name())
		}
	}
}

// TestBuild_SkipArchive verifies optional services are not dialled.
func TestBuild_SkipArchive(t *testing.T) {
	cfg := mboxConfig(t)
	cfg.DatabaseURL = "postgres://nobody@127.0.0.1:1/none"
	cfg.RedisURL = "redis://127.0.0.1:1/0"

	a, err := Build(context.Background(), cfg, Options{SkipArchive: true})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer a.Close()

	if len(a.Dependencies) != 0 {
		t.Errorf("Dependencies = %d, want 0 when skipped", len(a.Dependencies))
	}
}

// TestLogLevel verifies LOG_LEVEL parsing.
func TestLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"":        slog.LevelInfo,
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for raw, want := range tests {
		if got := LogLevel(raw); got != want {
			t.Errorf("LogLevel(%q) = %v, want %v", raw, got, want)
		}
	}
}
