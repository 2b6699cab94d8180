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

// Package config loads configuration from config.yaml and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every configuration error so callers can tell a
// misconfigured deployment apart from a runtime failure.
var ErrInvalid = errors.New("invalid configuration")

// MailConfig selects and configures the inbound mail source.
type MailConfig struct {
	Source                string // "gmail" or "mbox"
	DelegatedUser         string
	ServiceAccountKeyFile string
	GmailBaseURL          string
	MboxPath              string
}

// LLMConfig configures the language model backend.
type LLMConfig struct {
	Provider     string // "openai" or "gemini"
	APIKey       string
	BaseURL      string
	Model        string
	SystemPrompt string
	Timeout      time.Duration
}

// NotionConfig configures the workspace the records are synced to.
type NotionConfig struct {
	Token        string
	DatabaseID   string
	BaseURL      string
	Version      string
	ReviewStatus string
}

// Config holds all configuration for the triage service.
type Config struct {
	Mail     MailConfig
	LLM      LLMConfig
	Notion   NotionConfig
	Pipeline Pipeline

	// Redis (optional: record queue + run lock)
	RedisURL     string
	RecordsQueue string
	LockKey      string
	LockTTL      time.Duration

	// Postgres (optional: record archive + run history)
	DatabaseURL string

	// Server
	Port     int
	Schedule string // cron expression; empty disables scheduled runs
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	Mail struct {
		Source                string `yaml:"source"`
		DelegatedUser         string `yaml:"delegated_user"`
		ServiceAccountKeyFile string `yaml:"service_account_key_file"`
		GmailBaseURL          string `yaml:"gmail_base_url"`
		MboxPath              string `yaml:"mbox_path"`
	} `yaml:"mail"`
	LLM struct {
		Provider     string `yaml:"provider"`
		APIKey       string `yaml:"api_key"`
		BaseURL      string `yaml:"base_url"`
		Model        string `yaml:"model"`
		SystemPrompt string `yaml:"system_prompt"`
		Timeout      string `yaml:"timeout"`
	} `yaml:"llm"`
	Notion struct {
		Token        string `yaml:"token"`
		DatabaseID   string `yaml:"database_id"`
		BaseURL      string `yaml:"base_url"`
		Version      string `yaml:"version"`
		ReviewStatus string `yaml:"review_status"`
	} `yaml:"notion"`
	Redis struct {
		URL     string `yaml:"url"`
		LockKey string `yaml:"lock_key"`
		LockTTL string `yaml:"lock_ttl"`
		Queues  struct {
			Records string `yaml:"records"`
		} `yaml:"queues"`
	} `yaml:"redis"`
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
	Server struct {
		Schedule string `yaml:"schedule"`
	} `yaml:"server"`
	Pipeline *Pipeline `yaml:"pipeline"`
}

const defaultSystemPrompt = "You are an AI assistant that triages business email for a human review team. " +
	"Follow the output format requested in each instruction exactly."

// Load reads configuration from config.yaml (with env var expansion) and
// environment variables for non-YAML settings. A missing file is not an
// error: every setting has an environment or built-in default.
func Load() (*Config, error) {
	configPath := envOrDefault("CONFIG_PATH", "/app/config/config.yaml")

	data, err := os.ReadFile(configPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse builds a Config from YAML bytes plus the process environment.
func Parse(data []byte) (*Config, error) {
	// Expand ${VAR} references in the YAML
	expanded := os.ExpandEnv(string(data))

	pipeline := DefaultPipeline()
	// Maps decode by merging; clear them so a YAML table replaces the default.
	pipeline.Routing.Table = nil

	raw := rawConfig{Pipeline: &pipeline}
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("%w: parse config YAML: %v", ErrInvalid, err)
	}
	if pipeline.Routing.Table == nil {
		pipeline.Routing.Table = DefaultPipeline().Routing.Table
	}

	llmTimeout, err := parseDuration(raw.LLM.Timeout, envOrDefaultDuration("LLM_TIMEOUT", 60*time.Second))
	if err != nil {
		return nil, fmt.Errorf("%w: llm.timeout: %v", ErrInvalid, err)
	}
	lockTTL, err := parseDuration(raw.Redis.LockTTL, envOrDefaultDuration("LOCK_TTL", 30*time.Minute))
	if err != nil {
		return nil, fmt.Errorf("%w: redis.lock_ttl: %v", ErrInvalid, err)
	}

	cfg := &Config{
		Mail: MailConfig{
			Source:                strings.ToLower(firstNonEmpty(raw.Mail.Source, envOrDefault("MAIL_SOURCE", "gmail"))),
			DelegatedUser:         firstNonEmpty(raw.Mail.DelegatedUser, os.Getenv("DELEGATED_USER_EMAIL")),
			ServiceAccountKeyFile: firstNonEmpty(raw.Mail.ServiceAccountKeyFile, os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")),
			GmailBaseURL:          firstNonEmpty(raw.Mail.GmailBaseURL, envOrDefault("GMAIL_BASE_URL", "https://gmail.googleapis.com/")),
			MboxPath:              firstNonEmpty(raw.Mail.MboxPath, os.Getenv("MBOX_PATH")),
		},
		LLM: LLMConfig{
			Provider:     strings.ToLower(firstNonEmpty(raw.LLM.Provider, envOrDefault("LLM_PROVIDER", "openai"))),
			APIKey:       firstNonEmpty(raw.LLM.APIKey, os.Getenv("OPENAI_API_KEY"), os.Getenv("GEMINI_API_KEY")),
			BaseURL:      firstNonEmpty(raw.LLM.BaseURL, os.Getenv("LLM_BASE_URL")),
			Model:        firstNonEmpty(raw.LLM.Model, os.Getenv("LLM_MODEL")),
			SystemPrompt: firstNonEmpty(raw.LLM.SystemPrompt, defaultSystemPrompt),
			Timeout:      llmTimeout,
		},
		Notion: NotionConfig{
			Token:        firstNonEmpty(raw.Notion.Token, os.Getenv("NOTION_TOKEN")),
			DatabaseID:   firstNonEmpty(raw.Notion.DatabaseID, os.Getenv("NOTION_DB_ID")),
			BaseURL:      firstNonEmpty(raw.Notion.BaseURL, envOrDefault("NOTION_BASE_URL", "https://api.notion.com/v1")),
			Version:      firstNonEmpty(raw.Notion.Version, "2022-06-28"),
			ReviewStatus: firstNonEmpty(raw.Notion.ReviewStatus, "Needs Review"),
		},
		RedisURL:     firstNonEmpty(raw.Redis.URL, os.Getenv("REDIS_URL")),
		RecordsQueue: firstNonEmpty(raw.Redis.Queues.Records, envOrDefault("RECORDS_QUEUE", "triage:records")),
		LockKey:      firstNonEmpty(raw.Redis.LockKey, "triage:run-lock"),
		LockTTL:      lockTTL,
		DatabaseURL:  firstNonEmpty(raw.Database.URL, os.Getenv("DATABASE_URL")),
		Port:         envOrDefaultInt("PORT", 8080),
		Schedule:     firstNonEmpty(os.Getenv("SCHEDULE"), raw.Server.Schedule),
		Pipeline:     pipeline,
	}

	cfg.Pipeline.LookbackDays = envOrDefaultInt("LOOKBACK_DAYS", cfg.Pipeline.LookbackDays)
	cfg.Pipeline.MaxResults = envOrDefaultInt("MAX_RESULTS", cfg.Pipeline.MaxResults)
	cfg.Pipeline.MinContentChars = envOrDefaultInt("MIN_CONTENT_CHARS", cfg.Pipeline.MinContentChars)

	return cfg, nil
}

// setting is one required configuration value and its dotted name.
type setting struct {
	name  string
	value string
}

func (c *Config) required(withSync bool) []setting {
	var req []setting
	req = append(req, setting{"llm.api_key", c.LLM.APIKey})
	switch c.Mail.Source {
	case "mbox":
		req = append(req, setting{"mail.mbox_path", c.Mail.MboxPath})
	default:
		req = append(req,
			setting{"mail.delegated_user", c.Mail.DelegatedUser},
			setting{"mail.service_account_key_file", c.Mail.ServiceAccountKeyFile},
		)
	}
	if withSync {
		req = append(req,
			setting{"notion.token", c.Notion.Token},
			setting{"notion.database_id", c.Notion.DatabaseID},
		)
	}
	return req
}

// Settings reports, for every setting the configured mail source needs,
// whether it is present. Values are never exposed.
func (c *Config) Settings(withSync bool) map[string]bool {
	out := map[string]bool{}
	for _, s := range c.required(withSync) {
		out[s.name] = strings.TrimSpace(s.value) != ""
	}
	return out
}

// Missing lists the names of required settings that are empty. withSync adds
// the Notion settings needed to write records.
func (c *Config) Missing(withSync bool) []string {
	var missing []string
	for _, s := range c.required(withSync) {
		if strings.TrimSpace(s.value) == "" {
			missing = append(missing, s.name)
		}
	}
	return missing
}

func (c *Config) Validate(withSync bool) error {
	if missing := c.Missing(withSync); len(missing) > 0 {
		return fmt.Errorf("%w: missing required settings: %s", ErrInvalid, strings.Join(missing, ", "))
	}
	switch c.Mail.Source {
	case "gmail", "mbox":
	default:
		return fmt.Errorf("%w: unknown mail source %q", ErrInvalid, c.Mail.Source)
	}
	switch c.LLM.Provider {
	case "openai", "gemini":
	default:
		return fmt.Errorf("%w: unknown llm provider %q", ErrInvalid, c.LLM.Provider)
	}
	if c.Schedule != "" && !gronx.IsValid(c.Schedule) {
		return fmt.Errorf("%w: invalid schedule cron expression %q", ErrInvalid, c.Schedule)
	}
	return c.Pipeline.Validate()
}

func parseDuration(raw string, fallback time.Duration) (time.Duration, error) {
	if strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	return time.ParseDuration(raw)
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
