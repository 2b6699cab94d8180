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

// Package llm provides the single call boundary to the generative model.
// Every backend failure is converted into an Unavailable result; the gateway
// never retries and never caches.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bcem/mailtriage/internal/config"
	"github.com/bcem/mailtriage/internal/metrics"
	"github.com/bcem/mailtriage/internal/models"
)

// Request is one completion call.
type Request struct {
	System      string
	Prompt      string
	Model       string // empty = backend default
	MaxTokens   int
	Temperature float64
}

// Completer is a model backend.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
	Name() string
}

// Gateway wraps a backend and converts its failures into results.
type Gateway struct {
	backend Completer
	system  string
}

// NewGateway creates a gateway that sends systemPrompt as the role context
// of every call.
func NewGateway(backend Completer, systemPrompt string) *Gateway {
	return &Gateway{backend: backend, system: systemPrompt}
}

// Invoke sends prompt with the stage's generation parameters.
func (g *Gateway) Invoke(ctx context.Context, stage, prompt string, params config.StageParams) models.Result[string] {
	start := time.Now()

	text, err := g.backend.Complete(ctx, Request{
		System:      g.system,
		Prompt:      prompt,
		Model:       params.Model,
		MaxTokens:   params.MaxTokens,
		Temperature: params.Temperature,
	})
	if err == nil && strings.TrimSpace(text) == "" {
		err = fmt.Errorf("empty completion")
	}
	if err != nil {
		slog.Warn("model unavailable",
			"stage", stage,
			"backend", g.backend.Name(),
			"error", err,
		)
		metrics.GatewayCalls.WithLabelValues(stage, string(models.StatusUnavailable)).Inc()
		return models.Unavailable[string](err.Error())
	}

	slog.Debug("model call complete",
		"stage", stage,
		"backend", g.backend.Name(),
		"elapsed", time.Since(start),
		"response_len", len(text),
	)
	metrics.GatewayCalls.WithLabelValues(stage, string(models.StatusOK)).Inc()
	return models.OK(strings.TrimSpace(text))
}

// New builds the backend selected by cfg.
func New(ctx context.Context, cfg config.LLMConfig) (Completer, error) {
	switch cfg.Provider {
	case "gemini":
		client, err := NewGeminiClient(ctx, GeminiConfig{
			APIKey: cfg.APIKey,
			Model:  cfg.Model,
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	case "openai", "":
		return NewOpenAIClient(OpenAIConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		}), nil
	default:
		return nil, fmt.Errorf("%w: unknown llm provider %q", config.ErrInvalid, cfg.Provider)
	}
}
