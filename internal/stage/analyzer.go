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

// Package stage implements the derivation stages that turn a message body
// into language, summary, intent commands, reply drafts, tone and a
// confidence score. Each stage reads only the outputs of earlier stages and
// maps model failures to its own fallback value.
package stage

import (
	"context"
	"log/slog"
	"strings"

	"github.com/bcem/mailtriage/internal/config"
	"github.com/bcem/mailtriage/internal/models"
	"github.com/bcem/mailtriage/internal/textutil"
)

// Stage names used in prompts, logs and metrics.
const (
	StageLanguage      = "language"
	StageSummary       = "summary"
	StageIntents       = "intents"
	StageDraftFormal   = "draft_formal"
	StageDraftFriendly = "draft_friendly"
	StageTone          = "tone"
)

// MinimalContentSummary is the summary of bodies too short to summarise.
const MinimalContentSummary = "Email contains minimal content, likely an automated or system message."

// Invoker is the language model gateway as seen by the stages.
type Invoker interface {
	Invoke(ctx context.Context, stage, prompt string, params config.StageParams) models.Result[string]
}

// Analyzer runs the model-backed stages with injected configuration.
type Analyzer struct {
	gw  Invoker
	cfg *config.Pipeline
}

// NewAnalyzer creates an analyzer.
func NewAnalyzer(gw Invoker, cfg *config.Pipeline) *Analyzer {
	return &Analyzer{gw: gw, cfg: cfg}
}

// DetectLanguage returns the natural-language name of body's language.
func (a *Analyzer) DetectLanguage(ctx context.Context, body string) string {
	trimmed := strings.TrimSpace(body)
	if textutil.Len(trimmed) < a.cfg.MinLanguageChars {
		return a.cfg.DefaultLanguage
	}

	params := a.cfg.Stages.Language
	res := a.gw.Invoke(ctx, StageLanguage, languagePrompt(excerpt(trimmed, params.InputChars)), params)
	if !res.IsOK() {
		return a.cfg.DefaultLanguage
	}

	lang := cleanLabel(firstLine(res.Value))
	if lang == "" || textutil.Len(lang) > 40 {
		return a.cfg.DefaultLanguage
	}
	return lang
}

// Summarize returns a short summary of body written in language.
func (a *Analyzer) Summarize(ctx context.Context, body, language string) string {
	trimmed := strings.TrimSpace(body)
	if textutil.Len(trimmed) < a.cfg.MinSummaryChars {
		return MinimalContentSummary
	}

	params := a.cfg.Stages.Summary
	res := a.gw.Invoke(ctx, StageSummary, summaryPrompt(excerpt(trimmed, params.InputChars), language), params)
	if !res.IsOK() {
		slog.Warn("summary unavailable, using body excerpt", "reason", res.Reason)
		return "Summary unavailable, manual review recommended for: " + textutil.Truncate(trimmed, 100) + "..."
	}
	return res.Value
}

// AnalyzeTone returns one of the configured tone labels.
func (a *Analyzer) AnalyzeTone(ctx context.Context, body, language string) string {
	trimmed := strings.TrimSpace(body)
	if textutil.Len(trimmed) < a.cfg.MinToneChars {
		return a.cfg.DefaultTone
	}

	params := a.cfg.Stages.Tone
	res := a.gw.Invoke(ctx, StageTone, tonePrompt(excerpt(trimmed, params.InputChars), language, a.cfg.Tones), params)
	if !res.IsOK() {
		return a.cfg.DefaultTone
	}

	tone := strings.ToLower(cleanLabel(res.Value))
	for _, valid := range a.cfg.Tones {
		if tone == valid {
			return tone
		}
	}
	return a.cfg.DefaultTone
}

// excerpt bounds the body sent to the model; n <= 0 sends it whole.
func excerpt(s string, n int) string {
	if n <= 0 {
		return s
	}
	return textutil.Truncate(s, n)
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// cleanLabel strips decoration models tend to add around a one-word answer.
func cleanLabel(s string) string {
	return strings.Trim(strings.TrimSpace(s), " \t\"'`.*:")
}
