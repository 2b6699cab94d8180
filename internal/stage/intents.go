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

package stage

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/bcem/mailtriage/internal/config"
)

// ClassifyIntents returns the taxonomy commands the message calls for. The
// result is never empty and contains only taxonomy members.
func (a *Analyzer) ClassifyIntents(ctx context.Context, subject, summary, language string) []string {
	noAction := []string{a.cfg.NoActionCommand}
	if strings.TrimSpace(subject) == "" && strings.TrimSpace(summary) == "" {
		return noAction
	}

	prompt := intentsPrompt(subject, summary, language, a.cfg.Taxonomy, a.cfg.NoActionCommand)
	res := a.gw.Invoke(ctx, StageIntents, prompt, a.cfg.Stages.Intents)
	if !res.IsOK() {
		return noAction
	}

	return ParseCommands(res.Value, a.cfg)
}

// ParseCommands validates a model response against the command contract: a
// JSON array of strings, optionally inside a code fence. Anything else yields
// the no-action command. Members outside the taxonomy are dropped, duplicates
// removed, and the result ordered as in the taxonomy.
func ParseCommands(raw string, cfg *config.Pipeline) []string {
	noAction := []string{cfg.NoActionCommand}

	body := stripCodeFence(strings.TrimSpace(raw))
	if !strings.HasPrefix(body, "[") || !strings.HasSuffix(body, "]") {
		slog.Debug("intent output is not a list", "output", raw)
		return noAction
	}

	var items []string
	if err := json.Unmarshal([]byte(body), &items); err != nil {
		slog.Debug("intent output rejected", "output", raw, "error", err)
		return noAction
	}

	found := make(map[string]bool, len(items))
	for _, item := range items {
		found[strings.ToLower(strings.TrimSpace(item))] = true
	}

	var commands []string
	for _, cmd := range cfg.Taxonomy {
		if found[cmd] && cmd != cfg.NoActionCommand {
			commands = append(commands, cmd)
		}
	}
	if len(commands) == 0 {
		return noAction
	}
	return commands
}

// IsNoAction reports whether commands carry no actionable intent.
func IsNoAction(commands []string, noAction string) bool {
	for _, c := range commands {
		if c != noAction {
			return false
		}
	}
	return true
}

func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:] // language tag line
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
