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
	"strings"

	"github.com/bcem/mailtriage/internal/config"
	"github.com/bcem/mailtriage/internal/models"
)

// ScoreConfidence rates a reply draft from 0 to 100 without calling the model.
//
// Messages with no actionable commands get the fixed no-action score. Any
// other skipped or unavailable draft scores 0. Otherwise the score starts at
// the baseline and gains each phrase group's points once, the long-draft
// points above the minimum word count, and the high-value points when any
// high-value command is present, clamped to 100.
func ScoreConfidence(draft models.Draft, commands []string, cfg *config.Pipeline) int {
	s := cfg.Scoring
	if IsNoAction(commands, cfg.NoActionCommand) {
		return clamp(s.NoActionScore)
	}
	if !draft.IsOK() {
		return 0
	}

	score := s.Baseline
	text := strings.ToLower(draft.Value)
	for _, group := range s.PhraseGroups {
		if containsAny(text, group.Phrases) {
			score += group.Points
		}
	}
	if len(strings.Fields(draft.Value)) > s.MinWords {
		score += s.LongDraftPoints
	}
	for _, cmd := range commands {
		if contains(s.HighValueCommands, cmd) {
			score += s.HighValuePoints
			break
		}
	}
	return clamp(score)
}

func clamp(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if p != "" && strings.Contains(text, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
