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
	"strings"

	"github.com/bcem/mailtriage/internal/models"
	"github.com/bcem/mailtriage/internal/textutil"
)

const (
	styleFormal   = "Formal and results-oriented; precise and concise."
	styleFriendly = "Warm and relationship-building while staying professional."
)

// DraftReplies produces two independent reply drafts: a formal one and a
// friendlier one, sampled with their own generation parameters. No model call
// is made when the message has no actionable commands or too little content.
func (a *Analyzer) DraftReplies(ctx context.Context, subject, body string, commands []string, language string) (models.Draft, models.Draft) {
	if IsNoAction(commands, a.cfg.NoActionCommand) {
		skip := models.Skipped[string](models.ReasonNoCommands)
		return skip, skip
	}

	trimmed := strings.TrimSpace(body)
	if textutil.Len(trimmed) < a.cfg.MinDraftChars {
		skip := models.Skipped[string](models.ReasonInsufficientContent)
		return skip, skip
	}

	formal := a.draft(ctx, StageDraftFormal, subject, trimmed, commands, language, styleFormal)
	friendly := a.draft(ctx, StageDraftFriendly, subject, trimmed, commands, language, styleFriendly)
	return formal, friendly
}

func (a *Analyzer) draft(ctx context.Context, stage, subject, body string, commands []string, language, style string) models.Draft {
	params := a.cfg.Stages.DraftFormal
	if stage == StageDraftFriendly {
		params = a.cfg.Stages.DraftFriendly
	}

	prompt := draftPrompt(subject, excerpt(body, params.InputChars), commands, language, a.cfg.SkipToken, style)
	res := a.gw.Invoke(ctx, stage, prompt, params)
	if !res.IsOK() {
		return res
	}

	if a.isSkipToken(res.Value) {
		// The model's own token is kept verbatim as the draft value.
		d := models.Skipped[string](models.ReasonNotBusinessRelevant)
		d.Value = res.Value
		return d
	}
	return res
}

func (a *Analyzer) isSkipToken(text string) bool {
	token := strings.ToUpper(strings.TrimSpace(a.cfg.SkipToken))
	return token != "" && strings.HasPrefix(strings.ToUpper(strings.TrimSpace(text)), token)
}
