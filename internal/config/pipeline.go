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

package config

import (
	"fmt"

	"github.com/bcem/mailtriage/internal/models"
)

// StageParams is the generation budget of one model-backed stage.
type StageParams struct {
	Model       string  `yaml:"model"` // empty = backend default
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
	InputChars  int     `yaml:"input_chars"` // body excerpt sent to the model
}

// Stages holds the per-stage generation budgets. The two draft stages are
// intentionally sampled differently.
type Stages struct {
	Language      StageParams `yaml:"language"`
	Summary       StageParams `yaml:"summary"`
	Intents       StageParams `yaml:"intents"`
	DraftFormal   StageParams `yaml:"draft_formal"`
	DraftFriendly StageParams `yaml:"draft_friendly"`
	Tone          StageParams `yaml:"tone"`
}

// PhraseGroup awards Points once when a draft contains any of Phrases.
type PhraseGroup struct {
	Name    string   `yaml:"name"`
	Phrases []string `yaml:"phrases"`
	Points  int      `yaml:"points"`
}

// Scoring holds the confidence scoring constants.
type Scoring struct {
	NoActionScore     int           `yaml:"no_action_score"`
	Baseline          int           `yaml:"baseline"`
	PhraseGroups      []PhraseGroup `yaml:"phrase_groups"`
	MinWords          int           `yaml:"min_words"`
	LongDraftPoints   int           `yaml:"long_draft_points"`
	HighValueCommands []string      `yaml:"high_value_commands"`
	HighValuePoints   int           `yaml:"high_value_points"`
}

// Routing maps taxonomy commands to responsible teams.
type Routing struct {
	DefaultTeam string              `yaml:"default_team"`
	Table       map[string][]string `yaml:"table"`
}

// Actions configures the ordered action-label decision list.
type Actions struct {
	Skipped          models.ActionLabel `yaml:"skipped"`
	NeedsReview      models.ActionLabel `yaml:"needs_review"`
	Priority         models.ActionLabel `yaml:"priority"`
	Drafted          models.ActionLabel `yaml:"drafted"`
	PriorityCommands []string           `yaml:"priority_commands"`
}

// Pipeline is the injected configuration of the analysis pipeline.
type Pipeline struct {
	LookbackDays    int `yaml:"lookback_days"`
	MaxResults      int `yaml:"max_results"`
	MinContentChars int `yaml:"min_content_chars"`
	MaxBodyChars    int `yaml:"max_body_chars"`
	SubjectChars    int `yaml:"subject_chars"`
	SenderChars     int `yaml:"sender_chars"`

	// Stage guards, in characters of trimmed body.
	MinLanguageChars int `yaml:"min_language_chars"`
	MinSummaryChars  int `yaml:"min_summary_chars"`
	MinDraftChars    int `yaml:"min_draft_chars"`
	MinToneChars     int `yaml:"min_tone_chars"`

	DefaultLanguage string   `yaml:"default_language"`
	NoActionCommand string   `yaml:"no_action_command"`
	SkipToken       string   `yaml:"skip_token"`
	Taxonomy        []string `yaml:"taxonomy"`
	Tones           []string `yaml:"tones"`
	DefaultTone     string   `yaml:"default_tone"`

	Stages  Stages  `yaml:"stages"`
	Routing Routing `yaml:"routing"`
	Scoring Scoring `yaml:"scoring"`
	Actions Actions `yaml:"actions"`
}

// DefaultPipeline returns the built-in taxonomy, routing table and constants.
func DefaultPipeline() Pipeline {
	return Pipeline{
		LookbackDays:    7,
		MaxResults:      30,
		MinContentChars: 25,
		MaxBodyChars:    2500,
		SubjectChars:    200,
		SenderChars:     100,

		MinLanguageChars: 10,
		MinSummaryChars:  20,
		MinDraftChars:    10,
		MinToneChars:     10,

		DefaultLanguage: "English",
		NoActionCommand: "no_action",
		SkipToken:       "[SKIP]",
		Taxonomy: []string{
			// Strategic business operations
			"strategic_partnership", "investment_inquiry", "board_communication", "executive_meeting",
			"contract_negotiation", "merger_acquisition", "funding_discussion", "investor_relations",
			// Client services
			"vip_client_request", "enterprise_demo", "custom_solution", "strategic_consultation",
			"executive_escalation", "premium_support", "white_glove_service",
			// Business operations
			"send_invoice", "billing_question", "pricing_request", "follow_up", "general_question",
			"account_closure", "update_contact", "change_account_details", "duplicate_request",
			// Marketing
			"partnership_request", "media_inquiry", "speaking_engagement", "conference_invite",
			"press_release", "analyst_briefing", "thought_leadership",
			// HR
			"executive_recruitment", "job_application", "referral_submission", "interview_schedule_request",
			"talent_acquisition", "leadership_hiring",
			// Legal
			"legal_inquiry", "contract_request", "compliance_question", "regulatory_update",
			"intellectual_property", "data_governance", "privacy_policy_question",
			// Technology
			"technical_partnership", "ai_collaboration", "innovation_project", "research_proposal",
			"technology_demo", "proof_of_concept", "beta_program",
			// Operations
			"technical_issue", "access_request", "security_alert", "system_integration",
			"enterprise_deployment", "training_request",
			// Meta
			"forward_to_leadership", "schedule_executive_review", "escalate_to_ceo", "no_action",
		},
		Tones:       []string{"positive", "neutral", "negative", "urgent", "opportunity"},
		DefaultTone: "neutral",

		Stages: Stages{
			Language:      StageParams{MaxTokens: 15, Temperature: 0, InputChars: 500},
			Summary:       StageParams{MaxTokens: 200, Temperature: 0.3, InputChars: 1500},
			Intents:       StageParams{MaxTokens: 120, Temperature: 0.2},
			DraftFormal:   StageParams{MaxTokens: 400, Temperature: 0.3, InputChars: 1000},
			DraftFriendly: StageParams{MaxTokens: 400, Temperature: 0.5, InputChars: 1000},
			Tone:          StageParams{MaxTokens: 15, Temperature: 0.2, InputChars: 500},
		},

		Routing: Routing{
			DefaultTeam: "Executive Office",
			Table: map[string][]string{
				"strategic_partnership": {"Strategy"},
				"investment_inquiry":    {"Strategy"},
				"merger_acquisition":    {"Strategy", "Legal"},
				"vip_client_request":    {"Enterprise Sales"},
				"enterprise_demo":       {"Enterprise Sales"},
				"custom_solution":       {"Enterprise Sales"},
				"send_invoice":          {"Sales Ops"},
				"billing_question":      {"Sales Ops"},
				"pricing_request":       {"Sales Ops", "Enterprise Sales"},
				"executive_recruitment": {"Enterprise HR"},
				"leadership_hiring":     {"Enterprise HR"},
				"job_application":       {"Enterprise HR"},
				"legal_inquiry":         {"Legal"},
				"contract_negotiation":  {"Legal", "Enterprise Sales"},
				"compliance_question":   {"Legal"},
				"technical_partnership": {"Innovation"},
				"ai_collaboration":      {"Innovation"},
				"innovation_project":    {"Innovation"},
				"media_inquiry":         {"Marketing"},
				"speaking_engagement":   {"Marketing"},
				"thought_leadership":    {"Marketing"},
			},
		},

		Scoring: Scoring{
			NoActionScore: 25,
			Baseline:      70,
			PhraseGroups: []PhraseGroup{
				{
					Name:    "strategic",
					Phrases: []string{"partnership", "strategic", "innovation", "collaboration", "value", "solution", "enterprise"},
					Points:  15,
				},
				{
					Name:    "engagement",
					Phrases: []string{"look forward", "next steps", "opportunity", "discuss further", "schedule", "explore"},
					Points:  10,
				},
			},
			MinWords:          40,
			LongDraftPoints:   5,
			HighValueCommands: []string{"strategic_partnership", "investment_inquiry", "executive_meeting", "vip_client_request"},
			HighValuePoints:   5,
		},

		Actions: Actions{
			Skipped:          models.ActionLabel{Name: "Skipped", Color: "gray"},
			NeedsReview:      models.ActionLabel{Name: "Needs Review", Color: "yellow"},
			Priority:         models.ActionLabel{Name: "Priority", Color: "red"},
			Drafted:          models.ActionLabel{Name: "Drafted", Color: "blue"},
			PriorityCommands: []string{"strategic_partnership", "investment_inquiry", "executive_meeting"},
		},
	}
}

// InTaxonomy reports whether cmd is a member of the configured taxonomy.
func (p *Pipeline) InTaxonomy(cmd string) bool {
	for _, c := range p.Taxonomy {
		if c == cmd {
			return true
		}
	}
	return false
}

// Validate checks the pipeline constants for internal consistency.
func (p *Pipeline) Validate() error {
	if p.LookbackDays <= 0 {
		return fmt.Errorf("%w: lookback_days must be positive", ErrInvalid)
	}
	if p.MaxResults <= 0 || p.MaxResults > 500 {
		return fmt.Errorf("%w: max_results must be in 1..500", ErrInvalid)
	}
	if p.MinContentChars < 0 || p.MaxBodyChars <= 0 {
		return fmt.Errorf("%w: content bounds must be non-negative", ErrInvalid)
	}
	if p.NoActionCommand == "" || !p.InTaxonomy(p.NoActionCommand) {
		return fmt.Errorf("%w: taxonomy must contain the no-action command %q", ErrInvalid, p.NoActionCommand)
	}
	if p.DefaultLanguage == "" {
		return fmt.Errorf("%w: default_language is required", ErrInvalid)
	}
	if !contains(p.Tones, p.DefaultTone) {
		return fmt.Errorf("%w: tones must contain the default tone %q", ErrInvalid, p.DefaultTone)
	}
	if p.Routing.DefaultTeam == "" {
		return fmt.Errorf("%w: routing.default_team is required", ErrInvalid)
	}
	for cmd, teams := range p.Routing.Table {
		if !p.InTaxonomy(cmd) {
			return fmt.Errorf("%w: routing entry %q is not in the taxonomy", ErrInvalid, cmd)
		}
		if len(teams) == 0 {
			return fmt.Errorf("%w: routing entry %q has no teams", ErrInvalid, cmd)
		}
	}
	if err := p.Scoring.validate(); err != nil {
		return err
	}
	for name, sp := range map[string]StageParams{
		"language":       p.Stages.Language,
		"summary":        p.Stages.Summary,
		"intents":        p.Stages.Intents,
		"draft_formal":   p.Stages.DraftFormal,
		"draft_friendly": p.Stages.DraftFriendly,
		"tone":           p.Stages.Tone,
	} {
		if sp.MaxTokens <= 0 {
			return fmt.Errorf("%w: stages.%s.max_tokens must be positive", ErrInvalid, name)
		}
		if sp.Temperature < 0 || sp.Temperature > 2 {
			return fmt.Errorf("%w: stages.%s.temperature must be in [0,2]", ErrInvalid, name)
		}
	}
	return nil
}

func (s *Scoring) validate() error {
	// A zero score is reserved for skipped and unavailable drafts.
	if s.NoActionScore <= 0 || s.NoActionScore > 100 {
		return fmt.Errorf("%w: scoring.no_action_score must be in 1..100", ErrInvalid)
	}
	if s.Baseline <= 0 || s.Baseline > 100 {
		return fmt.Errorf("%w: scoring.baseline must be in 1..100", ErrInvalid)
	}
	if s.LongDraftPoints < 0 || s.HighValuePoints < 0 {
		return fmt.Errorf("%w: scoring increments must be non-negative", ErrInvalid)
	}
	for _, g := range s.PhraseGroups {
		if g.Points < 0 {
			return fmt.Errorf("%w: scoring phrase group %q has negative points", ErrInvalid, g.Name)
		}
	}
	return nil
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
