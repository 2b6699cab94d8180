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

// Package routing maps intent commands to responsible teams and a
// human-facing action label.
package routing

import (
	"sort"

	"github.com/bcem/mailtriage/internal/config"
	"github.com/bcem/mailtriage/internal/models"
)

// Resolver applies the configured routing table and action rules.
type Resolver struct {
	routing config.Routing
	actions config.Actions
}

// NewResolver creates a resolver from pipeline configuration.
func NewResolver(cfg *config.Pipeline) *Resolver {
	return &Resolver{routing: cfg.Routing, actions: cfg.Actions}
}

// Teams returns the sorted union of teams mapped from commands. Commands
// without a mapping contribute nothing; the default team is returned when
// nothing matches.
func (r *Resolver) Teams(commands []string) []string {
	seen := make(map[string]bool)
	var teams []string
	for _, cmd := range commands {
		for _, team := range r.routing.Table[cmd] {
			if !seen[team] {
				seen[team] = true
				teams = append(teams, team)
			}
		}
	}
	if len(teams) == 0 {
		return []string{r.routing.DefaultTeam}
	}
	sort.Strings(teams)
	return teams
}

// ActionLabel picks the label for a record from its primary draft and
// commands. Rules are evaluated in order and the first match wins.
func (r *Resolver) ActionLabel(primary models.Draft, commands []string) models.ActionLabel {
	switch {
	case primary.IsSkipped():
		return r.actions.Skipped
	case primary.IsUnavailable():
		return r.actions.NeedsReview
	case r.hasPriority(commands):
		return r.actions.Priority
	default:
		return r.actions.Drafted
	}
}

func (r *Resolver) hasPriority(commands []string) bool {
	for _, cmd := range commands {
		for _, p := range r.actions.PriorityCommands {
			if cmd == p {
				return true
			}
		}
	}
	return false
}
