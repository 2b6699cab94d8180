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

package routing

import (
	"math/rand"
	"reflect"
	"strings"
	"testing"
	"testing/quick"

	"github.com/bcem/mailtriage/internal/config"
	"github.com/bcem/mailtriage/internal/models"
)

func newResolver() *Resolver {
	p := config.DefaultPipeline()
	return NewResolver(&p)
}

// TestTeams verifies union, dedup and fallback behaviour.
func TestTeams(t *testing.T) {
	r := newResolver()
	tests := []struct {
		name     string
		commands []string
		want     []string
	}{
		{"single", []string{"send_invoice"}, []string{"Sales Ops"}},
		{"one to many", []string{"pricing_request"}, []string{"Enterprise Sales", "Sales Ops"}},
		{"many to one", []string{"send_invoice", "billing_question"}, []string{"Sales Ops"}},
		{"union", []string{"merger_acquisition", "send_invoice"}, []string{"Legal", "Sales Ops", "Strategy"}},
		{"unmapped", []string{"follow_up"}, []string{"Executive Office"}},
		{"no_action", []string{"no_action"}, []string{"Executive Office"}},
		{"empty", nil, []string{"Executive Office"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Teams(tt.commands)
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("Teams(%v) = %v, want %v", tt.commands, got, tt.want)
			}
		})
	}
}

type commandSet []string

func (commandSet) Generate(r *rand.Rand, _ int) reflect.Value {
	p := config.DefaultPipeline()
	cmds := make(commandSet, r.Intn(6))
	for i := range cmds {
		cmds[i] = p.Taxonomy[r.Intn(len(p.Taxonomy))]
	}
	return reflect.ValueOf(cmds)
}

// TestTeams_Properties verifies the output is never empty, independent of
// input order, and stable across calls.
func TestTeams_Properties(t *testing.T) {
	r := newResolver()
	prop := func(cmds commandSet, seed int64) bool {
		got := r.Teams(cmds)
		if len(got) == 0 {
			return false
		}

		shuffled := append([]string(nil), cmds...)
		rand.New(rand.NewSource(seed)).Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
		return reflect.DeepEqual(got, r.Teams(shuffled)) && reflect.DeepEqual(got, r.Teams(cmds))
	}
	if err := quick.Check(prop, nil); err != nil {
		t.Error(err)
	}
}

// TestActionLabel verifies rule order.
func TestActionLabel(t *testing.T) {
	r := newResolver()
	ok := models.OK("Dear partner")
	tests := []struct {
		name     string
		draft    models.Draft
		commands []string
		want     string
	}{
		{"skipped wins over priority", models.Skipped[string](models.ReasonNotBusinessRelevant), []string{"strategic_partnership"}, "Skipped"},
		{"no commands", models.Skipped[string](models.ReasonNoCommands), []string{"no_action"}, "Skipped"},
		{"unavailable", models.Unavailable[string]("timeout"), []string{"executive_meeting"}, "Needs Review"},
		{"priority", ok, []string{"follow_up", "investment_inquiry"}, "Priority"},
		{"drafted", ok, []string{"send_invoice"}, "Drafted"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.ActionLabel(tt.draft, tt.commands); got.Name != tt.want {
				t.Errorf("ActionLabel = %q, want %q", got.Name, tt.want)
			}
		})
	}
}
