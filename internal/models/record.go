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

package models

import "time"

// ActionLabel is the human-facing triage label shown on the dashboard.
type ActionLabel struct {
	Name  string `json:"name" yaml:"name"`
	Color string `json:"color" yaml:"color"`
}

// AnalysisRecord is the fully derived metadata for one message. It is built
// once, in derivation order, and never modified after hand-off.
type AnalysisRecord struct {
	ID         string    `json:"id"`
	RunID      string    `json:"run_id"`
	MessageID  string    `json:"message_id"`
	Subject    string    `json:"subject"`
	Sender     string    `json:"sender"`
	ReceivedAt time.Time `json:"received_at"`
	Body       string    `json:"-"`

	Language   string      `json:"language"`
	Summary    string      `json:"summary"`
	Commands   []string    `json:"commands"`
	Draft1     Draft       `json:"reply_draft_1"`
	Draft2     Draft       `json:"reply_draft_2"`
	Tone       string      `json:"tone"`
	Confidence int         `json:"confidence"`
	Teams      []string    `json:"teams"`
	Action     ActionLabel `json:"action"`

	CreatedAt time.Time `json:"created_at"`
}

// HasCommand reports whether cmd was detected for the record.
func (r *AnalysisRecord) HasCommand(cmd string) bool {
	for _, c := range r.Commands {
		if c == cmd {
			return true
		}
	}
	return false
}
