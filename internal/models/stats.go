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

import (
	"fmt"
	"strings"
	"time"
)

// RunStatus is the overall outcome of a pipeline run.
type RunStatus string

const (
	RunCompleted         RunStatus = "completed"
	RunNoWork            RunStatus = "no_work"
	RunSourceUnavailable RunStatus = "source_unavailable"
	RunBusy              RunStatus = "busy"
)

// SinkReport summarises writes to one record destination.
type SinkReport struct {
	Sink    string `json:"sink"`
	Synced  int    `json:"synced"`
	Failed  int    `json:"failed"`
	Aborted bool   `json:"aborted,omitempty"`
	Error   string `json:"error,omitempty"`
}

// RunStats is the aggregate report of one run. It is always produced, even
// when individual messages or records failed.
type RunStats struct {
	RunID     string        `json:"run_id"`
	Account   string        `json:"account,omitempty"`
	Status    RunStatus     `json:"status"`
	Error     string        `json:"error,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Elapsed   time.Duration `json:"elapsed_ns"`
	Scanned   int           `json:"scanned"`
	Processed int           `json:"processed"`
	Filtered  int           `json:"filtered"`
	Skipped   int           `json:"skipped"`
	Priority  int           `json:"priority"`
	Languages []string      `json:"languages"`
	Commands  []string      `json:"commands"`
	HighValue []string      `json:"high_value_commands"`
	Sinks     []SinkReport  `json:"sinks"`
	DryRun    bool          `json:"dry_run,omitempty"`
}

// Synced returns the number of records written to the primary sink.
func (s *RunStats) Synced() int {
	if len(s.Sinks) == 0 {
		return 0
	}
	return s.Sinks[0].Synced
}

// Report renders a multi-line human-readable summary of the run.
func (s *RunStats) Report() string {
	var b strings.Builder

	account := s.Account
	if account == "" {
		account = "(unknown)"
	}

	switch s.Status {
	case RunNoWork:
		fmt.Fprintf(&b, "Analysis complete\nAccount: %s\n%d emails scanned, none required attention", account, s.Scanned)
		return b.String()
	case RunSourceUnavailable:
		fmt.Fprintf(&b, "Mail source unavailable\nAccount: %s\nError: %s", account, s.Error)
		return b.String()
	case RunBusy:
		fmt.Fprintf(&b, "Another run is in progress\nAccount: %s", account)
		return b.String()
	}

	fmt.Fprintf(&b, "Mail triage report\n\n")
	fmt.Fprintf(&b, "Account: %s\n", account)
	fmt.Fprintf(&b, "Run: %s\n\n", s.RunID)
	fmt.Fprintf(&b, "Metrics:\n")
	fmt.Fprintf(&b, "- Emails scanned: %d\n", s.Scanned)
	fmt.Fprintf(&b, "- Processed: %d\n", s.Processed)
	fmt.Fprintf(&b, "- Filtered (too short): %d\n", s.Filtered)
	fmt.Fprintf(&b, "- Skipped (errors): %d\n", s.Skipped)
	fmt.Fprintf(&b, "- High-priority items: %d\n", s.Priority)
	for _, sink := range s.Sinks {
		switch {
		case sink.Aborted:
			fmt.Fprintf(&b, "- Sync %s: aborted (%s)\n", sink.Sink, sink.Error)
		default:
			fmt.Fprintf(&b, "- Sync %s: %d/%d records\n", sink.Sink, sink.Synced, s.Processed)
		}
	}
	if s.DryRun {
		fmt.Fprintf(&b, "- Sync: dry run, nothing written\n")
	}

	languages := "English dominant"
	if len(s.Languages) > 0 {
		languages = strings.Join(s.Languages, ", ")
	}
	fmt.Fprintf(&b, "- Languages: %s\n", languages)

	strategic := "Standard operations"
	if len(s.HighValue) > 0 {
		top := s.HighValue
		if len(top) > 3 {
			top = top[:3]
		}
		strategic = strings.Join(top, ", ")
	}
	fmt.Fprintf(&b, "- Strategic actions: %s\n", strategic)
	fmt.Fprintf(&b, "\nElapsed: %s", s.Elapsed.Round(time.Millisecond))

	return b.String()
}
