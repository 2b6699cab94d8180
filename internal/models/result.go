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

// Status tags the outcome of a stage that may not produce a value.
type Status string

const (
	StatusOK          Status = "ok"
	StatusSkipped     Status = "skipped"
	StatusUnavailable Status = "unavailable"
)

// Skip reasons carried by skipped results.
const (
	ReasonNoCommands          = "no-commands"
	ReasonInsufficientContent = "insufficient-content"
	ReasonNotBusinessRelevant = "not-business-relevant"
)

// Result is the tagged outcome of a stage: Ok(value), Skipped(reason) or
// Unavailable(reason). Callers branch on Status, never on Value contents.
type Result[T any] struct {
	Status Status `json:"status"`
	Value  T      `json:"value"`
	Reason string `json:"reason,omitempty"`
}

// OK wraps a successfully derived value.
func OK[T any](v T) Result[T] {
	return Result[T]{Status: StatusOK, Value: v}
}

// Skipped records that a stage deliberately produced nothing.
func Skipped[T any](reason string) Result[T] {
	return Result[T]{Status: StatusSkipped, Reason: reason}
}

// Unavailable records that an upstream service failed.
func Unavailable[T any](reason string) Result[T] {
	return Result[T]{Status: StatusUnavailable, Reason: reason}
}

// IsOK reports whether the result carries a derived value.
func (r Result[T]) IsOK() bool { return r.Status == StatusOK }

// IsSkipped reports whether the stage was skipped.
func (r Result[T]) IsSkipped() bool { return r.Status == StatusSkipped }

// IsUnavailable reports whether an upstream failure occurred.
func (r Result[T]) IsUnavailable() bool { return r.Status == StatusUnavailable }

// Draft is a reply draft outcome. A skipped draft may still carry the verbatim
// token returned by the model in Value.
type Draft = Result[string]

// DraftText renders a draft for human-facing destinations.
func DraftText(d Draft) string {
	switch d.Status {
	case StatusOK:
		return d.Value
	case StatusSkipped:
		if d.Value != "" {
			return d.Value
		}
		switch d.Reason {
		case ReasonNoCommands:
			return "[Skipped: no actionable commands]"
		case ReasonInsufficientContent:
			return "[Skipped: insufficient content for a reply]"
		case ReasonNotBusinessRelevant:
			return "[Skipped: not business relevant]"
		}
		return "[Skipped]"
	default:
		return "[Model unavailable: " + d.Reason + "]"
	}
}
