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

// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Messages counts batch messages by outcome: processed, filtered, skipped.
	Messages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "triage",
		Name:      "messages_total",
		Help:      "Messages seen by the pipeline, by outcome.",
	}, []string{"outcome"})

	// GatewayCalls counts language model invocations by stage and result status.
	GatewayCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "triage",
		Name:      "gateway_calls_total",
		Help:      "Language model invocations, by stage and status.",
	}, []string{"stage", "status"})

	// SinkWrites counts record writes by sink and result.
	SinkWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "triage",
		Name:      "sink_writes_total",
		Help:      "Record writes to sync destinations, by sink and result.",
	}, []string{"sink", "result"})

	// RunDuration observes end-to-end run time by final status.
	RunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "triage",
		Name:      "run_duration_seconds",
		Help:      "Wall-clock duration of pipeline runs.",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"status"})
)
