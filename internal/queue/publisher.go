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

// Package queue publishes finished analysis records to a Redis list for
// downstream consumers.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/bcem/mailtriage/internal/models"
)

// EventType tags the envelope payload.
const EventType = "triage.record.created"

// Publisher pushes records onto a Redis list.
type Publisher struct {
	rdb       *redis.Client
	queueName string
}

// NewPublisher creates a new Redis publisher targeting the specified list.
func NewPublisher(rdb *redis.Client, queueName string) *Publisher {
	return &Publisher{
		rdb:       rdb,
		queueName: queueName,
	}
}

// envelope wraps a record for transport. Consumers pop with BRPOP, so the
// oldest record is read first.
type envelope struct {
	ID          string                 `json:"id"`
	Type        string                 `json:"type"`
	PublishedAt time.Time              `json:"published_at"`
	Record      *models.AnalysisRecord `json:"record"`
}

// Name identifies the sink in reports and metrics.
func (p *Publisher) Name() string { return "redis" }

// Open checks the connection before a sync phase.
func (p *Publisher) Open(ctx context.Context) error {
	return p.Ping(ctx)
}

// Create publishes one record.
func (p *Publisher) Create(ctx context.Context, rec *models.AnalysisRecord) error {
	id, msg, err := encode(rec, time.Now().UTC())
	if err != nil {
		return err
	}

	if err := p.rdb.LPush(ctx, p.queueName, msg).Err(); err != nil {
		return fmt.Errorf("redis LPUSH: %w", err)
	}

	slog.Debug("published record to queue",
		"envelope_id", id,
		"message_id", rec.MessageID,
		"queue", p.queueName,
	)
	return nil
}

// Ping checks the Redis connection.
func (p *Publisher) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.rdb.Ping(ctx).Err()
}

func encode(rec *models.AnalysisRecord, now time.Time) (string, string, error) {
	env := envelope{
		ID:          uuid.NewString(),
		Type:        EventType,
		PublishedAt: now,
		Record:      rec,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return "", "", fmt.Errorf("marshal record envelope: %w", err)
	}
	return env.ID, string(data), nil
}
