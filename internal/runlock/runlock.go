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

// Package runlock provides a Redis-backed lock that keeps triage runs from
// overlapping across triggers and processes.
package runlock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// DefaultTTL bounds how long a crashed holder can block new runs.
	DefaultTTL = 30 * time.Minute

	// DefaultKey is the lock key when none is configured.
	DefaultKey = "triage:run-lock"
)

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lock is a single-holder lock with expiry.
type Lock struct {
	rdb *redis.Client
	key string
	ttl time.Duration

	mu    sync.Mutex
	token string
}

// New creates a run lock.
func New(rdb *redis.Client, key string, ttl time.Duration) *Lock {
	if key == "" {
		key = DefaultKey
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Lock{rdb: rdb, key: key, ttl: ttl}
}

// Acquire takes the lock. It returns false when another holder has it.
func (l *Lock) Acquire(ctx context.Context) (bool, error) {
	token := uuid.NewString()

	// SET NX = set only if key does not exist. Returns true if the key was set.
	set, err := l.rdb.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("run lock SETNX: %w", err)
	}
	if set {
		l.mu.Lock()
		l.token = token
		l.mu.Unlock()
	}
	return set, nil
}

// Release gives the lock up if it is still ours.
func (l *Lock) Release(ctx context.Context) error {
	l.mu.Lock()
	token := l.token
	l.token = ""
	l.mu.Unlock()

	if token == "" {
		return nil
	}
	if err := releaseScript.Run(ctx, l.rdb, []string{l.key}, token).Err(); err != nil {
		return fmt.Errorf("run lock release: %w", err)
	}
	return nil
}

// Held reports whether any process currently holds the lock.
func (l *Lock) Held(ctx context.Context) (bool, error) {
	n, err := l.rdb.Exists(ctx, l.key).Result()
	if err != nil {
		return false, fmt.Errorf("run lock EXISTS: %w", err)
	}
	return n > 0, nil
}
