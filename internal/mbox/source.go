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

// Package mbox provides an offline mail source that reads messages from a
// local mbox file instead of a live mailbox.
package mbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/mail"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	gombox "github.com/emersion/go-mbox"

	"github.com/bcem/mailtriage/internal/models"
)

// entry is a listed message whose body is parsed on fetch.
type entry struct {
	id   string
	date time.Time
	raw  []byte
}

// Source lists and fetches messages from one mbox file. Every listing
// rescans the file.
type Source struct {
	path string

	mu      sync.Mutex
	entries map[string]*entry
}

// NewSource creates a source for the mbox file at path.
func NewSource(path string) *Source {
	return &Source{path: path, entries: make(map[string]*entry)}
}

// ListMessageIDs returns the ids of messages dated after since, newest first,
// capped at limit. Messages without a parseable header block or Date are
// ignored.
func (s *Source) ListMessageIDs(ctx context.Context, since time.Time, limit int) ([]string, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open mbox: %w", err)
	}
	defer f.Close()

	var listed []*entry
	seen := make(map[string]int)
	reader := gombox.NewReader(f)
	for i := 0; ; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		r, err := reader.NextMessage()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read mbox message %d: %w", i, err)
		}

		raw, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("read mbox message %d: %w", i, err)
		}

		msg, err := mail.ReadMessage(bytes.NewReader(raw))
		if err != nil {
			slog.Warn("skipping unparseable mbox message", "index", i, "error", err)
			continue
		}

		date := parseDate(msg.Header.Get("Date"))
		if date.IsZero() || !date.After(since) {
			continue
		}

		id := strings.Trim(strings.TrimSpace(msg.Header.Get("Message-Id")), "<>")
		if id == "" {
			id = fmt.Sprintf("mbox-%d", i)
		}
		if n := seen[id]; n > 0 {
			id = fmt.Sprintf("%s#%d", id, n)
		}
		seen[id]++

		listed = append(listed, &entry{id: id, date: date, raw: raw})
	}

	sort.SliceStable(listed, func(i, j int) bool { return listed[i].date.After(listed[j].date) })
	if limit > 0 && len(listed) > limit {
		listed = listed[:limit]
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*entry, len(listed))
	ids := make([]string, 0, len(listed))
	for _, e := range listed {
		s.entries[e.id] = e
		ids = append(ids, e.id)
	}

	slog.Debug("mbox scanned", "path", s.path, "listed", len(ids))
	return ids, nil
}

// FetchMessage parses a message returned by the last listing. Returns nil,
// nil for unknown ids.
func (s *Source) FetchMessage(_ context.Context, id string) (*models.Message, error) {
	s.mu.Lock()
	e := s.entries[id]
	s.mu.Unlock()
	if e == nil {
		return nil, nil
	}

	msg, err := mail.ReadMessage(bytes.NewReader(e.raw))
	if err != nil {
		return nil, fmt.Errorf("parse message: %w", err)
	}

	body, err := readPart(msg.Header, msg.Body)
	if err != nil {
		return nil, fmt.Errorf("parse body: %w", err)
	}

	subject := decodeHeader(msg.Header.Get("Subject"))
	if strings.TrimSpace(subject) == "" {
		subject = "(no subject)"
	}

	return &models.Message{
		ID:           e.id,
		Subject:      subject,
		Sender:       decodeHeader(msg.Header.Get("From")),
		ReceivedAt:   e.date.UTC(),
		InternalDate: e.date.UnixMilli(),
		Body:         body,
	}, nil
}
