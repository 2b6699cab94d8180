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


// Package notion writes analysis records as pages of a Notion database, the
// review workspace for triaged mail.
package notion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jomei/notionapi"

	"github.com/bcem/mailtriage/internal/config"
	"github.com/bcem/mailtriage/internal/models"
)

// Sink creates one database page per record.
type Sink struct {
	client       *notionapi.Client
	databaseID   notionapi.DatabaseID
	reviewStatus string
}

// NewSink creates a Notion sink. A nil httpClient uses a client with a 30s
// timeout. Requests are sent to cfg.BaseURL rather than the public API host
// when the two differ.
func NewSink(cfg config.NotionConfig, httpClient *http.Client) *Sink {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	hc := *httpClient
	if base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/")); err == nil && base.Host != "" {
		next := hc.Transport
		if next == nil {
			next = http.DefaultTransport
		}
		hc.Transport = &rebase{base: base, next: next}
	}

	opts := []notionapi.ClientOption{notionapi.WithHTTPClient(&hc)}
	if cfg.Version != "" {
		opts = append(opts, notionapi.WithVersion(cfg.Version))
	}
	return &Sink{
		client:       notionapi.NewClient(notionapi.Token(cfg.Token), opts...),
		databaseID:   notionapi.DatabaseID(cfg.DatabaseID),
		reviewStatus: cfg.ReviewStatus,
	}
}

// Name identifies the sink in reports and metrics.
func (s *Sink) Name() string { return "notion" }

// Open verifies that the database is reachable with the configured token.
func (s *Sink) Open(ctx context.Context) error {
	if _, err := s.client.Database.Get(ctx, s.databaseID); err != nil {
		return fmt.Errorf("open database: %w", apiError(err))
	}
	slog.Debug("notion database reachable", "database_id", s.databaseID)
	return nil
}

// Create adds a page for rec.
func (s *Sink) Create(ctx context.Context, rec *models.AnalysisRecord) error {
	_, err := s.client.Page.Create(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: s.databaseID,
		},
		Properties: properties(rec, s.reviewStatus),
	})
	if err != nil {
		return fmt.Errorf("create page: %w", apiError(err))
	}
	return nil
}

// apiError adds the HTTP status and error code to Notion API errors.
func apiError(err error) error {
	var nerr *notionapi.Error
	if errors.As(err, &nerr) {
		return fmt.Errorf("notion API returned HTTP %d: %s: %w", nerr.Status, nerr.Code, err)
	}
	return err
}

// rebase sends requests built for the public API host to base instead,
// keeping the path below the API version prefix.
type rebase struct {
	base *url.URL
	next http.RoundTripper
}

func (t *rebase) RoundTrip(req *http.Request) (*http.Response, error) {
	rest := req.URL.Path
	if i := strings.Index(strings.TrimPrefix(rest, "/"), "/"); i >= 0 {
		rest = strings.TrimPrefix(rest, "/")[i:]
	}

	out := req.Clone(req.Context())
	u := *req.URL
	u.Scheme = t.base.Scheme
	u.Host = t.base.Host
	u.Path = t.base.Path + rest
	u.RawPath = ""
	out.URL = &u
	out.Host = t.base.Host
	return t.next.RoundTrip(out)
}
