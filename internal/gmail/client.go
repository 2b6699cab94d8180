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

// Package gmail reads inbox messages from the Gmail API on behalf of a
// delegated workspace user.
package gmail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/bcem/mailtriage/internal/models"
)

// DefaultBaseURL is the public Gmail API root.
const DefaultBaseURL = "https://gmail.googleapis.com/"

// pageSize is the largest page the list endpoint returns.
const pageSize = 500

// Profile is the mailbox profile used as a connectivity check.
type Profile struct {
	EmailAddress  string
	MessagesTotal int64
	ThreadsTotal  int64
	HistoryID     uint64
}

// Client lists and fetches messages for one mailbox.
type Client struct {
	svc  *gmailapi.Service
	user string
}

// NewClient creates a Gmail client. httpClient must carry the mailbox
// credentials; user is the mailbox id ("me" for the authenticated user).
func NewClient(ctx context.Context, httpClient *http.Client, baseURL, user string) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	if user == "" {
		user = "me"
	}

	svc, err := gmailapi.NewService(ctx,
		option.WithHTTPClient(httpClient),
		option.WithEndpoint(baseURL),
	)
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	return &Client{svc: svc, user: user}, nil
}

// ListMessageIDs returns the ids of inbox messages received after since,
// newest first, capped at limit.
func (c *Client) ListMessageIDs(ctx context.Context, since time.Time, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}

	call := c.svc.Users.Messages.List(c.user).
		Q(fmt.Sprintf("after:%s in:inbox", since.Format("2006/01/02"))).
		MaxResults(int64(min(limit, pageSize)))

	var ids []string
	for {
		page, err := call.Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("list messages: %w", err)
		}

		for _, m := range page.Messages {
			ids = append(ids, m.Id)
			if len(ids) == limit {
				return ids, nil
			}
		}

		slog.Debug("message page listed", "messages", len(page.Messages), "total", len(ids))
		if page.NextPageToken == "" {
			return ids, nil
		}
		call.PageToken(page.NextPageToken)
	}
}

// FetchMessage retrieves the full message. Returns nil, nil when the message
// no longer exists.
func (c *Client) FetchMessage(ctx context.Context, id string) (*models.Message, error) {
	raw, err := c.svc.Users.Messages.Get(c.user, id).Format("full").Context(ctx).Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
			slog.Warn("message not found (may have been deleted)", "message_id", id)
			return nil, nil
		}
		return nil, fmt.Errorf("fetch message %s: %w", id, err)
	}
	return parseMessage(raw), nil
}

// Profile returns the mailbox profile.
func (c *Client) Profile(ctx context.Context) (*Profile, error) {
	p, err := c.svc.Users.GetProfile(c.user).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &Profile{
		EmailAddress:  p.EmailAddress,
		MessagesTotal: p.MessagesTotal,
		ThreadsTotal:  p.ThreadsTotal,
		HistoryID:     p.HistoryId,
	}, nil
}
