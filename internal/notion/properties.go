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


package notion

import (
	"net/mail"
	"strings"
	"time"

	"github.com/jomei/notionapi"

	"github.com/bcem/mailtriage/internal/models"
	"github.com/bcem/mailtriage/internal/textutil"
)

// Destination field limits.
const (
	titleChars    = 100
	richTextChars = 2000
)

// properties maps a record onto the review database's columns.
func properties(rec *models.AnalysisRecord, reviewStatus string) notionapi.Properties {
	title := rec.Subject
	if strings.TrimSpace(title) == "" {
		title = "(Review)"
	}

	teams := make([]notionapi.Option, 0, len(rec.Teams))
	for _, team := range rec.Teams {
		teams = append(teams, notionapi.Option{Name: team})
	}

	date := notionapi.Date(pageDate(rec))
	props := notionapi.Properties{
		"Email Subject":     notionapi.TitleProperty{Title: richText(title, titleChars)},
		"Date":              notionapi.DateProperty{Date: &notionapi.DateObject{Start: &date}},
		"Summary":           notionapi.RichTextProperty{RichText: richText(rec.Summary, richTextChars)},
		"Detected Commands": notionapi.RichTextProperty{RichText: richText(strings.Join(rec.Commands, ", "), richTextChars)},
		"Tone":              notionapi.SelectProperty{Select: notionapi.Option{Name: rec.Tone}},
		"Language":          notionapi.RichTextProperty{RichText: richText(rec.Language, richTextChars)},
		"Reply Draft 1":     notionapi.RichTextProperty{RichText: richText(models.DraftText(rec.Draft1), richTextChars)},
		"Reply Draft 2":     notionapi.RichTextProperty{RichText: richText(models.DraftText(rec.Draft2), richTextChars)},
		"Confidence Score":  notionapi.NumberProperty{Number: float64(min(100, max(0, rec.Confidence)))},
		"Action Taken": notionapi.SelectProperty{Select: notionapi.Option{
			Name:  rec.Action.Name,
			Color: notionapi.Color(rec.Action.Color),
		}},
		"Team Tag": notionapi.MultiSelectProperty{MultiSelect: teams},
		"Status":   notionapi.SelectProperty{Select: notionapi.Option{Name: reviewStatus}},
	}
	// An email property only accepts an address; leave the column empty
	// otherwise.
	if addr := senderAddress(rec.Sender); addr != "" {
		props["Sender Email"] = notionapi.EmailProperty{Email: addr}
	}
	return props
}

func richText(s string, limit int) []notionapi.RichText {
	return []notionapi.RichText{
		{Text: &notionapi.Text{Content: textutil.Truncate(s, limit)}},
	}
}

// senderAddress extracts the bare address from a From header, or "" when
// there is none.
func senderAddress(from string) string {
	if addr, err := mail.ParseAddress(from); err == nil {
		return addr.Address
	}
	from = strings.TrimSpace(from)
	if strings.Contains(from, "@") && !strings.ContainsAny(from, " <>") {
		return textutil.Truncate(from, titleChars)
	}
	return ""
}

func pageDate(rec *models.AnalysisRecord) time.Time {
	t := rec.ReceivedAt
	if t.IsZero() {
		t = rec.CreatedAt
	}
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Truncate(time.Second)
}
