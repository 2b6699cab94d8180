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

package gmail

import (
	"mime"
	"strings"
	"time"

	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/bcem/mailtriage/internal/models"
)

// NoSubject is used when a message carries no Subject header.
const NoSubject = "(no subject)"

// parseMessage converts a format=full API message into a Message.
func parseMessage(raw *gmailapi.Message) *models.Message {
	var headers []*gmailapi.MessagePartHeader
	if raw.Payload != nil {
		headers = raw.Payload.Headers
	}

	subject := headerValue(headers, "Subject")
	if strings.TrimSpace(subject) == "" {
		subject = NoSubject
	}

	msg := &models.Message{
		ID:           raw.Id,
		Subject:      subject,
		Sender:       headerValue(headers, "From"),
		InternalDate: raw.InternalDate,
		Body:         toPart(raw.Payload),
	}
	if raw.InternalDate != 0 {
		msg.ReceivedAt = time.UnixMilli(raw.InternalDate).UTC()
	}
	return msg
}

// toPart maps a payload node to the body tree: nodes with children become
// containers, everything else a base64url leaf.
func toPart(p *gmailapi.MessagePart) models.Part {
	if p == nil {
		return &models.Leaf{Encoding: models.EncodingBase64URL}
	}
	if len(p.Parts) > 0 {
		children := make([]models.Part, 0, len(p.Parts))
		for _, child := range p.Parts {
			children = append(children, toPart(child))
		}
		return &models.Multipart{MimeType: p.MimeType, Children: children}
	}

	leaf := &models.Leaf{
		MimeType: p.MimeType,
		Charset:  charset(p.Headers),
		Encoding: models.EncodingBase64URL,
	}
	if p.Body != nil {
		leaf.Data = []byte(p.Body.Data)
	}
	return leaf
}

func charset(headers []*gmailapi.MessagePartHeader) string {
	ct := headerValue(headers, "Content-Type")
	if ct == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(ct)
	if err != nil {
		return ""
	}
	return params["charset"]
}

func headerValue(headers []*gmailapi.MessagePartHeader, name string) string {
	for _, h := range headers {
		if h != nil && strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}
