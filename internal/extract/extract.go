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

// Package extract recovers the plain-text body of a message from its part
// tree. Decoding problems never surface as errors: a part that cannot be
// decoded is simply not a candidate.
package extract

import (
	"encoding/base64"
	"strings"

	"golang.org/x/text/encoding/ianaindex"

	"github.com/bcem/mailtriage/internal/models"
)

// Placeholders returned when no readable text exists.
const (
	PlaceholderUndecodable = "[Content extraction required]"
	PlaceholderEmpty       = "[No readable content available]"
)

// FromParts searches parts depth-first and returns the text of the first
// text/plain leaf that decodes to non-empty text. Containers are searched in
// order and the first branch yielding text wins. Returns "" when nothing does.
func FromParts(parts []models.Part) string {
	for _, part := range parts {
		switch p := part.(type) {
		case *models.Leaf:
			if !strings.EqualFold(p.MimeType, "text/plain") || len(p.Data) == 0 {
				continue
			}
			text, err := decodeLeaf(p)
			if err != nil || strings.TrimSpace(text) == "" {
				continue
			}
			return text
		case *models.Multipart:
			if text := FromParts(p.Children); text != "" {
				return text
			}
		}
	}
	return ""
}

// Body returns the message text for root, never an empty string. When no
// text/plain leaf exists it falls back to the top-level payload, whatever its
// type, and finally to a placeholder.
func Body(root models.Part) string {
	switch p := root.(type) {
	case *models.Multipart:
		if text := FromParts(p.Children); text != "" {
			return text
		}
		return PlaceholderEmpty
	case *models.Leaf:
		if text := FromParts([]models.Part{p}); text != "" {
			return text
		}
		if len(p.Data) == 0 {
			return PlaceholderEmpty
		}
		text, err := decodeLeaf(p)
		if err != nil {
			return PlaceholderUndecodable
		}
		if strings.TrimSpace(text) == "" {
			return PlaceholderEmpty
		}
		return text
	default:
		return PlaceholderEmpty
	}
}

// decodeLeaf undoes the payload encoding and converts the charset to UTF-8.
func decodeLeaf(l *models.Leaf) (string, error) {
	data := l.Data
	if l.Encoding == models.EncodingBase64URL {
		decoded, err := DecodeBase64URL(string(data))
		if err != nil {
			return "", err
		}
		data = decoded
	}
	return toUTF8(data, l.Charset), nil
}

// DecodeBase64URL decodes Gmail body data, which may or may not be padded.
func DecodeBase64URL(s string) ([]byte, error) {
	s = strings.TrimRight(strings.TrimSpace(s), "=")
	return base64.RawURLEncoding.DecodeString(s)
}

// toUTF8 decodes data from charset, dropping invalid sequences.
func toUTF8(data []byte, charset string) string {
	charset = strings.ToLower(strings.TrimSpace(charset))
	if charset != "" && charset != "utf-8" && charset != "us-ascii" {
		if enc, err := ianaindex.IANA.Encoding(charset); err == nil && enc != nil {
			if decoded, err := enc.NewDecoder().Bytes(data); err == nil {
				data = decoded
			}
		}
	}
	return strings.ToValidUTF8(string(data), "")
}
