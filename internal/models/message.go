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

// Package models defines the data structures shared across the triage service.
package models

import "time"

// Encoding describes how a leaf payload is stored.
type Encoding int

const (
	// EncodingBase64URL is the Gmail API representation of body data.
	EncodingBase64URL Encoding = iota
	// EncodingRaw means the payload bytes are already transfer-decoded.
	EncodingRaw
)

// Part is a node of a message body tree. It is either a *Leaf or a *Multipart.
type Part interface {
	MediaType() string
}

// Leaf is a body part that carries a payload.
type Leaf struct {
	MimeType string
	Charset  string
	Encoding Encoding
	Data     []byte
}

// MediaType returns the leaf's MIME type.
func (l *Leaf) MediaType() string { return l.MimeType }

// Multipart is a body part that only groups other parts.
type Multipart struct {
	MimeType string
	Children []Part
}

// MediaType returns the container's MIME type.
func (m *Multipart) MediaType() string { return m.MimeType }

// Message is a raw inbox message as returned by a mail source.
type Message struct {
	ID           string
	Subject      string
	Sender       string
	ReceivedAt   time.Time
	InternalDate int64 // epoch milliseconds
	Body         Part
}
