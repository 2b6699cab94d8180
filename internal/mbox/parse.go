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

package mbox

import (
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"

	"github.com/bcem/mailtriage/internal/models"
)

type headerGetter interface {
	Get(string) string
}

// readPart builds the body tree of one MIME entity. Transfer encodings are
// undone here, so leaves carry raw bytes in their declared charset.
func readPart(header headerGetter, body io.Reader) (models.Part, error) {
	ctype, params, err := mime.ParseMediaType(header.Get("Content-Type"))
	if err != nil {
		ctype, params = "text/plain", map[string]string{}
	}

	if strings.HasPrefix(ctype, "multipart/") {
		mr := multipart.NewReader(body, params["boundary"])
		container := &models.Multipart{MimeType: ctype}
		for {
			p, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", ctype, err)
			}
			child, err := readPart(p.Header, p)
			if err != nil {
				return nil, err
			}
			container.Children = append(container.Children, child)
		}
		return container, nil
	}

	var reader io.Reader = body
	switch strings.ToLower(strings.TrimSpace(header.Get("Content-Transfer-Encoding"))) {
	case "base64":
		reader = base64.NewDecoder(base64.StdEncoding, body)
	case "quoted-printable":
		reader = quotedprintable.NewReader(body)
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", ctype, err)
	}

	return &models.Leaf{
		MimeType: ctype,
		Charset:  params["charset"],
		Encoding: models.EncodingRaw,
		Data:     data,
	}, nil
}

var wordDecoder = &mime.WordDecoder{CharsetReader: charsetReader}

// decodeHeader decodes RFC 2047 encoded-words, returning the input on error.
func decodeHeader(v string) string {
	decoded, err := wordDecoder.DecodeHeader(v)
	if err != nil {
		return v
	}
	return decoded
}

func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	enc, err := ianaindex.IANA.Encoding(strings.ToLower(charset))
	if err != nil || enc == nil {
		return input, nil
	}
	return transform.NewReader(input, enc.NewDecoder()), nil
}

// parseDate parses common Date header formats. Returns the zero time when
// nothing matches.
func parseDate(v string) time.Time {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}
	}
	if t, err := mail.ParseDate(v); err == nil {
		return t
	}
	for _, layout := range []string{time.RFC1123Z, time.RFC1123, time.RFC822Z, time.RFC822, time.RFC3339} {
		if t, err := time.Parse(layout, v); err == nil {
			return t
		}
	}
	return time.Time{}
}
