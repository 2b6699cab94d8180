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
	"context"
	"fmt"
	"net/http"
	"os"

	"golang.org/x/oauth2/google"

	"github.com/bcem/mailtriage/internal/config"
)

// ReadonlyScope grants read access to the mailbox.
const ReadonlyScope = "https://www.googleapis.com/auth/gmail.readonly"

// NewHTTPClient returns an HTTP client authorised as delegatedUser through
// domain-wide delegation of the service account in keyFile. Tokens are
// refreshed by the oauth2 transport.
func NewHTTPClient(ctx context.Context, keyFile, delegatedUser string) (*http.Client, error) {
	data, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, fmt.Errorf("%w: read service account key: %v", config.ErrInvalid, err)
	}

	jwtCfg, err := google.JWTConfigFromJSON(data, ReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("%w: parse service account key: %v", config.ErrInvalid, err)
	}
	jwtCfg.Subject = delegatedUser

	return jwtCfg.Client(ctx), nil
}
