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

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/bcem/mailtriage/internal/config"
)

// stubCompleter returns a canned response and records requests.
type stubCompleter struct {
	mu       sync.Mutex
	text     string
	err      error
	requests []Request
}

func (s *stubCompleter) Complete(_ context.Context, req Request) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	return s.text, s.err
}

func (s *stubCompleter) Name() string { return "stub" }

// TestGateway_Success verifies parameters are forwarded and output trimmed.
func TestGateway_Success(t *testing.T) {
	stub := &stubCompleter{text: "  French \n"}
	g := NewGateway(stub, "role context")

	res := g.Invoke(context.Background(), "language", "prompt", config.StageParams{Model: "m", MaxTokens: 15, Temperature: 0.4})
	if !res.IsOK() || res.Value != "French" {
		t.Fatalf("Invoke = %+v, want OK(French)", res)
	}

	req := stub.requests[0]
	if req.System != "role context" || req.Model != "m" || req.MaxTokens != 15 || req.Temperature != 0.4 {
		t.Errorf("forwarded request = %+v", req)
	}
}

// TestGateway_FailureBecomesUnavailable verifies errors never propagate.
func TestGateway_FailureBecomesUnavailable(t *testing.T) {
	g := NewGateway(&stubCompleter{err: errors.New("rate limited")}, "")

	res := g.Invoke(context.Background(), "summary", "prompt", config.StageParams{MaxTokens: 10})
	if !res.IsUnavailable() {
		t.Fatalf("status = %s, want unavailable", res.Status)
	}
	if res.Reason != "rate limited" {
		t.Errorf("reason = %q, want the backend error text", res.Reason)
	}
}

// TestGateway_EmptyIsUnavailable verifies a blank completion is not content.
func TestGateway_EmptyIsUnavailable(t *testing.T) {
	g := NewGateway(&stubCompleter{text: "   "}, "")

	if res := g.Invoke(context.Background(), "tone", "p", config.StageParams{MaxTokens: 1}); !res.IsUnavailable() {
		t.Errorf("status = %s, want unavailable", res.Status)
	}
}

// TestGateway_NoCaching verifies identical prompts are re-sent.
func TestGateway_NoCaching(t *testing.T) {
	stub := &stubCompleter{text: "ok"}
	g := NewGateway(stub, "")

	for i := 0; i < 3; i++ {
		g.Invoke(context.Background(), "tone", "same prompt", config.StageParams{MaxTokens: 1})
	}
	if len(stub.requests) != 3 {
		t.Errorf("backend calls = %d, want 3", len(stub.requests))
	}
}

// TestOpenAIClient_Complete verifies the wire format against a mock API.
func TestOpenAIClient_Complete(t *testing.T) {
	var got openAIRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			t.Errorf("Authorization = %q", auth)
		}
		json.NewDecoder(r.Body).Decode(&got)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":" Spanish "}}]}`))
	}))
	defer server.Close()

	c := NewOpenAIClient(OpenAIConfig{APIKey: "sk-test", BaseURL: server.URL, Model: "gpt-test"})
	text, err := c.Complete(context.Background(), Request{System: "sys", Prompt: "hola", MaxTokens: 15, Temperature: 0})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if text != "Spanish" {
		t.Errorf("text = %q, want Spanish", text)
	}

	if got.Model != "gpt-test" || len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Content != "hola" {
		t.Errorf("request body = %+v", got)
	}
}

// TestOpenAIClient_HTTPError verifies non-200 responses become errors.
func TestOpenAIClient_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"slow down"}}`))
	}))
	defer server.Close()

	c := NewOpenAIClient(OpenAIConfig{APIKey: "k", BaseURL: server.URL})
	if _, err := c.Complete(context.Background(), Request{Prompt: "x"}); err == nil {
		t.Fatal("expected error for 429 response")
	}
}

// TestOpenAIClient_MissingKey verifies the client refuses to call without a key.
func TestOpenAIClient_MissingKey(t *testing.T) {
	c := NewOpenAIClient(OpenAIConfig{BaseURL: "http://unused"})
	if _, err := c.Complete(context.Background(), Request{Prompt: "x"}); err == nil {
		t.Fatal("expected error without API key")
	}
}

// TestNew_UnknownProvider verifies provider selection errors are config errors.
func TestNew_UnknownProvider(t *testing.T) {
	_, err := New(context.Background(), config.LLMConfig{Provider: "mystery"})
	if !errors.Is(err, config.ErrInvalid) {
		t.Errorf("err = %v, want ErrInvalid", err)
	}
}
