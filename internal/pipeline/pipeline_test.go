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

package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bcem/mailtriage/internal/config"
	"github.com/bcem/mailtriage/internal/models"
	"github.com/bcem/mailtriage/internal/stage"
)

// --- Mock mail source ---

type mockSource struct {
	mu       sync.Mutex
	ids      []string
	messages map[string]*models.Message
	fetchErr map[string]error
	listErr  error
	since    time.Time
	limit    int
	fetched  []string
}

func (m *mockSource) ListMessageIDs(_ context.Context, since time.Time, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.since, m.limit = since, limit
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.ids, nil
}

func (m *mockSource) FetchMessage(_ context.Context, id string) (*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetched = append(m.fetched, id)
	if err := m.fetchErr[id]; err != nil {
		return nil, err
	}
	return m.messages[id], nil
}

func (m *mockSource) add(id, subject, body string) {
	if m.messages == nil {
		m.messages = make(map[string]*models.Message)
	}
	m.ids = append(m.ids, id)
	m.messages[id] = &models.Message{
		ID:         id,
		Subject:    subject,
		Sender:     "Ops <ops@example.com>",
		ReceivedAt: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		Body: &models.Multipart{
			MimeType: "multipart/alternative",
			Children: []models.Part{
				&models.Leaf{MimeType: "text/html", Encoding: models.EncodingRaw, Data: []byte("<p>" + body + "</p>")},
				&models.Leaf{MimeType: "text/plain", Encoding: models.EncodingRaw, Data: []byte(body)},
			},
		},
	}
}

// --- Mock model ---

type fakeModel struct {
	mu      sync.Mutex
	replies map[string]models.Result[string]
	calls   []string
	prompts map[string][]string
}

func newFakeModel(replies map[string]models.Result[string]) *fakeModel {
	return &fakeModel{replies: replies, prompts: make(map[string][]string)}
}

func (f *fakeModel) Invoke(_ context.Context, stageName, prompt string, _ config.StageParams) models.Result[string] {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, stageName)
	f.prompts[stageName] = append(f.prompts[stageName], prompt)
	if r, ok := f.replies[stageName]; ok {
		return r
	}
	return models.Unavailable[string]("not scripted")
}

func (f *fakeModel) count(stageName string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == stageName {
			n++
		}
	}
	return n
}

func invoiceReplies() map[string]models.Result[string] {
	return map[string]models.Result[string]{
		stage.StageLanguage:      models.OK("English"),
		stage.StageSummary:       models.OK("The customer has a billing question about invoice 221."),
		stage.StageIntents:       models.OK(`["billing_question", "send_invoice"]`),
		stage.StageDraftFormal:   models.OK("Dear customer, thank you for reaching out. The corrected invoice is attached."),
		stage.StageDraftFriendly: models.OK("Hi! Thanks for flagging this, here is the corrected invoice."),
		stage.StageTone:          models.OK("neutral"),
	}
}

// --- Mock sink ---

type mockSink struct {
	mu      sync.Mutex
	name    string
	openErr error
	failOn  map[string]bool
	created []string
	opened  int
}

func (m *mockSink) Name() string { return m.name }

func (m *mockSink) Open(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opened++
	return m.openErr
}

func (m *mockSink) Create(_ context.Context, rec *models.AnalysisRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn[rec.MessageID] {
		return errors.New("validation_error")
	}
	m.created = append(m.created, rec.MessageID)
	return nil
}

// --- Mock lock and run recorder ---

type mockLocker struct {
	held     bool
	released int
	err      error
}

func (m *mockLocker) Acquire(context.Context) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if m.held {
		return false, nil
	}
	m.held = true
	return true, nil
}

func (m *mockLocker) Release(context.Context) error {
	m.held = false
	m.released++
	return nil
}

type mockRuns struct {
	stats []*models.RunStats
}

func (m *mockRuns) RecordRun(_ context.Context, s *models.RunStats) error {
	m.stats = append(m.stats, s)
	return nil
}

// --- Helpers ---

var fixedNow = time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC)

func newTestRunner(src Source, model stage.Invoker, sinks ...Sink) *Runner {
	p := config.DefaultPipeline()
	return NewRunner(RunnerConfig{
		Source:   src,
		Gateway:  model,
		Pipeline: &p,
		Sinks:    sinks,
		Account:  "exec@example.com",
		Now:      func() time.Time { return fixedNow },
	})
}

const invoiceBody = "Hello, we were billed twice for March. Please send a corrected invoice for order 221."

// TestRun_InvoiceScenario verifies an end-to-end record for a billing email.
func TestRun_InvoiceScenario(t *testing.T) {
	src := &mockSource{}
	src.add("m1", "Invoice #221", invoiceBody)
	sink := &mockSink{name: "notion"}

	res, err := newTestRunner(src, newFakeModel(invoiceReplies()), sink).Run(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Stats.Status != models.RunCompleted {
		t.Fatalf("status = %q, want completed", res.Stats.Status)
	}
	if len(res.Records) != 1 {
		t.Fatalf("records = %d, want 1", len(res.Records))
	}

	rec := res.Records[0]
	if !rec.HasCommand("send_invoice") && !rec.HasCommand("billing_question") {
		t.Errorf("commands = %v, want an invoice command", rec.Commands)
	}
	if len(rec.Teams) != 1 || rec.Teams[0] != "Sales Ops" {
		t.Errorf("teams = %v, want [Sales Ops]", rec.Teams)
	}
	if rec.Confidence < 60 {
		t.Errorf("confidence = %d, want >= 60", rec.Confidence)
	}
	if rec.Action.Name != "Drafted" {
		t.Errorf("action = %q, want Drafted", rec.Action.Name)
	}
	if rec.Tone != "neutral" || rec.Language != "English" {
		t.Errorf("tone/language = %q/%q", rec.Tone, rec.Language)
	}
	if rec.ID == "" || rec.RunID != res.Stats.RunID {
		t.Errorf("record ids not assigned: %+v", rec)
	}

	if got := sink.created; len(got) != 1 || got[0] != "m1" {
		t.Errorf("sink created = %v", got)
	}
	if res.Stats.Synced() != 1 {
		t.Errorf("synced = %d, want 1", res.Stats.Synced())
	}
	if !src.since.Equal(fixedNow.AddDate(0, 0, -7)) || src.limit != 30 {
		t.Errorf("batch policy since=%v limit=%d", src.since, src.limit)
	}
}

// TestRun_ShortBodyIsNoWork verifies that a message below the content
// threshold yields no record and a no-work status.
func TestRun_ShortBodyIsNoWork(t *testing.T) {
	src := &mockSource{}
	src.add("m1", "hi", "  short note   ") // 15 characters with padding
	model := newFakeModel(invoiceReplies())
	sink := &mockSink{name: "notion"}

	res, err := newTestRunner(src, model, sink).Run(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Stats.Status != models.RunNoWork {
		t.Errorf("status = %q, want no_work", res.Stats.Status)
	}
	if len(res.Records) != 0 || res.Stats.Filtered != 1 {
		t.Errorf("records = %d, filtered = %d", len(res.Records), res.Stats.Filtered)
	}
	if len(model.calls) != 0 {
		t.Errorf("model invoked for filtered message: %v", model.calls)
	}
	if sink.opened != 0 {
		t.Error("sink opened with no records")
	}
}

// TestRun_EmptyBatch verifies an empty mailbox is no work, not an error.
func TestRun_EmptyBatch(t *testing.T) {
	res, err := newTestRunner(&mockSource{}, newFakeModel(nil)).Run(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Stats.Status != models.RunNoWork || res.Stats.Scanned != 0 {
		t.Errorf("stats = %+v", res.Stats)
	}
}

// TestRun_FetchFailureIsolated verifies a failing message does not abort
// the batch.
func TestRun_FetchFailureIsolated(t *testing.T) {
	src := &mockSource{fetchErr: map[string]error{"bad": errors.New("HTTP 500")}}
	src.ids = append(src.ids, "bad")
	src.add("good", "Invoice #221", invoiceBody)

	res, err := newTestRunner(src, newFakeModel(invoiceReplies()), &mockSink{name: "notion"}).Run(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Stats.Processed != 1 || res.Stats.Skipped != 1 || res.Stats.Scanned != 2 {
		t.Errorf("processed=%d skipped=%d scanned=%d", res.Stats.Processed, res.Stats.Skipped, res.Stats.Scanned)
	}
	if res.Records[0].MessageID != "good" {
		t.Errorf("surviving record = %q", res.Records[0].MessageID)
	}
}

// TestRun_SummaryFallbackContinues verifies a failed summary still feeds
// classification.
func TestRun_SummaryFallbackContinues(t *testing.T) {
	replies := invoiceReplies()
	replies[stage.StageSummary] = models.Unavailable[string]("rate limited")
	model := newFakeModel(replies)

	src := &mockSource{}
	src.add("m1", "Invoice #221", invoiceBody)

	res, err := newTestRunner(src, model).Run(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	rec := res.Records[0]
	if !strings.HasPrefix(rec.Summary, "Summary unavailable") {
		t.Errorf("summary = %q", rec.Summary)
	}
	if model.count(stage.StageIntents) != 1 {
		t.Fatal("classifier not invoked")
	}
	if !strings.Contains(model.prompts[stage.StageIntents][0], "Summary unavailable") {
		t.Error("classifier did not receive the fallback summary")
	}
}

// TestRun_NoActionSkipsDrafting verifies the no-action path end to end.
func TestRun_NoActionSkipsDrafting(t *testing.T) {
	replies := invoiceReplies()
	replies[stage.StageIntents] = models.OK(`["no_action"]`)
	model := newFakeModel(replies)

	src := &mockSource{}
	src.add("m1", "Newsletter", "Our monthly newsletter is here with product updates and tips.")

	res, err := newTestRunner(src, model).Run(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	rec := res.Records[0]
	if !rec.Draft1.IsSkipped() || !rec.Draft2.IsSkipped() {
		t.Errorf("drafts = %+v / %+v", rec.Draft1, rec.Draft2)
	}
	if model.count(stage.StageDraftFormal)+model.count(stage.StageDraftFriendly) != 0 {
		t.Error("drafting invoked for no_action")
	}
	if rec.Confidence != 25 {
		t.Errorf("confidence = %d, want 25", rec.Confidence)
	}
	if rec.Action.Name != "Skipped" || rec.Teams[0] != "Executive Office" {
		t.Errorf("action = %q teams = %v", rec.Action.Name, rec.Teams)
	}
}

// TestRun_ModelOutage verifies a full backend outage degrades records
// instead of failing the batch.
func TestRun_ModelOutage(t *testing.T) {
	src := &mockSource{}
	src.add("m1", "Invoice #221", invoiceBody)
	src.add("m2", "Partnership", "We would like to explore a strategic partnership with your team next quarter.")

	res, err := newTestRunner(src, newFakeModel(nil)).Run(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Stats.Status != models.RunCompleted || len(res.Records) != 2 {
		t.Fatalf("status = %q records = %d", res.Stats.Status, len(res.Records))
	}
	for _, rec := range res.Records {
		if rec.Language != "English" || rec.Tone != "neutral" {
			t.Errorf("fallbacks not applied: %+v", rec)
		}
		if len(rec.Commands) != 1 || rec.Commands[0] != "no_action" {
			t.Errorf("commands = %v", rec.Commands)
		}
	}
}

// TestRun_PreservesSourceOrder verifies records follow the batch order.
func TestRun_PreservesSourceOrder(t *testing.T) {
	src := &mockSource{}
	for _, id := range []string{"c", "a", "b"} {
		src.add(id, "Invoice "+id, invoiceBody)
	}
	res, err := newTestRunner(src, newFakeModel(invoiceReplies())).Run(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	var got []string
	for _, rec := range res.Records {
		got = append(got, rec.MessageID)
	}
	if strings.Join(got, ",") != "c,a,b" {
		t.Errorf("order = %v", got)
	}
}

// TestRun_SinkFailures verifies per-record failures are counted and an
// unreachable sink aborts only itself.
func TestRun_SinkFailures(t *testing.T) {
	src := &mockSource{}
	src.add("m1", "Invoice #221", invoiceBody)
	src.add("m2", "Invoice #222", invoiceBody)

	primary := &mockSink{name: "notion", failOn: map[string]bool{"m2": true}}
	down := &mockSink{name: "postgres", openErr: errors.New("connection refused")}
	queue := &mockSink{name: "redis"}

	res, err := newTestRunner(src, newFakeModel(invoiceReplies()), primary, down, queue).Run(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Stats.Processed != 2 || len(res.Records) != 2 {
		t.Errorf("processed = %d", res.Stats.Processed)
	}
	reports := res.Stats.Sinks
	if len(reports) != 3 {
		t.Fatalf("sink reports = %d, want 3", len(reports))
	}
	if reports[0].Synced != 1 || reports[0].Failed != 1 {
		t.Errorf("primary report = %+v", reports[0])
	}
	if !reports[1].Aborted || reports[1].Synced != 0 || reports[1].Error == "" {
		t.Errorf("aborted report = %+v", reports[1])
	}
	if reports[2].Synced != 2 {
		t.Errorf("queue report = %+v", reports[2])
	}
}

// TestRun_DryRun verifies no sink is touched.
func TestRun_DryRun(t *testing.T) {
	src := &mockSource{}
	src.add("m1", "Invoice #221", invoiceBody)
	sink := &mockSink{name: "notion"}
	runs := &mockRuns{}

	p := config.DefaultPipeline()
	r := NewRunner(RunnerConfig{
		Source: src, Gateway: newFakeModel(invoiceReplies()), Pipeline: &p,
		Sinks: []Sink{sink}, Runs: runs, Now: func() time.Time { return fixedNow },
	})
	res, err := r.Run(context.Background(), Request{DryRun: true, LookbackDays: 2, MaxResults: 5})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sink.opened != 0 || len(runs.stats) != 0 {
		t.Error("dry run wrote to a sink")
	}
	if len(res.Records) != 1 || !res.Stats.DryRun {
		t.Errorf("stats = %+v", res.Stats)
	}
	if src.limit != 5 || !src.since.Equal(fixedNow.AddDate(0, 0, -2)) {
		t.Errorf("request policy ignored: since=%v limit=%d", src.since, src.limit)
	}
}

// TestRun_SourceUnavailable verifies a listing failure is reported, not
// returned.
func TestRun_SourceUnavailable(t *testing.T) {
	src := &mockSource{listErr: errors.New("invalid_grant")}
	res, err := newTestRunner(src, newFakeModel(nil)).Run(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Stats.Status != models.RunSourceUnavailable || !strings.Contains(res.Stats.Error, "invalid_grant") {
		t.Errorf("stats = %+v", res.Stats)
	}
}

// TestRun_InvalidConfig verifies configuration errors abort before any
// message is touched.
func TestRun_InvalidConfig(t *testing.T) {
	src := &mockSource{}
	src.add("m1", "Invoice #221", invoiceBody)

	p := config.DefaultPipeline()
	p.LookbackDays = 0
	r := NewRunner(RunnerConfig{Source: src, Gateway: newFakeModel(nil), Pipeline: &p})

	_, err := r.Run(context.Background(), Request{})
	if !errors.Is(err, config.ErrInvalid) {
		t.Fatalf("err = %v, want ErrInvalid", err)
	}
	if len(src.fetched) != 0 {
		t.Error("messages fetched despite invalid config")
	}
}

// TestRun_Lock verifies a held lock makes the run report busy.
func TestRun_Lock(t *testing.T) {
	src := &mockSource{}
	src.add("m1", "Invoice #221", invoiceBody)
	lock := &mockLocker{held: true}

	p := config.DefaultPipeline()
	r := NewRunner(RunnerConfig{Source: src, Gateway: newFakeModel(invoiceReplies()), Pipeline: &p, Locker: lock})

	res, err := r.Run(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Stats.Status != models.RunBusy || len(src.fetched) != 0 {
		t.Errorf("status = %q fetched = %v", res.Stats.Status, src.fetched)
	}

	lock.held = false
	res, err = r.Run(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Stats.Status != models.RunCompleted || lock.released != 1 || lock.held {
		t.Errorf("status = %q released = %d held = %v", res.Stats.Status, lock.released, lock.held)
	}
}

// TestRun_ReportAggregates verifies the run summary fields.
func TestRun_ReportAggregates(t *testing.T) {
	replies := invoiceReplies()
	replies[stage.StageIntents] = models.OK(`["investment_inquiry", "follow_up"]`)
	replies[stage.StageLanguage] = models.OK("Japanese")

	src := &mockSource{}
	src.add("m1", "Series B", "We are considering leading your Series B round and would like to meet next week.")
	runs := &mockRuns{}

	p := config.DefaultPipeline()
	r := NewRunner(RunnerConfig{
		Source: src, Gateway: newFakeModel(replies), Pipeline: &p,
		Runs: runs, Account: "exec@example.com", Now: func() time.Time { return fixedNow },
	})
	res, err := r.Run(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	s := res.Stats
	if s.Priority != 1 || strings.Join(s.HighValue, ",") != "investment_inquiry" {
		t.Errorf("priority = %d high value = %v", s.Priority, s.HighValue)
	}
	if strings.Join(s.Languages, ",") != "Japanese" {
		t.Errorf("languages = %v", s.Languages)
	}
	if res.Records[0].Action.Name != "Priority" {
		t.Errorf("action = %q", res.Records[0].Action.Name)
	}
	if len(runs.stats) != 1 || runs.stats[0].RunID != s.RunID {
		t.Error("run report not recorded")
	}

	report := s.Report()
	for _, want := range []string{"exec@example.com", "Processed: 1", "Japanese", "investment_inquiry"} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q:\n%s", want, report)
		}
	}
}

// TestRun_ElapsedUsesClock verifies the elapsed time comes from the injected
// clock.
func TestRun_ElapsedUsesClock(t *testing.T) {
	calls := 0
	clock := func() time.Time {
		calls++
		if calls == 1 {
			return fixedNow
		}
		return fixedNow.Add(3 * time.Second)
	}

	p := config.DefaultPipeline()
	r := NewRunner(RunnerConfig{
		Source: &mockSource{}, Gateway: newFakeModel(invoiceReplies()), Pipeline: &p, Now: clock,
	})
	res, err := r.Run(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Stats.Elapsed != 3*time.Second {
		t.Errorf("elapsed = %v, want 3s", res.Stats.Elapsed)
	}
	if !res.Stats.StartedAt.Equal(fixedNow) {
		t.Errorf("started = %v, want %v", res.Stats.StartedAt, fixedNow)
	}
}
