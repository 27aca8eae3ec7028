package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/snarg/call-engine/internal/analyze"
	"github.com/snarg/call-engine/internal/model"
	"github.com/snarg/call-engine/internal/queue"
	"github.com/snarg/call-engine/internal/store"
	"github.com/snarg/call-engine/internal/transcribe"
)

type fakeAudio struct{ err error }

func (f *fakeAudio) Fetch(context.Context, string) (string, func(), error) {
	if f.err != nil {
		return "", func() {}, f.err
	}
	return "/tmp/fake.wav", func() {}, nil
}

type failingProvider struct{ err error }

func (p *failingProvider) Name() string  { return "stub" }
func (p *failingProvider) Model() string { return "stub-v1" }
func (p *failingProvider) Transcribe(context.Context, string, transcribe.Opts) (*transcribe.Response, error) {
	return nil, p.err
}

// countingProvider fails the first failFirst calls with a transport
// error, then succeeds.
type countingProvider struct {
	calls     atomic.Int64
	failFirst int64
}

func (p *countingProvider) Name() string  { return "stub" }
func (p *countingProvider) Model() string { return "stub-v1" }
func (p *countingProvider) Transcribe(context.Context, string, transcribe.Opts) (*transcribe.Response, error) {
	if p.calls.Add(1) <= p.failFirst {
		return nil, model.Transportf("stub", errors.New("connection refused"))
	}
	return &transcribe.Response{
		Text:         "Hello there.",
		Language:     "en",
		DurationSecs: 2,
		Confidence:   0.95,
		Segments:     []model.Segment{{Start: 0, End: 2, Text: "Hello there."}},
	}, nil
}

type countingNotifier struct {
	completed    atomic.Int64
	failed       atomic.Int64
	highPriority atomic.Int64
}

func (n *countingNotifier) ProcessingComplete(context.Context, *model.Recording) error {
	n.completed.Add(1)
	return nil
}

func (n *countingNotifier) ProcessingFailed(context.Context, *model.Recording) error {
	n.failed.Add(1)
	return nil
}

func (n *countingNotifier) HighPriorityAction(context.Context, *model.Recording, *model.ActionItem) error {
	n.highPriority.Add(1)
	return nil
}

// flakyAnalyzer fails a chosen set of sub-steps and stubs the rest.
type flakyAnalyzer struct {
	analyze.StubAnalyzer
	failSentiment  bool
	failKeyMoments bool
	failScore      bool
}

func (a *flakyAnalyzer) AnalyzeSentiment(ctx context.Context, req analyze.Request) (*model.SentimentAnalysis, error) {
	if a.failSentiment {
		return nil, model.Transportf("gateway", errors.New("boom"))
	}
	return a.StubAnalyzer.AnalyzeSentiment(ctx, req)
}

func (a *flakyAnalyzer) DetectKeyMoments(ctx context.Context, req analyze.Request) ([]model.KeyMoment, error) {
	if a.failKeyMoments {
		return nil, model.Transportf("gateway", errors.New("boom"))
	}
	return a.StubAnalyzer.DetectKeyMoments(ctx, req)
}

func (a *flakyAnalyzer) ScoreCall(ctx context.Context, req analyze.Request) (*model.CallScore, error) {
	if a.failScore {
		return nil, model.Transportf("gateway", errors.New("boom"))
	}
	return a.StubAnalyzer.ScoreCall(ctx, req)
}

type harness struct {
	store    *store.Memory
	orch     *Orchestrator
	notifier *countingNotifier
	tasks    []queue.Task
}

func newHarness(t *testing.T, provider transcribe.Provider, analyzer analyze.Analyzer) *harness {
	t.Helper()
	reg := transcribe.NewRegistry()
	reg.Register(provider)

	h := &harness{
		store:    store.NewMemory(),
		notifier: &countingNotifier{},
	}
	h.orch = New(Options{
		Store:     h.store,
		Audio:     &fakeAudio{},
		Providers: reg,
		Analyzer:  analyzer,
		Notifier:  h.notifier,
		Log:       zerolog.Nop(),
	})
	h.orch.SetEnqueue(func(task queue.Task) bool {
		h.tasks = append(h.tasks, task)
		return true
	})
	return h
}

// drain runs queued tasks synchronously until none remain.
func (h *harness) drain(t *testing.T, ctx context.Context) {
	t.Helper()
	for len(h.tasks) > 0 {
		task := h.tasks[0]
		h.tasks = h.tasks[1:]
		if err := h.orch.Handle(ctx, task); err != nil {
			t.Fatalf("Handle(%s): %v", task.Kind, err)
		}
	}
}

func (h *harness) newRecording(t *testing.T, src model.SourceType) *model.Recording {
	t.Helper()
	ctx := context.Background()
	owner := uuid.New()

	settings := model.DefaultTranscriptionSettings(owner)
	settings.PreferredProvider = "stub"
	if err := h.store.SaveTranscriptionSettings(ctx, settings); err != nil {
		t.Fatalf("SaveTranscriptionSettings: %v", err)
	}

	rec := &model.Recording{
		OwnerID:    owner,
		SourceType: src,
		Status:     model.StatusUploaded,
		AudioKey:   "calls/demo.wav",
	}
	if err := h.store.CreateRecording(ctx, rec); err != nil {
		t.Fatalf("CreateRecording: %v", err)
	}
	return rec
}

func TestPipeline_FullRun(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &transcribe.StubProvider{Text: "Please follow up with the pricing proposal."}, analyze.StubAnalyzer{})
	rec := h.newRecording(t, model.SourcePhoneCall)

	if err := h.orch.EnqueueProcessing(ctx, rec.ID); err != nil {
		t.Fatalf("EnqueueProcessing: %v", err)
	}
	h.drain(t, ctx)

	got, err := h.store.GetRecording(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetRecording: %v", err)
	}
	if got.Status != model.StatusCompleted {
		t.Fatalf("status = %q, want completed", got.Status)
	}
	if got.ProcessingStartedAt == nil || got.ProcessingCompletedAt == nil {
		t.Error("processing timestamps should be set")
	}

	tr, err := h.store.GetTranscript(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetTranscript: %v", err)
	}
	if tr.Provider != "stub" || tr.FullText == "" {
		t.Errorf("transcript = provider %q, text %q", tr.Provider, tr.FullText)
	}

	presence, err := h.store.ArtifactPresence(ctx, rec.ID)
	if err != nil {
		t.Fatalf("ArtifactPresence: %v", err)
	}
	if presence.Summaries != 2 {
		t.Errorf("summaries = %d, want 2 (brief and detailed)", presence.Summaries)
	}
	if presence.ActionItems != 1 {
		t.Errorf("action items = %d, want 1", presence.ActionItems)
	}
	if !presence.HasSentiment || !presence.HasCallScore {
		t.Errorf("presence = %+v, want sentiment and call score", presence)
	}
	if presence.Categories != 1 {
		t.Errorf("categories = %d, want 1", presence.Categories)
	}

	if n := h.notifier.completed.Load(); n != 1 {
		t.Errorf("completion notifications = %d, want exactly 1", n)
	}
	if n := h.notifier.highPriority.Load(); n != 0 {
		t.Errorf("high-priority notifications = %d, want 0 without opt-in", n)
	}
}

func TestPipeline_VoiceNoteSkipsCallScore(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &transcribe.StubProvider{}, analyze.StubAnalyzer{})
	rec := h.newRecording(t, model.SourceVoiceNote)

	if err := h.orch.EnqueueProcessing(ctx, rec.ID); err != nil {
		t.Fatalf("EnqueueProcessing: %v", err)
	}
	h.drain(t, ctx)

	presence, err := h.store.ArtifactPresence(ctx, rec.ID)
	if err != nil {
		t.Fatalf("ArtifactPresence: %v", err)
	}
	if presence.HasCallScore {
		t.Error("voice notes must not be call-scored")
	}
	got, _ := h.store.GetRecording(ctx, rec.ID)
	if got.Status != model.StatusCompleted {
		t.Errorf("status = %q, want completed", got.Status)
	}
}

func TestPipeline_DuplicateDeliveryIsNoOp(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &transcribe.StubProvider{}, analyze.StubAnalyzer{})
	rec := h.newRecording(t, model.SourcePhoneCall)

	if err := h.orch.EnqueueProcessing(ctx, rec.ID); err != nil {
		t.Fatalf("EnqueueProcessing: %v", err)
	}
	h.drain(t, ctx)

	// Redelivered tasks must no-op through Handle and leave one transcript.
	for _, kind := range []queue.Kind{queue.KindTranscribe, queue.KindAnalyze} {
		if err := h.orch.Handle(ctx, queue.Task{Kind: kind, RecordingID: rec.ID}); err != nil {
			t.Errorf("Handle(%s) on completed recording: %v", kind, err)
		}
	}

	got, _ := h.store.GetRecording(ctx, rec.ID)
	if got.Status != model.StatusCompleted {
		t.Errorf("status = %q after duplicates, want completed", got.Status)
	}
	if n := h.notifier.completed.Load(); n != 1 {
		t.Errorf("completion notifications = %d, want exactly 1", n)
	}
}

func TestPipeline_TransportErrorPropagates(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &failingProvider{err: model.Transportf("stub", errors.New("connection refused"))}, analyze.StubAnalyzer{})
	rec := h.newRecording(t, model.SourcePhoneCall)

	err := h.orch.Transcribe(ctx, rec.ID)
	if !model.IsTransport(err) {
		t.Fatalf("Transcribe error = %v, want transport-class", err)
	}

	// The recording stays claimed; the queue retries against transcribing.
	got, _ := h.store.GetRecording(ctx, rec.ID)
	if got.Status != model.StatusTranscribing {
		t.Errorf("status = %q, want transcribing", got.Status)
	}
}

func TestPipeline_TranscribeResumesAfterTransportError(t *testing.T) {
	ctx := context.Background()
	provider := &countingProvider{failFirst: 1}
	h := newHarness(t, provider, analyze.StubAnalyzer{})
	rec := h.newRecording(t, model.SourcePhoneCall)

	if err := h.orch.Transcribe(ctx, rec.ID); !model.IsTransport(err) {
		t.Fatalf("first Transcribe = %v, want transport-class", err)
	}

	// The redelivered task must re-claim the transcribing recording and
	// call the provider again, not dissolve into a duplicate no-op.
	if err := h.orch.Transcribe(ctx, rec.ID); err != nil {
		t.Fatalf("second Transcribe: %v", err)
	}
	if n := provider.calls.Load(); n != 2 {
		t.Errorf("provider calls = %d, want 2", n)
	}

	h.drain(t, ctx)
	got, _ := h.store.GetRecording(ctx, rec.ID)
	if got.Status != model.StatusCompleted {
		t.Errorf("status = %q, want completed", got.Status)
	}
	if _, err := h.store.GetTranscript(ctx, rec.ID); err != nil {
		t.Errorf("transcript missing after retry: %v", err)
	}
}

// newTestQueue wires the orchestrator to a real worker pool the way
// main does.
func newTestQueue(h *harness) *queue.Queue {
	q := queue.New(queue.Options{
		Workers:        1,
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		Handler:        h.orch.Handle,
		OnExhausted:    h.orch.OnExhausted,
		Log:            zerolog.Nop(),
	})
	h.orch.SetEnqueue(q.Enqueue)
	return q
}

func waitForStatus(t *testing.T, s *store.Memory, id uuid.UUID, want model.Status) *model.Recording {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rec, err := s.GetRecording(context.Background(), id)
		if err != nil {
			t.Fatalf("GetRecording: %v", err)
		}
		if rec.Status == want {
			return rec
		}
		time.Sleep(5 * time.Millisecond)
	}
	rec, _ := s.GetRecording(context.Background(), id)
	t.Fatalf("timed out waiting for status %q, have %q", want, rec.Status)
	return nil
}

func TestPipeline_QueueRetriesTransientProviderFailure(t *testing.T) {
	ctx := context.Background()
	provider := &countingProvider{failFirst: 2}
	h := newHarness(t, provider, analyze.StubAnalyzer{})
	rec := h.newRecording(t, model.SourcePhoneCall)

	q := newTestQueue(h)
	q.Start()
	defer q.Stop()

	if err := h.orch.EnqueueProcessing(ctx, rec.ID); err != nil {
		t.Fatalf("EnqueueProcessing: %v", err)
	}

	waitForStatus(t, h.store, rec.ID, model.StatusCompleted)
	if n := provider.calls.Load(); n != 3 {
		t.Errorf("provider calls = %d, want exactly 3", n)
	}
	if _, err := h.store.GetTranscript(ctx, rec.ID); err != nil {
		t.Errorf("transcript missing after retries: %v", err)
	}
	if n := h.notifier.failed.Load(); n != 0 {
		t.Errorf("failure notifications = %d, want 0", n)
	}
}

func TestPipeline_QueueExhaustionMarksFailed(t *testing.T) {
	ctx := context.Background()
	provider := &countingProvider{failFirst: 1 << 30}
	h := newHarness(t, provider, analyze.StubAnalyzer{})
	rec := h.newRecording(t, model.SourcePhoneCall)

	q := newTestQueue(h)
	q.Start()
	defer q.Stop()

	if err := h.orch.EnqueueProcessing(ctx, rec.ID); err != nil {
		t.Fatalf("EnqueueProcessing: %v", err)
	}

	got := waitForStatus(t, h.store, rec.ID, model.StatusFailed)
	if n := provider.calls.Load(); n != 3 {
		t.Errorf("provider calls = %d, want exactly 3", n)
	}
	if got.ProcessingError == "" {
		t.Error("processing error should be recorded")
	}
	if n := h.notifier.failed.Load(); n != 1 {
		t.Errorf("failure notifications = %d, want exactly 1", n)
	}
}

func TestPipeline_EmptyTranscriptionIsContentError(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &transcribe.StubProvider{Text: "   "}, analyze.StubAnalyzer{})
	rec := h.newRecording(t, model.SourcePhoneCall)

	err := h.orch.Transcribe(ctx, rec.ID)
	if !model.IsContent(err) {
		t.Fatalf("Transcribe error = %v, want content-class", err)
	}
}

func TestPipeline_PartialAnalysisStillCompletes(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &transcribe.StubProvider{}, &flakyAnalyzer{
		failSentiment:  true,
		failKeyMoments: true,
		failScore:      true,
	})
	rec := h.newRecording(t, model.SourcePhoneCall)

	if err := h.orch.EnqueueProcessing(ctx, rec.ID); err != nil {
		t.Fatalf("EnqueueProcessing: %v", err)
	}
	h.drain(t, ctx)

	got, _ := h.store.GetRecording(ctx, rec.ID)
	if got.Status != model.StatusCompleted {
		t.Fatalf("status = %q, want completed despite sub-step failures", got.Status)
	}

	presence, _ := h.store.ArtifactPresence(ctx, rec.ID)
	if presence.Summaries != 2 {
		t.Errorf("summaries = %d, want 2", presence.Summaries)
	}
	if presence.HasSentiment || presence.HasCallScore || presence.KeyMoments != 0 {
		t.Errorf("failed sub-steps must not persist artifacts: %+v", presence)
	}
	if n := h.notifier.completed.Load(); n != 1 {
		t.Errorf("completion notifications = %d, want 1", n)
	}
}

// highPriorityAnalyzer returns one high- and one medium-priority item.
type highPriorityAnalyzer struct{ analyze.StubAnalyzer }

func (highPriorityAnalyzer) ExtractActionItems(_ context.Context, req analyze.Request) ([]model.ActionItem, error) {
	return []model.ActionItem{
		{RecordingID: req.RecordingID, Title: "Send the revised contract today", Priority: model.PriorityHigh, Confidence: 0.9},
		{RecordingID: req.RecordingID, Title: "Share the meeting notes", Priority: model.PriorityMedium, Confidence: 0.7},
	}, nil
}

func TestPipeline_HighPriorityActionNotifiesWhenOptedIn(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &transcribe.StubProvider{}, highPriorityAnalyzer{})
	rec := h.newRecording(t, model.SourcePhoneCall)

	settings, err := h.store.TranscriptionSettings(ctx, rec.OwnerID)
	if err != nil {
		t.Fatalf("TranscriptionSettings: %v", err)
	}
	settings.NotifyOnHighPriorityAction = true
	if err := h.store.SaveTranscriptionSettings(ctx, settings); err != nil {
		t.Fatalf("SaveTranscriptionSettings: %v", err)
	}

	if err := h.orch.EnqueueProcessing(ctx, rec.ID); err != nil {
		t.Fatalf("EnqueueProcessing: %v", err)
	}
	h.drain(t, ctx)

	// Only the high-priority item notifies.
	if n := h.notifier.highPriority.Load(); n != 1 {
		t.Errorf("high-priority notifications = %d, want exactly 1", n)
	}
	items, _ := h.store.ListActionItems(ctx, rec.ID)
	if len(items) != 2 {
		t.Errorf("action items = %d, want 2", len(items))
	}
}

func TestPipeline_MarkFailedNotifiesOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &transcribe.StubProvider{}, analyze.StubAnalyzer{})
	rec := h.newRecording(t, model.SourcePhoneCall)

	cause := model.Transportf("stub", errors.New("gone"))
	h.orch.MarkFailed(ctx, rec.ID, cause)
	h.orch.MarkFailed(ctx, rec.ID, cause)

	got, _ := h.store.GetRecording(ctx, rec.ID)
	if got.Status != model.StatusFailed {
		t.Fatalf("status = %q, want failed", got.Status)
	}
	if got.ProcessingError == "" {
		t.Error("processing error should be recorded")
	}
	if n := h.notifier.failed.Load(); n != 1 {
		t.Errorf("failure notifications = %d, want exactly 1", n)
	}
}

func TestPipeline_ResubmitClearsArtifactsAndReruns(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &transcribe.StubProvider{}, analyze.StubAnalyzer{})
	rec := h.newRecording(t, model.SourcePhoneCall)

	if err := h.orch.EnqueueProcessing(ctx, rec.ID); err != nil {
		t.Fatalf("EnqueueProcessing: %v", err)
	}
	h.drain(t, ctx)

	// Force a failure state, then resubmit.
	if _, err := h.store.MarkFailed(ctx, rec.ID, "induced"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	if err := h.orch.Resubmit(ctx, rec.ID); err != nil {
		t.Fatalf("Resubmit: %v", err)
	}

	// Artifacts are gone until the rerun finishes.
	if _, err := h.store.GetTranscript(ctx, rec.ID); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("GetTranscript after resubmit = %v, want ErrNotFound", err)
	}

	h.drain(t, ctx)

	got, _ := h.store.GetRecording(ctx, rec.ID)
	if got.Status != model.StatusCompleted {
		t.Fatalf("status after rerun = %q, want completed", got.Status)
	}
	if got.ProcessingError != "" {
		t.Errorf("processing error = %q, want cleared", got.ProcessingError)
	}
	if _, err := h.store.GetTranscript(ctx, rec.ID); err != nil {
		t.Errorf("transcript missing after rerun: %v", err)
	}
}

func TestPipeline_ResubmitRequiresFailedStatus(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &transcribe.StubProvider{}, analyze.StubAnalyzer{})
	rec := h.newRecording(t, model.SourcePhoneCall)

	err := h.orch.Resubmit(ctx, rec.ID)
	if !model.IsPrecondition(err) {
		t.Fatalf("Resubmit on uploaded recording = %v, want precondition error", err)
	}
}

func TestPipeline_AnalyzeWithoutTranscriptIsContentError(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &transcribe.StubProvider{}, analyze.StubAnalyzer{})
	rec := h.newRecording(t, model.SourcePhoneCall)

	// Jump the recording to transcribed without writing a transcript.
	if _, err := h.store.CompareAndSwapStatus(ctx, rec.ID, model.StatusUploaded, model.StatusTranscribing); err != nil {
		t.Fatal(err)
	}
	if _, err := h.store.CompareAndSwapStatus(ctx, rec.ID, model.StatusTranscribing, model.StatusTranscribed); err != nil {
		t.Fatal(err)
	}

	err := h.orch.Analyze(ctx, rec.ID)
	if !model.IsContent(err) {
		t.Fatalf("Analyze without transcript = %v, want content-class", err)
	}
}
