package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/snarg/call-engine/internal/analyze"
	"github.com/snarg/call-engine/internal/audio"
	"github.com/snarg/call-engine/internal/metrics"
	"github.com/snarg/call-engine/internal/model"
	"github.com/snarg/call-engine/internal/notify"
	"github.com/snarg/call-engine/internal/queue"
	"github.com/snarg/call-engine/internal/store"
	"github.com/snarg/call-engine/internal/transcribe"
)

// EnqueueFunc submits a task to the processing queue. Returns false
// when the queue is full or stopped.
type EnqueueFunc func(queue.Task) bool

// Options configures the orchestrator.
type Options struct {
	Store     store.Store
	Audio     audio.Source
	Providers *transcribe.Registry
	Diarizer  transcribe.Diarizer
	Analyzer  analyze.Analyzer
	Notifier  notify.Notifier
	Log       zerolog.Logger

	// TranscribeTimeout bounds one provider call. It scales with the
	// recording duration: timeout = base + duration * PerAudioMinute.
	TranscribeTimeout time.Duration
	PerAudioMinute    time.Duration

	// SubStepTimeout bounds each analysis sub-step independently.
	SubStepTimeout time.Duration
}

// Orchestrator drives recordings through the processing pipeline. It is
// the sole writer of recording status; every transition is a
// compare-and-swap so duplicate task deliveries resolve as no-ops.
type Orchestrator struct {
	store     store.Store
	audio     audio.Source
	providers *transcribe.Registry
	diarizer  transcribe.Diarizer
	analyzer  analyze.Analyzer
	notifier  notify.Notifier
	log       zerolog.Logger

	transcribeTimeout time.Duration
	perAudioMinute    time.Duration
	subStepTimeout    time.Duration

	enqueue EnqueueFunc
}

// New creates an orchestrator. Call SetEnqueue once the queue exists.
func New(opts Options) *Orchestrator {
	if opts.TranscribeTimeout <= 0 {
		opts.TranscribeTimeout = 2 * time.Minute
	}
	if opts.PerAudioMinute <= 0 {
		opts.PerAudioMinute = 30 * time.Second
	}
	if opts.SubStepTimeout <= 0 {
		opts.SubStepTimeout = 30 * time.Second
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = &notify.LogNotifier{Log: opts.Log}
	}
	return &Orchestrator{
		store:             opts.Store,
		audio:             opts.Audio,
		providers:         opts.Providers,
		diarizer:          opts.Diarizer,
		analyzer:          opts.Analyzer,
		notifier:          notifier,
		log:               opts.Log,
		transcribeTimeout: opts.TranscribeTimeout,
		perAudioMinute:    opts.PerAudioMinute,
		subStepTimeout:    opts.SubStepTimeout,
	}
}

// SetEnqueue wires the orchestrator to the queue it feeds.
func (o *Orchestrator) SetEnqueue(fn EnqueueFunc) { o.enqueue = fn }

// Handle is the queue handler. Precondition errors are duplicate
// deliveries and resolve as silent no-ops, not failures.
func (o *Orchestrator) Handle(ctx context.Context, task queue.Task) error {
	var err error
	switch task.Kind {
	case queue.KindTranscribe:
		err = o.Transcribe(ctx, task.RecordingID)
	case queue.KindAnalyze:
		err = o.Analyze(ctx, task.RecordingID)
	default:
		return model.Contentf("orchestrator", fmt.Errorf("unknown task kind %q", task.Kind))
	}
	if model.IsPrecondition(err) {
		o.log.Debug().Err(err).
			Str("kind", string(task.Kind)).
			Str("recording_id", task.RecordingID.String()).
			Msg("duplicate delivery, skipping")
		return nil
	}
	return err
}

// OnExhausted is the queue's terminal-failure callback: it moves the
// recording to failed and notifies.
func (o *Orchestrator) OnExhausted(ctx context.Context, task queue.Task, cause error) {
	o.MarkFailed(ctx, task.RecordingID, cause)
}

// EnqueueProcessing validates that a recording is ready for processing
// and submits the transcribe task.
func (o *Orchestrator) EnqueueProcessing(ctx context.Context, id uuid.UUID) error {
	rec, err := o.store.GetRecording(ctx, id)
	if err != nil {
		return err
	}
	switch rec.Status {
	case model.StatusUploaded, model.StatusProcessing:
	default:
		return &model.PreconditionError{
			RecordingID: id.String(),
			Current:     rec.Status,
			Want:        []model.Status{model.StatusUploaded},
		}
	}
	if !o.enqueue(queue.Task{Kind: queue.KindTranscribe, RecordingID: id}) {
		return model.Transportf("queue", errors.New("processing queue full"))
	}
	return nil
}

// Transcribe runs the transcription stage: claim the recording, fetch
// its audio, call the provider, optionally diarize, persist the
// transcript, and hand off to analysis.
func (o *Orchestrator) Transcribe(ctx context.Context, id uuid.UUID) error {
	claimed, err := o.claimForTranscription(ctx, id)
	if err != nil {
		return err
	}
	rec := claimed

	if err := o.store.SetProcessingStarted(ctx, id, time.Now().UTC()); err != nil {
		return model.Transportf("store", err)
	}

	settings, err := o.store.TranscriptionSettings(ctx, rec.OwnerID)
	if err != nil {
		return model.Transportf("store", err)
	}

	provider, err := o.providers.Get(settings.PreferredProvider)
	if err != nil {
		return err
	}

	audioPath, cleanup, err := o.audio.Fetch(ctx, rec.AudioKey)
	if err != nil {
		return err
	}
	defer cleanup()

	opts := transcribe.Opts{
		Language:        settings.DefaultLanguage,
		DetectLanguage:  settings.AutoDetectLanguage,
		VocabularyHints: settings.CustomVocabulary,
		DiarizationHint: settings.EnableSpeakerDiarization,
	}

	timeout := o.transcribeTimeout
	if rec.DurationSecs > 0 {
		timeout += time.Duration(rec.DurationSecs/60.0) * o.perAudioMinute
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	metrics.ProviderCallsTotal.WithLabelValues(provider.Name()).Inc()
	resp, err := provider.Transcribe(callCtx, audioPath, opts)
	if err != nil {
		return err
	}
	if strings.TrimSpace(resp.Text) == "" {
		return model.Contentf(provider.Name(), errors.New("provider returned empty transcription"))
	}

	segments := resp.Segments
	if settings.EnableSpeakerDiarization && o.diarizer != nil && len(segments) > 0 {
		result, derr := o.diarizer.Identify(ctx, segments, rec.Participants)
		if derr == nil {
			segments = transcribe.MergeSpeakers(segments, result)
		}
	}

	tr := &model.Transcript{
		ID:           uuid.New(),
		RecordingID:  id,
		FullText:     resp.Text,
		Words:        resp.Words,
		Segments:     segments,
		Language:     resp.Language,
		Provider:     provider.Name(),
		Model:        provider.Model(),
		Confidence:   resp.Confidence,
		DurationSecs: resp.DurationSecs,
		CreatedAt:    time.Now().UTC(),
	}
	if err := o.store.CreateTranscript(ctx, tr); err != nil {
		// A transcript from an earlier delivery is fine: keep moving.
		if !errors.Is(err, store.ErrTranscriptExists) {
			return model.Transportf("store", err)
		}
	}

	if _, err := o.store.CompareAndSwapStatus(ctx, id, model.StatusTranscribing, model.StatusTranscribed); err != nil {
		return model.Transportf("store", err)
	}

	o.log.Info().
		Str("recording_id", id.String()).
		Str("provider", provider.Name()).
		Int("segments", len(segments)).
		Float64("duration_secs", resp.DurationSecs).
		Msg("transcription complete")

	if o.enqueue == nil || !o.enqueue(queue.Task{Kind: queue.KindAnalyze, RecordingID: id}) {
		// Queue full: analysis must still happen, run it inline.
		return o.Analyze(ctx, id)
	}
	return nil
}

// claimForTranscription moves uploaded (or legacy processing) to
// transcribing. A recording already in transcribing is an earlier
// attempt that did not finish (transport-error retry, crashed worker)
// and may be re-claimed; transcript creation is idempotent, so a rerun
// is safe. Anything else is a duplicate delivery.
func (o *Orchestrator) claimForTranscription(ctx context.Context, id uuid.UUID) (*model.Recording, error) {
	rec, err := o.store.GetRecording(ctx, id)
	if err != nil {
		return nil, err
	}
	from := rec.Status
	switch from {
	case model.StatusUploaded, model.StatusProcessing:
	case model.StatusTranscribing:
		return rec, nil
	default:
		return nil, &model.PreconditionError{
			RecordingID: id.String(),
			Current:     from,
			Want:        []model.Status{model.StatusUploaded, model.StatusProcessing},
		}
	}
	swapped, err := o.store.CompareAndSwapStatus(ctx, id, from, model.StatusTranscribing)
	if err != nil {
		return nil, model.Transportf("store", err)
	}
	if !swapped {
		return nil, &model.PreconditionError{
			RecordingID: id.String(),
			Current:     from,
			Want:        []model.Status{model.StatusUploaded, model.StatusProcessing},
		}
	}
	rec.Status = model.StatusTranscribing
	return rec, nil
}

// Analyze runs the best-effort analysis stage: each sub-step executes
// independently with its own timeout, failures are absorbed, and the
// recording reaches completed as long as the transcript exists.
func (o *Orchestrator) Analyze(ctx context.Context, id uuid.UUID) error {
	if err := o.claimForAnalysis(ctx, id); err != nil {
		return err
	}

	rec, err := o.store.GetRecording(ctx, id)
	if err != nil {
		return err
	}
	tr, err := o.store.GetTranscript(ctx, id)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.Contentf("analyze", errors.New("no transcript to analyze"))
		}
		return model.Transportf("store", err)
	}
	settings, err := o.store.TranscriptionSettings(ctx, rec.OwnerID)
	if err != nil {
		return model.Transportf("store", err)
	}

	req := analyze.Request{
		RecordingID:  id,
		SourceType:   rec.SourceType,
		Transcript:   tr.FullText,
		Segments:     tr.Segments,
		Participants: rec.Participants,
		DurationSecs: tr.DurationSecs,
	}

	outcome := o.runSubSteps(ctx, rec, settings, req)
	for _, step := range outcome.FailedSteps() {
		metrics.SubStepFailuresTotal.WithLabelValues(step).Inc()
	}
	if failed := outcome.FailedSteps(); len(failed) > 0 {
		o.log.Warn().
			Str("recording_id", id.String()).
			Strs("failed_steps", failed).
			Msg("analysis sub-steps failed, completing anyway")
	}

	swapped, err := o.store.CompareAndSwapStatus(ctx, id, model.StatusAnalyzing, model.StatusCompleted)
	if err != nil {
		return model.Transportf("store", err)
	}
	if !swapped {
		return nil
	}
	if err := o.store.SetProcessingCompleted(ctx, id, time.Now().UTC()); err != nil {
		return model.Transportf("store", err)
	}
	metrics.RecordingsCompletedTotal.Inc()

	rec.Status = model.StatusCompleted
	if settings.NotifyOnCompletion {
		if nerr := o.notifier.ProcessingComplete(ctx, rec); nerr != nil {
			o.log.Warn().Err(nerr).Str("recording_id", id.String()).Msg("completion notification failed")
		}
	}
	o.log.Info().Str("recording_id", id.String()).Msg("processing complete")
	return nil
}

// claimForAnalysis moves transcribed to analyzing. A recording already
// in analyzing is a crashed earlier run and may be re-claimed; anything
// else is a duplicate delivery.
func (o *Orchestrator) claimForAnalysis(ctx context.Context, id uuid.UUID) error {
	swapped, err := o.store.CompareAndSwapStatus(ctx, id, model.StatusTranscribed, model.StatusAnalyzing)
	if err != nil {
		return model.Transportf("store", err)
	}
	if swapped {
		return nil
	}
	rec, err := o.store.GetRecording(ctx, id)
	if err != nil {
		return err
	}
	if rec.Status == model.StatusAnalyzing {
		return nil
	}
	return &model.PreconditionError{
		RecordingID: id.String(),
		Current:     rec.Status,
		Want:        []model.Status{model.StatusTranscribed},
	}
}

type subStep struct {
	name string
	skip bool
	run  func(ctx context.Context) error
}

// runSubSteps executes the analysis sub-steps concurrently, each under
// its own timeout.
func (o *Orchestrator) runSubSteps(ctx context.Context, rec *model.Recording, settings *model.TranscriptionSettings, req analyze.Request) *StageOutcome {
	steps := []subStep{
		{
			name: "summary",
			skip: !settings.AutoGenerateSummary,
			run: func(ctx context.Context) error {
				for _, typ := range []model.SummaryType{model.SummaryBrief, model.SummaryDetailed} {
					s, err := o.analyzer.Summarize(ctx, req, typ)
					if err != nil {
						return err
					}
					if err := o.store.SaveSummary(ctx, s); err != nil {
						return err
					}
				}
				return nil
			},
		},
		{
			name: "action_items",
			skip: !settings.AutoExtractActionItems,
			run: func(ctx context.Context) error {
				items, err := o.analyzer.ExtractActionItems(ctx, req)
				if err != nil {
					return err
				}
				if err := o.store.SaveActionItems(ctx, rec.ID, items); err != nil {
					return err
				}
				if settings.NotifyOnHighPriorityAction {
					for i := range items {
						if items[i].Priority != model.PriorityHigh {
							continue
						}
						if nerr := o.notifier.HighPriorityAction(ctx, rec, &items[i]); nerr != nil {
							o.log.Warn().Err(nerr).
								Str("recording_id", rec.ID.String()).
								Str("title", items[i].Title).
								Msg("high-priority action notification failed")
						}
					}
				}
				return nil
			},
		},
		{
			name: "sentiment",
			skip: !settings.AutoAnalyzeSentiment,
			run: func(ctx context.Context) error {
				s, err := o.analyzer.AnalyzeSentiment(ctx, req)
				if err != nil {
					return err
				}
				return o.store.SaveSentiment(ctx, s)
			},
		},
		{
			name: "key_moments",
			run: func(ctx context.Context) error {
				moments, err := o.analyzer.DetectKeyMoments(ctx, req)
				if err != nil {
					return err
				}
				return o.store.SaveKeyMoments(ctx, rec.ID, moments)
			},
		},
		{
			name: "call_score",
			skip: !settings.AutoScoreCalls || !rec.SourceType.Scorable(),
			run: func(ctx context.Context) error {
				cs, err := o.analyzer.ScoreCall(ctx, req)
				if err != nil {
					return err
				}
				return o.store.SaveCallScore(ctx, cs)
			},
		},
		{
			name: "categories",
			run: func(ctx context.Context) error {
				assignments, err := o.analyzer.Categorize(ctx, req)
				if err != nil {
					return err
				}
				return o.store.SaveCategoryAssignments(ctx, rec.ID, assignments)
			},
		},
	}

	outcome := &StageOutcome{
		RecordingID: rec.ID,
		Steps:       make([]SubStepResult, len(steps)),
	}

	var wg sync.WaitGroup
	for i, step := range steps {
		if step.skip {
			outcome.Steps[i] = SubStepResult{Step: step.name, Skipped: true}
			continue
		}
		wg.Add(1)
		go func(i int, step subStep) {
			defer wg.Done()
			stepCtx, cancel := context.WithTimeout(ctx, o.subStepTimeout)
			defer cancel()

			start := time.Now()
			err := step.run(stepCtx)
			res := SubStepResult{
				Step:     step.name,
				OK:       err == nil,
				Duration: time.Since(start),
			}
			if err != nil {
				res.Error = err.Error()
			}
			outcome.Steps[i] = res
		}(i, step)
	}
	wg.Wait()
	return outcome
}

// Resubmit restarts processing for a failed recording: derived
// artifacts are cleared so the rerun regenerates them, and the
// recording returns to the head of the pipeline.
func (o *Orchestrator) Resubmit(ctx context.Context, id uuid.UUID) error {
	rec, err := o.store.GetRecording(ctx, id)
	if err != nil {
		return err
	}
	if rec.Status != model.StatusFailed {
		return &model.PreconditionError{
			RecordingID: id.String(),
			Current:     rec.Status,
			Want:        []model.Status{model.StatusFailed},
		}
	}

	if err := o.store.DeleteDerivedArtifacts(ctx, id); err != nil {
		return model.Transportf("store", err)
	}
	swapped, err := o.store.CompareAndSwapStatus(ctx, id, model.StatusFailed, model.StatusUploaded)
	if err != nil {
		return model.Transportf("store", err)
	}
	if !swapped {
		rec, gerr := o.store.GetRecording(ctx, id)
		current := model.Status("")
		if gerr == nil {
			current = rec.Status
		}
		return &model.PreconditionError{
			RecordingID: id.String(),
			Current:     current,
			Want:        []model.Status{model.StatusFailed},
		}
	}

	o.log.Info().Str("recording_id", id.String()).Msg("recording resubmitted")
	return o.EnqueueProcessing(ctx, id)
}

// MarkFailed moves a recording to failed, records the cause, and
// notifies. Already-terminal recordings are left alone.
func (o *Orchestrator) MarkFailed(ctx context.Context, id uuid.UUID, cause error) {
	msg := "processing failed"
	if cause != nil {
		msg = cause.Error()
	}
	changed, err := o.store.MarkFailed(ctx, id, msg)
	if err != nil {
		o.log.Error().Err(err).Str("recording_id", id.String()).Msg("failed to mark recording failed")
		return
	}
	if !changed {
		return
	}
	metrics.RecordingsFailedTotal.Inc()

	rec, err := o.store.GetRecording(ctx, id)
	if err != nil {
		return
	}
	if nerr := o.notifier.ProcessingFailed(ctx, rec); nerr != nil {
		o.log.Warn().Err(nerr).Str("recording_id", id.String()).Msg("failure notification failed")
	}
	o.log.Warn().
		Str("recording_id", id.String()).
		Str("error", msg).
		Msg("recording failed")
}
