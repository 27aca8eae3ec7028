package store

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/snarg/call-engine/internal/model"
)

func seedRecording(t *testing.T, m *Memory, status model.Status) *model.Recording {
	t.Helper()
	rec := &model.Recording{
		OwnerID:    uuid.New(),
		SourceType: model.SourcePhoneCall,
		Status:     status,
		AudioKey:   "calls/x.wav",
	}
	if err := m.CreateRecording(context.Background(), rec); err != nil {
		t.Fatalf("CreateRecording: %v", err)
	}
	return rec
}

func TestMemory_CompareAndSwapStatus(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	rec := seedRecording(t, m, model.StatusUploaded)

	swapped, err := m.CompareAndSwapStatus(ctx, rec.ID, model.StatusUploaded, model.StatusTranscribing)
	if err != nil || !swapped {
		t.Fatalf("CAS = %v, %v; want swap", swapped, err)
	}

	// Second swap from the old status must lose.
	swapped, err = m.CompareAndSwapStatus(ctx, rec.ID, model.StatusUploaded, model.StatusTranscribing)
	if err != nil || swapped {
		t.Fatalf("second CAS = %v, %v; want no swap, no error", swapped, err)
	}

	got, _ := m.GetRecording(ctx, rec.ID)
	if got.Status != model.StatusTranscribing {
		t.Errorf("status = %q, want transcribing", got.Status)
	}
}

func TestMemory_MarkFailed(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	rec := seedRecording(t, m, model.StatusTranscribing)

	changed, err := m.MarkFailed(ctx, rec.ID, "provider unreachable")
	if err != nil || !changed {
		t.Fatalf("MarkFailed = %v, %v", changed, err)
	}

	// Terminal recordings stay put.
	changed, err = m.MarkFailed(ctx, rec.ID, "again")
	if err != nil || changed {
		t.Fatalf("MarkFailed on failed = %v, %v; want no change", changed, err)
	}

	got, _ := m.GetRecording(ctx, rec.ID)
	if got.ProcessingError != "provider unreachable" {
		t.Errorf("processing error = %q", got.ProcessingError)
	}
}

func TestMemory_TranscriptAtMostOne(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	rec := seedRecording(t, m, model.StatusTranscribing)

	first := &model.Transcript{RecordingID: rec.ID, FullText: "one", Provider: "whisper"}
	if err := m.CreateTranscript(ctx, first); err != nil {
		t.Fatalf("CreateTranscript: %v", err)
	}
	second := &model.Transcript{RecordingID: rec.ID, FullText: "two", Provider: "whisper"}
	if err := m.CreateTranscript(ctx, second); !errors.Is(err, ErrTranscriptExists) {
		t.Fatalf("second CreateTranscript = %v, want ErrTranscriptExists", err)
	}

	got, err := m.GetTranscript(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetTranscript: %v", err)
	}
	if got.FullText != "one" {
		t.Errorf("transcript text = %q, want the first write", got.FullText)
	}
}

func TestMemory_SaveActionItems_PreservesConfirmed(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	rec := seedRecording(t, m, model.StatusCompleted)

	if err := m.SaveActionItems(ctx, rec.ID, []model.ActionItem{
		{Title: "keep me"},
		{Title: "replace me"},
	}); err != nil {
		t.Fatal(err)
	}
	items, _ := m.ListActionItems(ctx, rec.ID)
	if err := m.ConfirmActionItem(ctx, rec.ID, items[0].ID); err != nil {
		t.Fatalf("ConfirmActionItem: %v", err)
	}

	// Regeneration drops unconfirmed items but keeps confirmed ones.
	if err := m.SaveActionItems(ctx, rec.ID, []model.ActionItem{{Title: "fresh"}}); err != nil {
		t.Fatal(err)
	}
	items, _ = m.ListActionItems(ctx, rec.ID)
	if len(items) != 2 {
		t.Fatalf("items = %d, want confirmed + fresh", len(items))
	}

	var haveConfirmed, haveFresh bool
	for _, it := range items {
		if it.Title == "keep me" && it.Confirmed {
			haveConfirmed = true
		}
		if it.Title == "fresh" {
			haveFresh = true
		}
	}
	if !haveConfirmed || !haveFresh {
		t.Errorf("items = %+v", items)
	}
}

func TestMemory_SaveKeyMoments_PreservesUserAdded(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	rec := seedRecording(t, m, model.StatusCompleted)

	if err := m.SaveKeyMoments(ctx, rec.ID, []model.KeyMoment{
		{Type: model.MomentPricing, AIDetected: true},
	}); err != nil {
		t.Fatal(err)
	}
	// User-added moment bypasses the pipeline.
	manual := model.KeyMoment{ID: uuid.New(), Type: model.MomentHighlight, AIDetected: false}
	if err := m.SaveKeyMoments(ctx, rec.ID, []model.KeyMoment{manual}); err != nil {
		t.Fatal(err)
	}

	// Regeneration clears unconfirmed AI moments, keeps user ones.
	if err := m.SaveKeyMoments(ctx, rec.ID, []model.KeyMoment{
		{Type: model.MomentObjection, AIDetected: true},
	}); err != nil {
		t.Fatal(err)
	}

	moments, _ := m.ListKeyMoments(ctx, rec.ID)
	types := map[model.KeyMomentType]bool{}
	for _, km := range moments {
		types[km.Type] = true
	}
	if types[model.MomentPricing] {
		t.Error("unconfirmed AI moment should be replaced")
	}
	if !types[model.MomentHighlight] || !types[model.MomentObjection] {
		t.Errorf("moments = %+v", moments)
	}
}

func TestMemory_DeleteDerivedArtifacts(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	rec := seedRecording(t, m, model.StatusCompleted)

	if err := m.CreateTranscript(ctx, &model.Transcript{RecordingID: rec.ID, FullText: "t", Provider: "whisper"}); err != nil {
		t.Fatal(err)
	}
	if err := m.SaveSummary(ctx, &model.Summary{RecordingID: rec.ID, Type: model.SummaryBrief, Text: "s"}); err != nil {
		t.Fatal(err)
	}
	if err := m.SaveSentiment(ctx, &model.SentimentAnalysis{RecordingID: rec.ID, Overall: model.SentimentNeutral}); err != nil {
		t.Fatal(err)
	}

	if err := m.DeleteDerivedArtifacts(ctx, rec.ID); err != nil {
		t.Fatalf("DeleteDerivedArtifacts: %v", err)
	}

	p, err := m.ArtifactPresence(ctx, rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if p.HasTranscript || p.Summaries != 0 || p.HasSentiment {
		t.Errorf("presence after delete = %+v, want empty", p)
	}

	// The recording itself survives.
	if _, err := m.GetRecording(ctx, rec.ID); err != nil {
		t.Errorf("recording should survive artifact deletion: %v", err)
	}
}

func TestMemory_SettingsDefaults(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	owner := uuid.New()

	s, err := m.TranscriptionSettings(ctx, owner)
	if err != nil {
		t.Fatalf("TranscriptionSettings: %v", err)
	}
	if s.PreferredProvider != "whisper" || !s.AutoGenerateSummary {
		t.Errorf("defaults = %+v", s)
	}

	s.PreferredProvider = "elevenlabs"
	if err := m.SaveTranscriptionSettings(ctx, s); err != nil {
		t.Fatal(err)
	}
	got, _ := m.TranscriptionSettings(ctx, owner)
	if got.PreferredProvider != "elevenlabs" {
		t.Errorf("provider = %q after save", got.PreferredProvider)
	}
}

func TestMemory_GetRecordingNotFound(t *testing.T) {
	m := NewMemory()
	if _, err := m.GetRecording(context.Background(), uuid.New()); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
