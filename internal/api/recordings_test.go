package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/snarg/call-engine/internal/config"
	"github.com/snarg/call-engine/internal/model"
	"github.com/snarg/call-engine/internal/queue"
	"github.com/snarg/call-engine/internal/store"
)

type fakePipeline struct {
	processed   []uuid.UUID
	resubmitted []uuid.UUID
	err         error
}

func (p *fakePipeline) EnqueueProcessing(_ context.Context, id uuid.UUID) error {
	if p.err != nil {
		return p.err
	}
	p.processed = append(p.processed, id)
	return nil
}

func (p *fakePipeline) Resubmit(_ context.Context, id uuid.UUID) error {
	if p.err != nil {
		return p.err
	}
	p.resubmitted = append(p.resubmitted, id)
	return nil
}

func newTestServer(t *testing.T, authToken string) (*Server, *store.Memory, *fakePipeline) {
	t.Helper()
	st := store.NewMemory()
	fp := &fakePipeline{}
	srv := NewServer(
		&config.Config{HTTPAddr: ":0", AuthToken: authToken},
		Deps{
			Store:      st,
			Pipeline:   fp,
			QueueStats: func() queue.Stats { return queue.Stats{} },
			Version:    "test",
			StartTime:  time.Now(),
		},
		zerolog.Nop(),
	)
	return srv, st, fp
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func seedRecording(t *testing.T, st *store.Memory, status model.Status) *model.Recording {
	t.Helper()
	rec := &model.Recording{
		OwnerID:    uuid.New(),
		SourceType: model.SourcePhoneCall,
		Status:     status,
		AudioKey:   "calls/seed.wav",
	}
	if err := st.CreateRecording(context.Background(), rec); err != nil {
		t.Fatalf("CreateRecording: %v", err)
	}
	return rec
}

func TestCreateRecording(t *testing.T) {
	srv, st, fp := newTestServer(t, "")
	owner := uuid.New()

	rr := doJSON(t, srv.Handler(), http.MethodPost, "/api/v1/recordings", map[string]any{
		"owner_id":    owner.String(),
		"title":       "Demo call",
		"source_type": "phone_call",
		"audio_key":   "calls/demo.wav",
		"process":     true,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rr.Code, rr.Body.String())
	}

	var rec model.Recording
	if err := json.Unmarshal(rr.Body.Bytes(), &rec); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if rec.Status != model.StatusUploaded {
		t.Errorf("status = %q, want uploaded", rec.Status)
	}

	stored, err := st.GetRecording(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("GetRecording: %v", err)
	}
	if stored.Title != "Demo call" {
		t.Errorf("title = %q", stored.Title)
	}
	if len(fp.processed) != 1 || fp.processed[0] != rec.ID {
		t.Errorf("pipeline processed = %v, want [%s]", fp.processed, rec.ID)
	}
}

func TestCreateRecording_Validation(t *testing.T) {
	srv, _, _ := newTestServer(t, "")

	tests := []struct {
		name string
		body map[string]any
	}{
		{"bad owner", map[string]any{"owner_id": "nope", "audio_key": "a.wav"}},
		{"missing audio key", map[string]any{"owner_id": uuid.NewString()}},
		{"bad source type", map[string]any{"owner_id": uuid.NewString(), "audio_key": "a.wav", "source_type": "hologram"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := doJSON(t, srv.Handler(), http.MethodPost, "/api/v1/recordings", tt.body)
			if rr.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rr.Code)
			}
		})
	}
}

func TestGetRecording_NotFound(t *testing.T) {
	srv, _, _ := newTestServer(t, "")
	rr := doJSON(t, srv.Handler(), http.MethodGet, "/api/v1/recordings/"+uuid.NewString(), nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}
}

func TestProcessEndpoint(t *testing.T) {
	srv, st, fp := newTestServer(t, "")
	rec := seedRecording(t, st, model.StatusUploaded)

	rr := doJSON(t, srv.Handler(), http.MethodPost, "/api/v1/recordings/"+rec.ID.String()+"/process", nil)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rr.Code, rr.Body.String())
	}
	if len(fp.processed) != 1 {
		t.Errorf("pipeline processed = %v", fp.processed)
	}
}

func TestResubmit_ConflictOnBadStatus(t *testing.T) {
	srv, st, fp := newTestServer(t, "")
	rec := seedRecording(t, st, model.StatusUploaded)
	fp.err = &model.PreconditionError{
		RecordingID: rec.ID.String(),
		Current:     model.StatusUploaded,
		Want:        []model.Status{model.StatusFailed},
	}

	rr := doJSON(t, srv.Handler(), http.MethodPost, "/api/v1/recordings/"+rec.ID.String()+"/resubmit", nil)
	if rr.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rr.Code)
	}
}

func TestTranscriptEdit(t *testing.T) {
	srv, st, _ := newTestServer(t, "")
	rec := seedRecording(t, st, model.StatusCompleted)
	if err := st.CreateTranscript(context.Background(), &model.Transcript{
		RecordingID: rec.ID,
		FullText:    "original text",
		Provider:    "whisper",
	}); err != nil {
		t.Fatalf("CreateTranscript: %v", err)
	}

	editor := uuid.New()
	rr := doJSON(t, srv.Handler(), http.MethodPatch, "/api/v1/recordings/"+rec.ID.String()+"/transcript", map[string]any{
		"text":      "corrected text",
		"editor_id": editor.String(),
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}

	var tr model.Transcript
	if err := json.Unmarshal(rr.Body.Bytes(), &tr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if tr.FullText != "corrected text" || !tr.WasEdited {
		t.Errorf("transcript = text %q, was_edited %v", tr.FullText, tr.WasEdited)
	}
	if tr.EditedBy == nil || *tr.EditedBy != editor {
		t.Errorf("edited_by = %v, want %s", tr.EditedBy, editor)
	}

	// Empty text is rejected.
	rr = doJSON(t, srv.Handler(), http.MethodPatch, "/api/v1/recordings/"+rec.ID.String()+"/transcript", map[string]any{
		"text":      "",
		"editor_id": editor.String(),
	})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("empty text status = %d, want 400", rr.Code)
	}
}

func TestConfirmActionItem(t *testing.T) {
	ctx := context.Background()
	srv, st, _ := newTestServer(t, "")
	rec := seedRecording(t, st, model.StatusCompleted)

	if err := st.SaveActionItems(ctx, rec.ID, []model.ActionItem{
		{Title: "Send proposal", Priority: model.PriorityHigh},
	}); err != nil {
		t.Fatalf("SaveActionItems: %v", err)
	}
	items, _ := st.ListActionItems(ctx, rec.ID)
	if len(items) != 1 {
		t.Fatalf("seeded items = %d", len(items))
	}

	path := "/api/v1/recordings/" + rec.ID.String() + "/action-items/" + items[0].ID.String() + "/confirm"
	rr := doJSON(t, srv.Handler(), http.MethodPost, path, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}

	items, _ = st.ListActionItems(ctx, rec.ID)
	if !items[0].Confirmed {
		t.Error("item should be confirmed")
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	srv, _, _ := newTestServer(t, "")
	owner := uuid.New()

	// Defaults come back before anything is stored.
	rr := doJSON(t, srv.Handler(), http.MethodGet, "/api/v1/settings/"+owner.String(), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("GET defaults status = %d", rr.Code)
	}
	var s model.TranscriptionSettings
	if err := json.Unmarshal(rr.Body.Bytes(), &s); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if s.PreferredProvider != "whisper" {
		t.Errorf("default provider = %q, want whisper", s.PreferredProvider)
	}

	s.PreferredProvider = "elevenlabs"
	s.AutoScoreCalls = false
	rr = doJSON(t, srv.Handler(), http.MethodPut, "/api/v1/settings/"+owner.String(), s)
	if rr.Code != http.StatusOK {
		t.Fatalf("PUT status = %d: %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, srv.Handler(), http.MethodGet, "/api/v1/settings/"+owner.String(), nil)
	var got model.TranscriptionSettings
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.PreferredProvider != "elevenlabs" || got.AutoScoreCalls {
		t.Errorf("settings = %+v, want stored values", got)
	}
}

func TestArtifactsPresence(t *testing.T) {
	ctx := context.Background()
	srv, st, _ := newTestServer(t, "")
	rec := seedRecording(t, st, model.StatusCompleted)

	if err := st.SaveSummary(ctx, &model.Summary{RecordingID: rec.ID, Type: model.SummaryBrief, Text: "s"}); err != nil {
		t.Fatal(err)
	}

	rr := doJSON(t, srv.Handler(), http.MethodGet, "/api/v1/recordings/"+rec.ID.String()+"/artifacts", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var p store.ArtifactPresence
	if err := json.Unmarshal(rr.Body.Bytes(), &p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.HasTranscript || p.Summaries != 1 {
		t.Errorf("presence = %+v", p)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t, "secret")

	// Health needs no auth.
	rr := doJSON(t, srv.Handler(), http.MethodGet, "/api/v1/health", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var resp HealthResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "healthy" {
		t.Errorf("status = %q, want healthy", resp.Status)
	}
	if resp.Checks["database"] != "in_memory" {
		t.Errorf("database check = %q", resp.Checks["database"])
	}
}
