package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/snarg/call-engine/internal/model"
)

// Memory is an in-memory Store for tests and dev runs. It honors the
// same compare-and-swap and at-most-one-transcript semantics as the
// Postgres implementation.
type Memory struct {
	mu          sync.Mutex
	recordings  map[uuid.UUID]*model.Recording
	transcripts map[uuid.UUID]*model.Transcript // keyed by recording id
	summaries   map[uuid.UUID][]model.Summary
	actionItems map[uuid.UUID][]model.ActionItem
	sentiments  map[uuid.UUID]*model.SentimentAnalysis
	keyMoments  map[uuid.UUID][]model.KeyMoment
	callScores  map[uuid.UUID]*model.CallScore
	categories  map[uuid.UUID][]model.CategoryAssignment
	settings    map[uuid.UUID]*model.TranscriptionSettings
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		recordings:  make(map[uuid.UUID]*model.Recording),
		transcripts: make(map[uuid.UUID]*model.Transcript),
		summaries:   make(map[uuid.UUID][]model.Summary),
		actionItems: make(map[uuid.UUID][]model.ActionItem),
		sentiments:  make(map[uuid.UUID]*model.SentimentAnalysis),
		keyMoments:  make(map[uuid.UUID][]model.KeyMoment),
		callScores:  make(map[uuid.UUID]*model.CallScore),
		categories:  make(map[uuid.UUID][]model.CategoryAssignment),
		settings:    make(map[uuid.UUID]*model.TranscriptionSettings),
	}
}

func (m *Memory) CreateRecording(_ context.Context, rec *model.Recording) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = now
	}
	cp := *rec
	m.recordings[rec.ID] = &cp
	return nil
}

func (m *Memory) GetRecording(_ context.Context, id uuid.UUID) (*model.Recording, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recordings[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *Memory) ListRecordingsByOwner(_ context.Context, ownerID uuid.UUID, limit, offset int) ([]model.Recording, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := []model.Recording{}
	for _, rec := range m.recordings {
		if rec.OwnerID == ownerID {
			result = append(result, *rec)
		}
	}
	return result, nil
}

func (m *Memory) CompareAndSwapStatus(_ context.Context, id uuid.UUID, from, to model.Status) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recordings[id]
	if !ok || rec.Status != from {
		return false, nil
	}
	rec.Status = to
	rec.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (m *Memory) MarkFailed(_ context.Context, id uuid.UUID, procErr string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recordings[id]
	if !ok || rec.Status.Terminal() {
		return false, nil
	}
	rec.Status = model.StatusFailed
	rec.ProcessingError = procErr
	rec.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (m *Memory) SetProcessingStarted(_ context.Context, id uuid.UUID, t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recordings[id]
	if !ok {
		return model.ErrNotFound
	}
	rec.ProcessingStartedAt = &t
	rec.ProcessingError = ""
	return nil
}

func (m *Memory) SetProcessingCompleted(_ context.Context, id uuid.UUID, t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recordings[id]
	if !ok {
		return model.ErrNotFound
	}
	rec.ProcessingCompletedAt = &t
	return nil
}

func (m *Memory) CreateTranscript(_ context.Context, tr *model.Transcript) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.transcripts[tr.RecordingID]; exists {
		return ErrTranscriptExists
	}
	if tr.ID == uuid.Nil {
		tr.ID = uuid.New()
	}
	tr.CreatedAt = time.Now().UTC()
	cp := *tr
	m.transcripts[tr.RecordingID] = &cp
	return nil
}

func (m *Memory) GetTranscript(_ context.Context, recordingID uuid.UUID) (*model.Transcript, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tr, ok := m.transcripts[recordingID]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *tr
	return &cp, nil
}

func (m *Memory) UpdateTranscriptText(_ context.Context, recordingID uuid.UUID, text string, editor uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tr, ok := m.transcripts[recordingID]
	if !ok {
		return model.ErrNotFound
	}
	now := time.Now().UTC()
	tr.FullText = text
	tr.WasEdited = true
	tr.EditedBy = &editor
	tr.EditedAt = &now
	return nil
}

func (m *Memory) SaveSummary(_ context.Context, s *model.Summary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	s.CreatedAt = time.Now().UTC()
	existing := m.summaries[s.RecordingID]
	for i := range existing {
		if existing[i].Type == s.Type {
			existing[i] = *s
			return nil
		}
	}
	m.summaries[s.RecordingID] = append(existing, *s)
	return nil
}

func (m *Memory) ListSummaries(_ context.Context, recordingID uuid.UUID) ([]model.Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Summary{}, m.summaries[recordingID]...), nil
}

func (m *Memory) SaveActionItems(_ context.Context, recordingID uuid.UUID, items []model.ActionItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := []model.ActionItem{}
	for _, it := range m.actionItems[recordingID] {
		if it.Confirmed {
			kept = append(kept, it)
		}
	}
	now := time.Now().UTC()
	for i := range items {
		it := items[i]
		if it.ID == uuid.Nil {
			it.ID = uuid.New()
		}
		it.RecordingID = recordingID
		it.CreatedAt = now
		kept = append(kept, it)
	}
	m.actionItems[recordingID] = kept
	return nil
}

func (m *Memory) ListActionItems(_ context.Context, recordingID uuid.UUID) ([]model.ActionItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.ActionItem{}, m.actionItems[recordingID]...), nil
}

func (m *Memory) ConfirmActionItem(_ context.Context, recordingID, itemID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := m.actionItems[recordingID]
	for i := range items {
		if items[i].ID == itemID {
			items[i].Confirmed = true
			return nil
		}
	}
	return model.ErrNotFound
}

func (m *Memory) SaveSentiment(_ context.Context, s *model.SentimentAnalysis) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	s.CreatedAt = time.Now().UTC()
	cp := *s
	m.sentiments[s.RecordingID] = &cp
	return nil
}

func (m *Memory) GetSentiment(_ context.Context, recordingID uuid.UUID) (*model.SentimentAnalysis, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sentiments[recordingID]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *Memory) SaveKeyMoments(_ context.Context, recordingID uuid.UUID, moments []model.KeyMoment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := []model.KeyMoment{}
	for _, km := range m.keyMoments[recordingID] {
		if !km.AIDetected || km.Confirmed {
			kept = append(kept, km)
		}
	}
	now := time.Now().UTC()
	for i := range moments {
		km := moments[i]
		if km.ID == uuid.Nil {
			km.ID = uuid.New()
		}
		km.RecordingID = recordingID
		km.CreatedAt = now
		kept = append(kept, km)
	}
	m.keyMoments[recordingID] = kept
	return nil
}

func (m *Memory) ListKeyMoments(_ context.Context, recordingID uuid.UUID) ([]model.KeyMoment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.KeyMoment{}, m.keyMoments[recordingID]...), nil
}

func (m *Memory) ConfirmKeyMoment(_ context.Context, recordingID, momentID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	moments := m.keyMoments[recordingID]
	for i := range moments {
		if moments[i].ID == momentID {
			moments[i].Confirmed = true
			return nil
		}
	}
	return model.ErrNotFound
}

func (m *Memory) SaveCallScore(_ context.Context, cs *model.CallScore) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cs.ID == uuid.Nil {
		cs.ID = uuid.New()
	}
	cs.CreatedAt = time.Now().UTC()
	cp := *cs
	m.callScores[cs.RecordingID] = &cp
	return nil
}

func (m *Memory) GetCallScore(_ context.Context, recordingID uuid.UUID) (*model.CallScore, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cs, ok := m.callScores[recordingID]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *cs
	return &cp, nil
}

func (m *Memory) SaveCategoryAssignments(_ context.Context, recordingID uuid.UUID, assignments []model.CategoryAssignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := []model.CategoryAssignment{}
	for _, a := range m.categories[recordingID] {
		if !a.IsAutoClassified {
			kept = append(kept, a)
		}
	}
	now := time.Now().UTC()
	for i := range assignments {
		a := assignments[i]
		a.RecordingID = recordingID
		a.CreatedAt = now
		kept = append(kept, a)
	}
	m.categories[recordingID] = kept
	return nil
}

func (m *Memory) ListCategoryAssignments(_ context.Context, recordingID uuid.UUID) ([]model.CategoryAssignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.CategoryAssignment{}, m.categories[recordingID]...), nil
}

func (m *Memory) DeleteDerivedArtifacts(_ context.Context, recordingID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.transcripts, recordingID)
	delete(m.summaries, recordingID)
	delete(m.actionItems, recordingID)
	delete(m.sentiments, recordingID)
	delete(m.keyMoments, recordingID)
	delete(m.callScores, recordingID)
	delete(m.categories, recordingID)
	return nil
}

func (m *Memory) ArtifactPresence(_ context.Context, recordingID uuid.UUID) (*ArtifactPresence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, hasTr := m.transcripts[recordingID]
	_, hasSent := m.sentiments[recordingID]
	_, hasScore := m.callScores[recordingID]
	return &ArtifactPresence{
		HasTranscript: hasTr,
		Summaries:     len(m.summaries[recordingID]),
		ActionItems:   len(m.actionItems[recordingID]),
		HasSentiment:  hasSent,
		KeyMoments:    len(m.keyMoments[recordingID]),
		HasCallScore:  hasScore,
		Categories:    len(m.categories[recordingID]),
	}, nil
}

func (m *Memory) TranscriptionSettings(_ context.Context, ownerID uuid.UUID) (*model.TranscriptionSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.settings[ownerID]
	if !ok {
		return model.DefaultTranscriptionSettings(ownerID), nil
	}
	cp := *s
	return &cp, nil
}

func (m *Memory) SaveTranscriptionSettings(_ context.Context, s *model.TranscriptionSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.settings[s.OwnerID] = &cp
	return nil
}
