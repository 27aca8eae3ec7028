package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/snarg/call-engine/internal/model"
	"github.com/snarg/call-engine/internal/store"
)

// Pipeline is the slice of the orchestrator the API needs.
type Pipeline interface {
	EnqueueProcessing(ctx context.Context, id uuid.UUID) error
	Resubmit(ctx context.Context, id uuid.UUID) error
}

// RecordingsHandler serves the recording and artifact endpoints.
type RecordingsHandler struct {
	store    store.Store
	pipeline Pipeline
	log      zerolog.Logger
}

func NewRecordingsHandler(st store.Store, p Pipeline, log zerolog.Logger) *RecordingsHandler {
	return &RecordingsHandler{store: st, pipeline: p, log: log}
}

// writeDomainError maps domain errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		WriteError(w, http.StatusNotFound, "not found")
	case model.IsPrecondition(err):
		WriteErrorDetail(w, http.StatusConflict, "invalid recording status", err.Error())
	case model.IsContent(err):
		WriteErrorDetail(w, http.StatusUnprocessableEntity, "invalid content", err.Error())
	default:
		WriteError(w, http.StatusInternalServerError, "internal error")
	}
}

type createRecordingRequest struct {
	OwnerID      string   `json:"owner_id"`
	Title        string   `json:"title"`
	SourceType   string   `json:"source_type"`
	AudioKey     string   `json:"audio_key"`
	DurationSecs float64  `json:"duration_secs"`
	Format       string   `json:"format"`
	Participants []string `json:"participants"`

	ContactID     *uuid.UUID `json:"contact_id"`
	LeadID        *uuid.UUID `json:"lead_id"`
	OpportunityID *uuid.UUID `json:"opportunity_id"`
	MeetingID     *uuid.UUID `json:"meeting_id"`

	RecordedAt *time.Time `json:"recorded_at"`

	// Process submits the recording to the pipeline immediately.
	Process bool `json:"process"`
}

// Create registers an uploaded recording.
// POST /api/v1/recordings
func (h *RecordingsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRecordingRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteErrorDetail(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	owner, err := uuid.Parse(req.OwnerID)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid owner_id")
		return
	}
	if req.AudioKey == "" {
		WriteError(w, http.StatusBadRequest, "audio_key is required")
		return
	}
	sourceType := model.SourceType(req.SourceType)
	if req.SourceType == "" {
		sourceType = model.SourceUpload
	}
	if !sourceType.Valid() {
		WriteError(w, http.StatusBadRequest, "invalid source_type")
		return
	}

	rec := &model.Recording{
		OwnerID:       owner,
		Title:         req.Title,
		SourceType:    sourceType,
		Status:        model.StatusUploaded,
		AudioKey:      req.AudioKey,
		DurationSecs:  req.DurationSecs,
		Format:        req.Format,
		Participants:  req.Participants,
		ContactID:     req.ContactID,
		LeadID:        req.LeadID,
		OpportunityID: req.OpportunityID,
		MeetingID:     req.MeetingID,
	}
	if req.RecordedAt != nil {
		rec.RecordedAt = req.RecordedAt.UTC()
	}

	if err := h.store.CreateRecording(r.Context(), rec); err != nil {
		h.log.Error().Err(err).Msg("create recording failed")
		WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if req.Process {
		if err := h.pipeline.EnqueueProcessing(r.Context(), rec.ID); err != nil {
			h.log.Warn().Err(err).Str("recording_id", rec.ID.String()).Msg("immediate processing submit failed")
		}
	}

	WriteJSON(w, http.StatusCreated, rec)
}

// Get returns one recording.
// GET /api/v1/recordings/{id}
func (h *RecordingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := PathUUID(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	rec, err := h.store.GetRecording(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, rec)
}

// List returns an owner's recordings.
// GET /api/v1/recordings?owner_id=...
func (h *RecordingsHandler) List(w http.ResponseWriter, r *http.Request) {
	owner, ok := QueryUUID(r, "owner_id")
	if !ok {
		WriteError(w, http.StatusBadRequest, "owner_id is required")
		return
	}
	p, err := ParsePagination(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	recs, err := h.store.ListRecordingsByOwner(r.Context(), owner, p.Limit, p.Offset)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"recordings": recs,
		"count":      len(recs),
	})
}

// Process submits an uploaded recording to the pipeline.
// POST /api/v1/recordings/{id}/process
func (h *RecordingsHandler) Process(w http.ResponseWriter, r *http.Request) {
	id, err := PathUUID(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.pipeline.EnqueueProcessing(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

// Resubmit reruns processing for a failed recording.
// POST /api/v1/recordings/{id}/resubmit
func (h *RecordingsHandler) Resubmit(w http.ResponseWriter, r *http.Request) {
	id, err := PathUUID(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.pipeline.Resubmit(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

// GetTranscript returns the recording's transcript.
// GET /api/v1/recordings/{id}/transcript
func (h *RecordingsHandler) GetTranscript(w http.ResponseWriter, r *http.Request) {
	id, err := PathUUID(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	tr, err := h.store.GetTranscript(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, tr)
}

type editTranscriptRequest struct {
	Text     string `json:"text"`
	EditorID string `json:"editor_id"`
}

// EditTranscript applies a human correction to the transcript text.
// Derived artifacts are not regenerated; use resubmit for that.
// PATCH /api/v1/recordings/{id}/transcript
func (h *RecordingsHandler) EditTranscript(w http.ResponseWriter, r *http.Request) {
	id, err := PathUUID(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req editTranscriptRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteErrorDetail(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if req.Text == "" {
		WriteError(w, http.StatusBadRequest, "text is required")
		return
	}
	editor, err := uuid.Parse(req.EditorID)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid editor_id")
		return
	}

	if err := h.store.UpdateTranscriptText(r.Context(), id, req.Text, editor); err != nil {
		writeDomainError(w, err)
		return
	}
	tr, err := h.store.GetTranscript(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, tr)
}

// Artifacts returns which derived artifacts exist for the recording.
// GET /api/v1/recordings/{id}/artifacts
func (h *RecordingsHandler) Artifacts(w http.ResponseWriter, r *http.Request) {
	id, err := PathUUID(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	presence, err := h.store.ArtifactPresence(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, presence)
}

// Summaries returns the recording's summaries.
// GET /api/v1/recordings/{id}/summaries
func (h *RecordingsHandler) Summaries(w http.ResponseWriter, r *http.Request) {
	id, err := PathUUID(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	summaries, err := h.store.ListSummaries(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"summaries": summaries})
}

// ActionItems returns the recording's action items.
// GET /api/v1/recordings/{id}/action-items
func (h *RecordingsHandler) ActionItems(w http.ResponseWriter, r *http.Request) {
	id, err := PathUUID(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	items, err := h.store.ListActionItems(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"action_items": items})
}

// ConfirmActionItem marks an action item user-confirmed, protecting it
// from regeneration.
// POST /api/v1/recordings/{id}/action-items/{itemID}/confirm
func (h *RecordingsHandler) ConfirmActionItem(w http.ResponseWriter, r *http.Request) {
	id, err := PathUUID(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	itemID, err := PathUUID(r, "itemID")
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.store.ConfirmActionItem(r.Context(), id, itemID); err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "confirmed"})
}

// Sentiment returns the recording's sentiment analysis.
// GET /api/v1/recordings/{id}/sentiment
func (h *RecordingsHandler) Sentiment(w http.ResponseWriter, r *http.Request) {
	id, err := PathUUID(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	s, err := h.store.GetSentiment(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, s)
}

// KeyMoments returns the recording's key moments.
// GET /api/v1/recordings/{id}/key-moments
func (h *RecordingsHandler) KeyMoments(w http.ResponseWriter, r *http.Request) {
	id, err := PathUUID(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	moments, err := h.store.ListKeyMoments(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"key_moments": moments})
}

// ConfirmKeyMoment marks a key moment user-confirmed.
// POST /api/v1/recordings/{id}/key-moments/{momentID}/confirm
func (h *RecordingsHandler) ConfirmKeyMoment(w http.ResponseWriter, r *http.Request) {
	id, err := PathUUID(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	momentID, err := PathUUID(r, "momentID")
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.store.ConfirmKeyMoment(r.Context(), id, momentID); err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "confirmed"})
}

// CallScore returns the recording's call score.
// GET /api/v1/recordings/{id}/call-score
func (h *RecordingsHandler) CallScore(w http.ResponseWriter, r *http.Request) {
	id, err := PathUUID(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	cs, err := h.store.GetCallScore(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, cs)
}

// Categories returns the recording's category assignments.
// GET /api/v1/recordings/{id}/categories
func (h *RecordingsHandler) Categories(w http.ResponseWriter, r *http.Request) {
	id, err := PathUUID(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	cats, err := h.store.ListCategoryAssignments(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"categories": cats})
}

// GetSettings returns an owner's transcription settings (defaults when
// none are stored).
// GET /api/v1/settings/{ownerID}
func (h *RecordingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	owner, err := PathUUID(r, "ownerID")
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	s, err := h.store.TranscriptionSettings(r.Context(), owner)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, s)
}

// PutSettings stores an owner's transcription settings.
// PUT /api/v1/settings/{ownerID}
func (h *RecordingsHandler) PutSettings(w http.ResponseWriter, r *http.Request) {
	owner, err := PathUUID(r, "ownerID")
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	var s model.TranscriptionSettings
	if err := DecodeJSON(r, &s); err != nil {
		WriteErrorDetail(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	s.OwnerID = owner
	if s.PreferredProvider == "" {
		WriteError(w, http.StatusBadRequest, "preferred_provider is required")
		return
	}
	if err := h.store.SaveTranscriptionSettings(r.Context(), &s); err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, &s)
}
