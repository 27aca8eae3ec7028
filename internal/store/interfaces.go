package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/snarg/call-engine/internal/model"
)

// ErrTranscriptExists is returned when a second transcript is created
// for a recording that already has one.
var ErrTranscriptExists = errors.New("transcript already exists")

// ArtifactPresence summarizes which derived artifacts exist for a
// recording. The read model renders absence, not errors.
type ArtifactPresence struct {
	HasTranscript bool `json:"has_transcript"`
	Summaries     int  `json:"summaries"`
	ActionItems   int  `json:"action_items"`
	HasSentiment  bool `json:"has_sentiment"`
	KeyMoments    int  `json:"key_moments"`
	HasCallScore  bool `json:"has_call_score"`
	Categories    int  `json:"categories"`
}

// Store persists recordings and their derived artifacts. The pipeline
// orchestrator is the sole writer of recording status; every status
// write is a compare-and-swap against the expected current status.
type Store interface {
	CreateRecording(ctx context.Context, rec *model.Recording) error
	GetRecording(ctx context.Context, id uuid.UUID) (*model.Recording, error)
	ListRecordingsByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]model.Recording, error)

	// CompareAndSwapStatus atomically moves a recording from one status
	// to another. It returns false (and no error) when the recording is
	// not currently in the expected status.
	CompareAndSwapStatus(ctx context.Context, id uuid.UUID, from, to model.Status) (bool, error)

	// MarkFailed moves any non-terminal recording to failed and retains
	// the causing message. Returns false when already terminal.
	MarkFailed(ctx context.Context, id uuid.UUID, procErr string) (bool, error)

	SetProcessingStarted(ctx context.Context, id uuid.UUID, t time.Time) error
	SetProcessingCompleted(ctx context.Context, id uuid.UUID, t time.Time) error

	// CreateTranscript persists the transcript for a recording.
	// Returns ErrTranscriptExists if one is already present.
	CreateTranscript(ctx context.Context, tr *model.Transcript) error
	GetTranscript(ctx context.Context, recordingID uuid.UUID) (*model.Transcript, error)
	UpdateTranscriptText(ctx context.Context, recordingID uuid.UUID, text string, editor uuid.UUID) error

	SaveSummary(ctx context.Context, s *model.Summary) error
	ListSummaries(ctx context.Context, recordingID uuid.UUID) ([]model.Summary, error)

	SaveActionItems(ctx context.Context, recordingID uuid.UUID, items []model.ActionItem) error
	ListActionItems(ctx context.Context, recordingID uuid.UUID) ([]model.ActionItem, error)
	ConfirmActionItem(ctx context.Context, recordingID, itemID uuid.UUID) error

	SaveSentiment(ctx context.Context, s *model.SentimentAnalysis) error
	GetSentiment(ctx context.Context, recordingID uuid.UUID) (*model.SentimentAnalysis, error)

	SaveKeyMoments(ctx context.Context, recordingID uuid.UUID, moments []model.KeyMoment) error
	ListKeyMoments(ctx context.Context, recordingID uuid.UUID) ([]model.KeyMoment, error)
	ConfirmKeyMoment(ctx context.Context, recordingID, momentID uuid.UUID) error

	SaveCallScore(ctx context.Context, cs *model.CallScore) error
	GetCallScore(ctx context.Context, recordingID uuid.UUID) (*model.CallScore, error)

	SaveCategoryAssignments(ctx context.Context, recordingID uuid.UUID, assignments []model.CategoryAssignment) error
	ListCategoryAssignments(ctx context.Context, recordingID uuid.UUID) ([]model.CategoryAssignment, error)

	// DeleteDerivedArtifacts removes the transcript and every derived
	// artifact for a recording. Used by resubmit before restarting.
	DeleteDerivedArtifacts(ctx context.Context, recordingID uuid.UUID) error

	ArtifactPresence(ctx context.Context, recordingID uuid.UUID) (*ArtifactPresence, error)

	// TranscriptionSettings returns the owner's settings, or defaults
	// when none are stored.
	TranscriptionSettings(ctx context.Context, ownerID uuid.UUID) (*model.TranscriptionSettings, error)
	SaveTranscriptionSettings(ctx context.Context, s *model.TranscriptionSettings) error
}
