package model

import (
	"time"

	"github.com/google/uuid"
)

// Word is a timestamped word from the transcription provider.
type Word struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"` // seconds
	End   float64 `json:"end"`
}

// Segment is a contiguous span of transcript text, optionally
// attributed to a speaker after diarization.
type Segment struct {
	Start        float64 `json:"start"`
	End          float64 `json:"end"`
	Text         string  `json:"text"`
	SpeakerID    string  `json:"speaker_id,omitempty"`
	SpeakerLabel string  `json:"speaker_label,omitempty"`
}

// Transcript is the primary artifact of the Transcribe stage. At most
// one exists per recording; the text may later be corrected by a human,
// which is the only post-creation mutation.
type Transcript struct {
	ID           uuid.UUID `json:"id"`
	RecordingID  uuid.UUID `json:"recording_id"`
	FullText     string    `json:"full_text"`
	Words        []Word    `json:"words,omitempty"`
	Segments     []Segment `json:"segments,omitempty"`
	Language     string    `json:"language,omitempty"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model,omitempty"`
	Confidence   float64   `json:"confidence,omitempty"`
	DurationSecs float64   `json:"duration_secs,omitempty"`

	WasEdited bool       `json:"was_edited"`
	EditedBy  *uuid.UUID `json:"edited_by,omitempty"`
	EditedAt  *time.Time `json:"edited_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// SummaryType selects the flavor of a generated summary.
type SummaryType string

const (
	SummaryBrief    SummaryType = "brief"
	SummaryDetailed SummaryType = "detailed"
	SummaryBullets  SummaryType = "bullet_points"
)

// Summary is one generated summary of a recording.
type Summary struct {
	ID          uuid.UUID   `json:"id"`
	RecordingID uuid.UUID   `json:"recording_id"`
	Type        SummaryType `json:"type"`
	Text        string      `json:"text"`
	Provider    string      `json:"provider,omitempty"`
	Confidence  float64     `json:"confidence,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// Priority of an extracted action item.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// ActionItem is a follow-up task extracted from the conversation.
// Confirmed is flipped by an explicit user action, never by the pipeline.
type ActionItem struct {
	ID           uuid.UUID  `json:"id"`
	RecordingID  uuid.UUID  `json:"recording_id"`
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	AssigneeHint string     `json:"assignee_hint,omitempty"`
	DueDateHint  *time.Time `json:"due_date_hint,omitempty"`
	Priority     Priority   `json:"priority"`
	Confidence   float64    `json:"confidence,omitempty"`
	Confirmed    bool       `json:"confirmed"`

	ExternalTaskID  string `json:"external_task_id,omitempty"`
	ExternalTaskURL string `json:"external_task_url,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// SentimentLabel is the overall tone classification.
type SentimentLabel string

const (
	SentimentPositive SentimentLabel = "positive"
	SentimentNeutral  SentimentLabel = "neutral"
	SentimentNegative SentimentLabel = "negative"
)

// SentimentSpan scores a slice of the conversation timeline.
type SentimentSpan struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Score float64 `json:"score"` // -1..1
}

// SentimentAnalysis holds the tone analysis for a recording (0 or 1).
type SentimentAnalysis struct {
	ID          uuid.UUID          `json:"id"`
	RecordingID uuid.UUID          `json:"recording_id"`
	Overall     SentimentLabel     `json:"overall"`
	Score       float64            `json:"score"` // -1..1
	PerSpeaker  map[string]float64 `json:"per_speaker,omitempty"`
	Timeline    []SentimentSpan    `json:"timeline,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
}

// KeyMomentType classifies a notable span in the conversation.
type KeyMomentType string

const (
	MomentQuestion   KeyMomentType = "question"
	MomentObjection  KeyMomentType = "objection"
	MomentPricing    KeyMomentType = "pricing"
	MomentNextSteps  KeyMomentType = "next_steps"
	MomentCommitment KeyMomentType = "commitment"
	MomentHighlight  KeyMomentType = "highlight"
)

// KeyMoment marks a typed timestamped span, AI-detected or user-added.
type KeyMoment struct {
	ID          uuid.UUID     `json:"id"`
	RecordingID uuid.UUID     `json:"recording_id"`
	Type        KeyMomentType `json:"type"`
	Label       string        `json:"label,omitempty"`
	Start       float64       `json:"start"`
	End         float64       `json:"end"`
	AIDetected  bool          `json:"ai_detected"`
	Confirmed   bool          `json:"confirmed"`
	CreatedAt   time.Time     `json:"created_at"`
}

// CallScore is the composite quality score for a call (0 or 1).
type CallScore struct {
	ID          uuid.UUID `json:"id"`
	RecordingID uuid.UUID `json:"recording_id"`
	Composite   float64   `json:"composite"` // 0..100

	TalkListenRatio float64 `json:"talk_listen_ratio,omitempty"`
	Engagement      float64 `json:"engagement,omitempty"`
	SentimentScore  float64 `json:"sentiment_score,omitempty"`
	NextStepsScore  float64 `json:"next_steps_score,omitempty"`

	Tips      []string  `json:"tips,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// CategoryAssignment links a recording to a category. Auto-classified
// assignments carry the classifier's confidence.
type CategoryAssignment struct {
	RecordingID      uuid.UUID `json:"recording_id"`
	CategoryID       uuid.UUID `json:"category_id"`
	Category         string    `json:"category,omitempty"`
	IsAutoClassified bool      `json:"is_auto_classified"`
	Confidence       float64   `json:"confidence,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}
