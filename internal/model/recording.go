package model

import (
	"time"

	"github.com/google/uuid"
)

// SourceType describes how a recording was captured.
type SourceType string

const (
	SourcePhoneCall    SourceType = "phone_call"
	SourceVideoMeeting SourceType = "video_meeting"
	SourceVoiceNote    SourceType = "voice_note"
	SourceUpload       SourceType = "upload"
	SourceLiveCapture  SourceType = "live_capture"
)

// Valid reports whether st is a known source type.
func (st SourceType) Valid() bool {
	switch st {
	case SourcePhoneCall, SourceVideoMeeting, SourceVoiceNote, SourceUpload, SourceLiveCapture:
		return true
	}
	return false
}

// Scorable reports whether recordings of this type get a call score.
func (st SourceType) Scorable() bool {
	return st == SourcePhoneCall || st == SourceVideoMeeting
}

// Recording is an uploaded or captured audio artifact moving through
// the processing pipeline. Status and the processing timestamps are
// written only by the orchestrator.
type Recording struct {
	ID         uuid.UUID  `json:"id"`
	OwnerID    uuid.UUID  `json:"owner_id"`
	Title      string     `json:"title,omitempty"`
	SourceType SourceType `json:"source_type"`
	Status     Status     `json:"status"`

	// AudioKey locates the audio: a relative path under the audio dir
	// or an object key in the configured S3 bucket.
	AudioKey     string  `json:"audio_key"`
	DurationSecs float64 `json:"duration_secs,omitempty"`
	SampleRate   int     `json:"sample_rate,omitempty"`
	Channels     int     `json:"channels,omitempty"`
	Format       string  `json:"format,omitempty"`

	Participants []string `json:"participants,omitempty"`

	// Weak CRM associations. The recording does not own these entities.
	ContactID     *uuid.UUID `json:"contact_id,omitempty"`
	LeadID        *uuid.UUID `json:"lead_id,omitempty"`
	OpportunityID *uuid.UUID `json:"opportunity_id,omitempty"`
	MeetingID     *uuid.UUID `json:"meeting_id,omitempty"`

	RecordedAt            time.Time  `json:"recorded_at"`
	ProcessingStartedAt   *time.Time `json:"processing_started_at,omitempty"`
	ProcessingCompletedAt *time.Time `json:"processing_completed_at,omitempty"`
	ProcessingError       string     `json:"processing_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
