package model

import "github.com/google/uuid"

// TranscriptionSettings are per-owner pipeline preferences, consumed
// once per run. Absent rows fall back to DefaultTranscriptionSettings.
type TranscriptionSettings struct {
	OwnerID uuid.UUID `json:"owner_id"`

	PreferredProvider        string   `json:"preferred_provider"`
	DefaultLanguage          string   `json:"default_language"`
	AutoDetectLanguage       bool     `json:"auto_detect_language"`
	EnableSpeakerDiarization bool     `json:"enable_speaker_diarization"`
	CustomVocabulary         []string `json:"custom_vocabulary,omitempty"`

	AutoGenerateSummary    bool `json:"auto_generate_summary"`
	AutoExtractActionItems bool `json:"auto_extract_action_items"`
	AutoAnalyzeSentiment   bool `json:"auto_analyze_sentiment"`
	AutoScoreCalls         bool `json:"auto_score_calls"`

	NotifyOnCompletion         bool `json:"notify_on_completion"`
	NotifyOnHighPriorityAction bool `json:"notify_on_high_priority_action"`
}

// DefaultTranscriptionSettings returns the settings applied when an
// owner has not configured any.
func DefaultTranscriptionSettings(ownerID uuid.UUID) *TranscriptionSettings {
	return &TranscriptionSettings{
		OwnerID:                  ownerID,
		PreferredProvider:        "whisper",
		DefaultLanguage:          "en",
		AutoDetectLanguage:       true,
		EnableSpeakerDiarization: true,
		AutoGenerateSummary:      true,
		AutoExtractActionItems:   true,
		AutoAnalyzeSentiment:     true,
		AutoScoreCalls:           true,
		NotifyOnCompletion:       true,
	}
}
