package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/snarg/call-engine/internal/model"
)

// TranscriptionSettings returns the owner's stored settings, falling
// back to defaults when no row exists.
func (p *Postgres) TranscriptionSettings(ctx context.Context, ownerID uuid.UUID) (*model.TranscriptionSettings, error) {
	var s model.TranscriptionSettings
	err := p.Pool.QueryRow(ctx, `
		SELECT owner_id, preferred_provider, default_language, auto_detect_language,
			enable_speaker_diarization, custom_vocabulary,
			auto_generate_summary, auto_extract_action_items,
			auto_analyze_sentiment, auto_score_calls,
			notify_on_completion, notify_on_high_priority_action
		FROM transcription_settings WHERE owner_id = $1
	`, ownerID).Scan(
		&s.OwnerID, &s.PreferredProvider, &s.DefaultLanguage, &s.AutoDetectLanguage,
		&s.EnableSpeakerDiarization, &s.CustomVocabulary,
		&s.AutoGenerateSummary, &s.AutoExtractActionItems,
		&s.AutoAnalyzeSentiment, &s.AutoScoreCalls,
		&s.NotifyOnCompletion, &s.NotifyOnHighPriorityAction,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.DefaultTranscriptionSettings(ownerID), nil
		}
		return nil, err
	}
	return &s, nil
}

func (p *Postgres) SaveTranscriptionSettings(ctx context.Context, s *model.TranscriptionSettings) error {
	if s.CustomVocabulary == nil {
		s.CustomVocabulary = []string{}
	}
	_, err := p.Pool.Exec(ctx, `
		INSERT INTO transcription_settings (
			owner_id, preferred_provider, default_language, auto_detect_language,
			enable_speaker_diarization, custom_vocabulary,
			auto_generate_summary, auto_extract_action_items,
			auto_analyze_sentiment, auto_score_calls,
			notify_on_completion, notify_on_high_priority_action
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (owner_id) DO UPDATE SET
			preferred_provider = EXCLUDED.preferred_provider,
			default_language = EXCLUDED.default_language,
			auto_detect_language = EXCLUDED.auto_detect_language,
			enable_speaker_diarization = EXCLUDED.enable_speaker_diarization,
			custom_vocabulary = EXCLUDED.custom_vocabulary,
			auto_generate_summary = EXCLUDED.auto_generate_summary,
			auto_extract_action_items = EXCLUDED.auto_extract_action_items,
			auto_analyze_sentiment = EXCLUDED.auto_analyze_sentiment,
			auto_score_calls = EXCLUDED.auto_score_calls,
			notify_on_completion = EXCLUDED.notify_on_completion,
			notify_on_high_priority_action = EXCLUDED.notify_on_high_priority_action
	`,
		s.OwnerID, s.PreferredProvider, s.DefaultLanguage, s.AutoDetectLanguage,
		s.EnableSpeakerDiarization, s.CustomVocabulary,
		s.AutoGenerateSummary, s.AutoExtractActionItems,
		s.AutoAnalyzeSentiment, s.AutoScoreCalls,
		s.NotifyOnCompletion, s.NotifyOnHighPriorityAction,
	)
	if err != nil {
		return fmt.Errorf("save transcription settings: %w", err)
	}
	return nil
}
