package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/snarg/call-engine/internal/model"
)

// CreateTranscript inserts the transcript for a recording. The UNIQUE
// constraint on recording_id enforces at-most-one; a violation maps to
// ErrTranscriptExists so a redelivered transcribe step can no-op.
func (p *Postgres) CreateTranscript(ctx context.Context, tr *model.Transcript) error {
	if tr.ID == uuid.Nil {
		tr.ID = uuid.New()
	}
	tr.CreatedAt = time.Now().UTC()

	words, err := json.Marshal(tr.Words)
	if err != nil {
		return fmt.Errorf("marshal words: %w", err)
	}
	segments, err := json.Marshal(tr.Segments)
	if err != nil {
		return fmt.Errorf("marshal segments: %w", err)
	}

	_, err = p.Pool.Exec(ctx, `
		INSERT INTO transcripts (
			id, recording_id, full_text, words, segments,
			language, provider, model, confidence, duration_secs, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`,
		tr.ID, tr.RecordingID, tr.FullText, words, segments,
		tr.Language, tr.Provider, tr.Model, tr.Confidence, tr.DurationSecs, tr.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrTranscriptExists
		}
		return fmt.Errorf("insert transcript: %w", err)
	}
	return nil
}

func (p *Postgres) GetTranscript(ctx context.Context, recordingID uuid.UUID) (*model.Transcript, error) {
	var t model.Transcript
	var words, segments []byte
	err := p.Pool.QueryRow(ctx, `
		SELECT id, recording_id, full_text, words, segments,
			language, provider, model, confidence, duration_secs,
			was_edited, edited_by, edited_at, created_at
		FROM transcripts
		WHERE recording_id = $1
	`, recordingID).Scan(
		&t.ID, &t.RecordingID, &t.FullText, &words, &segments,
		&t.Language, &t.Provider, &t.Model, &t.Confidence, &t.DurationSecs,
		&t.WasEdited, &t.EditedBy, &t.EditedAt, &t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}

	if len(words) > 0 {
		if err := json.Unmarshal(words, &t.Words); err != nil {
			return nil, fmt.Errorf("unmarshal words: %w", err)
		}
	}
	if len(segments) > 0 {
		if err := json.Unmarshal(segments, &t.Segments); err != nil {
			return nil, fmt.Errorf("unmarshal segments: %w", err)
		}
	}
	return &t, nil
}

// UpdateTranscriptText applies a human correction. This is the only
// post-creation mutation path for a transcript.
func (p *Postgres) UpdateTranscriptText(ctx context.Context, recordingID uuid.UUID, text string, editor uuid.UUID) error {
	tag, err := p.Pool.Exec(ctx, `
		UPDATE transcripts
		SET full_text = $2, was_edited = true, edited_by = $3, edited_at = now()
		WHERE recording_id = $1
	`, recordingID, text, editor)
	if err != nil {
		return fmt.Errorf("update transcript text: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}
