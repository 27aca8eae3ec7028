package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/snarg/call-engine/internal/model"
)

const recordingColumns = `
	id, owner_id, title, source_type, status, audio_key,
	duration_secs, sample_rate, channels, format, participants,
	contact_id, lead_id, opportunity_id, meeting_id,
	recorded_at, processing_started_at, processing_completed_at,
	processing_error, created_at, updated_at`

func scanRecording(row pgx.Row) (*model.Recording, error) {
	var r model.Recording
	err := row.Scan(
		&r.ID, &r.OwnerID, &r.Title, &r.SourceType, &r.Status, &r.AudioKey,
		&r.DurationSecs, &r.SampleRate, &r.Channels, &r.Format, &r.Participants,
		&r.ContactID, &r.LeadID, &r.OpportunityID, &r.MeetingID,
		&r.RecordedAt, &r.ProcessingStartedAt, &r.ProcessingCompletedAt,
		&r.ProcessingError, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	return &r, nil
}

func (p *Postgres) CreateRecording(ctx context.Context, rec *model.Recording) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = now
	}
	if rec.Participants == nil {
		rec.Participants = []string{}
	}

	_, err := p.Pool.Exec(ctx, `
		INSERT INTO recordings (
			id, owner_id, title, source_type, status, audio_key,
			duration_secs, sample_rate, channels, format, participants,
			contact_id, lead_id, opportunity_id, meeting_id,
			recorded_at, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
	`,
		rec.ID, rec.OwnerID, rec.Title, rec.SourceType, rec.Status, rec.AudioKey,
		rec.DurationSecs, rec.SampleRate, rec.Channels, rec.Format, rec.Participants,
		rec.ContactID, rec.LeadID, rec.OpportunityID, rec.MeetingID,
		rec.RecordedAt, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert recording: %w", err)
	}
	return nil
}

func (p *Postgres) GetRecording(ctx context.Context, id uuid.UUID) (*model.Recording, error) {
	row := p.Pool.QueryRow(ctx,
		`SELECT `+recordingColumns+` FROM recordings WHERE id = $1`, id)
	return scanRecording(row)
}

func (p *Postgres) ListRecordingsByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]model.Recording, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := p.Pool.Query(ctx,
		`SELECT `+recordingColumns+`
		 FROM recordings WHERE owner_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`, ownerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []model.Recording{}
	for rows.Next() {
		r, err := scanRecording(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *r)
	}
	return result, rows.Err()
}

// CompareAndSwapStatus moves a recording from one status to another in
// a single guarded UPDATE. RowsAffected == 0 means the recording was
// not in the expected status (or does not exist) — the caller treats
// that as a duplicate-delivery signal, not an error.
func (p *Postgres) CompareAndSwapStatus(ctx context.Context, id uuid.UUID, from, to model.Status) (bool, error) {
	tag, err := p.Pool.Exec(ctx, `
		UPDATE recordings SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2
	`, id, from, to)
	if err != nil {
		return false, fmt.Errorf("cas status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (p *Postgres) MarkFailed(ctx context.Context, id uuid.UUID, procErr string) (bool, error) {
	tag, err := p.Pool.Exec(ctx, `
		UPDATE recordings SET status = $2, processing_error = $3, updated_at = now()
		WHERE id = $1 AND status NOT IN ($4, $5)
	`, id, model.StatusFailed, procErr, model.StatusCompleted, model.StatusFailed)
	if err != nil {
		return false, fmt.Errorf("mark failed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (p *Postgres) SetProcessingStarted(ctx context.Context, id uuid.UUID, t time.Time) error {
	_, err := p.Pool.Exec(ctx, `
		UPDATE recordings SET processing_started_at = $2, processing_error = '', updated_at = now()
		WHERE id = $1
	`, id, t)
	return err
}

func (p *Postgres) SetProcessingCompleted(ctx context.Context, id uuid.UUID, t time.Time) error {
	_, err := p.Pool.Exec(ctx, `
		UPDATE recordings SET processing_completed_at = $2, updated_at = now()
		WHERE id = $1
	`, id, t)
	return err
}
