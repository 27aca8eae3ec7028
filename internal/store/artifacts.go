package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/snarg/call-engine/internal/model"
)

// SaveSummary upserts a summary by (recording, type). Analyze sub-steps
// are idempotent-by-recreate, so a redelivered step overwrites.
func (p *Postgres) SaveSummary(ctx context.Context, s *model.Summary) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	s.CreatedAt = time.Now().UTC()
	_, err := p.Pool.Exec(ctx, `
		INSERT INTO summaries (id, recording_id, type, text, provider, confidence, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (recording_id, type) DO UPDATE
		SET text = EXCLUDED.text, provider = EXCLUDED.provider,
			confidence = EXCLUDED.confidence, created_at = EXCLUDED.created_at
	`, s.ID, s.RecordingID, s.Type, s.Text, s.Provider, s.Confidence, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("save summary: %w", err)
	}
	return nil
}

func (p *Postgres) ListSummaries(ctx context.Context, recordingID uuid.UUID) ([]model.Summary, error) {
	rows, err := p.Pool.Query(ctx, `
		SELECT id, recording_id, type, text, provider, confidence, created_at
		FROM summaries WHERE recording_id = $1 ORDER BY type
	`, recordingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []model.Summary{}
	for rows.Next() {
		var s model.Summary
		if err := rows.Scan(&s.ID, &s.RecordingID, &s.Type, &s.Text, &s.Provider, &s.Confidence, &s.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

// SaveActionItems replaces the AI-extracted action items for a
// recording. Confirmed items are user state and survive re-extraction.
func (p *Postgres) SaveActionItems(ctx context.Context, recordingID uuid.UUID, items []model.ActionItem) error {
	tx, err := p.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`DELETE FROM action_items WHERE recording_id = $1 AND confirmed = false`, recordingID)
	if err != nil {
		return fmt.Errorf("clear action items: %w", err)
	}

	now := time.Now().UTC()
	for i := range items {
		it := &items[i]
		if it.ID == uuid.Nil {
			it.ID = uuid.New()
		}
		it.RecordingID = recordingID
		it.CreatedAt = now
		_, err = tx.Exec(ctx, `
			INSERT INTO action_items (
				id, recording_id, title, description, assignee_hint, due_date_hint,
				priority, confidence, confirmed, external_task_id, external_task_url, created_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		`,
			it.ID, it.RecordingID, it.Title, it.Description, it.AssigneeHint, it.DueDateHint,
			it.Priority, it.Confidence, it.Confirmed, it.ExternalTaskID, it.ExternalTaskURL, it.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert action item: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (p *Postgres) ListActionItems(ctx context.Context, recordingID uuid.UUID) ([]model.ActionItem, error) {
	rows, err := p.Pool.Query(ctx, `
		SELECT id, recording_id, title, description, assignee_hint, due_date_hint,
			priority, confidence, confirmed, external_task_id, external_task_url, created_at
		FROM action_items WHERE recording_id = $1 ORDER BY created_at, title
	`, recordingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []model.ActionItem{}
	for rows.Next() {
		var it model.ActionItem
		if err := rows.Scan(
			&it.ID, &it.RecordingID, &it.Title, &it.Description, &it.AssigneeHint, &it.DueDateHint,
			&it.Priority, &it.Confidence, &it.Confirmed, &it.ExternalTaskID, &it.ExternalTaskURL, &it.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, it)
	}
	return result, rows.Err()
}

func (p *Postgres) ConfirmActionItem(ctx context.Context, recordingID, itemID uuid.UUID) error {
	tag, err := p.Pool.Exec(ctx,
		`UPDATE action_items SET confirmed = true WHERE id = $1 AND recording_id = $2`,
		itemID, recordingID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (p *Postgres) SaveSentiment(ctx context.Context, s *model.SentimentAnalysis) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	s.CreatedAt = time.Now().UTC()

	perSpeaker, err := json.Marshal(s.PerSpeaker)
	if err != nil {
		return fmt.Errorf("marshal per_speaker: %w", err)
	}
	timeline, err := json.Marshal(s.Timeline)
	if err != nil {
		return fmt.Errorf("marshal timeline: %w", err)
	}

	_, err = p.Pool.Exec(ctx, `
		INSERT INTO sentiment_analyses (id, recording_id, overall, score, per_speaker, timeline, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (recording_id) DO UPDATE
		SET overall = EXCLUDED.overall, score = EXCLUDED.score,
			per_speaker = EXCLUDED.per_speaker, timeline = EXCLUDED.timeline,
			created_at = EXCLUDED.created_at
	`, s.ID, s.RecordingID, s.Overall, s.Score, perSpeaker, timeline, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("save sentiment: %w", err)
	}
	return nil
}

func (p *Postgres) GetSentiment(ctx context.Context, recordingID uuid.UUID) (*model.SentimentAnalysis, error) {
	var s model.SentimentAnalysis
	var perSpeaker, timeline []byte
	err := p.Pool.QueryRow(ctx, `
		SELECT id, recording_id, overall, score, per_speaker, timeline, created_at
		FROM sentiment_analyses WHERE recording_id = $1
	`, recordingID).Scan(&s.ID, &s.RecordingID, &s.Overall, &s.Score, &perSpeaker, &timeline, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	if len(perSpeaker) > 0 {
		if err := json.Unmarshal(perSpeaker, &s.PerSpeaker); err != nil {
			return nil, fmt.Errorf("unmarshal per_speaker: %w", err)
		}
	}
	if len(timeline) > 0 {
		if err := json.Unmarshal(timeline, &s.Timeline); err != nil {
			return nil, fmt.Errorf("unmarshal timeline: %w", err)
		}
	}
	return &s, nil
}

// SaveKeyMoments replaces AI-detected moments; user-added and confirmed
// moments are preserved.
func (p *Postgres) SaveKeyMoments(ctx context.Context, recordingID uuid.UUID, moments []model.KeyMoment) error {
	tx, err := p.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`DELETE FROM key_moments WHERE recording_id = $1 AND ai_detected = true AND confirmed = false`,
		recordingID)
	if err != nil {
		return fmt.Errorf("clear key moments: %w", err)
	}

	now := time.Now().UTC()
	for i := range moments {
		m := &moments[i]
		if m.ID == uuid.Nil {
			m.ID = uuid.New()
		}
		m.RecordingID = recordingID
		m.CreatedAt = now
		_, err = tx.Exec(ctx, `
			INSERT INTO key_moments (id, recording_id, type, label, start_secs, end_secs, ai_detected, confirmed, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`, m.ID, m.RecordingID, m.Type, m.Label, m.Start, m.End, m.AIDetected, m.Confirmed, m.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert key moment: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (p *Postgres) ListKeyMoments(ctx context.Context, recordingID uuid.UUID) ([]model.KeyMoment, error) {
	rows, err := p.Pool.Query(ctx, `
		SELECT id, recording_id, type, label, start_secs, end_secs, ai_detected, confirmed, created_at
		FROM key_moments WHERE recording_id = $1 ORDER BY start_secs
	`, recordingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []model.KeyMoment{}
	for rows.Next() {
		var m model.KeyMoment
		if err := rows.Scan(&m.ID, &m.RecordingID, &m.Type, &m.Label, &m.Start, &m.End, &m.AIDetected, &m.Confirmed, &m.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

func (p *Postgres) ConfirmKeyMoment(ctx context.Context, recordingID, momentID uuid.UUID) error {
	tag, err := p.Pool.Exec(ctx,
		`UPDATE key_moments SET confirmed = true WHERE id = $1 AND recording_id = $2`,
		momentID, recordingID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (p *Postgres) SaveCallScore(ctx context.Context, cs *model.CallScore) error {
	if cs.ID == uuid.Nil {
		cs.ID = uuid.New()
	}
	cs.CreatedAt = time.Now().UTC()
	if cs.Tips == nil {
		cs.Tips = []string{}
	}
	_, err := p.Pool.Exec(ctx, `
		INSERT INTO call_scores (
			id, recording_id, composite, talk_listen_ratio, engagement,
			sentiment_score, next_steps_score, tips, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (recording_id) DO UPDATE
		SET composite = EXCLUDED.composite, talk_listen_ratio = EXCLUDED.talk_listen_ratio,
			engagement = EXCLUDED.engagement, sentiment_score = EXCLUDED.sentiment_score,
			next_steps_score = EXCLUDED.next_steps_score, tips = EXCLUDED.tips,
			created_at = EXCLUDED.created_at
	`, cs.ID, cs.RecordingID, cs.Composite, cs.TalkListenRatio, cs.Engagement,
		cs.SentimentScore, cs.NextStepsScore, cs.Tips, cs.CreatedAt)
	if err != nil {
		return fmt.Errorf("save call score: %w", err)
	}
	return nil
}

func (p *Postgres) GetCallScore(ctx context.Context, recordingID uuid.UUID) (*model.CallScore, error) {
	var cs model.CallScore
	err := p.Pool.QueryRow(ctx, `
		SELECT id, recording_id, composite, talk_listen_ratio, engagement,
			sentiment_score, next_steps_score, tips, created_at
		FROM call_scores WHERE recording_id = $1
	`, recordingID).Scan(
		&cs.ID, &cs.RecordingID, &cs.Composite, &cs.TalkListenRatio, &cs.Engagement,
		&cs.SentimentScore, &cs.NextStepsScore, &cs.Tips, &cs.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	return &cs, nil
}

func (p *Postgres) SaveCategoryAssignments(ctx context.Context, recordingID uuid.UUID, assignments []model.CategoryAssignment) error {
	tx, err := p.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`DELETE FROM category_assignments WHERE recording_id = $1 AND is_auto_classified = true`,
		recordingID)
	if err != nil {
		return fmt.Errorf("clear category assignments: %w", err)
	}

	now := time.Now().UTC()
	for i := range assignments {
		a := &assignments[i]
		a.RecordingID = recordingID
		a.CreatedAt = now
		_, err = tx.Exec(ctx, `
			INSERT INTO category_assignments (recording_id, category_id, category, is_auto_classified, confidence, created_at)
			VALUES ($1,$2,$3,$4,$5,$6)
			ON CONFLICT (recording_id, category_id) DO UPDATE
			SET category = EXCLUDED.category, is_auto_classified = EXCLUDED.is_auto_classified,
				confidence = EXCLUDED.confidence
		`, a.RecordingID, a.CategoryID, a.Category, a.IsAutoClassified, a.Confidence, a.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert category assignment: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (p *Postgres) ListCategoryAssignments(ctx context.Context, recordingID uuid.UUID) ([]model.CategoryAssignment, error) {
	rows, err := p.Pool.Query(ctx, `
		SELECT recording_id, category_id, category, is_auto_classified, confidence, created_at
		FROM category_assignments WHERE recording_id = $1 ORDER BY category
	`, recordingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []model.CategoryAssignment{}
	for rows.Next() {
		var a model.CategoryAssignment
		if err := rows.Scan(&a.RecordingID, &a.CategoryID, &a.Category, &a.IsAutoClassified, &a.Confidence, &a.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

// DeleteDerivedArtifacts wipes the transcript and every derived
// artifact ahead of a resubmit. Each delete is independent; there is
// no cross-artifact invariant to protect.
func (p *Postgres) DeleteDerivedArtifacts(ctx context.Context, recordingID uuid.UUID) error {
	for _, stmt := range []string{
		`DELETE FROM transcripts WHERE recording_id = $1`,
		`DELETE FROM summaries WHERE recording_id = $1`,
		`DELETE FROM action_items WHERE recording_id = $1`,
		`DELETE FROM sentiment_analyses WHERE recording_id = $1`,
		`DELETE FROM key_moments WHERE recording_id = $1`,
		`DELETE FROM call_scores WHERE recording_id = $1`,
		`DELETE FROM category_assignments WHERE recording_id = $1`,
	} {
		if _, err := p.Pool.Exec(ctx, stmt, recordingID); err != nil {
			return fmt.Errorf("delete artifacts: %w", err)
		}
	}
	return nil
}

func (p *Postgres) ArtifactPresence(ctx context.Context, recordingID uuid.UUID) (*ArtifactPresence, error) {
	var pr ArtifactPresence
	err := p.Pool.QueryRow(ctx, `
		SELECT
			EXISTS (SELECT 1 FROM transcripts WHERE recording_id = $1),
			(SELECT count(*) FROM summaries WHERE recording_id = $1),
			(SELECT count(*) FROM action_items WHERE recording_id = $1),
			EXISTS (SELECT 1 FROM sentiment_analyses WHERE recording_id = $1),
			(SELECT count(*) FROM key_moments WHERE recording_id = $1),
			EXISTS (SELECT 1 FROM call_scores WHERE recording_id = $1),
			(SELECT count(*) FROM category_assignments WHERE recording_id = $1)
	`, recordingID).Scan(
		&pr.HasTranscript, &pr.Summaries, &pr.ActionItems,
		&pr.HasSentiment, &pr.KeyMoments, &pr.HasCallScore, &pr.Categories,
	)
	if err != nil {
		return nil, err
	}
	return &pr, nil
}
