package store

// schemaSQL is the full schema for a fresh database. Every statement
// is idempotent so re-applying is harmless.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS recordings (
    id                      uuid PRIMARY KEY,
    owner_id                uuid NOT NULL,
    title                   text NOT NULL DEFAULT '',
    source_type             text NOT NULL,
    status                  text NOT NULL DEFAULT 'uploading',
    audio_key               text NOT NULL DEFAULT '',
    duration_secs           double precision NOT NULL DEFAULT 0,
    sample_rate             int NOT NULL DEFAULT 0,
    channels                int NOT NULL DEFAULT 0,
    format                  text NOT NULL DEFAULT '',
    participants            text[] NOT NULL DEFAULT '{}',
    contact_id              uuid,
    lead_id                 uuid,
    opportunity_id          uuid,
    meeting_id              uuid,
    recorded_at             timestamptz NOT NULL DEFAULT now(),
    processing_started_at   timestamptz,
    processing_completed_at timestamptz,
    processing_error        text NOT NULL DEFAULT '',
    created_at              timestamptz NOT NULL DEFAULT now(),
    updated_at              timestamptz NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_recordings_owner ON recordings (owner_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_recordings_status ON recordings (status);

CREATE TABLE IF NOT EXISTS transcripts (
    id            uuid PRIMARY KEY,
    recording_id  uuid NOT NULL UNIQUE REFERENCES recordings(id) ON DELETE CASCADE,
    full_text     text NOT NULL,
    words         jsonb,
    segments      jsonb,
    language      text NOT NULL DEFAULT '',
    provider      text NOT NULL DEFAULT '',
    model         text NOT NULL DEFAULT '',
    confidence    double precision NOT NULL DEFAULT 0,
    duration_secs double precision NOT NULL DEFAULT 0,
    was_edited    boolean NOT NULL DEFAULT false,
    edited_by     uuid,
    edited_at     timestamptz,
    created_at    timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS summaries (
    id           uuid PRIMARY KEY,
    recording_id uuid NOT NULL REFERENCES recordings(id) ON DELETE CASCADE,
    type         text NOT NULL,
    text         text NOT NULL,
    provider     text NOT NULL DEFAULT '',
    confidence   double precision NOT NULL DEFAULT 0,
    created_at   timestamptz NOT NULL DEFAULT now(),
    UNIQUE (recording_id, type)
);

CREATE TABLE IF NOT EXISTS action_items (
    id                uuid PRIMARY KEY,
    recording_id      uuid NOT NULL REFERENCES recordings(id) ON DELETE CASCADE,
    title             text NOT NULL,
    description       text NOT NULL DEFAULT '',
    assignee_hint     text NOT NULL DEFAULT '',
    due_date_hint     timestamptz,
    priority          text NOT NULL DEFAULT 'medium',
    confidence        double precision NOT NULL DEFAULT 0,
    confirmed         boolean NOT NULL DEFAULT false,
    external_task_id  text NOT NULL DEFAULT '',
    external_task_url text NOT NULL DEFAULT '',
    created_at        timestamptz NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_action_items_recording ON action_items (recording_id);

CREATE TABLE IF NOT EXISTS sentiment_analyses (
    id           uuid PRIMARY KEY,
    recording_id uuid NOT NULL UNIQUE REFERENCES recordings(id) ON DELETE CASCADE,
    overall      text NOT NULL,
    score        double precision NOT NULL DEFAULT 0,
    per_speaker  jsonb,
    timeline     jsonb,
    created_at   timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS key_moments (
    id           uuid PRIMARY KEY,
    recording_id uuid NOT NULL REFERENCES recordings(id) ON DELETE CASCADE,
    type         text NOT NULL,
    label        text NOT NULL DEFAULT '',
    start_secs   double precision NOT NULL,
    end_secs     double precision NOT NULL,
    ai_detected  boolean NOT NULL DEFAULT true,
    confirmed    boolean NOT NULL DEFAULT false,
    created_at   timestamptz NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_key_moments_recording ON key_moments (recording_id);

CREATE TABLE IF NOT EXISTS call_scores (
    id                uuid PRIMARY KEY,
    recording_id      uuid NOT NULL UNIQUE REFERENCES recordings(id) ON DELETE CASCADE,
    composite         double precision NOT NULL,
    talk_listen_ratio double precision NOT NULL DEFAULT 0,
    engagement        double precision NOT NULL DEFAULT 0,
    sentiment_score   double precision NOT NULL DEFAULT 0,
    next_steps_score  double precision NOT NULL DEFAULT 0,
    tips              text[] NOT NULL DEFAULT '{}',
    created_at        timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS category_assignments (
    recording_id       uuid NOT NULL REFERENCES recordings(id) ON DELETE CASCADE,
    category_id        uuid NOT NULL,
    category           text NOT NULL DEFAULT '',
    is_auto_classified boolean NOT NULL DEFAULT true,
    confidence         double precision NOT NULL DEFAULT 0,
    created_at         timestamptz NOT NULL DEFAULT now(),
    PRIMARY KEY (recording_id, category_id)
);

CREATE TABLE IF NOT EXISTS transcription_settings (
    owner_id                       uuid PRIMARY KEY,
    preferred_provider             text NOT NULL DEFAULT 'whisper',
    default_language               text NOT NULL DEFAULT 'en',
    auto_detect_language           boolean NOT NULL DEFAULT true,
    enable_speaker_diarization     boolean NOT NULL DEFAULT true,
    custom_vocabulary              text[] NOT NULL DEFAULT '{}',
    auto_generate_summary          boolean NOT NULL DEFAULT true,
    auto_extract_action_items      boolean NOT NULL DEFAULT true,
    auto_analyze_sentiment         boolean NOT NULL DEFAULT true,
    auto_score_calls               boolean NOT NULL DEFAULT true,
    notify_on_completion           boolean NOT NULL DEFAULT true,
    notify_on_high_priority_action boolean NOT NULL DEFAULT false
);
`
