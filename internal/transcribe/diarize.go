package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/call-engine/internal/model"
)

// Diarizer identifies who speaks in which segment of a transcript.
type Diarizer interface {
	Identify(ctx context.Context, segments []model.Segment, participantHints []string) (*DiarizationResult, error)
}

// Speaker is one identified voice in the recording.
type Speaker struct {
	ID          string `json:"id"`
	Description string `json:"description,omitempty"`
}

// SegmentAssignment attributes the segment starting at Start to a speaker.
type SegmentAssignment struct {
	Start     float64 `json:"start"`
	SpeakerID string  `json:"speaker_id"`
}

// DiarizationResult is the outcome of speaker identification.
type DiarizationResult struct {
	SpeakerCount int                 `json:"speaker_count"`
	Speakers     []Speaker           `json:"speakers"`
	Assignments  []SegmentAssignment `json:"segment_assignments"`
}

// UnknownSpeakerResult is the degraded result used when the diarizer
// fails: one anonymous speaker owning every segment. Diarization
// problems must never fail the pipeline.
func UnknownSpeakerResult(segments []model.Segment) *DiarizationResult {
	r := &DiarizationResult{
		SpeakerCount: 1,
		Speakers:     []Speaker{{ID: "unknown", Description: "unknown speaker"}},
	}
	for _, s := range segments {
		r.Assignments = append(r.Assignments, SegmentAssignment{Start: s.Start, SpeakerID: "unknown"})
	}
	return r
}

// MergeSpeakers applies a diarization result to the segments, labeling
// each with its assigned speaker. Segments without an assignment keep
// whatever label the provider already gave them.
func MergeSpeakers(segments []model.Segment, result *DiarizationResult) []model.Segment {
	if result == nil {
		return segments
	}
	byStart := make(map[float64]string, len(result.Assignments))
	for _, a := range result.Assignments {
		byStart[a.Start] = a.SpeakerID
	}
	desc := make(map[string]string, len(result.Speakers))
	for _, sp := range result.Speakers {
		desc[sp.ID] = sp.Description
	}

	merged := make([]model.Segment, len(segments))
	for i, s := range segments {
		if id, ok := byStart[s.Start]; ok {
			s.SpeakerID = id
			s.SpeakerLabel = desc[id]
		}
		merged[i] = s
	}
	return merged
}

// HTTPDiarizer calls an external diarization service.
type HTTPDiarizer struct {
	url     string
	timeout time.Duration
	client  *http.Client
}

// NewHTTPDiarizer creates a diarizer client for the given service URL.
func NewHTTPDiarizer(url string, timeout time.Duration) *HTTPDiarizer {
	return &HTTPDiarizer{
		url:     url,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}
}

type diarizeRequest struct {
	Segments         []model.Segment `json:"segments"`
	ParticipantHints []string        `json:"participant_hints,omitempty"`
}

// Identify posts the segments to the diarization service.
func (d *HTTPDiarizer) Identify(ctx context.Context, segments []model.Segment, participantHints []string) (*DiarizationResult, error) {
	payload, err := json.Marshal(diarizeRequest{Segments: segments, ParticipantHints: participantHints})
	if err != nil {
		return nil, fmt.Errorf("marshal diarize request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, model.Transportf("diarizer", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, model.Transportf("diarizer", fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, model.ClassifyHTTPStatus("diarizer", resp.StatusCode,
			fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body)))
	}

	var result DiarizationResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, model.Transportf("diarizer", fmt.Errorf("decode response: %w", err))
	}
	return &result, nil
}

// SafeDiarizer wraps a Diarizer so that any internal error degrades to
// the unknown-speaker result instead of propagating.
type SafeDiarizer struct {
	Inner Diarizer
	Log   zerolog.Logger
}

// Identify delegates to the inner diarizer and absorbs its failure.
func (sd *SafeDiarizer) Identify(ctx context.Context, segments []model.Segment, participantHints []string) (*DiarizationResult, error) {
	result, err := sd.Inner.Identify(ctx, segments, participantHints)
	if err != nil {
		sd.Log.Warn().Err(err).Msg("diarization failed, degrading to unknown speaker")
		return UnknownSpeakerResult(segments), nil
	}
	return result, nil
}
