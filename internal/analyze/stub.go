package analyze

import (
	"context"
	"strings"

	"github.com/snarg/call-engine/internal/model"
)

// StubAnalyzer produces deterministic canned artifacts without a
// gateway. Used in dev mode and tests.
type StubAnalyzer struct{}

var _ Analyzer = (*StubAnalyzer)(nil)

func (StubAnalyzer) Summarize(_ context.Context, req Request, typ model.SummaryType) (*model.Summary, error) {
	text := req.Transcript
	if len(text) > 120 {
		text = text[:120] + "..."
	}
	return &model.Summary{
		RecordingID: req.RecordingID,
		Type:        typ,
		Text:        "Summary: " + text,
		Provider:    "stub",
		Confidence:  0.9,
	}, nil
}

func (StubAnalyzer) ExtractActionItems(_ context.Context, req Request) ([]model.ActionItem, error) {
	if !strings.Contains(strings.ToLower(req.Transcript), "follow") {
		return []model.ActionItem{}, nil
	}
	return []model.ActionItem{{
		RecordingID: req.RecordingID,
		Title:       "Follow up on the discussed items",
		Priority:    model.PriorityMedium,
		Confidence:  0.8,
	}}, nil
}

func (StubAnalyzer) AnalyzeSentiment(_ context.Context, req Request) (*model.SentimentAnalysis, error) {
	return &model.SentimentAnalysis{
		RecordingID: req.RecordingID,
		Overall:     model.SentimentNeutral,
		Score:       0.1,
	}, nil
}

func (StubAnalyzer) DetectKeyMoments(_ context.Context, req Request) ([]model.KeyMoment, error) {
	if req.DurationSecs <= 0 {
		return []model.KeyMoment{}, nil
	}
	return []model.KeyMoment{{
		RecordingID: req.RecordingID,
		Type:        model.MomentHighlight,
		Label:       "Opening",
		Start:       0,
		End:         req.DurationSecs / 10,
		AIDetected:  true,
	}}, nil
}

func (StubAnalyzer) ScoreCall(_ context.Context, req Request) (*model.CallScore, error) {
	return &model.CallScore{
		RecordingID:     req.RecordingID,
		Composite:       72,
		TalkListenRatio: 60,
		Engagement:      75,
		SentimentScore:  70,
		NextStepsScore:  80,
		Tips:            []string{"Confirm next steps before ending the call"},
	}, nil
}

func (StubAnalyzer) Categorize(_ context.Context, req Request) ([]model.CategoryAssignment, error) {
	name := "general"
	if req.SourceType == model.SourcePhoneCall {
		name = "sales"
	}
	return []model.CategoryAssignment{{
		RecordingID:      req.RecordingID,
		CategoryID:       CategoryID(name),
		Category:         name,
		IsAutoClassified: true,
		Confidence:       0.7,
	}}, nil
}
