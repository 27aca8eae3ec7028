package analyze

import (
	"context"

	"github.com/google/uuid"
	"github.com/snarg/call-engine/internal/model"
)

// Request carries the transcript and its context into an analysis
// sub-step. Segments and business context are optional.
type Request struct {
	RecordingID  uuid.UUID
	SourceType   model.SourceType
	Transcript   string
	Segments     []model.Segment
	Participants []string
	DurationSecs float64

	// BusinessContext is a short free-text blurb about the linked CRM
	// entities (contact, lead, opportunity), when available.
	BusinessContext string
}

// Analyzer is the family of conversation analysis capabilities. Each
// method wraps one provider call; the orchestrator invokes and
// evaluates them independently.
type Analyzer interface {
	Summarize(ctx context.Context, req Request, typ model.SummaryType) (*model.Summary, error)
	ExtractActionItems(ctx context.Context, req Request) ([]model.ActionItem, error)
	AnalyzeSentiment(ctx context.Context, req Request) (*model.SentimentAnalysis, error)
	DetectKeyMoments(ctx context.Context, req Request) ([]model.KeyMoment, error)
	ScoreCall(ctx context.Context, req Request) (*model.CallScore, error)
	Categorize(ctx context.Context, req Request) ([]model.CategoryAssignment, error)
}

// CategoryID derives a stable category id from its name so repeated
// classification runs assign the same id without a category table
// round-trip.
func CategoryID(name string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("category:"+name))
}
