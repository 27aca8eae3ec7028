package transcribe

import (
	"context"
	"strings"

	"github.com/snarg/call-engine/internal/model"
)

// StubProvider returns a canned transcript without touching any
// network. Used in dev mode and tests.
type StubProvider struct {
	Text string
}

// Name returns the provider name.
func (s *StubProvider) Name() string { return "stub" }

// Model returns the stub model identifier.
func (s *StubProvider) Model() string { return "stub-v1" }

// Transcribe fabricates a response from the configured text, spacing
// the words half a second apart.
func (s *StubProvider) Transcribe(_ context.Context, _ string, opts Opts) (*Response, error) {
	text := s.Text
	if text == "" {
		text = "Hello, thanks for taking the call today. Let's review the proposal."
	}

	fields := strings.Fields(text)
	words := make([]model.Word, len(fields))
	for i, f := range fields {
		words[i] = model.Word{
			Word:  f,
			Start: float64(i) * 0.5,
			End:   float64(i)*0.5 + 0.4,
		}
	}

	var duration float64
	if len(words) > 0 {
		duration = words[len(words)-1].End
	}

	lang := opts.Language
	if lang == "" {
		lang = "en"
	}

	return &Response{
		Text:         text,
		Language:     lang,
		DurationSecs: duration,
		Confidence:   0.99,
		Words:        words,
		Segments: []model.Segment{
			{Start: 0, End: duration, Text: text},
		},
	}, nil
}
