package transcribe

import (
	"context"
	"fmt"
	"sort"

	"github.com/snarg/call-engine/internal/model"
)

// Provider is the interface for speech-to-text backends.
type Provider interface {
	Transcribe(ctx context.Context, audioPath string, opts Opts) (*Response, error)
	Name() string  // "whisper", "elevenlabs"
	Model() string // model identifier for DB/logs
}

// Opts are per-request transcription options assembled from the
// owner's settings.
type Opts struct {
	Language        string // empty with DetectLanguage lets the provider decide
	DetectLanguage  bool
	VocabularyHints []string // custom vocabulary boost terms
	DiarizationHint bool     // caller intends to diarize the segments
	Temperature     float64
}

// Response is the common transcription result from any provider.
type Response struct {
	Text         string
	Language     string
	DurationSecs float64
	Confidence   float64
	Words        []model.Word
	Segments     []model.Segment // nil if provider doesn't segment
}

// Registry maps provider names to implementations. Unknown names fail
// fast — there is no silent fallback to a default provider.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds a provider under its own name.
func (r *Registry) Register(p Provider) {
	r.providers[p.Name()] = p
}

// Get returns the named provider. An unknown name is a content-class
// error: retrying won't make the provider appear.
func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, model.Contentf("provider registry",
			fmt.Errorf("unknown transcription provider %q (registered: %v)", name, r.Names()))
	}
	return p, nil
}

// Names returns the registered provider names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for n := range r.providers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
