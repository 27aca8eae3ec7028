package audio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/snarg/call-engine/internal/model"
)

// Source resolves a recording's audio key to a local file path the
// transcription providers can read. The cleanup func removes any
// temporary copy; it is always safe to call.
type Source interface {
	Fetch(ctx context.Context, audioKey string) (path string, cleanup func(), err error)
}

// LocalDirSource serves audio stored under a directory on the local
// filesystem.
type LocalDirSource struct {
	Dir string
}

// Fetch resolves audioKey under the configured directory. Path escapes
// and missing files are content-class errors: retrying won't make the
// file appear.
func (s *LocalDirSource) Fetch(_ context.Context, audioKey string) (string, func(), error) {
	noop := func() {}

	clean := filepath.Clean(audioKey)
	if filepath.IsAbs(clean) || clean == ".." || len(clean) >= 3 && clean[:3] == ".."+string(filepath.Separator) {
		return "", noop, model.Contentf("audio", fmt.Errorf("invalid audio key %q", audioKey))
	}

	full := filepath.Join(s.Dir, clean)
	if _, err := os.Stat(full); err != nil {
		return "", noop, model.Contentf("audio", fmt.Errorf("audio file not found: %s", audioKey))
	}
	return full, noop, nil
}
