package audio

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/snarg/call-engine/internal/model"
)

func TestLocalDirSource_Fetch(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "calls")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sub, "a.wav"), []byte("audio"), 0o644); err != nil {
		t.Fatal(err)
	}

	src := &LocalDirSource{Dir: dir}

	path, cleanup, err := src.Fetch(context.Background(), "calls/a.wav")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	cleanup()
	if path != filepath.Join(dir, "calls", "a.wav") {
		t.Errorf("path = %q", path)
	}
}

func TestLocalDirSource_MissingIsContentError(t *testing.T) {
	src := &LocalDirSource{Dir: t.TempDir()}
	_, _, err := src.Fetch(context.Background(), "nope.wav")
	if !model.IsContent(err) {
		t.Errorf("err = %v, want content-class", err)
	}
}

func TestLocalDirSource_RejectsEscapingKeys(t *testing.T) {
	src := &LocalDirSource{Dir: t.TempDir()}
	for _, key := range []string{"../etc/passwd", "/etc/passwd", ".."} {
		if _, _, err := src.Fetch(context.Background(), key); !model.IsContent(err) {
			t.Errorf("Fetch(%q) = %v, want content-class rejection", key, err)
		}
	}
}
