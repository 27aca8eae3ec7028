package transcribe

import (
	"context"
	"testing"

	"github.com/snarg/call-engine/internal/model"
)

func TestRegistry_Get(t *testing.T) {
	r := NewRegistry()
	r.Register(&StubProvider{})

	p, err := r.Get("stub")
	if err != nil {
		t.Fatalf("Get(stub) error: %v", err)
	}
	if p.Name() != "stub" {
		t.Errorf("provider name = %q, want stub", p.Name())
	}
}

func TestRegistry_UnknownProviderFailsFast(t *testing.T) {
	r := NewRegistry()
	r.Register(&StubProvider{})

	_, err := r.Get("assemblyai")
	if err == nil {
		t.Fatal("Get on unknown provider should fail, not fall back")
	}
	if !model.IsContent(err) {
		t.Errorf("unknown provider error should be content-class (not retryable), got %v", err)
	}
}

func TestRegistry_Names(t *testing.T) {
	r := NewRegistry()
	r.Register(&StubProvider{})
	r.Register(NewWhisperClient("http://localhost:8000/v1/audio/transcriptions", "large-v3", 0))

	names := r.Names()
	if len(names) != 2 || names[0] != "stub" || names[1] != "whisper" {
		t.Errorf("Names() = %v, want [stub whisper]", names)
	}
}

func TestStubProvider_WordTimings(t *testing.T) {
	p := &StubProvider{Text: "one two three"}
	resp, err := p.Transcribe(context.Background(), "ignored.wav", Opts{})
	if err != nil {
		t.Fatalf("Transcribe error: %v", err)
	}
	if len(resp.Words) != 3 {
		t.Fatalf("words = %d, want 3", len(resp.Words))
	}
	for i := 1; i < len(resp.Words); i++ {
		if resp.Words[i].Start <= resp.Words[i-1].Start {
			t.Errorf("word %d start %f not after word %d start %f",
				i, resp.Words[i].Start, i-1, resp.Words[i-1].Start)
		}
	}
	if resp.DurationSecs != resp.Words[2].End {
		t.Errorf("duration = %f, want %f", resp.DurationSecs, resp.Words[2].End)
	}
}
