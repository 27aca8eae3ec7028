package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/snarg/call-engine/internal/model"
)

const elevenLabsSTTEndpoint = "https://api.elevenlabs.io/v1/speech-to-text"

// ElevenLabsClient calls the ElevenLabs Speech-to-Text API.
// Implements the Provider interface.
type ElevenLabsClient struct {
	apiKey  string
	model   string // "scribe_v1" or "scribe_v2"
	timeout time.Duration
	client  *http.Client
}

// elevenlabsResponse is the JSON response from the ElevenLabs STT API.
type elevenlabsResponse struct {
	LanguageCode        string           `json:"language_code"`
	LanguageProbability float64          `json:"language_probability"`
	Text                string           `json:"text"`
	Words               []elevenlabsWord `json:"words"`
}

// elevenlabsWord is a word or spacing entry from ElevenLabs.
type elevenlabsWord struct {
	Text        string  `json:"text"`
	Type        string  `json:"type"` // "word" or "spacing"
	StartTimeMs float64 `json:"start_time_ms"`
	EndTimeMs   float64 `json:"end_time_ms"`
	SpeakerID   string  `json:"speaker_id"`
}

// NewElevenLabsClient creates a new ElevenLabs STT client.
func NewElevenLabsClient(apiKey, modelName string, timeout time.Duration) *ElevenLabsClient {
	return &ElevenLabsClient{
		apiKey:  apiKey,
		model:   modelName,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}
}

// Name returns the provider name.
func (el *ElevenLabsClient) Name() string { return "elevenlabs" }

// Model returns the configured model identifier.
func (el *ElevenLabsClient) Model() string { return el.model }

// Transcribe sends an audio file to the ElevenLabs STT API and returns
// the result.
func (el *ElevenLabsClient) Transcribe(ctx context.Context, audioPath string, opts Opts) (*Response, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, model.Contentf("elevenlabs", fmt.Errorf("open audio file: %w", err))
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("copy audio data: %w", err)
	}

	w.WriteField("model_id", el.model)

	if !opts.DetectLanguage {
		lang := opts.Language
		if lang == "" {
			lang = "en"
		}
		w.WriteField("language_code", lang)
	}

	w.WriteField("timestamps_granularity", "word")

	if opts.DiarizationHint {
		w.WriteField("diarize", "true")
	}

	if keyterms := buildKeyterms(opts.VocabularyHints); keyterms != "" {
		w.WriteField("keyterms", keyterms)
	}

	w.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, elevenLabsSTTEndpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("xi-api-key", el.apiKey)

	resp, err := el.client.Do(req)
	if err != nil {
		return nil, model.Transportf("elevenlabs", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, model.Transportf("elevenlabs", fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, model.ClassifyHTTPStatus("elevenlabs", resp.StatusCode,
			fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body)))
	}

	var result elevenlabsResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, model.Transportf("elevenlabs", fmt.Errorf("decode response: %w", err))
	}

	// Convert to common words, filtering out spacing entries. When the
	// provider diarized, fold consecutive same-speaker words into
	// speaker-labeled segments.
	var words []model.Word
	var segments []model.Segment
	var cur *model.Segment
	for _, ew := range result.Words {
		if ew.Type != "word" {
			continue
		}
		start := ew.StartTimeMs / 1000.0
		end := ew.EndTimeMs / 1000.0
		words = append(words, model.Word{Word: ew.Text, Start: start, End: end})

		if cur == nil || cur.SpeakerID != ew.SpeakerID {
			if cur != nil {
				segments = append(segments, *cur)
			}
			cur = &model.Segment{Start: start, End: end, Text: ew.Text, SpeakerID: ew.SpeakerID}
		} else {
			cur.End = end
			cur.Text += " " + ew.Text
		}
	}
	if cur != nil {
		segments = append(segments, *cur)
	}

	var durationSecs float64
	if len(words) > 0 {
		durationSecs = words[len(words)-1].End
	}

	return &Response{
		Text:         strings.TrimSpace(result.Text),
		Language:     result.LanguageCode,
		DurationSecs: durationSecs,
		Confidence:   result.LanguageProbability,
		Words:        words,
		Segments:     segments,
	}, nil
}

// buildKeyterms renders vocabulary hints as the JSON array of
// {"text": term} objects the ElevenLabs API expects.
func buildKeyterms(hints []string) string {
	var terms []string
	for _, t := range hints {
		t = strings.TrimSpace(t)
		if t != "" {
			terms = append(terms, t)
		}
	}
	if len(terms) == 0 {
		return ""
	}

	type keyterm struct {
		Text string `json:"text"`
	}
	arr := make([]keyterm, len(terms))
	for i, t := range terms {
		arr[i] = keyterm{Text: t}
	}
	b, _ := json.Marshal(arr)
	return string(b)
}
