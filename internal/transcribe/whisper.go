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

// WhisperClient calls an OpenAI-compatible /v1/audio/transcriptions
// endpoint. Implements the Provider interface.
type WhisperClient struct {
	url     string
	model   string
	timeout time.Duration
	client  *http.Client
}

// whisperResponse is the parsed verbose_json response.
type whisperResponse struct {
	Text     string           `json:"text"`
	Language string           `json:"language"`
	Duration float64          `json:"duration"`
	Words    []whisperWord    `json:"words"`
	Segments []whisperSegment `json:"segments"`
}

type whisperWord struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type whisperSegment struct {
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Text       string  `json:"text"`
	AvgLogprob float64 `json:"avg_logprob"`
}

// NewWhisperClient creates a new Whisper HTTP client.
func NewWhisperClient(url, modelName string, timeout time.Duration) *WhisperClient {
	return &WhisperClient{
		url:     url,
		model:   modelName,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}
}

// Name returns the provider name.
func (wc *WhisperClient) Name() string { return "whisper" }

// Model returns the configured model identifier.
func (wc *WhisperClient) Model() string { return wc.model }

// Transcribe sends an audio file to the Whisper API and returns the
// result. Uses multipart/form-data; only non-default parameters are
// sent, so this works with speaches, faster-whisper-server, or any
// OpenAI-compatible endpoint.
func (wc *WhisperClient) Transcribe(ctx context.Context, audioPath string, opts Opts) (*Response, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, model.Contentf("whisper", fmt.Errorf("open audio file: %w", err))
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

	if wc.model != "" {
		w.WriteField("model", wc.model)
	}

	// Omitting language entirely triggers provider-side detection.
	if !opts.DetectLanguage {
		lang := opts.Language
		if lang == "" {
			lang = "en"
		}
		w.WriteField("language", lang)
	}

	w.WriteField("temperature", fmt.Sprintf("%.2f", opts.Temperature))

	// verbose_json for word timestamps and segments
	w.WriteField("response_format", "verbose_json")
	w.WriteField("timestamp_granularities[]", "word")
	w.WriteField("timestamp_granularities[]", "segment")

	if len(opts.VocabularyHints) > 0 {
		w.WriteField("hotwords", strings.Join(opts.VocabularyHints, ","))
	}

	w.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wc.url, &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := wc.client.Do(req)
	if err != nil {
		return nil, model.Transportf("whisper", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, model.Transportf("whisper", fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, model.ClassifyHTTPStatus("whisper", resp.StatusCode,
			fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body)))
	}

	var result whisperResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, model.Transportf("whisper", fmt.Errorf("decode response: %w", err))
	}

	words := make([]model.Word, 0, len(result.Words))
	for _, ww := range result.Words {
		words = append(words, model.Word{Word: ww.Word, Start: ww.Start, End: ww.End})
	}

	var segments []model.Segment
	var confSum float64
	for _, ws := range result.Segments {
		segments = append(segments, model.Segment{
			Start: ws.Start,
			End:   ws.End,
			Text:  strings.TrimSpace(ws.Text),
		})
		confSum += logprobToConfidence(ws.AvgLogprob)
	}

	confidence := 0.0
	if len(result.Segments) > 0 {
		confidence = confSum / float64(len(result.Segments))
	}

	return &Response{
		Text:         strings.TrimSpace(result.Text),
		Language:     result.Language,
		DurationSecs: result.Duration,
		Confidence:   confidence,
		Words:        words,
		Segments:     segments,
	}, nil
}

// logprobToConfidence maps whisper's avg_logprob (typically -1..0) to
// a rough 0..1 confidence.
func logprobToConfidence(lp float64) float64 {
	c := 1 + lp
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
