package analyze

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/call-engine/internal/model"
)

// LLMClient implements the Analyzer family against an OpenAI-compatible
// chat-completions gateway. Each method issues one request asking for a
// strict-JSON answer and parses it defensively: the gateway sometimes
// wraps JSON in prose or code fences.
type LLMClient struct {
	url     string
	apiKey  string
	model   string
	timeout time.Duration
	client  *http.Client
	log     zerolog.Logger
}

// NewLLMClient creates a chat-completions analyzer client.
func NewLLMClient(url, apiKey, modelName string, timeout time.Duration, log zerolog.Logger) *LLMClient {
	return &LLMClient{
		url:     url,
		apiKey:  apiKey,
		model:   modelName,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
		log:     log,
	}
}

var _ Analyzer = (*LLMClient)(nil)

// complete sends one chat request and unmarshals the JSON answer into out.
func (c *LLMClient) complete(ctx context.Context, op, prompt string, out any) error {
	reqBody := map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"temperature": 0.0,
	}
	data, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return model.Transportf(op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.Transportf(op, fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return model.ClassifyHTTPStatus(op, resp.StatusCode,
			fmt.Errorf("gateway error (status %d): %s", resp.StatusCode, truncate(string(body), 300)))
	}

	// Try choices[0].message.content first, then any balanced JSON in
	// the raw body.
	if inner := contentFromChoices(body); inner != "" {
		if err := json.Unmarshal([]byte(extractJSON(inner)), out); err == nil {
			return nil
		}
	}
	if fallback := extractJSON(string(body)); fallback != "" {
		if err := json.Unmarshal([]byte(fallback), out); err == nil {
			return nil
		}
	}

	c.log.Warn().Str("op", op).Int("body_len", len(body)).Msg("no parseable JSON in gateway output")
	return model.Transportf(op, fmt.Errorf("no parseable JSON in gateway output"))
}

// contentFromChoices reads the OpenAI-style choices[0].message.content field.
func contentFromChoices(body []byte) string {
	var obj struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &obj); err != nil {
		return ""
	}
	if len(obj.Choices) == 0 {
		return ""
	}
	return obj.Choices[0].Message.Content
}

// extractJSON returns the first balanced JSON object or array in s,
// skipping code fences and surrounding prose. Returns "" if none found.
func extractJSON(s string) string {
	start := -1
	var open, close byte
	for i := 0; i < len(s); i++ {
		if s[i] == '{' || s[i] == '[' {
			start = i
			open = s[i]
			if open == '{' {
				close = '}'
			} else {
				close = ']'
			}
			break
		}
	}
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			if c == '\\' {
				i++
			} else if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// transcriptForPrompt renders the transcript with speaker labels when
// segments carry them, capped to keep prompts bounded.
func transcriptForPrompt(req Request) string {
	const maxChars = 24000

	var b strings.Builder
	if len(req.Segments) > 0 && req.Segments[0].SpeakerID != "" {
		for _, seg := range req.Segments {
			label := seg.SpeakerLabel
			if label == "" {
				label = seg.SpeakerID
			}
			fmt.Fprintf(&b, "[%s] %s\n", label, seg.Text)
		}
	} else {
		b.WriteString(req.Transcript)
	}

	out := b.String()
	if len(out) > maxChars {
		out = out[:maxChars]
	}
	return out
}

func (c *LLMClient) Summarize(ctx context.Context, req Request, typ model.SummaryType) (*model.Summary, error) {
	style := "2-3 sentences"
	switch typ {
	case model.SummaryDetailed:
		style = "a detailed paragraph covering every topic discussed"
	case model.SummaryBullets:
		style = "5-8 bullet points"
	}

	prompt := fmt.Sprintf(
		"Summarize this %s transcript as %s.%s\nRespond with JSON only: {\"summary\": string, \"confidence\": number between 0 and 1}\n\nTranscript:\n%s",
		req.SourceType, style, contextLine(req), transcriptForPrompt(req))

	var out struct {
		Summary    string  `json:"summary"`
		Confidence float64 `json:"confidence"`
	}
	if err := c.complete(ctx, "summarize", prompt, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.Summary) == "" {
		return nil, model.Transportf("summarize", fmt.Errorf("empty summary in gateway output"))
	}

	return &model.Summary{
		RecordingID: req.RecordingID,
		Type:        typ,
		Text:        strings.TrimSpace(out.Summary),
		Provider:    c.model,
		Confidence:  out.Confidence,
	}, nil
}

func (c *LLMClient) ExtractActionItems(ctx context.Context, req Request) ([]model.ActionItem, error) {
	prompt := fmt.Sprintf(
		"Extract follow-up action items from this %s transcript.%s\nRespond with JSON only: {\"items\": [{\"title\": string, \"description\": string, \"assignee_hint\": string, \"due_date_hint\": string (RFC 3339 date or empty), \"priority\": \"low\"|\"medium\"|\"high\", \"confidence\": number}]}\nReturn an empty items array if there are none.\n\nTranscript:\n%s",
		req.SourceType, contextLine(req), transcriptForPrompt(req))

	var out struct {
		Items []struct {
			Title        string  `json:"title"`
			Description  string  `json:"description"`
			AssigneeHint string  `json:"assignee_hint"`
			DueDateHint  string  `json:"due_date_hint"`
			Priority     string  `json:"priority"`
			Confidence   float64 `json:"confidence"`
		} `json:"items"`
	}
	if err := c.complete(ctx, "action_items", prompt, &out); err != nil {
		return nil, err
	}

	items := make([]model.ActionItem, 0, len(out.Items))
	for _, it := range out.Items {
		if strings.TrimSpace(it.Title) == "" {
			continue
		}
		item := model.ActionItem{
			RecordingID:  req.RecordingID,
			Title:        strings.TrimSpace(it.Title),
			Description:  it.Description,
			AssigneeHint: it.AssigneeHint,
			Priority:     parsePriority(it.Priority),
			Confidence:   it.Confidence,
		}
		if it.DueDateHint != "" {
			if due, err := time.Parse("2006-01-02", it.DueDateHint); err == nil {
				item.DueDateHint = &due
			} else if due, err := time.Parse(time.RFC3339, it.DueDateHint); err == nil {
				item.DueDateHint = &due
			}
		}
		items = append(items, item)
	}
	return items, nil
}

func parsePriority(s string) model.Priority {
	switch model.Priority(strings.ToLower(s)) {
	case model.PriorityLow:
		return model.PriorityLow
	case model.PriorityHigh:
		return model.PriorityHigh
	default:
		return model.PriorityMedium
	}
}

func (c *LLMClient) AnalyzeSentiment(ctx context.Context, req Request) (*model.SentimentAnalysis, error) {
	prompt := fmt.Sprintf(
		"Analyze the sentiment of this %s transcript.%s\nRespond with JSON only: {\"overall\": \"positive\"|\"neutral\"|\"negative\", \"score\": number between -1 and 1, \"per_speaker\": {speaker: score}, \"timeline\": [{\"start\": seconds, \"end\": seconds, \"score\": number}]}\n\nTranscript:\n%s",
		req.SourceType, contextLine(req), transcriptForPrompt(req))

	var out struct {
		Overall    string                `json:"overall"`
		Score      float64               `json:"score"`
		PerSpeaker map[string]float64    `json:"per_speaker"`
		Timeline   []model.SentimentSpan `json:"timeline"`
	}
	if err := c.complete(ctx, "sentiment", prompt, &out); err != nil {
		return nil, err
	}

	overall := model.SentimentLabel(strings.ToLower(out.Overall))
	switch overall {
	case model.SentimentPositive, model.SentimentNeutral, model.SentimentNegative:
	default:
		overall = model.SentimentNeutral
	}

	return &model.SentimentAnalysis{
		RecordingID: req.RecordingID,
		Overall:     overall,
		Score:       clamp(out.Score, -1, 1),
		PerSpeaker:  out.PerSpeaker,
		Timeline:    out.Timeline,
	}, nil
}

func (c *LLMClient) DetectKeyMoments(ctx context.Context, req Request) ([]model.KeyMoment, error) {
	prompt := fmt.Sprintf(
		"Identify key moments in this %s transcript (questions, objections, pricing discussions, next steps, commitments, highlights).%s\nRespond with JSON only: {\"moments\": [{\"type\": \"question\"|\"objection\"|\"pricing\"|\"next_steps\"|\"commitment\"|\"highlight\", \"label\": string, \"start\": seconds, \"end\": seconds}]}\n\nTranscript:\n%s",
		req.SourceType, contextLine(req), transcriptForPrompt(req))

	var out struct {
		Moments []struct {
			Type  string  `json:"type"`
			Label string  `json:"label"`
			Start float64 `json:"start"`
			End   float64 `json:"end"`
		} `json:"moments"`
	}
	if err := c.complete(ctx, "key_moments", prompt, &out); err != nil {
		return nil, err
	}

	moments := make([]model.KeyMoment, 0, len(out.Moments))
	for _, m := range out.Moments {
		typ := model.KeyMomentType(strings.ToLower(m.Type))
		switch typ {
		case model.MomentQuestion, model.MomentObjection, model.MomentPricing,
			model.MomentNextSteps, model.MomentCommitment, model.MomentHighlight:
		default:
			typ = model.MomentHighlight
		}
		moments = append(moments, model.KeyMoment{
			RecordingID: req.RecordingID,
			Type:        typ,
			Label:       m.Label,
			Start:       m.Start,
			End:         m.End,
			AIDetected:  true,
		})
	}
	return moments, nil
}

func (c *LLMClient) ScoreCall(ctx context.Context, req Request) (*model.CallScore, error) {
	prompt := fmt.Sprintf(
		"Score this %s on overall quality.%s\nRespond with JSON only: {\"composite\": 0-100, \"talk_listen_ratio\": 0-100, \"engagement\": 0-100, \"sentiment_score\": 0-100, \"next_steps_score\": 0-100, \"tips\": [string]}\n\nTranscript:\n%s",
		req.SourceType, contextLine(req), transcriptForPrompt(req))

	var out struct {
		Composite       float64  `json:"composite"`
		TalkListenRatio float64  `json:"talk_listen_ratio"`
		Engagement      float64  `json:"engagement"`
		SentimentScore  float64  `json:"sentiment_score"`
		NextStepsScore  float64  `json:"next_steps_score"`
		Tips            []string `json:"tips"`
	}
	if err := c.complete(ctx, "call_score", prompt, &out); err != nil {
		return nil, err
	}

	return &model.CallScore{
		RecordingID:     req.RecordingID,
		Composite:       clamp(out.Composite, 0, 100),
		TalkListenRatio: clamp(out.TalkListenRatio, 0, 100),
		Engagement:      clamp(out.Engagement, 0, 100),
		SentimentScore:  clamp(out.SentimentScore, 0, 100),
		NextStepsScore:  clamp(out.NextStepsScore, 0, 100),
		Tips:            out.Tips,
	}, nil
}

func (c *LLMClient) Categorize(ctx context.Context, req Request) ([]model.CategoryAssignment, error) {
	prompt := fmt.Sprintf(
		"Classify this %s transcript into 1-3 categories (short lowercase labels like \"sales\", \"support\", \"renewal\", \"demo\").%s\nRespond with JSON only: {\"categories\": [{\"name\": string, \"confidence\": number between 0 and 1}]}\n\nTranscript:\n%s",
		req.SourceType, contextLine(req), transcriptForPrompt(req))

	var out struct {
		Categories []struct {
			Name       string  `json:"name"`
			Confidence float64 `json:"confidence"`
		} `json:"categories"`
	}
	if err := c.complete(ctx, "categorize", prompt, &out); err != nil {
		return nil, err
	}

	assignments := make([]model.CategoryAssignment, 0, len(out.Categories))
	for _, cat := range out.Categories {
		name := strings.ToLower(strings.TrimSpace(cat.Name))
		if name == "" {
			continue
		}
		assignments = append(assignments, model.CategoryAssignment{
			RecordingID:      req.RecordingID,
			CategoryID:       CategoryID(name),
			Category:         name,
			IsAutoClassified: true,
			Confidence:       cat.Confidence,
		})
	}
	return assignments, nil
}

func contextLine(req Request) string {
	if req.BusinessContext == "" {
		return ""
	}
	return " Context: " + req.BusinessContext + "."
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
