package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dyparkkk-lg/meeting-ai/internal/model"
)

// Ollama talks to an Ollama server through its OpenAI-compatible chat
// completions endpoint.
type Ollama struct {
	baseURL string
	model   string
	apiKey  string
	httpc   *http.Client
	log     *logrus.Logger
}

var _ Analyzer = (*Ollama)(nil)

// NewOllama constructs the Ollama-backed analyzer. The HTTP client
// carries a bounded timeout so a hung model call cannot occupy a worker
// slot forever.
func NewOllama(baseURL, mdl, apiKey string, log *logrus.Logger) *Ollama {
	return &Ollama{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   mdl,
		apiKey:  apiKey,
		httpc:   &http.Client{Timeout: 5 * time.Minute},
		log:     log,
	}
}

// Name identifies the provider in logs and stored metadata.
func (o *Ollama) Name() string { return "ollama" }

// Analyze sends the transcript to the model and defensively parses the
// reply. Transport and upstream failures are returned for the scheduler
// to retry; a malformed reply is recovered locally.
func (o *Ollama) Analyze(ctx context.Context, transcript string, opts Options) (model.AnalysisResult, error) {
	language := opts.Language
	if language == "" {
		language = "en"
	}
	content, err := o.chat(ctx, systemPrompt(language), userPrompt(transcript, opts.MeetingTitle))
	if err != nil {
		return model.AnalysisResult{}, err
	}
	result := parseAnalysis(content)
	o.log.WithFields(logrus.Fields{
		"summaries": len(result.OverallSummary),
		"actions":   len(result.ActionItems),
	}).Info("analysis completed")
	return result, nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (o *Ollama) chat(ctx context.Context, system, user string) (string, error) {
	payload := chatRequest{
		Model: o.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: 0.3,
		MaxTokens:   4096,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode chat request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/v1/chat/completions", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if o.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.apiKey)
	}
	resp, err := o.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("call %s: %w", o.Name(), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return "", &UpstreamError{Provider: o.Name(), Status: resp.StatusCode, Body: string(b)}
	}
	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if len(cr.Choices) == 0 {
		return "", nil
	}
	return cr.Choices[0].Message.Content, nil
}

func systemPrompt(language string) string {
	return fmt.Sprintf(`You are an expert meeting-minutes analyst. Analyze the
given meeting transcript and return the result as structured JSON.

Produce:
1. overallSummary: 3-5 sentences covering the core of the meeting
2. decisions: decisions reached, each with supporting evidence
3. actionItems: tasks to perform, with assignee, due date and priority
4. risks: identified risks or concerns
5. openQuestions: questions the meeting left unresolved

Output format (JSON only):
{
  "overallSummary": ["..."],
  "decisions": [{"decision": "...", "evidence": [{"startMs": 0, "endMs": 5000, "quote": "..."}]}],
  "actionItems": [{"task": "...", "assigneeCandidate": "name or null", "dueDate": "YYYY-MM-DD or null", "priority": "P0|P1|P2|P3", "evidence": []}],
  "risks": [{"description": "...", "severity": "high|medium|low", "evidence": []}],
  "openQuestions": [{"question": "...", "evidence": []}]
}

Rules:
- Output valid JSON only, no other text.
- Write in language: %s
- Use transcript timestamps for evidence startMs/endMs when available, otherwise 0.
- priority ranks: P0 (urgent), P1 (high), P2 (normal), P3 (low).
- Mark uncertain values as null.`, language)
}

func userPrompt(transcript, title string) string {
	if title == "" {
		title = "Meeting"
	}
	return fmt.Sprintf("## Meeting title: %s\n\n## Transcript:\n%s\n\nAnalyze the meeting above and return the result as JSON.", title, transcript)
}

var fencedBlock = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// parseAnalysis extracts and normalizes the JSON block a model reply is
// expected to contain. It never fails: missing or malformed fields get
// safe defaults and a completely unparseable reply yields a minimal
// non-empty result describing the failure.
func parseAnalysis(response string) model.AnalysisResult {
	jsonStr := response
	if m := fencedBlock.FindStringSubmatch(response); m != nil {
		jsonStr = strings.TrimSpace(m[1])
	}
	if start, end := strings.Index(jsonStr, "{"), strings.LastIndex(jsonStr, "}"); start >= 0 && end > start {
		jsonStr = jsonStr[start : end+1]
	}

	var parsed map[string]any
	if err := json.Unmarshal([]byte(jsonStr), &parsed); err != nil {
		return fallbackResult()
	}
	return model.AnalysisResult{
		OverallSummary: toStringSlice(parsed["overallSummary"]),
		Decisions:      toDecisions(parsed["decisions"]),
		ActionItems:    toActionItems(parsed["actionItems"]),
		Risks:          toRisks(parsed["risks"]),
		OpenQuestions:  toOpenQuestions(parsed["openQuestions"]),
	}
}

func fallbackResult() model.AnalysisResult {
	return model.AnalysisResult{
		OverallSummary: []string{"Automatic analysis failed: the model response could not be parsed."},
		Decisions:      []model.Decision{},
		ActionItems:    []model.ActionItem{},
		Risks:          []model.Risk{},
		OpenQuestions:  []model.OpenQuestion{},
	}
}

func toStringSlice(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, toString(item))
	}
	return out
}

func toDecisions(v any) []model.Decision {
	items, ok := v.([]any)
	if !ok {
		return []model.Decision{}
	}
	out := make([]model.Decision, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, model.Decision{
			Decision: toString(obj["decision"]),
			Evidence: toEvidence(obj["evidence"]),
		})
	}
	return out
}

func toActionItems(v any) []model.ActionItem {
	items, ok := v.([]any)
	if !ok {
		return []model.ActionItem{}
	}
	out := make([]model.ActionItem, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, model.ActionItem{
			Task:     toString(obj["task"]),
			Assignee: toOptionalString(obj["assigneeCandidate"]),
			DueDate:  toOptionalString(obj["dueDate"]),
			Priority: normalizePriority(obj["priority"]),
			Evidence: toEvidence(obj["evidence"]),
		})
	}
	return out
}

func toRisks(v any) []model.Risk {
	items, ok := v.([]any)
	if !ok {
		return []model.Risk{}
	}
	out := make([]model.Risk, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, model.Risk{
			Description: toString(obj["description"]),
			Severity:    normalizeSeverity(obj["severity"]),
			Evidence:    toEvidence(obj["evidence"]),
		})
	}
	return out
}

func toOpenQuestions(v any) []model.OpenQuestion {
	items, ok := v.([]any)
	if !ok {
		return []model.OpenQuestion{}
	}
	out := make([]model.OpenQuestion, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, model.OpenQuestion{
			Question: toString(obj["question"]),
			Evidence: toEvidence(obj["evidence"]),
		})
	}
	return out
}

func toEvidence(v any) []model.Evidence {
	items, ok := v.([]any)
	if !ok {
		return []model.Evidence{}
	}
	out := make([]model.Evidence, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, model.Evidence{
			StartMs: toInt64(obj["startMs"]),
			EndMs:   toInt64(obj["endMs"]),
			Quote:   toString(obj["quote"]),
		})
	}
	return out
}

func normalizePriority(v any) string {
	p := strings.ToUpper(strings.TrimSpace(toString(v)))
	if model.ValidPriority(p) {
		return p
	}
	return model.PriorityP2
}

func normalizeSeverity(v any) string {
	s := strings.ToLower(strings.TrimSpace(toString(v)))
	if model.ValidSeverity(s) {
		return s
	}
	return model.SeverityMedium
}

func toString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", s)
	}
}

func toOptionalString(v any) *string {
	s, ok := v.(string)
	if !ok || s == "" {
		return nil
	}
	return &s
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case json.Number:
		i, _ := n.Int64()
		return i
	default:
		return 0
	}
}
