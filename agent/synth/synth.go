// Copyright 2026 The Sideline Authors
// SPDX-License-Identifier: Apache-2.0

// Package synth turns accumulated evidence into talking-point
// suggestions with an OpenAI-compatible chat-completions endpoint
// (OpenAI, OpenRouter, vLLM, Ollama, llama.cpp all speak this format).
// When the model misbehaves, callers fall back to [Fallback] rather
// than dropping the turn.
package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sideline-ai/sideline/agent"
	"github.com/sideline-ai/sideline/schema"
)

// AgentName is the synthesizer's name in status broadcasts, provenance
// envelopes, and suggestion attribution.
const AgentName = "synthesis"

// maxSuggestions caps one turn's output. More than three talking
// points at once is noise for someone mid-conversation.
const maxSuggestions = 3

const systemPrompt = `You are a real-time meeting copilot. Given evidence about companies and people mentioned in a live conversation, plus the transcript so far, propose up to three concise talking points the user could raise next.

Respond with a single JSON object, no prose, in this shape:
{"suggestions": [{"talkingPoint": "...", "context": "why this is worth raising", "confidenceScore": 0.0, "source": "which evidence this draws on", "type": "insight"}], "confidence": 0.0}`

// Config configures the synthesizer client.
type Config struct {
	// BaseURL is the API root, e.g. "https://api.openai.com". The
	// chat-completions path is appended.
	BaseURL string

	// APIKey is sent as a bearer token when non-empty.
	APIKey string

	// Model is the model name for the request. Defaults to
	// "gpt-4o-mini".
	Model string

	// MaxTokens bounds the completion. Defaults to 1024.
	MaxTokens int

	// HTTPClient performs the request. Defaults to a client with a 30s
	// timeout.
	HTTPClient *http.Client

	// Logger receives request diagnostics. Defaults to discard.
	Logger *slog.Logger
}

// Client is the LLM-backed synthesizer.
type Client struct {
	cfg Config
}

// New returns a synthesizer client. BaseURL is required.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("synth: config requires a base URL")
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1024
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Client{cfg: cfg}, nil
}

// Synthesize asks the model for talking points grounded in evidence
// and the transcript so far.
func (c *Client) Synthesize(ctx context.Context, sessionID string, evidence agent.Evidence, transcript string) (*agent.Synthesis, error) {
	userPrompt, err := buildUserPrompt(evidence, transcript)
	if err != nil {
		return nil, err
	}

	wire := chatRequest{
		Model:     c.cfg.Model,
		MaxTokens: c.cfg.MaxTokens,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
	}
	content, err := c.complete(ctx, wire)
	if err != nil {
		return nil, err
	}

	parsed, err := parseSuggestions(content)
	if err != nil {
		return nil, err
	}

	synthesis := &agent.Synthesis{Confidence: parsed.Confidence}
	for i, raw := range parsed.Suggestions {
		if i == maxSuggestions {
			break
		}
		if raw.TalkingPoint == "" {
			continue
		}
		kind := raw.Type
		if kind == "" {
			kind = "insight"
		}
		synthesis.Suggestions = append(synthesis.Suggestions, schema.Suggestion{
			ID:              uuid.NewString(),
			TalkingPoint:    raw.TalkingPoint,
			Context:         raw.Context,
			ConfidenceScore: clamp01(raw.ConfidenceScore),
			Source:          raw.Source,
			AgentName:       AgentName,
			Type:            kind,
			Provenance:      "llm",
		})
		synthesis.Sources = append(synthesis.Sources, raw.Source)
	}
	if len(synthesis.Suggestions) == 0 {
		return nil, fmt.Errorf("synth: model returned no usable suggestions")
	}
	if synthesis.Confidence <= 0 || synthesis.Confidence > 1 {
		synthesis.Confidence = averageConfidence(synthesis.Suggestions)
	}
	return synthesis, nil
}

// Fallback is the labeled generic suggestion emitted when synthesis
// fails: the turn still produces something, visibly marked as not
// evidence-backed.
func Fallback() schema.Suggestion {
	return schema.Suggestion{
		ID:              uuid.NewString(),
		TalkingPoint:    "Ask an open-ended question about their current priorities.",
		Context:         "Suggestion synthesis was unavailable for this turn; this is a generic prompt.",
		ConfidenceScore: 0.3,
		Source:          "fallback",
		AgentName:       AgentName,
		Type:            "fallback",
		Provenance:      "fallback",
	}
}

// complete performs one non-streaming chat-completions call and
// returns the first choice's content.
func (c *Client) complete(ctx context.Context, wire chatRequest) (string, error) {
	body, err := json.Marshal(wire)
	if err != nil {
		return "", fmt.Errorf("synth: encoding request: %w", err)
	}

	endpoint := strings.TrimSuffix(c.cfg.BaseURL, "/") + "/v1/chat/completions"
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("synth: building request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		request.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	start := time.Now()
	response, err := c.cfg.HTTPClient.Do(request)
	if err != nil {
		return "", fmt.Errorf("synth: calling %s: %w", endpoint, err)
	}
	defer response.Body.Close()

	responseBody, err := io.ReadAll(io.LimitReader(response.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("synth: reading response: %w", err)
	}
	if response.StatusCode != http.StatusOK {
		return "", fmt.Errorf("synth: %s returned status %d: %s", endpoint, response.StatusCode, truncate(responseBody, 200))
	}

	var decoded chatResponse
	if err := json.Unmarshal(responseBody, &decoded); err != nil {
		return "", fmt.Errorf("synth: decoding response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", fmt.Errorf("synth: response carried no choices")
	}

	c.cfg.Logger.Debug("synthesis completion finished",
		"model", decoded.Model,
		"elapsed", time.Since(start),
		"prompt_tokens", decoded.Usage.PromptTokens,
		"completion_tokens", decoded.Usage.CompletionTokens)
	return decoded.Choices[0].Message.Content, nil
}

// buildUserPrompt renders the evidence map and transcript into the
// user message.
func buildUserPrompt(evidence agent.Evidence, transcript string) (string, error) {
	encoded, err := json.MarshalIndent(evidence, "", "  ")
	if err != nil {
		return "", fmt.Errorf("synth: encoding evidence: %w", err)
	}
	var b strings.Builder
	b.WriteString("Evidence gathered so far, grouped by category (the \"")
	b.WriteString(agent.EntitiesKey)
	b.WriteString("\" key nests the raw per-entity data):\n")
	b.Write(encoded)
	b.WriteString("\n\nConversation so far:\n")
	b.WriteString(transcript)
	return b.String(), nil
}

// rawSuggestion mirrors the JSON shape the prompt asks for.
type rawSuggestion struct {
	TalkingPoint    string  `json:"talkingPoint"`
	Context         string  `json:"context"`
	ConfidenceScore float64 `json:"confidenceScore"`
	Source          string  `json:"source"`
	Type            string  `json:"type"`
}

type rawSynthesis struct {
	Suggestions []rawSuggestion `json:"suggestions"`
	Confidence  float64         `json:"confidence"`
}

// parseSuggestions decodes the model's JSON, tolerating markdown code
// fences around it.
func parseSuggestions(content string) (*rawSynthesis, error) {
	trimmed := strings.TrimSpace(content)
	if after, found := strings.CutPrefix(trimmed, "```json"); found {
		trimmed = after
	} else if after, found := strings.CutPrefix(trimmed, "```"); found {
		trimmed = after
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")

	var parsed rawSynthesis
	if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
		return nil, fmt.Errorf("synth: model output is not the requested JSON: %w", err)
	}
	return &parsed, nil
}

func averageConfidence(suggestions []schema.Suggestion) float64 {
	var sum float64
	for _, s := range suggestions {
		sum += s.ConfidenceScore
	}
	return sum / float64(len(suggestions))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// Chat-completions wire types, request and response subsets sufficient
// for non-streaming text completions.

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

type chatChoice struct {
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
}
