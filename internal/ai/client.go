// Package ai implements the ContentGenerator against an OpenAI-compatible
// chat completions endpoint.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/example/drillcore/internal/apperr"
	"github.com/example/drillcore/pkg/models"
)

// Client calls a chat completions API to generate drill content.
type Client struct {
	apiKey      string
	apiURL      string
	model       string
	temperature float64
	httpClient  *http.Client
}

// New creates a Client. The API key is required; url and model fall back to
// the OpenAI defaults.
func New(apiKey, apiURL, model string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("ai: api key is not set")
	}
	if apiURL == "" {
		apiURL = "https://api.openai.com/v1/chat/completions"
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &Client{
		apiKey:      apiKey,
		apiURL:      apiURL,
		model:       model,
		temperature: 0.7,
		httpClient:  &http.Client{},
	}, nil
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
	ResponseFmt *struct {
		Type string `json:"type"`
	} `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// drillJSON is the shape the model is asked to produce.
type drillJSON struct {
	Kind        string   `json:"kind"`
	Question    string   `json:"question"`
	Options     []string `json:"options"`
	AnswerIndex int      `json:"answer_index"`
	Explanation string   `json:"explanation"`
}

// Generate produces one drill for the item in the given mode. The caller
// bounds the call with a context deadline; a deadline hit is reported as a
// generation timeout.
func (c *Client) Generate(ctx context.Context, item models.VocabularyItem, mode models.Mode) (models.DrillContent, error) {
	prompt := buildPrompt(item, mode)
	reqBody := chatRequest{
		Model: c.model,
		Messages: []message{
			{Role: "system", Content: "You write compact vocabulary drills. Reply with a single JSON object with keys: kind (SVO, CLOZE or TRAP), question, options (array of strings), answer_index (int), explanation."},
			{Role: "user", Content: prompt},
		},
		Temperature: c.temperature,
		ResponseFmt: &struct {
			Type string `json:"type"`
		}{Type: "json_object"},
	}

	data, err := json.Marshal(reqBody)
	if err != nil {
		return models.DrillContent{}, fmt.Errorf("%w: marshal request: %v", apperr.ErrGeneration, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewBuffer(data))
	if err != nil {
		return models.DrillContent{}, fmt.Errorf("%w: build request: %v", apperr.ErrGeneration, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return models.DrillContent{}, apperr.ErrGenerationTimeout
		}
		return models.DrillContent{}, fmt.Errorf("%w: %v", apperr.ErrGeneration, err)
	}
	defer resp.Body.Close()

	var chat chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return models.DrillContent{}, fmt.Errorf("%w: decode response: %v", apperr.ErrGeneration, err)
	}
	if chat.Error != nil {
		return models.DrillContent{}, fmt.Errorf("%w: api: %s", apperr.ErrGeneration, chat.Error.Message)
	}
	if len(chat.Choices) == 0 {
		return models.DrillContent{}, fmt.Errorf("%w: empty response", apperr.ErrGeneration)
	}

	var parsed drillJSON
	content := strings.TrimSpace(chat.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return models.DrillContent{}, fmt.Errorf("%w: unparseable drill payload: %v", apperr.ErrGeneration, err)
	}

	drill := models.DrillContent{
		Kind:        models.DrillKind(parsed.Kind),
		VocabID:     item.ID,
		Word:        item.Word,
		Question:    parsed.Question,
		Options:     parsed.Options,
		AnswerIndex: parsed.AnswerIndex,
		Explanation: parsed.Explanation,
		GeneratedAt: time.Now(),
	}
	// Schema boundary: nothing untyped crosses into the core.
	if err := drill.Validate(); err != nil {
		return models.DrillContent{}, fmt.Errorf("%w: %v", apperr.ErrGeneration, err)
	}
	return drill, nil
}

func buildPrompt(item models.VocabularyItem, mode models.Mode) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Word: %s\nDefinition: %s\n", item.Word, item.Definition)
	if item.Example != "" {
		fmt.Fprintf(&b, "Example: %s\n", item.Example)
	}
	if item.Collocations != "" {
		fmt.Fprintf(&b, "Collocations: %s\n", item.Collocations)
	}
	switch mode {
	case models.ModeSyntax:
		b.WriteString("Write an SVO sentence-building drill for this word.")
	case models.ModeChunking:
		b.WriteString("Write a CLOZE drill testing the word inside a natural chunk.")
	case models.ModeNuance:
		b.WriteString("Write a TRAP drill contrasting this word with a near-synonym.")
	case models.ModeBlitz:
		b.WriteString("Write a rapid CLOZE recognition drill, one short sentence.")
	}
	return b.String()
}
