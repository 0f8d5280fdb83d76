package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultDeepSeekModel = "deepseek-chat"
	deepSeekURL          = "https://api.deepseek.com/chat/completions"
)

// DeepSeekProvider talks to the OpenAI-compatible DeepSeek chat API. It has
// no document parts, so attachments are sent as text.
type DeepSeekProvider struct {
	APIKey  string
	Model   string
	BaseURL string
	Client  *http.Client
}

var _ Provider = (*DeepSeekProvider)(nil)

func NewDeepSeekProvider(apiKey, model string) (*DeepSeekProvider, error) {
	if apiKey == "" {
		return nil, errors.New("DEEPSEEK_API_KEY not set")
	}
	if model == "" {
		model = defaultDeepSeekModel
	}
	return &DeepSeekProvider{
		APIKey:  apiKey,
		Model:   model,
		BaseURL: deepSeekURL,
		Client:  &http.Client{Timeout: 5 * time.Minute},
	}, nil
}

type DeepSeekRequest struct {
	Messages       []Message      `json:"messages"`
	Model          string         `json:"model"`
	MaxTokens      int            `json:"max_tokens"`
	ResponseFormat ResponseFormat `json:"response_format"`
	Stream         bool           `json:"stream"`
	Temperature    float32        `json:"temperature"`
}

type Message struct {
	Content string `json:"content"`
	Role    string `json:"role"`
}

type ResponseFormat struct {
	Type string `json:"type"`
}

type DeepSeekResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (p *DeepSeekProvider) Name() string { return "deepseek/" + p.Model }

func (p *DeepSeekProvider) Generate(ctx context.Context, req Request) (string, error) {
	format := "text"
	if req.ResponseSchema != "" {
		format = "json_object"
	}
	reqBody := DeepSeekRequest{
		Messages: []Message{
			{Content: systemWithSchema(req), Role: "system"},
			{Content: inlineDocuments(req), Role: "user"},
		},
		Model:          p.Model,
		MaxTokens:      8192,
		ResponseFormat: ResponseFormat{Type: format},
		Temperature:    req.Temperature,
	}

	jsonBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("deepseek: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL, bytes.NewReader(jsonBytes))
	if err != nil {
		return "", fmt.Errorf("deepseek: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.APIKey)

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	res, err := client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("deepseek: api call: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return "", fmt.Errorf("deepseek: read body: %w", err)
	}
	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("deepseek: status=%d body=%s", res.StatusCode, truncate(body, 512))
	}

	var response DeepSeekResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("deepseek: decode response: %w", err)
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("deepseek: no choices in %s", truncate(body, 512))
	}
	return response.Choices[0].Message.Content, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
