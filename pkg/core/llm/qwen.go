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
	defaultQwenModel = "qwen-max"
	qwenURL          = "https://dashscope.aliyuncs.com/api/v1/services/aigc/text-generation/generation"
)

// QwenProvider talks to the native DashScope generation API.
type QwenProvider struct {
	APIKey  string
	Model   string
	BaseURL string
	Client  *http.Client
}

var _ Provider = (*QwenProvider)(nil)

func NewQwenProvider(apiKey, model string) (*QwenProvider, error) {
	if apiKey == "" {
		return nil, errors.New("DASHSCOPE_API_KEY not set")
	}
	if model == "" {
		model = defaultQwenModel
	}
	return &QwenProvider{
		APIKey:  apiKey,
		Model:   model,
		BaseURL: qwenURL,
		Client:  &http.Client{Timeout: 5 * time.Minute},
	}, nil
}

func (p *QwenProvider) Name() string { return "qwen/" + p.Model }

func (p *QwenProvider) Generate(ctx context.Context, req Request) (string, error) {
	params := map[string]any{
		"result_format": "message",
		"temperature":   req.Temperature,
	}
	if req.ResponseSchema != "" {
		params["response_format"] = map[string]string{"type": "json_object"}
	}
	reqBody := map[string]any{
		"model": p.Model,
		"input": map[string]any{
			"messages": []map[string]string{
				{"role": "system", "content": systemWithSchema(req)},
				{"role": "user", "content": inlineDocuments(req)},
			},
		},
		"parameters": params,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("qwen: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL, bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("qwen: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.APIKey)

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("qwen: api call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("qwen: status %d: %s", resp.StatusCode, truncate(bodyBytes, 512))
	}

	var result struct {
		Output struct {
			Choices []struct {
				Message struct {
					Content string `json:"content"`
				} `json:"message"`
			} `json:"choices"`
			// some endpoints return text directly
			Text string `json:"text"`
		} `json:"output"`
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("qwen: decode response: %w", err)
	}
	if result.Code != "" {
		return "", fmt.Errorf("qwen: api error: %s - %s", result.Code, result.Message)
	}
	if len(result.Output.Choices) > 0 {
		return result.Output.Choices[0].Message.Content, nil
	}
	if result.Output.Text != "" {
		return result.Output.Text, nil
	}
	return "", errors.New("qwen: empty response")
}
