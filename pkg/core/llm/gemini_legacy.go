package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	legacy "github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// LegacyGeminiProvider runs on the older generative-ai-go SDK. It has no
// JSON Schema passthrough, so the schema rides in the system instruction.
type LegacyGeminiProvider struct {
	client *legacy.Client
	model  string
}

var _ Provider = (*LegacyGeminiProvider)(nil)

func NewLegacyGeminiProvider(ctx context.Context, apiKey, model string) (*LegacyGeminiProvider, error) {
	if apiKey == "" {
		return nil, errors.New("GEMINI_API_KEY not set")
	}
	if model == "" {
		model = defaultGeminiModel
	}
	client, err := legacy.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &LegacyGeminiProvider{client: client, model: model}, nil
}

func (p *LegacyGeminiProvider) Name() string { return "gemini-legacy/" + p.model }

func (p *LegacyGeminiProvider) Generate(ctx context.Context, req Request) (string, error) {
	model := p.client.GenerativeModel(p.model)
	model.SetTemperature(req.Temperature)
	if sys := systemWithSchema(req); sys != "" {
		model.SystemInstruction = &legacy.Content{Parts: []legacy.Part{legacy.Text(sys)}}
	}
	if req.ResponseSchema != "" {
		model.ResponseMIMEType = "application/json"
	}

	parts := []legacy.Part{legacy.Text(req.Prompt)}
	for _, a := range req.Attachments {
		if a.MIMEType == "application/pdf" && len(a.Data) > 0 {
			parts = append(parts, legacy.Blob{MIMEType: a.MIMEType, Data: a.Data})
			continue
		}
		parts = append(parts, legacy.Text(fmt.Sprintf("=== DOCUMENT: %s ===\n%s", a.Name, a.Text)))
	}

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", fmt.Errorf("gemini generation failed: %w", err)
	}

	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if txt, ok := part.(legacy.Text); ok {
				sb.WriteString(string(txt))
			}
		}
		break
	}
	if sb.Len() == 0 {
		return "", errors.New("gemini returned an empty response")
	}
	return sb.String(), nil
}

// Close releases the underlying client.
func (p *LegacyGeminiProvider) Close() error {
	return p.client.Close()
}
