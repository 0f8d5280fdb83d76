// Package llm holds the model providers the summarizer can run on.
package llm

import (
	"context"
	"fmt"
	"strings"
)

// Attachment is a document sent along with a prompt. Providers that accept
// binary parts send Data; text-only providers send Text.
type Attachment struct {
	Name     string
	MIMEType string
	Data     []byte
	Text     string
}

// Request is one generation call.
type Request struct {
	System      string
	Prompt      string
	Attachments []Attachment
	// ResponseSchema is a JSON Schema. When set the provider is asked for
	// JSON output conforming to it.
	ResponseSchema string
	Temperature    float32
}

// Provider is the interface for all LLM providers.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req Request) (string, error)
}

// Config selects and configures a provider.
type Config struct {
	Provider       string // gemini, gemini-legacy, deepseek, qwen
	Model          string
	GeminiAPIKey   string
	DeepSeekAPIKey string
	QwenAPIKey     string
}

// New builds the provider named by cfg.Provider.
func New(ctx context.Context, cfg Config) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "gemini":
		return NewGeminiProvider(ctx, cfg.GeminiAPIKey, cfg.Model)
	case "gemini-legacy":
		return NewLegacyGeminiProvider(ctx, cfg.GeminiAPIKey, cfg.Model)
	case "deepseek":
		return NewDeepSeekProvider(cfg.DeepSeekAPIKey, cfg.Model)
	case "qwen":
		return NewQwenProvider(cfg.QwenAPIKey, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// inlineDocuments renders attachments as text for providers that only take
// chat messages.
func inlineDocuments(req Request) string {
	if len(req.Attachments) == 0 {
		return req.Prompt
	}
	var b strings.Builder
	b.WriteString(req.Prompt)
	for _, a := range req.Attachments {
		fmt.Fprintf(&b, "\n\n=== DOCUMENT: %s ===\n", a.Name)
		b.WriteString(a.Text)
		b.WriteString("\n=== END DOCUMENT ===")
	}
	return b.String()
}

// systemWithSchema appends the schema to the system prompt for providers
// without native structured output.
func systemWithSchema(req Request) string {
	if req.ResponseSchema == "" {
		return req.System
	}
	return req.System + "\n\nThe response must be JSON conforming to this JSON Schema:\n" + req.ResponseSchema
}
