// Package prompt provides the versioned prompt library used for document
// summarization. Prompts and their response schemas are JSON files embedded
// in the binary and can be overridden from a directory at runtime, so wording
// can change without code changes.
package prompt

import (
	"crypto/sha256"
	"encoding/hex"
)

// PromptTemplate represents a reusable prompt with metadata
type PromptTemplate struct {
	ID               string           `json:"id"`                   // e.g. "ownership.breakdown"
	Name             string           `json:"name"`                 // Human-readable name
	Category         string           `json:"category"`             // methodology, ownership
	Description      string           `json:"description"`          // Description of prompt purpose
	SystemPrompt     string           `json:"system_prompt"`        // The system prompt content
	UserPromptTmpl   string           `json:"user_prompt_template"` // Go template for user prompt
	ResponseSchemaID string           `json:"response_schema_ref"`  // Reference to response schema
	Variables        []PromptVariable `json:"variables"`            // Variables used in template
	Version          string           `json:"version"`              // Bump on any wording change
}

// PromptVariable defines a variable used in a prompt template
type PromptVariable struct {
	Name        string `json:"name"`
	Type        string `json:"type"` // string, int, float, array, object
	Description string `json:"description"`
	Required    bool   `json:"required"`
	Default     string `json:"default"`
}

// ResponseSchema represents the expected JSON response structure
type ResponseSchema struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	JSONSchema string `json:"json_schema"`
}

// Version is a short content hash, so editing a schema file changes it.
func (s *ResponseSchema) Version() string {
	sum := sha256.Sum256([]byte(s.JSONSchema))
	return hex.EncodeToString(sum[:6])
}

// Request is a rendered prompt ready to send to a summarizer.
type Request struct {
	ID            string
	Version       string
	System        string
	User          string
	Schema        string // JSON Schema, empty when the prompt has none
	SchemaVersion string
}

// IDs of the prompts shipped with the engine.
const (
	MethodologySummary = "methodology.summary"
	MethodologyDORule  = "methodology.dno_rule"
	OwnershipBreakdown = "ownership.breakdown"
)
