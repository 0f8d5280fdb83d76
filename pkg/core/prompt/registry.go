package prompt

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds all loaded prompts and schemas
type Registry struct {
	prompts map[string]*PromptTemplate
	schemas map[string]*ResponseSchema
	mu      sync.RWMutex
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		prompts: make(map[string]*PromptTemplate),
		schemas: make(map[string]*ResponseSchema),
	}
}

var (
	defaultRegistry *Registry
	defaultErr      error
	once            sync.Once
)

// Default returns the registry preloaded with the embedded library.
func Default() (*Registry, error) {
	once.Do(func() {
		defaultRegistry = NewRegistry()
		defaultErr = defaultRegistry.LoadEmbedded()
	})
	return defaultRegistry, defaultErr
}

// Register adds a prompt template to the registry
func (r *Registry) Register(pt *PromptTemplate) error {
	if pt.ID == "" {
		return fmt.Errorf("prompt ID cannot be empty")
	}
	if pt.Version == "" {
		return fmt.Errorf("prompt %s has no version", pt.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.prompts[pt.ID] = pt
	return nil
}

// RegisterSchema adds a response schema to the registry
func (r *Registry) RegisterSchema(schema *ResponseSchema) error {
	if schema.ID == "" {
		return fmt.Errorf("schema ID cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.schemas[schema.ID] = schema
	return nil
}

// GetPrompt retrieves a prompt by ID
func (r *Registry) GetPrompt(id string) (*PromptTemplate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if p, ok := r.prompts[id]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("prompt not found: %s", id)
}

// GetSchema retrieves a response schema by ID
func (r *Registry) GetSchema(id string) (*ResponseSchema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if s, ok := r.schemas[id]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("schema not found: %s", id)
}

// Build renders prompt id with vars into a Request.
func (r *Registry) Build(id string, vars map[string]any) (Request, error) {
	pt, err := r.GetPrompt(id)
	if err != nil {
		return Request{}, err
	}
	user, err := RenderUserPrompt(pt, vars)
	if err != nil {
		return Request{}, err
	}
	req := Request{
		ID:      pt.ID,
		Version: pt.Version,
		System:  pt.SystemPrompt,
		User:    user,
	}
	if pt.ResponseSchemaID != "" {
		schema, err := r.GetSchema(pt.ResponseSchemaID)
		if err != nil {
			return Request{}, fmt.Errorf("prompt %s: %w", id, err)
		}
		req.Schema = schema.JSONSchema
		req.SchemaVersion = schema.Version()
	}
	return req, nil
}

// ListPrompts returns all registered prompt IDs, sorted.
func (r *Registry) ListPrompts() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.prompts))
	for id := range r.prompts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Count returns the number of registered prompts
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.prompts)
}
