package prompt

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"
	"text/template"
)

//go:embed library
var library embed.FS

// LoadEmbedded loads the prompt library compiled into the binary.
func (r *Registry) LoadEmbedded() error {
	sub, err := fs.Sub(library, "library")
	if err != nil {
		return err
	}
	return r.LoadFS(sub)
}

// LoadFromDirectory loads prompts and schemas from baseDir, replacing any
// with the same ID. Expected structure:
//
//	baseDir/
//	  prompts/
//	    category/
//	      name.json
//	  schemas/
//	    schema.json
func (r *Registry) LoadFromDirectory(baseDir string) error {
	if _, err := os.Stat(baseDir); err != nil {
		return fmt.Errorf("prompt directory: %w", err)
	}
	return r.LoadFS(os.DirFS(baseDir))
}

// LoadFS loads from any fs.FS with the LoadFromDirectory layout.
func (r *Registry) LoadFS(fsys fs.FS) error {
	if err := loadPrompts(r, fsys); err != nil {
		return fmt.Errorf("failed to load prompts: %w", err)
	}
	if err := loadSchemas(r, fsys); err != nil {
		return fmt.Errorf("failed to load schemas: %w", err)
	}
	return nil
}

func loadPrompts(r *Registry, fsys fs.FS) error {
	return fs.WalkDir(fsys, "prompts", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || path.Ext(p) != ".json" {
			return nil
		}

		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", p, err)
		}

		var pt PromptTemplate
		if err := json.Unmarshal(data, &pt); err != nil {
			return fmt.Errorf("failed to parse %s: %w", p, err)
		}

		// Auto-generate ID from path if not specified
		if pt.ID == "" {
			pt.ID = generateIDFromPath(p)
		}
		if pt.Category == "" {
			pt.Category = strings.SplitN(pt.ID, ".", 2)[0]
		}

		if err := r.Register(&pt); err != nil {
			return fmt.Errorf("failed to register %s: %w", pt.ID, err)
		}
		return nil
	})
}

// Schema files hold the JSON Schema itself; the ID is the file name.
func loadSchemas(r *Registry, fsys fs.FS) error {
	if _, err := fs.Stat(fsys, "schemas"); err != nil {
		return nil // Schemas are optional
	}

	return fs.WalkDir(fsys, "schemas", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || path.Ext(p) != ".json" {
			return nil
		}

		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return fmt.Errorf("failed to read schema %s: %w", p, err)
		}
		if !json.Valid(data) {
			return fmt.Errorf("schema %s is not valid JSON", p)
		}

		baseName := strings.TrimSuffix(path.Base(p), ".json")
		return r.RegisterSchema(&ResponseSchema{
			ID:         baseName,
			Name:       baseName,
			JSONSchema: string(data),
		})
	})
}

// generateIDFromPath creates a prompt ID from the file path
// e.g., "prompts/ownership/breakdown.json" -> "ownership.breakdown"
func generateIDFromPath(p string) string {
	rel := strings.TrimPrefix(p, "prompts/")
	rel = strings.TrimSuffix(rel, ".json")
	return strings.ReplaceAll(rel, "/", ".")
}

// RenderUserPrompt executes the user prompt template with vars.
func RenderUserPrompt(pt *PromptTemplate, vars map[string]any) (string, error) {
	if pt.UserPromptTmpl == "" {
		return "", nil
	}
	for _, v := range pt.Variables {
		if _, ok := vars[v.Name]; !ok {
			if v.Required {
				return "", fmt.Errorf("prompt %s: missing required variable %s", pt.ID, v.Name)
			}
		}
	}

	tmpl, err := template.New(pt.ID).Option("missingkey=error").Parse(pt.UserPromptTmpl)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.String(), nil
}
