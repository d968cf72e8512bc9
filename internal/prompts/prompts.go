// Package prompts renders the Markdown prompt templates. Built-in templates
// are embedded; a file with the same name in the override directory wins.
package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"
)

const (
	JobSummary = "job_summary.md"
	ChatSystem = "chat_system.md"

	maxIncludeDepth = 8
)

//go:embed templates/*.md
var builtin embed.FS

type Renderer struct {
	dir string
	now func() time.Time
}

// New returns a renderer that prefers templates found in dir. An empty dir
// uses only the built-in templates.
func New(dir string) *Renderer {
	return &Renderer{dir: strings.TrimSpace(dir), now: time.Now}
}

// Render executes the named template. data may be nil; Date is always set.
func (r *Renderer) Render(name string, data map[string]any) (string, error) {
	return r.render(name, data, 0)
}

func (r *Renderer) render(name string, data map[string]any, depth int) (string, error) {
	if depth > maxIncludeDepth {
		return "", fmt.Errorf("template %s: include depth exceeded", name)
	}
	src, err := r.load(name)
	if err != nil {
		return "", err
	}
	values := map[string]any{"Date": r.now().Format("2006-01-02")}
	for k, v := range data {
		values[k] = v
	}
	tmpl, err := template.New(name).Funcs(template.FuncMap{
		"include": func(other string) (string, error) {
			return r.render(other, data, depth+1)
		},
	}).Option("missingkey=zero").Parse(src)
	if err != nil {
		return "", fmt.Errorf("parse template %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, values); err != nil {
		return "", fmt.Errorf("render template %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

func (r *Renderer) load(name string) (string, error) {
	clean := filepath.Base(filepath.Clean(name))
	if r.dir != "" {
		data, err := os.ReadFile(filepath.Join(r.dir, clean))
		if err == nil {
			return string(data), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("read template %s: %w", clean, err)
		}
	}
	data, err := builtin.ReadFile("templates/" + clean)
	if err != nil {
		return "", fmt.Errorf("template %s not found: %w", clean, err)
	}
	return string(data), nil
}
