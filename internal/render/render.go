// Package render renders the HTML email documents.
package render

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"path"
	"sort"
	"strings"
)

//go:embed templates/*.html
var files embed.FS

const layoutFile = "templates/layout.html"

// Engine holds one parsed template set per template id. Each id is
// templates/<id>.html defining "body", rendered inside the shared layout.
type Engine struct {
	sets map[string]*template.Template
}

var funcs = template.FuncMap{
	"hexColor": func(c int) string { return fmt.Sprintf("#%06X", c&0xFFFFFF) },
}

// New parses the embedded templates.
func New() (*Engine, error) {
	entries, err := files.ReadDir("templates")
	if err != nil {
		return nil, err
	}
	e := &Engine{sets: map[string]*template.Template{}}
	for _, ent := range entries {
		name := path.Join("templates", ent.Name())
		if name == layoutFile {
			continue
		}
		t, err := template.New("layout").Funcs(funcs).ParseFS(files, layoutFile, name)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		e.sets[strings.TrimSuffix(ent.Name(), ".html")] = t
	}
	return e, nil
}

// IDs lists the available template ids, sorted.
func (e *Engine) IDs() []string {
	out := make([]string, 0, len(e.sets))
	for id := range e.sets {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Render executes template id with data.
func (e *Engine) Render(ctx context.Context, id string, data any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	t, ok := e.sets[id]
	if !ok {
		return "", fmt.Errorf("unknown template %q", id)
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
