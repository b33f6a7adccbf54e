package web

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"os"
	"path"
	"strings"
	"sync"
	"time"
)

const (
	layoutPattern  = "layouts/*.tmpl"
	partialPattern = "partials/*.tmpl"
	pageDir        = "pages"
)

// ErrUnknownTemplate is returned when a page or fragment name is not defined.
var ErrUnknownTemplate = errors.New("web: unknown template")

// Page is the data handed to the base layout. Body carries the page specific view.
type Page struct {
	Title       string
	Description string
	CSRFToken   string
	Body        any
}

// Renderer executes pages and htmx fragments. In dev mode templates are
// reparsed from disk on every call so edits show up without a restart.
type Renderer struct {
	mu      sync.RWMutex
	fsys    fs.FS
	devMode bool
	pages   map[string]*template.Template
	frags   *template.Template
}

// RendererOption customises a Renderer.
type RendererOption func(*Renderer)

// WithDevDir serves templates from dir on disk and reparses them on every render.
func WithDevDir(dir string) RendererOption {
	return func(r *Renderer) {
		if strings.TrimSpace(dir) != "" {
			r.fsys = os.DirFS(dir)
			r.devMode = true
		}
	}
}

// NewRenderer parses the embedded templates.
func NewRenderer(opts ...RendererOption) (*Renderer, error) {
	fsys, err := TemplatesFS()
	if err != nil {
		return nil, err
	}
	r := &Renderer{fsys: fsys}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if err := r.parse(); err != nil {
		return nil, err
	}
	return r, nil
}

func funcMap() template.FuncMap {
	return template.FuncMap{
		"now": time.Now,
	}
}

func (r *Renderer) parse() error {
	frags, err := template.New("_frags").Funcs(funcMap()).ParseFS(r.fsys, partialPattern)
	if err != nil {
		return fmt.Errorf("web: parse partials: %w", err)
	}

	entries, err := fs.Glob(r.fsys, path.Join(pageDir, "*.tmpl"))
	if err != nil {
		return fmt.Errorf("web: list pages: %w", err)
	}
	if len(entries) == 0 {
		return fmt.Errorf("web: no page templates found")
	}

	pages := make(map[string]*template.Template, len(entries))
	for _, entry := range entries {
		name := strings.TrimSuffix(path.Base(entry), ".tmpl")
		t, err := template.New(name).Funcs(funcMap()).ParseFS(r.fsys, layoutPattern, partialPattern, entry)
		if err != nil {
			return fmt.Errorf("web: parse page %s: %w", name, err)
		}
		pages[name] = t
	}

	r.mu.Lock()
	r.pages = pages
	r.frags = frags
	r.mu.Unlock()
	return nil
}

func (r *Renderer) current() (map[string]*template.Template, *template.Template, error) {
	if r.devMode {
		if err := r.parse(); err != nil {
			return nil, nil, err
		}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pages, r.frags, nil
}

// Page renders the named page inside the base layout.
func (r *Renderer) Page(w http.ResponseWriter, status int, name string, page Page) error {
	pages, _, err := r.current()
	if err != nil {
		return err
	}
	t, ok := pages[name]
	if !ok {
		return fmt.Errorf("%w: page %s", ErrUnknownTemplate, name)
	}
	return write(w, status, t, "base", page)
}

// Fragment renders a partial on its own, as htmx swaps expect.
func (r *Renderer) Fragment(w http.ResponseWriter, status int, name string, data any) error {
	_, frags, err := r.current()
	if err != nil {
		return err
	}
	if frags.Lookup(name) == nil {
		return fmt.Errorf("%w: fragment %s", ErrUnknownTemplate, name)
	}
	return write(w, status, frags, name, data)
}

// write buffers the output so a failing template never leaves a half written response.
func write(w http.ResponseWriter, status int, t *template.Template, name string, data any) error {
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, name, data); err != nil {
		return fmt.Errorf("web: execute %s: %w", name, err)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
	return nil
}
