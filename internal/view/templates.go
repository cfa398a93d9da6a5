package view

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"path"
	"time"

	"github.com/learnexa/learnexa/internal/locale"
	"github.com/learnexa/learnexa/internal/shared"
	"github.com/learnexa/learnexa/web"
)

// NavState drives the navbar. While Resolving the navbar shows a neutral
// placeholder instead of sign-in or account links.
type NavState struct {
	Resolving bool
	SignedIn  bool
	IsAdmin   bool
	Label     string
}

// TemplateData contains values shared across templates. Title is a catalog
// key.
type TemplateData struct {
	Title       string
	CSRFToken   string
	Flash       *shared.FlashMessage
	CurrentPath string
	Nav         NavState
	Locale      *locale.Store
	Data        any
}

// T translates key in the active language.
func (d TemplateData) T(key string) string {
	if d.Locale == nil {
		return key
	}
	return d.Locale.T(key)
}

// Lang returns the active language code for the html lang attribute.
func (d TemplateData) Lang() string {
	if d.Locale == nil {
		return locale.Default.String()
	}
	return d.Locale.Language().String()
}

// Dir returns the text direction for the html dir attribute.
func (d TemplateData) Dir() string {
	if d.Locale == nil {
		return locale.Default.Dir()
	}
	return d.Locale.Dir()
}

// Decorator fills request-scoped fields before a page renders.
type Decorator func(r *http.Request, data *TemplateData)

// Option configures the Engine.
type Option func(*Engine)

// WithDecorator appends a Decorator run on every Render.
func WithDecorator(d Decorator) Option {
	return func(e *Engine) {
		e.decorators = append(e.decorators, d)
	}
}

// Engine renders HTML templates.
type Engine struct {
	pages      map[string]*template.Template
	decorators []Decorator
}

var funcMap = template.FuncMap{
	"formatDate": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Format("02 Jan 2006")
	},
}

// NewEngine parses templates at build-time. Every page gets its own copy of
// the layouts and partials so pages can each define "content".
func NewEngine(opts ...Option) (*Engine, error) {
	return newEngine(web.Templates, opts...)
}

func newEngine(fsys fs.FS, opts ...Option) (*Engine, error) {
	base, err := template.New("root").Funcs(funcMap).ParseFS(fsys, "templates/layouts/*.html", "templates/partials/*.html")
	if err != nil {
		return nil, err
	}
	pages, err := fs.Glob(fsys, "templates/pages/*.html")
	if err != nil {
		return nil, err
	}
	e := &Engine{pages: make(map[string]*template.Template, len(pages))}
	for _, page := range pages {
		tpl, err := base.Clone()
		if err != nil {
			return nil, err
		}
		if _, err := tpl.ParseFS(fsys, page); err != nil {
			return nil, fmt.Errorf("parse %s: %w", page, err)
		}
		e.pages["pages/"+path.Base(page)] = tpl
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Render executes page name inside the base layout. The page is rendered
// into a buffer first so a template error never produces half a page.
func (e *Engine) Render(w http.ResponseWriter, r *http.Request, status int, name string, data TemplateData) error {
	if e == nil {
		return fmt.Errorf("template engine not initialised")
	}
	tpl, ok := e.pages[name]
	if !ok {
		return fmt.Errorf("template %s not found", name)
	}
	if r != nil {
		if data.CurrentPath == "" {
			data.CurrentPath = r.URL.Path
		}
		if data.Locale == nil {
			data.Locale = locale.FromContext(r.Context())
		}
		for _, d := range e.decorators {
			d(r, &data)
		}
	}
	var buf bytes.Buffer
	if err := tpl.ExecuteTemplate(&buf, "base", data); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}
