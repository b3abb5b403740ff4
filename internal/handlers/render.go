package handlers

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GearConnect-Official/gearconnect-landing/internal/platform/requestctx"
)

// Renderer executes page templates. Every page is parsed together with the
// shared layouts and partials so that pages can each define "content".
// In dev mode templates are reparsed on every request.
type Renderer struct {
	dir   string
	dev   bool
	funcs template.FuncMap
	mu    sync.RWMutex
	pages map[string]*template.Template
}

func NewRenderer(dir string, dev bool) (*Renderer, error) {
	r := &Renderer{
		dir: dir,
		dev: dev,
		funcs: template.FuncMap{
			"now":   time.Now,
			"year":  func() int { return time.Now().Year() },
			"upper": strings.ToUpper,
			"lower": strings.ToLower,
		},
	}
	if dev {
		return r, nil
	}
	pages, err := r.parse()
	if err != nil {
		return nil, err
	}
	r.pages = pages
	return r, nil
}

func (r *Renderer) parse() (map[string]*template.Template, error) {
	var shared []string
	for _, sub := range []string{"layouts", "partials"} {
		files, err := tmplFiles(filepath.Join(r.dir, sub))
		if err != nil {
			return nil, err
		}
		shared = append(shared, files...)
	}
	pageFiles, err := tmplFiles(filepath.Join(r.dir, "pages"))
	if err != nil {
		return nil, err
	}
	if len(pageFiles) == 0 {
		return nil, fmt.Errorf("no page templates found under %s", r.dir)
	}

	pages := make(map[string]*template.Template, len(pageFiles))
	for _, file := range pageFiles {
		name := strings.TrimSuffix(filepath.Base(file), ".tmpl")
		files := append(append([]string(nil), shared...), file)
		t, err := template.New(name).Funcs(r.funcs).ParseFiles(files...)
		if err != nil {
			return nil, fmt.Errorf("parse page %s: %w", name, err)
		}
		pages[name] = t
	}
	return pages, nil
}

func tmplFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".tmpl") {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

func (r *Renderer) page(name string) (*template.Template, error) {
	if r.dev {
		pages, err := r.parse()
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.pages = pages
		r.mu.Unlock()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.pages[name]
	if !ok {
		return nil, fmt.Errorf("unknown page template %q", name)
	}
	return t, nil
}

// Render executes the base layout for page. Output is buffered so a failed
// execution never leaves a half-written page.
func (r *Renderer) Render(w http.ResponseWriter, req *http.Request, status int, page string, data any) {
	logger := requestctx.Logger(req.Context())
	t, err := r.page(page)
	if err != nil {
		logger.Error("template lookup failed", zap.String("page", page), zap.Error(err))
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "base", data); err != nil {
		logger.Error("template execution failed", zap.String("page", page), zap.Error(err))
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
