// internal/api/handler/web/handler.go
package web

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"os"

	"github.com/newthinker/tadash/internal/analysis"
	"go.uber.org/zap"
)

//go:embed templates/*
var templateFS embed.FS

// pages lists page templates; each is parsed together with layout.html
var pages = []string{"index.html", "analyze.html"}

// Analyzer defines the interface needed from analysis.Service
type Analyzer interface {
	Analyze(ctx context.Context, req analysis.Request) (*analysis.Result, error)
	Export(ctx context.Context, req analysis.Request) (*analysis.Export, error)
}

// Handler provides web UI handlers with template rendering
type Handler struct {
	// pageTemplates holds separate template instances for each page
	// Each instance contains layout.html + the specific page template
	pageTemplates map[string]*template.Template
	svc           Analyzer
	logger        *zap.Logger
}

// NewHandler creates a new web handler with templates loaded from the given directory.
// If templatesDir is empty, it falls back to embedded templates.
func NewHandler(svc Analyzer, templatesDir string, logger *zap.Logger) (*Handler, error) {
	if templatesDir == "" {
		return NewHandlerWithFS(svc, TemplateFS(), logger)
	}
	return NewHandlerWithFS(svc, os.DirFS(templatesDir), logger)
}

// NewHandlerWithFS creates a new web handler using a custom filesystem.
func NewHandlerWithFS(svc Analyzer, fsys fs.FS, logger *zap.Logger) (*Handler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	pageTemplates := make(map[string]*template.Template)
	for _, page := range pages {
		tmpl, err := template.ParseFS(fsys, "layout.html", page)
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", page, err)
		}
		pageTemplates[page] = tmpl
	}

	return &Handler{pageTemplates: pageTemplates, svc: svc, logger: logger}, nil
}

// render executes the specified page template with the given data
func (h *Handler) render(w http.ResponseWriter, status int, page string, data any) {
	tmpl, ok := h.pageTemplates[page]
	if !ok {
		http.Error(w, "template not found: "+page, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := tmpl.ExecuteTemplate(w, "layout.html", data); err != nil {
		h.logger.Error("rendering page", zap.String("page", page), zap.Error(err))
	}
}

// TemplateFS returns the embedded template filesystem for external use.
func TemplateFS() fs.FS {
	subFS, err := fs.Sub(templateFS, "templates")
	if err != nil {
		// This should never happen with valid embed directive
		return templateFS
	}
	return subFS
}
