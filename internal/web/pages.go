package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
)

//go:embed templates/*.html
var templateFS embed.FS

type pageSet map[string]*template.Template

var pageNames = []string{
	"login", "register", "list", "view", "form", "delete", "summarize", "transcribe",
}

func loadPages() (pageSet, error) {
	ps := make(pageSet, len(pageNames))
	for _, name := range pageNames {
		t, err := template.New("layout.html").ParseFS(templateFS, "templates/layout.html", "templates/job.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("web: parse %s: %w", name, err)
		}
		ps[name] = t
	}
	return ps, nil
}

// page is the data every template receives.
type page struct {
	Title         string
	Flash         string
	Error         string
	Refresh       string
	Authenticated bool
	Data          any
}

// render executes a page into a buffer first so a template error never
// leaves a half-written response.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, p page) {
	if p.Flash == "" {
		p.Flash = r.URL.Query().Get("msg")
	}
	if p.Error == "" {
		p.Error = r.URL.Query().Get("err")
	}
	p.Authenticated = s.Session.Authenticated()

	var buf bytes.Buffer
	if err := s.pages[name].Execute(&buf, p); err != nil {
		s.Logger.Error("render failed", slog.String("page", name), slog.String("error", err.Error()))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
