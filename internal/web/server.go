// Package web is the local browser UI: note pages, uploads, live recording,
// and the progress stream.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/starford/scribe/internal/apperr"
	"github.com/starford/scribe/internal/capture"
	"github.com/starford/scribe/internal/notes"
	"github.com/starford/scribe/internal/processing"
	"github.com/starford/scribe/internal/session"
	"github.com/starford/scribe/internal/sse"
)

// Deps are the components the UI drives.
type Deps struct {
	Session  *session.Session
	Auth     *session.Auth
	Notes    *notes.Repository
	PDF      *processing.Orchestrator
	Audio    *processing.Orchestrator
	Recorder *capture.Controller
	Broker   *sse.Broker
	Logger   *slog.Logger
	// Jobs is the lifetime of background submissions; defaults to Background.
	Jobs context.Context
}

// Server holds the UI handlers.
type Server struct {
	Deps
	pages pageSet
}

// NewRouter builds the UI router.
func NewRouter(d Deps) (chi.Router, error) {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Jobs == nil {
		d.Jobs = context.Background()
	}
	pages, err := loadPages()
	if err != nil {
		return nil, err
	}
	s := &Server{Deps: d, pages: pages}

	r := chi.NewRouter()
	r.Get("/login", s.loginPage)
	r.Post("/login", s.login)
	r.Get("/register", s.registerPage)
	r.Post("/register", s.register)

	r.Group(func(r chi.Router) {
		r.Use(s.requireSession)

		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/notes", http.StatusSeeOther)
		})
		r.Post("/logout", s.logout)

		r.Get("/notes", s.listNotes)
		r.Get("/notes/new", s.newNote)
		r.Post("/notes", s.createNote)
		r.Get("/notes/{id}", s.viewNote)
		r.Get("/notes/{id}/edit", s.editNote)
		r.Post("/notes/{id}", s.updateNote)
		r.Get("/notes/{id}/delete", s.confirmDelete)
		r.Post("/notes/{id}/delete", s.deleteNote)

		r.Get("/summarize", s.summarizePage)
		r.Post("/summarize", s.summarize)
		r.Get("/transcribe", s.transcribePage)
		r.Post("/transcribe", s.transcribe)
		if d.Recorder != nil {
			r.Post("/record/start", s.recordStart)
			r.Post("/record/stop", s.recordStop)
			r.Post("/record/discard", s.recordDiscard)
		}

		r.Get("/jobs/{target}", s.jobState)
		r.Post("/jobs/{target}/reset", s.jobReset)
	})

	if d.Broker != nil {
		r.Get("/events", d.Broker.ServeHTTP)
	}
	return r, nil
}

// requireSession sends visitors without a credential to the login page.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.Session.Authenticated() {
			redirect(w, r, "/login", "", "")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// redirect sends a 303 to path carrying optional flash messages.
func redirect(w http.ResponseWriter, r *http.Request, path, msg, errMsg string) {
	q := url.Values{}
	if msg != "" {
		q.Set("msg", msg)
	}
	if errMsg != "" {
		q.Set("err", errMsg)
	}
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	http.Redirect(w, r, path, http.StatusSeeOther)
}

// authFailed redirects to login when err is an auth failure.
func authFailed(w http.ResponseWriter, r *http.Request, err error) bool {
	if !errors.Is(err, apperr.ErrUnauthenticated) {
		return false
	}
	redirect(w, r, "/login", "", err.Error())
	return true
}
