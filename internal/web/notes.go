package web

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/scribe/internal/apperr"
	"github.com/starford/scribe/internal/models"
	"github.com/starford/scribe/internal/notes"
	"github.com/starford/scribe/internal/render"
)

type listData struct {
	Query string
	Count string
	Total int
	Cards []render.Card
}

func (s *Server) listNotes(w http.ResponseWriter, r *http.Request) {
	all, err := s.Notes.List(r.Context())
	if err != nil {
		if authFailed(w, r, err) {
			return
		}
		s.Logger.Error("list notes failed", slog.String("error", err.Error()))
		s.render(w, r, http.StatusBadGateway, "list", page{Title: "My Notes", Error: err.Error(), Data: listData{}})
		return
	}
	q := r.URL.Query().Get("q")
	s.render(w, r, http.StatusOK, "list", page{
		Title: "My Notes",
		Data: listData{
			Query: q,
			Count: render.CountLabel(len(all)),
			Total: len(all),
			Cards: render.Cards(render.Filter(all, q)),
		},
	})
}

// loadNote fetches the note named in the URL, writing the failure response
// itself when it returns false.
func (s *Server) loadNote(w http.ResponseWriter, r *http.Request) (models.Note, bool) {
	n, err := s.Notes.Get(r.Context(), chi.URLParam(r, "id"))
	if err == nil {
		return n, true
	}
	switch {
	case authFailed(w, r, err):
	case errors.Is(err, apperr.ErrNotFound):
		redirect(w, r, "/notes", "", "Note not found")
	default:
		s.Logger.Error("get note failed", slog.String("error", err.Error()))
		redirect(w, r, "/notes", "", err.Error())
	}
	return models.Note{}, false
}

func (s *Server) viewNote(w http.ResponseWriter, r *http.Request) {
	n, ok := s.loadNote(w, r)
	if !ok {
		return
	}
	s.render(w, r, http.StatusOK, "view", page{Title: n.Title, Data: render.NewCard(n)})
}

type formData struct {
	ID      string
	Title   string
	Content string
	Label   string
	Icon    string
	Saved   bool
}

func (s *Server) newNote(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "form", page{Title: "Create Note", Data: formData{}})
}

func (s *Server) createNote(w http.ResponseWriter, r *http.Request) {
	d := notes.Draft{Title: r.FormValue("title"), Content: r.FormValue("content")}
	if _, err := s.Notes.Create(r.Context(), d); err != nil {
		if authFailed(w, r, err) {
			return
		}
		s.render(w, r, statusFor(err), "form", page{
			Title: "Create Note",
			Error: err.Error(),
			Data:  formData{Title: d.Title, Content: d.Content},
		})
		return
	}
	redirect(w, r, "/notes", "Note created successfully!", "")
}

func (s *Server) editNote(w http.ResponseWriter, r *http.Request) {
	n, ok := s.loadNote(w, r)
	if !ok {
		return
	}
	p := render.Present(&n)
	if !p.Editable {
		redirect(w, r, "/notes/"+n.ID, "", p.Label+" notes cannot be edited")
		return
	}
	s.render(w, r, http.StatusOK, "form", page{
		Title: "Edit Note",
		Data:  formData{ID: n.ID, Title: n.Title, Content: n.Content, Label: p.Label, Icon: p.Icon},
	})
}

func (s *Server) updateNote(w http.ResponseWriter, r *http.Request) {
	n, ok := s.loadNote(w, r)
	if !ok {
		return
	}
	p := render.Present(&n)
	if !p.Editable {
		redirect(w, r, "/notes/"+n.ID, "", p.Label+" notes cannot be edited")
		return
	}

	d := notes.Draft{Title: r.FormValue("title"), Content: r.FormValue("content")}
	data := formData{ID: n.ID, Title: d.Title, Content: d.Content, Label: p.Label, Icon: p.Icon}
	updated, err := s.Notes.Update(r.Context(), n.ID, d)
	if err != nil {
		if authFailed(w, r, err) {
			return
		}
		s.render(w, r, statusFor(err), "form", page{Title: "Edit Note", Error: err.Error(), Data: data})
		return
	}

	data.Title, data.Content, data.Saved = updated.Title, updated.Content, true
	s.render(w, r, http.StatusOK, "form", page{
		Title:   "Edit Note",
		Flash:   "Note saved successfully!",
		Refresh: "2;url=/notes",
		Data:    data,
	})
}

type deleteData struct {
	ID     string
	Prompt string
}

func (s *Server) confirmDelete(w http.ResponseWriter, r *http.Request) {
	n, ok := s.loadNote(w, r)
	if !ok {
		return
	}
	s.render(w, r, http.StatusOK, "delete", page{
		Title: "Delete Note",
		Data:  deleteData{ID: n.ID, Prompt: notes.DeletePrompt(n.Title)},
	})
}

func (s *Server) deleteNote(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	confirmed := func() bool { return r.FormValue("confirm") == "yes" }

	err := s.Notes.Delete(r.Context(), id, confirmed)
	switch {
	case err == nil:
		redirect(w, r, "/notes", "Note deleted successfully!", "")
	case errors.Is(err, apperr.ErrCancelled):
		redirect(w, r, "/notes/"+id, "", "")
	case authFailed(w, r, err):
	case errors.Is(err, apperr.ErrNotFound):
		redirect(w, r, "/notes", "", "Note not found")
	default:
		s.Logger.Error("delete note failed", slog.String("id", id), slog.String("error", err.Error()))
		redirect(w, r, "/notes", "", "Failed to delete note")
	}
}

// statusFor maps an error kind to the page status.
func statusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return http.StatusUnprocessableEntity
	case apperr.KindNetwork, apperr.KindRemote, apperr.KindParse:
		return http.StatusBadGateway
	case apperr.KindTimeout:
		return http.StatusGatewayTimeout
	case apperr.KindPermission:
		return http.StatusForbidden
	}
	if errors.Is(err, apperr.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
