package web

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/scribe/internal/apperr"
	"github.com/starford/scribe/internal/session"
)

func (s *Server) loginPage(w http.ResponseWriter, r *http.Request) {
	if s.Session.Authenticated() {
		http.Redirect(w, r, "/notes", http.StatusSeeOther)
		return
	}
	s.render(w, r, http.StatusOK, "login", page{Title: "Login"})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	c := session.Credentials{Username: r.FormValue("username"), Password: r.FormValue("password")}
	if err := s.Auth.Login(r.Context(), c); err != nil {
		s.Logger.Info("login failed", slog.String("error", err.Error()))
		s.render(w, r, http.StatusUnauthorized, "login", page{Title: "Login", Error: err.Error(), Data: c.Username})
		return
	}
	redirect(w, r, "/notes", "Login Successful", "")
}

func (s *Server) registerPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "register", page{Title: "Register"})
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	c := session.Credentials{Username: r.FormValue("username"), Password: r.FormValue("password")}
	if err := s.Auth.Register(r.Context(), c); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, apperr.ErrAlreadyExists) {
			status = http.StatusConflict
		}
		s.render(w, r, status, "register", page{Title: "Register", Error: err.Error(), Data: c.Username})
		return
	}
	redirect(w, r, "/login", "Registration Successful", "")
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	_ = s.Auth.Logout(r.Context())
	redirect(w, r, "/login", "Logged out", "")
}
